package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/msto63/mSYS/pkg/core/version"
)

// Version is the CLI version, overridable at build time
var Version = version.CLI

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(row("msys", Version))
		fmt.Println(row("system manager", version.ComponentVersion("sysmgr")))
		fmt.Println(row("control", version.ComponentVersion("control")))
		fmt.Println(mutedStyle.Render(fmt.Sprintf("%s %s/%s", runtime.Version(), runtime.GOOS, runtime.GOARCH)))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
