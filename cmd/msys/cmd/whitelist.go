package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/msto63/mSYS/internal/sysmgr/orchestrator"
	"github.com/msto63/mSYS/internal/sysmgr/shutdown"
)

var whitelistCmd = &cobra.Command{
	Use:   "whitelist",
	Short: "Print which services each close scenario keeps",
	RunE:  runWhitelist,
}

func init() {
	rootCmd.AddCommand(whitelistCmd)
}

func runWhitelist(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		printError("config", err)
		return err
	}
	wl := orchestrator.OptionsFromConfig(cfg).Whitelists

	fmt.Println(titleStyle.Render("Close scenarios"))
	for _, s := range shutdown.Scenarios {
		kept := mutedStyle.Render("closes everything")
		if names := wl[s]; len(names) > 0 {
			kept = okStyle.Render(strings.Join(names, ", "))
		}
		fmt.Println(row(s.String(), kept))
	}
	return nil
}
