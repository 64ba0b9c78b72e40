package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/msto63/mSYS/pkg/core/config"
	"github.com/msto63/mSYS/pkg/core/logging"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "msys",
	Short: "meinSYSTEM - service lifecycle core",
	Long: `meinSYSTEM starts the system services of a device in dependency order,
supervises them, reacts to battery and key events and takes the device
down through a close handshake before powering off or rebooting.

Commands:
  run        - run the system manager against a simulated device
  order      - print the service start order
  whitelist  - print which services each close scenario keeps
  status     - query a running system manager
  version    - print the version`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $"+config.EnvConfigPath+" or built-in)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}

// loadConfig reads the configuration and applies the logging settings
func loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if cfgFile != "" {
		cfg, err = config.Load(cfgFile)
	} else {
		cfg, err = config.LoadFromEnv()
	}
	if err != nil {
		return nil, err
	}

	level := cfg.System.LogLevel
	if verbose {
		level = "debug"
	}
	logging.Configure(logging.LoggerConfig{
		ServiceName: cfg.System.Name,
		Level:       level,
		Format:      cfg.System.LogFormat,
	})
	return cfg, nil
}

func printError(msg string, err error) {
	fmt.Fprintln(os.Stderr, errorStyle.Render("error: "+msg+": "+err.Error()))
}
