package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/msto63/mSYS/internal/sysmgr/graph"
	"github.com/msto63/mSYS/internal/sysmgr/service"
)

var orderCmd = &cobra.Command{
	Use:   "order",
	Short: "Print the service start order",
	Long: `Sorts the configured system services by their dependencies and prints
the start order. Services are closed in the reverse order.`,
	RunE: runOrder,
}

func init() {
	rootCmd.AddCommand(orderCmd)
}

func runOrder(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		printError("config", err)
		return err
	}

	var descriptors []service.Descriptor
	for _, sc := range cfg.Services {
		if sc.Application {
			continue
		}
		descriptors = append(descriptors, service.Descriptor{Name: sc.Name, Dependencies: sc.Dependencies})
	}
	order, err := graph.Order(descriptors)
	if err != nil {
		printError("dependency graph", err)
		return err
	}

	fmt.Println(titleStyle.Render("Start order"))
	for i, d := range order {
		deps := mutedStyle.Render("no dependencies")
		if len(d.Dependencies) > 0 {
			deps = mutedStyle.Render("after " + strings.Join(d.Dependencies, ", "))
		}
		fmt.Printf("  %2d. %-22s %s\n", i+1, d.Name, deps)
	}
	return nil
}
