package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/msto63/mSYS/internal/sysmgr/control"
)

var (
	statusAddr    string
	statusTimeout time.Duration
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Query a running system manager",
	Long: `Asks the control endpoint of a running system manager for its serving
status. The system manager serves while it is running and stops serving
once a shutdown began.`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusAddr, "addr", "", "control endpoint (default: control.grpc_address or "+control.DefaultServerConfig().Address+")")
	statusCmd.Flags().DurationVar(&statusTimeout, "timeout", 2*time.Second, "request timeout")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	addr := statusAddr
	if addr == "" {
		cfg, err := loadConfig()
		if err != nil {
			printError("config", err)
			return err
		}
		addr = cfg.Control.GRPCAddress
	}
	if addr == "" {
		addr = control.DefaultServerConfig().Address
	}

	conn, err := control.Dial(addr)
	if err != nil {
		printError("dial", err)
		return err
	}
	defer conn.Close()

	status, err := control.QueryStatus(context.Background(), conn, statusTimeout)
	if err != nil {
		fmt.Println(row(addr, errorStyle.Render("unreachable")))
		return err
	}

	style := warnStyle
	if status == healthpb.HealthCheckResponse_SERVING {
		style = okStyle
	}
	fmt.Println(row(addr, style.Render(status.String())))
	return nil
}
