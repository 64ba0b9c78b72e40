package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	mserror "github.com/msto63/mSYS/foundation/core/error"
	"github.com/msto63/mSYS/internal/sysmgr/bus"
	"github.com/msto63/mSYS/internal/sysmgr/control"
	"github.com/msto63/mSYS/internal/sysmgr/device"
	"github.com/msto63/mSYS/internal/sysmgr/metrics"
	"github.com/msto63/mSYS/internal/sysmgr/msg"
	"github.com/msto63/mSYS/internal/sysmgr/orchestrator"
	"github.com/msto63/mSYS/internal/sysmgr/platform"
	"github.com/msto63/mSYS/internal/sysmgr/simulator"
	"github.com/msto63/mSYS/pkg/core/config"
	"github.com/msto63/mSYS/pkg/core/health"
	"github.com/msto63/mSYS/pkg/core/logging"
	"github.com/msto63/mSYS/pkg/core/version"
)

// Actions selectable with --then
const (
	thenPowerOff       = "power_off"
	thenReboot         = "reboot"
	thenRebootToUpdate = "reboot_to_update"
	thenUpdate         = "update"
)

var (
	closeAfter time.Duration
	thenAction string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the system manager against a simulated device",
	Long: `Starts every configured service as a simulated service, runs the system
manager until the device is taken down and prints the platform action
that ended the run.

SIGINT or SIGTERM begins a regular close. A second signal aborts.`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().DurationVar(&closeAfter, "close-after", 0, "trigger --then after this long (0 waits for a signal)")
	runCmd.Flags().StringVar(&thenAction, "then", thenPowerOff, "power_off, reboot, reboot_to_update or update")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	switch thenAction {
	case thenPowerOff, thenReboot, thenRebootToUpdate, thenUpdate:
	default:
		err := mserror.Newf("unknown action %q", thenAction).WithCode(mserror.CodeInvalidInput)
		printError("flags", err)
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		printError("config", err)
		return err
	}
	logger := logging.New("msys")

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	devices, err := openDevices(cfg)
	if err != nil {
		printError("device store", err)
		return err
	}
	defer devices.Close()

	fleet := simulator.NewFleet()
	plat := platform.NewSimulated()
	battery := platform.NewBattery(msg.BatteryNormal, msg.BatteryDischarging)

	opts := orchestrator.OptionsFromConfig(cfg)
	opts.Services, opts.Applications = fleet.Descriptors(cfg.Services)
	opts.Bus = bus.New(bus.WithLogger(logging.New("bus")))
	opts.Platform = plat
	opts.Battery = battery
	opts.CPU = platform.NewCPU(msg.MinFrequency)
	opts.Disk = &platform.Disk{}
	opts.Sampler = platform.HostSampler{}
	opts.Devices = devices
	opts.Logger = logging.New("orchestrator")

	if addr := cfg.Control.MetricsAddress; addr != "" {
		reg := prometheus.NewRegistry()
		opts.Metrics = metrics.NewCollector()
		reg.MustRegister(opts.Metrics)
		go func() {
			if err := metrics.Serve(ctx, addr, reg, logger); err != nil {
				logger.Error("metrics endpoint failed", "error", err)
			}
		}()
	}

	var checks *health.Registry
	if addr := cfg.Control.GRPCAddress; addr != "" {
		checks = health.NewRegistry(cfg.System.Name, version.SystemManager)
		scfg := control.DefaultServerConfig()
		scfg.Address = addr
		server := control.NewServer(scfg, checks)
		if err := server.StartAsync(); err != nil {
			printError("control endpoint", err)
			return err
		}
		defer func() {
			stopCtx, stop := context.WithTimeout(context.Background(), 2*time.Second)
			defer stop()
			server.Stop(stopCtx)
		}()
		opts.Health = server
	}

	o, err := orchestrator.New(opts)
	if err != nil {
		printError("system manager", err)
		return err
	}
	if checks != nil {
		o.RegisterHealthChecks(checks)
	}

	errc := make(chan error, 1)
	go func() { errc <- o.Run(ctx) }()

	client := o.Client("msys")
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var trigger <-chan time.Time
	select {
	case <-o.Ready():
		if closeAfter > 0 {
			trigger = time.After(closeAfter)
		}
	case err := <-errc:
		printError("startup", err)
		return err
	}

	signals := 0
	for {
		select {
		case err := <-errc:
			if err != nil {
				printError("run", err)
				return err
			}
			printSummary(o, plat, devices)
			return nil
		case <-trigger:
			trigger = nil
			perform(ctx, client, cfg, logger)
		case sig := <-sigCh:
			signals++
			logger.Info("signal received", "signal", sig.String())
			if signals > 1 {
				cancel()
				continue
			}
			if err := client.CloseSystem(msg.CloseRegularPowerDown); err != nil {
				logger.Error("close request failed", "error", err)
			}
		}
	}
}

func openDevices(cfg *config.Config) (*device.Manager, error) {
	if cfg.Storage.DeviceDB == "" {
		return device.NewManager(device.NewMemoryStore()), nil
	}
	store, err := device.NewSQLiteStore(device.SQLiteConfig{Path: cfg.Storage.DeviceDB})
	if err != nil {
		return nil, err
	}
	return device.NewManager(store), nil
}

// perform sends the --then command
func perform(ctx context.Context, client *orchestrator.Client, cfg *config.Config, logger *logging.Logger) {
	var err error
	switch thenAction {
	case thenReboot:
		err = client.Reboot()
	case thenRebootToUpdate:
		err = client.RebootToUpdate(msg.UpdateRegular)
	case thenUpdate:
		// the update teardown keeps the system running; close it afterwards
		if err = client.Update(ctx, cfg.Timeouts.Restore.Duration); err != nil {
			logger.Warn("update round not confirmed", "error", err)
		}
		err = client.CloseSystem(msg.CloseUpdate)
	default:
		err = client.CloseSystem(msg.CloseRegularPowerDown)
	}
	if err != nil {
		logger.Error("command failed", "action", thenAction, "error", err)
	}
}

func printSummary(o *orchestrator.Orchestrator, plat *platform.Simulated, devices *device.Manager) {
	action := string(plat.Action())
	registered := "?"
	if list, err := devices.Devices(context.Background()); err == nil {
		registered = strconv.Itoa(len(list))
	}

	body := fmt.Sprintf("%s\n%s\n%s\n%s",
		titleStyle.Render("System down"),
		row("final state", o.State().String()),
		row("platform", okStyle.Render(action)),
		row("devices", registered),
	)
	fmt.Println(summaryStyle.Render(body))
}
