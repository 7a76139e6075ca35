package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/alphahunter/monitor/internal/alerts"
	"github.com/alphahunter/monitor/internal/calendar"
	"github.com/alphahunter/monitor/internal/config"
	"github.com/alphahunter/monitor/internal/indicator"
	"github.com/alphahunter/monitor/internal/marketdata"
	"github.com/alphahunter/monitor/internal/monitor"
	"github.com/alphahunter/monitor/internal/observ"
	"github.com/alphahunter/monitor/internal/position"
)

type app struct {
	monitor *monitor.Monitor
	pusher  *alerts.Pusher
}

// build wires the components from the first valid configuration. No valid
// configuration at startup is the one fatal case.
func build(settings config.Settings) (*app, error) {
	mgr := config.NewManager(settings.ConfigPath)
	cfg, _, err := mgr.Reload()
	if err != nil {
		return nil, fmt.Errorf("no valid configuration at %s: %w", settings.ConfigPath, err)
	}

	cal, err := calendar.New(cfg.Calendar)
	if err != nil {
		return nil, fmt.Errorf("calendar: %w", err)
	}

	store := position.NewStore(settings.StatePath)
	if err := store.Load(cfg.Portfolio); err != nil {
		return nil, fmt.Errorf("position state: %w", err)
	}

	resolver := marketdata.NewResolver(cfg.Provider.ShanghaiPrefixes)
	client := marketdata.NewClient(marketdata.ClientConfig{
		BaseURL:    cfg.Provider.QuoteBaseURL,
		Timeout:    time.Duration(cfg.Provider.TimeoutSec) * time.Second,
		RatePerSec: cfg.Provider.RatePerSec,
	}, resolver)
	source := marketdata.NewSource(client)
	builder := indicator.NewBuilder(source, cfg.Provider.KlineWindowDays)

	gate := alerts.NewGate(time.Duration(cfg.Alerts.CooldownSec) * time.Second)
	pusher := alerts.NewPusher(alerts.PusherConfig{
		BaseURL:  cfg.Push.BaseURL,
		Token:    cfg.Token,
		Timeout:  time.Duration(cfg.Push.TimeoutSec) * time.Second,
		Template: cfg.Push.Template,
	})

	return &app{
		monitor: monitor.New(mgr, cal, store, source, builder, gate, pusher),
		pusher:  pusher,
	}, nil
}

func main() {
	settings, err := config.LoadSettings()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	root := &cobra.Command{
		Use:           "monitor",
		Short:         "A-share position monitor with staged-entry strategy alerts",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&settings.ConfigPath, "config", settings.ConfigPath, "portfolio config file")
	root.PersistentFlags().StringVar(&settings.StatePath, "state", settings.StatePath, "position state file")
	root.PersistentFlags().StringVar(&settings.LogLevel, "log-level", settings.LogLevel, "log level")
	root.PersistentFlags().BoolVar(&settings.LogPretty, "pretty", settings.LogPretty, "human-readable log output")

	root.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		observ.Init(settings.LogLevel, settings.LogPretty)
	}

	root.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "start the polling daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := build(settings)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			observ.Log("monitor_starting", map[string]any{"pid": os.Getpid()})
			return a.monitor.Run(ctx)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "fetch once, print the portfolio report and push a startup check",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := build(settings)
			if err != nil {
				return err
			}
			report, err := a.monitor.ReportNow(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Println(report)
			a.pusher.Send(cmd.Context(), "🚀 System online (startup check)", report)
			return nil
		},
	})

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
