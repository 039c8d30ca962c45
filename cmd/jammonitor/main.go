package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	cc "github.com/ivanpirog/coloredcobra"
	"github.com/madebyjamstudios/jammonitor/internal/api"
	"github.com/madebyjamstudios/jammonitor/internal/clock"
	"github.com/madebyjamstudios/jammonitor/internal/config"
	"github.com/madebyjamstudios/jammonitor/internal/monitor"
	"github.com/madebyjamstudios/jammonitor/internal/utils"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	configName = ""
	configPath = ""
	Version    = "dev"
)

func main() {
	rootCmd := rootCommand()
	cc.Init(&cc.Config{
		RootCmd:         rootCmd,
		Headings:        cc.HiBlue + cc.Bold,
		Commands:        cc.HiBlue + cc.Bold,
		CmdShortDescr:   cc.HiBlue,
		ExecName:        cc.HiBlue + cc.Bold,
		Flags:           cc.HiBlue + cc.Bold,
		FlagsDescr:      cc.HiBlue,
		NoExtraNewlines: true,
		NoBottomNewline: true,
	})

	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

func rootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "jammonitor",
		Short: "WAN dashboard for multipath bonding routers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run()
		},
		Version: Version,
	}
	rootCmd.PersistentFlags().StringVar(&configName, "config", "config", "config file name, without extension")
	rootCmd.PersistentFlags().StringVar(&configPath, "config-path", "./", "directory holding the config file")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "check-config",
		Short: "Load and validate the config, then exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.NewConfig(Version)
			if err := cfg.Load(configName, configPath); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "config ok: backend=%s source=%s store=%s\n",
				cfg.Backend.BaseURL, cfg.Telemetry.Source, cfg.Persistence.Type)
			return nil
		},
	})
	return rootCmd
}

func run() error {
	cfg := config.NewConfig(Version)
	if err := cfg.Load(configName, configPath); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	defer cfg.Logger.Sync()

	opts := monitor.Options{}
	if cfg.Telemetry.Source == config.SourceLocal {
		// raw ICMP needs CAP_NET_RAW; without it pro-bing falls back to UDP ping sockets
		ok, err := utils.CheckCapabilities(utils.LocalProbeCapabilities...)
		if !ok {
			cfg.Logger.Warn("running unprivileged probes", zap.Error(err))
		}
		opts.Privileged = ok
	}

	sched := clock.NewReal(ctx)
	defer sched.Stop()

	dash, err := monitor.NewDashboard(cfg, sched, opts)
	if err != nil {
		return err
	}
	if err = dash.Start(ctx); err != nil {
		cfg.Logger.Error("Failed to start dashboard", zap.Error(err))
		return err
	}

	srv := api.New(cfg.API, dash, Version, cfg.Logger)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Start(gctx) })

	err = g.Wait() // returns once the signal context is done or the listener failed
	cfg.Logger.Warn("Shutting down", zap.NamedError("cause", context.Cause(ctx)), zap.Error(err))
	return errors.Join(err, dash.Stop())
}
