package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"feedwatch/internal/config"
	"feedwatch/internal/engine"
	"feedwatch/internal/logging"
	"feedwatch/internal/source"
	"feedwatch/internal/ui"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		cfgPath  string
		logLevel string
		once     bool
	)

	cmd := &cobra.Command{
		Use:   "feedwatch",
		Short: "Live latency monitor for a trading application's feed connections",
		Long: `feedwatch discovers the established outbound TCP connections of a
chosen process group, classifies them against known market-data
provider signatures, probes each one with two independent TCP
handshakes per second, and auto-tracks the most active connection.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cfgPath, logLevel, once)
		},
	}

	cmd.Flags().StringVar(&cfgPath, "config", config.DefaultPath(), "path to the YAML config file")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "override the configured log level")
	cmd.Flags().BoolVar(&once, "once", false, "print discovered process groups and exit")
	return cmd
}

func run(cfgPath, logLevel string, once bool) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	logCfg := logging.Config{Level: cfg.LogLevel, Pretty: true}
	log := logging.New(logCfg)
	src := source.NewSystemSource(logging.NewWithComponent(logCfg, "source"))

	if once {
		return printGroups(src)
	}

	eng := engine.New(engine.Config{
		CycleInterval:        cfg.CycleInterval(),
		AppProbeTimeout:      cfg.AppProbeTimeout(),
		DeepProbeTimeout:     cfg.DeepProbeTimeout(),
		ResolveTimeout:       cfg.ResolveTimeout(),
		ProcessRefreshCycles: cfg.ProcessRefreshCycles,
	}, src, logging.NewWithComponent(logCfg, "engine"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go eng.Run(ctx)

	log.Debug().Str("config", cfgPath).Msg("starting dashboard")
	return ui.NewDashboard(eng, logging.NewWithComponent(logCfg, "ui")).Run(ctx)
}

// printGroups is the headless mode: one discovery pass, groups to
// stdout, no TUI. Handy over SSH or in scripts.
func printGroups(src source.Source) error {
	pids := src.ListProcessesWithEstablishedConnections()
	names := src.ResolveExecutableNames(pids)
	groups := engine.GroupProcesses(names)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PROCESS\tPIDS\tCONNECTIONS")
	for _, g := range groups {
		conns := len(src.ListEstablishedConnections(g.PIDs))
		fmt.Fprintf(w, "%s\t%d\t%d\n", g.Name, len(g.PIDs), conns)
	}
	return w.Flush()
}
