package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/stevemurr/lifeos/config"
	"github.com/stevemurr/lifeos/db"
	"github.com/stevemurr/lifeos/logging"
	"github.com/stevemurr/lifeos/metrics"
)

var (
	cfgFile string
	vp      = config.New()

	// Set by the root command before any subcommand runs.
	cfg       config.Config
	logger    *slog.Logger
	logCloser io.Closer
	registry  *prometheus.Registry
	collect   *metrics.Metrics
)

var rootCmd = &cobra.Command{
	Use:   "lifeos",
	Short: "Local store and cloud sync for LifeOS data",
	Long: `lifeos manages the LifeOS data store on this machine and keeps it in
sync with a remote JSON blob identified by a sync id.

Data lives under --data-dir (default ~/.lifeos). Every flag can also be set
in config.yaml or through LIFEOS_* environment variables.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.ReadFile(vp, cfgFile); err != nil {
			return err
		}
		c, err := config.Load(vp)
		if err != nil {
			return err
		}
		l, closer, err := logging.New(c.Log)
		if err != nil {
			return err
		}
		cfg, logger, logCloser = c, l, closer
		slog.SetDefault(l)
		registry = prometheus.NewRegistry()
		collect = metrics.New(registry)
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if logCloser != nil {
			return logCloser.Close()
		}
		return nil
	},
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVar(&cfgFile, "config", "", "config file (default ./config.yaml or ~/.lifeos/config.yaml)")
	f.String("data-dir", "", "directory holding the local store and sync preferences")
	f.String("backend", "", "storage engine: sqlite, json, memory or postgres")
	f.String("dsn", "", "postgres connection string")
	f.String("log-level", "", "debug, info, warn or error")
	f.String("log-format", "", "text or json")
	f.String("log-file", "", "write logs to this rotated file instead of stderr")
	f.String("metrics-file", "", "write store and sync counters to this file in Prometheus text format")

	mustBind(vp.BindPFlag("data_dir", f.Lookup("data-dir")))
	mustBind(vp.BindPFlag("store.backend", f.Lookup("backend")))
	mustBind(vp.BindPFlag("store.dsn", f.Lookup("dsn")))
	mustBind(vp.BindPFlag("log.level", f.Lookup("log-level")))
	mustBind(vp.BindPFlag("log.format", f.Lookup("log-format")))
	mustBind(vp.BindPFlag("log.file", f.Lookup("log-file")))
	mustBind(vp.BindPFlag("metrics.textfile", f.Lookup("metrics-file")))

	rootCmd.AddGroup(
		&cobra.Group{ID: "data", Title: "Local data:"},
		&cobra.Group{ID: "sync", Title: "Cloud sync:"},
	)
	cobra.OnFinalize(writeMetrics)
}

// writeMetrics dumps the counters of the command that just ran, failed
// commands included.
func writeMetrics() {
	if registry == nil || cfg.MetricsFile == "" {
		return
	}
	if err := prometheus.WriteToTextfile(cfg.MetricsFile, registry); err != nil {
		logger.Warn("write metrics file", "path", cfg.MetricsFile, "err", err)
	}
}

// mustBind panics on a flag binding error, which only a typo in a flag
// name can cause. Bound flags win over the file and the environment only
// when set on the command line.
func mustBind(err error) {
	if err != nil {
		panic(err)
	}
}

// openDB returns an initialized local store.
func openDB(cmd *cobra.Command) (*db.DB, error) {
	d := db.New(cfg.Store, db.WithLogger(logger), db.WithMetrics(collect))
	if err := d.Init(cmd.Context()); err != nil {
		return nil, err
	}
	return d, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
