package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/stevemurr/lifeos/blob"
	"github.com/stevemurr/lifeos/handler"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a sync blob service",
	Long: `Run an HTTP JSON blob service compatible with the sync commands:

  POST /      store a document under a new id, returns {"id": ...}
  POST /{id}  overwrite the document at id
  GET  /{id}  fetch the document at id

Point other devices at it with --endpoint or LIFEOS_SYNC_ENDPOINT.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	f := serveCmd.Flags()
	f.String("addr", "", "listen address (default 0.0.0.0:8080)")
	f.String("blob-driver", "", "blob storage: fs, memory or s3")
	f.String("blob-dir", "", "directory for the fs blob driver (default <data-dir>/blobs)")
	mustBind(vp.BindPFlag("server.addr", f.Lookup("addr")))
	mustBind(vp.BindPFlag("blob.driver", f.Lookup("blob-driver")))
	mustBind(vp.BindPFlag("blob.dir", f.Lookup("blob-dir")))
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	blobs, err := blob.Open(ctx, cfg.Blob)
	if err != nil {
		return err
	}

	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	h := handler.New(blobs,
		handler.WithLogger(logger),
		handler.WithMetrics(collect),
		handler.WithMetricsHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})),
	)
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler.CORS(h, cfg.Server.AllowedOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	logger.Info("sync blob service starting", "addr", cfg.Server.Addr, "driver", blobs.Driver())

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
