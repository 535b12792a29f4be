package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"slaledger/internal/platform/logger"
	phttp "slaledger/internal/platform/net/http"
	"slaledger/internal/platform/store"
	"slaledger/internal/platform/validate"
	"slaledger/internal/services/reports"
	"slaledger/internal/services/slarun/domain"
	slarunmod "slaledger/internal/services/slarun/module"
)

// ServeOptions holds flags for the serve command
type ServeOptions struct {
	*RootOptions
	Manifest string
	DailyAt  string
	Profiler bool
}

// NewServeCommand creates the serve command
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve accumulated reports over HTTP",
		Long: `Serve /healthz, /metrics, /v1/reports/{stages|primary}/{configID} and
/v1/watermarks/{configID} on SLA_API_PORT (default :4000).

With --manifest and --daily-at the server also runs the manifest daily, so
/metrics reflects the scheduled runs.

Example:
  SLA_API_PORT=:8080 slaledger serve
  slaledger serve --manifest ./manifest.yaml --daily-at 06:30`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Manifest, "manifest", "", "run manifest for the daily schedule")
	cmd.Flags().StringVar(&opts.DailyAt, "daily-at", "", "daily run wall clock HH:MM (requires --manifest)")
	cmd.Flags().BoolVar(&opts.Profiler, "profiler", false, "mount pprof under /debug")
	cmd.MarkFlagsRequiredTogether("manifest", "daily-at")

	return cmd
}

func serve(cmd *cobra.Command, opts *ServeOptions) error {
	var (
		m  domain.Manifest
		at time.Duration
	)
	if opts.Manifest != "" {
		d, ok := validate.ParseClock(opts.DailyAt)
		if !ok {
			return NewExitError(ExitCommandError, "invalid --daily-at: expected HH:MM")
		}
		at = d
		var err error
		if m, err = domain.LoadManifest(opts.Manifest); err != nil {
			return WrapExitError(ExitCommandError, "load manifest", err)
		}
	}

	ctx, stop := signal.NotifyContext(parentContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, closeDeps, err := openDeps(ctx)
	if err != nil {
		return err
	}
	defer closeDeps()

	log := logger.Get()
	srv := phttp.NewServer(deps.Cfg.Prefix("SLA_"))
	run := reports.Mount(srv.Router(), reports.Options{
		Config:         deps.Cfg,
		Store:          &store.Store{PG: deps.PG, CH: deps.CH},
		EnableProfiler: opts.Profiler,
	})

	if opts.Manifest != "" {
		metricsFile := slarunmod.FromConfig(deps.Cfg).MetricsFile
		go func() {
			err := run.Service.Daily(ctx, m, at, func(domain.RunSummary) {
				if err := run.Metrics.WriteTextfile(metricsFile); err != nil {
					log.Warn().Err(err).Msg("metrics textfile not written")
				}
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("daily schedule stopped")
			}
		}()
	}

	if err := srv.Run(ctx); err != nil {
		return WrapExitError(ExitCommandError, "http server", err)
	}
	return nil
}
