package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"slaledger/internal/modkit/module"
	"slaledger/internal/platform/logger"
	"slaledger/internal/platform/validate"
	"slaledger/internal/services/slarun/domain"
	slarunmod "slaledger/internal/services/slarun/module"
)

// RunOptions holds flags for the run command
type RunOptions struct {
	*RootOptions
	Manifest string
	DailyAt  string
}

// NewRunCommand creates the run command
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Process every configuration of a manifest",
		Long: `Process the configurations of a run manifest in order: fetch orders,
build stage rows, merge both accumulations and export the run's report.

With --daily-at the run repeats every day at that wall clock (calendar zone)
until interrupted.

Example:
  slaledger run --manifest ./manifest.yaml
  slaledger run --manifest ./manifest.yaml --daily-at 06:30 --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runManifest(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Manifest, "manifest", "", "path to the run manifest (required)")
	cmd.Flags().StringVar(&opts.DailyAt, "daily-at", "", "repeat daily at HH:MM instead of running once")
	_ = cmd.MarkFlagRequired("manifest")

	return cmd
}

func runManifest(cmd *cobra.Command, opts *RunOptions) error {
	var at time.Duration
	if opts.DailyAt != "" {
		d, ok := validate.ParseClock(opts.DailyAt)
		if !ok {
			return NewExitError(ExitCommandError, fmt.Sprintf("invalid --daily-at %q: expected HH:MM", opts.DailyAt))
		}
		at = d
	}

	m, err := domain.LoadManifest(opts.Manifest)
	if err != nil {
		return WrapExitError(ExitCommandError, "load manifest", err)
	}

	ctx, stop := signal.NotifyContext(parentContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, closeDeps, err := openDeps(ctx)
	if err != nil {
		return err
	}
	defer closeDeps()

	mod := slarunmod.New(deps)
	ports := module.MustPortsOf[slarunmod.Ports](mod)
	p := printer{format: opts.Format, w: cmd.OutOrStdout()}
	log := logger.Get()

	flush := func() {
		if err := ports.Metrics.WriteTextfile(mod.Options().MetricsFile); err != nil {
			log.Warn().Err(err).Msg("metrics textfile not written")
		}
	}

	if opts.DailyAt != "" {
		err := ports.Service.Daily(ctx, m, at, func(sum domain.RunSummary) {
			if err := p.summary(sum); err != nil {
				log.Warn().Err(err).Msg("summary not printed")
			}
			flush()
		})
		if errors.Is(err, context.Canceled) {
			log.Info().Msg("schedule stopped")
			return nil
		}
		return WrapExitError(ExitCommandError, "schedule", err)
	}

	sum, err := ports.Runner.Run(ctx, m)
	flush()
	if err != nil {
		return WrapExitError(ExitCommandError, "run", err)
	}
	if err := p.summary(sum); err != nil {
		return WrapExitError(ExitCommandError, "print summary", err)
	}
	if failed := sum.Failed(); len(failed) > 0 {
		ids := make([]string, 0, len(failed))
		for _, f := range failed {
			ids = append(ids, f.ConfigID)
		}
		return NewExitError(ExitFailure, "configurations failed: "+strings.Join(ids, ", "))
	}
	return nil
}

func parentContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// configView is the printed outcome of one configuration
type configView struct {
	ConfigID    string   `json:"config_id"`
	Name        string   `json:"name"`
	Orders      int      `json:"orders"`
	Stages      int      `json:"stages"`
	OnTime      int      `json:"on_time"`
	Late        int      `json:"late"`
	Unknown     int      `json:"unknown"`
	Dropped     int      `json:"dropped"`
	StageRows   int      `json:"stage_rows"`
	PrimaryRows int      `json:"primary_rows"`
	Export      string   `json:"export,omitempty"`
	Failed      []string `json:"failed_artifacts,omitempty"`
	Error       string   `json:"error,omitempty"`
	TookMs      int64    `json:"took_ms"`
}

type summaryView struct {
	RunID          string       `json:"run_id"`
	Started        time.Time    `json:"started"`
	Configurations []configView `json:"configurations"`
}

func viewOf(sum domain.RunSummary) summaryView {
	out := summaryView{RunID: sum.RunID, Started: sum.Started, Configurations: []configView{}}
	for _, r := range sum.Results {
		v := configView{
			ConfigID: r.ConfigID, Name: r.Name,
			Orders: r.Orders, Stages: r.Stages, OnTime: r.OnTime, Late: r.Late, Unknown: r.Unknown,
			Dropped: r.Dropped, StageRows: r.StageRows, PrimaryRows: r.PrimaryRows,
			Export: r.ExportPath, TookMs: r.Took.Milliseconds(),
		}
		for _, w := range r.Writes {
			if w.Err != nil {
				v.Failed = append(v.Failed, w.Name)
			}
		}
		if r.Err != nil {
			v.Error = r.Err.Error()
		}
		out.Configurations = append(out.Configurations, v)
	}
	return out
}

func (p printer) summary(sum domain.RunSummary) error {
	v := viewOf(sum)
	if p.format == "json" {
		return p.json(v)
	}
	fmt.Fprintf(p.w, "run %s\n", v.RunID)
	for _, c := range v.Configurations {
		if c.Error != "" {
			fmt.Fprintf(p.w, "  %s %-30s FAILED %s\n", c.ConfigID, c.Name, c.Error)
			continue
		}
		fmt.Fprintf(p.w, "  %s %-30s orders=%d stages=%d on_time=%d late=%d unknown=%d dropped=%d rows=%d/%d\n",
			c.ConfigID, c.Name, c.Orders, c.Stages, c.OnTime, c.Late, c.Unknown, c.Dropped, c.StageRows, c.PrimaryRows)
		if c.Export != "" {
			fmt.Fprintf(p.w, "    export %s\n", c.Export)
		}
		for _, f := range c.Failed {
			fmt.Fprintf(p.w, "    not written %s\n", f)
		}
	}
	return nil
}
