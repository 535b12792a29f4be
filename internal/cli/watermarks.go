package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"slaledger/internal/modkit/module"
	slarunmod "slaledger/internal/services/slarun/module"
)

// WatermarksOptions holds flags for the watermarks command
type WatermarksOptions struct {
	*RootOptions
	ConfigID string
}

// NewWatermarksCommand creates the watermarks command
func NewWatermarksCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatermarksOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "watermarks",
		Short: "Print per-order watermarks of a configuration",
		Long: `Print the latest accumulated event instant of every order of a
configuration. Events at or before an order's watermark are skipped by the
next run.

Example:
  slaledger watermarks --config 118
  slaledger watermarks --config 118 --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return printWatermarks(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.ConfigID, "config", "", "configuration id (required)")
	_ = cmd.MarkFlagRequired("config")

	return cmd
}

type watermarkView struct {
	OrderID   string `json:"order_id"`
	Watermark string `json:"watermark"`
}

func printWatermarks(cmd *cobra.Command, opts *WatermarksOptions) error {
	ctx := parentContext(cmd)
	deps, closeDeps, err := openDeps(ctx)
	if err != nil {
		return err
	}
	defer closeDeps()

	mod := slarunmod.New(deps)
	set, err := module.MustPortsOf[slarunmod.Ports](mod).Runner.Watermarks(ctx, opts.ConfigID)
	if err != nil {
		return WrapExitError(ExitCommandError, "watermarks", err)
	}

	loc := mod.Options().Loc
	rows := make([]watermarkView, 0, len(set))
	for _, e := range set.Sorted() {
		rows = append(rows, watermarkView{OrderID: e.OrderID, Watermark: e.Watermark.In(loc).Format(time.RFC3339)})
	}

	p := printer{format: opts.Format, w: cmd.OutOrStdout()}
	if p.format == "json" {
		return p.json(struct {
			ConfigID string          `json:"config_id"`
			Orders   []watermarkView `json:"orders"`
		}{opts.ConfigID, rows})
	}
	if len(rows) == 0 {
		fmt.Fprintf(p.w, "no watermarks for configuration %s\n", opts.ConfigID)
		return nil
	}
	tw := tabwriter.NewWriter(p.w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ORDER\tWATERMARK")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\n", r.OrderID, r.Watermark)
	}
	return tw.Flush()
}
