// Package cli implements the slaledger command line
package cli

import (
	"context"
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"slaledger/internal/modkit"
	"slaledger/internal/platform/config"
	"slaledger/internal/platform/logger"
	"slaledger/internal/platform/store"
	"slaledger/internal/services/slarun/repo"
)

// RootOptions holds global flags for all commands
type RootOptions struct {
	Format string // "text" | "json"
}

// ValidFormats are the accepted --format values
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the slaledger command tree
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "slaledger",
		Short: "Stage SLA ledger for workflow orders",
		Long: `slaledger turns order status histories into per-stage SLA rows,
accumulates them across runs and serves the accumulated reports.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (text|json)")

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewWatermarksCommand(opts))
	cmd.AddCommand(NewServeCommand(opts))
	return cmd
}

// openDeps opens the optional mirror stores, applies their schemas and
// returns module deps. The returned close func is never nil
func openDeps(ctx context.Context) (modkit.Deps, func(), error) {
	root := config.New()
	l := logger.Get()
	st, err := store.Open(ctx, store.FromEnv(root.Prefix("SLA_"), "slaledger"), store.WithLogger(*l))
	if err != nil {
		return modkit.Deps{}, func() {}, WrapExitError(ExitCommandError, "open store", err)
	}
	closeFn := func() {
		if err := st.Close(context.Background()); err != nil {
			l.Error().Err(err).Msg("failed to close store")
		}
	}
	if st.PG != nil {
		if err := repo.EnsureSchema(ctx, st.PG); err != nil {
			closeFn()
			return modkit.Deps{}, func() {}, WrapExitError(ExitCommandError, "ensure pg schema", err)
		}
	}
	if st.CH != nil {
		if err := repo.NewFacts(st.CH).EnsureSchema(ctx); err != nil {
			closeFn()
			return modkit.Deps{}, func() {}, WrapExitError(ExitCommandError, "ensure ch schema", err)
		}
	}
	return modkit.Deps{Log: *l, Cfg: root, PG: st.PG, CH: st.CH}, closeFn, nil
}
