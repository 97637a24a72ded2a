package main

import (
	"context"
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/dskvich/scholarai/pkg/domain"
	"github.com/dskvich/scholarai/pkg/gateway"
)

func newModelsCommand(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List provider models and the tier each one serves",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			provider, err := newProvider(cmd.Context(), *cfg)
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), domain.UserMessage(err))
				return err
			}
			return runModels(cmd.Context(), gateway.New(provider, cfg.gatewayConfig()), cmd.OutOrStdout())
		},
	}
}

func runModels(ctx context.Context, gw *gateway.Gateway, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}

	models, err := gw.Models(ctx)
	if err != nil {
		return err
	}

	resolved := map[string]domain.Tier{}
	for _, tier := range []domain.Tier{domain.TierFast, domain.TierDeep} {
		if model, err := gw.ResolveModel(ctx, string(tier)); err == nil {
			resolved[model] = tier
		}
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Model", "Tier", "Selected"})
	for _, m := range models {
		selected := ""
		if tier, ok := resolved[m]; ok {
			selected = string(tier)
		}
		tw.AppendRow(table.Row{m, domain.ParseTier(m), selected})
	}

	_, err = fmt.Fprintln(out, tw.Render())
	return err
}
