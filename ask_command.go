package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dskvich/scholarai/pkg/domain"
	"github.com/dskvich/scholarai/pkg/gateway"
	"github.com/dskvich/scholarai/pkg/logger"
	"github.com/dskvich/scholarai/pkg/render"
)

const terminalWidth = 100

type askOptions struct {
	file        string
	model       string
	persona     string
	temperature float32
	stream      bool
	raw         bool
}

func newAskCommand(cfg *Config) *cobra.Command {
	opts := askOptions{}

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a single question, optionally about a file",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("temperature") {
				opts.temperature = cfg.Temperature
			}
			if opts.persona == "" {
				opts.persona = cfg.Persona
			}

			provider, err := newProvider(cmd.Context(), *cfg)
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), domain.UserMessage(err))
				return err
			}

			gw := gateway.New(provider, cfg.gatewayConfig())
			err = runAsk(cmd.Context(), gw, strings.Join(args, " "), opts, cmd.OutOrStdout())
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), domain.UserMessage(err))
			}
			return err
		},
	}

	cmd.Flags().StringVarP(&opts.file, "file", "f", "", "PDF, video, audio, image or text file to ask about")
	cmd.Flags().StringVarP(&opts.model, "model", "m", string(domain.TierFast), "Model tier, label or id")
	cmd.Flags().StringVar(&opts.persona, "persona", "", "System persona")
	cmd.Flags().Float32VarP(&opts.temperature, "temperature", "t", domain.DefaultTemperature, "Sampling temperature within [0, 1]")
	cmd.Flags().BoolVarP(&opts.stream, "stream", "s", false, "Print the answer as it arrives")
	cmd.Flags().BoolVar(&opts.raw, "raw", false, "Print Markdown without terminal rendering")

	return cmd
}

func runAsk(ctx context.Context, gw *gateway.Gateway, prompt string, opts askOptions, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}

	req := domain.Request{
		Prompt:          prompt,
		ModelPreference: opts.model,
		Persona:         opts.persona,
		Temperature:     opts.temperature,
	}
	if req.Persona == "" {
		req.Persona = domain.DefaultPersona
	}

	if opts.file != "" {
		attachment, err := attachFile(ctx, gw, opts.file)
		if err != nil {
			return err
		}
		req.Attachment = attachment
	}

	if opts.stream {
		for fragment, err := range gw.AskStream(ctx, req) {
			if err != nil {
				fmt.Fprintln(out)
				return err
			}
			fmt.Fprint(out, fragment)
		}
		fmt.Fprintln(out)
		return nil
	}

	answer, err := gw.Ask(ctx, req)
	if err != nil {
		return err
	}

	if !opts.raw && isTerminal(out) {
		rendered, err := render.Terminal(answer, terminalWidth)
		if err == nil {
			_, err = fmt.Fprint(out, rendered)
			return err
		}
		slog.Warn("Terminal rendering failed", logger.Err(err))
	}
	_, err = fmt.Fprintln(out, answer)
	return err
}

func attachFile(ctx context.Context, gw *gateway.Gateway, path string) (*domain.Attachment, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	return gw.Attach(ctx, filepath.Base(path), mime.TypeByExtension(filepath.Ext(path)), info.Size(), f)
}
