package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/harvester/internal/app"
	"github.com/JakeFAU/harvester/internal/config"
	"github.com/JakeFAU/harvester/internal/harvest"
	"github.com/JakeFAU/harvester/internal/runtime"
)

// newRunCmd creates the 'run' subcommand for a one-shot harvest.
func newRunCmd() *cobra.Command {
	var inputPath string

	cmd := &cobra.Command{
		Use:   "run [urls...]",
		Short: "Harvests a set of URLs and exits",
		Long: `Runs one harvest session to completion: submits the given URLs, waits for
every job to finish, writes the merged export and manifest to the output
directory, and exits. URLs are taken from arguments, from --input (one per
line), or from stdin when neither is given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRunCommand(cmd, args, inputPath)
		},
	}
	cmd.Flags().StringVar(&inputPath, "input", "", "file with one URL per line")
	return cmd
}

func runRunCommand(cmd *cobra.Command, args []string, inputPath string) error {
	text, err := gatherSubmission(args, inputPath, cmd.InOrStdin())
	if err != nil {
		return err
	}
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("no URLs to harvest")
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initialize services: %w", err)
	}
	defer a.Close()
	logger := a.Logger()

	rt, err := buildRuntime(cfg, a)
	if err != nil {
		return err
	}
	if err := rt.Start(ctx); err != nil {
		return fmt.Errorf("start runtime: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if cerr := rt.Close(closeCtx); cerr != nil {
			logger.Warn("runtime shutdown error", zap.Error(cerr))
		}
	}()

	if err := rt.SubmitURLs(ctx, text); err != nil {
		return fmt.Errorf("submit urls: %w", err)
	}

	if err := waitAllTerminal(ctx, rt); err != nil {
		return err
	}

	view := rt.View()
	if len(view.Jobs) == 0 {
		logger.Warn("no URLs were accepted, nothing to export")
		return nil
	}

	if err := rt.Stop(ctx); err != nil {
		return fmt.Errorf("stop session: %w", err)
	}
	select {
	case <-rt.Finished():
	case <-ctx.Done():
		return ctx.Err()
	}

	view = rt.View()
	logger.Info("harvest finished",
		zap.Int("succeeded", view.Counters.Succeeded),
		zap.Int("failed", view.Counters.Failed),
		zap.Int("cancelled", view.Counters.Cancelled),
		zap.Int64("total_tokens", view.Counters.TotalTokens),
		zap.String("export", cfg.Output.ExportFilename),
		zap.String("output_dir", cfg.Output.Dir))
	return nil
}

// waitAllTerminal polls the view until every accepted job has a terminal
// outcome, or the context ends.
func waitAllTerminal(ctx context.Context, rt *runtime.Runtime) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		view := rt.View()
		if len(view.Jobs) > 0 || view.Counters.Submitted > 0 {
			terminal := true
			for _, job := range view.Jobs {
				if job.Outcome == harvest.OutcomeNone || job.Outcome == "" {
					terminal = false
					break
				}
			}
			if terminal {
				return nil
			}
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func gatherSubmission(args []string, inputPath string, stdin io.Reader) (string, error) {
	var parts []string
	parts = append(parts, args...)

	switch {
	case inputPath != "":
		data, err := os.ReadFile(inputPath)
		if err != nil {
			return "", fmt.Errorf("read input file: %w", err)
		}
		parts = append(parts, string(data))
	case len(args) == 0:
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		parts = append(parts, string(data))
	}

	return strings.Join(parts, "\n"), nil
}
