package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ppiankov/claimtree/internal/llm"
	"github.com/ppiankov/claimtree/internal/pipeline"
)

var runTimeout time.Duration

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run <comments.json|comments.csv>",
	Short: "Build a claim tree from a comments file",
	Long: `Run derives a taxonomy from the comments, extracts claims from each
comment, merges near-duplicates per subtopic and writes the sorted claim tree
plus the audit artifact of the run.

CSV files use the columns id,comment,speaker (a header row is optional).
JSON files hold an array of {"id","text","speaker"} objects.

Example:
  claimtree run comments.csv
  claimtree run comments.json --out tree.json --audit-out audit.json
  claimtree run comments.csv --provider anthropic --cruxes`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	flags := runCmd.Flags()
	flags.String("out", "", "output path for the claim tree JSON")
	flags.String("audit-out", "", "output path for the audit artifact JSON")
	flags.String("provider", "", "LLM provider (openai, anthropic, ollama)")
	flags.String("model", "", "LLM model name")
	flags.Bool("cruxes", false, "find the crux of each contested subtopic")
	flags.Int("workers", 0, "concurrent LLM calls")
	flags.Bool("no-cache", false, "disable the response cache")
	flags.DurationVar(&runTimeout, "timeout", 30*time.Minute, "overall run timeout")

	bind := map[string]string{
		"output.tree_path":    "out",
		"output.audit_path":   "audit-out",
		"llm.provider":        "provider",
		"llm.model":           "model",
		"pipeline.cruxes":     "cruxes",
		"concurrency.workers": "workers",
	}
	for key, flag := range bind {
		_ = viper.BindPFlag(key, flags.Lookup(flag))
	}
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if noCache, _ := cmd.Flags().GetBool("no-cache"); noCache {
		cfg.Cache.Enabled = false
	}

	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	comments, err := pipeline.LoadComments(args[0])
	if err != nil {
		return err
	}
	logger.Info("comments loaded", zap.String("path", args[0]), zap.Int("count", len(comments)))

	provider, err := llm.NewProvider(llm.ConfigFromModel(cfg.LLM))
	if err != nil {
		return fmt.Errorf("init LLM provider: %w", err)
	}

	svc, err := newServices(cfg, logger)
	if err != nil {
		return err
	}
	defer svc.Close()

	opts := []pipeline.Option{
		pipeline.WithLogger(logger),
		pipeline.WithAuditStore(svc.auditStore),
	}
	if svc.responses != nil {
		opts = append(opts, pipeline.WithCache(svc.responses))
	}
	p := pipeline.New(cfg, provider, opts...)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, runTimeout)
	defer cancel()

	result, artifact, runErr := p.Run(ctx, comments)

	renderer := pipeline.NewRenderer()
	if artifact != nil && cfg.Output.AuditPath != "" {
		if err := renderer.RenderJSON(artifact, cfg.Output.AuditPath); err != nil {
			logger.Warn("audit artifact not written", zap.Error(err))
		} else {
			logger.Info("wrote audit artifact", zap.String("path", cfg.Output.AuditPath))
		}
	}
	if runErr != nil {
		return fmt.Errorf("run failed: %w", runErr)
	}

	if cfg.Output.TreePath != "" {
		if err := renderer.RenderJSON(result, cfg.Output.TreePath); err != nil {
			return fmt.Errorf("render failed: %w", err)
		}
		logger.Info("wrote claim tree", zap.String("path", cfg.Output.TreePath))
	}

	renderer.RenderSummary(cmd.OutOrStdout(), result, artifact)
	return nil
}
