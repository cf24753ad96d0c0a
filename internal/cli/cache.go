package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/claimtree/internal/cache"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or clear the LLM response cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show how many responses are cached",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := cacheServices()
		if err != nil {
			return err
		}
		defer svc.Close()

		stats := svc.responses.Stats(context.Background())
		data, err := json.MarshalIndent(map[string]interface{}{
			"count": stats.Count,
			"ttl":   stats.TTL.String(),
		}, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear [operation|pattern]",
	Short: "Delete cached responses",
	Long: `Delete cached responses. With no argument every response is removed.
An operation name such as "claims" removes that operation's responses; any
other argument is used as a glob pattern over cache keys and is always
scoped to the llm_cache namespace, so audit artifacts are never removed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := cacheServices()
		if err != nil {
			return err
		}
		defer svc.Close()

		pattern := ""
		if len(args) == 1 {
			pattern = clearPattern(args[0])
		}
		n := svc.responses.Clear(context.Background(), pattern)
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Deleted %d cached responses\n", n)
		return nil
	},
}

// clearPattern expands a bare operation name into its key pattern
func clearPattern(arg string) string {
	for _, r := range arg {
		if r == '*' || r == ':' || r == '?' || r == '[' {
			return arg
		}
	}
	return cache.Pattern(arg)
}

func cacheServices() (*services, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	cfg.Cache.Enabled = true

	logger, err := newLogger()
	if err != nil {
		return nil, err
	}
	return newServices(cfg, logger)
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheClearCmd)
}
