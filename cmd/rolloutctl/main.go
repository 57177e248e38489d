// Package main is the entrypoint for the rolloutctl CLI.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/contributor-info/rollout/internal/config"
	"github.com/contributor-info/rollout/internal/models"
	"github.com/contributor-info/rollout/internal/rollout"
	"github.com/spf13/cobra"
)

// Build-time variables set via ldflags.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "rolloutctl",
		Short: "Control feature rollouts for contributor.info data processing",
		Long: `rolloutctl manages gradual feature rollouts: percentages, pauses,
emergency stops, repository whitelists, and category caps.

Set ROLLOUT_SERVER and ROLLOUT_API_KEY, or use the --server and --api-key flags.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().String("server", envOr("ROLLOUT_SERVER", "http://localhost:8090"), "Rollout server URL")
	rootCmd.PersistentFlags().String("api-key", os.Getenv("ROLLOUT_API_KEY"), "API key for authenticated endpoints")

	rootCmd.AddCommand(
		newVersionCmd(),
		newListCmd(),
		newStatusCmd(),
		newSetCmd(),
		newPauseCmd(),
		newResumeCmd(),
		newStopCmd(),
		newWhitelistCmd(),
		newCheckCmd(),
		newHistoryCmd(),
		newCategoriesCmd(),
	)

	return rootCmd
}

func envOr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

// apiClient is a thin HTTP client for the rollout server API.
type apiClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func clientFromFlags(cmd *cobra.Command) *apiClient {
	server, _ := cmd.Flags().GetString("server")
	apiKey, _ := cmd.Flags().GetString("api-key")
	return &apiClient{
		baseURL: strings.TrimRight(server, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *apiClient) do(method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("connect to server: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("server returned HTTP %d: %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("server returned HTTP %d", resp.StatusCode)
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func printFeature(f *models.FeatureRollout) {
	state := "active"
	if !f.IsActive {
		state = "inactive"
	} else if f.IsPaused {
		state = "paused"
	}
	fmt.Printf("%-30s %3d%%  %-10s %-10s whitelist=%d excluded=%d\n",
		f.FeatureName, f.RolloutPercentage, f.Strategy, state,
		len(f.WhitelistedRepos), len(f.ExcludedRepos))
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show rolloutctl version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("rolloutctl %s (commit %s, built %s)\n", Version, Commit, BuildDate)
		},
	}
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all feature rollouts",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFromFlags(cmd)
			var resp struct {
				Features []*models.FeatureRollout `json:"features"`
			}
			if err := client.do(http.MethodGet, "/api/v1/features", nil, &resp); err != nil {
				return err
			}
			if len(resp.Features) == 0 {
				fmt.Println("No feature rollouts configured.")
				return nil
			}
			for _, f := range resp.Features {
				printFeature(f)
			}
			return nil
		},
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <feature>",
		Short: "Show a feature rollout's configuration and health",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFromFlags(cmd)

			var feature models.FeatureRollout
			if err := client.do(http.MethodGet, "/api/v1/features/"+args[0], nil, &feature); err != nil {
				return err
			}

			printFeature(&feature)
			fmt.Printf("  auto-rollback:     %v (max error rate %.2f%%)\n", feature.AutoRollbackEnable, feature.MaxErrorRate)
			fmt.Printf("  monitoring window: %dh\n", feature.MonitoringWindowHr)
			fmt.Printf("  updated:           %s\n", feature.UpdatedAt.Format(time.RFC3339))

			var metrics struct {
				ErrorRate float64 `json:"error_rate"`
				Summary   struct {
					SuccessCount int64 `json:"success_count"`
					ErrorCount   int64 `json:"error_count"`
				} `json:"summary"`
			}
			if err := client.do(http.MethodGet, "/api/v1/features/"+args[0]+"/metrics", nil, &metrics); err != nil {
				return err
			}
			fmt.Printf("  window health:     %d ok / %d errors (%.2f%% error rate)\n",
				metrics.Summary.SuccessCount, metrics.Summary.ErrorCount, metrics.ErrorRate)
			return nil
		},
	}
}

func newSetCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "set <feature> <percentage>",
		Short: "Set a feature's rollout percentage",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			percentage, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("percentage must be an integer: %w", err)
			}

			client := clientFromFlags(cmd)
			var feature models.FeatureRollout
			body := map[string]any{"percentage": percentage, "reason": reason}
			if err := client.do(http.MethodPost, "/api/v1/features/"+args[0]+"/actions/set-percentage", body, &feature); err != nil {
				return err
			}

			fmt.Printf("%s is now at %d%%\n", feature.FeatureName, feature.RolloutPercentage)
			return nil
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "Reason recorded in the audit trail")
	return cmd
}

func newActionCmd(use, short, action, done string) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFromFlags(cmd)
			var feature models.FeatureRollout
			body := map[string]any{"reason": reason}
			if err := client.do(http.MethodPost, "/api/v1/features/"+args[0]+"/actions/"+action, body, &feature); err != nil {
				return err
			}
			fmt.Printf("%s %s\n", feature.FeatureName, done)
			return nil
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "Reason recorded in the audit trail")
	return cmd
}

func newPauseCmd() *cobra.Command {
	return newActionCmd("pause <feature>", "Pause a rollout without changing its percentage", "pause", "paused")
}

func newResumeCmd() *cobra.Command {
	return newActionCmd("resume <feature>", "Resume a paused rollout", "resume", "resumed")
}

func newStopCmd() *cobra.Command {
	return newActionCmd("stop <feature>", "Emergency stop: reset the rollout to 0%", "stop", "stopped, percentage reset to 0")
}

func newWhitelistCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "whitelist",
		Short: "Manage a feature's repository whitelist",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "add <feature> <repo-id>",
		Short: "Whitelist a repository",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFromFlags(cmd)
			var feature models.FeatureRollout
			body := map[string]any{"repository_id": args[1]}
			if err := client.do(http.MethodPost, "/api/v1/features/"+args[0]+"/whitelist", body, &feature); err != nil {
				return err
			}
			fmt.Printf("%s whitelist now has %d repositories\n", feature.FeatureName, len(feature.WhitelistedRepos))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list <feature>",
		Short: "List whitelisted repositories",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFromFlags(cmd)
			var feature models.FeatureRollout
			if err := client.do(http.MethodGet, "/api/v1/features/"+args[0], nil, &feature); err != nil {
				return err
			}
			if len(feature.WhitelistedRepos) == 0 {
				fmt.Printf("%s has no whitelisted repositories.\n", feature.FeatureName)
				return nil
			}
			for _, id := range feature.WhitelistedRepos {
				fmt.Println(id)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "remove <feature> <repo-id>",
		Short: "Remove a repository from the whitelist",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFromFlags(cmd)
			var feature models.FeatureRollout
			if err := client.do(http.MethodDelete, "/api/v1/features/"+args[0]+"/whitelist/"+args[1], nil, &feature); err != nil {
				return err
			}
			fmt.Printf("%s whitelist now has %d repositories\n", feature.FeatureName, len(feature.WhitelistedRepos))
			return nil
		},
	})

	return cmd
}

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <feature> <repo-id>",
		Short: "Check whether a repository is eligible for a feature",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFromFlags(cmd)
			var decision rollout.Decision
			if err := client.do(http.MethodGet, "/api/v1/features/"+args[0]+"/eligibility/"+args[1], nil, &decision); err != nil {
				return err
			}
			if decision.Eligible {
				fmt.Printf("ELIGIBLE: %s\n", decision.Reason)
			} else {
				fmt.Printf("NOT ELIGIBLE: %s\n", decision.Reason)
			}
			return nil
		},
	}
}

func newHistoryCmd() *cobra.Command {
	var limit int
	var action string
	cmd := &cobra.Command{
		Use:   "history <feature>",
		Short: "Show a feature's rollout audit trail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFromFlags(cmd)
			path := fmt.Sprintf("/api/v1/features/%s/history?limit=%d", args[0], limit)
			if action != "" {
				path += "&action=" + action
			}

			var resp struct {
				History []*models.RolloutHistory `json:"history"`
			}
			if err := client.do(http.MethodGet, path, nil, &resp); err != nil {
				return err
			}
			if len(resp.History) == 0 {
				fmt.Println("No history entries.")
				return nil
			}
			for _, h := range resp.History {
				fmt.Printf("%s  %-20s %4s -> %-4s  %-10s %-16s %s\n",
					h.CreatedAt.Format(time.RFC3339), h.Action,
					pct(h.PrevPercent), pct(h.NewPercent), h.Trigger, h.Actor, h.TriggerReason)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum entries to show")
	cmd.Flags().StringVar(&action, "action", "", "Filter by action (e.g. paused, auto_rollback)")
	return cmd
}

func pct(p *int) string {
	if p == nil {
		return "-"
	}
	return strconv.Itoa(*p) + "%"
}

func newCategoriesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "categories",
		Short: "Manage repository category caps",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List category caps",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFromFlags(cmd)
			var resp struct {
				Categories []*models.RepositoryCategory `json:"categories"`
			}
			if err := client.do(http.MethodGet, "/api/v1/categories", nil, &resp); err != nil {
				return err
			}
			if len(resp.Categories) == 0 {
				fmt.Println("No categories configured.")
				return nil
			}
			for _, c := range resp.Categories {
				fmt.Printf("%-12s max %3d%%  priority %d  (%d repositories)\n",
					c.Category, c.MaxPercentage, c.Priority, c.RepoCount)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set <category> <max-percentage>",
		Short: "Set a category's rollout cap",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			maxPct, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("max-percentage must be an integer: %w", err)
			}

			client := clientFromFlags(cmd)
			var category models.RepositoryCategory
			body := map[string]any{"max_percentage": maxPct}
			if err := client.do(http.MethodPut, "/api/v1/categories/"+args[0], body, &category); err != nil {
				return err
			}
			fmt.Printf("%s capped at %d%%\n", category.Category, category.MaxPercentage)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "import <file>",
		Short: "Import category caps from a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			overrides, err := config.LoadCategoryOverrides(args[0])
			if err != nil {
				return err
			}

			client := clientFromFlags(cmd)
			for _, o := range overrides {
				body := map[string]any{"max_percentage": o.MaxPercentage, "priority": o.Priority}
				var category models.RepositoryCategory
				if err := client.do(http.MethodPut, "/api/v1/categories/"+o.Category, body, &category); err != nil {
					return fmt.Errorf("category %s: %w", o.Category, err)
				}
				fmt.Printf("%s capped at %d%%\n", category.Category, category.MaxPercentage)
			}
			return nil
		},
	})

	return cmd
}
