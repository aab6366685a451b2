package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/quillforge/quill/internal/config"
)

// --- agents ---

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "Manage content agents",
}

var agentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all agents",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/agents")
		if err != nil {
			return err
		}

		var agents []struct {
			ID        int64  `json:"id"`
			Name      string `json:"name"`
			Status    string `json:"status"`
			Analytics struct {
				TotalArtifacts     int     `json:"total_artifacts"`
				SuccessRatePercent float64 `json:"success_rate_percent"`
			} `json:"analytics"`
		}
		if err := decodeJSON(resp, &agents); err != nil {
			return err
		}

		if len(agents) == 0 {
			fmt.Println("No agents found.")
			return nil
		}

		for _, a := range agents {
			fmt.Printf("%s  %-24s %-12s %3d artifacts  %5.1f%% success\n",
				colorize(colorCyan, fmt.Sprintf("#%d", a.ID)),
				a.Name,
				a.Status,
				a.Analytics.TotalArtifacts,
				a.Analytics.SuccessRatePercent,
			)
		}
		return nil
	},
}

var agentsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a single agent as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/agents/"+args[0])
		if err != nil {
			return err
		}

		var a any
		if err := decodeJSON(resp, &a); err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(a)
	},
}

var agentsCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a new agent",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		topicsStr, _ := cmd.Flags().GetString("topics")

		req := map[string]any{"name": args[0]}
		if topicsStr != "" {
			req["topics"] = splitCSV(topicsStr)
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/agents", req)
		if err != nil {
			return err
		}

		var result struct {
			ID     int64  `json:"id"`
			Status string `json:"status"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Created agent #%d (%s)", result.ID, result.Status)
		return nil
	},
}

func init() {
	agentsCreateCmd.Flags().String("topics", "", "comma-separated default topics")
	agentsCmd.AddCommand(agentsListCmd)
	agentsCmd.AddCommand(agentsShowCmd)
	agentsCmd.AddCommand(agentsCreateCmd)
}

// --- generate ---

var generateCmd = &cobra.Command{
	Use:   "generate <agent-id>",
	Short: "Start a content generation job",
	Long: `Start a content generation job on an agent.

Examples:
  quill generate 1
  quill generate 1 --topics "cloud security,zero trust" --style technical
  quill generate 1 --words 800-1200`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		topicsStr, _ := cmd.Flags().GetString("topics")
		style, _ := cmd.Flags().GetString("style")
		tone, _ := cmd.Flags().GetString("tone")
		words, _ := cmd.Flags().GetString("words")

		req := map[string]any{}
		if topicsStr != "" {
			req["topics"] = splitCSV(topicsStr)
		}
		if style != "" {
			req["style"] = style
		}
		if tone != "" {
			req["tone"] = tone
		}
		if words != "" {
			min, max, err := parseWordRange(words)
			if err != nil {
				return err
			}
			req["word_count_min"] = min
			req["word_count_max"] = max
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/agents/"+args[0]+"/generate", req)
		if err != nil {
			return err
		}

		var result struct {
			ArtifactID string `json:"artifact_id"`
			Status     string `json:"status"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Job started, artifact %s", result.ArtifactID)
		printStep("Follow with: quill artifacts show %s", result.ArtifactID)
		return nil
	},
}

func init() {
	generateCmd.Flags().String("topics", "", "comma-separated topic overrides")
	generateCmd.Flags().String("style", "", "writing style override")
	generateCmd.Flags().String("tone", "", "tone override")
	generateCmd.Flags().String("words", "", "word count range, e.g. 800-1200")
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseWordRange(s string) (int, int, error) {
	var min, max int
	if _, err := fmt.Sscanf(s, "%d-%d", &min, &max); err != nil {
		return 0, 0, fmt.Errorf("invalid word range %q (expected min-max)", s)
	}
	if min <= 0 || max < min {
		return 0, 0, fmt.Errorf("invalid word range %q", s)
	}
	return min, max, nil
}

// --- reset / pause / register ---

var resetCmd = &cobra.Command{
	Use:   "reset <agent-id>",
	Short: "Reset an errored agent to ready",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/agents/"+args[0]+"/reset", nil)
		if err != nil {
			return err
		}

		var a struct {
			ID     int64  `json:"id"`
			Status string `json:"status"`
		}
		if err := decodeJSON(resp, &a); err != nil {
			return err
		}

		printSuccess("Agent #%d is %s", a.ID, a.Status)
		return nil
	},
}

var pauseCmd = &cobra.Command{
	Use:   "pause <agent-id>",
	Short: "Pause an agent (back to idle)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/agents/"+args[0]+"/pause", nil)
		if err != nil {
			return err
		}

		var a struct {
			ID     int64  `json:"id"`
			Status string `json:"status"`
		}
		if err := decodeJSON(resp, &a); err != nil {
			return err
		}

		printSuccess("Agent #%d is %s", a.ID, a.Status)
		return nil
	},
}

var registerCmd = &cobra.Command{
	Use:   "register <agent-id>",
	Short: "Mark an agent as registered",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/agents/"+args[0]+"/register", nil)
		if err != nil {
			return err
		}

		var a struct {
			ID               int64  `json:"id"`
			RegistrationDate string `json:"registration_date"`
		}
		if err := decodeJSON(resp, &a); err != nil {
			return err
		}

		printSuccess("Agent #%d registered (%s)", a.ID, a.RegistrationDate)
		return nil
	},
}

// --- artifacts ---

var artifactsCmd = &cobra.Command{
	Use:   "artifacts",
	Short: "Inspect generated artifacts",
}

var artifactsListCmd = &cobra.Command{
	Use:   "list <agent-id>",
	Short: "List an agent's recent artifacts",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		path := fmt.Sprintf("/agents/%s/artifacts?limit=%d", args[0], limit)
		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}

		var artifacts []struct {
			ID          string `json:"id"`
			Title       string `json:"title"`
			Status      string `json:"status"`
			WordCount   int    `json:"word_count"`
			GeneratedAt string `json:"generated_at"`
		}
		if err := decodeJSON(resp, &artifacts); err != nil {
			return err
		}

		if len(artifacts) == 0 {
			fmt.Println("No artifacts found.")
			return nil
		}

		for _, a := range artifacts {
			title := a.Title
			if len(title) > 60 {
				title = title[:60] + "..."
			}
			fmt.Printf("%s  %-10s %5dw  %s\n",
				colorize(colorCyan, a.ID[:8]),
				a.Status,
				a.WordCount,
				title,
			)
		}
		return nil
	},
}

var artifactsShowCmd = &cobra.Command{
	Use:   "show <artifact-id>",
	Short: "Show a single artifact with its research record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/artifacts/"+args[0])
		if err != nil {
			return err
		}

		var a any
		if err := decodeJSON(resp, &a); err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(a)
	},
}

func init() {
	artifactsListCmd.Flags().Int("limit", 20, "maximum number of artifacts to list")
	artifactsCmd.AddCommand(artifactsListCmd)
	artifactsCmd.AddCommand(artifactsShowCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
