package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/kalambet/jobrelay/internal/config"
)

// --- actors ---

type actorInfo struct {
	ActorType   string          `json:"actor_type"`
	ActorName   string          `json:"actor_name"`
	Description string          `json:"description"`
	Schema      json.RawMessage `json:"schema"`
}

var actorsCmd = &cobra.Command{
	Use:   "actors [actor_type]",
	Short: "List actor presets, or show the schema of one",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()

		if len(args) == 1 {
			resp, err := client.get(cmd.Context(), "/actors/"+url.PathEscape(args[0]))
			if err != nil {
				return err
			}
			var info actorInfo
			if err := decodeJSON(resp, &info); err != nil {
				return err
			}
			return printJSON(out, info)
		}

		resp, err := client.get(cmd.Context(), "/actors")
		if err != nil {
			return err
		}
		var list []actorInfo
		if err := decodeJSON(resp, &list); err != nil {
			return err
		}
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "TYPE\tACTOR\tDESCRIPTION")
		for _, a := range list {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", a.ActorType, a.ActorName, a.Description)
		}
		return tw.Flush()
	},
}

// --- run ---

var runCmd = &cobra.Command{
	Use:   "run [actor_type]",
	Short: "Run an actor preset or an arbitrary actor",
	Long: `Run an actor and print the response (items plus next state).

The job file is JSON or YAML with the same shape as the HTTP request body.
A YAML state may be written as a mapping; it is sent as a JSON string.

Examples:
  jobrelay run tripadvisor --file reviews.yaml
  jobrelay run --arbitrary --file custom.json --async`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")
		arbitrary, _ := cmd.Flags().GetBool("arbitrary")
		async, _ := cmd.Flags().GetBool("async")

		path, err := runPath(args, arbitrary, async)
		if err != nil {
			return err
		}
		if file == "" {
			return fmt.Errorf("--file is required")
		}
		body, err := readJobFile(file)
		if err != nil {
			return err
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.postRaw(cmd.Context(), path, body)
		if err != nil {
			return err
		}

		if async {
			var queued struct {
				ID     string `json:"id"`
				Status string `json:"status"`
			}
			if err := decodeJSON(resp, &queued); err != nil {
				return err
			}
			printSuccess("Queued job %s (check with: jobrelay job %s)", queued.ID, queued.ID)
			fmt.Fprintln(cmd.OutOrStdout(), queued.ID)
			return nil
		}

		var result json.RawMessage
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), result)
	},
}

func runPath(args []string, arbitrary, async bool) (string, error) {
	var path string
	switch {
	case arbitrary && len(args) > 0:
		return "", fmt.Errorf("--arbitrary takes no actor_type argument")
	case arbitrary:
		path = "/run"
	case len(args) == 0:
		return "", fmt.Errorf("actor_type is required unless --arbitrary is set")
	default:
		path = "/" + url.PathEscape(args[0])
	}
	if async {
		path = "/async" + path
	}
	return path, nil
}

func init() {
	runCmd.Flags().String("file", "", "job file (.json, .yaml or .yml)")
	runCmd.Flags().Bool("arbitrary", false, "run the actor named in settings.actor_id")
	runCmd.Flags().Bool("async", false, "queue the run and print its job id")
}

// --- runs ---

type runRecord struct {
	ID         string    `json:"id"`
	Target     string    `json:"target"`
	ActorType  string    `json:"actor_type"`
	Status     string    `json:"status"`
	Error      string    `json:"error"`
	ItemCount  int       `json:"item_count"`
	StartedAt  time.Time `json:"started_at"`
	DurationMS int64     `json:"duration_ms"`
}

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Show recent run history",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		if limit <= 0 {
			return fmt.Errorf("--limit must be positive")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), fmt.Sprintf("/runs?limit=%d", limit))
		if err != nil {
			return err
		}
		var runs []runRecord
		if err := decodeJSON(resp, &runs); err != nil {
			return err
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "STARTED\tTARGET\tSTATUS\tITEMS\tDURATION\tERROR")
		for _, r := range runs {
			target := r.Target
			if r.ActorType != "" {
				target = r.ActorType
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
				r.StartedAt.Local().Format(time.DateTime),
				target,
				statusLabel(r.Status),
				r.ItemCount,
				time.Duration(r.DurationMS)*time.Millisecond,
				truncate(r.Error, 60),
			)
		}
		return tw.Flush()
	},
}

func init() {
	runsCmd.Flags().Int("limit", 20, "number of runs to show")
}

func statusLabel(s string) string {
	switch s {
	case "succeeded", "completed":
		return colorize(colorGreen, s)
	case "failed":
		return colorize(colorRed, s)
	}
	return colorize(colorYellow, s)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// --- job ---

var jobCmd = &cobra.Command{
	Use:   "job <id>",
	Short: "Show the status and response of a queued run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/async/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}
		var j struct {
			ID        string          `json:"id"`
			Status    string          `json:"status"`
			Error     string          `json:"error"`
			Response  json.RawMessage `json:"response"`
			CreatedAt time.Time       `json:"created_at"`
			UpdatedAt time.Time       `json:"updated_at"`
		}
		if err := decodeJSON(resp, &j); err != nil {
			return err
		}

		errOut := cmd.ErrOrStderr()
		printStatus(errOut, "Job", "%s", j.ID)
		printStatus(errOut, "Status", "%s", statusLabel(j.Status))
		printStatus(errOut, "Created", "%s", j.CreatedAt.Local().Format(time.DateTime))
		printStatus(errOut, "Updated", "%s", j.UpdatedAt.Local().Format(time.DateTime))
		if j.Error != "" {
			printStatus(errOut, "Error", "%s", j.Error)
		}
		if len(j.Response) > 0 {
			return printJSON(cmd.OutOrStdout(), j.Response)
		}
		return nil
	},
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

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "  (file %s)\n", config.FilePath())
		for _, k := range config.ShowAll(cfg) {
			fmt.Fprintf(out, "  %s = %s  [%s]\n", colorize(colorBold, k.Key), k.Value, k.EnvVar)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long:  "Set a configuration value in the config file. Valid keys:\n  " + strings.Join(config.ValidKeys(), "\n  "),
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

// --- version ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "jobrelay version %s\n", version)
	},
}
