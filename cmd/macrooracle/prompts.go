package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/rewired-gh/macrooracle/internal/app"
	"github.com/rewired-gh/macrooracle/internal/models"
	"github.com/rewired-gh/macrooracle/internal/orchestrator"
	"github.com/rewired-gh/macrooracle/internal/prompts"
)

var (
	promptKey    string
	outputFormat string
)

// promptsCmd groups the human curation actions
var promptsCmd = &cobra.Command{
	Use:   "prompts",
	Short: "Inspect and curate synthesis system prompts",
	Long: `Inspect and curate the system prompts used for reasoning synthesis.

Available subcommands:
  list     - List stored prompts with status and run counts
  show     - Show one prompt entry
  curate   - Approve (and optionally replace) the prompt text
  rollback - Restore an earlier version as a new version
  reset    - Delete the prompt so the next run bootstraps a new one
  improve  - Ask the reasoning model to review the prompt`,
}

var promptsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored prompts",
	RunE:  runPromptsList,
}

var promptsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show a prompt entry",
	RunE:  runPromptsShow,
}

var promptsCurateCmd = &cobra.Command{
	Use:   "curate",
	Short: "Mark a prompt as curated",
	Long: `Mark a prompt as curated. A curated prompt is never overwritten automatically.
Pass --file to replace the text with the contents of a file ("-" reads stdin).`,
	RunE: runPromptsCurate,
}

var promptsRollbackCmd = &cobra.Command{
	Use:   "rollback <version>",
	Short: "Restore an earlier prompt version",
	Args:  cobra.ExactArgs(1),
	RunE:  runPromptsRollback,
}

var promptsResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete a prompt and its history",
	RunE:  runPromptsReset,
}

var promptsImproveCmd = &cobra.Command{
	Use:   "improve",
	Short: "Ask the reasoning model for prompt improvement suggestions",
	RunE:  runPromptsImprove,
}

func init() {
	promptsCmd.PersistentFlags().StringVar(&promptKey, "key", "", "Prompt key (default: the active agent set)")
	promptsCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "text", "Output format: text, json or yaml")

	promptsListCmd.Flags().String("status", "", "Only list prompts with this status (draft, evolving, curated)")
	promptsCurateCmd.Flags().String("curator", "human", "Name recorded as curator")
	promptsCurateCmd.Flags().String("notes", "", "Curation notes")
	promptsCurateCmd.Flags().String("file", "", "Replace the prompt text with this file")
	promptsResetCmd.Flags().Bool("yes", false, "Confirm deletion")

	promptsCmd.AddCommand(promptsListCmd)
	promptsCmd.AddCommand(promptsShowCmd)
	promptsCmd.AddCommand(promptsCurateCmd)
	promptsCmd.AddCommand(promptsRollbackCmd)
	promptsCmd.AddCommand(promptsResetCmd)
	promptsCmd.AddCommand(promptsImproveCmd)
}

// openPrompts builds the app without transports and resolves the target key.
func openPrompts() (*app.App, string, error) {
	cfg.Telegram.Enabled = false
	cfg.Server.Enabled = false
	a, err := app.New(cfg)
	if err != nil {
		return nil, "", err
	}
	key := promptKey
	if key == "" {
		key = a.Orchestrator().Key()
	}
	return a, key, nil
}

func commandContext() (context.Context, context.CancelFunc) {
	ctx, stop := signalContext()
	ctx, cancel := context.WithTimeout(ctx, 3*time.Minute)
	return ctx, func() {
		cancel()
		stop()
	}
}

func runPromptsList(cmd *cobra.Command, args []string) error {
	a, _, err := openPrompts()
	if err != nil {
		return err
	}
	defer a.Close()
	ctx, cancel := commandContext()
	defer cancel()

	var filter []models.PromptStatus
	if s, _ := cmd.Flags().GetString("status"); s != "" {
		st := models.PromptStatus(strings.ToLower(s))
		if !st.Persisted() {
			return fmt.Errorf("status must be one of: draft, evolving, curated")
		}
		filter = append(filter, st)
	}
	entries, err := a.Prompts().List(ctx, filter...)
	if err != nil {
		return err
	}
	if outputFormat != "text" {
		return render(cmd.OutOrStdout(), entries)
	}

	if len(entries) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No prompts stored.")
		return nil
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tSTATUS\tVERSION\tRUNS\tGOOD\tAVG CONF\tUPDATED")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%.2f\t%s\n",
			e.Key, e.Status, e.Version, e.Performance.Runs, e.Performance.GoodRuns,
			e.Performance.AvgConfidence, e.UpdatedAt.Format(time.RFC3339))
	}
	return w.Flush()
}

func runPromptsShow(cmd *cobra.Command, args []string) error {
	a, key, err := openPrompts()
	if err != nil {
		return err
	}
	defer a.Close()
	ctx, cancel := commandContext()
	defer cancel()

	entry, err := a.Prompts().Get(ctx, key)
	if err != nil {
		return err
	}
	if outputFormat != "text" {
		return render(cmd.OutOrStdout(), entry)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Key:       %s\n", entry.Key)
	fmt.Fprintf(out, "Status:    %s (v%d)\n", entry.Status, entry.Version)
	fmt.Fprintf(out, "Generated: %s\n", entry.GeneratedBy)
	if entry.CuratedBy != "" {
		fmt.Fprintf(out, "Curated:   %s\n", entry.CuratedBy)
	}
	health := orchestrator.Health(entry)
	fmt.Fprintf(out, "Runs:      %d (good %d, avg confidence %.2f, health %s)\n",
		entry.Performance.Runs, entry.Performance.GoodRuns, entry.Performance.AvgConfidence, health.Grade)
	for _, h := range entry.History {
		fmt.Fprintf(out, "History:   v%d %s %s\n", h.Version, h.Status, h.SavedAt.Format(time.RFC3339))
	}
	fmt.Fprintf(out, "\n%s\n", entry.Text)
	return nil
}

func runPromptsCurate(cmd *cobra.Command, args []string) error {
	curator, _ := cmd.Flags().GetString("curator")
	notes, _ := cmd.Flags().GetString("notes")
	file, _ := cmd.Flags().GetString("file")

	var edited string
	if file != "" {
		var data []byte
		var err error
		if file == "-" {
			data, err = io.ReadAll(cmd.InOrStdin())
		} else {
			data, err = os.ReadFile(file)
		}
		if err != nil {
			return fmt.Errorf("failed to read prompt text: %w", err)
		}
		edited = string(data)
	}

	a, key, err := openPrompts()
	if err != nil {
		return err
	}
	defer a.Close()
	ctx, cancel := commandContext()
	defer cancel()

	entry, err := a.Prompts().Curate(ctx, key, prompts.CurateRequest{
		Curator:    curator,
		Notes:      notes,
		EditedText: edited,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Curated %s at v%d by %s\n", entry.Key, entry.Version, entry.CuratedBy)
	return nil
}

func runPromptsRollback(cmd *cobra.Command, args []string) error {
	version, err := strconv.Atoi(args[0])
	if err != nil || version < 1 {
		return fmt.Errorf("version must be a positive integer: %q", args[0])
	}

	a, key, err := openPrompts()
	if err != nil {
		return err
	}
	defer a.Close()
	ctx, cancel := commandContext()
	defer cancel()

	entry, err := a.Prompts().Rollback(ctx, key, version)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Rolled %s back to v%d, now v%d (%s)\n", entry.Key, version, entry.Version, entry.Status)
	return nil
}

func runPromptsReset(cmd *cobra.Command, args []string) error {
	if yes, _ := cmd.Flags().GetBool("yes"); !yes {
		return fmt.Errorf("reset deletes the prompt and its history; pass --yes to confirm")
	}

	a, key, err := openPrompts()
	if err != nil {
		return err
	}
	defer a.Close()
	ctx, cancel := commandContext()
	defer cancel()

	deleted, err := a.Prompts().Reset(ctx, key)
	if err != nil {
		return err
	}
	if !deleted {
		fmt.Fprintf(cmd.OutOrStdout(), "No prompt stored for %s\n", key)
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s. The next synthesis run bootstraps a new prompt.\n", key)
	return nil
}

func runPromptsImprove(cmd *cobra.Command, args []string) error {
	if promptKey != "" {
		return fmt.Errorf("improve reviews the active prompt only; drop --key")
	}
	a, _, err := openPrompts()
	if err != nil {
		return err
	}
	defer a.Close()
	ctx, cancel := commandContext()
	defer cancel()

	suggestions, err := a.Orchestrator().SuggestImprovements(ctx)
	if err != nil {
		return err
	}
	if outputFormat == "text" {
		outputFormat = "yaml"
	}
	return render(cmd.OutOrStdout(), suggestions)
}

// render writes v as JSON or YAML according to --output.
func render(w io.Writer, v any) error {
	switch outputFormat {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	}
	return fmt.Errorf("unknown output format %q (want text, json or yaml)", outputFormat)
}
