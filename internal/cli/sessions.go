package cli

import (
	"context"
	"fmt"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/harun/fablebot/internal/config"
	"github.com/harun/fablebot/internal/observability"
	"github.com/harun/fablebot/pkg/session"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect and reset stored game sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored sessions",
	Args:  cobra.NoArgs,
	RunE:  runSessionsList,
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <session>",
	Short: "Print a session transcript",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsShow,
}

var sessionsResetCmd = &cobra.Command{
	Use:   "reset <session>",
	Short: "Delete a session so the next message starts a new adventure",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsReset,
}

var sessionsJournalCmd = &cobra.Command{
	Use:   "journal <session>",
	Short: "Print the journaled dice rolls, resets and blocked messages of a session",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsJournal,
}

func init() {
	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsShowCmd)
	sessionsCmd.AddCommand(sessionsResetCmd)
	sessionsCmd.AddCommand(sessionsJournalCmd)
	rootCmd.AddCommand(sessionsCmd)
}

func openStore() (*config.Config, session.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	store, err := session.Open(session.Config{
		Driver: cfg.Storage.Driver,
		Dir:    cfg.Storage.Dir,
		Path:   cfg.Storage.Path,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open session store: %w", err)
	}
	return cfg, store, nil
}

func runSessionsList(cmd *cobra.Command, args []string) error {
	_, store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	keys, err := store.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(keys) == 0 {
		fmt.Fprintln(out, "No sessions")
		return nil
	}

	infos := make([]session.Info, 0, len(keys))
	for _, key := range keys {
		info, err := store.Info(ctx, key)
		if err != nil {
			return fmt.Errorf("failed to read session %s: %w", key, err)
		}
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].UpdatedAt.After(infos[j].UpdatedAt)
	})

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SESSION\tMESSAGES\tUPDATED")
	for _, info := range infos {
		fmt.Fprintf(w, "%s\t%d\t%s\n", info.SessionKey, info.Messages, info.UpdatedAt.Format(time.RFC3339))
	}
	return w.Flush()
}

func runSessionsShow(cmd *cobra.Command, args []string) error {
	_, store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	t, err := store.Load(ctx, args[0])
	if err != nil {
		return fmt.Errorf("failed to load session %s: %w", args[0], err)
	}

	out := cmd.OutOrStdout()
	if t.Len() == 0 {
		fmt.Fprintf(out, "Session %s is empty\n", args[0])
		return nil
	}
	for _, msg := range t.Current() {
		fmt.Fprintf(out, "[%s] %s\n", msg.Role, msg.Content)
	}
	return nil
}

func runSessionsReset(cmd *cobra.Command, args []string) error {
	cfg, store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if err := store.Delete(ctx, args[0]); err != nil {
		return fmt.Errorf("failed to reset session %s: %w", args[0], err)
	}

	if cfg.Observability.Journal != "" {
		if journal, err := observability.OpenJournal(cfg.Observability.Journal); err == nil {
			journal.Record(ctx, args[0], observability.JournalSessionReset, observability.OutcomeOK, map[string]interface{}{"by": "cli"})
			_ = journal.Close()
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Session %s reset\n", args[0])
	return nil
}

func runSessionsJournal(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if cfg.Observability.Journal == "" {
		return fmt.Errorf("no game journal configured")
	}

	entries, err := observability.ReadJournal(cfg.Observability.Journal, args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(entries) == 0 {
		fmt.Fprintf(out, "No journal entries for session %s\n", args[0])
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tACTION\tOUTCOME\tMESSAGE")
	for _, e := range entries {
		msg := e.MessageID
		if msg == "" {
			msg = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.Time, e.Action, e.Outcome, msg)
	}
	return w.Flush()
}
