package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"aide/internal/session"
)

var sessionsTokens bool

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect stored conversation sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions in the workspace, most recently updated first",
	RunE:  runSessionsList,
}

func init() {
	sessionsListCmd.Flags().BoolVar(&sessionsTokens, "tokens", false, "Estimate token cost of each session's history")
	sessionsCmd.AddCommand(sessionsListCmd)
}

func runSessionsList(cmd *cobra.Command, args []string) error {
	mgr, err := session.NewManager(
		cfg.SessionsDir(),
		cfg.Session.MaxCacheSize,
		cfg.Session.MaxMessages,
		logger.Named("session"),
		session.WithLegacyDir(cfg.LegacySessionsDir()),
	)
	if err != nil {
		return err
	}

	summaries := mgr.ListSessions()
	if len(summaries) == 0 {
		fmt.Println("no sessions")
		return nil
	}

	counter := session.DefaultTokenCounter()
	for _, s := range summaries {
		line := fmt.Sprintf("%-30s  updated %s", s.Key, s.UpdatedAt)
		if sessionsTokens {
			sess := mgr.GetOrCreate(s.Key)
			tokens := sess.HistoryTokens(counter, cfg.Session.MaxMessages)
			suffix := ""
			if !counter.IsPrecise() {
				suffix = " (approx)"
			}
			line += fmt.Sprintf("  ~%d tokens%s", tokens, suffix)
		}
		fmt.Println(line)
	}
	return nil
}
