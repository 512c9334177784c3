package main

import (
	"encoding/json"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/martinemde/conductor/runlog"
)

func runsCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded sessions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := runlog.Open(a.cfg.RunLog.Path)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			sessions, err := store.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			printf(tw, "ID\tPROFILE\tSTATUS\tROUNDS\tARTIFACTS\tSTARTED\tGOAL\n")
			for _, s := range sessions {
				printf(tw, "%s\t%s\t%s\t%d\t%d\t%s\t%s\n", s.ID, s.Profile, s.Status, s.Rounds, len(s.Artifacts),
					s.StartedAt.Local().Format(time.DateTime), firstLine(s.Goal))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "show at most N sessions (0 for all)")
	cmd.AddCommand(runsShowCmd(a))
	return cmd
}

func runsShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Print one recorded session and its calls as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := runlog.Open(a.cfg.RunLog.Path)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			sess, calls, err := store.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(struct {
				runlog.Session
				Calls []runlog.Call `json:"calls"`
			}{sess, calls})
		},
	}
}

const maxColumn = 60

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if r := []rune(s); len(r) > maxColumn {
		s = string(r[:maxColumn-3]) + "..."
	}
	return s
}
