package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/martinemde/conductor/capability"
	"github.com/martinemde/conductor/engine"
	"github.com/martinemde/conductor/logging"
	"github.com/martinemde/conductor/runlog"
)

func runCmd(a *app) *cobra.Command {
	var (
		goalPath string
		profile  string
		rawLog   bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one session and print its outcome as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			goal, err := readGoal(goalPath, cmd.InOrStdin())
			if err != nil {
				return err
			}
			if profile == "" {
				profile = a.cfg.Profile
			}
			p, err := engine.ProfileByName(profile)
			if err != nil {
				return err
			}
			p = applyModel(p, a.cfg.Model)

			model, err := buildModel(a.cfg.Model, p)
			if err != nil {
				return err
			}
			hub, err := buildHub(a.cfg)
			if err != nil {
				return err
			}
			defer func() { _ = hub.Close() }()
			log.Info().Str("profile", p.Name).Strs("providers", hub.ProviderIDs()).Msg("starting session")

			ecfg := a.cfg.Engine()
			ecfg.IncludeRawLog = ecfg.IncludeRawLog || rawLog

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			out, err := runSession(ctx, p, model, hub, ecfg, goal)
			if err != nil {
				return err
			}
			if a.cfg.RunLog.Enabled {
				recordOutcome(ctx, a.cfg.RunLog.Path, goal, out)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
	cmd.Flags().StringVar(&goalPath, "goal", "", "file holding the goal, or - for stdin")
	cmd.Flags().StringVar(&profile, "profile", "", "session profile: "+strings.Join(engine.ProfileNames(), ", "))
	cmd.Flags().BoolVar(&rawLog, "raw-log", false, "include every capability call in the outcome")
	_ = cmd.MarkFlagRequired("goal")
	return cmd
}

func runSession(ctx context.Context, p engine.Profile, model engine.Model, provider capability.Provider, cfg engine.Config, goal string) (engine.Outcome, error) {
	sess := engine.NewSession(p, model, provider, engine.WithConfig(cfg), engine.WithLogger(logging.Component("engine")))

	done := make(chan struct{})
	go func() {
		defer close(done)
		logger := logging.Component("events")
		for ev := range sess.Events() {
			logger.Debug().Str("kind", string(ev.Kind)).Int("round", ev.Round).Interface("data", ev.Data).Msg("event")
		}
	}()

	out, err := sess.Run(ctx, goal)
	sess.Close()
	<-done
	if err != nil {
		return engine.Outcome{}, fmt.Errorf("session %s: %w", sess.ID(), err)
	}
	return out, nil
}

// recordOutcome writes to the run log. A failure is logged and does not
// change the outcome.
func recordOutcome(ctx context.Context, path, goal string, out engine.Outcome) {
	store, err := runlog.Open(path)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("run log unavailable")
		return
	}
	defer func() { _ = store.Close() }()
	if err := store.Record(context.WithoutCancel(ctx), goal, out); err != nil {
		log.Warn().Err(err).Str("session", out.SessionID).Msg("record session")
	}
}

func readGoal(path string, stdin io.Reader) (string, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("read goal: %w", err)
	}
	goal := strings.TrimSpace(string(data))
	if goal == "" {
		return "", fmt.Errorf("goal is empty")
	}
	return goal, nil
}
