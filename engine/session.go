package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/martinemde/conductor/capability"
)

// Option configures a Session.
type Option func(*Session)

// WithConfig replaces the default policy. Zero thresholds fall back to
// their defaults.
func WithConfig(cfg Config) Option {
	return func(s *Session) { s.cfg = cfg }
}

// WithLogger sets the session logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Session) { s.logger = logger }
}

// WithEmulations replaces the emulation table.
func WithEmulations(emulations []Emulation) Option {
	return func(s *Session) { s.emulations = emulations }
}

// WithSessionID overrides the generated session ID.
func WithSessionID(id string) Option {
	return func(s *Session) { s.id = id }
}

// WithEventBuffer sets the event channel capacity.
func WithEventBuffer(n int) Option {
	return func(s *Session) { s.eventBuffer = n }
}

// Session runs a profile against a model and a capability provider. Each
// call to Run starts from empty ledgers; sessions share nothing but the
// provider.
type Session struct {
	id          string
	profile     Profile
	model       Model
	provider    capability.Provider
	cfg         Config
	logger      zerolog.Logger
	emulations  []Emulation
	eventBuffer int
	emitter     *EventEmitter

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewSession creates a session. The profile's answer requirements and raw
// log preference apply unless the config already sets them.
func NewSession(profile Profile, model Model, provider capability.Provider, opts ...Option) *Session {
	s := &Session{
		id:       uuid.New().String(),
		profile:  profile,
		model:    model,
		provider: provider,
		cfg:      DefaultConfig(),
		logger:   log.Logger,
		now:      time.Now,
		sleep:    sleepContext,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.cfg = s.cfg.withDefaults()
	if s.cfg.RequiredAnswerField == "" {
		s.cfg.RequiredAnswerField = profile.RequiredAnswerField
	}
	s.cfg.IncludeRawLog = s.cfg.IncludeRawLog || profile.IncludeRawLog
	s.logger = s.logger.With().Str("session", s.id).Str("profile", profile.Name).Logger()
	s.emitter = NewEventEmitter(s.id, s.eventBuffer)
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Config returns the effective policy.
func (s *Session) Config() Config { return s.cfg }

// Events returns the event channel for the host application.
func (s *Session) Events() <-chan Event { return s.emitter.Events() }

// Close closes the event channel.
func (s *Session) Close() { s.emitter.Close() }

// Run drives the model until it answers or a guard stops it, and always
// returns an Outcome unless the model query fails or ctx is done.
func (s *Session) Run(ctx context.Context, goal string) (Outcome, error) {
	r := s.newRun(goal)
	s.emitter.Emit(EventSessionStart, 0, map[string]any{"profile": s.profile.Name})
	s.logger.Info().Int("max_rounds", s.cfg.MaxRounds).Int("planned", len(r.coverage.Planned())).Msg("session started")

	out, err := r.execute(ctx)
	if err != nil {
		s.logger.Error().Err(err).Int("round", r.round).Msg("session failed")
		s.emitter.Emit(EventSessionEnd, r.round, map[string]any{"error": err.Error()})
		return Outcome{}, err
	}
	s.logger.Info().Str("status", string(out.Status)).Str("stop_reason", out.StopReason).Int("rounds", out.Rounds).Int("artifacts", len(out.Artifacts)).Msg("session finished")
	s.emitter.Emit(EventSessionEnd, r.round, map[string]any{"status": string(out.Status), "stop_reason": out.StopReason})
	return out, nil
}

// run is the state of one Run call.
type run struct {
	s      *Session
	cfg    Config
	logger zerolog.Logger

	goal      string
	catalogue *capability.Catalogue
	resolver  *Resolver
	ledger    *Ledger
	guard     *Guard
	coverage  *CoverageGate
	parser    Parser

	log       []CallRecord
	fired     map[string]bool
	round     int
	idle      int
	startedAt time.Time
}

func (s *Session) newRun(goal string) *run {
	r := &run{
		s:         s,
		cfg:       s.cfg,
		logger:    s.logger,
		goal:      s.profile.Goal(goal),
		catalogue: capability.NewCatalogue(nil),
		ledger:    NewLedger(),
		fired:     make(map[string]bool),
		startedAt: s.now(),
	}
	r.resolver = NewResolver(r.catalogue, r.cfg.Vocabulary, s.emulations)
	r.guard = NewGuard(r.ledger, r.cfg)
	r.coverage = NewCoverageGate(PlannedArtifacts(goal), r.ledger, r.cfg.Vocabulary)
	r.parser = Parser{
		Vocabulary: r.cfg.Vocabulary,
		Known: func(name string) bool {
			_, ok := r.resolver.lookup(name)
			return ok
		},
		Written: r.ledger.LastContent,
	}
	return r
}

func (r *run) emit(kind EventKind, data map[string]any) { r.s.emitter.Emit(kind, r.round, data) }

func (r *run) record(rec CallRecord) { r.log = append(r.log, rec) }

func (r *run) execute(ctx context.Context) (Outcome, error) {
	if out, stop, err := r.loadCatalogue(ctx); err != nil || stop {
		return out, err
	}

	p := r.s.profile
	opts := QueryOptions{
		System:      BuildSystemPrompt(p.Instructions, r.catalogue.Entries(), p.AnswerSchema, r.s.now()),
		Model:       p.Model,
		Provider:    p.Provider,
		Temperature: p.Temperature,
		MaxTokens:   p.MaxTokens,
		Schema:      replySchema,
		SchemaName:  "reply",
	}

	prompt := r.goal
	for r.round = 1; r.round <= r.cfg.MaxRounds; r.round++ {
		r.logger.Info().Int("round", r.round).Msg("querying model")
		r.emit(EventRoundStart, nil)

		reply, err := r.s.model.Query(ctx, prompt, opts)
		if err != nil {
			return Outcome{}, fmt.Errorf("round %d: model query: %w", r.round, err)
		}

		parsed := r.parser.Parse(reply)
		if parsed.Truncated {
			r.logger.Warn().Int("round", r.round).Msg("truncated reply; asking for a resend")
			r.emit(EventDirective, map[string]any{"reason": "truncated"})
			prompt = resendDirective
			continue
		}

		if len(parsed.Calls) == 0 {
			field := r.cfg.RequiredAnswerField
			if field != "" && strings.TrimSpace(parsed.Answer.Field(field)) == "" {
				r.logger.Warn().Int("round", r.round).Str("field", field).Msg("answer missing required field")
				r.emit(EventDirective, map[string]any{"reason": "missing_field", "field": field})
				prompt = missingFieldDirective(field)
				continue
			}
			return r.finish(parsed.Answer, ""), nil
		}
		if parsed.Salvaged {
			r.logger.Info().Int("round", r.round).Str("tool", parsed.Calls[0].Name).Msg("salvaged truncated write")
		}

		identities := make([]Call, len(parsed.Calls))
		for i, c := range parsed.Calls {
			identities[i] = r.identity(c)
		}
		if c, bad := r.guard.RepeatViolation(identities); bad {
			reason := fmt.Sprintf("repeated identical call to %s (%d prior executions)", c.Name, r.ledger.CallCount(c))
			return r.finish(&Answer{Text: "Stopped: the model kept repeating an identical call. Review the call log and continue manually."}, reason), nil
		}

		rs := newRoundState(r.round)
		for _, call := range parsed.Calls {
			stop, err := r.dispatch(ctx, rs, call)
			if err != nil {
				return Outcome{}, err
			}
			if stop != nil {
				return r.finish(stop.answer, stop.reason), nil
			}
		}

		if rs.tally.Progress {
			r.idle = 0
		} else {
			r.idle++
		}
		if r.guard.Stalled(rs.tally, r.idle) {
			reason := fmt.Sprintf("no progress: %d idle round(s), %d duplicate write(s), %d duplicate command(s) this round",
				r.idle, rs.tally.DuplicateWrites, rs.tally.DuplicateCommands)
			return r.finish(&Answer{Text: "Aborting after rounds of duplicate calls with no new progress. Review the skipped actions and continue manually."}, reason), nil
		}
		prompt = r.digest(rs)
	}

	r.round = r.cfg.MaxRounds
	return r.finish(&Answer{Text: "Exceeded the maximum number of rounds. Review the results."},
		fmt.Sprintf("max rounds reached (%d)", r.cfg.MaxRounds)), nil
}

// loadCatalogue fetches the capability list and checks the profile's
// preconditions. stop reports a terminal outcome.
func (r *run) loadCatalogue(ctx context.Context) (Outcome, bool, error) {
	required := r.s.profile.RequiredCapabilities
	entries, err := r.s.provider.ListCapabilities(ctx)
	if ctx.Err() != nil {
		return Outcome{}, true, ctx.Err()
	}
	if err != nil || len(entries) == 0 {
		text := "No capabilities available."
		if len(required) > 0 {
			text += " Required capabilities: " + strings.Join(required, ", ") + "."
		}
		if err != nil {
			r.logger.Error().Err(err).Msg("list capabilities")
			r.ledger.RecordError("capability directory: " + err.Error())
		}
		return r.finish(&Answer{Text: text}, "no capabilities available"), true, nil
	}
	r.catalogue.Replace(entries)
	r.logger.Debug().Int("capabilities", len(entries)).Msg("catalogue loaded")

	if missing := r.catalogue.Missing(required); len(missing) > 0 {
		msg := "Required capabilities not available: " + strings.Join(missing, ", ")
		r.ledger.RecordError(msg)
		return r.finish(&Answer{Text: msg + "."}, "required capabilities missing"), true, nil
	}
	return Outcome{}, false, nil
}

// identity is the form of a call used for repetition counting: the
// requested name with arguments coerced to the nested shape.
func (r *run) identity(c Call) Call {
	return Call{Name: c.Name, Args: CoerceArgs(r.cfg.Vocabulary.Kind(c.Name), cloneArgs(c.Args))}
}

type stopSignal struct {
	answer *Answer
	reason string
}

// dispatch resolves, guards, executes and records one call.
func (r *run) dispatch(ctx context.Context, rs *roundState, call Call) (*stopSignal, error) {
	identity := r.identity(call)
	if r.cfg.Vocabulary.Kind(call.Name) == KindInit && r.ledger.CallCount(identity) >= 1 {
		r.skip(rs, call.Name, identity.Args, map[string]any{"note": NoteDuplicateInit})
		return nil, nil
	}

	res, ok, err := r.resolve(ctx, call.Name)
	if err != nil {
		return nil, err
	}
	if !ok {
		names := r.catalogue.Names()
		r.logger.Warn().Str("tool", call.Name).Strs("available", names).Msg("capability not available")
		return &stopSignal{
			answer: &Answer{Text: fmt.Sprintf("Capability '%s' is not available. Available capabilities: %s", call.Name, strings.Join(names, ", "))},
			reason: fmt.Sprintf("capability %s not available", call.Name),
		}, nil
	}

	if res.Emulated {
		return nil, r.runEmulated(ctx, rs, call, identity, res)
	}

	entry := res.Entry
	kind := r.cfg.Vocabulary.Kind(entry.Name)
	args := CoerceArgs(kind, cloneArgs(call.Args))

	if cov, blocked := r.coverage.Blocked(entry.Name, args); blocked {
		r.skip(rs, entry.Name, args, map[string]any{"note": NoteCoverageBlocked, "coverage": cov})
		return nil, nil
	}

	var (
		cmd  string
		path string
		text string
	)
	switch kind {
	case KindExec:
		cmd = commandOf(args)
		if note := r.guard.CheckCommand(cmd); cmd != "" && note != "" {
			rs.tally.DuplicateCommands++
			rs.skipCommand(cmd)
			r.skip(rs, entry.Name, args, map[string]any{"note": note})
			r.readArchiveAfterDuplicate(ctx, rs, cmd)
			return nil, nil
		}
	case KindWrite:
		path = pathOf(args)
		var hasText bool
		text, hasText = textOf(args)
		if normalizePath(path) != "" && hasText {
			if note := r.guard.CheckWrite(path, text); note != "" {
				rs.tally.DuplicateWrites++
				r.ledger.RecordCall(identity)
				r.skip(rs, entry.Name, args, map[string]any{"note": note})
				return nil, nil
			}
		}
	}

	warnings := schemaProblems(entry.ArgumentSchema, args)
	r.logger.Info().Int("round", r.round).Str("tool", entry.Name).Str("locator", entry.Locator).Msg("calling capability")
	r.emit(EventCallStart, map[string]any{"tool": entry.Name, "locator": entry.Locator})

	result, err := r.callWithRetry(ctx, entry, args)
	if errors.Is(err, capability.ErrInvalidLocator) {
		if again, ok, rerr := r.refreshResolve(ctx, call.Name); rerr == nil && ok && !again.Emulated {
			entry = again.Entry
			result, err = r.callWithRetry(ctx, entry, args)
		}
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		msg := err.Error()
		r.logger.Warn().Err(err).Str("tool", entry.Name).Msg("capability call failed")
		r.ledger.RecordError(fmt.Sprintf("%s: %s", entry.Name, msg))
		r.record(CallRecord{Round: r.round, Tool: entry.Name, Locator: entry.Locator, Args: args, Error: msg})
		rs.summarizeError(entry.Name, "", args, msg)
		r.emit(EventCallEnd, map[string]any{"tool": entry.Name, "error": msg})
		return nil, nil
	}

	rs.tally.Progress = true
	r.ledger.RecordCall(identity)
	r.record(CallRecord{Round: r.round, Tool: entry.Name, Locator: entry.Locator, Args: args, Result: result})
	if result.IsError {
		errText := strings.TrimSpace(result.Text())
		if errText == "" {
			errText = "unknown error"
		}
		r.ledger.RecordError(fmt.Sprintf("%s: %s", entry.Name, errText))
	} else {
		switch kind {
		case KindWrite:
			if normalizePath(path) != "" {
				r.ledger.RecordWrite(path, text)
			}
		case KindExec:
			if !r.ledger.RecordCommand(cmd) && cmd != "" {
				rs.skipCommand(cmd)
			}
		}
	}

	rendered := resultJSON(result, kind, r.cfg.ResultCharLimit)
	if len(warnings) > 0 {
		rendered += "\nArgument schema warnings: " + strings.Join(warnings, "; ")
	}
	rs.summarize(entry.Name, "", args, rendered)
	r.emit(EventCallEnd, map[string]any{"tool": entry.Name, "is_error": result.IsError})

	if kind == KindExec {
		r.recoverArchiveTool(ctx, rs, cmd, result)
	}
	return nil, nil
}

// runEmulated executes a call through its stand-in capability.
func (r *run) runEmulated(ctx context.Context, rs *roundState, call, identity Call, res Resolution) error {
	entry := res.Entry
	label := "emulated via " + entry.Name
	r.logger.Info().Int("round", r.round).Str("tool", call.Name).Str("via", entry.Name).Msg("emulating capability")
	r.emit(EventCallStart, map[string]any{"tool": call.Name, "via": entry.Name, "locator": entry.Locator})

	result, err := r.callWithRetry(ctx, entry, res.Args)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		msg := err.Error()
		r.ledger.RecordError(fmt.Sprintf("%s: %s", call.Name, msg))
		r.record(CallRecord{Round: r.round, Tool: call.Name, Locator: entry.Locator, Args: res.Args, Error: msg, Note: label})
		rs.summarizeError(call.Name, label, res.Args, msg)
		r.emit(EventCallEnd, map[string]any{"tool": call.Name, "error": msg})
		return nil
	}
	rs.tally.Progress = true
	r.ledger.RecordCall(identity)
	r.record(CallRecord{Round: r.round, Tool: call.Name, Locator: entry.Locator, Args: res.Args, Result: result, Note: label})
	rs.summarize(call.Name, label, res.Args, resultJSON(result, r.cfg.Vocabulary.Kind(call.Name), r.cfg.ResultCharLimit))
	r.emit(EventCallEnd, map[string]any{"tool": call.Name, "is_error": result.IsError})
	return nil
}

// resolve maps a name onto the catalogue, refreshing the catalogue once
// when the name is unknown or its entry has no usable locator.
func (r *run) resolve(ctx context.Context, name string) (Resolution, bool, error) {
	if res, ok := r.resolver.Resolve(name); ok && res.Entry.Locator != "" {
		return res, true, nil
	}
	r.logger.Warn().Str("tool", name).Msg("unresolved or invalid locator; refreshing catalogue")
	return r.refreshResolve(ctx, name)
}

func (r *run) refreshResolve(ctx context.Context, name string) (Resolution, bool, error) {
	if err := r.refresh(ctx); err != nil {
		if ctx.Err() != nil {
			return Resolution{}, false, ctx.Err()
		}
		r.logger.Warn().Err(err).Msg("catalogue refresh failed")
	}
	res, ok := r.resolver.Resolve(name)
	return res, ok && res.Entry.Locator != "", nil
}

func (r *run) refresh(ctx context.Context) error {
	if rf, ok := r.s.provider.(capability.Refresher); ok {
		if err := rf.Refresh(ctx); err != nil {
			return err
		}
	}
	entries, err := r.s.provider.ListCapabilities(ctx)
	if err != nil {
		return err
	}
	r.catalogue.Replace(entries)
	return nil
}

// skip records a call the guards refused to run.
func (r *run) skip(rs *roundState, tool string, args map[string]any, note map[string]any) {
	n := fmt.Sprint(note["note"])
	r.logger.Info().Int("round", r.round).Str("tool", tool).Str("note", n).Msg("call skipped")
	r.emit(EventCallSkipped, map[string]any{"tool": tool, "note": n})
	r.record(CallRecord{Round: r.round, Tool: tool, Args: args, Note: n, Skipped: true})
	rs.summarizeSkip(tool, args, note)
}

func (r *run) finish(answer *Answer, reason string) Outcome {
	if reason != "" {
		r.logger.Warn().Int("round", r.round).Str("reason", reason).Msg("session stopped early")
	}
	return finalize(finalizeInput{
		sessionID:     r.s.id,
		profile:       r.s.profile.Name,
		answer:        answer,
		stopReason:    reason,
		ledger:        r.ledger,
		rounds:        r.round,
		log:           r.log,
		includeRawLog: r.cfg.IncludeRawLog,
		answerSchema:  r.s.profile.AnswerSchema,
		startedAt:     r.startedAt,
	})
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
