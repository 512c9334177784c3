// Package engine drives a language model through bounded rounds of
// "propose a call, execute it, observe the result" against a catalogue of
// capabilities until the model answers or a guard stops the session.
//
// # Architecture
//
// A round flows through these pieces, leaf-first:
//
//   - Parser: turns a raw model reply into Calls, an Answer, or a
//     truncation signal. Tolerates comments, prose around JSON, several
//     concatenated objects and truncated file writes.
//   - Resolver: maps a requested name onto a catalogue entry by exact
//     name, normalized name, or emulation through another capability.
//   - Guard and Ledger: track call fingerprints, per-path writes and
//     commands already run; decide when a call is a wasteful repeat and
//     when the session has stalled.
//   - Coverage: blocks packaging and publish calls until every file in the
//     goal's manifest has been written.
//   - Recovery: a small table of pattern-matched remediations (transient
//     connection retries, installing a missing archive tool, a scripted
//     archive fallback, reading an archive after a duplicate build).
//   - Session: the round controller. It rebuilds a compact digest prompt
//     every round from the ledgers instead of replaying history.
//   - Finalize: folds the ledgers and the model's answer into an Outcome.
//
// # Quick Start
//
//	hub := capability.NewHub(logger)
//	hub.Register("local", capability.NewWorkspaceProvider(ws))
//
//	sess := engine.NewSession(engine.CoderProfile(), model, hub,
//		engine.WithLogger(logger))
//	outcome, err := sess.Run(ctx, goal)
//
// Run returns an error only when the model query itself fails or the
// context is cancelled; every other failure ends up in the Outcome.
package engine
