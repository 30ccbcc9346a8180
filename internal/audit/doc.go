// Package audit implements async event dispatching for security-relevant operations.
//
// # Components
//
//   - [Sink]: interface for event consumers (channel, JSON writer, slog, Sentry, fan-out).
//   - [Dispatcher]: buffered async relay with drop-if-full or block-if-full semantics.
//   - [Event]: structured audit record with id, timestamp, type, user, session, IP, metadata.
//
// # Architecture boundaries
//
// This package owns event buffering and sink delivery. It does not decide which
// events to emit; the engine does.
//
// # What this package must NOT do
//
//   - Filter or suppress events based on business logic ([SentrySink] forwards
//     only security events, which is a delivery choice, not a policy one).
//   - Import shopauth or any sibling internal package.
//   - Carry secrets: passwords, tokens, and hashes never enter an [Event].
package audit
