// Package bridge connects a single blocking generation engine to many
// concurrent HTTP clients. It is structured into small files by concern:
//
//   - queue.go: bounded FIFO Queue used for the inbound (prompt) and
//     outbound (fragment) channels.
//   - item.go: Prompt and the tagged Item (Fragment | Terminal).
//   - gate.go: FIFO-fair Session Gate serializing outbound consumption.
//   - worker.go: Generation Worker owning the engine on a locked OS thread.
//   - responder.go: Service.Stream, the per-request streaming responder.
//   - state.go: per-request state machine.
//   - service.go: Service wiring, lifecycle, status.
//   - recent.go: TTL registry of recent generations.
//   - events.go, metrics.go, errors.go: ambient concerns.
//
// Admission assigns each request a sequence number, pushes its prompt onto
// the inbound queue and joins the gate line in one step, so gate order,
// inbound order and worker order are the same. Every outbound item carries
// the sequence number of its generation; a gate holder discards items of
// earlier generations whose clients left before their terminal arrived.
package bridge
