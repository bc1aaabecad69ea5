package types

// GenerationSummary records one prompt's trip through the bridge. It is kept
// for a short while after completion and served by GET /api/generations/{id}.
type GenerationSummary struct {
	// Server-assigned generation ID.
	// example: 1b4e28ba-2fa1-11d2-883f-0016d3cca427
	ID string `json:"id" example:"1b4e28ba-2fa1-11d2-883f-0016d3cca427"`
	// Admission sequence number.
	// example: 7
	Seq uint64 `json:"seq" example:"7"`
	// Last known request state (prompt_queued, awaiting_gate, streaming,
	// completed, aborted).
	// example: completed
	State string `json:"state" example:"completed"`
	// Length of the prompt in bytes.
	// example: 15
	PromptBytes int `json:"prompt_bytes" example:"15"`
	// Fragments produced by the worker.
	// example: 12
	Fragments int `json:"fragments" example:"12"`
	// Bytes delivered to the client.
	// example: 230
	BytesStreamed int `json:"bytes_streamed" example:"230"`
	// Engine error, if the generation failed.
	Error string `json:"error,omitempty"`
	// Admission time (unix milliseconds).
	// example: 1700000000000
	QueuedUnixMs int64 `json:"queued_unix_ms" example:"1700000000000"`
	// Time the request obtained the gate (unix milliseconds).
	StartedUnixMs int64 `json:"started_unix_ms,omitempty"`
	// Time the stream ended (unix milliseconds).
	FinishedUnixMs int64 `json:"finished_unix_ms,omitempty"`
}
