package types

// ChatRequest is the body of POST /api/chat. GET /api/chat carries the same
// field as the "prompt" query parameter.
type ChatRequest struct {
	// Assigned by the server; echoed in the X-Generation-ID header.
	ID string `json:"-"`
	// Prompt text handed to the model verbatim. An empty prompt is valid.
	// example: Tell me a joke.
	Prompt string `json:"prompt" example:"Tell me a joke."`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: missing prompt parameter
	Error string `json:"error" example:"missing prompt parameter"`
	// HTTP status code.
	// example: 400
	Code int `json:"code" example:"400"`
}

// QueueStatus describes one bounded queue.
type QueueStatus struct {
	// Items currently buffered.
	// example: 1
	Len int `json:"len" example:"1"`
	// Maximum items before producers block.
	// example: 3
	Cap int `json:"cap" example:"3"`
	// True once shutdown closed the queue.
	Closed bool `json:"closed"`
}

// GateStatus describes the session gate.
type GateStatus struct {
	// Whether a request currently holds the gate.
	Held bool `json:"held"`
	// Sequence number of the holder, when held.
	// example: 7
	HolderSeq uint64 `json:"holder_seq,omitempty" example:"7"`
	// Requests in line behind the holder.
	// example: 2
	Waiting int `json:"waiting" example:"2"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	// Overall state: starting, ready or closed.
	// example: ready
	State string `json:"state" example:"ready"`
	// Engine backend in use.
	// example: llama-server
	Engine string `json:"engine" example:"llama-server"`
	// Prompt queue between handlers and the worker.
	Inbound QueueStatus `json:"inbound"`
	// Fragment queue between the worker and the gate holder.
	Outbound QueueStatus `json:"outbound"`
	// Session gate.
	Gate GateStatus `json:"gate"`
	// Prompts admitted since start.
	// example: 42
	AdmittedTotal uint64 `json:"admitted_total" example:"42"`
	// Generations finished by the worker, successful or not.
	// example: 41
	GenerationsTotal uint64 `json:"generations_total" example:"41"`
	// Generations that ended in an engine error.
	// example: 1
	FailedTotal uint64 `json:"failed_total" example:"1"`
	// Last generation error observed, if any.
	LastError string `json:"last_error,omitempty"`
	// Uptime of the server in seconds.
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
	// Server time in unix seconds.
	// example: 1700000000
	ServerTimeUnix int64 `json:"server_time_unix" example:"1700000000"`
	// Recently finished generations, newest first.
	Recent []GenerationSummary `json:"recent,omitempty"`
}
