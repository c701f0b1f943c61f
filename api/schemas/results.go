package schemas

// DataPaths points at the artifacts persisted for an extraction step.
type DataPaths struct {
	JSON string `json:"json,omitempty"`
	CSV  string `json:"csv,omitempty"`
}

// StepResult is the outcome of executing one intent. The engine emits exactly
// one StepResult per input intent, in input order; a failed step never aborts
// the steps after it.
type StepResult struct {
	Intent     Intent        `json:"intent"`
	OK         bool          `json:"ok"`
	Error      string        `json:"error,omitempty"`
	Data       any           `json:"data,omitempty"`
	Screenshot string        `json:"screenshot,omitempty"`
	DataPaths  *DataPaths    `json:"data_paths,omitempty"`
	Analysis   *PageAnalysis `json:"analysis,omitempty"`
}

// ExecuteRequest asks the service to run an ordered intent list against a
// session. A missing SessionID provisions a new session.
type ExecuteRequest struct {
	SessionID string   `json:"session_id,omitempty"`
	Intents   []Intent `json:"intents"`
}

// ExecuteArtifacts describes where a session's artifacts live on disk.
type ExecuteArtifacts struct {
	Dir string `json:"dir"`
}

// ExecuteResponse carries the per-step ledger and the session that ran it.
type ExecuteResponse struct {
	SessionID string           `json:"session_id"`
	Results   []StepResult     `json:"results"`
	Artifacts ExecuteArtifacts `json:"artifacts"`
}

// CloseRequest tears down a session. Unknown ids are a no-op success.
type CloseRequest struct {
	SessionID string `json:"session_id"`
}

// CloseResponse acknowledges a close.
type CloseResponse struct {
	OK bool `json:"ok"`
}

// UploadResponse returns the opaque reference for a registered file, usable
// later as args.fileRef in an upload intent.
type UploadResponse struct {
	FileRef string `json:"file_ref"`
}

// PlanRequest asks the planner to turn a transcript plus running context into
// a validated plan.
type PlanRequest struct {
	Transcript string         `json:"transcript"`
	Context    map[string]any `json:"context,omitempty"`
}
