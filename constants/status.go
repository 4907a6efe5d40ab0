package constants

// RunStatus is the canonical status for rows in stage_runs.
type RunStatus string

// Stable values (store these exact strings in DB).
const (
	RunStatusRunning   RunStatus = "RUNNING"   // stage in progress
	RunStatusSucceeded RunStatus = "SUCCEEDED" // every item written (errors included)
	RunStatusSkipped   RunStatus = "SKIPPED"   // nothing left to do
	RunStatusFailed    RunStatus = "FAILED"    // aborted by a fatal error
)

// Stage names, used for logging, progress and the run journal.
const (
	StageTranscribe  = "transcribe"
	StageSummarize   = "summarize"
	StageScreenshots = "screenshots"
	StageAnalyze     = "analyze"
	StageMerge       = "merge"
	StageExport      = "export"
)
