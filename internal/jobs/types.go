package jobs

const (
	TaskPurgeWorkspace  = "workspace:purge"
	TaskSweepWorkspaces = "workspace:sweep"
)

// PurgePayload asks the worker to remove one run directory that the bot
// could not delete itself.
type PurgePayload struct {
	UserID int64  `json:"user_id"`
	RunID  string `json:"run_id"`
	Path   string `json:"path"` // absolute, must live under the data dir
}

// SweepPayload removes run directories older than MaxAgeSec.
type SweepPayload struct {
	MaxAgeSec int64 `json:"max_age_s"`
}
