package domain

// Stage identifies one of the four pipeline stages.
type Stage string

// Stage names appear in agent events, stage timings, and persisted metrics.
const (
	StagePlanner   Stage = "planner"
	StageExecutor  Stage = "executor"
	StageValidator Stage = "validator"
	StageComposer  Stage = "composer"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ToolFind is the name of the bounded history query issued by the Executor.
const ToolFind = "db.find"

// Query result statuses, as reported in the find envelope and in tool
// call logs.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// CollectionMessages is the only collection the Executor queries.
const CollectionMessages = "messages"
