package models

// OutcomeStatus is the script-level result of one execution.
type OutcomeStatus string

const (
	OutcomeSuccess OutcomeStatus = "success"
	OutcomeError   OutcomeStatus = "error"
)

// ExecutionRequest describes a single script run. It only exists for the
// duration of one call; nothing about it is retained afterwards.
type ExecutionRequest struct {
	ScriptName    string     `json:"script_name"`
	ScriptContent string     `json:"script_content,omitempty"`
	ScriptType    string     `json:"script_type,omitempty"` // optional override of suffix inference
	Parameters    Parameters `json:"parameters,omitempty"`
	ExecutionID   string     `json:"execution_id"` // opaque, caller supplied
}

// ExecutionOutcome is the structured result of one script run.
//
// Output is nil when the run never produced a usable stdout (timeout or an
// internal fault) and points to the captured text otherwise, even if empty.
// Error is set whenever Status is OutcomeError.
type ExecutionOutcome struct {
	ExecutionID    string        `json:"execution_id"`
	Status         OutcomeStatus `json:"status"`
	Output         *string       `json:"output,omitempty"`
	Error          string        `json:"error,omitempty"`
	DurationMillis int64         `json:"duration"`
}

// Succeeded reports whether the script exited with status zero.
func (o ExecutionOutcome) Succeeded() bool {
	return o.Status == OutcomeSuccess
}

// Stdout returns the captured output or an empty string when there is none.
func (o ExecutionOutcome) Stdout() string {
	if o.Output == nil {
		return ""
	}
	return *o.Output
}
