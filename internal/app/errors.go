package app

import "fmt"

// Processing stages a message can fail in.
const (
	StageSummarize  = "summarize"
	StageLookup     = "lookup"
	StageRead       = "read"
	StageWrite      = "write"
	StageCategorize = "categorize"
)

// ProcessError is a per-message failure. It never aborts the batch.
type ProcessError struct {
	Stage     string
	MessageID string
	Err       error
}

func (e *ProcessError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s message %s: %v", e.Stage, e.MessageID, e.Err)
}

func (e *ProcessError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func processError(stage, messageID string, err error) *ProcessError {
	return &ProcessError{
		Stage:     stage,
		MessageID: messageID,
		Err:       err,
	}
}
