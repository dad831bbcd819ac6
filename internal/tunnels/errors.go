package tunnels

import (
	"errors"
	"fmt"

	"grimm.is/portgate/internal/haproxy"
)

// Stage is a step of the per-invocation pipeline.
type Stage string

const (
	StageIdle       Stage = "idle"
	StageLoading    Stage = "loading"
	StageValidating Stage = "validating"
	StageMutating   Stage = "mutating"
	StagePersisting Stage = "persisting"
	StageRendering  Stage = "rendering"
	StageActivating Stage = "activating"
	StageDone       Stage = "done"
)

// OperationError reports which stage of an operation failed.
type OperationError struct {
	Op    string
	Stage Stage
	Err   error
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("%s failed while %s: %v", e.Op, e.Stage, e.Err)
}

func (e *OperationError) Unwrap() error {
	return e.Err
}

// FailedStage returns the pipeline stage recorded in err, or "" when err is
// not an OperationError.
func FailedStage(err error) Stage {
	var opErr *OperationError
	if errors.As(err, &opErr) {
		return opErr.Stage
	}
	return ""
}

// resultLabel is the metrics label for an outcome.
func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	var actErr *haproxy.ActivationError
	if errors.As(err, &actErr) {
		return string(actErr.Stage)
	}
	if s := FailedStage(err); s != "" {
		return string(s)
	}
	return "error"
}
