package tasks

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"newsetl/internal/pipeline"
	"newsetl/internal/state"
)

// RunContext is the explicit identity of one pipeline run, handed to every task.
type RunContext struct {
	StartedAt time.Time
	Pipeline  pipeline.ID
	RunID     string
}

// NewRunContext starts a new run of the named pipeline.
func NewRunContext(name string) (RunContext, error) {
	id, err := pipeline.Parse(name)
	if err != nil {
		return RunContext{}, err
	}

	return RunContext{
		StartedAt: time.Now(),
		Pipeline:  id,
		RunID:     uuid.NewString(),
	}, nil
}

// ResolveRunContext returns the run a downstream task belongs to. An
// explicit pipeline name wins; otherwise the identity published by
// CreateStorage is used. The published run id is reused only when it was
// published for the same pipeline; otherwise the run gets a fresh one.
func ResolveRunContext(vars state.Variables, override string) (RunContext, error) {
	if vars == nil {
		if override == "" {
			return RunContext{}, pipeline.ErrBlankPipeline
		}

		return NewRunContext(override)
	}

	published, err := vars.Get(state.KeyPipeline)
	if err != nil && (override == "" || !errors.Is(err, state.ErrVariableNotFound)) {
		return RunContext{}, fmt.Errorf("failed to resolve pipeline: %w", err)
	}

	name := override
	if name == "" {
		name = published
	}

	rc, err := NewRunContext(name)
	if err != nil {
		return RunContext{}, err
	}

	if published != string(rc.Pipeline) {
		return rc, nil
	}

	runID, err := vars.Get(state.KeyRunID)

	switch {
	case err == nil:
		rc.RunID = runID
	case !errors.Is(err, state.ErrVariableNotFound):
		return RunContext{}, fmt.Errorf("failed to resolve run id: %w", err)
	}

	return rc, nil
}
