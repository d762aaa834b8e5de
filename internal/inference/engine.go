package inference

import (
	"context"
	"fmt"
)

// Engine performs the expression edits. Paths are local to the machine
// running the agent; the engine writes its result to OutputPath.
type Engine interface {
	EditExpression(ctx context.Context, req EditRequest) (EditResult, error)
	CreateVideo(ctx context.Context, req VideoRequest) (VideoResult, error)
	Health(ctx context.Context) error
}

type EditRequest struct {
	SourceImage string           `json:"source_image"`
	SampleImage string           `json:"sample_image,omitempty"`
	Params      ExpressionParams `json:"params"`
	OutputPath  string           `json:"output_path"`
}

type EditResult struct {
	OutputPath string `json:"output_path"`
}

type VideoRequest struct {
	ReferenceImage string      `json:"reference_image"`
	DrivingVideo   string      `json:"driving_video"`
	Params         VideoParams `json:"params"`
	OutputPath     string      `json:"output_path"`
}

type VideoResult struct {
	OutputPath string `json:"output_path"`
}

// EngineError is a non-2xx response from the engine.
type EngineError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("engine %s failed: HTTP %d: %s", e.Op, e.StatusCode, e.Body)
}

// IsRetryable returns true for server errors (5xx).
// Client errors (4xx) are considered permanent.
func (e *EngineError) IsRetryable() bool {
	return e.StatusCode >= 500
}
