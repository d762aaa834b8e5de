package api

import (
	"encoding/json"
	"path/filepath"
	"strconv"
	"time"

	"github.com/facekit/facekit-agent/internal/doctor"
	"github.com/facekit/facekit-agent/internal/frames"
	"github.com/facekit/facekit-agent/internal/inference"
	"github.com/facekit/facekit-agent/internal/session"
	"github.com/facekit/facekit-agent/internal/store"
)

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	UptimeS int64  `json:"uptime_s"`
}

type StatusResponse struct {
	State         string               `json:"state"`
	Pending       bool                 `json:"pending"`
	UploadID      string               `json:"upload_id,omitempty"`
	FrameCount    int                  `json:"frame_count"`
	LastError     string               `json:"last_error,omitempty"`
	RunnerPaused  bool                 `json:"runner_paused"`
	RunnerRunning bool                 `json:"runner_running"`
	Capabilities  *doctor.Capabilities `json:"capabilities,omitempty"`
}

type UploadRequest struct {
	Path string `json:"path"`
}

type PositionRequest struct {
	Index *int `json:"index"`
}

type RangeRequest struct {
	Start *int `json:"start"`
	End   *int `json:"end"`
}

type FrameResponse struct {
	Index int    `json:"index"`
	URL   string `json:"url"`
}

type FramesResponse struct {
	Frames []FrameResponse `json:"frames"`
}

type KeyframeResponse struct {
	Index    int    `json:"index"`
	URL      string `json:"url"`
	Distance int    `json:"distance"`
}

type KeyframesResponse struct {
	Threshold int                `json:"threshold"`
	Keyframes []KeyframeResponse `json:"keyframes"`
}

type ParametersResponse struct {
	Expression []inference.ParamDef `json:"expression"`
	Video      []inference.ParamDef `json:"video"`
	Defaults   ParameterDefaults    `json:"defaults"`
}

type ParameterDefaults struct {
	Expression inference.ExpressionParams `json:"expression"`
	Video      inference.VideoParams      `json:"video"`
}

type EditAcceptedResponse struct {
	JobID string `json:"job_id"`
}

type EditJobResponse struct {
	ID         string          `json:"id"`
	UploadID   string          `json:"upload_id"`
	Kind       string          `json:"kind"`
	Status     string          `json:"status"`
	StartFrame int             `json:"start_frame"`
	EndFrame   int             `json:"end_frame"`
	Params     json.RawMessage `json:"params"`
	Progress   int             `json:"progress"`
	OutputURL  string          `json:"output_url,omitempty"`
	Error      string          `json:"error,omitempty"`
	CreatedAt  string          `json:"created_at"`
	UpdatedAt  string          `json:"updated_at"`
}

type EditJobsResponse struct {
	Jobs []EditJobResponse `json:"jobs"`
}

// OutputFileResponse points at a file written under the output dir.
type OutputFileResponse struct {
	OutputPath string `json:"output_path"`
	URL        string `json:"url,omitempty"`
}

type OpenFolderRequest struct {
	Kind string `json:"kind"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func frameURL(index int) string {
	return "/session/frames/" + strconv.Itoa(index)
}

func FramesToResponse(fs []frames.Frame) FramesResponse {
	resp := FramesResponse{Frames: make([]FrameResponse, len(fs))}
	for i, f := range fs {
		resp.Frames[i] = FrameResponse{Index: f.Sequence, URL: frameURL(f.Sequence)}
	}
	return resp
}

func KeyframesToResponse(threshold int, ks []frames.Keyframe) KeyframesResponse {
	resp := KeyframesResponse{Threshold: threshold, Keyframes: make([]KeyframeResponse, len(ks))}
	for i, k := range ks {
		resp.Keyframes[i] = KeyframeResponse{Index: k.Sequence, URL: frameURL(k.Sequence), Distance: k.Distance}
	}
	return resp
}

// OutputURL maps a path under outputDir to its /outputs/ URL, or "" when
// the path lies elsewhere.
func OutputURL(outputDir, path string) string {
	if outputDir == "" || path == "" {
		return ""
	}
	rel, err := filepath.Rel(outputDir, path)
	if err != nil || rel == "." || !filepath.IsLocal(rel) {
		return ""
	}
	return "/outputs/" + filepath.ToSlash(rel)
}

func EditJobToResponse(j *store.EditJob, outputDir string) EditJobResponse {
	params := json.RawMessage(j.Params)
	if !json.Valid(params) {
		params = json.RawMessage("null")
	}
	return EditJobResponse{
		ID:         j.ID,
		UploadID:   j.UploadID,
		Kind:       j.Kind,
		Status:     j.Status,
		StartFrame: j.StartFrame,
		EndFrame:   j.EndFrame,
		Params:     params,
		Progress:   j.Progress,
		OutputURL:  OutputURL(outputDir, j.OutputDir),
		Error:      j.Error,
		CreatedAt:  j.CreatedAt.Format(time.RFC3339),
		UpdatedAt:  j.UpdatedAt.Format(time.RFC3339),
	}
}

func SnapshotToStatus(s session.Snapshot) StatusResponse {
	return StatusResponse{
		State:      string(s.State),
		Pending:    s.Pending,
		UploadID:   s.UploadID,
		FrameCount: len(s.Frames),
		LastError:  s.LastError,
	}
}
