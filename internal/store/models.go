package store

import (
	"time"

	"github.com/google/uuid"
)

const (
	UploadStatusExtracting = "extracting"
	UploadStatusLoaded     = "loaded"
	UploadStatusFailed     = "failed"
	UploadStatusSuperseded = "superseded"
	UploadStatusCleared    = "cleared"
)

// Upload is one keyframe-video upload attempt.
type Upload struct {
	ID         string `json:"id"`
	VideoPath  string `json:"video_path"`
	Generation uint64 `json:"generation"`
	Status     string `json:"status"`
	FrameCount int    `json:"frame_count"`
	// SourceFrames is the frame count ffprobe reported for the video, 0
	// when unknown. FrameCount can be lower when extraction samples by fps.
	SourceFrames int       `json:"source_frames"`
	Error        string    `json:"error,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

const (
	EditKindFrame = "frame"
	EditKindRange = "range"

	JobStatusPending   = "pending"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
)

// EditJob asks the inference engine to apply one set of expression
// parameters to frames StartFrame..EndFrame of an upload.
type EditJob struct {
	ID         string    `json:"id"`
	UploadID   string    `json:"upload_id"`
	Kind       string    `json:"kind"`
	Status     string    `json:"status"`
	StartFrame int       `json:"start_frame"`
	EndFrame   int       `json:"end_frame"`
	Params     string    `json:"params"`
	Progress   int       `json:"progress"`
	OutputDir  string    `json:"output_dir"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// FrameCount is the number of frames the job touches.
func (j *EditJob) FrameCount() int {
	return j.EndFrame - j.StartFrame + 1
}

func NewID() string {
	return uuid.NewString()
}
