package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/facekit/facekit-agent/internal/edits"
	"github.com/facekit/facekit-agent/internal/frames"
	"github.com/facekit/facekit-agent/internal/inference"
	"github.com/facekit/facekit-agent/internal/logging"
	"github.com/facekit/facekit-agent/internal/media"
	"github.com/facekit/facekit-agent/internal/metrics"
	"github.com/facekit/facekit-agent/internal/session"
	"github.com/facekit/facekit-agent/internal/store"
)

func NewRouter(cfg ServerConfig) *chi.Mux {
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}
	if cfg.Media == nil {
		cfg.Media = media.NewServer(cfg.Logger)
	}

	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(CORS(cfg.CORSOrigins))

	r.Get("/health", healthHandler(cfg))
	r.Handle("/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.Repository, cfg.Logger))

		r.Get("/status", statusHandler(cfg))

		r.Get("/session", sessionHandler(cfg))
		r.Post("/session/video", uploadHandler(cfg))
		r.Delete("/session/video", clearHandler(cfg))
		r.Put("/session/position", positionHandler(cfg))
		r.Put("/session/range", rangeHandler(cfg))
		r.Get("/session/frames", listFramesHandler(cfg))
		r.Get("/session/frames/{index}", frameFileHandler(cfg))
		r.Get("/session/keyframes", keyframesHandler(cfg))

		r.Get("/parameters", parametersHandler())
		r.Post("/edits/frame", editHandler(cfg, cfg.Edits.EditCurrentFrame))
		r.Post("/edits/range", editHandler(cfg, cfg.Edits.EditSelectedRange))
		r.Post("/edits/image", editImageHandler(cfg))
		r.Get("/edits", listEditsHandler(cfg))
		r.Get("/edits/{id}", getEditHandler(cfg))
		r.Post("/videos", createVideoHandler(cfg))

		r.Get("/outputs/*", outputFileHandler(cfg))
		r.Post("/outputs/open", openFolderHandler(cfg))
	})

	return r
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uptime := int64(time.Since(cfg.StartTime).Seconds())
		WriteJSON(w, http.StatusOK, HealthResponse{
			Status:  "ok",
			Version: cfg.Version,
			UptimeS: uptime,
		})
	}
}

func statusHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := SnapshotToStatus(cfg.Session.Snapshot())
		if cfg.Runner != nil {
			resp.RunnerPaused = cfg.Runner.IsPaused()
			resp.RunnerRunning = cfg.Runner.IsRunning()
		}
		// Peek never blocks on a probe; the doctor refreshes in the background.
		if cfg.Doctor != nil {
			resp.Capabilities = cfg.Doctor.Peek()
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func sessionHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, cfg.Session.Snapshot())
	}
}

func uploadHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req UploadRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		// A disconnecting client must not abort the extraction; only a
		// newer upload may do that.
		ctx := contextWithoutCancel(r)
		snap, err := cfg.Session.Upload(ctx, req.Path)
		if err != nil {
			WriteServiceError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, snap)
	}
}

func clearHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, cfg.Session.Clear(contextWithoutCancel(r)))
	}
}

func positionHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req PositionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Index == nil {
			WriteError(w, http.StatusBadRequest, "index is required", "BAD_REQUEST")
			return
		}

		snap, err := cfg.Session.SelectPosition(*req.Index)
		if err != nil {
			WriteServiceError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, snap)
	}
}

func rangeHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RangeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Start == nil || req.End == nil {
			WriteError(w, http.StatusBadRequest, "start and end are required", "BAD_REQUEST")
			return
		}

		snap, err := cfg.Session.SelectRange(*req.Start, *req.End)
		if err != nil {
			WriteServiceError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, snap)
	}
}

func listFramesHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := cfg.Session.Snapshot()
		if !snap.Loaded() {
			WriteJSON(w, http.StatusOK, FramesResponse{Frames: []FrameResponse{}})
			return
		}
		WriteJSON(w, http.StatusOK, FramesToResponse(snap.Frames))
	}
}

func frameFileHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		i, err := strconv.Atoi(chi.URLParam(r, "index"))
		if err != nil {
			WriteError(w, http.StatusBadRequest, "frame index must be an integer", "BAD_REQUEST")
			return
		}

		snap := cfg.Session.Snapshot()
		if !snap.Loaded() || i < 0 || i >= len(snap.Frames) {
			WriteError(w, http.StatusNotFound, "frame not found", "NOT_FOUND")
			return
		}

		if err := cfg.Media.ServeFile(w, r, snap.Frames[i].Path); err != nil {
			cfg.Logger.Error("frame serve error", "error", err, "index", i)
		}
	}
}

func keyframesHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		threshold := cfg.KeyframeThreshold
		if v := r.URL.Query().Get("threshold"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				WriteError(w, http.StatusBadRequest, "threshold must be a non-negative integer", "BAD_REQUEST")
				return
			}
			threshold = n
		}

		snap := cfg.Session.Snapshot()
		if !snap.Loaded() {
			WriteServiceError(w, cfg.Logger, session.ErrOutOfRange)
			return
		}

		idx, err := frames.NewIndex(snap.Frames)
		if err != nil {
			WriteServiceError(w, cfg.Logger, err)
			return
		}
		ks, err := frames.SuggestKeyframes(r.Context(), idx, threshold)
		if err != nil {
			WriteServiceError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, KeyframesToResponse(threshold, ks))
	}
}

func parametersHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, ParametersResponse{
			Expression: inference.Definitions(),
			Video:      inference.VideoDefinitions(),
			Defaults: ParameterDefaults{
				Expression: inference.DefaultExpressionParams(),
				Video:      inference.DefaultVideoParams(),
			},
		})
	}
}

type editFunc func(ctx context.Context, params inference.ExpressionParams) (*store.EditJob, error)

func editHandler(cfg ServerConfig, edit editFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params := inference.DefaultExpressionParams()
		if err := json.NewDecoder(r.Body).Decode(&params); err != nil && !errors.Is(err, io.EOF) {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		job, err := edit(r.Context(), params)
		if err != nil {
			WriteServiceError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusAccepted, EditAcceptedResponse{JobID: job.ID})
	}
}

func listEditsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 50
		if v := r.URL.Query().Get("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				limit = n
			}
		}

		jobs, err := cfg.Edits.ListJobs(r.Context(), limit)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list edit jobs", "INTERNAL_ERROR")
			return
		}

		resp := EditJobsResponse{Jobs: make([]EditJobResponse, len(jobs))}
		for i, j := range jobs {
			resp.Jobs[i] = EditJobToResponse(j, cfg.OutputDir)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func getEditHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		job, err := cfg.Edits.GetJob(r.Context(), id)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		if job == nil {
			WriteError(w, http.StatusNotFound, "edit job not found", "NOT_FOUND")
			return
		}

		WriteJSON(w, http.StatusOK, EditJobToResponse(job, cfg.OutputDir))
	}
}

func editImageHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		in := edits.ImageInput{Params: inference.DefaultExpressionParams()}
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		res, err := cfg.Edits.EditImage(r.Context(), in)
		if err != nil {
			WriteServiceError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, OutputFileResponse{
			OutputPath: res.OutputPath,
			URL:        OutputURL(cfg.OutputDir, res.OutputPath),
		})
	}
}

func createVideoHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		in := edits.VideoInput{Params: inference.DefaultVideoParams()}
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		res, err := cfg.Edits.CreateVideo(r.Context(), in)
		if err != nil {
			WriteServiceError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, OutputFileResponse{
			OutputPath: res.OutputPath,
			URL:        OutputURL(cfg.OutputDir, res.OutputPath),
		})
	}
}

func outputFileHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path, err := media.ResolveWithin(cfg.OutputDir, chi.URLParam(r, "*"))
		if err != nil {
			WriteError(w, http.StatusBadRequest, "invalid output path", "BAD_REQUEST")
			return
		}

		if err := cfg.Media.ServeFile(w, r, path); err != nil {
			cfg.Logger.Error("output serve error", "error", err, "path", logging.SanitizePath(path))
		}
	}
}

func openFolderHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req OpenFolderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		var dir string
		switch req.Kind {
		case "images":
			dir = cfg.EditsDir
		case "videos":
			dir = cfg.VideosDir
		default:
			WriteError(w, http.StatusBadRequest, "kind must be images or videos", "BAD_REQUEST")
			return
		}

		if cfg.OpenFolder == nil {
			WriteError(w, http.StatusServiceUnavailable, "opening folders is not supported", "UNAVAILABLE")
			return
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			WriteServiceError(w, cfg.Logger, err)
			return
		}
		if err := cfg.OpenFolder(dir); err != nil {
			WriteServiceError(w, cfg.Logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func contextWithoutCancel(r *http.Request) context.Context {
	return context.WithoutCancel(r.Context())
}
