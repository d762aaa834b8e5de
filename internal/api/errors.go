package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/facekit/facekit-agent/internal/frames"
	"github.com/facekit/facekit-agent/internal/inference"
	"github.com/facekit/facekit-agent/internal/session"
)

type errorMapping struct {
	err    error
	status int
	code   string
}

var errorMappings = []errorMapping{
	{frames.ErrInvalidInput, http.StatusBadRequest, "INVALID_INPUT"},
	{frames.ErrDecode, http.StatusUnprocessableEntity, "DECODE_ERROR"},
	{frames.ErrCorruptIndex, http.StatusUnprocessableEntity, "CORRUPT_INDEX"},
	{session.ErrOutOfRange, http.StatusConflict, "OUT_OF_RANGE"},
	{session.ErrInvalidRange, http.StatusBadRequest, "INVALID_RANGE"},
	{session.ErrSuperseded, http.StatusConflict, "SUPERSEDED"},
	{inference.ErrInvalidParams, http.StatusBadRequest, "INVALID_PARAMS"},
}

// WriteServiceError maps domain errors to a status and code. Anything
// unrecognised is logged and reported as a 500.
func WriteServiceError(w http.ResponseWriter, logger *slog.Logger, err error) {
	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			WriteError(w, m.status, err.Error(), m.code)
			return
		}
	}

	var engErr *inference.EngineError
	if errors.As(err, &engErr) {
		logger.Warn("engine request failed", "op", engErr.Op, "status", engErr.StatusCode)
		WriteError(w, http.StatusBadGateway, err.Error(), "ENGINE_ERROR")
		return
	}

	logger.Error("request failed", "error", err)
	WriteError(w, http.StatusInternalServerError, "internal server error", "INTERNAL_ERROR")
}
