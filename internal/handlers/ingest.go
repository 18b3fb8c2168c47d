// Package handlers exposes the HTTP surface of the service.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"floodwatch/internal/ingest"
	"floodwatch/internal/models"
	"floodwatch/internal/storage"
)

// Processor runs the ingestion pipeline. Satisfied by *ingest.Service.
type Processor interface {
	Process(ctx context.Context, in *models.ReadingInput) (*ingest.Result, error)
}

// IngestHandler accepts sensor readings on POST /api/sensor-data.
type IngestHandler struct {
	processor   Processor
	maxBodySize int64
	log         zerolog.Logger
}

func NewIngestHandler(processor Processor, maxBodySize int64, log zerolog.Logger) *IngestHandler {
	if maxBodySize <= 0 {
		maxBodySize = 1 << 20 // 1MB
	}
	return &IngestHandler{
		processor:   processor,
		maxBodySize: maxBodySize,
		log:         log,
	}
}

// errorResponse is the JSON error body.
type errorResponse struct {
	Error string `json:"error"`
}

// ingestResponse wraps the pipeline result for the device.
type ingestResponse struct {
	Status string         `json:"status"`
	Result *ingest.Result `json:"result"`
}

func (h *IngestHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	contentType := r.Header.Get("Content-Type")
	if contentType != "application/json" && contentType != "" {
		h.writeError(w, http.StatusUnsupportedMediaType, "content-type must be application/json")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}

	var in models.ReadingInput
	if err := json.Unmarshal(body, &in); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}

	result, err := h.processor.Process(r.Context(), &in)
	if err != nil {
		h.writeProcessError(w, r, &in, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(ingestResponse{Status: "ok", Result: result})
}

// writeProcessError maps pipeline errors onto HTTP statuses: validation
// problems are the device's fault, an unknown device id has no
// configuration row, everything else is ours.
func (h *IngestHandler) writeProcessError(w http.ResponseWriter, r *http.Request, in *models.ReadingInput, err error) {
	switch {
	case errors.Is(err, models.ErrEmptyDeviceID), errors.Is(err, models.ErrInvalidTimestamp):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, storage.ErrDeviceNotFound):
		h.writeError(w, http.StatusNotFound, "unknown device")
	default:
		h.log.Error().
			Err(err).
			Str("device_id", in.DeviceID).
			Str("request_id", r.Header.Get("X-Request-ID")).
			Msg("Reading processing failed")
		h.writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (h *IngestHandler) writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorResponse{Error: msg})
}
