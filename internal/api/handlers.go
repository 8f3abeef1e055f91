package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dgnsrekt/storyreel/internal/encoder"
	"github.com/dgnsrekt/storyreel/internal/media"
	"github.com/dgnsrekt/storyreel/internal/queue"
	"github.com/dgnsrekt/storyreel/internal/remote"
	"github.com/dgnsrekt/storyreel/internal/subtitle"
)

// HealthResponse represents the response body for /v1/healthz.
type HealthResponse struct {
	Status     string `json:"status"`
	QueueDepth int    `json:"queue_depth"`
	Busy       bool   `json:"busy"`
}

// handleHealthz handles GET /v1/healthz requests.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok"}
	if s.queue != nil {
		resp.QueueDepth = s.queue.Len()
		resp.Busy = s.queue.Busy()
	}
	writeJSON(w, http.StatusOK, resp)
}

// handlePreflight answers CORS preflight requests.
func (s *Server) handlePreflight(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

// handleRenderVideo handles POST /api/render-video requests. The response
// is written when the encode finishes.
func (s *Server) handleRenderVideo(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)

	var req remote.RenderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.logger.Warn("render request too large", "limit", tooLarge.Limit)
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		s.logger.Warn("failed to decode render request", "error", err)
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if req.Image == "" || req.Audio == "" {
		writeError(w, http.StatusBadRequest, "image and audio are required")
		return
	}

	image, err := media.ParseDataURI(req.Image)
	if err != nil {
		writeError(w, http.StatusBadRequest, "image must be a base64 data URI")
		return
	}
	audio, err := media.ParseDataURI(req.Audio)
	if err != nil {
		writeError(w, http.StatusBadRequest, "audio must be a base64 data URI")
		return
	}

	input := encoder.Job{Image: image, Audio: audio}
	if req.SRT != nil && *req.SRT != "" {
		if _, err := subtitle.ParseSRT([]byte(*req.SRT)); err != nil {
			writeError(w, http.StatusBadRequest, "invalid srt: "+err.Error())
			return
		}
		input.SRT = *req.SRT
	}

	job := queue.NewRenderJob(input, s.cfg.JobTTL)
	if err := s.queue.Enqueue(job); err != nil {
		switch {
		case errors.Is(err, queue.ErrQueueFull):
			writeError(w, http.StatusServiceUnavailable, "encoder queue is full, try again later")
		case errors.Is(err, queue.ErrQueueClosed):
			writeError(w, http.StatusServiceUnavailable, "encoder is shutting down")
		default:
			s.logger.Error("failed to enqueue job", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to enqueue job")
		}
		return
	}

	s.logger.Info("render request enqueued",
		"job_id", job.ID,
		"image_bytes", image.Size(),
		"audio_bytes", audio.Size(),
		"subtitles", input.SRT != "",
	)

	blob, err := job.Wait(r.Context())
	if err != nil {
		if r.Context().Err() != nil {
			s.logger.Info("client went away, cancelling job", "job_id", job.ID)
			s.queue.Cancel(job.ID)
			return
		}

		status := http.StatusInternalServerError
		if errors.Is(err, queue.ErrJobExpired) || errors.Is(err, queue.ErrQueueClosed) {
			status = http.StatusServiceUnavailable
		}
		writeError(w, status, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, remote.RenderResponse{
		Success:   true,
		VideoData: blob.DataURI(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, remote.RenderResponse{Success: false, Error: msg})
}
