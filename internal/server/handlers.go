package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/dygy/melody-grep/internal/cache"
	"github.com/dygy/melody-grep/internal/jobs"
	"github.com/dygy/melody-grep/internal/melody"
	"github.com/dygy/melody-grep/internal/pipeline"
)

const maxBodySize = 1 << 20

// extractRequest is the body of both extract endpoints.
type extractRequest struct {
	YouTubeURL string `json:"youtube_url"`
	SongCode   string `json:"song_code"`
	SongTitle  string `json:"song_title,omitempty"`
}

type messageResponse struct {
	Message  string `json:"message"`
	SongCode string `json:"song_code"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

// progressPayload is the data of an SSE progress event.
type progressPayload struct {
	SongCode string `json:"song_code"`
	Progress int    `json:"progress"`
	Stage    string `json:"stage,omitempty"`
	Message  string `json:"message,omitempty"`
	Warning  bool   `json:"warning,omitempty"`
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "melody-extraction"})
}

// handleExtract runs an extraction and responds with the melody once done.
func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeExtract(w, r)
	if !ok {
		return
	}

	type outcome struct {
		record *melody.Record
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		record, err := s.jobs.Run(r.Context(), req)
		done <- outcome{record, err}
	}()

	var record *melody.Record
	var err error
	select {
	case <-r.Context().Done():
		// The extraction keeps running; its result lands in the cache.
		s.logger.Info("client left before extraction finished", "song_code", req.SongCode)
		return
	case o := <-done:
		record, err = o.record, o.err
	}

	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, record)
	case errors.Is(err, jobs.ErrAlreadyProcessing):
		writeError(w, http.StatusConflict, "Already processing")
	default:
		s.logger.Error("extraction failed", "song_code", req.SongCode, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// handleExtractAsync starts a background extraction.
func (s *Server) handleExtractAsync(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeExtract(w, r)
	if !ok {
		return
	}

	_, err := s.jobs.Submit(r.Context(), req)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, messageResponse{Message: "Processing started", SongCode: req.SongCode})
	case errors.Is(err, jobs.ErrAlreadyProcessing):
		writeJSON(w, http.StatusOK, messageResponse{Message: "Already processing", SongCode: req.SongCode})
	default:
		s.logger.Error("submit failed", "song_code", req.SongCode, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// handleStatus returns the job status for a song.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	code, ok := songCodeParam(w, r)
	if !ok {
		return
	}

	job, err := s.jobs.Status(r.Context(), code)
	if errors.Is(err, jobs.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Song not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// handleEvents streams job progress via SSE until the job finishes.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	code, ok := songCodeParam(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "SSE not supported")
		return
	}

	events, cancel, running := s.jobs.Subscribe(code)
	defer cancel()

	if !running {
		job, err := s.jobs.Status(r.Context(), code)
		if err != nil {
			writeError(w, http.StatusNotFound, "Song not found")
			return
		}
		if !job.Status.Terminal() {
			// Running in another process; clients fall back to polling.
			writeError(w, http.StatusConflict, "Job is running in another process; poll /status")
			return
		}
		setSSEHeaders(w)
		writeSSE(w, "done", job)
		flusher.Flush()
		return
	}

	setSSEHeaders(w)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case e, open := <-events:
			if !open {
				job, err := s.jobs.Status(r.Context(), code)
				if err != nil {
					return
				}
				writeSSE(w, "done", job)
				flusher.Flush()
				return
			}
			writeSSE(w, "progress", progressPayload{
				SongCode: e.SongCode,
				Progress: e.Percent,
				Stage:    e.Stage.Name,
				Message:  e.Message,
				Warning:  e.Warning,
			})
			flusher.Flush()
		}
	}
}

// handleGetMelody returns a stored melody.
func (s *Server) handleGetMelody(w http.ResponseWriter, r *http.Request) {
	code, ok := songCodeParam(w, r)
	if !ok {
		return
	}

	record, err := s.jobs.Melody(code)
	if errors.Is(err, cache.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Melody not found. Process the song first.")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// handleDeleteMelody removes a stored melody and its job status.
func (s *Server) handleDeleteMelody(w http.ResponseWriter, r *http.Request) {
	code, ok := songCodeParam(w, r)
	if !ok {
		return
	}

	err := s.jobs.Delete(r.Context(), code)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, messageResponse{Message: "Deleted", SongCode: code})
	case errors.Is(err, cache.ErrNotFound):
		writeError(w, http.StatusNotFound, "Melody not found")
	case errors.Is(err, jobs.ErrAlreadyProcessing):
		writeError(w, http.StatusConflict, "Song is being processed")
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) decodeExtract(w http.ResponseWriter, r *http.Request) (pipeline.Request, bool) {
	var body extractRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err := dec.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return pipeline.Request{}, false
	}

	body.YouTubeURL = strings.TrimSpace(body.YouTubeURL)
	body.SongCode = strings.TrimSpace(body.SongCode)
	switch {
	case body.YouTubeURL == "":
		writeError(w, http.StatusBadRequest, "youtube_url is required")
		return pipeline.Request{}, false
	case body.SongCode == "":
		writeError(w, http.StatusBadRequest, "song_code is required")
		return pipeline.Request{}, false
	case !pipeline.ValidSongCode(body.SongCode):
		writeError(w, http.StatusBadRequest, "song_code may only contain letters, digits, '.', '_' and '-'")
		return pipeline.Request{}, false
	}

	req := pipeline.Request{
		URL:       body.YouTubeURL,
		SongCode:  body.SongCode,
		SongTitle: strings.TrimSpace(body.SongTitle),
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return pipeline.Request{}, false
	}
	return req, true
}

func songCodeParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	code := chi.URLParam(r, "song_code")
	if !pipeline.ValidSongCode(code) {
		writeError(w, http.StatusBadRequest, "invalid song_code")
		return "", false
	}
	return code, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorResponse{Detail: detail})
}

func setSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
}

func writeSSE(w http.ResponseWriter, event string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\n", event)
	fmt.Fprintf(w, "data: %s\n\n", data)
}
