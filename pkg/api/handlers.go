package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/tcmartin/dagrunner/pkg/loader"
	"github.com/tcmartin/dagrunner/pkg/models"
	"github.com/tcmartin/dagrunner/pkg/runtime"
	"github.com/tcmartin/dagrunner/pkg/storage"
	"github.com/tcmartin/dagrunner/pkg/toposort"
)

const maxBodyBytes = 4 << 20

// StartRequest is the body of POST /api/v1/start
type StartRequest struct {
	Context map[string]interface{} `json:"context"`
}

// ResumeRequest is the body of POST /api/v1/resume. Without a state the
// engine's adapter is asked for the saved snapshot of the loaded pipeline.
type ResumeRequest struct {
	State *models.ExecutionState `json:"state"`
}

// ErrorResponse is returned with every non-2xx status
type ErrorResponse struct {
	Error string `json:"error"`
}

// handleHealth handles the health check endpoint
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().Format(time.RFC3339),
	})
}

func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	state := s.engine.State()
	if state == nil {
		writeError(w, http.StatusNotFound, errors.New("no execution state"))
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if err := decodeOptional(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := s.engine.Start(r.Context(), req.Context); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusAccepted, s.engine.State())
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	var req ResumeRequest
	if err := decodeOptional(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	saved := req.State
	if saved == nil {
		pipeline := s.engine.Pipeline()
		if pipeline == nil {
			writeError(w, http.StatusConflict, runtime.ErrConfiguration)
			return
		}
		loaded, err := s.engine.LoadSaved(r.Context(), pipeline.ID)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		saved = loaded
	}

	if err := s.engine.Resume(r.Context(), saved); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusAccepted, s.engine.State())
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Reset(r.Context()); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	state := s.engine.State()
	if state == nil {
		writeError(w, http.StatusConflict, runtime.ErrConfiguration)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	s.engine.Cancel()
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleGetPipeline(w http.ResponseWriter, r *http.Request) {
	pipeline := s.engine.Pipeline()
	if pipeline == nil {
		writeError(w, http.StatusNotFound, runtime.ErrConfiguration)
		return
	}
	writeJSON(w, http.StatusOK, pipeline)
}

func (s *Server) handlePutPipeline(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	format := loader.FormatAuto
	switch r.Header.Get("Content-Type") {
	case "application/json":
		format = loader.FormatJSON
	case "application/yaml", "application/x-yaml", "text/yaml":
		format = loader.FormatYAML
	}

	pipeline, err := s.loader.Parse(body, format)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	s.engine.SetPipeline(pipeline)
	writeJSON(w, http.StatusOK, pipeline)
}

// decodeOptional decodes a JSON body into v, accepting an empty body
func decodeOptional(r *http.Request, v interface{}) error {
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, runtime.ErrConfiguration), errors.Is(err, runtime.ErrStateMismatch):
		return http.StatusConflict
	case errors.Is(err, toposort.ErrCycleDetected):
		return http.StatusUnprocessableEntity
	case errors.Is(err, storage.ErrStateNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, ErrorResponse{Error: err.Error()})
}
