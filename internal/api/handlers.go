package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/voxpilot/voxpilot/api/schemas"
	"github.com/voxpilot/voxpilot/internal/intent"
)

type errorResponse struct {
	Error  string              `json:"error"`
	Code   string              `json:"code,omitempty"`
	Fields []intent.FieldError `json:"fields,omitempty"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("Failed to write response body.", zap.Error(err))
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// executeWire keeps intents as raw JSON so every one of them passes through
// strict validation before the core sees it.
type executeWire struct {
	SessionID string            `json:"session_id"`
	Intents   []json.RawMessage `json:"intents"`
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req executeWire
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body"})
		return
	}
	if len(req.Intents) == 0 {
		s.writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Error:  "validation failed",
			Fields: []intent.FieldError{{Path: "$.intents", Constraint: "must be a non-empty array"}},
		})
		return
	}

	intents := make([]schemas.Intent, 0, len(req.Intents))
	var fields []intent.FieldError
	for i, raw := range req.Intents {
		in, err := intent.ValidateIntent(raw)
		if err != nil {
			var verr *intent.ValidationError
			if errors.As(err, &verr) {
				for _, f := range verr.Fields {
					f.Path = "$.intents[" + strconv.Itoa(i) + "]" + strings.TrimPrefix(f.Path, "$")
					fields = append(fields, f)
				}
			} else {
				fields = append(fields, intent.FieldError{
					Path:       fmt.Sprintf("$.intents[%d]", i),
					Constraint: err.Error(),
				})
			}
			continue
		}
		intents = append(intents, *in)
	}
	if len(fields) > 0 {
		s.writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: "validation failed", Fields: fields})
		return
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	sess, err := s.sessions.Open(r.Context(), sessionID)
	if err != nil {
		s.logger.Error("Failed to open session.", zap.String("session_id", sessionID), zap.Error(err))
		s.writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "failed to provision browser session"})
		return
	}

	// One flow per session: concurrent executes against the same id queue
	// here rather than interleaving steps on one tab.
	sess.Lock()
	results, err := s.executor.Execute(r.Context(), sess, intents)
	sess.Unlock()
	if err != nil {
		s.logger.Error("Execution failed before producing a ledger.", zap.Error(err))
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "execution failed"})
		return
	}
	for _, res := range results {
		s.metrics.stepsTotal.WithLabelValues(string(res.Intent.Type), strconv.FormatBool(res.OK)).Inc()
	}

	dir, err := sess.Dir()
	if err != nil {
		s.logger.Warn("Artifact dir unavailable.", zap.Error(err))
	}
	s.writeJSON(w, http.StatusOK, schemas.ExecuteResponse{
		SessionID: sessionID,
		Results:   results,
		Artifacts: schemas.ExecuteArtifacts{Dir: dir},
	})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: `multipart field "file" is required`})
		return
	}
	defer file.Close()

	ref, err := s.uploads.Register(header.Filename, file)
	if err != nil {
		s.logger.Error("Failed to stage upload.", zap.String("name", header.Filename), zap.Error(err))
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to store upload"})
		return
	}
	s.writeJSON(w, http.StatusOK, schemas.UploadResponse{FileRef: ref})
}

func (s *Server) handleSessionClose(w http.ResponseWriter, r *http.Request) {
	var req schemas.CloseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SessionID == "" {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "session_id is required"})
		return
	}
	// Unknown ids close successfully; close is idempotent at the boundary.
	s.sessions.Close(req.SessionID)
	s.writeJSON(w, http.StatusOK, schemas.CloseResponse{OK: true})
}

func (s *Server) handlePlan(w http.ResponseWriter, r *http.Request) {
	if s.planner == nil {
		s.writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "plan generation is not configured"})
		return
	}
	var req schemas.PlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Transcript) == "" {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "transcript is required"})
		return
	}

	plan, err := s.planner.PlanFromTranscript(r.Context(), req.Transcript, req.Context)
	if err != nil {
		switch {
		case errors.Is(err, intent.ErrRepairExhausted):
			s.metrics.plansTotal.WithLabelValues("repair_exhausted").Inc()
			resp := errorResponse{Error: "plan failed schema validation after repair", Code: "repair_exhausted"}
			var rerr *intent.RepairError
			if errors.As(err, &rerr) && rerr.Second != nil {
				resp.Fields = rerr.Second.Fields
			}
			s.writeJSON(w, http.StatusUnprocessableEntity, resp)
		default:
			var gerr *intent.GenerationError
			if errors.As(err, &gerr) {
				s.metrics.plansTotal.WithLabelValues("generation_error").Inc()
				s.writeJSON(w, http.StatusBadGateway, errorResponse{Error: "plan generator unavailable", Code: "generation_error"})
				return
			}
			s.metrics.plansTotal.WithLabelValues("error").Inc()
			s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		}
		return
	}
	s.metrics.plansTotal.WithLabelValues("ok").Inc()
	s.writeJSON(w, http.StatusOK, plan)
}
