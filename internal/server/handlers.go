package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/robusta-dev/holmes/internal/agent"
	"github.com/robusta-dev/holmes/internal/prompts"
	"github.com/robusta-dev/holmes/pkg/models"
)

// maxRequestBody bounds API request bodies.
const maxRequestBody = 4 << 20

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	Ask       string          `json:"ask"`
	SessionID string          `json:"session_id,omitempty"`
	Options   *OptionsRequest `json:"options,omitempty"`
}

// InvestigateRequest is the body of POST /api/investigate.
type InvestigateRequest struct {
	Issue        *models.Issue    `json:"issue"`
	Instructions []string         `json:"instructions,omitempty"`
	Sections     []SectionRequest `json:"sections,omitempty"`
	Options      *OptionsRequest  `json:"options,omitempty"`
}

// SectionRequest names one section of the structured answer.
type SectionRequest struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// OptionsRequest carries per-request run option overrides. Absent fields
// keep the server defaults.
type OptionsRequest struct {
	MaxSteps            *int            `json:"max_steps,omitempty"`
	Temperature         *float64        `json:"temperature,omitempty"`
	ResponseFormat      json.RawMessage `json:"response_format,omitempty"`
	RepetitionCap       *int            `json:"repetition_cap,omitempty"`
	DisableCompaction   *bool           `json:"disable_compaction,omitempty"`
	MaxToolOutputTokens *int            `json:"max_tool_output_tokens,omitempty"`
	DeadlineSeconds     *int            `json:"deadline_seconds,omitempty"`
}

func (o *OptionsRequest) apply(base agent.RunOptions) agent.RunOptions {
	if o == nil {
		return base
	}
	if o.MaxSteps != nil {
		base.MaxSteps = *o.MaxSteps
	}
	if o.Temperature != nil {
		base.Temperature = o.Temperature
	}
	if len(o.ResponseFormat) > 0 {
		base.ResponseFormat = o.ResponseFormat
	}
	if o.RepetitionCap != nil {
		base.RepetitionCap = *o.RepetitionCap
	}
	if o.DisableCompaction != nil {
		base.DisableCompaction = *o.DisableCompaction
	}
	if o.MaxToolOutputTokens != nil {
		base.MaxToolOutputTokens = *o.MaxToolOutputTokens
	}
	if o.DeadlineSeconds != nil {
		base.Deadline = time.Duration(*o.DeadlineSeconds) * time.Second
	}
	return base
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Ask) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "ask is required"})
		return
	}

	opts := req.Options.apply(agent.DefaultRunOptions())
	result, err := s.runtime.RunAgent(r.Context(), req.SessionID, req.Ask, &opts)
	s.writeResult(w, result, err)
}

func (s *Server) handleInvestigate(w http.ResponseWriter, r *http.Request) {
	var req InvestigateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Issue == nil || strings.TrimSpace(req.Issue.Name) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "issue.name is required"})
		return
	}

	sections := make([]prompts.Section, 0, len(req.Sections))
	for _, sec := range req.Sections {
		if strings.TrimSpace(sec.Title) == "" {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "section title must not be empty"})
			return
		}
		sections = append(sections, prompts.Section{Title: sec.Title, Description: sec.Description})
	}

	opts := req.Options.apply(agent.DefaultRunOptions())
	result, err := s.runtime.InvestigateIssue(r.Context(), req.Issue, req.Instructions, sections, &opts)
	s.writeResult(w, result, err)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// writeResult maps run outcomes onto HTTP status codes. A failed run
// that still produced partial history reports the error alongside it.
func (s *Server) writeResult(w http.ResponseWriter, result *models.LLMResult, err error) {
	if err == nil {
		writeJSON(w, http.StatusOK, result)
		return
	}

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, agent.ErrSessionBusy):
		status = http.StatusConflict
	case agent.IsContextExceeded(err):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		// Client went away; the status is best effort.
		status = 499
	}

	s.logger.Error("agent run failed", "status", status, "error", err)
	body := map[string]any{"error": err.Error()}
	if result != nil {
		body["result"] = result
	}
	writeJSON(w, status, body)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid JSON body: " + err.Error()})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
