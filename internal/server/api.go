// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"errors"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mementoai/memento/internal/cloud"
	"github.com/mementoai/memento/internal/conversation"
	"github.com/mementoai/memento/internal/export"
	"github.com/mementoai/memento/internal/notify"
	"github.com/mementoai/memento/internal/render"
	"github.com/mementoai/memento/internal/storage"
)

// ============================================================================
// ERROR MAPPING
// ============================================================================

// statusFor maps a domain error to an HTTP status.
func statusFor(err error) int {
	var apiErr *cloud.APIError
	switch {
	case errors.Is(err, conversation.ErrEmptyMessage),
		errors.Is(err, conversation.ErrNoConversation),
		errors.Is(err, cloud.ErrMissingCredential),
		errors.Is(err, notify.ErrPastDate),
		errors.Is(err, storage.ErrEmptyImport),
		errors.Is(err, export.ErrUnknownFormat),
		errors.Is(err, export.ErrNothingToExport):
		return http.StatusBadRequest
	case errors.Is(err, cloud.ErrAuthFailed):
		return http.StatusUnauthorized
	case errors.Is(err, cloud.ErrInsufficientCredits):
		return http.StatusPaymentRequired
	case errors.Is(err, notify.ErrDisabled):
		return http.StatusForbidden
	case errors.Is(err, notify.ErrNotFound),
		errors.Is(err, storage.ErrReminderNotFound),
		errors.Is(err, storage.ErrEmptyMemory),
		errors.Is(err, storage.ErrMessageIndex),
		errors.Is(err, cloud.ErrModelNotFound):
		return http.StatusNotFound
	case errors.Is(err, conversation.ErrBusy),
		errors.Is(err, storage.ErrConversationReplaced):
		return http.StatusConflict
	case errors.Is(err, conversation.ErrNothingExtracted):
		return http.StatusUnprocessableEntity
	case errors.Is(err, cloud.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, cloud.ErrOffline),
		errors.Is(err, notify.ErrStopped):
		return http.StatusServiceUnavailable
	case errors.As(err, &apiErr),
		errors.Is(err, cloud.ErrMalformedResponse),
		errors.Is(err, cloud.ErrNoChoices):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// fail writes err with the status from statusFor. Server errors are
// logged; their text is not sent to the client.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.log.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", RequestID(r.Context())),
			zap.Error(err))
		writeError(w, status, "Internal Server Error")
		return
	}
	writeError(w, status, cloud.UserMessage(err))
}

var errNoAssistant = errors.New("assistant not configured")

func (s *Server) assistant(w http.ResponseWriter) *conversation.Assistant {
	if s.deps.Assistant == nil {
		writeError(w, http.StatusServiceUnavailable, errNoAssistant.Error())
	}
	return s.deps.Assistant
}

// ============================================================================
// STATE
// ============================================================================

// SettingsView is the settings as shown to the client: the key is masked.
type SettingsView struct {
	storage.Settings
	HasAPIKey bool `json:"hasApiKey"`
}

func newSettingsView(st storage.Settings) SettingsView {
	has := st.HasAPIKey()
	st.APIKey = maskKey(st.APIKey)
	return SettingsView{Settings: st, HasAPIKey: has}
}

func maskKey(key string) string {
	return cloud.NewClient(key).APIKeyMasked()
}

// StateResponse is the body of GET /api/state.
type StateResponse struct {
	Settings    SettingsView             `json:"settings"`
	Messages    []render.MessageView     `json:"messages"`
	Memory      string                   `json:"memory"`
	MemoryHTML  template.HTML            `json:"memoryHtml"`
	MemoryStats storage.MemoryStats      `json:"memoryStats"`
	Online      bool                     `json:"online"`
	Busy        bool                     `json:"busy"`
	Pending     []notify.Entry           `json:"notifications"`
	Reminders   []storage.MemoryReminder `json:"reminders"`
	MaxInput    int                      `json:"maxInputChars"`
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	store := s.deps.Store
	memory := store.Memory()
	resp := StateResponse{
		Settings:    newSettingsView(store.Settings()),
		Messages:    s.deps.Renderer.Messages(store.Messages()),
		Memory:      memory,
		MemoryHTML:  s.deps.Renderer.Memory(memory),
		MemoryStats: storage.ComputeMemoryStats(memory),
		Online:      s.online(),
		Busy:        s.deps.Controller.Busy(),
		Pending:     []notify.Entry{},
		MaxInput:    render.MaxInputChars,
	}
	if s.deps.Scheduler != nil {
		resp.Pending = s.deps.Scheduler.Pending()
	}
	reminders, err := store.MemoryReminders()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	resp.Reminders = reminders
	if resp.Reminders == nil {
		resp.Reminders = []storage.MemoryReminder{}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	if s.deps.Periodic != nil {
		if err := s.deps.Periodic.RecordActivity(); err != nil {
			s.fail(w, r, err)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// ============================================================================
// CONVERSATION
// ============================================================================

// handleMessages returns the rendered views as JSON, or as an HTML fragment
// with ?format=html.
func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	views := s.deps.Renderer.Messages(s.deps.Store.Messages())
	if r.URL.Query().Get("format") == "html" {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := s.deps.Renderer.WriteMessages(w, views); err != nil {
			s.log.Warn("render messages", zap.Error(err))
		}
		return
	}
	writeJSON(w, http.StatusOK, views)
}

// handleRemember appends a message's text to the memory.
func (s *Server) handleRemember(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid message index")
		return
	}
	msg, err := s.deps.Store.Message(index)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.deps.Store.UpdateMemory(msg.Content); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"memoryStats": s.deps.Store.MemoryStats()})
}

func (s *Server) handleChatCancel(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"cancelled": s.deps.Controller.Cancel()})
}

func (s *Server) handleClearConversation(w http.ResponseWriter, r *http.Request) {
	if s.deps.Controller.Busy() {
		s.fail(w, r, conversation.ErrBusy)
		return
	}
	if err := s.deps.Store.ClearConversation(); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ============================================================================
// SETTINGS
// ============================================================================

// SettingsPatch carries the fields to change; absent fields are kept. An
// apiKey equal to the masked current key is ignored.
type SettingsPatch struct {
	APIKey      *string  `json:"apiKey"`
	Model       *string  `json:"model"`
	Temperature *float64 `json:"temperature"`
	MaxTokens   *int     `json:"maxTokens"`

	AutoReminders          *bool `json:"autoReminders"`
	DailySummary           *bool `json:"dailySummary"`
	WeeklySummary          *bool `json:"weeklySummary"`
	MilestoneNotifications *bool `json:"milestoneNotifications"`
	InactiveNotifications  *bool `json:"inactiveNotifications"`
}

// Validate checks the ranges of the present fields.
func (p SettingsPatch) Validate() error {
	if p.Model != nil && strings.TrimSpace(*p.Model) == "" {
		return errors.New("model must not be empty")
	}
	if p.Temperature != nil && (*p.Temperature < 0 || *p.Temperature > 2) {
		return errors.New("temperature must be between 0 and 2")
	}
	if p.MaxTokens != nil && *p.MaxTokens < 1 {
		return errors.New("maxTokens must be positive")
	}
	return nil
}

// Apply writes the present fields into st.
func (p SettingsPatch) Apply(st *storage.Settings) {
	if p.APIKey != nil {
		key := strings.TrimSpace(*p.APIKey)
		if key != maskKey(st.APIKey) {
			st.APIKey = key
		}
	}
	if p.Model != nil {
		st.Model = strings.TrimSpace(*p.Model)
	}
	if p.Temperature != nil {
		st.Temperature = *p.Temperature
	}
	if p.MaxTokens != nil {
		st.MaxTokens = *p.MaxTokens
	}
	setBool(&st.AutoReminders, p.AutoReminders)
	setBool(&st.DailySummary, p.DailySummary)
	setBool(&st.WeeklySummary, p.WeeklySummary)
	setBool(&st.MilestoneNotifications, p.MilestoneNotifications)
	setBool(&st.InactiveNotifications, p.InactiveNotifications)
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, newSettingsView(s.deps.Store.Settings()))
}

func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	var patch SettingsPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := patch.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	st, err := s.deps.Store.UpdateSettings(patch.Apply)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newSettingsView(st))
}

func (s *Server) handleResetSettings(w http.ResponseWriter, r *http.Request) {
	st, err := s.deps.Store.ResetSettings()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newSettingsView(st))
}

// handleValidateKey checks the stored key with a one-token request.
func (s *Server) handleValidateKey(w http.ResponseWriter, r *http.Request) {
	a := s.assistant(w)
	if a == nil {
		return
	}
	ok, err := a.TestConnection(r.Context())
	resp := map[string]any{"valid": ok}
	if err != nil {
		resp["message"] = cloud.UserMessage(err)
	}
	writeJSON(w, http.StatusOK, resp)
}

// ============================================================================
// MEMORY
// ============================================================================

// MemoryResponse is the body of GET /api/memory.
type MemoryResponse struct {
	Memory string              `json:"memory"`
	HTML   template.HTML       `json:"html"`
	Stats  storage.MemoryStats `json:"stats"`
}

type memoryBody struct {
	Memory string `json:"memory"`
	Text   string `json:"text"`
}

func (s *Server) memoryResponse() MemoryResponse {
	memory := s.deps.Store.Memory()
	return MemoryResponse{
		Memory: memory,
		HTML:   s.deps.Renderer.Memory(memory),
		Stats:  storage.ComputeMemoryStats(memory),
	}
}

func (s *Server) handleGetMemory(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.memoryResponse())
}

func (s *Server) handlePutMemory(w http.ResponseWriter, r *http.Request) {
	var body memoryBody
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.deps.Store.SetMemory(body.Memory); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.memoryResponse())
}

func (s *Server) handleClearMemory(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Store.ClearMemory(); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAppendMemory(w http.ResponseWriter, r *http.Request) {
	var body memoryBody
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(body.Text) == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}
	if err := s.deps.Store.UpdateMemory(body.Text); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.memoryResponse())
}

func (s *Server) handleSearchMemory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	results := s.deps.Store.SearchMemory(q)
	if results == nil {
		results = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"query": q, "results": results})
}

func (s *Server) handleMemoryStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Store.MemoryStats())
}

func (s *Server) handleExtractMemory(w http.ResponseWriter, r *http.Request) {
	a := s.assistant(w)
	if a == nil {
		return
	}
	extracted, err := a.SaveExtractedMemory(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	resp := s.memoryResponse()
	writeJSON(w, http.StatusOK, map[string]any{
		"extracted": extracted,
		"memory":    resp.Memory,
		"stats":     resp.Stats,
	})
}

func (s *Server) handleMemorySuggestions(w http.ResponseWriter, r *http.Request) {
	a := s.assistant(w)
	if a == nil {
		return
	}
	suggestions, err := a.MemorySuggestions(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if suggestions == nil {
		suggestions = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"suggestions": suggestions})
}

func (s *Server) handleExportMemory(w http.ResponseWriter, r *http.Request) {
	store := s.deps.Store
	if strings.TrimSpace(store.Memory()) == "" {
		s.fail(w, r, storage.ErrEmptyMemory)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", attachment(storage.MemoryExportName(store.Now())))
	if err := store.ExportMemory(w); err != nil {
		s.log.Warn("export memory", zap.Error(err))
	}
}

func (s *Server) handleImportMemory(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Store.ImportMemory(http.MaxBytesReader(w, r.Body, maxBodyBytes)); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.memoryResponse())
}

type reminderBody struct {
	Text string    `json:"text"`
	Date time.Time `json:"date"`
}

func (s *Server) handleListReminders(w http.ResponseWriter, r *http.Request) {
	reminders, err := s.deps.Store.MemoryReminders()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if reminders == nil {
		reminders = []storage.MemoryReminder{}
	}
	writeJSON(w, http.StatusOK, reminders)
}

// handleAddReminder stores a memory reminder and, when its date is in the
// future and a scheduler is present, schedules it.
func (s *Server) handleAddReminder(w http.ResponseWriter, r *http.Request) {
	var body reminderBody
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(body.Text) == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}
	rem, err := s.deps.Store.AddMemoryReminder(body.Text, body.Date)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if s.deps.Scheduler != nil && body.Date.After(s.deps.Store.Now()) {
		if _, err := s.deps.Scheduler.Schedule(body.Date, notify.MemoryReminderTitle, body.Text); err != nil {
			s.log.Info("memory reminder not scheduled", zap.String("id", rem.ID), zap.Error(err))
		}
	}
	writeJSON(w, http.StatusCreated, rem)
}

func (s *Server) handleDeleteReminder(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Store.DeleteMemoryReminder(chi.URLParam(r, "id")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ============================================================================
// ASSISTANT HELPERS
// ============================================================================

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	a := s.assistant(w)
	if a == nil {
		return
	}
	summary, err := a.Summarize(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"summary": summary,
		"html":    s.deps.Renderer.Markdown(summary),
	})
}

func (s *Server) handleActionItems(w http.ResponseWriter, r *http.Request) {
	a := s.assistant(w)
	if a == nil {
		return
	}
	items, err := a.ExtractActionItems(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if items == nil {
		items = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"actionItems": items})
}

func (s *Server) handleInsights(w http.ResponseWriter, r *http.Request) {
	a := s.assistant(w)
	if a == nil {
		return
	}
	insights, err := a.GenerateInsights(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if insights == nil {
		insights = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"insights": insights})
}

// ============================================================================
// MODELS
// ============================================================================

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	if s.deps.Clients == nil {
		writeError(w, http.StatusServiceUnavailable, "model listing not configured")
		return
	}
	models, err := s.deps.Clients(s.deps.Store.Settings()).ListModels(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if models == nil {
		models = []cloud.ModelInfo{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": models})
}

// ============================================================================
// EXPORT / IMPORT
// ============================================================================

// handleExport downloads the state as json (default), md or html.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	opts := export.DefaultOptions()
	opts.Renderer = s.deps.Renderer
	exp, err := export.ForFormat(r.URL.Query().Get("format"), opts)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	snap := s.deps.Store.Snapshot()
	data, err := exp.Export(snap)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", exp.MimeType()+"; charset=utf-8")
	w.Header().Set("Content-Disposition", attachment(export.FileName(snap.ExportDate, exp)))
	_, _ = w.Write(data)
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	if s.deps.Controller.Busy() {
		s.fail(w, r, conversation.ErrBusy)
		return
	}
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "import too large")
		return
	}
	if err := s.deps.Store.ImportState(data); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func attachment(name string) string {
	return fmt.Sprintf("attachment; filename=%q", name)
}
