package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/sandeepkv93/activity-logging-gateway/internal/activity"
	"github.com/sandeepkv93/activity-logging-gateway/internal/auth"
	"github.com/sandeepkv93/activity-logging-gateway/internal/capture"
	"github.com/sandeepkv93/activity-logging-gateway/internal/domain"
	"github.com/sandeepkv93/activity-logging-gateway/internal/fingerprint"
	"github.com/sandeepkv93/activity-logging-gateway/internal/gateway"
	"github.com/sandeepkv93/activity-logging-gateway/internal/http/response"
	"github.com/sandeepkv93/activity-logging-gateway/internal/observability"
	"github.com/sandeepkv93/activity-logging-gateway/internal/security"
)

type ClientRegistry interface {
	Open(ctx context.Context, claims *security.Claims, clientID string, env fingerprint.Environment) (*gateway.Client, string, error)
	Get(userID, clientID string) (*gateway.Client, error)
	Close(ctx context.Context, userID, clientID string) error
}

// ClientHandler serves the per-client capture endpoints under
// /api/v1/clients/{client_id}.
type ClientHandler struct {
	clients  ClientRegistry
	validate *validator.Validate
}

func NewClientHandler(clients ClientRegistry, validate *validator.Validate) *ClientHandler {
	if validate == nil {
		validate = NewValidator()
	}
	return &ClientHandler{clients: clients, validate: validate}
}

type openSessionResponse struct {
	ClientID    string `json:"client_id"`
	SessionID   string `json:"session_id,omitempty"`
	Initialized bool   `json:"initialized"`
}

func (h *ClientHandler) OpenSession(w http.ResponseWriter, r *http.Request) {
	claims, err := claimsFromRequest(r)
	if err != nil {
		response.Error(w, r, http.StatusUnauthorized, response.CodeUnauthorized, "invalid user", nil)
		return
	}
	var env fingerprint.Environment
	if err := decodeJSON(r, &env, true); err != nil {
		writeDecodeError(w, r, err)
		return
	}
	if env.IPAddress == "" {
		env.IPAddress = remoteIP(r)
	}
	clientID := chi.URLParam(r, "client_id")
	c, sessionID, err := h.clients.Open(r.Context(), claims, clientID, env)
	if err != nil {
		if errors.Is(err, gateway.ErrInvalidClient) {
			response.Error(w, r, http.StatusBadRequest, response.CodeBadRequest, "invalid client id", nil)
			return
		}
		response.Error(w, r, http.StatusInternalServerError, response.CodeInternal, "failed to open client", nil)
		return
	}
	observability.Audit(r, "client.open", "user_id", claims.UserID(), "client_id", clientID, "session_id", sessionID)
	response.JSON(w, r, http.StatusOK, openSessionResponse{
		ClientID:    clientID,
		SessionID:   sessionID,
		Initialized: c.Logger.Initialized(),
	})
}

func (h *ClientHandler) CloseSession(w http.ResponseWriter, r *http.Request) {
	claims, err := claimsFromRequest(r)
	if err != nil {
		response.Error(w, r, http.StatusUnauthorized, response.CodeUnauthorized, "invalid user", nil)
		return
	}
	clientID := chi.URLParam(r, "client_id")
	if err := h.clients.Close(r.Context(), claims.UserID(), clientID); err != nil {
		writeClientError(w, r, err)
		return
	}
	observability.Audit(r, "client.close", "user_id", claims.UserID(), "client_id", clientID)
	response.JSON(w, r, http.StatusOK, map[string]any{"client_id": clientID, "status": "closed"})
}

type eventsResponse struct {
	Received int `json:"received"`
	Handled  int `json:"handled"`
	Queued   int `json:"queued"`
}

// Events accepts one browser event or an array of them and dispatches them to
// the client's listeners.
func (h *ClientHandler) Events(w http.ResponseWriter, r *http.Request) {
	c, ok := h.client(w, r)
	if !ok {
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeDecodeError(w, r, err)
		return
	}
	events, err := capture.Decode(body)
	if err != nil {
		response.Error(w, r, http.StatusBadRequest, response.CodeBadRequest, "invalid events payload", map[string]string{"reason": err.Error()})
		return
	}
	handled := c.Dispatch(r.Context(), events)
	response.JSON(w, r, http.StatusAccepted, eventsResponse{
		Received: len(events),
		Handled:  handled,
		Queued:   c.Logger.QueueLen(),
	})
}

func (h *ClientHandler) Navigate(w http.ResponseWriter, r *http.Request) {
	c, ok := h.client(w, r)
	if !ok {
		return
	}
	var pv capture.PageView
	if !h.decodeAndValidate(w, r, &pv) {
		return
	}
	logged := c.Tracker.Navigate(r.Context(), pv)
	response.JSON(w, r, http.StatusAccepted, map[string]any{"logged": logged, "path": pv.Path})
}

type activityRequest struct {
	ActivityType   string         `json:"activity_type" validate:"required,activity_type"`
	Category       string         `json:"category" validate:"omitempty,max=32"`
	Label          string         `json:"label" validate:"omitempty,max=255"`
	Details        map[string]any `json:"details"`
	Metadata       map[string]any `json:"metadata"`
	PageURL        string         `json:"page_url" validate:"omitempty,max=2048"`
	PageTitle      string         `json:"page_title" validate:"omitempty,max=512"`
	Route          string         `json:"route" validate:"omitempty,max=512"`
	ElementID      string         `json:"element_id" validate:"omitempty,max=255"`
	ElementClass   string         `json:"element_class" validate:"omitempty,max=512"`
	ElementType    string         `json:"element_type" validate:"omitempty,max=64"`
	ElementText    string         `json:"element_text" validate:"omitempty,max=512"`
	LoadTimeMs     *int64         `json:"load_time_ms" validate:"omitempty,gte=0"`
	ResponseTimeMs *int64         `json:"response_time_ms" validate:"omitempty,gte=0"`
	Success        *bool          `json:"success"`
	ErrorMessage   string         `json:"error_message"`
	ErrorCode      string         `json:"error_code" validate:"omitempty,max=64"`
}

func (h *ClientHandler) LogActivity(w http.ResponseWriter, r *http.Request) {
	c, ok := h.client(w, r)
	if !ok {
		return
	}
	var req activityRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	record := c.Logger.LogActivity(r.Context(), activity.Entry{
		Type:           domain.ActivityType(req.ActivityType),
		Category:       req.Category,
		Label:          req.Label,
		Details:        req.Details,
		Metadata:       req.Metadata,
		PageURL:        req.PageURL,
		PageTitle:      req.PageTitle,
		Route:          req.Route,
		ElementID:      req.ElementID,
		ElementClass:   req.ElementClass,
		ElementType:    req.ElementType,
		ElementText:    req.ElementText,
		LoadTimeMs:     req.LoadTimeMs,
		ResponseTimeMs: req.ResponseTimeMs,
		Success:        req.Success,
		ErrorMessage:   req.ErrorMessage,
		ErrorCode:      req.ErrorCode,
	})
	response.JSON(w, r, http.StatusAccepted, record)
}

func (h *ClientHandler) Flush(w http.ResponseWriter, r *http.Request) {
	c, ok := h.client(w, r)
	if !ok {
		return
	}
	if err := c.Logger.Flush(r.Context()); err != nil {
		response.Error(w, r, http.StatusBadGateway, response.CodeUpstream, "flush failed, records kept for retry", map[string]int{"queued": c.Logger.QueueLen()})
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]int{"queued": c.Logger.QueueLen()})
}

type aiPromptRequest struct {
	PromptType     string          `json:"prompt_type" validate:"required,max=64"`
	Model          string          `json:"model" validate:"required,max=128"`
	PromptText     string          `json:"prompt_text" validate:"required"`
	ResponseText   string          `json:"response_text"`
	Parameters     map[string]any  `json:"parameters"`
	TokensInput    int             `json:"tokens_input" validate:"gte=0"`
	TokensOutput   int             `json:"tokens_output" validate:"gte=0"`
	Cost           decimal.Decimal `json:"cost"`
	ResponseTimeMs int64           `json:"response_time_ms" validate:"gte=0"`
	Success        *bool           `json:"success"`
	ErrorMessage   string          `json:"error_message"`
	Metadata       map[string]any  `json:"metadata"`
}

func (h *ClientHandler) LogAIPrompt(w http.ResponseWriter, r *http.Request) {
	c, ok := h.client(w, r)
	if !ok {
		return
	}
	var req aiPromptRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	if req.Cost.IsNegative() {
		response.Error(w, r, http.StatusBadRequest, response.CodeValidation, "invalid request", []fieldError{{Field: "cost", Rule: "gte", Param: "0"}})
		return
	}
	row, err := c.Logger.LogAIPrompt(r.Context(), activity.AIPromptParams{
		PromptType:     req.PromptType,
		Model:          req.Model,
		PromptText:     req.PromptText,
		ResponseText:   req.ResponseText,
		Parameters:     req.Parameters,
		TokensInput:    req.TokensInput,
		TokensOutput:   req.TokensOutput,
		Cost:           req.Cost,
		ResponseTimeMs: req.ResponseTimeMs,
		Success:        req.Success,
		ErrorMessage:   req.ErrorMessage,
		Metadata:       req.Metadata,
	})
	writeSpecialized(w, r, row, err)
}

type emailRequest struct {
	Recipient    string         `json:"recipient" validate:"required,email,max=320"`
	Subject      string         `json:"subject" validate:"required,max=512"`
	Template     string         `json:"template" validate:"omitempty,max=128"`
	Status       string         `json:"status" validate:"omitempty,oneof=sent failed"`
	MessageID    string         `json:"message_id" validate:"omitempty,max=255"`
	ErrorMessage string         `json:"error_message"`
	Metadata     map[string]any `json:"metadata"`
}

func (h *ClientHandler) LogEmail(w http.ResponseWriter, r *http.Request) {
	c, ok := h.client(w, r)
	if !ok {
		return
	}
	var req emailRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	row, err := c.Logger.LogEmailSent(r.Context(), activity.EmailParams{
		Recipient:    req.Recipient,
		Subject:      req.Subject,
		Template:     req.Template,
		Status:       req.Status,
		MessageID:    req.MessageID,
		ErrorMessage: req.ErrorMessage,
		Metadata:     req.Metadata,
	})
	writeSpecialized(w, r, row, err)
}

type fileUploadRequest struct {
	FileName     string         `json:"file_name" validate:"required,max=512"`
	FileSize     int64          `json:"file_size" validate:"gte=0"`
	MimeType     string         `json:"mime_type" validate:"omitempty,max=128"`
	StoragePath  string         `json:"storage_path" validate:"omitempty,max=1024"`
	Success      *bool          `json:"success"`
	ErrorMessage string         `json:"error_message"`
	Metadata     map[string]any `json:"metadata"`
}

func (h *ClientHandler) LogFileUpload(w http.ResponseWriter, r *http.Request) {
	c, ok := h.client(w, r)
	if !ok {
		return
	}
	var req fileUploadRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	row, err := c.Logger.LogFileUpload(r.Context(), activity.FileUploadParams{
		FileName:     req.FileName,
		FileSize:     req.FileSize,
		MimeType:     req.MimeType,
		StoragePath:  req.StoragePath,
		Success:      req.Success,
		ErrorMessage: req.ErrorMessage,
		Metadata:     req.Metadata,
	})
	writeSpecialized(w, r, row, err)
}

func (h *ClientHandler) client(w http.ResponseWriter, r *http.Request) (*gateway.Client, bool) {
	claims, err := claimsFromRequest(r)
	if err != nil {
		response.Error(w, r, http.StatusUnauthorized, response.CodeUnauthorized, "invalid user", nil)
		return nil, false
	}
	c, err := h.clients.Get(claims.UserID(), chi.URLParam(r, "client_id"))
	if err != nil {
		writeClientError(w, r, err)
		return nil, false
	}
	return c, true
}

func (h *ClientHandler) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := decodeJSON(r, dst, false); err != nil {
		writeDecodeError(w, r, err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		response.Error(w, r, http.StatusBadRequest, response.CodeValidation, "invalid request", validationDetails(err))
		return false
	}
	return true
}

func writeSpecialized[T any](w http.ResponseWriter, r *http.Request, row *T, err error) {
	if err != nil {
		if errors.Is(err, auth.ErrNoUser) {
			response.Error(w, r, http.StatusUnauthorized, response.CodeUnauthorized, "no signed-in user for this client", nil)
			return
		}
		response.Error(w, r, http.StatusInternalServerError, response.CodeInternal, "failed to write log", nil)
		return
	}
	response.JSON(w, r, http.StatusCreated, row)
}

func writeClientError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, gateway.ErrClientNotFound) {
		response.Error(w, r, http.StatusNotFound, response.CodeNotFound, "client not found", nil)
		return
	}
	response.Error(w, r, http.StatusInternalServerError, response.CodeInternal, "client lookup failed", nil)
}

func writeDecodeError(w http.ResponseWriter, r *http.Request, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		response.Error(w, r, http.StatusRequestEntityTooLarge, response.CodeBadRequest, "request body too large", nil)
		return
	}
	response.Error(w, r, http.StatusBadRequest, response.CodeBadRequest, "invalid JSON body", nil)
}
