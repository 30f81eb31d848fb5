package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/sakif/bookdigest/internal/model"
	"github.com/sakif/bookdigest/internal/service"
	"github.com/sakif/bookdigest/internal/visitor"
)

// VisitorHeader lets the signup script pass its own visitor id.
const VisitorHeader = "X-Visitor-ID"

// Registrations is the subset of RegistrationService the API handlers use.
type Registrations interface {
	Submit(ctx context.Context, in service.SubmitInput) (*service.SubmitResult, error)
	ListRecent(ctx context.Context, limit int) (*service.ListResult, error)
}

// RegistrationHandler serves the signup API.
type RegistrationHandler struct {
	service Registrations
	logger  *slog.Logger
}

func NewRegistrationHandler(svc Registrations, logger *slog.Logger) *RegistrationHandler {
	return &RegistrationHandler{service: svc, logger: logger}
}

// SubmitResponse is the 201 body. Exactly one of ID, Forwarded and
// Simulated is present.
type SubmitResponse struct {
	OK        bool   `json:"ok"`
	ID        string `json:"id,omitempty"`
	Forwarded bool   `json:"forwarded,omitempty"`
	Simulated bool   `json:"simulated,omitempty"`
}

// ListResponse is the registrations listing body.
type ListResponse struct {
	Items     []model.RegistrationSummary `json:"items"`
	Simulated bool                        `json:"simulated,omitempty"`
}

// HandleSubmit accepts one signup.
//
// HTTP: POST /api/submit?loc=TW
// REQUEST BODY: {"firstName":"Mei","lastName":"Lin","age":29,...,"consent":true}
//
// The body size limit is applied by middleware before this handler runs;
// the service reports an oversize body as invalid_payload.
func (h *RegistrationHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	visitorID := r.Header.Get(VisitorHeader)
	if visitorID == "" {
		visitorID, _ = visitor.FromContext(r.Context())
	}

	res, err := h.service.Submit(r.Context(), service.SubmitInput{
		Location:  r.URL.Query().Get("loc"),
		Body:      r.Body,
		VisitorID: visitorID,
		UserAgent: r.UserAgent(),
		ClientIP:  r.RemoteAddr,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, SubmitResponse{
		OK:        true,
		ID:        res.ID,
		Forwarded: res.Forwarded,
		Simulated: res.Simulated,
	})
}

// HandleList returns the newest stored registrations.
//
// HTTP: GET /api/registrations?limit=10
func (h *RegistrationHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	limit := service.ParseListLimit(r.URL.Query().Get("limit"))

	res, err := h.service.ListRecent(r.Context(), limit)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, ListResponse{Items: res.Items, Simulated: res.Simulated})
}
