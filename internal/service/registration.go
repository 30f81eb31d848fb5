// Package service contains the business logic layer of the application.
//
// THE THREE-LAYER ARCHITECTURE:
//
//	Handler (HTTP layer)     → parses requests, writes responses
//	Service (Business layer) → validates, enforces rules, orchestrates
//	Repository / clients     → the book index, the webhook, the workspace database
//
// Services never see HTTP types. They return *apperror.AppError values and
// the handler decides which status code each one becomes.
//
// DEPENDENCY INJECTION:
// RegistrationService takes the Forwarder and RegistrationStore interfaces,
// not the concrete webhook and notion clients, so tests pass gomock doubles
// (see mocks/) and main.go decides what is real.
package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/sakif/bookdigest/internal/apperror"
	"github.com/sakif/bookdigest/internal/metrics"
	"github.com/sakif/bookdigest/internal/model"
	"github.com/sakif/bookdigest/internal/privacy"
	"github.com/sakif/bookdigest/internal/telemetry"
)

//go:generate mockgen -source=registration.go -destination=mocks/mocks.go -package=mocks Forwarder,RegistrationStore

// Listing limits for the registrations endpoint.
const (
	DefaultListLimit = 10
	MaxListLimit     = 100

	// MinReferralOther is the shortest accepted "Others" answer.
	MinReferralOther = 2
	MaxReferralOther = 200

	DefaultSimulateDelay = 300 * time.Millisecond
)

// Forwarder posts a registration to the webhook of its location.
type Forwarder interface {
	Configured(loc model.Location) bool
	Forward(ctx context.Context, reg *model.Registration) error
}

// RegistrationStore is the workspace database.
type RegistrationStore interface {
	Save(ctx context.Context, reg *model.Registration) (string, error)
	ListRecent(ctx context.Context, limit int) ([]model.RegistrationSummary, error)
}

// SubmitInput is everything the handler extracts from the request.
type SubmitInput struct {
	// Location is the raw ?loc= value.
	Location  string
	Body      io.Reader
	VisitorID string
	UserAgent string
	ClientIP  string
}

// SubmitResult describes how a submission was handled. Exactly one of ID,
// Forwarded and Simulated is set.
type SubmitResult struct {
	ID        string
	Forwarded bool
	Simulated bool
}

// ListResult is the registrations listing.
type ListResult struct {
	Items     []model.RegistrationSummary
	Simulated bool
}

// submitPayload is the JSON body sent by the signup form. Age and Consent
// stay raw so their type can be checked in the right order.
type submitPayload struct {
	FirstName     string          `json:"firstName"`
	LastName      string          `json:"lastName"`
	Age           json.RawMessage `json:"age"`
	Profession    string          `json:"profession"`
	Email         string          `json:"email"`
	Instagram     string          `json:"instagram"`
	Referral      string          `json:"referral"`
	ReferralOther string          `json:"referralOther"`
	Consent       json.RawMessage `json:"consent"`
	Timestamp     string          `json:"timestamp"`
	Website       string          `json:"website"`
}

// RegistrationService validates signups and dispatches them.
type RegistrationService struct {
	forwarder     Forwarder
	store         RegistrationStore
	saveToStore   bool
	simulateDelay time.Duration

	validate *validator.Validate
	hasher   *privacy.Hasher
	metrics  *metrics.Metrics
	logger   *slog.Logger
	tracer   trace.Tracer
	now      func() time.Time
	newID    func() string
}

// Option configures a RegistrationService.
type Option func(*RegistrationService)

func WithLogger(logger *slog.Logger) Option {
	return func(s *RegistrationService) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *RegistrationService) { s.metrics = m }
}

// WithHasher sets the pseudonymiser for e-mails in logs.
func WithHasher(h *privacy.Hasher) Option {
	return func(s *RegistrationService) { s.hasher = h }
}

func WithSimulateDelay(d time.Duration) Option {
	return func(s *RegistrationService) { s.simulateDelay = d }
}

// WithSaveToStore enables writing rows to the store on submit.
func WithSaveToStore(enabled bool) Option {
	return func(s *RegistrationService) { s.saveToStore = enabled }
}

// WithClock overrides time.Now and the id generator, for tests.
func WithClock(now func() time.Time, newID func() string) Option {
	return func(s *RegistrationService) {
		s.now = now
		s.newID = newID
	}
}

// NewRegistrationService creates the service. forwarder and store may be
// nil when the webhook or the workspace database is not configured.
func NewRegistrationService(forwarder Forwarder, store RegistrationStore, opts ...Option) *RegistrationService {
	s := &RegistrationService{
		forwarder:     forwarder,
		store:         store,
		simulateDelay: DefaultSimulateDelay,
		validate:      newValidator(),
		logger:        slog.Default(),
		tracer:        telemetry.Tracer(),
		now:           time.Now,
		newID:         uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report JSON names ("firstName") rather than Go names in errors.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// =========================================================================
// SUBMIT
// =========================================================================

// Submit validates and dispatches one signup.
//
// Checks run in a fixed order and the first failure wins: location, then
// the payload itself (JSON, names, e-mail, age, profession), then referral,
// referralOther and finally consent.
//
// Dispatch: forward to the location's webhook when one is configured;
// then, if saving is enabled, store the row and return its id. With no
// webhook and no save, the submission is simulated after a short delay.
func (s *RegistrationService) Submit(ctx context.Context, in SubmitInput) (*SubmitResult, error) {
	ctx, span := s.tracer.Start(ctx, "RegistrationService.Submit")
	defer span.End()

	reg, honeypot, err := s.parse(in)
	if err != nil {
		s.record(in.Location, metrics.OutcomeInvalid)
		span.SetStatus(codes.Error, "invalid submission")
		s.logger.InfoContext(ctx, "registration rejected",
			slog.String("location", locationLabel(in.Location)),
			slog.String("reason", errorCode(err)),
			slog.String("ip_prefix", privacy.AnonymizeIP(in.ClientIP)),
		)
		return nil, err
	}
	span.SetAttributes(attribute.String("registration.location", string(reg.Location)))

	client := privacy.ParseUserAgent(in.UserAgent)
	logger := s.logger.With(
		slog.String("registration_id", reg.ID),
		slog.String("location", string(reg.Location)),
		slog.String("email_hash", s.pseudonym(reg.Email)),
		slog.String("browser", client.Browser),
		slog.String("os", client.OS),
		slog.Bool("mobile", client.Mobile),
	)

	if honeypot {
		logger.WarnContext(ctx, "honeypot field filled, dropping submission",
			slog.String("ip_prefix", privacy.AnonymizeIP(in.ClientIP)),
		)
		s.record(string(reg.Location), metrics.OutcomeHoneypot)
		if err := s.sleep(ctx); err != nil {
			return nil, err
		}
		return &SubmitResult{Simulated: true}, nil
	}

	forwarded := false
	if s.forwarder != nil && s.forwarder.Configured(reg.Location) {
		if err := s.forward(ctx, reg); err != nil {
			logger.ErrorContext(ctx, "webhook forward failed", slog.String("error", err.Error()))
			s.record(string(reg.Location), metrics.OutcomeUpstream)
			span.SetStatus(codes.Error, "webhook forward failed")
			return nil, apperror.Upstream("webhook", err)
		}
		forwarded = true
	}

	if s.saveToStore && s.store != nil {
		id, err := s.save(ctx, reg)
		if err != nil {
			logger.ErrorContext(ctx, "saving registration failed", slog.String("error", err.Error()))
			s.record(string(reg.Location), metrics.OutcomeUpstream)
			span.SetStatus(codes.Error, "store save failed")
			return nil, apperror.Upstream("workspace database", err)
		}
		logger.InfoContext(ctx, "registration stored", slog.String("row_id", id), slog.Bool("forwarded", forwarded))
		s.record(string(reg.Location), metrics.OutcomeStored)
		return &SubmitResult{ID: id}, nil
	}

	if !forwarded {
		if err := s.sleep(ctx); err != nil {
			return nil, err
		}
		logger.InfoContext(ctx, "registration simulated, no processor configured")
		s.record(string(reg.Location), metrics.OutcomeSimulated)
		return &SubmitResult{Simulated: true}, nil
	}

	logger.InfoContext(ctx, "registration forwarded")
	s.record(string(reg.Location), metrics.OutcomeForwarded)
	return &SubmitResult{Forwarded: true}, nil
}

// parse runs every check in order and builds the registration. honeypot is
// true when the hidden "website" field was filled; validation still has to
// pass first so bots cannot tell the difference from the response.
func (s *RegistrationService) parse(in SubmitInput) (reg *model.Registration, honeypot bool, err error) {
	loc, ok := model.ParseLocation(in.Location)
	if !ok {
		return nil, false, apperror.Invalid(apperror.CodeInvalidLocation, "loc", "Invalid location")
	}

	if in.Body == nil {
		return nil, false, apperror.ValidationFailed("", "Invalid payload")
	}
	var p submitPayload
	if err := json.NewDecoder(in.Body).Decode(&p); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, false, apperror.ValidationFailed("", "Request body too large")
		}
		return nil, false, apperror.ValidationFailed("", "Invalid payload")
	}

	reg = &model.Registration{
		ID:            s.newID(),
		Location:      loc,
		FirstName:     p.FirstName,
		LastName:      p.LastName,
		Profession:    p.Profession,
		Email:         p.Email,
		Instagram:     p.Instagram,
		Referral:      model.Referral(p.Referral),
		ReferralOther: p.ReferralOther,
		Timestamp:     strings.TrimSpace(p.Timestamp),
		VisitorID:     strings.TrimSpace(in.VisitorID),
		Website:       strings.TrimSpace(p.Website),
		ReceivedAt:    s.now(),
	}
	reg.Normalize()

	age, ageErr := parseAge(p.Age)
	reg.Age = age

	// Field rules for the payload proper; referral and consent have their
	// own error codes and are checked afterwards.
	if err := s.validate.StructExcept(reg, "Location", "Referral", "ReferralOther", "Consent"); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) || len(verrs) == 0 {
			return nil, false, fmt.Errorf("validating registration: %w", err)
		}
		fe := verrs[0]
		if fe.Field() == "age" && ageErr != nil {
			return nil, false, apperror.ValidationFailed("age", ageErr.Error())
		}
		return nil, false, apperror.ValidationFailed(fe.Field(), fieldMessage(fe))
	}
	if ageErr != nil {
		return nil, false, apperror.ValidationFailed("age", ageErr.Error())
	}

	referral, ok := model.ParseReferral(p.Referral)
	if !ok {
		return nil, false, apperror.Invalid(apperror.CodeInvalidReferral, "referral", "Invalid referral")
	}
	reg.Referral = referral

	if referral == model.ReferralOthers {
		n := len([]rune(reg.ReferralOther))
		if n < MinReferralOther || n > MaxReferralOther {
			return nil, false, apperror.Invalid(apperror.CodeInvalidReferralOther, "referralOther", "Invalid referralOther")
		}
	}

	if !bytes.Equal(bytes.TrimSpace(p.Consent), []byte("true")) {
		return nil, false, apperror.Invalid(apperror.CodeConsentRequired, "consent", "Consent required")
	}
	reg.Consent = true

	return reg, reg.Website != "", nil
}

// parseAge accepts a JSON number or a numeric string.
func parseAge(raw json.RawMessage) (int, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, errors.New("age is required")
	}
	s := string(raw)
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, errors.New("age must be a whole number")
		}
	}
	age, err := model.ParseAge(s)
	if err != nil {
		return 0, errors.New("age must be a whole number")
	}
	return age, nil
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "email":
		return "email must be a valid email address"
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	case "gte", "lte":
		return fmt.Sprintf("age must be between %d and %d", model.MinAge, model.MaxAge)
	default:
		return fe.Field() + " is invalid"
	}
}

func (s *RegistrationService) forward(ctx context.Context, reg *model.Registration) error {
	ctx, span := s.tracer.Start(ctx, "webhook.Forward")
	defer span.End()

	start := time.Now()
	err := s.forwarder.Forward(ctx, reg)
	s.observeUpstream("webhook", start, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "forward failed")
	}
	return err
}

func (s *RegistrationService) save(ctx context.Context, reg *model.Registration) (string, error) {
	ctx, span := s.tracer.Start(ctx, "store.Save")
	defer span.End()

	start := time.Now()
	id, err := s.store.Save(ctx, reg)
	s.observeUpstream("notion", start, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "save failed")
	}
	return id, err
}

// sleep waits out the simulate delay unless ctx ends first.
func (s *RegistrationService) sleep(ctx context.Context) error {
	if s.simulateDelay <= 0 {
		return nil
	}
	t := time.NewTimer(s.simulateDelay)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// =========================================================================
// LIST
// =========================================================================

// ParseListLimit reads the ?limit= value: unparseable means the default,
// anything else is clamped to [1, MaxListLimit].
func ParseListLimit(raw string) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return DefaultListLimit
	}
	return min(MaxListLimit, max(1, n))
}

// ListRecent returns the newest stored registrations, or a simulated empty
// list when no store is configured.
func (s *RegistrationService) ListRecent(ctx context.Context, limit int) (*ListResult, error) {
	if s.store == nil {
		return &ListResult{Items: []model.RegistrationSummary{}, Simulated: true}, nil
	}

	ctx, span := s.tracer.Start(ctx, "store.ListRecent")
	defer span.End()

	start := time.Now()
	items, err := s.store.ListRecent(ctx, limit)
	s.observeUpstream("notion", start, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list failed")
		return nil, fmt.Errorf("listing registrations: %w", err)
	}
	if items == nil {
		items = []model.RegistrationSummary{}
	}
	return &ListResult{Items: items}, nil
}

// =========================================================================
// HELPERS
// =========================================================================

func (s *RegistrationService) record(location, outcome string) {
	if s.metrics != nil {
		s.metrics.RecordSubmission(locationLabel(location), outcome)
	}
}

// locationLabel keeps raw query values out of logs and metric labels.
func locationLabel(raw string) string {
	if loc, ok := model.ParseLocation(raw); ok {
		return string(loc)
	}
	return "unknown"
}

func (s *RegistrationService) observeUpstream(target string, start time.Time, err error) {
	if s.metrics != nil {
		s.metrics.ObserveUpstream(target, time.Since(start), err)
	}
}

func (s *RegistrationService) pseudonym(email string) string {
	if s.hasher == nil {
		return ""
	}
	return s.hasher.Pseudonym(email)
}

func errorCode(err error) string {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return apperror.CodeServer
}
