// Package webhook forwards registrations to the per-location form
// processor (a Tally-style webhook).
//
// The processor expects a flat JSON object whose keys match the columns of
// the club's signup sheet, so Payload spells them out exactly, including the
// ones with spaces and the columns the form does not collect yet.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/sakif/bookdigest/internal/config"
	"github.com/sakif/bookdigest/internal/model"
)

// Payload is the body posted to the webhook.
type Payload struct {
	Name             string `json:"Name"`
	Email            string `json:"Email"`
	Age              int    `json:"Age"`
	Occupation       string `json:"Occupation"`
	InstagramAccount string `json:"InstagramAccount"`
	FindingUs        string `json:"FindingUs"`
	FindingUsOthers  string `json:"findingUsOthers"`
	Purpose          string `json:"Purpose"`
	Attendance       string `json:"Attendance"`
	Status           string `json:"status"`
	Owner            string `json:"Owner"`
	ID               string `json:"ID"`
	Title            string `json:"Title"`
	VisitorID        string `json:"visitorId"`
	BankAccount      string `json:"bankAccount"`
	CreatedDate      string `json:"Created Date"`
	UpdatedDate      string `json:"Updated Date"`
	Location         string `json:"location"`
}

// StatusNew is the initial value of the sheet's "status" column.
const StatusNew = "new"

// NewPayload maps a validated registration to the webhook columns.
// "Created Date" is the client timestamp verbatim when one was sent,
// otherwise the time the server received the submission.
func NewPayload(reg *model.Registration, now time.Time) Payload {
	created := reg.Timestamp
	if created == "" {
		received := reg.ReceivedAt
		if received.IsZero() {
			received = now
		}
		created = received.UTC().Format(time.RFC3339)
	}

	other := ""
	if reg.Referral == model.ReferralOthers {
		other = reg.ReferralOther
	}

	return Payload{
		Name:             reg.FullName(),
		Email:            reg.Email,
		Age:              reg.Age,
		Occupation:       reg.Profession,
		InstagramAccount: reg.Instagram,
		FindingUs:        string(reg.Referral),
		FindingUsOthers:  other,
		Status:           StatusNew,
		ID:               reg.ID,
		Title:            reg.Title(),
		VisitorID:        reg.VisitorID,
		CreatedDate:      created,
		UpdatedDate:      now.UTC().Format(time.RFC3339),
		Location:         string(reg.Location),
	}
}

// StatusError is returned when the webhook answers with a non-2xx status.
// The upstream body is drained but never kept.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("webhook: unexpected status %d", e.StatusCode)
}

// Client posts payloads to the configured endpoints.
type Client struct {
	endpoints config.Webhook
	http      *http.Client
	now       func() time.Time
}

// New returns a Client with a traced transport and the configured timeout.
func New(cfg config.Webhook) *Client {
	return &Client{
		endpoints: cfg,
		http: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		now: time.Now,
	}
}

// Configured reports whether loc has a webhook endpoint.
func (c *Client) Configured(loc model.Location) bool {
	return c.endpoints.Endpoint(loc) != ""
}

// Forward posts reg to the endpoint for its location.
func (c *Client) Forward(ctx context.Context, reg *model.Registration) error {
	endpoint := c.endpoints.Endpoint(reg.Location)
	if endpoint == "" {
		return fmt.Errorf("webhook: no endpoint for location %q", reg.Location)
	}

	body, err := json.Marshal(NewPayload(reg, c.now()))
	if err != nil {
		return fmt.Errorf("webhook: encoding payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: posting: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{StatusCode: resp.StatusCode}
	}
	return nil
}
