// Package notion stores registrations as rows of a Notion database and
// reads the most recent ones back.
//
// Only the two REST endpoints the site needs are implemented: page create
// and database query. Requests are authenticated with the integration token
// through an oauth2 static token source, which adds the Bearer header.
package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/oauth2"

	"github.com/sakif/bookdigest/internal/config"
	"github.com/sakif/bookdigest/internal/model"
)

// Page size bounds accepted by the database query endpoint.
const (
	MinPageSize = 1
	MaxPageSize = 100
)

// maxErrorBody caps how much of an error response is read.
const maxErrorBody = 16 << 10

// APIError is the error object returned by the Notion API.
type APIError struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("notion: %d %s: %s", e.Status, e.Code, e.Message)
}

// Client talks to one Notion database.
type Client struct {
	baseURL    string
	databaseID string
	version    string
	http       *http.Client
}

// New builds a Client from cfg. Proxies are taken from the environment
// (HTTPS_PROXY and friends).
func New(cfg config.Notion) *Client {
	base := http.DefaultTransport.(*http.Transport).Clone()
	base.Proxy = http.ProxyFromEnvironment

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		databaseID: cfg.DatabaseID,
		version:    cfg.Version,
		http: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &oauth2.Transport{
				Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token, TokenType: "Bearer"}),
				Base:   otelhttp.NewTransport(base),
			},
		},
	}
}

// =========================================================================
// WIRE TYPES
// =========================================================================

type text struct {
	Type      string       `json:"type,omitempty"`
	Text      *textContent `json:"text,omitempty"`
	PlainText string       `json:"plain_text,omitempty"`
}

type textContent struct {
	Content string `json:"content"`
}

type selectOption struct {
	Name string `json:"name"`
}

type titleProperty struct {
	Title []text `json:"title"`
}

type richTextProperty struct {
	RichText []text `json:"rich_text"`
}

type emailProperty struct {
	Email string `json:"email"`
}

type numberProperty struct {
	Number *int `json:"number"`
}

type selectProperty struct {
	Select selectOption `json:"select"`
}

// propertyValue is the union of the property shapes read back.
type propertyValue struct {
	Title    []text        `json:"title"`
	RichText []text        `json:"rich_text"`
	Email    *string       `json:"email"`
	Number   *float64      `json:"number"`
	Select   *selectOption `json:"select"`
}

type page struct {
	ID             string                   `json:"id"`
	CreatedTime    time.Time                `json:"created_time"`
	LastEditedTime time.Time                `json:"last_edited_time"`
	Properties     map[string]propertyValue `json:"properties"`
}

type createPageRequest struct {
	Parent     parent         `json:"parent"`
	Properties map[string]any `json:"properties"`
}

type parent struct {
	DatabaseID string `json:"database_id"`
}

type queryRequest struct {
	PageSize int        `json:"page_size"`
	Sorts    []sortSpec `json:"sorts"`
}

type sortSpec struct {
	Timestamp string `json:"timestamp"`
	Direction string `json:"direction"`
}

type queryResponse struct {
	Results []page `json:"results"`
}

// texts is never nil, so empty values encode as [] which clears the cell.
func texts(s string) []text {
	if s == "" {
		return []text{}
	}
	return []text{{Type: "text", Text: &textContent{Content: s}}}
}

func richText(s string) richTextProperty {
	return richTextProperty{RichText: texts(s)}
}

// Properties maps a registration to the database columns.
func Properties(reg *model.Registration) map[string]any {
	age := reg.Age
	other := ""
	if reg.Referral == model.ReferralOthers {
		other = reg.ReferralOther
	}

	props := map[string]any{
		"Title":            titleProperty{Title: texts(reg.Title())},
		"Name":             richText(reg.FullName()),
		"Email":            emailProperty{Email: reg.Email},
		"Location":         selectProperty{Select: selectOption{Name: string(reg.Location)}},
		"Age":              numberProperty{Number: &age},
		"Occupation":       richText(reg.Profession),
		"InstagramAccount": richText(reg.Instagram),
		"FindingUs":        selectProperty{Select: selectOption{Name: string(reg.Referral)}},
		"findingUsOthers":  richText(other),
		"ID":               richText(reg.ID),
	}
	if reg.VisitorID != "" {
		props["visitorId"] = richText(reg.VisitorID)
	}
	return props
}

// =========================================================================
// OPERATIONS
// =========================================================================

// Save creates a row for reg and returns the new page id.
func (c *Client) Save(ctx context.Context, reg *model.Registration) (string, error) {
	req := createPageRequest{
		Parent:     parent{DatabaseID: c.databaseID},
		Properties: Properties(reg),
	}
	var created page
	if err := c.do(ctx, "/pages", req, &created); err != nil {
		return "", err
	}
	if created.ID == "" {
		return "", fmt.Errorf("notion: create page returned no id")
	}
	return created.ID, nil
}

// ListRecent returns up to limit rows, newest first. limit is clamped to
// [MinPageSize, MaxPageSize].
func (c *Client) ListRecent(ctx context.Context, limit int) ([]model.RegistrationSummary, error) {
	req := queryRequest{
		PageSize: ClampPageSize(limit),
		Sorts:    []sortSpec{{Timestamp: "created_time", Direction: "descending"}},
	}
	var resp queryResponse
	if err := c.do(ctx, "/databases/"+c.databaseID+"/query", req, &resp); err != nil {
		return nil, err
	}

	items := make([]model.RegistrationSummary, 0, len(resp.Results))
	for _, p := range resp.Results {
		items = append(items, summarize(p))
	}
	return items, nil
}

// ClampPageSize bounds n to the range the query endpoint accepts.
func ClampPageSize(n int) int {
	return min(MaxPageSize, max(MinPageSize, n))
}

func summarize(p page) model.RegistrationSummary {
	props := p.Properties
	s := model.RegistrationSummary{
		ID:              p.ID,
		Title:           firstPlain(props["Title"].Title),
		Name:            firstPlain(props["Name"].RichText),
		Occupation:      firstPlain(props["Occupation"].RichText),
		Instagram:       firstPlain(props["InstagramAccount"].RichText),
		FindingUsOthers: firstPlain(props["findingUsOthers"].RichText),
		CreatedTime:     p.CreatedTime,
		LastEditedTime:  p.LastEditedTime,
	}
	if e := props["Email"].Email; e != nil {
		s.Email = *e
	}
	if sel := props["Location"].Select; sel != nil {
		s.Location = sel.Name
	}
	if sel := props["FindingUs"].Select; sel != nil {
		s.FindingUs = sel.Name
	}
	if n := props["Age"].Number; n != nil && *n == math.Trunc(*n) {
		age := int(*n)
		s.Age = &age
	}
	return s
}

func firstPlain(ts []text) string {
	if len(ts) == 0 {
		return ""
	}
	if ts[0].PlainText != "" {
		return ts[0].PlainText
	}
	if ts[0].Text != nil {
		return ts[0].Text.Content
	}
	return ""
}

// do POSTs body as JSON to path and decodes a 2xx response into out.
func (c *Client) do(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("notion: encoding request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("notion: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Notion-Version", c.version)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("notion: %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		if json.Unmarshal(data, apiErr) != nil || apiErr.Code == "" {
			apiErr.Code = "unknown"
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		apiErr.Status = resp.StatusCode
		return apiErr
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("notion: decoding %s response: %w", path, err)
	}
	return nil
}
