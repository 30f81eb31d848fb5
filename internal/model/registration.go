// Package model defines the data structures used throughout the application.
// In Go, we use structs to represent our data. Struct tags on these types
// drive two things: JSON encoding (`json:"..."`) and the field rules checked
// by go-playground/validator (`validate:"..."`).
package model

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Location identifies which chapter of the club a signup is for.
type Location string

const (
	LocationTW Location = "TW"
	LocationNL Location = "NL"
)

// Locations lists every chapter in display order.
var Locations = []Location{LocationTW, LocationNL}

// ParseLocation accepts exactly "TW" or "NL".
func ParseLocation(s string) (Location, bool) {
	switch Location(s) {
	case LocationTW, LocationNL:
		return Location(s), true
	}
	return "", false
}

// Referral is the "how did you find us" answer.
type Referral string

const (
	ReferralInstagram Referral = "Instagram"
	ReferralFacebook  Referral = "Facebook"
	ReferralOthers    Referral = "Others"
)

// Referrals lists the accepted referral answers in form order.
var Referrals = []Referral{ReferralInstagram, ReferralFacebook, ReferralOthers}

// ParseReferral accepts one of Referrals, case-sensitively.
func ParseReferral(s string) (Referral, bool) {
	switch Referral(s) {
	case ReferralInstagram, ReferralFacebook, ReferralOthers:
		return Referral(s), true
	}
	return "", false
}

// Age bounds accepted by the signup form.
const (
	MinAge = 13
	MaxAge = 120
)

// Registration is a single book-club signup.
//
// It is created per form submission, validated, and then either forwarded
// to a webhook, written to the workspace database, or discarded after a
// simulated success. Nothing here is persisted locally.
//
// ReferralOther is only meaningful when Referral is Others; Normalize clears
// it otherwise so the validator rules below can be expressed declaratively.
type Registration struct {
	ID            string    `json:"id"`
	Location      Location  `json:"location"      validate:"required,oneof=TW NL"`
	FirstName     string    `json:"firstName"     validate:"required,max=100"`
	LastName      string    `json:"lastName"      validate:"required,max=100"`
	Age           int       `json:"age"           validate:"gte=13,lte=120"`
	Profession    string    `json:"profession"    validate:"required,max=120"`
	Email         string    `json:"email"         validate:"required,email,max=254"`
	Instagram     string    `json:"instagram,omitempty" validate:"max=100"`
	Referral      Referral  `json:"referral"      validate:"required,oneof=Instagram Facebook Others"`
	ReferralOther string    `json:"referralOther,omitempty" validate:"required_if=Referral Others,omitempty,min=2,max=200"`
	Consent       bool      `json:"consent"       validate:"eq=true"`
	Timestamp     string    `json:"timestamp,omitempty"`
	VisitorID     string    `json:"visitorId,omitempty"`
	Website       string    `json:"-"`
	ReceivedAt    time.Time `json:"-"`
}

// Normalize trims free-text fields and drops ReferralOther unless the
// referral is Others.
func (r *Registration) Normalize() {
	r.FirstName = strings.TrimSpace(r.FirstName)
	r.LastName = strings.TrimSpace(r.LastName)
	r.Profession = strings.TrimSpace(r.Profession)
	r.Email = strings.TrimSpace(r.Email)
	r.Instagram = strings.TrimSpace(r.Instagram)
	r.ReferralOther = strings.TrimSpace(r.ReferralOther)
	if r.Referral != ReferralOthers {
		r.ReferralOther = ""
	}
}

// FullName joins first and last name.
func (r *Registration) FullName() string {
	return strings.TrimSpace(r.FirstName + " " + r.LastName)
}

// Title is the row title used by downstream processors, e.g. "Ada Lovelace — TW".
func (r *Registration) Title() string {
	return strings.TrimSpace(fmt.Sprintf("%s — %s", r.FullName(), r.Location))
}

// CreatedAt returns the client-supplied timestamp when it parses as RFC3339,
// falling back to the time the server received the submission.
func (r *Registration) CreatedAt() time.Time {
	if r.Timestamp != "" {
		if t, err := time.Parse(time.RFC3339, r.Timestamp); err == nil {
			return t.UTC()
		}
	}
	return r.ReceivedAt.UTC()
}

// ParseAge converts the raw age value from the form into an int.
//
// The form sends a JSON number, but older clients send the value as a
// string. Both are accepted as long as the value is a whole number;
// "25.0" is fine, "25.5" and "" are not. Range checks are left to the
// validator.
func ParseAge(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, fmt.Errorf("age is required")
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("age %q is not a number", raw)
	}
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("age %q is not a whole number", raw)
	}
	if f < math.MinInt32 || f > math.MaxInt32 {
		return 0, fmt.Errorf("age %q is out of range", raw)
	}
	return int(f), nil
}

// RegistrationSummary is the read-back shape of a stored registration row.
// Age is a pointer because the workspace database allows an empty number.
type RegistrationSummary struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Name            string    `json:"name"`
	Email           string    `json:"email"`
	Location        string    `json:"location"`
	Age             *int      `json:"age"`
	Occupation      string    `json:"occupation"`
	Instagram       string    `json:"instagram"`
	FindingUs       string    `json:"findingUs"`
	FindingUsOthers string    `json:"findingUsOthers"`
	CreatedTime     time.Time `json:"createdTime"`
	LastEditedTime  time.Time `json:"lastEditedTime"`
}
