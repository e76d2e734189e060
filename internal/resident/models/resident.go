package models

import (
	"strings"
	"time"

	id "gatepass/pkg/domain"
	dErrors "gatepass/pkg/domain-errors"
)

// CountryCode is prepended when a national number is normalized to
// international form.
const CountryCode = "38"

// Resident is a registered requester. Phone is always stored normalized.
type Resident struct {
	ID        id.RequesterID
	FullName  string
	Flat      string
	Phone     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewResident builds a resident from registration input, applying the
// storage normalization rules.
func NewResident(requester id.RequesterID, fullName, flat, phone string, now time.Time) (*Resident, error) {
	if requester.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "resident identity is required")
	}
	fullName = strings.TrimSpace(fullName)
	if fullName == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "resident name is required")
	}
	flat = NormalizeFlat(flat)
	if flat == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "resident flat is required")
	}
	return &Resident{
		ID:        requester,
		FullName:  fullName,
		Flat:      flat,
		Phone:     NormalizePhone(phone),
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// NormalizeFlat trims and upper-cases a flat label ("12a " -> "12A").
func NormalizeFlat(flat string) string {
	return strings.ToUpper(strings.TrimSpace(flat))
}

// NormalizePhone keeps digits only and rewrites national numbers to
// international form: a 10-digit number with trunk prefix 0 gets the
// country code prepended, a bare 9-digit subscriber number gets the country
// code and the trunk digit. Applying it twice yields the same value.
func NormalizePhone(phone string) string {
	var b strings.Builder
	b.Grow(len(phone))
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	switch {
	case len(digits) == 10 && digits[0] == '0':
		digits = CountryCode + digits
	case len(digits) == 9:
		digits = CountryCode + "0" + digits
	}
	return digits
}

// LookupKeys returns the phone values a lookup must match: the raw input
// and its normalized form, so unnormalized legacy records still resolve.
func LookupKeys(phone string) []string {
	raw := strings.TrimSpace(phone)
	normalized := NormalizePhone(raw)
	if raw == "" {
		return nil
	}
	if raw == normalized || normalized == "" {
		return []string{raw}
	}
	return []string{raw, normalized}
}
