package service

import (
	"net/mail"
	"regexp"
	"strings"
	"unicode/utf8"

	waitlistdomain "github.com/smallbiznis/accessgate/internal/waitlist/domain"
)

const (
	maxEmailLength    = 254
	maxNameLength     = 100
	maxReferrerLength = 200
	maxNotesLength    = 1000
)

var (
	handlePattern = regexp.MustCompile(`^@?[A-Za-z0-9_.]{2,30}$`)
	phonePattern  = regexp.MustCompile(`^\+?[0-9 ()-]{7,20}$`)
)

type normalizedJoin struct {
	email    string
	name     *string
	handle   *string
	phone    *string
	referrer *string
	notes    *string
}

func normalizeJoin(req waitlistdomain.JoinRequest) (normalizedJoin, error) {
	fields := map[string]string{}
	out := normalizedJoin{}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	switch {
	case email == "":
		fields["email"] = "email is required"
	case len(email) > maxEmailLength:
		fields["email"] = "email is too long"
	default:
		addr, err := mail.ParseAddress(email)
		if err != nil || addr.Address != email {
			fields["email"] = "email is invalid"
		}
	}
	out.email = email

	out.name = optional(req.Name)
	if out.name != nil && utf8.RuneCountInString(*out.name) > maxNameLength {
		fields["name"] = "name is too long"
	}

	out.handle = optional(req.Handle)
	if out.handle != nil && !handlePattern.MatchString(*out.handle) {
		fields["handle"] = "handle is invalid"
	}

	out.phone = optional(req.Phone)
	if out.phone != nil && !phonePattern.MatchString(*out.phone) {
		fields["phone"] = "phone is invalid"
	}

	out.referrer = optional(req.Referrer)
	if out.referrer != nil && utf8.RuneCountInString(*out.referrer) > maxReferrerLength {
		fields["referrer"] = "referrer is too long"
	}

	out.notes = optional(req.Notes)
	if out.notes != nil && utf8.RuneCountInString(*out.notes) > maxNotesLength {
		fields["notes"] = "notes are too long"
	}

	if !req.AcceptTerms {
		fields["acceptTerms"] = "terms must be accepted"
	}

	if len(fields) > 0 {
		return normalizedJoin{}, &waitlistdomain.ValidationError{Fields: fields}
	}
	return out, nil
}

func optional(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
