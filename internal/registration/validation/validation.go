// Package validation holds the field and format rules for registration forms.
// It is pure: uniqueness and quota are checked elsewhere.
package validation

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"ms-registration/internal/models"
)

// EducationLevels is the fixed set accepted for individual registrations.
var EducationLevels = []string{"sd", "smp", "sma", "smk", "d3", "d4", "s1", "s2", "s3", "other"}

const (
	ReasonRequired    = "is required"
	ReasonEmail       = "must be an email address like name@domain.tld"
	ReasonPhone       = "must contain 10 to 13 digits"
	ReasonEducation   = "must be one of sd, smp, sma, smk, d3, d4, s1, s2, s3, other"
	ReasonKind        = "must be individual or team"
	ReasonQuantity    = "must be at least 1"
	ReasonIdentity    = "an email is required to deliver the ticket"
	ReasonUnknown     = "is invalid"
	ReasonUnknownTier = "unknown ticket tier"
)

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@.]+(\.[^\s@.]+)*\.[A-Za-z]{2,}$`)
	nonDigits    = regexp.MustCompile(`\D`)
	validate     = newValidator()
)

type individualForm struct {
	FullName  string `json:"full_name" validate:"notblank"`
	Email     string `json:"email" validate:"notblank,email_tld"`
	Phone     string `json:"phone" validate:"notblank,phone_digits"`
	Address   string `json:"address" validate:"notblank"`
	Education string `json:"education" validate:"notblank,education"`
}

type teamForm struct {
	TeamName    string `json:"team_name" validate:"notblank"`
	LeaderName  string `json:"leader_name" validate:"notblank"`
	LeaderEmail string `json:"leader_email" validate:"omitempty,email_tld"`
	LeaderPhone string `json:"leader_phone" validate:"omitempty,phone_digits"`
}

type memberForm struct {
	FullName string `json:"full_name" validate:"notblank"`
	Email    string `json:"email" validate:"omitempty,email_tld"`
	Phone    string `json:"phone" validate:"omitempty,phone_digits"`
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	mustRegister(v, "notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	mustRegister(v, "email_tld", func(fl validator.FieldLevel) bool {
		return IsEmail(fl.Field().String())
	})
	mustRegister(v, "phone_digits", func(fl validator.FieldLevel) bool {
		return IsPhone(fl.Field().String())
	})
	mustRegister(v, "education", func(fl validator.FieldLevel) bool {
		return IsEducationLevel(fl.Field().String())
	})
	return v
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("validation: register %q: %v", tag, err))
	}
}

func IsEmail(s string) bool {
	return emailPattern.MatchString(strings.TrimSpace(s))
}

// IsPhone strips everything but digits before counting, so "+62 812-3456-7890" passes.
func IsPhone(s string) bool {
	n := len(nonDigits.ReplaceAllString(s, ""))
	return n >= 10 && n <= 13
}

func IsEducationLevel(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, level := range EducationLevels {
		if s == level {
			return true
		}
	}
	return false
}

// Validate returns nil when the submission is well-formed, otherwise a map of
// field name to reason. Member fields are keyed "members[i].<name>" and the
// identity email "identity.email".
func Validate(sub models.Submission) map[string]string {
	fields := make(map[string]string)

	switch sub.ParticipantKind {
	case models.KindIndividual:
		f := sub.FormFields
		collect(fields, "", validate.Struct(individualForm{
			FullName:  f.FullName,
			Email:     f.Email,
			Phone:     f.Phone,
			Address:   f.Address,
			Education: f.Education,
		}))
	case models.KindTeam:
		f := sub.FormFields
		collect(fields, "", validate.Struct(teamForm{
			TeamName:    f.TeamName,
			LeaderName:  f.LeaderName,
			LeaderEmail: f.LeaderEmail,
			LeaderPhone: f.LeaderPhone,
		}))
		for i, m := range f.Members {
			if !m.Filled() {
				continue
			}
			prefix := fmt.Sprintf("members[%d].", i)
			collect(fields, prefix, validate.Struct(memberForm{FullName: m.FullName, Email: m.Email, Phone: m.Phone}))
		}
	default:
		fields["participant_kind"] = ReasonKind
	}

	if strings.TrimSpace(sub.TierID) == "" {
		fields["tier_id"] = ReasonRequired
	}
	if sub.Quantity < 1 {
		fields["quantity"] = ReasonQuantity
	}

	// the ticket is bound to an email, so one must come from the identity or the form
	if explicit := strings.TrimSpace(sub.Identity.Email); explicit != "" {
		if !IsEmail(explicit) {
			fields["identity.email"] = ReasonEmail
		}
	} else if sub.ContactEmail() == "" {
		if _, reported := fields["email"]; !reported {
			fields["identity.email"] = ReasonIdentity
		}
	}

	if len(fields) == 0 {
		return nil
	}
	return fields
}

func collect(fields map[string]string, prefix string, err error) {
	if err == nil {
		return
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		key := strings.TrimSuffix(prefix, ".")
		if key == "" {
			key = "form_fields"
		}
		fields[key] = ReasonUnknown
		return
	}
	for _, fe := range verrs {
		name := prefix + fe.Field()
		if _, exists := fields[name]; exists {
			continue
		}
		fields[name] = reason(fe)
	}
}

func reason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "notblank":
		return ReasonRequired
	case "email_tld":
		return ReasonEmail
	case "phone_digits":
		return ReasonPhone
	case "education":
		return ReasonEducation
	default:
		return ReasonUnknown
	}
}
