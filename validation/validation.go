// Package validation checks user registration and contact form input before
// anything is written to the database.
//
// Values arrive untyped: JSON bodies decode into float64, string, bool or nil,
// url-encoded forms into strings. Each validator is a pure function that
// returns nil or an error whose message is safe to show to the submitter.
package validation

import (
	"errors"
	"fmt"
	"math"
	"net/mail"
	"net/url"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Length limits for free-text fields.
const (
	MinNameLength    = 2
	MaxNameLength    = 120
	MinMessageLength = 10
	MaxMessageLength = 5000
	MinAge           = 1
	MaxAge           = 150
)

// Fields is a decoded submission keyed by field name.
type Fields map[string]any

// FieldsFromForm converts url-encoded form values, keeping the first value
// of every key.
func FieldsFromForm(form url.Values) Fields {
	fields := make(Fields, len(form))
	for k, v := range form {
		if len(v) > 0 {
			fields[k] = v[0]
		}
	}
	return fields
}

// String returns the trimmed string value of a field, or "" when the field
// is absent or not a string.
func (f Fields) String(key string) string {
	s, _ := f[key].(string)
	return strings.TrimSpace(s)
}

// Errors maps field names to messages. An empty Errors means valid input.
type Errors map[string]string

// Valid reports whether no field failed.
func (e Errors) Valid() bool {
	return len(e) == 0
}

func (e Errors) add(field string, err error) {
	if err != nil {
		e[field] = err.Error()
	}
}

// RequiredField fails for nil values and whitespace-only strings.
func RequiredField(value any, field string) error {
	if value == nil {
		return requiredError(field)
	}
	if s, ok := value.(string); ok && strings.TrimSpace(s) == "" {
		return requiredError(field)
	}
	return nil
}

func requiredError(field string) error {
	return fmt.Errorf("%s is required and cannot be empty", field)
}

// boundedText validates a required string whose trimmed length, counted in
// characters, must fall within [min, max].
func boundedText(value any, field string, min, max int) error {
	if err := RequiredField(value, field); err != nil {
		return err
	}
	s, ok := value.(string)
	if !ok {
		return fmt.Errorf("%s must be a string", field)
	}
	n := utf8.RuneCountInString(strings.TrimSpace(s))
	switch {
	case n < min:
		return fmt.Errorf("%s must be at least %d characters long", field, min)
	case n > max:
		return fmt.Errorf("%s must not exceed %d characters", field, max)
	}
	return nil
}

// Name validates a person's name.
func Name(value any) error {
	return boundedText(value, "Name", MinNameLength, MaxNameLength)
}

// Message validates a contact message body.
func Message(value any) error {
	return boundedText(value, "Message", MinMessageLength, MaxMessageLength)
}

// Email validates the syntax of a bare email address as submitted, so
// surrounding whitespace is an error. Deliverability is not checked.
func Email(value any) error {
	if value == nil {
		return errors.New("Email is required")
	}
	s, ok := value.(string)
	if !ok {
		return errors.New("Email must be a string")
	}
	if strings.TrimSpace(s) == "" {
		return errors.New("Email is required")
	}
	if err := checkEmail(s); err != nil {
		return fmt.Errorf("Invalid email format: %s", err.Error())
	}
	return nil
}

func checkEmail(s string) error {
	if strings.TrimSpace(s) != s {
		return errors.New("the address must not start or end with whitespace")
	}
	addr, err := mail.ParseAddress(s)
	if err != nil {
		return errors.New(strings.TrimPrefix(err.Error(), "mail: "))
	}
	if addr.Name != "" || addr.Address != s {
		return errors.New("expected a bare address without a display name")
	}

	at := strings.LastIndexByte(s, '@')
	if at <= 0 {
		return errors.New("there must be something before the @-sign")
	}
	return checkDomain(s[at+1:])
}

func checkDomain(domain string) error {
	if domain == "" {
		return errors.New("there must be something after the @-sign")
	}
	labels := strings.Split(domain, ".")
	if len(labels) < 2 {
		return fmt.Errorf("the domain name %s is not valid, it should have a period", domain)
	}
	for _, label := range labels {
		if label == "" {
			return errors.New("an empty label is not allowed in the domain name")
		}
		if strings.HasPrefix(label, "-") || strings.HasSuffix(label, "-") {
			return fmt.Errorf("the domain label %q cannot start or end with a hyphen", label)
		}
		for _, r := range label {
			if !isDomainRune(r) {
				return fmt.Errorf("the domain name contains an invalid character %q", r)
			}
		}
	}
	tld := labels[len(labels)-1]
	if _, err := strconv.Atoi(tld); err == nil {
		return fmt.Errorf("the domain name %s is not valid, it is not within a valid top-level domain", domain)
	}
	return nil
}

func isDomainRune(r rune) bool {
	return r == '-' ||
		(r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9')
}

// Age validates an age given as a JSON number or an integer string.
func Age(value any) error {
	if value == nil {
		return errors.New("Age is required")
	}
	age, err := ParseAge(value)
	if err != nil {
		return err
	}
	switch {
	case age < MinAge:
		return errors.New("Age must be a positive integer")
	case age > MaxAge:
		return fmt.Errorf("Age must be a realistic value (less than %d)", MaxAge)
	}
	return nil
}

var errAgeNotInteger = errors.New("Age must be a valid integer")

// ParseAge converts a submitted age into an int. Integers too large for an
// int are clamped just outside the valid range so Age reports them as out of
// range rather than malformed.
func ParseAge(value any) (int, error) {
	switch v := value.(type) {
	case int:
		return v, nil
	case int64:
		return clampAge(float64(v)), nil
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) || v != math.Trunc(v) {
			return 0, errAgeNotInteger
		}
		return clampAge(v), nil
	case string:
		s := strings.TrimSpace(v)
		n, err := strconv.Atoi(s)
		if err == nil {
			return n, nil
		}
		if errors.Is(err, strconv.ErrRange) {
			if strings.HasPrefix(s, "-") {
				return MinAge - 1, nil
			}
			return MaxAge + 1, nil
		}
		return 0, errAgeNotInteger
	default:
		return 0, errAgeNotInteger
	}
}

func clampAge(v float64) int {
	switch {
	case v > MaxAge:
		return MaxAge + 1
	case v < MinAge:
		return MinAge - 1
	}
	return int(v)
}

// UserData validates a registration: name, email and age.
func UserData(fields Fields) Errors {
	errs := Errors{}
	errs.add("name", Name(fields["name"]))
	errs.add("email", Email(fields["email"]))
	errs.add("age", Age(fields["age"]))
	return errs
}

// ContactData validates a contact form: name, email and message.
func ContactData(fields Fields) Errors {
	errs := Errors{}
	errs.add("name", Name(fields["name"]))
	errs.add("email", Email(fields["email"]))
	errs.add("message", Message(fields["message"]))
	return errs
}
