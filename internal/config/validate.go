package config

import (
	stderrors "errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/rileyhilliard/fleet/internal/errors"
	"github.com/rileyhilliard/fleet/internal/security"
)

var validate = validator.New()

// FieldError is a single structural problem found in the config.
type FieldError struct {
	Field   string
	Message string
}

// FieldErrors collects every structural problem so they can be reported at once.
type FieldErrors []FieldError

func (f FieldErrors) Error() string {
	msgs := make([]string, len(f))
	for i, e := range f {
		msgs[i] = fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return strings.Join(msgs, "; ")
}

// Validate checks the config for errors and returns structured error messages.
// Structural rules come from struct tags; values that will reach a shell
// (names, addresses, users, key paths, search paths) then go through the
// security layer.
func Validate(cfg *Config) error {
	if cfg.Version > CurrentConfigVersion {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("This config is from the future (version %d, but fleet only knows up to %d)", cfg.Version, CurrentConfigVersion),
			"Upgrade fleet to read this config")
	}

	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if stderrors.As(err, &verrs) {
			fields := make(FieldErrors, 0, len(verrs))
			for _, e := range verrs {
				fields = append(fields, FieldError{
					Field:   fieldPath(e.Namespace()),
					Message: formatValidationMessage(e),
				})
			}
			return errors.WrapWithCode(fields, errors.ErrConfig,
				"Config has invalid values",
				"Fix the fields listed above in "+ConfigFileName)
		}
		return errors.WrapWithCode(err, errors.ErrConfig, "Config validation failed", "")
	}

	seen := make(map[string]bool, len(cfg.Hosts))
	for _, h := range cfg.Hosts {
		if seen[h.Name] {
			return errors.New(errors.ErrConfig,
				fmt.Sprintf("Host '%s' is defined more than once", h.Name),
				"Host names must be unique")
		}
		seen[h.Name] = true

		if err := ValidateHost(h); err != nil {
			return err
		}
	}
	return nil
}

// ValidateHost runs the security checks for one host entry.
func ValidateHost(h HostConfig) error {
	wrap := func(err error) error {
		return errors.WrapWithCode(err, errors.ErrConfig,
			fmt.Sprintf("Host '%s' has an unsafe value", h.Name),
			"Host names, addresses and users may only use letters, digits, '.', '_' and '-'").WithHost(h.Name)
	}

	if _, err := security.ValidateHost(h.Name); err != nil {
		return wrap(err)
	}
	if h.Address != "" {
		if _, err := security.ValidateHost(h.Address); err != nil {
			return wrap(err)
		}
	}
	if h.User != "" {
		if _, err := security.ValidateUser(h.User); err != nil {
			return wrap(err)
		}
	}
	if h.KeyPath != "" {
		if _, err := security.ValidateKeyPath(h.KeyPath); err != nil {
			return wrap(err)
		}
	}
	for _, p := range h.SearchPaths {
		if _, err := security.ValidatePath(p); err != nil {
			return wrap(err)
		}
	}
	return nil
}

// fieldPath turns "Config.Hosts[0].Port" into "hosts[0].port".
func fieldPath(namespace string) string {
	parts := strings.Split(namespace, ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	for i, p := range parts {
		parts[i] = toSnakeCase(p)
	}
	return strings.Join(parts, ".")
}

func formatValidationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required", "required_unless":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s", e.Param())
	case "max":
		if e.Kind().String() == "string" {
			return fmt.Sprintf("must be at most %s characters", e.Param())
		}
		return fmt.Sprintf("must be at most %s", e.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", e.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", e.Param())
	case "startswith":
		return fmt.Sprintf("must start with %q", e.Param())
	default:
		return fmt.Sprintf("failed %s validation", e.Tag())
	}
}

func toSnakeCase(s string) string {
	var b strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 && runes[i-1] != '[' && !unicode.IsUpper(runes[i-1]) {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
