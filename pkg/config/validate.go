package config

import (
	"errors"
	"fmt"
	"path"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	// unixNamePattern follows useradd's NAME_REGEX default.
	unixNamePattern = regexp.MustCompile(`^[a-z_][a-z0-9_-]{0,31}$`)

	// pgIdentPattern accepts unquoted PostgreSQL identifiers.
	pgIdentPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

	// memSizePattern accepts sizes such as 500M, 1G or 10m.
	memSizePattern = regexp.MustCompile(`^[0-9]+[KkMmGg]?$`)

	cronFieldPattern = regexp.MustCompile(`^[0-9A-Za-z*/,\-]+$`)

	// serverNamePattern accepts one nginx server name: a host name with an
	// optional leading "*." or "." or a trailing ".*" wildcard.
	serverNamePattern = regexp.MustCompile(`^(\*\.|\.)?[A-Za-z0-9]([A-Za-z0-9-]{0,61}[A-Za-z0-9])?(\.[A-Za-z0-9]([A-Za-z0-9-]{0,61}[A-Za-z0-9])?)*(\.\*)?$`)
)

// NewValidator returns a validator with the custom tags used by
// ProvisioningConfig registered.
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report mapstructure keys so errors name what the operator wrote.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("mapstructure"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	must := func(tag string, fn validator.Func) {
		if err := v.RegisterValidation(tag, fn); err != nil {
			panic(fmt.Sprintf("failed to register %s validator: %v", tag, err))
		}
	}
	must("unixname", func(fl validator.FieldLevel) bool {
		return unixNamePattern.MatchString(fl.Field().String())
	})
	must("pgident", func(fl validator.FieldLevel) bool {
		return pgIdentPattern.MatchString(fl.Field().String())
	})
	must("abspath", func(fl validator.FieldLevel) bool {
		p := fl.Field().String()
		return path.IsAbs(p) && path.Clean(p) == p && p != "/"
	})
	must("memsize", func(fl validator.FieldLevel) bool {
		return memSizePattern.MatchString(fl.Field().String())
	})
	must("cronspec", func(fl validator.FieldLevel) bool {
		return validCronSpec(fl.Field().String())
	})
	must("servernames", func(fl validator.FieldLevel) bool {
		return validServerNames(fl.Field().String())
	})

	return v
}

func validCronSpec(spec string) bool {
	if strings.HasPrefix(spec, "@") {
		switch spec {
		case "@hourly", "@daily", "@weekly", "@monthly", "@yearly", "@annually", "@midnight":
			return true
		}
		return false
	}
	fields := strings.Fields(spec)
	if len(fields) != 5 {
		return false
	}
	for _, f := range fields {
		if !cronFieldPattern.MatchString(f) {
			return false
		}
	}
	return true
}

// validServerNames accepts "_" or a single-space separated list of names
// for the nginx server_name directive.
func validServerNames(s string) bool {
	names := strings.Fields(s)
	if len(names) == 0 || strings.Join(names, " ") != s {
		return false
	}
	for _, name := range names {
		if name != "_" && !serverNamePattern.MatchString(name) {
			return false
		}
	}
	return true
}

// Validate checks cfg against its struct tags and returns every violation.
func Validate(cfg *ProvisioningConfig) error {
	return validateWith(NewValidator(), cfg)
}

func validateWith(v *validator.Validate, cfg *ProvisioningConfig) error {
	err := v.Struct(cfg)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("failed to validate config: %w", err)
	}

	errs := make(ValidationErrors, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		errs = append(errs, ValidationError{
			Path:     fieldPath(fe.Namespace()),
			Message:  describeFieldError(fe),
			Severity: "error",
		})
	}
	return errs
}

// fieldPath turns "ProvisioningConfig.app.log_dir" into "app.log_dir".
func fieldPath(namespace string) string {
	_, rest, ok := strings.Cut(namespace, ".")
	if !ok {
		return namespace
	}
	return rest
}

func describeFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "unixname":
		return fmt.Sprintf("%q is not a valid user or application name (lowercase letters, digits, '-' and '_')", fe.Value())
	case "pgident":
		return fmt.Sprintf("%q is not a valid PostgreSQL identifier (lowercase letters, digits and '_')", fe.Value())
	case "abspath":
		return fmt.Sprintf("%q must be a clean absolute path", fe.Value())
	case "memsize":
		return fmt.Sprintf("%q must be a size such as 500M", fe.Value())
	case "cronspec":
		return fmt.Sprintf("%q is not a cron schedule", fe.Value())
	case "servernames":
		return fmt.Sprintf("%q must be \"_\" or space-separated host names", fe.Value())
	case "min", "max":
		return fmt.Sprintf("must be %s %s", map[string]string{"min": "at least", "max": "at most"}[fe.Tag()], fe.Param())
	default:
		return fmt.Sprintf("failed %q validation", fe.Tag())
	}
}
