package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/tvecera/zivyobraz-kindle-proxy/pkg/models"
	"go.uber.org/multierr"
)

// Error is a configuration error. It carries every violation found, not just the first.
type Error struct {
	Violations []error
}

func newError(errs ...error) *Error {
	return &Error{Violations: errs}
}

func (e *Error) Error() string {
	msgs := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		msgs[i] = v.Error()
	}
	return "invalid configuration: " + strings.Join(msgs, "; ")
}

// Unwrap exposes the individual violations to errors.Is / errors.As
func (e *Error) Unwrap() []error {
	return e.Violations
}

var structValidator = newStructValidator()

func newStructValidator() *validator.Validate {
	v := validator.New()
	// Report fields by their YAML key so messages match the config file
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	// Endpoints are registered verbatim as ServeMux patterns
	if err := v.RegisterValidation("endpoint", func(fl validator.FieldLevel) bool {
		return models.ValidateEndpoint(fl.Field().String()) == nil
	}); err != nil {
		panic(err)
	}
	return v
}

// validate checks the document and resolves derived fields.
// All violations are collected into a single *Error.
func validate(doc *document) error {
	var err error

	if verr := structValidator.Struct(doc); verr != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(verr, &fieldErrs) {
			return newError(verr)
		}
		for _, fe := range fieldErrs {
			err = multierr.Append(err, fieldError(fe))
		}
	}

	err = multierr.Append(err, validateUnique(doc))

	needsImport := false
	for _, d := range doc.Devices {
		if d.ImportDeviceInfo {
			needsImport = true
			break
		}
	}
	if needsImport && doc.Zivyobraz.APIImportURL == "" {
		err = multierr.Append(err, errors.New("zivyobraz.api_import_url: required when a device sets import_device_info"))
	}

	tz := doc.Zivyobraz.PreferredTimezone
	if tz == "" {
		tz = "UTC"
	}
	loc, lerr := time.LoadLocation(tz)
	if lerr != nil {
		err = multierr.Append(err, fmt.Errorf("zivyobraz.preferred_timezone: unknown timezone %q", tz))
	} else {
		doc.Zivyobraz.Location = loc
	}

	if err != nil {
		return newError(multierr.Errors(err)...)
	}
	return nil
}

// validateUnique rejects duplicate device names and endpoints
func validateUnique(doc *document) error {
	var err error
	names := make(map[string]int)
	endpoints := make(map[string]int)

	for i, d := range doc.Devices {
		if d.Name != "" {
			if first, exists := names[d.Name]; exists {
				err = multierr.Append(err, fmt.Errorf("devices[%d].name: duplicate name %q (first used by devices[%d])", i, d.Name, first))
			} else {
				names[d.Name] = i
			}
		}
		if d.Endpoint != "" {
			if first, exists := endpoints[d.Endpoint]; exists {
				err = multierr.Append(err, fmt.Errorf("devices[%d].endpoint: duplicate endpoint %q (first used by devices[%d])", i, d.Endpoint, first))
			} else {
				endpoints[d.Endpoint] = i
			}
		}
	}

	return err
}

// fieldError turns a validator failure into a message keyed by the YAML path
func fieldError(fe validator.FieldError) error {
	field := fe.Namespace()
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}

	switch fe.Tag() {
	case "required":
		return fmt.Errorf("%s: missing required key", field)
	case "oneof":
		return fmt.Errorf("%s: invalid value %q, must be one of [%s]", field, fe.Value(), strings.ReplaceAll(fe.Param(), " ", ", "))
	case "gt":
		return fmt.Errorf("%s: must be greater than %s", field, fe.Param())
	case "min":
		return fmt.Errorf("%s: must contain at least %s entry", field, fe.Param())
	case "url":
		return fmt.Errorf("%s: invalid URL %q", field, fe.Value())
	case "endpoint":
		return fmt.Errorf("%s: invalid endpoint %q: %v", field, fe.Value(), models.ValidateEndpoint(fmt.Sprint(fe.Value())))
	default:
		return fmt.Errorf("%s: failed %s validation", field, fe.Tag())
	}
}
