package models

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// Service routes served next to the device endpoints
const (
	HealthPath  = "/health"
	DevicesPath = "/devices"
)

// ValidateEndpoint checks that endpoint is a literal URL path that matches
// exactly one request path. Wildcards, whitespace, trailing-slash subtrees and
// the service routes are rejected.
func ValidateEndpoint(endpoint string) error {
	if !strings.HasPrefix(endpoint, "/") {
		return errors.New("must start with \"/\"")
	}
	if strings.IndexFunc(endpoint, unicode.IsSpace) >= 0 {
		return errors.New("must not contain whitespace")
	}
	if strings.ContainsAny(endpoint, "{}") {
		return errors.New("must not contain \"{\" or \"}\"")
	}
	if strings.HasSuffix(endpoint, "/") {
		return errors.New("must not end with \"/\"")
	}
	if endpoint == HealthPath || endpoint == DevicesPath || strings.HasPrefix(endpoint, DevicesPath+"/") {
		return fmt.Errorf("%s is reserved", endpoint)
	}
	return nil
}
