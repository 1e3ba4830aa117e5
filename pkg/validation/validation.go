// Package validation provides functions for validating input data.
package validation

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/http/httpguts"
)

// MaxIndexNameLength is the longest index name accepted by every engine.
const MaxIndexNameLength = 255

var validIndexNameRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.\-]*$`)

// ValidateIndexName validates that an index name is safe to use as a
// collection name on the engine and as a key in the embedded store:
// ASCII alphanumerics, underscore, dot and dash, starting with an
// alphanumeric.
func ValidateIndexName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("index name cannot be empty or consist only of whitespace")
	}

	// Check for null bytes explicitly
	if strings.Contains(name, "\x00") {
		return fmt.Errorf("index name cannot contain null bytes")
	}

	if len(name) > MaxIndexNameLength {
		return fmt.Errorf("index name exceeds maximum length of %d bytes", MaxIndexNameLength)
	}

	if !validIndexNameRegex.MatchString(name) {
		return fmt.Errorf("index name can only contain alphanumeric characters, underscores, dots and dashes, "+
			"and must start with an alphanumeric character: %q", name)
	}

	return nil
}

// ValidateHTTPHeaderName validates that a string is a valid HTTP header name per RFC 7230.
// It checks for CRLF injection, control characters, and ensures RFC token compliance.
func ValidateHTTPHeaderName(name string) error {
	if name == "" {
		return fmt.Errorf("header name cannot be empty")
	}

	// Length limit to prevent DoS
	if len(name) > 256 {
		return fmt.Errorf("header name exceeds maximum length of 256 bytes")
	}

	// Use httpguts validation (same as Go's HTTP/2 implementation)
	if !httpguts.ValidHeaderFieldName(name) {
		return fmt.Errorf("invalid HTTP header name: contains invalid characters")
	}

	return nil
}

// ValidateHTTPHeaderValue validates that a string is a valid HTTP header value per RFC 7230.
// It checks for CRLF injection and control characters.
func ValidateHTTPHeaderValue(value string) error {
	if value == "" {
		return fmt.Errorf("header value cannot be empty")
	}

	// Length limit to prevent DoS (common HTTP server limit)
	if len(value) > 8192 {
		return fmt.Errorf("header value exceeds maximum length of 8192 bytes")
	}

	if !httpguts.ValidHeaderFieldValue(value) {
		return fmt.Errorf("invalid HTTP header value: contains control characters")
	}

	return nil
}

// ValidateBaseURL validates a service base URL: an http or https scheme, a
// host, and no fragment.
func ValidateBaseURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("base URL cannot be empty")
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("base URL must use http or https: %s", raw)
	}

	if parsed.Host == "" {
		return fmt.Errorf("base URL must include a host: %s", raw)
	}

	if parsed.Fragment != "" {
		return fmt.Errorf("base URL must not contain fragments (#): %s", raw)
	}

	return nil
}
