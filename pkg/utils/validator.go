package utils

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

var tenantIDRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_\-]{0,63}$`)

// ValidateTenantID validates a tenant identifier
func ValidateTenantID(tenantID string) error {
	if !tenantIDRegex.MatchString(tenantID) {
		return fmt.Errorf("invalid tenant id: %s", tenantID)
	}
	return nil
}

// ValidateUploadFileName validates an uploaded document file name
func ValidateUploadFileName(name string) error {
	if name == "" {
		return fmt.Errorf("file name is required")
	}
	if name != filepath.Base(name) {
		return fmt.Errorf("file name must not contain path separators: %s", name)
	}
	if !strings.EqualFold(filepath.Ext(name), ".pdf") {
		return fmt.Errorf("only PDF files are supported: %s", name)
	}
	return nil
}

// SanitizeString removes potentially harmful characters
func SanitizeString(s string) string {
	// Remove control characters and potential SQL injection patterns
	sanitized := regexp.MustCompile(`[\x00-\x1f\x7f]`).ReplaceAllString(s, "")
	return sanitized
}
