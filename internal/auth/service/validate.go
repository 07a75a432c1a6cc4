package service

import (
	"fmt"
	"regexp"
	"strings"
)

// phonePattern accepts mainland CN mobile numbers with an optional +86 prefix.
var phonePattern = regexp.MustCompile(`^(\+86)?1[3-9]\d{9}$`)

const minPasswordLength = 6

// ValidationError reports a malformed login request field. The handler maps
// it to the parameter-error response code.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// LoginRequest carries the credentials and device metadata of one login
// attempt. IPAddress is filled by the handler, not the client.
type LoginRequest struct {
	Phone         string
	Password      string
	ClientVersion string
	SystemInfo    string
	DeviceID      string
	IPAddress     string
}

// validateLogin checks fields in a fixed order so a request with several
// problems always yields the same error: phone, password, client_version,
// system_info, device_id.
func validateLogin(req *LoginRequest) *ValidationError {
	phone := strings.TrimSpace(req.Phone)
	if phone == "" {
		return &ValidationError{Field: "phone", Message: "is required"}
	}
	if !phonePattern.MatchString(phone) {
		return &ValidationError{Field: "phone", Message: "must be a valid mobile number"}
	}
	if len(req.Password) < minPasswordLength {
		return &ValidationError{Field: "password", Message: fmt.Sprintf("must be at least %d characters", minPasswordLength)}
	}
	if strings.TrimSpace(req.ClientVersion) == "" {
		return &ValidationError{Field: "client_version", Message: "is required"}
	}
	if strings.TrimSpace(req.SystemInfo) == "" {
		return &ValidationError{Field: "system_info", Message: "is required"}
	}
	if strings.TrimSpace(req.DeviceID) == "" {
		return &ValidationError{Field: "device_id", Message: "is required"}
	}
	return nil
}
