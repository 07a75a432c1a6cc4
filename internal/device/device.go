// Package device maps client-supplied device identifiers to a closed set of
// device classes. The class decides which prior session a login supersedes:
// at most one session may exist per (user, class) pair.
package device

import "strings"

// Class is the device class of a login, derived from the device identifier.
type Class string

const (
	ClassWeb     Class = "web"
	ClassClient  Class = "client"
	ClassTool    Class = "tool"
	ClassUnknown Class = "unknown"
)

// Valid reports whether c is one of the known classes (not ClassUnknown).
func (c Class) Valid() bool {
	switch c {
	case ClassWeb, ClassClient, ClassTool:
		return true
	}
	return false
}

// Classify returns the device class for a device identifier by
// case-insensitive substring match. Identifiers may contain more than one
// class token; precedence is tool > client > web so classification stays
// deterministic. Identifiers matching no token classify as ClassUnknown and
// are rejected by the login flow rather than defaulted, to avoid evicting an
// unrelated class's session.
func Classify(deviceID string) Class {
	id := strings.ToLower(deviceID)
	switch {
	case strings.Contains(id, "tool"):
		return ClassTool
	case strings.Contains(id, "client"):
		return ClassClient
	case strings.Contains(id, "web"):
		return ClassWeb
	default:
		return ClassUnknown
	}
}
