// Package engine evaluates login policy: whether a given user may open a
// session from a given device class. The default policy allows every known
// class; operators install a restrictive Rego document via config.
package engine

import "context"

// LoginInput is the policy input document for one login attempt.
type LoginInput struct {
	UserID      int64  `json:"user_id"`
	Role        string `json:"role"`
	DeviceClass string `json:"device_class"`
}

// Decision is the policy outcome. Reason is operator-facing and safe to
// return to clients; it carries no credential material.
type Decision struct {
	Allow  bool
	Reason string
}

// Evaluator decides login policy.
type Evaluator interface {
	// EvaluateLogin returns the decision for one login attempt. An
	// evaluation failure is an internal error, not a denial.
	EvaluateLogin(ctx context.Context, input LoginInput) (*Decision, error)
	// HealthCheck verifies the engine can evaluate its policy.
	HealthCheck(ctx context.Context) error
}
