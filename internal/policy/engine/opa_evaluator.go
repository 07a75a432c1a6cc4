package engine

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/v1/rego"
)

const policyQuery = "data.jjds.login"

// Default policy: every authenticated user may log in from any known device
// class. Operators restrict logins by replacing this document, e.g.
//
//	package jjds.login
//	default allow = true
//	default reason = ""
//	allow = false if {
//	    input.device_class == "tool"
//	    input.role == "client_default"
//	}
//	reason = "tool logins are limited to staff" if { not allow }
const defaultRegoPolicy = `package jjds.login

default allow = true
default reason = ""
`

// OPAEvaluator evaluates login policy with the in-process OPA Rego engine.
// The policy document is compiled once at construction; evaluation itself is
// read-only and safe for concurrent use.
type OPAEvaluator struct {
	prepared rego.PreparedEvalQuery
}

// NewOPAEvaluator compiles the given Rego document (the embedded default
// when policySource is empty) and returns an evaluator bound to it.
func NewOPAEvaluator(ctx context.Context, policySource string) (*OPAEvaluator, error) {
	if policySource == "" {
		policySource = defaultRegoPolicy
	}
	prepared, err := rego.New(
		rego.Query(policyQuery),
		rego.Module("login_policy.rego", policySource),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile login policy: %w", err)
	}
	return &OPAEvaluator{prepared: prepared}, nil
}

// EvaluateLogin evaluates the login policy for input. A policy that yields
// no result, or a non-boolean allow, is an evaluation error.
func (e *OPAEvaluator) EvaluateLogin(ctx context.Context, input LoginInput) (*Decision, error) {
	rs, err := e.prepared.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, fmt.Errorf("evaluate login policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return nil, fmt.Errorf("login policy produced no result")
	}
	doc, ok := rs[0].Expressions[0].Value.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("login policy document has unexpected shape %T", rs[0].Expressions[0].Value)
	}
	allow, ok := doc["allow"].(bool)
	if !ok {
		return nil, fmt.Errorf("login policy allow is not a boolean")
	}
	d := &Decision{Allow: allow}
	if reason, ok := doc["reason"].(string); ok {
		d.Reason = reason
	}
	if !d.Allow && d.Reason == "" {
		d.Reason = "login denied by policy"
	}
	return d, nil
}

// HealthCheck evaluates the compiled policy against a minimal input.
// Returns nil when the engine is usable.
func (e *OPAEvaluator) HealthCheck(ctx context.Context) error {
	_, err := e.EvaluateLogin(ctx, LoginInput{
		UserID:      0,
		Role:        "client_default",
		DeviceClass: "tool",
	})
	return err
}
