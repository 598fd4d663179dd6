package governance

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// ErrDenied is returned by Check when a navigation is refused.
var ErrDenied = errors.New("navigation denied by policy")

// Effect defines the result of a policy evaluation.
type Effect string

const (
	EffectAllow Effect = "allow"
	EffectDeny  Effect = "deny"
)

// Request describes a navigation about to be performed for a task.
type Request struct {
	TaskID string
	URL    string
}

// Result contains the outcome of a policy evaluation.
type Result struct {
	Effect Effect
	Reason string
}

// PolicyEngine evaluates navigations against a set of rules.
type PolicyEngine interface {
	Evaluate(ctx context.Context, req Request) (Result, error)
}

// DefaultPolicyEngine denies by host and by URL pattern; everything else is
// allowed.
type DefaultPolicyEngine struct {
	DeniedHosts map[string]bool
	DeniedRegex []*regexp.Regexp
}

func NewDefaultPolicyEngine() *DefaultPolicyEngine {
	return &DefaultPolicyEngine{
		DeniedHosts: make(map[string]bool),
		DeniedRegex: make([]*regexp.Regexp, 0),
	}
}

// NewPolicyEngine builds an engine denying every URL matching one of patterns.
func NewPolicyEngine(patterns []string) (*DefaultPolicyEngine, error) {
	e := NewDefaultPolicyEngine()
	for _, p := range patterns {
		if err := e.DenyURL(p); err != nil {
			return nil, fmt.Errorf("invalid deny pattern %q: %w", p, err)
		}
	}
	return e, nil
}

// DenyHost refuses navigations to host and its subdomains.
func (e *DefaultPolicyEngine) DenyHost(host string) {
	e.DeniedHosts[strings.ToLower(host)] = true
}

func (e *DefaultPolicyEngine) DenyURL(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	e.DeniedRegex = append(e.DeniedRegex, re)
	return nil
}

func (e *DefaultPolicyEngine) Evaluate(ctx context.Context, req Request) (Result, error) {
	if u, err := url.Parse(req.URL); err == nil && u.Hostname() != "" {
		host := strings.ToLower(u.Hostname())
		for h := range e.DeniedHosts {
			if host == h || strings.HasSuffix(host, "."+h) {
				return Result{
					Effect: EffectDeny,
					Reason: fmt.Sprintf("host '%s' is restricted by system policy", h),
				}, nil
			}
		}
	}

	for _, re := range e.DeniedRegex {
		if re.MatchString(req.URL) {
			return Result{
				Effect: EffectDeny,
				Reason: fmt.Sprintf("URL matches restricted pattern: %s", re.String()),
			}, nil
		}
	}

	return Result{
		Effect: EffectAllow,
		Reason: "approved by default policy",
	}, nil
}

// Check evaluates req and converts a deny into an error wrapping ErrDenied.
// A nil engine allows everything.
func Check(ctx context.Context, p PolicyEngine, req Request) (Result, error) {
	if p == nil {
		return Result{Effect: EffectAllow, Reason: "no policy configured"}, nil
	}
	res, err := p.Evaluate(ctx, req)
	if err != nil {
		return res, err
	}
	if res.Effect == EffectDeny {
		return res, fmt.Errorf("%w: %s", ErrDenied, res.Reason)
	}
	return res, nil
}
