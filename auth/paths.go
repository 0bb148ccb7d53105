package auth

import "strings"

// MatchKind says how a PathRule compares against a request path.
type MatchKind int

const (
	MatchExact MatchKind = iota
	MatchPrefix
)

// PathRule is one entry of the public-path policy.
type PathRule struct {
	Kind    MatchKind
	Pattern string
}

func (r PathRule) matches(path string) bool {
	if r.Kind == MatchPrefix {
		return strings.HasPrefix(path, r.Pattern)
	}
	return path == r.Pattern
}

// DefaultPublicExact lists the paths that never require a token.
var DefaultPublicExact = []string{
	"/",
	"/health",
	"/docs",
	"/openapi.json",
	"/redoc",
	"/metrics",
	"/api",
	"/api/health",
}

// DefaultPublicPrefix lists the path prefixes that never require a token:
// documentation assets and the endpoints that hand out tokens.
var DefaultPublicPrefix = []string{
	"/docs/",
	"/swagger/",
	"/api/auth/register",
	"/api/auth/login",
	"/api/auth/refresh",
}

// apiPrefix marks the paths served by the API. Anything else is front-end content.
const apiPrefix = "/api"

// PathPolicy is an ordered list of public-path rules. It holds no mutable
// state, so one instance is shared by all requests.
type PathPolicy struct {
	rules []PathRule
}

// NewPathPolicy builds a policy with exact rules first, then prefix rules.
func NewPathPolicy(exact, prefix []string) *PathPolicy {
	rules := make([]PathRule, 0, len(exact)+len(prefix))
	for _, p := range exact {
		rules = append(rules, PathRule{Kind: MatchExact, Pattern: p})
	}
	for _, p := range prefix {
		rules = append(rules, PathRule{Kind: MatchPrefix, Pattern: p})
	}
	return &PathPolicy{rules: rules}
}

// DefaultPathPolicy returns the built-in policy.
func DefaultPathPolicy() *PathPolicy {
	return NewPathPolicy(DefaultPublicExact, DefaultPublicPrefix)
}

// PathPolicyFromLists returns the default policy with either list replaced when
// the corresponding override is non-empty.
func PathPolicyFromLists(exact, prefix []string) *PathPolicy {
	if len(exact) == 0 {
		exact = DefaultPublicExact
	}
	if len(prefix) == 0 {
		prefix = DefaultPublicPrefix
	}
	return NewPathPolicy(exact, prefix)
}

// Rules returns a copy of the policy's rules in evaluation order.
func (p *PathPolicy) Rules() []PathRule {
	return append([]PathRule(nil), p.rules...)
}

// IsPublic reports whether path bypasses token verification.
func (p *PathPolicy) IsPublic(path string) bool {
	for _, rule := range p.rules {
		if rule.matches(path) {
			return true
		}
	}
	return !isAPIPath(path)
}

func isAPIPath(path string) bool {
	return path == apiPrefix || strings.HasPrefix(path, apiPrefix+"/")
}
