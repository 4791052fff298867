package permission

import (
	"regexp"
	"strings"
	"sync"
)

// Wildcard codes checked before general glob matching. "system:*" is an
// administrative grant equivalent to the full wildcard.
const (
	fullWildcard   = "*:*"
	systemWildcard = "system:*"
)

// Decision is the outcome of one permission check.
type Decision struct {
	Allowed bool

	// MatchedRule is the code from the effective set that granted
	// access, empty on deny.
	MatchedRule string
}

// Resolver matches required permission codes against effective sets.
// Matching runs from most to least specific: exact code, full
// wildcards, "resource:*", "*:action", then general glob patterns.
// Compiled glob patterns are cached per resolver.
type Resolver struct {
	globs sync.Map // code -> *regexp.Regexp
}

// NewResolver creates a resolver with an empty pattern cache.
func NewResolver() *Resolver {
	return &Resolver{}
}

// Check decides whether effective authorizes required. The required
// code must be a concrete "resource:action"; malformed input denies.
//
// Superuser bypass is deliberately not implemented here: the engine
// applies it before calling the resolver, so matching stays auditable.
func (r *Resolver) Check(effective map[string]struct{}, required string) Decision {
	resource, action, ok := splitCode(required)
	if !ok {
		return Decision{}
	}

	if _, ok := effective[required]; ok {
		return Decision{Allowed: true, MatchedRule: required}
	}

	for _, code := range []string{fullWildcard, systemWildcard} {
		if _, ok := effective[code]; ok {
			return Decision{Allowed: true, MatchedRule: code}
		}
	}

	if code := resource + ":*"; code != required {
		if _, ok := effective[code]; ok {
			return Decision{Allowed: true, MatchedRule: code}
		}
	}

	if code := "*:" + action; code != required {
		if _, ok := effective[code]; ok {
			return Decision{Allowed: true, MatchedRule: code}
		}
	}

	for code := range effective {
		if !strings.Contains(code, "*") {
			continue
		}
		re, err := r.compile(code)
		if err != nil {
			continue
		}
		if re.MatchString(required) {
			return Decision{Allowed: true, MatchedRule: code}
		}
	}

	return Decision{}
}

// compile turns a glob code into an anchored regexp. Every regexp
// metacharacter is escaped except "*", which becomes ".*".
func (r *Resolver) compile(code string) (*regexp.Regexp, error) {
	if cached, ok := r.globs.Load(code); ok {
		return cached.(*regexp.Regexp), nil
	}

	pattern := "^" + strings.ReplaceAll(regexp.QuoteMeta(code), `\*`, ".*") + "$"
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}

	actual, _ := r.globs.LoadOrStore(code, re)
	return actual.(*regexp.Regexp), nil
}
