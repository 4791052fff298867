// Package permission resolves "resource:action" permission codes
// against an effective permission set, with wildcard precedence,
// an implication graph, and conditional constraints.
package permission

import (
	"errors"
	"strings"
)

var (
	// ErrRegistryFrozen reports a registration after Freeze.
	ErrRegistryFrozen = errors.New("permission: registry frozen")

	// ErrDuplicateCode reports a code registered twice in one scope.
	ErrDuplicateCode = errors.New("permission: duplicate code in scope")

	// ErrInvalidCode reports a code that is not "resource:action".
	ErrInvalidCode = errors.New("permission: invalid code")
)

// Permission is one grantable capability.
type Permission struct {
	// Code is "resource:action". Either segment may be "*".
	Code string

	Resource string
	Action   string

	// Scope namespaces the code; uniqueness is enforced per scope.
	Scope string

	// Wildcard is derived from the code at construction.
	Wildcard bool

	// Conditions constrain the grant; see ValidateConditions.
	Conditions map[string]any

	// DependsOn lists codes this permission implies.
	DependsOn []string
}

// New parses a code into a Permission. The scope may be empty, which
// places the permission in the default scope.
func New(code, scope string) (Permission, error) {
	resource, action, ok := splitCode(code)
	if !ok {
		return Permission{}, ErrInvalidCode
	}

	return Permission{
		Code:     code,
		Resource: resource,
		Action:   action,
		Scope:    scope,
		Wildcard: strings.Contains(code, "*"),
	}, nil
}

func splitCode(code string) (resource, action string, ok bool) {
	resource, action, found := strings.Cut(code, ":")
	if !found || resource == "" || action == "" {
		return "", "", false
	}
	return resource, action, true
}
