// Package validation reúne las validaciones de entrada del registro de
// protección: nombres de scope y consistencia scopes/expression de un
// resource.
package validation

import (
	"errors"
	"regexp"

	"github.com/dropDatabas3/ticketgate/internal/uma/expression"
)

// Scope name rules:
// - Lowercase only.
// - Start and end with [a-z0-9].
// - Middle chars may include [a-z0-9:_.-].
// - Length 1..64.
// - Excludes semicolon and whitespace explicitly.
//
// Examples valid: read, document:read, payment:execute:v2, a_b-c.d:scope2
// Examples invalid: ;hack, BAD, bad space, :leader, trailer:, "", 65+ chars.
var scopeNameRe = regexp.MustCompile(`^[a-z0-9](?:[a-z0-9:_\.-]{0,62}[a-z0-9])?$`)

var (
	ErrBadScopeName  = errors.New("validation: invalid scope name")
	ErrNoScopes      = errors.New("validation: resource needs scopes or a scope expression")
	ErrBadExpression = errors.New("validation: malformed scope expression")
)

// ValidScopeName returns true if the provided scope name matches the allowed pattern.
func ValidScopeName(name string) bool {
	return scopeNameRe.MatchString(name)
}

// ValidScopeNames valida una lista completa.
func ValidScopeNames(names []string) bool {
	for _, n := range names {
		if !ValidScopeName(n) {
			return false
		}
	}
	return true
}

// ValidateResource chequea la combinación scopes/expression de un resource
// al registrarlo: ambos en blanco no protege nada, y una expression que no
// parsea nunca va a evaluar.
func ValidateResource(scopes []string, scopeExpression string) error {
	if len(scopes) == 0 && scopeExpression == "" {
		return ErrNoScopes
	}
	if !ValidScopeNames(scopes) {
		return ErrBadScopeName
	}
	if scopeExpression != "" {
		if err := expression.Validate(scopeExpression); err != nil {
			return errors.Join(ErrBadExpression, err)
		}
		e, _ := expression.Parse(scopeExpression)
		if !ValidScopeNames(e.DataScopes()) {
			return ErrBadScopeName
		}
	}
	return nil
}
