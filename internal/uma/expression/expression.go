// Package expression implementa el lenguaje booleano de scope expressions:
// JSON estilo JsonLogic con operadores and/or/not sobre referencias var a la
// lista data de scopes.
//
// Ejemplo:
//
//	{"rule": {"and": [{"var": 0}, {"var": 1}]}, "data": ["read", "write"]}
//
// La gramática es deliberadamente mínima: sólo lo necesario para combinar
// los booleanos por-scope que produce la evaluación de policies.
package expression

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrMalformed = errors.New("expression: malformed")
	ErrBadVar    = errors.New("expression: var index out of range")
)

// Expression es una scope expression parseada.
type Expression struct {
	Rule Rule     `json:"rule"`
	Data []string `json:"data"`
}

// Rule es un nodo del árbol booleano. Exactamente uno de los campos debe
// estar presente.
type Rule struct {
	And []Rule `json:"and,omitempty"`
	Or  []Rule `json:"or,omitempty"`
	Not *Rule  `json:"not,omitempty"`
	Var *int   `json:"var,omitempty"`
}

// Parse decodifica y valida una scope expression.
func Parse(s string) (*Expression, error) {
	var e Expression
	if err := json.Unmarshal([]byte(s), &e); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(e.Data) == 0 {
		return nil, fmt.Errorf("%w: empty data", ErrMalformed)
	}
	if err := e.Rule.check(len(e.Data)); err != nil {
		return nil, err
	}
	return &e, nil
}

// Validate reporta si s es una scope expression bien formada.
func Validate(s string) error {
	_, err := Parse(s)
	return err
}

// DataScopes devuelve la lista ordenada de scopes que referencia la expresión.
func (e *Expression) DataScopes() []string {
	return append([]string(nil), e.Data...)
}

// Evaluate aplica la regla al vector de booleanos por-scope. El vector debe
// tener la misma longitud que data.
func (e *Expression) Evaluate(values []bool) (bool, error) {
	if len(values) != len(e.Data) {
		return false, fmt.Errorf("%w: %d values for %d scopes", ErrBadVar, len(values), len(e.Data))
	}
	return e.Rule.eval(values)
}

func (r *Rule) check(n int) error {
	set := 0
	if r.And != nil {
		set++
		if len(r.And) == 0 {
			return fmt.Errorf("%w: empty and", ErrMalformed)
		}
		for i := range r.And {
			if err := r.And[i].check(n); err != nil {
				return err
			}
		}
	}
	if r.Or != nil {
		set++
		if len(r.Or) == 0 {
			return fmt.Errorf("%w: empty or", ErrMalformed)
		}
		for i := range r.Or {
			if err := r.Or[i].check(n); err != nil {
				return err
			}
		}
	}
	if r.Not != nil {
		set++
		if err := r.Not.check(n); err != nil {
			return err
		}
	}
	if r.Var != nil {
		set++
		if *r.Var < 0 || *r.Var >= n {
			return fmt.Errorf("%w: var %d", ErrBadVar, *r.Var)
		}
	}
	if set != 1 {
		return fmt.Errorf("%w: node must have exactly one of and/or/not/var", ErrMalformed)
	}
	return nil
}

func (r *Rule) eval(values []bool) (bool, error) {
	switch {
	case r.And != nil:
		for i := range r.And {
			v, err := r.And[i].eval(values)
			if err != nil {
				return false, err
			}
			if !v {
				return false, nil
			}
		}
		return true, nil
	case r.Or != nil:
		for i := range r.Or {
			v, err := r.Or[i].eval(values)
			if err != nil {
				return false, err
			}
			if v {
				return true, nil
			}
		}
		return false, nil
	case r.Not != nil:
		v, err := r.Not.eval(values)
		if err != nil {
			return false, err
		}
		return !v, nil
	case r.Var != nil:
		if *r.Var < 0 || *r.Var >= len(values) {
			return false, ErrBadVar
		}
		return values[*r.Var], nil
	default:
		return false, ErrMalformed
	}
}
