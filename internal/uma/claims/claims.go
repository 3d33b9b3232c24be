// Package claims provee la vista read-only de claims fusionadas para una
// evaluación de policies: identity assertion sobre PCT, con el claim token
// crudo disponible para policies que quieran la forma sin parsear.
package claims

// Claims es inmutable una vez construida: se arma una vez por token request
// y nunca se actualiza a mitad de evaluación.
type Claims struct {
	assertion map[string]any
	pct       map[string]any
	raw       string
}

// New construye la vista fusionada. Cualquiera de los maps puede ser nil.
func New(assertion, pctClaims map[string]any, rawToken string) *Claims {
	return &Claims{assertion: assertion, pct: pctClaims, raw: rawToken}
}

// Has reporta si existe un claim con ese nombre en alguna de las capas.
func (c *Claims) Has(name string) bool {
	_, ok := c.Get(name)
	return ok
}

// Get resuelve un claim por nombre. La assertion gana sobre el PCT.
func (c *Claims) Get(name string) (any, bool) {
	if c == nil {
		return nil, false
	}
	if v, ok := c.assertion[name]; ok {
		return v, true
	}
	if v, ok := c.pct[name]; ok {
		return v, true
	}
	return nil, false
}

// Merged materializa el merge (PCT debajo, assertion encima).
func (c *Claims) Merged() map[string]any {
	out := make(map[string]any, len(c.pct)+len(c.assertion))
	for k, v := range c.pct {
		out[k] = v
	}
	for k, v := range c.assertion {
		out[k] = v
	}
	return out
}

// Assertion devuelve sólo los claims de la identity assertion presentada.
func (c *Claims) Assertion() map[string]any {
	if c == nil {
		return nil
	}
	return c.assertion
}

// Raw devuelve el claim token crudo tal como se recibió (puede ser "").
func (c *Claims) Raw() string {
	if c == nil {
		return ""
	}
	return c.raw
}
