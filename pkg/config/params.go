// Package config holds the free-form configuration parameters handed to
// monitor modules. Parameters are kept in insertion order with later
// additions prepended, so a lookup returns the most recently added value
// for a repeated key.
package config

// Parameter is a single name/value configuration entry.
type Parameter struct {
	Name  string
	Value string
}

// Parameters is a prepend-ordered parameter list. The zero value is usable.
type Parameters struct {
	list []Parameter
}

// Add clones the given parameters and prepends them one by one, so the last
// parameter of params ends up first and shadows earlier entries with the
// same name.
func (p *Parameters) Add(params []Parameter) {
	for _, param := range params {
		p.list = append([]Parameter{param}, p.list...)
	}
}

// Set prepends a single parameter.
func (p *Parameters) Set(name, value string) {
	p.Add([]Parameter{{Name: name, Value: value}})
}

// Get returns the value for name, honoring last-inserted-wins shadowing.
func (p *Parameters) Get(name string) (string, bool) {
	for _, param := range p.list {
		if param.Name == name {
			return param.Value, true
		}
	}
	return "", false
}

// GetOr returns the value for name or def when the parameter is absent.
func (p *Parameters) GetOr(name, def string) string {
	if v, ok := p.Get(name); ok {
		return v
	}
	return def
}

// Len returns the number of stored parameters, shadowed entries included.
func (p *Parameters) Len() int { return len(p.list) }

// All returns a copy of the parameter list in lookup order.
func (p *Parameters) All() []Parameter {
	return append([]Parameter(nil), p.list...)
}
