// Package plugins is a small dependency-graph rule engine. Components (specs,
// parsers, combiners, conditions, incidents and rules) declare what they
// require; a Graph orders them and Run evaluates them against one archive
package plugins

import (
	"strings"
)

// Kind classifies a component
type Kind string

// Component kinds
const (
	KindSpec      Kind = "spec"
	KindParser    Kind = "parser"
	KindCombiner  Kind = "combiner"
	KindCondition Kind = "condition"
	KindIncident  Kind = "incident"
	KindRule      Kind = "rule"
)

// Valid reports whether k is a known kind
func (k Kind) Valid() bool {
	switch k {
	case KindSpec, KindParser, KindCombiner, KindCondition, KindIncident, KindRule:
		return true
	}
	return false
}

// IsBool reports whether components of this kind yield booleans
func (k Kind) IsBool() bool { return k == KindCondition || k == KindIncident }

// Deps holds the resolved values of a component's dependencies, keyed by qualified name
type Deps map[string]any

// Get returns a dependency value
func (d Deps) Get(name string) (any, bool) {
	v, ok := d[name]
	return v, ok
}

// EvalFunc computes a component value. Returning (nil, nil) means the
// component produced nothing and dependents treat it as missing
type EvalFunc func(b *Broker, deps Deps) (any, error)

// Component is one node of a dependency graph
type Component struct {
	Name     string
	Kind     Kind
	Requires []string
	Optional []string
	Doc      string
	Eval     EvalFunc
}

// ShortName is the last dotted segment of the qualified name
func (c *Component) ShortName() string { return ShortName(c.Name) }

// IsRule reports whether the component can be evaluated as a rule
func (c *Component) IsRule() bool { return c != nil && c.Kind == KindRule }

// edges returns required then optional names
func (c *Component) edges() []string {
	out := make([]string, 0, len(c.Requires)+len(c.Optional))
	out = append(out, c.Requires...)
	return append(out, c.Optional...)
}

// ShortName returns the last dotted segment of a qualified name
func ShortName(name string) string {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return name[i+1:]
	}
	return name
}

// ResponseType names the outcome class of a rule
type ResponseType string

// Rule response types
const (
	ResponseFail    ResponseType = "make_fail"
	ResponseGeneric ResponseType = "make_response"
	ResponsePass    ResponseType = "make_pass"
	ResponseInfo    ResponseType = "make_info"
	ResponseNone    ResponseType = "make_none"
)

// Valid reports whether t is a known response type
func (t ResponseType) Valid() bool {
	switch t {
	case ResponseFail, ResponseGeneric, ResponsePass, ResponseInfo, ResponseNone:
		return true
	}
	return false
}

// Response is the value a rule produces
type Response struct {
	Type    ResponseType
	Key     string
	Details map[string]any
}

// TypeName returns the response class name
func (r *Response) TypeName() string { return string(r.Type) }

// IsFail reports whether the response is a failure-style outcome.
// make_fail is a specialization of make_response, so both count
func (r *Response) IsFail() bool {
	return r != nil && (r.Type == ResponseFail || r.Type == ResponseGeneric)
}

// MakeFail builds a failure response
func MakeFail(key string, details map[string]any) *Response {
	return &Response{Type: ResponseFail, Key: key, Details: details}
}

// MakePass builds a pass response
func MakePass(key string, details map[string]any) *Response {
	return &Response{Type: ResponsePass, Key: key, Details: details}
}

// MakeInfo builds an informational response
func MakeInfo(key string, details map[string]any) *Response {
	return &Response{Type: ResponseInfo, Key: key, Details: details}
}
