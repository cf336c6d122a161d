// Package api implements the declarative endpoint tree and the binder that
// turns it into both an HTTP router (server side) and a typed client stub
// (client side) from a single definition, grounded on subiquity's
// common/api/{defs,server,client}.py. Go has no dotted dynamic attribute
// dispatch, so where the original walks the tree by attribute name and
// resolves each leaf's implementation at request time, this package has
// every leaf carry a Handler closure wired directly to its controller's
// concrete method at tree-construction time: a controller missing a
// method the tree references fails to compile, rather than surfacing as a
// per-request lookup miss.
package api

import (
	"strings"

	subctx "github.com/cuemby/subiquityd/internal/context"
)

// Handler answers one bound HTTP operation. params carries path and query
// parameters already split out by the router; payload is the decoded
// "data" body for PUT/POST calls, or nil. A Handler is ordinary Go code
// closing directly over a controller's method -- there is no name-based
// lookup on the server's side of the call.
type Handler func(ctx *subctx.Context, params map[string]string, query map[string]interface{}, payload interface{}) (interface{}, error)

// Group is one node of the declarative endpoint tree. A Group may have
// Methods of its own (an endpoint) and Children (nested groups), exactly
// as subiquity's api() tree annotation allows a node to be both.
type Group struct {
	// Name is this node's path segment, e.g. "network" or "status".
	Name string
	// Param, if non-empty, marks this node as a path parameter
	// (subiquity's __parameter__ marker) -- Name becomes "{Param}" in the
	// URL and the bound value is passed to the implementing method.
	Param string
	// Methods lists the HTTP verbs this node answers, each carrying the
	// Handler Bind registers for it.
	Methods []MethodDef
	Children []*Group
}

// MethodDef names one HTTP operation at a Group.
type MethodDef struct {
	// Verb is the HTTP method, e.g. http.MethodGet.
	Verb string
	// ImplName is the dotted-path-derived implementation name used for
	// context breadcrumbs and error messages, e.g. "network_GET".
	ImplName string
	// PayloadBody is true if the request carries a JSON body under a
	// top-level "data" key (PUT/POST with Payload[T]).
	PayloadBody bool
	// Handler is the concrete operation. Bind refuses to register a Group
	// whose MethodDef has a nil Handler, turning a missing implementation
	// into a startup error instead of a request-time one.
	Handler Handler
}

// FullPath returns the URL path from the definition root down to g,
// substituting "{Param}" for parameterized segments.
func (g *Group) FullPath(ancestors ...string) string {
	segment := g.Name
	if g.Param != "" {
		segment = "{" + g.Param + "}"
	}
	parts := append(append([]string{}, ancestors...), segment)
	return "/" + strings.Join(nonEmpty(parts), "/")
}

func nonEmpty(parts []string) []string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Walk calls fn for g and every descendant, passing the accumulated path
// segments down to (but not including) the current node.
func (g *Group) Walk(fn func(path []string, g *Group)) {
	g.walk(nil, fn)
}

func (g *Group) walk(ancestors []string, fn func(path []string, g *Group)) {
	fn(ancestors, g)
	segment := g.Name
	if g.Param != "" {
		segment = "{" + g.Param + "}"
	}
	for _, child := range g.Children {
		child.walk(append(append([]string{}, ancestors...), segment), fn)
	}
}

// NewGroup is the builder entry point for the DSL used by internal/api's
// consumers to describe the endpoint tree, e.g.:
//
//	root := api.NewGroup("",
//	    api.NewGroup("meta").Method(http.MethodGet, "status_GET", false, statusHandler),
//	    api.NewGroup("network").Method(http.MethodGet, "network_GET", false, networkHandler),
//	)
func NewGroup(name string, children ...*Group) *Group {
	return &Group{Name: name, Children: children}
}

// WithParam marks the receiver as a path-parameter segment.
func (g *Group) WithParam(param string) *Group {
	g.Param = param
	return g
}

// Method attaches a MethodDef to the receiver and returns it, for chaining
// inside NewGroup's argument list.
func (g *Group) Method(verb, implName string, payloadBody bool, handler Handler) *Group {
	g.Methods = append(g.Methods, MethodDef{Verb: verb, ImplName: implName, PayloadBody: payloadBody, Handler: handler})
	return g
}

// Leaf is a convenience constructor for a childless Group with one method.
func Leaf(name, verb, implName string, payloadBody bool, handler Handler) *Group {
	return (&Group{Name: name}).Method(verb, implName, payloadBody, handler)
}
