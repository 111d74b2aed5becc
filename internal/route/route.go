// Package route implements the gateway's request-to-backend matching table.
package route

import "strings"

// Route binds a path pattern and optional method to a backend and its
// dispatch parameters.
type Route struct {
	PathPattern  string
	Method       string // empty means any method
	BackendID    string
	LBStrategy   string
	RPMOverride  int
	AuthRequired bool
	TimeoutMs    int
}

// isPrefix reports whether the pattern is a prefix match (ends in "*").
func (r Route) isPrefix() bool {
	return strings.HasSuffix(r.PathPattern, "*")
}

func (r Route) prefix() string {
	return strings.TrimSuffix(r.PathPattern, "*")
}

// matches reports whether this route matches the given method and path.
func (r Route) matches(method, path string) bool {
	if r.Method != "" && !strings.EqualFold(r.Method, method) {
		return false
	}
	if r.isPrefix() {
		return strings.HasPrefix(path, r.prefix())
	}
	return r.PathPattern == path
}

// MatchPattern reports whether path matches pattern using the same
// prefix-wildcard-or-exact grammar as Route.PathPattern. Used for
// bypass_paths checks outside the route table itself.
func MatchPattern(pattern, path string) bool {
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(path, strings.TrimSuffix(pattern, "*"))
	}
	return pattern == path
}

// Table holds an ordered set of routes. Matching scans in declaration order
// and returns the first route whose pattern and method match, so more
// specific routes must be declared before more general ones.
type Table struct {
	routes []Route
}

// NewTable builds a route table from the given routes, preserving order.
func NewTable(routes []Route) *Table {
	t := &Table{routes: make([]Route, len(routes))}
	copy(t.routes, routes)
	return t
}

// Match returns the first route matching method and path, and whether one
// was found.
func (t *Table) Match(method, path string) (Route, bool) {
	for _, r := range t.routes {
		if r.matches(method, path) {
			return r, true
		}
	}
	return Route{}, false
}

// Routes returns the routes in declaration order, for admin introspection.
func (t *Table) Routes() []Route {
	out := make([]Route, len(t.routes))
	copy(out, t.routes)
	return out
}
