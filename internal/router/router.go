// Package router maps history-style paths under a base path to page
// components using a fixed, ordered route table.
//
// Patterns are made of literal segments, ":name" parameter segments that
// bind exactly one non-empty segment, and a final "*" that consumes the
// rest of the path. Routes are tried in table order and the first match
// wins, so a catch-all must come last.
package router

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Wildcard is the catch-all pattern.
const Wildcard = "*"

var (
	ErrWildcardNotLast  = errors.New("wildcard route must be the last entry")
	ErrDuplicatePattern = errors.New("duplicate route pattern")
	ErrDuplicateName    = errors.New("duplicate route name")
	ErrInvalidPattern   = errors.New("invalid route pattern")
	ErrNilComponent     = errors.New("route has no component")
	ErrUnknownRoute     = errors.New("unknown route")
	ErrMissingParam     = errors.New("missing route parameter")
)

// Route binds a path pattern to a component. Name is optional.
type Route struct {
	Path      string
	Name      string
	Component http.Handler
}

// Label returns the name, or the path pattern for unnamed routes.
func (r Route) Label() string {
	if r.Name != "" {
		return r.Name
	}
	return r.Path
}

// Params holds the values bound by ":name" segments.
type Params map[string]string

// Match is the result of resolving a path.
type Match struct {
	Route  Route
	Params Params
	// Path is the matched path relative to the base, always with a leading slash.
	Path string
}

type segmentKind int

const (
	literal segmentKind = iota
	param
	catchAll
)

type segment struct {
	kind  segmentKind
	value string
}

type compiled struct {
	route    Route
	segments []segment
}

// Router is immutable after New and safe for concurrent use.
type Router struct {
	base   string
	routes []compiled
	byName map[string]int
}

// NormalizeBase returns base with exactly one leading and one trailing slash.
func NormalizeBase(base string) string {
	base = strings.Trim(strings.TrimSpace(base), "/")
	if base == "" {
		return "/"
	}
	return "/" + base + "/"
}

// New validates the table and builds a router bound to base.
func New(base string, routes []Route) (*Router, error) {
	rt := &Router{
		base:   NormalizeBase(base),
		routes: make([]compiled, 0, len(routes)),
		byName: make(map[string]int),
	}
	seen := make(map[string]bool)
	for i, r := range routes {
		if r.Component == nil {
			return nil, fmt.Errorf("route %q: %w", r.Path, ErrNilComponent)
		}
		segs, err := compile(r.Path)
		if err != nil {
			return nil, err
		}
		hasWildcard := len(segs) > 0 && segs[len(segs)-1].kind == catchAll
		if hasWildcard && i != len(routes)-1 {
			return nil, fmt.Errorf("route %q at position %d: %w", r.Path, i, ErrWildcardNotLast)
		}
		key := shapeKey(segs)
		if seen[key] {
			return nil, fmt.Errorf("route %q: %w", r.Path, ErrDuplicatePattern)
		}
		seen[key] = true
		if r.Name != "" {
			if _, dup := rt.byName[r.Name]; dup {
				return nil, fmt.Errorf("route %q: %w", r.Name, ErrDuplicateName)
			}
			rt.byName[r.Name] = i
		}
		rt.routes = append(rt.routes, compiled{route: r, segments: segs})
	}
	return rt, nil
}

func compile(pattern string) ([]segment, error) {
	if pattern == Wildcard {
		return []segment{{kind: catchAll}}, nil
	}
	if !strings.HasPrefix(pattern, "/") {
		return nil, fmt.Errorf("%w: %q must start with /", ErrInvalidPattern, pattern)
	}
	parts := splitPath(pattern)
	segs := make([]segment, 0, len(parts))
	for i, p := range parts {
		switch {
		case p == "":
			return nil, fmt.Errorf("%w: %q has an empty segment", ErrInvalidPattern, pattern)
		case p == Wildcard:
			if i != len(parts)-1 {
				return nil, fmt.Errorf("%w: %q has a wildcard before the end", ErrInvalidPattern, pattern)
			}
			segs = append(segs, segment{kind: catchAll})
		case strings.HasPrefix(p, ":"):
			if len(p) == 1 {
				return nil, fmt.Errorf("%w: %q has an unnamed parameter", ErrInvalidPattern, pattern)
			}
			segs = append(segs, segment{kind: param, value: p[1:]})
		default:
			segs = append(segs, segment{kind: literal, value: p})
		}
	}
	return segs, nil
}

// shapeKey identifies patterns that can never be told apart, so
// "/a/:x" and "/a/:y" count as duplicates.
func shapeKey(segs []segment) string {
	var sb strings.Builder
	for _, s := range segs {
		sb.WriteByte('/')
		switch s.kind {
		case literal:
			sb.WriteString(s.value)
		case param:
			sb.WriteString(":")
		case catchAll:
			sb.WriteString("*")
		}
	}
	return sb.String()
}

func splitPath(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

// Base returns the normalized base path.
func (rt *Router) Base() string {
	return rt.base
}

// Routes returns a copy of the table in match order.
func (rt *Router) Routes() []Route {
	out := make([]Route, len(rt.routes))
	for i, c := range rt.routes {
		out[i] = c.route
	}
	return out
}

// Relative strips the base path. ok is false for paths outside the base.
func (rt *Router) Relative(escapedPath string) (string, bool) {
	if rt.base == "/" {
		return "/" + strings.TrimPrefix(escapedPath, "/"), strings.HasPrefix(escapedPath, "/")
	}
	if escapedPath == strings.TrimSuffix(rt.base, "/") {
		return "/", true
	}
	rest, ok := strings.CutPrefix(escapedPath, rt.base)
	if !ok {
		return "", false
	}
	return "/" + rest, true
}

// Match resolves an absolute, escaped request path. The result is false
// only when the path is outside the base or nothing (not even a catch-all)
// matches.
func (rt *Router) Match(escapedPath string) (Match, bool) {
	rel, ok := rt.Relative(escapedPath)
	if !ok {
		return Match{}, false
	}
	return rt.MatchRelative(rel)
}

// MatchRelative resolves a path relative to the base.
func (rt *Router) MatchRelative(rel string) (Match, bool) {
	raw := splitPath(rel)
	parts := make([]string, len(raw))
	for i, p := range raw {
		u, err := url.PathUnescape(p)
		if err != nil {
			u = p
		}
		parts[i] = u
	}
	for _, c := range rt.routes {
		if params, ok := matchSegments(c.segments, parts); ok {
			return Match{Route: c.route, Params: params, Path: "/" + strings.Trim(rel, "/")}, true
		}
	}
	return Match{}, false
}

func matchSegments(segs []segment, parts []string) (Params, bool) {
	var params Params
	for i, s := range segs {
		if s.kind == catchAll {
			return params, true
		}
		if i >= len(parts) {
			return nil, false
		}
		switch s.kind {
		case literal:
			if parts[i] != s.value {
				return nil, false
			}
		case param:
			if parts[i] == "" {
				return nil, false
			}
			if params == nil {
				params = make(Params)
			}
			params[s.value] = parts[i]
		}
	}
	if len(parts) != len(segs) {
		return nil, false
	}
	return params, true
}

// URL builds the absolute URL of a named route. params are name/value pairs.
func (rt *Router) URL(name string, params ...string) (string, error) {
	i, ok := rt.byName[name]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownRoute, name)
	}
	return rt.build(rt.routes[i], params)
}

// PathFor builds the absolute URL of a route by its pattern, which also
// addresses unnamed routes.
func (rt *Router) PathFor(pattern string, params ...string) (string, error) {
	for _, c := range rt.routes {
		if c.route.Path == pattern {
			return rt.build(c, params)
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownRoute, pattern)
}

func (rt *Router) build(c compiled, pairs []string) (string, error) {
	if len(pairs)%2 != 0 {
		return "", fmt.Errorf("%w: odd number of parameter arguments", ErrMissingParam)
	}
	values := make(map[string]string, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		values[pairs[i]] = pairs[i+1]
	}
	parts := make([]string, 0, len(c.segments))
	for _, s := range c.segments {
		switch s.kind {
		case literal:
			parts = append(parts, s.value)
		case param:
			v := values[s.value]
			if v == "" {
				return "", fmt.Errorf("%w: %q for route %q", ErrMissingParam, s.value, c.route.Label())
			}
			parts = append(parts, url.PathEscape(v))
		case catchAll:
			return "", fmt.Errorf("%w: catch-all routes have no URL", ErrUnknownRoute)
		}
	}
	return rt.base + strings.Join(parts, "/"), nil
}

// ServeHTTP dispatches to the matched component with the match stored in
// the request context. Requests outside the base get a plain 404.
func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m, ok := rt.Match(r.URL.EscapedPath())
	if !ok {
		http.NotFound(w, r)
		return
	}
	m.Route.Component.ServeHTTP(w, r.WithContext(WithMatch(r.Context(), m)))
}

type matchKey struct{}

// WithMatch stores m in ctx.
func WithMatch(ctx context.Context, m Match) context.Context {
	return context.WithValue(ctx, matchKey{}, m)
}

// RouteFrom returns the match stored by ServeHTTP.
func RouteFrom(ctx context.Context) (Match, bool) {
	m, ok := ctx.Value(matchKey{}).(Match)
	return m, ok
}

// Param returns a bound path parameter of the current request, or "".
func Param(r *http.Request, name string) string {
	m, ok := RouteFrom(r.Context())
	if !ok {
		return ""
	}
	return m.Params[name]
}
