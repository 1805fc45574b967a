package apiclient

import (
	"sort"
	"strings"
)

// RouteConfig holds the token policy for a path prefix
type RouteConfig struct {
	// PathPrefix is matched against the request path only, never the query
	PathPrefix string
	// Public routes never carry the bearer token
	Public bool
	// AuthEndpoint marks login and registration calls, whose 401 means bad
	// credentials rather than an invalid session
	AuthEndpoint bool
	// RequireAuth routes fail locally when no session exists
	RequireAuth bool
}

// AttachToken reports whether the route carries the bearer token when one exists
func (r RouteConfig) AttachToken() bool {
	return !r.Public
}

// DefaultRoutes returns the token policy of the EventFlow API.
// accept-register shares its prefix with the public invitation endpoints but
// must carry the token so the server can check the identity.
func DefaultRoutes() []RouteConfig {
	return []RouteConfig{
		{PathPrefix: "/auth/", Public: true, AuthEndpoint: true},
		{PathPrefix: "/invitations/verify", Public: true},
		{PathPrefix: "/invitations/decline", Public: true},
		{PathPrefix: "/invitations/accept-register", RequireAuth: true},
	}
}

// RouteTable resolves the policy of a path. The longest matching prefix wins;
// paths with no match attach the token when one exists.
type RouteTable struct {
	routes []RouteConfig
}

// NewRouteTable builds a table from routes
func NewRouteTable(routes []RouteConfig) *RouteTable {
	sorted := append([]RouteConfig(nil), routes...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return len(sorted[i].PathPrefix) > len(sorted[j].PathPrefix)
	})
	return &RouteTable{routes: sorted}
}

// Find returns the policy for path
func (t *RouteTable) Find(path string) RouteConfig {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	for _, route := range t.routes {
		if matchPrefix(path, route.PathPrefix) {
			return route
		}
	}
	return RouteConfig{PathPrefix: "/"}
}

// matchPrefix matches on path segment boundaries, so /invitations/verify does
// not match /invitations/verifyAll
func matchPrefix(path, prefix string) bool {
	if !strings.HasPrefix(path, prefix) {
		return false
	}
	if len(path) == len(prefix) || strings.HasSuffix(prefix, "/") {
		return true
	}
	return path[len(prefix)] == '/'
}
