package server

import (
	"context"
	"crypto/subtle"
	"net/http"
	"sort"
	"strings"

	"github.com/armis/armis/pkg/log"
	"github.com/armis/armis/pkg/types"
)

const (
	// AuthorizationHeader is the header key for bearer authentication.
	AuthorizationHeader = "Authorization"

	// APIKeyHeader is an alternative header for static API keys.
	APIKeyHeader = "X-API-Key"

	// APIKeyPrefix is the prefix for credentials in the Authorization header.
	APIKeyPrefix = "Bearer "

	// ResourceDashboard is the policy resource guarding every dashboard action.
	ResourceDashboard = "dashboard"
)

// Caller is the authenticated identity behind a request.
type Caller struct {
	SubjectID string
	Name      string
	Role      string

	// Anonymous is set when authentication is disabled.
	Anonymous bool

	// Superuser is set for static API key holders.
	Superuser bool

	Policies    []*types.Policy
	Permissions []string
}

// authenticate resolves the caller of r. The token query parameter is only
// honoured when allowQuery is set, for websocket clients that cannot send
// headers.
func (s *APIServer) authenticate(r *http.Request, allowQuery bool) (*Caller, error) {
	if !s.options.EnableAuth {
		return &Caller{SubjectID: "anonymous", Name: "anonymous", Anonymous: true}, nil
	}

	secret := credentialFrom(r, allowQuery)
	if secret == "" {
		s.logger.Warn("Missing bearer token in request", log.Str("path", r.URL.Path))
		return nil, types.NewUnauthorizedError("missing bearer token")
	}

	for _, key := range s.options.APIKeys {
		if key != "" && subtle.ConstantTimeCompare([]byte(key), []byte(secret)) == 1 {
			return &Caller{SubjectID: "apikey", Name: "apikey", Role: "admin", Superuser: true}, nil
		}
	}

	if s.tokens == nil {
		return nil, types.NewUnauthorizedError("invalid bearer token")
	}
	tok, err := s.tokens.FindBySecret(r.Context(), secret)
	if err != nil {
		s.logger.Warn("Invalid bearer token", log.Str("path", r.URL.Path))
		return nil, types.NewUnauthorizedError("invalid bearer token")
	}

	user, err := s.users.FindByID(r.Context(), tok.SubjectID)
	if err != nil {
		if types.IsNotFound(err) {
			return nil, types.NewUnauthorizedError("token subject no longer exists")
		}
		return nil, err
	}

	caller := &Caller{SubjectID: user.ID, Name: user.Name, Role: user.Role}
	caller.Policies = s.loadPolicies(r.Context(), user)
	caller.Permissions = permissionUnion(caller.Policies)
	return caller, nil
}

func credentialFrom(r *http.Request, allowQuery bool) string {
	if h := r.Header.Get(AuthorizationHeader); h != "" {
		if len(h) > len(APIKeyPrefix) && strings.EqualFold(h[:len(APIKeyPrefix)], APIKeyPrefix) {
			return strings.TrimSpace(h[len(APIKeyPrefix):])
		}
		return ""
	}
	if k := strings.TrimSpace(r.Header.Get(APIKeyHeader)); k != "" {
		return k
	}
	if allowQuery {
		return strings.TrimSpace(r.URL.Query().Get("token"))
	}
	return ""
}

// loadPolicies returns the user's attached policies. Dangling names are
// logged and skipped.
func (s *APIServer) loadPolicies(ctx context.Context, user *types.User) []*types.Policy {
	out := make([]*types.Policy, 0, len(user.Policies))
	for _, name := range user.Policies {
		p, err := s.policies.Get(ctx, name)
		if err != nil {
			s.logger.Warn("Skipping unknown policy",
				log.Str("user", user.Name),
				log.Str("policy", name),
				log.Err(err))
			continue
		}
		out = append(out, p)
	}
	return out
}

// permissionUnion merges the capability strings of every policy.
func permissionUnion(policies []*types.Policy) []string {
	seen := map[string]bool{}
	var out []string
	for _, p := range policies {
		for _, perm := range p.Permissions {
			if !seen[perm] {
				seen[perm] = true
				out = append(out, perm)
			}
		}
	}
	sort.Strings(out)
	return out
}

// evaluatePolicies reports whether the caller may perform verb on resource.
// With authentication disabled every action is allowed.
func (s *APIServer) evaluatePolicies(c *Caller, resource, verb string) bool {
	if !s.options.EnableAuth || c.Superuser {
		return true
	}
	for _, p := range c.Policies {
		if p.Allows(resource, verb) {
			return true
		}
	}
	return false
}
