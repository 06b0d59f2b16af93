package types

import "time"

// CommandContext describes the caller of a command. It is built per request
// and never persisted.
type CommandContext struct {
	UserID      string    `json:"user_id"`
	Role        string    `json:"role,omitempty"`
	Permissions []string  `json:"permissions,omitempty"`
	RequestID   string    `json:"request_id,omitempty"`
	RemoteAddr  string    `json:"remote_addr,omitempty"`
	Method      string    `json:"method,omitempty"`
	Action      string    `json:"action,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// HasPermissions reports whether the caller has any permissions recorded.
func (c *CommandContext) HasPermissions() bool {
	return c != nil && len(c.Permissions) > 0
}

// PermissionPolicy decides how an empty caller permission set is treated
// when an item is restricted.
type PermissionPolicy string

const (
	// PermissionFailOpen lets callers with no recorded permissions see
	// restricted items.
	PermissionFailOpen PermissionPolicy = "fail-open"

	// PermissionFailClosed hides restricted items from callers with no
	// recorded permissions.
	PermissionFailClosed PermissionPolicy = "fail-closed"
)

// Allows reports whether callerPerms grant access to an item restricted to
// required. Unrestricted items are always allowed.
func (p PermissionPolicy) Allows(required, callerPerms []string) bool {
	if len(required) == 0 {
		return true
	}
	if len(callerPerms) == 0 {
		return p != PermissionFailClosed
	}
	for _, r := range required {
		for _, c := range callerPerms {
			if r == c {
				return true
			}
		}
	}
	return false
}

// ParsePermissionPolicy parses a policy name, defaulting to fail-open.
func ParsePermissionPolicy(s string) (PermissionPolicy, error) {
	switch PermissionPolicy(s) {
	case "", PermissionFailOpen:
		return PermissionFailOpen, nil
	case PermissionFailClosed:
		return PermissionFailClosed, nil
	default:
		return "", NewValidationError("permission_policy", "unknown permission policy %q", s)
	}
}
