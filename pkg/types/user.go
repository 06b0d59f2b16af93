package types

import "time"

// User is an operator account. Role is informational and travels in the
// command context; access is decided by the attached policies.
type User struct {
	Namespace string    `json:"namespace" yaml:"namespace"`
	Name      string    `json:"name" yaml:"name"`
	ID        string    `json:"id" yaml:"id"`
	Email     string    `json:"email,omitempty" yaml:"email,omitempty"`
	Role      string    `json:"role,omitempty" yaml:"role,omitempty"`
	Policies  []string  `json:"policies" yaml:"policies"`
	CreatedAt time.Time `json:"createdAt" yaml:"createdAt"`
}
