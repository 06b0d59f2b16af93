package types

import "time"

// Token is an opaque bearer credential. Only the SHA-256 of the secret is
// stored.
type Token struct {
	Namespace   string     `json:"namespace" yaml:"namespace"`
	Name        string     `json:"name" yaml:"name"`
	ID          string     `json:"id" yaml:"id"`
	SubjectID   string     `json:"subjectId" yaml:"subjectId"`
	Description string     `json:"description,omitempty" yaml:"description,omitempty"`
	IssuedAt    time.Time  `json:"issuedAt" yaml:"issuedAt"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty" yaml:"expiresAt,omitempty"`
	Revoked     bool       `json:"revoked" yaml:"revoked"`
	SecretHash  string     `json:"secretHash" yaml:"secretHash"`
}

// Valid reports whether the token is usable at now.
func (t *Token) Valid(now time.Time) bool {
	return !t.Revoked && (t.ExpiresAt == nil || t.ExpiresAt.After(now))
}
