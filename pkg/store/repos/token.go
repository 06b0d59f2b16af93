package repos

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"

	"github.com/armis/armis/pkg/store"
	"github.com/armis/armis/pkg/types"
	"github.com/google/uuid"
)

type TokenRepo struct{ st store.Store }

func NewTokenRepo(st store.Store) *TokenRepo { return &TokenRepo{st: st} }

func hashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// Issue creates a new token with a freshly generated secret. Returns the plaintext secret once.
func (r *TokenRepo) Issue(ctx context.Context, name, subjectID, desc string, ttl time.Duration) (*types.Token, string, error) {
	if strings.TrimSpace(subjectID) == "" {
		return nil, "", types.NewMissingFieldError("subjectId")
	}
	secret := uuid.NewString() + "." + uuid.NewString()
	now := time.Now().UTC()
	var exp *time.Time
	if ttl > 0 {
		t := now.Add(ttl)
		exp = &t
	}
	tok := &types.Token{
		Namespace:   types.NamespaceSystem,
		Name:        name,
		ID:          uuid.NewString(),
		SubjectID:   subjectID,
		Description: desc,
		IssuedAt:    now,
		ExpiresAt:   exp,
		SecretHash:  hashSecret(secret),
	}
	if err := r.st.Create(ctx, types.ResourceTypeToken, types.NamespaceSystem, tok.ID, tok); err != nil {
		return nil, "", err
	}
	return tok, secret, nil
}

func (r *TokenRepo) Get(ctx context.Context, id string) (*types.Token, error) {
	var t types.Token
	if err := r.st.Get(ctx, types.ResourceTypeToken, types.NamespaceSystem, id, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *TokenRepo) Revoke(ctx context.Context, id string) error {
	t, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	t.Revoked = true
	return r.st.Update(ctx, types.ResourceTypeToken, types.NamespaceSystem, t.ID, t)
}

// List returns all tokens ordered by issue time.
func (r *TokenRepo) List(ctx context.Context) ([]types.Token, error) {
	var tokens []types.Token
	if err := r.st.List(ctx, types.ResourceTypeToken, types.NamespaceSystem, &tokens); err != nil {
		return nil, err
	}
	sort.SliceStable(tokens, func(i, j int) bool { return tokens[i].IssuedAt.Before(tokens[j].IssuedAt) })
	return tokens, nil
}

// FindBySecret locates a usable token by the hash of its secret.
func (r *TokenRepo) FindBySecret(ctx context.Context, secret string) (*types.Token, error) {
	// TODO: keep a hash->id index resource so lookups stop scanning every token.
	var tokens []types.Token
	if err := r.st.List(ctx, types.ResourceTypeToken, types.NamespaceSystem, &tokens); err != nil {
		return nil, err
	}
	h := hashSecret(strings.TrimSpace(secret))
	now := time.Now()
	for i := range tokens {
		if tokens[i].SecretHash == h && tokens[i].Valid(now) {
			return &tokens[i], nil
		}
	}
	return nil, types.NewUnauthorizedError("token not found or invalid")
}
