package repos

import (
	"context"
	"regexp"

	"github.com/armis/armis/pkg/store"
	"github.com/armis/armis/pkg/types"
	"github.com/google/uuid"
)

var nameRE = regexp.MustCompile(`^[a-z0-9]([-a-z0-9.]{0,61}[a-z0-9])?$`)

// validateName enforces lowercase DNS-style names on users and policies.
func validateName(name string) error {
	if !nameRE.MatchString(name) {
		return types.NewValidationError("name", "invalid name %q: must be lowercase alphanumeric, '-' or '.'", name)
	}
	return nil
}

type PolicyRepo struct{ st store.Store }

func NewPolicyRepo(st store.Store) *PolicyRepo { return &PolicyRepo{st: st} }

func (r *PolicyRepo) Create(ctx context.Context, p *types.Policy) error {
	if err := validateName(p.Name); err != nil {
		return err
	}
	p.Namespace = types.NamespaceSystem
	p.ID = uuid.NewString()
	return r.st.Create(ctx, types.ResourceTypePolicy, types.NamespaceSystem, p.Name, p)
}

func (r *PolicyRepo) Update(ctx context.Context, p *types.Policy) error {
	return r.st.Update(ctx, types.ResourceTypePolicy, types.NamespaceSystem, p.Name, p)
}

func (r *PolicyRepo) Get(ctx context.Context, name string) (*types.Policy, error) {
	var p types.Policy
	if err := r.st.Get(ctx, types.ResourceTypePolicy, types.NamespaceSystem, name, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PolicyRepo) Delete(ctx context.Context, name string) error {
	return r.st.Delete(ctx, types.ResourceTypePolicy, types.NamespaceSystem, name)
}

func (r *PolicyRepo) List(ctx context.Context) ([]types.Policy, error) {
	var ps []types.Policy
	if err := r.st.List(ctx, types.ResourceTypePolicy, types.NamespaceSystem, &ps); err != nil {
		return nil, err
	}
	return ps, nil
}
