package repos

import (
	"context"
	"time"

	"github.com/armis/armis/pkg/store"
	"github.com/armis/armis/pkg/types"
	"github.com/google/uuid"
)

type UserRepo struct {
	*BaseRepo[types.User]
}

func NewUserRepo(st store.Store) *UserRepo {
	return &UserRepo{BaseRepo: NewBaseRepo[types.User](st, types.ResourceTypeUser)}
}

// Create stores a new user, filling in namespace, ID and creation time.
func (r *UserRepo) Create(ctx context.Context, u *types.User) error {
	if u.Namespace == "" {
		u.Namespace = types.NamespaceSystem
	}
	if u.Name == "" {
		return types.NewMissingFieldError("name")
	}
	if err := validateName(u.Name); err != nil {
		return err
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	return r.BaseRepo.Create(ctx, u.Namespace, u.Name, u)
}

func (r *UserRepo) Update(ctx context.Context, u *types.User) error {
	return r.BaseRepo.Update(ctx, u.Namespace, u.Name, u)
}

// FindByID returns the user whose ID matches. Token subjects are user IDs.
func (r *UserRepo) FindByID(ctx context.Context, id string) (*types.User, error) {
	users, err := r.List(ctx, types.NamespaceSystem)
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, types.NewNotFoundError("user with id %s not found", id)
}
