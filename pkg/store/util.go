package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/armis/armis/pkg/types"
)

// ErrAlreadyExists is returned by Create when the key is taken.
var ErrAlreadyExists = errors.New("resource already exists")

// MakeKey creates a standardized key for a resource.
func MakeKey(resourceType types.ResourceType, namespace, name string) []byte {
	return []byte(fmt.Sprintf("%s/%s/%s", resourceType, namespace, name))
}

// MakeVersionKey creates a standardized key for a resource version.
func MakeVersionKey(resourceType types.ResourceType, namespace, name, version string) []byte {
	return []byte(fmt.Sprintf("%s-versions/%s/%s/%s", resourceType, namespace, name, version))
}

// MakePrefix creates a prefix for listing resources by type and namespace.
func MakePrefix(resourceType types.ResourceType, namespace string) []byte {
	return []byte(fmt.Sprintf("%s/%s/", resourceType, namespace))
}

// MakeVersionPrefix creates a prefix for listing resource versions.
func MakeVersionPrefix(resourceType types.ResourceType, namespace, name string) []byte {
	return []byte(fmt.Sprintf("%s-versions/%s/%s/", resourceType, namespace, name))
}

// newVersionID returns a lexically sortable version id.
func newVersionID(now time.Time) string {
	return fmt.Sprintf("v%020d", now.UnixNano())
}

func notFound(resourceType types.ResourceType, namespace, name string) error {
	return types.NewNotFoundError("resource %s/%s/%s not found", resourceType, namespace, name)
}

func alreadyExists(resourceType types.ResourceType, namespace, name string) error {
	return fmt.Errorf("%w: %s/%s/%s", ErrAlreadyExists, resourceType, namespace, name)
}

// UnmarshalResource converts source into target through a JSON round trip.
func UnmarshalResource(source interface{}, target interface{}) error {
	b, err := json.Marshal(source)
	if err != nil {
		return fmt.Errorf("failed to marshal resource: %w", err)
	}
	if err := json.Unmarshal(b, target); err != nil {
		return fmt.Errorf("failed to unmarshal resource: %w", err)
	}
	return nil
}

// IsNotFoundError reports whether err means the resource does not exist.
func IsNotFoundError(err error) bool {
	return types.IsNotFound(err)
}

// IsAlreadyExistsError reports whether err means the key was taken.
func IsAlreadyExistsError(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}
