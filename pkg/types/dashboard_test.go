package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestItemDefaults(t *testing.T) {
	var nav NavigationItem
	require.NoError(t, json.Unmarshal([]byte(`{"id":"home","title":"Home","url":"/"}`), &nav))
	assert.Equal(t, DefaultOrder, nav.Order)
	assert.True(t, nav.Enabled)

	var mod DashboardModule
	require.NoError(t, json.Unmarshal([]byte(`{"id":"m","title":"M","description":"d","order":2,"enabled":false}`), &mod))
	assert.Equal(t, 2, mod.Order)
	assert.False(t, mod.Enabled)

	var stat StatWidget
	require.NoError(t, json.Unmarshal([]byte(`{"id":"s","title":"S","icon":"fa"}`), &stat))
	assert.Equal(t, DefaultOrder, stat.Order)
	assert.True(t, stat.Enabled)
}

func TestCloneIsDeep(t *testing.T) {
	doc := &ConfigDocument{
		Version: "1.0",
		Commands: &Commands{
			Navigation:       []NavigationItem{{ID: "a", Title: "A", Enabled: true}},
			DashboardModules: []DashboardModule{},
		},
		Settings: map[string]any{"autoRefresh": true},
	}
	cp, err := doc.Clone()
	require.NoError(t, err)

	cp.Commands.Navigation[0].Title = "changed"
	cp.Settings["autoRefresh"] = false

	assert.Equal(t, "A", doc.Commands.Navigation[0].Title)
	assert.Equal(t, true, doc.Settings["autoRefresh"])
	assert.NotNil(t, cp.Commands.DashboardModules)
}

func TestPermissionPolicyAllows(t *testing.T) {
	tests := []struct {
		name     string
		policy   PermissionPolicy
		required []string
		caller   []string
		want     bool
	}{
		{"unrestricted", PermissionFailClosed, nil, nil, true},
		{"intersect", PermissionFailOpen, []string{"view_personnel"}, []string{"view_personnel"}, true},
		{"disjoint", PermissionFailOpen, []string{"view_personnel"}, []string{"edit_ops"}, false},
		{"empty caller fail-open", PermissionFailOpen, []string{"admin"}, nil, true},
		{"empty caller fail-closed", PermissionFailClosed, []string{"admin"}, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.policy.Allows(tt.required, tt.caller))
		})
	}
}

func TestErrorKinds(t *testing.T) {
	err := fmt.Errorf("load: %w", NewConfigError(errors.New("eof"), "invalid JSON"))
	assert.True(t, errors.Is(err, ErrConfig))
	assert.False(t, errors.Is(err, ErrValidation))
	assert.Equal(t, KindConfig, KindOf(err))
	assert.Contains(t, err.Error(), "invalid JSON: eof")

	verr := NewMissingFieldError("title")
	assert.True(t, IsValidationError(verr))
	assert.Equal(t, "title", verr.Field)
	assert.Equal(t, ErrorKind(""), KindOf(errors.New("plain")))
}

func TestToPayload(t *testing.T) {
	p, err := ToPayload(StatWidget{ID: "s", Title: "S", Icon: "fa", Order: 3, Enabled: true})
	require.NoError(t, err)
	assert.Equal(t, "s", p["id"])
	assert.Equal(t, float64(3), p["order"])
	_, hasEndpoint := p["endpoint"]
	assert.False(t, hasEndpoint)
}
