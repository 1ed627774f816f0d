package rbac

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatch(t *testing.T) {
	tests := []struct {
		name     string
		granted  string
		required string
		expected bool
	}{
		{"exact match", "models:read", "models:read", true},
		{"exact mismatch", "models:read", "models:write", false},
		{"wildcard matches action", "models:*", "models:write", true},
		{"wildcard matches read", "models:*", "models:read", true},
		{"wildcard wrong prefix", "models:*", "agents:read", false},
		{"global wildcard", "system:*", "system:shutdown", true},
		{"wildcard not suffix", "*:read", "models:read", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Match(tt.granted, tt.required))
		})
	}
}

func TestRoleInheritanceClosure(t *testing.T) {
	e := NewEngine()

	require.NoError(t, e.CreateRole("viewer", []string{"models:read"}, nil, false))
	require.NoError(t, e.CreateRole("editor", []string{"models:write"}, []string{"viewer"}, false))
	require.NoError(t, e.CreateRole("admin", []string{"system:*"}, []string{"editor"}, false))

	perms, err := e.EffectivePermissions("admin")
	require.NoError(t, err)
	assert.True(t, perms["models:read"])
	assert.True(t, perms["models:write"])
	assert.True(t, perms["system:*"])

	perms, err = e.EffectivePermissions("viewer")
	require.NoError(t, err)
	assert.True(t, perms["models:read"])
	assert.False(t, perms["models:write"])
}

func TestCheck(t *testing.T) {
	e := NewEngine()
	require.NoError(t, e.CreateRole("viewer", []string{"models:read"}, nil, false))
	require.NoError(t, e.CreateRole("operator", []string{"agents:*"}, []string{"viewer"}, false))

	assert.True(t, e.Check([]string{"operator"}, nil, "models:read"))
	assert.True(t, e.Check([]string{"operator"}, nil, "agents:execute"))
	assert.False(t, e.Check([]string{"viewer"}, nil, "agents:execute"))

	// Direct grants work without any role.
	assert.True(t, e.Check(nil, []string{"chat:*"}, "chat:send"))
	assert.False(t, e.Check(nil, []string{"chat:send"}, "chat:delete"))

	// Unknown roles are ignored, not an error.
	assert.False(t, e.Check([]string{"ghost"}, nil, "models:read"))
}

func TestCreateRoleDuplicate(t *testing.T) {
	e := NewEngine()
	require.NoError(t, e.CreateRole("a", nil, nil, false))
	require.NoError(t, e.CreateRole("b", nil, []string{"a"}, false))

	assert.Error(t, e.CreateRole("b", nil, nil, false))
}

func TestCreateRoleUnknownParent(t *testing.T) {
	e := NewEngine()
	assert.Error(t, e.CreateRole("child", nil, []string{"missing"}, false))
}

func TestSystemImmutability(t *testing.T) {
	e := NewEngine()
	require.NoError(t, e.CreatePermission("system:core", "built-in", true))
	require.NoError(t, e.CreateRole("root", []string{"system:core"}, nil, true))

	assert.Error(t, e.DeletePermission("system:core"))
	assert.Error(t, e.DeleteRole("root"))
	assert.Error(t, e.GrantPermission("root", "extra:perm"))
}

func TestDeleteRoleReferencedAsParent(t *testing.T) {
	e := NewEngine()
	require.NoError(t, e.CreateRole("base", nil, nil, false))
	require.NoError(t, e.CreateRole("child", nil, []string{"base"}, false))

	assert.Error(t, e.DeleteRole("base"))
	require.NoError(t, e.DeleteRole("child"))
	require.NoError(t, e.DeleteRole("base"))
}

func TestGrantInvalidatesClosure(t *testing.T) {
	e := NewEngine()
	require.NoError(t, e.CreateRole("base", []string{"models:read"}, nil, false))
	require.NoError(t, e.CreateRole("derived", nil, []string{"base"}, false))

	assert.False(t, e.Check([]string{"derived"}, nil, "agents:read"))

	require.NoError(t, e.GrantPermission("base", "agents:read"))
	assert.True(t, e.Check([]string{"derived"}, nil, "agents:read"))
}
