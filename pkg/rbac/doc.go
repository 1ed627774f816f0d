/*
Package rbac provides role-based permission evaluation.

The engine holds a registry of named permissions and roles, where roles
grant permissions and may inherit from other roles. Check answers the
single question the gateway asks on every authorized request: do these
roles, plus these directly granted permissions, cover the required
permission string?

# Permission Model

Permissions are resource:action strings ("models:read",
"agents:write"). Matching supports wildcards on either side:

	models:*  covers models:read and models:write
	*         covers everything
	system:*  is what internal tokens carry

Roles form a DAG: a role inherits the full closure of its parents, and
cycle creation is rejected at definition time. The effective permission
set of a role is cached and invalidated on any grant or role change.

System-flagged roles and permissions are immutable; Delete and Grant
refuse to touch them, which keeps the built-in admin role intact.

# Usage

	e := rbac.NewEngine()
	e.CreatePermission("models:read", "list and inspect models", false)
	e.CreateRole("viewer", []string{"models:read"}, nil, false)
	e.CreateRole("operator", []string{"models:write"}, []string{"viewer"}, false)

	ok := e.Check([]string{"operator"}, nil, "models:read") // true via inheritance

Check never returns an error: unknown roles simply contribute nothing,
so a token minted before a role was deleted degrades to its remaining
grants instead of failing hard.

# Integration Points

  - pkg/gateway: authorize() calls Check with the claims' roles and
    direct permissions
  - pkg/auth: claim types that carry the inputs to Check

# See Also

  - pkg/auth for how identities acquire roles and permissions
*/
package rbac
