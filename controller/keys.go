package controller

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/eclipticdb/ecliptic/catalog"
	"github.com/eclipticdb/ecliptic/fault"
	"github.com/eclipticdb/ecliptic/permission"
)

// CreateMCPKey mints a key. The secret appears in this response only.
func (c *Controllers) CreateMCPKey(ctx context.Context, orgID, name string) (*catalog.MCPKey, *fault.Entry) {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > 64 {
		return nil, fault.Input("mcp_key.name", "name must be 1 to 64 characters")
	}
	k, err := c.Catalog.CreateMCPKey(ctx, orgID, name)
	if ferr := mapErr(err, "mcp_key.create", "key"); ferr != nil {
		return nil, ferr
	}
	return k, nil
}

// ListMCPKeys lists the organization's keys without secrets.
func (c *Controllers) ListMCPKeys(ctx context.Context, orgID string) ([]*catalog.MCPKey, *fault.Entry) {
	ks, err := c.Catalog.ListMCPKeys(ctx, orgID)
	if ferr := mapErr(err, "mcp_key.list", "key"); ferr != nil {
		return nil, ferr
	}
	return ks, nil
}

// DeleteMCPKey revokes a key and all its grants.
func (c *Controllers) DeleteMCPKey(ctx context.Context, orgID, keyID string) *fault.Entry {
	return mapErr(c.Catalog.DeleteMCPKey(ctx, orgID, keyID), "mcp_key.delete", "key")
}

// AddMapping grants an action on a target to a key.
func (c *Controllers) AddMapping(ctx context.Context, orgID, keyID, targetID string, action permission.Action) (*catalog.Mapping, *fault.Entry) {
	m, err := c.Catalog.AddMapping(ctx, orgID, keyID, targetID, action)
	if errors.Is(err, catalog.ErrActionMismatch) {
		return nil, fault.Input("mapping.action", "that action cannot attach to that target")
	}
	if ferr := mapErr(err, "mapping.add", "target or key"); ferr != nil {
		return nil, ferr
	}
	return m, nil
}

// DeleteMapping revokes one grant.
func (c *Controllers) DeleteMapping(ctx context.Context, orgID, mappingID string) *fault.Entry {
	return mapErr(c.Catalog.DeleteMapping(ctx, orgID, mappingID), "mapping.delete", "mapping")
}

// ListMappings returns one key's grants.
func (c *Controllers) ListMappings(ctx context.Context, orgID, keyID string) ([]*catalog.Mapping, *fault.Entry) {
	ms, err := c.Catalog.ListMappings(ctx, orgID, keyID)
	if ferr := mapErr(err, "mapping.list", "mapping"); ferr != nil {
		return nil, ferr
	}
	return ms, nil
}

// PermissionMeta describes the grantable surface: the closed action
// vocabulary by target type and the organization's addressable targets.
type PermissionMeta struct {
	ActionsByType map[permission.TargetType][]permission.Action `json:"actions_by_type"`
	Targets       []catalog.TargetRow                           `json:"targets"`
}

// GetPermissionMeta returns the grantable surface for the grant-editing UI.
func (c *Controllers) GetPermissionMeta(ctx context.Context, orgID string) (*PermissionMeta, *fault.Entry) {
	targets, err := c.Catalog.ListTargets(ctx, orgID)
	if ferr := mapErr(err, "permission.meta", "targets"); ferr != nil {
		return nil, ferr
	}
	return &PermissionMeta{
		ActionsByType: permission.AllowedActionsByType,
		Targets:       targets,
	}, nil
}
