package authorization

import (
	"context"

	"github.com/mizutama/torii/internal/entities"
)

// CoarseOracle is the external, name-keyed global permission check consulted
// before any rule evaluation. A grant short-circuits the engine entirely.
// Implementations live outside this module (typically an IAM service client).
type CoarseOracle interface {
	// IsGrantedGlobally reports whether the principal holds the named
	// coarse-grained permission. Errors are treated as "not granted" by the
	// engine, never surfaced to callers.
	IsGrantedGlobally(ctx context.Context, principalID string, permissionName string) (bool, error)
}

// DenyAllOracle is a CoarseOracle that never grants. It is the default when
// no oracle is wired, so the engine falls through to rule evaluation.
type DenyAllOracle struct{}

func (DenyAllOracle) IsGrantedGlobally(ctx context.Context, principalID string, permissionName string) (bool, error) {
	return false, nil
}

// defaultPermissionNames is the fixed action -> coarse permission name table.
// ActionAll maps to the coarse top-level name.
var defaultPermissionNames = map[entities.Action]string{
	entities.ActionView:                "documents.view",
	entities.ActionCreate:              "documents.create",
	entities.ActionEdit:                "documents.edit",
	entities.ActionDelete:              "documents.delete",
	entities.ActionApprove:             "documents.approve",
	entities.ActionPublish:             "documents.publish",
	entities.ActionArchive:             "documents.archive",
	entities.ActionExport:              "documents.export",
	entities.ActionImport:              "documents.import",
	entities.ActionManagePermissions:   "documents.manage_permissions",
	entities.ActionManageConfiguration: "documents.manage_configuration",
	entities.ActionViewAuditLog:        "documents.view_audit_log",
	entities.ActionAll:                 "documents",
}

// ActionNamer maps actions to the permission names the coarse oracle
// understands
type ActionNamer struct {
	names map[entities.Action]string
}

// NewActionNamer builds the default action -> name table, with optional
// overrides keyed by action string (typically from configuration).
func NewActionNamer(overrides map[string]string) *ActionNamer {
	names := make(map[entities.Action]string, len(defaultPermissionNames))
	for action, name := range defaultPermissionNames {
		names[action] = name
	}
	for actionStr, name := range overrides {
		action, err := entities.ParseAction(actionStr)
		if err != nil {
			continue
		}
		names[action] = name
	}
	return &ActionNamer{names: names}
}

// Name returns the coarse permission name for the action.
// Unknown actions fall back to the View mapping.
func (n *ActionNamer) Name(action entities.Action) string {
	if name, ok := n.names[action]; ok {
		return name
	}
	return n.names[entities.ActionView]
}
