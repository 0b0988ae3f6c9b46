package entities

import "fmt"

// Action represents an operation that can be attempted on a catalogue
type Action string

const (
	ActionView                 Action = "view"
	ActionCreate               Action = "create"
	ActionEdit                 Action = "edit"
	ActionDelete               Action = "delete"
	ActionApprove              Action = "approve"
	ActionPublish              Action = "publish"
	ActionArchive              Action = "archive"
	ActionExport               Action = "export"
	ActionImport               Action = "import"
	ActionManagePermissions    Action = "manage_permissions"
	ActionManageConfiguration  Action = "manage_configuration"
	ActionViewAuditLog         Action = "view_audit_log"
	ActionAll                  Action = "all"
)

// Actions lists every defined action
var Actions = []Action{
	ActionView,
	ActionCreate,
	ActionEdit,
	ActionDelete,
	ActionApprove,
	ActionPublish,
	ActionArchive,
	ActionExport,
	ActionImport,
	ActionManagePermissions,
	ActionManageConfiguration,
	ActionViewAuditLog,
	ActionAll,
}

// ParseAction converts a string to an Action
func ParseAction(s string) (Action, error) {
	for _, a := range Actions {
		if string(a) == s {
			return a, nil
		}
	}
	return "", fmt.Errorf("unknown action: %s", s)
}

// IsValid reports whether the action is one of the defined actions
func (a Action) IsValid() bool {
	for _, known := range Actions {
		if a == known {
			return true
		}
	}
	return false
}

// Matches reports whether a rule declared for the action applies to the
// requested action. A rule declared for ActionAll applies to every action.
func (a Action) Matches(requested Action) bool {
	if a == ActionAll {
		return true
	}
	return a == requested
}

func (a Action) String() string {
	return string(a)
}
