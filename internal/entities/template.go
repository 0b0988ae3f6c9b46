package entities

import (
	"fmt"
	"time"
)

// Template represents a reusable catalogue blueprint. Templates are versioned
// and form their own ancestor chain, independent of the catalogue tree.
// Ancestry must be acyclic, but the engine defends against violations at
// runtime rather than trusting the invariant.
type Template struct {
	ID      string
	Version int

	ParentID      *string
	ParentVersion *int

	// Ordered collection of rules attached to this template
	Rules []*PermissionRule

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate checks if the template is well-formed
func (t *Template) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("template ID is required")
	}
	if t.Version < 1 {
		return fmt.Errorf("template version must be positive")
	}
	if t.ParentID != nil && *t.ParentID == t.ID {
		return fmt.Errorf("template cannot be its own parent")
	}
	if t.ParentVersion != nil && t.ParentID == nil {
		return fmt.Errorf("parent version given without parent ID")
	}
	for _, rule := range t.Rules {
		if err := rule.Validate(); err != nil {
			return fmt.Errorf("invalid rule on template %s: %w", t.ID, err)
		}
	}
	return nil
}

// HasParent reports whether the template inherits from another template
func (t *Template) HasParent() bool {
	return t.ParentID != nil
}

// String returns a string representation of the template
// Format: id@version
func (t *Template) String() string {
	return fmt.Sprintf("%s@%d", t.ID, t.Version)
}
