package entities

import (
	"fmt"
	"time"
)

// Catalogue represents a node in the document catalogue hierarchy.
// The permission engine only ever reads catalogues; it never mutates them.
type Catalogue struct {
	ID       string
	ParentID *string // nil marks a root catalogue

	// Template provenance: the template this catalogue was instantiated from
	TemplateID      *string
	TemplateVersion *int

	// Ordered collection of rules attached directly to this catalogue
	Rules []*PermissionRule

	// Attributes a policy condition may reference
	Reference          string         // business reference
	ReferenceType      int            // reference type code
	ClassificationCode string         // document classification code
	SecurityCode       string         // security classification code
	Path               string         // hierarchical path (e.g. "/contracts/2026/acme")
	CustomAttrs        map[string]any // free-form attributes

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate checks if the catalogue is well-formed
func (c *Catalogue) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("catalogue ID is required")
	}
	if c.ParentID != nil && *c.ParentID == c.ID {
		return fmt.Errorf("catalogue cannot be its own parent")
	}
	if c.TemplateVersion != nil && c.TemplateID == nil {
		return fmt.Errorf("template version given without template ID")
	}
	for _, rule := range c.Rules {
		if err := rule.Validate(); err != nil {
			return fmt.Errorf("invalid rule on catalogue %s: %w", c.ID, err)
		}
	}
	return nil
}

// IsRoot reports whether the catalogue has no parent
func (c *Catalogue) IsRoot() bool {
	return c.ParentID == nil
}

// HasTemplate reports whether the catalogue was instantiated from a template
func (c *Catalogue) HasTemplate() bool {
	return c.TemplateID != nil
}
