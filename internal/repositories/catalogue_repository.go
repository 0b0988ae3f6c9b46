package repositories

import (
	"context"
	"errors"

	"github.com/mizutama/torii/internal/entities"
)

// ErrNotFound marks ordinary absence of a catalogue or template. Absence is a
// normal value for the permission engine, distinct from transient store
// failures, so callers must test for this sentinel with errors.Is.
var ErrNotFound = errors.New("not found")

// CatalogueRepository defines read-only access to the catalogue hierarchy.
// The permission engine never writes through this interface.
type CatalogueRepository interface {
	// GetByID retrieves a catalogue by ID.
	// Returns ErrNotFound when no catalogue has the given ID.
	GetByID(ctx context.Context, id string) (*entities.Catalogue, error)

	// GetParent retrieves the parent of the given catalogue via its ParentID.
	// Returns ErrNotFound when the catalogue is a root or the parent is absent.
	GetParent(ctx context.Context, catalogue *entities.Catalogue) (*entities.Catalogue, error)
}

// TemplateRepository defines read-only access to versioned catalogue templates
type TemplateRepository interface {
	// GetByID retrieves the latest version of a template.
	// Returns ErrNotFound when no template has the given ID.
	GetByID(ctx context.Context, id string) (*entities.Template, error)

	// GetByVersion retrieves a specific version of a template.
	// Returns ErrNotFound when that version does not exist.
	GetByVersion(ctx context.Context, id string, version int) (*entities.Template, error)

	// GetLatest retrieves the highest version of a template.
	// Returns ErrNotFound when no version exists.
	GetLatest(ctx context.Context, id string) (*entities.Template, error)

	// GetParent retrieves the parent of the given template via its ParentID
	// and ParentVersion (latest version when ParentVersion is nil).
	// Returns ErrNotFound when the template has no parent or the parent is absent.
	GetParent(ctx context.Context, template *entities.Template) (*entities.Template, error)
}
