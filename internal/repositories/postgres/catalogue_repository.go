package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"

	"github.com/mizutama/torii/internal/entities"
	"github.com/mizutama/torii/internal/repositories"
)

// PostgresCatalogueRepository implements CatalogueRepository using PostgreSQL
type PostgresCatalogueRepository struct {
	db *sql.DB
}

// NewPostgresCatalogueRepository creates a new PostgreSQL catalogue repository
func NewPostgresCatalogueRepository(db *sql.DB) repositories.CatalogueRepository {
	return &PostgresCatalogueRepository{db: db}
}

// GetByID retrieves a catalogue by ID
func (r *PostgresCatalogueRepository) GetByID(ctx context.Context, id string) (*entities.Catalogue, error) {
	query := `
		SELECT id, parent_id, template_id, template_version,
			reference, reference_type, classification_code, security_code, path,
			rules, custom_attrs, created_at, updated_at
		FROM catalogues
		WHERE id = $1
	`

	var (
		c               entities.Catalogue
		parentID        sql.NullString
		templateID      sql.NullString
		templateVersion sql.NullInt64
		rulesData       []byte
		attrsData       []byte
	)

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&c.ID, &parentID, &templateID, &templateVersion,
		&c.Reference, &c.ReferenceType, &c.ClassificationCode, &c.SecurityCode, &c.Path,
		&rulesData, &attrsData, &c.CreatedAt, &c.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, repositories.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get catalogue %s: %w", id, err)
	}

	if parentID.Valid {
		c.ParentID = &parentID.String
	}
	if templateID.Valid {
		c.TemplateID = &templateID.String
	}
	if templateVersion.Valid {
		v := int(templateVersion.Int64)
		c.TemplateVersion = &v
	}

	c.Rules = unmarshalRules(rulesData, "catalogue", c.ID)

	if len(attrsData) > 0 {
		if err := json.Unmarshal(attrsData, &c.CustomAttrs); err != nil {
			// Corrupt attribute data must not abort a permission decision
			log.Printf("catalogue %s: corrupt custom attributes ignored: %v", c.ID, err)
			c.CustomAttrs = nil
		}
	}

	return &c, nil
}

// GetParent retrieves the parent of the given catalogue
func (r *PostgresCatalogueRepository) GetParent(ctx context.Context, catalogue *entities.Catalogue) (*entities.Catalogue, error) {
	if catalogue == nil || catalogue.ParentID == nil {
		return nil, repositories.ErrNotFound
	}
	return r.GetByID(ctx, *catalogue.ParentID)
}

// unmarshalRules decodes a JSONB rule array. A corrupt rule column is treated
// as the entity having no rules: permission decisions fail closed on bad data
// instead of erroring out.
func unmarshalRules(data []byte, kind, id string) []*entities.PermissionRule {
	if len(data) == 0 {
		return nil
	}
	var rules []*entities.PermissionRule
	if err := json.Unmarshal(data, &rules); err != nil {
		log.Printf("%s %s: corrupt rules ignored: %v", kind, id, err)
		return nil
	}
	return rules
}
