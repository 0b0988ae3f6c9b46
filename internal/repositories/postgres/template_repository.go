package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/mizutama/torii/internal/entities"
	"github.com/mizutama/torii/internal/repositories"
)

// PostgresTemplateRepository implements TemplateRepository using PostgreSQL
type PostgresTemplateRepository struct {
	db *sql.DB
}

// NewPostgresTemplateRepository creates a new PostgreSQL template repository
func NewPostgresTemplateRepository(db *sql.DB) repositories.TemplateRepository {
	return &PostgresTemplateRepository{db: db}
}

const templateColumns = `id, version, parent_id, parent_version, rules, created_at, updated_at`

// GetByID retrieves the latest version of a template
func (r *PostgresTemplateRepository) GetByID(ctx context.Context, id string) (*entities.Template, error) {
	return r.GetLatest(ctx, id)
}

// GetByVersion retrieves a specific version of a template
func (r *PostgresTemplateRepository) GetByVersion(ctx context.Context, id string, version int) (*entities.Template, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM catalogue_templates
		WHERE id = $1 AND version = $2
	`, templateColumns)

	return r.scanTemplate(r.db.QueryRowContext(ctx, query, id, version))
}

// GetLatest retrieves the highest version of a template
func (r *PostgresTemplateRepository) GetLatest(ctx context.Context, id string) (*entities.Template, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM catalogue_templates
		WHERE id = $1
		ORDER BY version DESC
		LIMIT 1
	`, templateColumns)

	return r.scanTemplate(r.db.QueryRowContext(ctx, query, id))
}

// GetParent retrieves the parent of the given template
func (r *PostgresTemplateRepository) GetParent(ctx context.Context, template *entities.Template) (*entities.Template, error) {
	if template == nil || template.ParentID == nil {
		return nil, repositories.ErrNotFound
	}
	if template.ParentVersion != nil {
		return r.GetByVersion(ctx, *template.ParentID, *template.ParentVersion)
	}
	return r.GetLatest(ctx, *template.ParentID)
}

func (r *PostgresTemplateRepository) scanTemplate(row *sql.Row) (*entities.Template, error) {
	var (
		t             entities.Template
		parentID      sql.NullString
		parentVersion sql.NullInt64
		rulesData     []byte
	)

	err := row.Scan(&t.ID, &t.Version, &parentID, &parentVersion, &rulesData, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, repositories.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan template: %w", err)
	}

	if parentID.Valid {
		t.ParentID = &parentID.String
	}
	if parentVersion.Valid {
		v := int(parentVersion.Int64)
		t.ParentVersion = &v
	}

	t.Rules = unmarshalRules(rulesData, "template", t.ID)

	return &t, nil
}
