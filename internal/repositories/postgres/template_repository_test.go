package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/mizutama/torii/internal/repositories"
)

func insertTemplate(t *testing.T, db *sql.DB, id string, version int, parentID *string, parentVersion *int, rules string) {
	t.Helper()
	_, err := db.Exec(`
		INSERT INTO catalogue_templates (id, version, parent_id, parent_version, rules)
		VALUES ($1, $2, $3, $4, $5::jsonb)
	`, id, version, parentID, parentVersion, rules)
	if err != nil {
		t.Fatalf("Failed to insert template %s@%d: %v", id, version, err)
	}
}

func TestPostgresTemplateRepository_GetLatest(t *testing.T) {
	db := SetupTestDB(t)
	defer CleanupTestDB(t, db)

	repo := NewPostgresTemplateRepository(db)
	ctx := context.Background()

	insertTemplate(t, db, "contract", 1, nil, nil, `[]`)
	insertTemplate(t, db, "contract", 2, nil, nil,
		`[{"subject_kind":"role","subject_target":"viewer","action":"view","effect":"allow","enabled":true}]`)

	tpl, err := repo.GetLatest(ctx, "contract")
	if err != nil {
		t.Fatalf("GetLatest() error = %v", err)
	}
	if tpl.Version != 2 {
		t.Errorf("Version = %d, want 2", tpl.Version)
	}
	if len(tpl.Rules) != 1 {
		t.Errorf("len(Rules) = %d, want 1", len(tpl.Rules))
	}

	// GetByID is an alias for latest
	tpl, err = repo.GetByID(ctx, "contract")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if tpl.Version != 2 {
		t.Errorf("GetByID Version = %d, want 2", tpl.Version)
	}
}

func TestPostgresTemplateRepository_GetByVersion(t *testing.T) {
	db := SetupTestDB(t)
	defer CleanupTestDB(t, db)

	repo := NewPostgresTemplateRepository(db)
	ctx := context.Background()

	insertTemplate(t, db, "contract", 1, nil, nil, `[]`)
	insertTemplate(t, db, "contract", 2, nil, nil, `[]`)

	tpl, err := repo.GetByVersion(ctx, "contract", 1)
	if err != nil {
		t.Fatalf("GetByVersion() error = %v", err)
	}
	if tpl.Version != 1 {
		t.Errorf("Version = %d, want 1", tpl.Version)
	}

	if _, err := repo.GetByVersion(ctx, "contract", 9); !errors.Is(err, repositories.ErrNotFound) {
		t.Errorf("GetByVersion(missing) error = %v, want ErrNotFound", err)
	}
}

func TestPostgresTemplateRepository_GetParent(t *testing.T) {
	db := SetupTestDB(t)
	defer CleanupTestDB(t, db)

	repo := NewPostgresTemplateRepository(db)
	ctx := context.Background()

	base := "base"
	v1 := 1
	insertTemplate(t, db, "base", 1, nil, nil, `[]`)
	insertTemplate(t, db, "base", 2, nil, nil, `[]`)
	insertTemplate(t, db, "contract", 1, &base, &v1, `[]`)
	insertTemplate(t, db, "invoice", 1, &base, nil, `[]`)

	// Pinned parent version
	child, err := repo.GetByVersion(ctx, "contract", 1)
	if err != nil {
		t.Fatalf("GetByVersion() error = %v", err)
	}
	parent, err := repo.GetParent(ctx, child)
	if err != nil {
		t.Fatalf("GetParent() error = %v", err)
	}
	if parent.ID != "base" || parent.Version != 1 {
		t.Errorf("parent = %s, want base@1", parent)
	}

	// Unpinned parent version resolves to latest
	child, err = repo.GetByVersion(ctx, "invoice", 1)
	if err != nil {
		t.Fatalf("GetByVersion() error = %v", err)
	}
	parent, err = repo.GetParent(ctx, child)
	if err != nil {
		t.Fatalf("GetParent() error = %v", err)
	}
	if parent.Version != 2 {
		t.Errorf("parent.Version = %d, want 2 (latest)", parent.Version)
	}

	// Root template has no parent
	if _, err := repo.GetParent(ctx, parent); !errors.Is(err, repositories.ErrNotFound) {
		t.Errorf("GetParent(root) error = %v, want ErrNotFound", err)
	}
}
