package e2e

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/mizutama/torii/internal/entities"
	"github.com/mizutama/torii/internal/infrastructure/config"
	"github.com/mizutama/torii/internal/infrastructure/database"
	"github.com/mizutama/torii/internal/repositories/postgres"
	"github.com/mizutama/torii/internal/services/authorization"
)

// setupEngine wires a full decision engine against the test database.
// Tests are skipped when no test database is reachable.
func setupEngine(t *testing.T) (*authorization.Engine, *sql.DB) {
	t.Helper()

	if err := config.InitConfig("test"); err != nil {
		t.Fatalf("Failed to init config: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		t.Skipf("Skipping: test database not configured: %v", err)
	}

	pg, err := database.NewPostgres(&cfg.Database)
	if err != nil {
		t.Skipf("Skipping: test database not reachable: %v", err)
	}

	if err := pg.RunMigrations(migrationsPath(t)); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	catalogueRepo := postgres.NewPostgresCatalogueRepository(pg.DB)
	templateRepo := postgres.NewPostgresTemplateRepository(pg.DB)

	celEngine, err := authorization.NewCELEngine()
	if err != nil {
		t.Fatalf("Failed to create CEL engine: %v", err)
	}
	resolver := authorization.NewRuleSetResolver(authorization.NewConditionEvaluator(celEngine))
	engine := authorization.NewEngine(
		catalogueRepo,
		templateRepo,
		authorization.NewContextPrincipalResolver(),
		nil,
		resolver,
	)

	return engine, pg.DB
}

// cleanup removes all seeded rows and closes the connection
func cleanup(t *testing.T, db *sql.DB) {
	t.Helper()

	for _, table := range []string{"catalogues", "catalogue_templates"} {
		if _, err := db.Exec("DELETE FROM " + table); err != nil {
			t.Logf("Warning: Failed to clean up table %s: %v", table, err)
		}
	}

	if err := db.Close(); err != nil {
		t.Logf("Warning: Failed to close database: %v", err)
	}
}

func migrationsPath(t *testing.T) string {
	t.Helper()

	dir, err := os.Getwd()
	if err != nil {
		t.Fatalf("Failed to get working directory: %v", err)
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return filepath.Join(dir, "internal/infrastructure/database/migrations/postgres")
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatal("go.mod not found in any parent directory")
		}
		dir = parent
	}
}

func marshalRules(t *testing.T, rules []*entities.PermissionRule) string {
	t.Helper()

	if rules == nil {
		return "[]"
	}
	data, err := json.Marshal(rules)
	if err != nil {
		t.Fatalf("Failed to marshal rules: %v", err)
	}
	return string(data)
}

// seedCatalogue inserts a catalogue row built from the entity
func seedCatalogue(t *testing.T, db *sql.DB, c *entities.Catalogue) {
	t.Helper()

	customAttrs := "{}"
	if c.CustomAttrs != nil {
		data, err := json.Marshal(c.CustomAttrs)
		if err != nil {
			t.Fatalf("Failed to marshal custom attrs: %v", err)
		}
		customAttrs = string(data)
	}

	_, err := db.Exec(`
		INSERT INTO catalogues (id, parent_id, template_id, template_version,
			reference, reference_type, classification_code, security_code, path,
			rules, custom_attrs)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10::jsonb, $11::jsonb)
	`, c.ID, c.ParentID, c.TemplateID, c.TemplateVersion,
		c.Reference, c.ReferenceType, c.ClassificationCode, c.SecurityCode, c.Path,
		marshalRules(t, c.Rules), customAttrs)
	if err != nil {
		t.Fatalf("Failed to seed catalogue %s: %v", c.ID, err)
	}
}

// seedTemplate inserts a template row built from the entity
func seedTemplate(t *testing.T, db *sql.DB, tpl *entities.Template) {
	t.Helper()

	_, err := db.Exec(`
		INSERT INTO catalogue_templates (id, version, parent_id, parent_version, rules)
		VALUES ($1, $2, $3, $4, $5::jsonb)
	`, tpl.ID, tpl.Version, tpl.ParentID, tpl.ParentVersion, marshalRules(t, tpl.Rules))
	if err != nil {
		t.Fatalf("Failed to seed template %s@%d: %v", tpl.ID, tpl.Version, err)
	}
}

// principalCtx builds a context carrying the given principal
func principalCtx(id string, roles ...string) context.Context {
	return authorization.WithPrincipal(context.Background(), &entities.Principal{ID: id, Roles: roles})
}

// check runs one permission check and fails the test on engine errors
func check(t *testing.T, engine *authorization.Engine, ctx context.Context, catalogue *entities.Catalogue, action entities.Action, principalID string) bool {
	t.Helper()

	allowed, err := engine.CheckPermission(ctx, catalogue, action, principalID)
	if err != nil {
		t.Fatalf("CheckPermission(%s, %s, %s) error: %v", catalogue.ID, action, principalID, err)
	}
	return allowed
}

func strPtr(s string) *string { return &s }
func intPtr(v int) *int       { return &v }
