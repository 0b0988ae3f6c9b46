package e2e

import (
	"testing"

	"github.com/mizutama/torii/internal/entities"
)

// Department tree: company -> legal -> contracts. Rules live at different
// levels and checks run against the leaf.
func TestHierarchyInheritance(t *testing.T) {
	engine, db := setupEngine(t)
	defer cleanup(t, db)

	company := &entities.Catalogue{
		ID:   "company",
		Path: "/company/",
		Rules: []*entities.PermissionRule{
			{SubjectKind: entities.SubjectRole, SubjectTarget: "employee", Action: entities.ActionView, Effect: entities.EffectAllow, Enabled: true},
			{SubjectKind: entities.SubjectRole, SubjectTarget: "admin", Action: entities.ActionAll, Effect: entities.EffectAllow, Enabled: true},
		},
	}
	legal := &entities.Catalogue{
		ID:       "legal",
		ParentID: strPtr("company"),
		Path:     "/company/legal/",
		Rules: []*entities.PermissionRule{
			{SubjectKind: entities.SubjectRole, SubjectTarget: "contractor", Action: entities.ActionView, Effect: entities.EffectDeny, Enabled: true},
		},
	}
	contracts := &entities.Catalogue{
		ID:       "contracts",
		ParentID: strPtr("legal"),
		Path:     "/company/legal/contracts/",
	}

	seedCatalogue(t, db, company)
	seedCatalogue(t, db, legal)
	seedCatalogue(t, db, contracts)

	t.Run("employee view allowed from the root", func(t *testing.T) {
		ctx := principalCtx("alice", "employee")
		if !check(t, engine, ctx, contracts, entities.ActionView, "alice") {
			t.Error("expected root allow to reach the leaf")
		}
	})

	t.Run("contractor view denied at the middle level", func(t *testing.T) {
		ctx := principalCtx("bob", "employee", "contractor")
		if check(t, engine, ctx, contracts, entities.ActionView, "bob") {
			t.Error("expected the closer deny to win over the root allow")
		}
	})

	t.Run("admin wildcard covers every action", func(t *testing.T) {
		ctx := principalCtx("carol", "admin")
		for _, action := range []entities.Action{entities.ActionView, entities.ActionEdit, entities.ActionDelete, entities.ActionManagePermissions} {
			if !check(t, engine, ctx, contracts, action, "carol") {
				t.Errorf("expected admin wildcard to allow %s", action)
			}
		}
	})

	t.Run("unmatched principal gets the default deny", func(t *testing.T) {
		ctx := principalCtx("dave", "visitor")
		if check(t, engine, ctx, contracts, entities.ActionView, "dave") {
			t.Error("expected default deny for an unmatched principal")
		}
	})

	t.Run("edit is not implied by view", func(t *testing.T) {
		ctx := principalCtx("alice", "employee")
		if check(t, engine, ctx, contracts, entities.ActionEdit, "alice") {
			t.Error("expected edit to be denied when only view is allowed")
		}
	})
}

func TestHierarchyLocalRulesWinOverAncestors(t *testing.T) {
	engine, db := setupEngine(t)
	defer cleanup(t, db)

	parent := &entities.Catalogue{
		ID: "restricted",
		Rules: []*entities.PermissionRule{
			{SubjectKind: entities.SubjectRole, SubjectTarget: "staff", Action: entities.ActionView, Effect: entities.EffectDeny, Enabled: true},
		},
	}
	child := &entities.Catalogue{
		ID:       "press-kit",
		ParentID: strPtr("restricted"),
		Rules: []*entities.PermissionRule{
			{SubjectKind: entities.SubjectRole, SubjectTarget: "staff", Action: entities.ActionView, Effect: entities.EffectAllow, Enabled: true},
		},
	}

	seedCatalogue(t, db, parent)
	seedCatalogue(t, db, child)

	ctx := principalCtx("erin", "staff")
	if !check(t, engine, ctx, child, entities.ActionView, "erin") {
		t.Error("expected the child's own allow to decide before the ancestor deny")
	}
}

func TestHierarchyCycleFallsBackToDeny(t *testing.T) {
	engine, db := setupEngine(t)
	defer cleanup(t, db)

	a := &entities.Catalogue{ID: "node-a"}
	b := &entities.Catalogue{ID: "node-b", ParentID: strPtr("node-a")}
	seedCatalogue(t, db, a)
	seedCatalogue(t, db, b)

	// Close the loop after both rows exist
	if _, err := db.Exec(`UPDATE catalogues SET parent_id = 'node-b' WHERE id = 'node-a'`); err != nil {
		t.Fatalf("Failed to close the parent loop: %v", err)
	}
	a.ParentID = strPtr("node-b")

	cycles := 0
	engine.Walker().OnCycle = func(chain string, id string) { cycles++ }

	ctx := principalCtx("frank", "employee")
	if check(t, engine, ctx, a, entities.ActionView, "frank") {
		t.Error("expected a cyclic hierarchy to resolve to deny")
	}
	if cycles == 0 {
		t.Error("expected the cycle to be detected")
	}
}
