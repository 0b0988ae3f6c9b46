package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/mizutama/torii/internal/entities"
	"github.com/mizutama/torii/internal/infrastructure/config"
	"github.com/mizutama/torii/internal/infrastructure/database"
	"github.com/mizutama/torii/internal/repositories"
	"github.com/mizutama/torii/internal/repositories/postgres"
	"github.com/mizutama/torii/internal/services/authorization"
	"github.com/mizutama/torii/pkg/cache/memorycache"
)

var (
	envFlag       string
	principalFlag string
	rolesFlag     []string
	verboseFlag   bool
)

var rootCmd = &cobra.Command{
	Use:   "torii",
	Short: "Hierarchical permission decision tool for Torii",
	Long: `Hierarchical permission decision tool for Torii.
Evaluates catalogue permission rules, inheritance chains and template
lineage against the configured PostgreSQL store.`,
}

var checkCmd = &cobra.Command{
	Use:   "check <catalogue-id> <action>",
	Short: "Decide a single permission check",
	Long: `Decide whether the principal may perform the action on the catalogue.
Exits 0 when allowed, 1 when denied.`,
	Args: cobra.ExactArgs(2),
	Run:  runCheck,
}

var batchCmd = &cobra.Command{
	Use:   "batch <action> <catalogue-id>...",
	Short: "Decide one action across many catalogues",
	Long:  `Decide the action for every listed catalogue and print the result per id.`,
	Args:  cobra.MinimumNArgs(2),
	Run:   runBatch,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&envFlag, "env", "e", "dev", "Environment to use (dev, test, prod)")
	rootCmd.PersistentFlags().StringVarP(&principalFlag, "principal", "p", "", "Principal identifier the check runs for")
	rootCmd.PersistentFlags().StringSliceVarP(&rolesFlag, "roles", "r", nil, "Roles the principal carries")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Log every decision trace")

	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(batchCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Failed to execute command: %v", err)
	}
}

// setup wires the decision engine against the configured database
func setup() (*authorization.Engine, repositories.CatalogueRepository, *database.Postgres) {
	if err := config.InitConfig(envFlag); err != nil {
		log.Fatalf("Failed to initialize config: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	pg, err := database.NewPostgres(&cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	catalogueRepo := postgres.NewPostgresCatalogueRepository(pg.DB)
	templateRepo := postgres.NewPostgresTemplateRepository(pg.DB)

	celEngine, err := authorization.NewCELEngine()
	if err != nil {
		log.Fatalf("Failed to create CEL engine: %v", err)
	}
	resolver := authorization.NewRuleSetResolver(authorization.NewConditionEvaluator(celEngine))
	principals := authorization.NewContextPrincipalResolver()

	var engine *authorization.Engine
	if cfg.Cache.Enabled {
		decisionCache, err := memorycache.New(&memorycache.Config{
			MaxSizeBytes:  cfg.Cache.MaxMemoryBytes,
			DefaultTTL:    time.Duration(cfg.Cache.TTLMinutes) * time.Minute,
			EnableMetrics: cfg.Cache.Metrics,
		})
		if err != nil {
			log.Fatalf("Failed to create decision cache: %v", err)
		}
		engine = authorization.NewEngineWithCache(
			catalogueRepo, templateRepo, principals, nil, resolver,
			decisionCache, time.Duration(cfg.Cache.TTLMinutes)*time.Minute,
		)
	} else {
		engine = authorization.NewEngine(catalogueRepo, templateRepo, principals, nil, resolver)
	}

	engine.Walker().SetMaxDepth(cfg.Engine.MaxDepth)
	engine.SetBatchParallelism(cfg.Engine.BatchParallelism)
	engine.SetActionNamer(authorization.NewActionNamer(cfg.Engine.PermissionNames))
	if verboseFlag {
		engine.SetAuditLogger(authorization.LogAuditLogger{})
	}

	return engine, catalogueRepo, pg
}

// principalContext attaches the flag-supplied principal to the context
func principalContext() (context.Context, string) {
	ctx := context.Background()
	if principalFlag == "" {
		log.Fatalf("--principal is required")
	}
	principal := &entities.Principal{ID: principalFlag, Roles: rolesFlag}
	return authorization.WithPrincipal(ctx, principal), principalFlag
}

func runCheck(cmd *cobra.Command, args []string) {
	catalogueID := args[0]
	action, err := entities.ParseAction(args[1])
	if err != nil {
		log.Fatalf("Invalid action: %v", err)
	}

	engine, catalogueRepo, pg := setup()
	defer pg.Close()

	ctx, principalID := principalContext()

	catalogue, err := catalogueRepo.GetByID(ctx, catalogueID)
	if err != nil {
		log.Fatalf("Failed to load catalogue %s: %v", catalogueID, err)
	}

	allowed, err := engine.CheckPermission(ctx, catalogue, action, principalID)
	if err != nil {
		log.Fatalf("Check failed: %v", err)
	}

	if allowed {
		fmt.Printf("ALLOW %s %s for %s\n", action, catalogueID, principalID)
		return
	}
	fmt.Printf("DENY %s %s for %s\n", action, catalogueID, principalID)
	os.Exit(1)
}

func runBatch(cmd *cobra.Command, args []string) {
	action, err := entities.ParseAction(args[0])
	if err != nil {
		log.Fatalf("Invalid action: %v", err)
	}

	engine, catalogueRepo, pg := setup()
	defer pg.Close()

	ctx, principalID := principalContext()

	catalogues := make([]*entities.Catalogue, 0, len(args)-1)
	for _, id := range args[1:] {
		catalogue, err := catalogueRepo.GetByID(ctx, id)
		if err != nil {
			log.Printf("Skipping catalogue %s: %v", id, err)
			continue
		}
		catalogues = append(catalogues, catalogue)
	}

	results, err := engine.CheckPermissionBatch(ctx, catalogues, action, principalID)
	if err != nil {
		log.Fatalf("Batch check failed: %v", err)
	}

	ids := make([]string, 0, len(results))
	for id := range results {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		outcome := "DENY"
		if results[id] {
			outcome = "ALLOW"
		}
		fmt.Printf("%s %s\n", outcome, id)
	}
}
