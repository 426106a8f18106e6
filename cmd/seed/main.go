// Package main provides a CLI tool for seeding the database with demo catalogs.
package main

import (
	"context"
	"fmt"
	"os"

	"storeledger/internal/core/apperror"
	appctx "storeledger/internal/core/context"
	"storeledger/internal/core/id"
	"storeledger/internal/domain/auth"
	"storeledger/internal/domain/catalogs"
	"storeledger/internal/infrastructure/config"
	"storeledger/internal/infrastructure/storage/postgres"
	"storeledger/internal/infrastructure/storage/postgres/catalog_repo"
	"storeledger/pkg/logger"
)

// Demo identifiers are fixed so tokens and scripts can refer to them.
var (
	demoStoreID    = id.MustParse("0192f1a0-0000-7000-8000-000000000001")
	demoSupplierID = id.MustParse("0192f1a0-0000-7000-8000-000000000002")
	demoClientID   = id.MustParse("0192f1a0-0000-7000-8000-000000000003")
)

var demoProducts = []catalogs.Product{
	{ID: id.MustParse("0192f1a0-0000-7000-8000-000000000101"), Name: "Olive oil 1L", Barcode: "6111245590012", BoxItems: 12},
	{ID: id.MustParse("0192f1a0-0000-7000-8000-000000000102"), Name: "Couscous 1kg", Barcode: "6111245590029", BoxItems: 10},
	{ID: id.MustParse("0192f1a0-0000-7000-8000-000000000103"), Name: "Mint tea 200g", Barcode: "6111245590036", BoxItems: 24},
	{ID: id.MustParse("0192f1a0-0000-7000-8000-000000000104"), Name: "Sparkling water 1.5L", Barcode: "6111245590043", BoxItems: 6},
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       "info",
		Development: true,
		Service:     "storeledger-seed",
	})
	if err != nil {
		fmt.Printf("failed to create logger: %v\n", err)
		os.Exit(1)
	}

	ctx := logger.WithLogger(context.Background(), log)

	poolCfg := postgres.DefaultPoolConfig(cfg.Database.URL)
	poolCfg.TimeZone = cfg.Ledger.TimeZone
	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()

	log.Info("connected to database")

	if err := postgres.Migrate(ctx, pool); err != nil {
		log.Fatalw("failed to migrate database", "error", err)
	}

	txManager := postgres.NewTxManager(pool)
	lookup := catalog_repo.NewLookup(txManager)

	if _, err := lookup.Store(ctx, demoStoreID); err == nil {
		log.Infow("demo data already present", "store_id", demoStoreID)
	} else if !apperror.IsNotFound(err) {
		log.Fatalw("failed to check demo store", "error", err)
	} else if err := seedDemoData(ctx, txManager, lookup); err != nil {
		log.Fatalw("failed to seed demo data", "error", err)
	}

	if cfg.Auth.JWTSecret != "" {
		printTokens(cfg, log)
	}

	log.Info("seeding completed successfully")
}

func seedDemoData(ctx context.Context, txManager *postgres.TxManager, lookup *catalog_repo.Lookup) error {
	return txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := lookup.Stores.Create(ctx, &catalogs.Store{ID: demoStoreID, Name: "Demo market", IsActive: true}); err != nil {
			return fmt.Errorf("create store: %w", err)
		}
		if err := lookup.Suppliers.Create(ctx, &catalogs.Supplier{
			ID: demoSupplierID, StoreID: demoStoreID, Name: "Atlas wholesale", Phone: "+212 522 000000",
		}); err != nil {
			return fmt.Errorf("create supplier: %w", err)
		}
		if err := lookup.Clients.Create(ctx, &catalogs.Client{ID: demoClientID, Code: "CL001", Name: "Corner cafe"}); err != nil {
			return fmt.Errorf("create client: %w", err)
		}
		if err := lookup.SetMembership(ctx, demoClientID, demoStoreID, true); err != nil {
			return err
		}

		rows := make([][]any, len(demoProducts))
		for i, p := range demoProducts {
			rows[i] = []any{p.ID, p.Name, p.Barcode, p.BoxItems}
		}
		n, err := postgres.NewBatchInserter(txManager).CopyFromSlice(ctx, "cat_products",
			[]string{"id", "name", "barcode", "box_items"}, rows)
		if err != nil {
			return err
		}

		logger.Info(ctx, "demo catalogs created",
			"store_id", demoStoreID,
			"supplier_id", demoSupplierID,
			"client_id", demoClientID,
			"products", n)
		return nil
	})
}

// printTokens logs ready-to-use bearer tokens for the demo actors.
func printTokens(cfg *config.Config, log *logger.Logger) {
	jwtCfg := auth.DefaultJWTConfig(cfg.Auth.JWTSecret)
	jwtCfg.Issuer = cfg.Auth.Issuer
	svc := auth.NewJWTService(jwtCfg)

	actors := map[string]appctx.UserContext{
		"admin":  {UserID: "demo-admin", Role: appctx.RoleAdmin},
		"store":  {UserID: "demo-store", Role: appctx.RoleStore, StoreIDs: []string{demoStoreID.String()}},
		"client": {UserID: "demo-client", Role: appctx.RoleClient, ClientID: demoClientID.String()},
	}
	for name, actor := range actors {
		token, expiresAt, err := svc.GenerateAccessToken(actor)
		if err != nil {
			log.Errorw("failed to sign demo token", "actor", name, "error", err)
			continue
		}
		log.Infow("demo token", "actor", name, "expires_at", expiresAt, "token", token)
	}
}
