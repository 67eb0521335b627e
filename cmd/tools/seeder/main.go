package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-sales/internal/config"
	"github.com/noah-isme/toko-sales/internal/db"
	"github.com/noah-isme/toko-sales/internal/obs"
)

type seedUser struct {
	Username string
	FullName string
	Roles    []string
}

type seedProduct struct {
	Name        string
	Category    string
	SalePrice   int64
	ImportPrice int64
}

type seedTier struct {
	Name       string
	MinPercent int
	Bonus      int
	Order      int
}

var (
	users = []seedUser{
		{"admin", "Admin Toko", []string{"admin"}},
		{"rina", "Rina Hartono", []string{"sale"}},
		{"budi", "Budi Santoso", []string{"sale"}},
		{"siti", "Siti Aminah", []string{"sale"}},
		{"gudang", "Eko Kurniawan", []string{"warehouse"}},
	}
	customers = []string{"Andi Pratama", "Dewi Lestari", "Fajar Nugraha", "Gita Pertiwi", "Hendra Wijaya"}
	products  = []seedProduct{
		{"Kopi Arabika 250g", "Beverages", 85000, 60000},
		{"Teh Melati 100g", "Beverages", 25000, 15000},
		{"Keripik Singkong", "Snacks", 12000, 7000},
		{"Kacang Mede 200g", "Snacks", 55000, 40000},
		{"Nugget Ayam 500g", "Frozen", 48000, 35000},
		{"Sabun Cair 1L", "Household", 32000, 21000},
	}
	tiers = []seedTier{
		{"Base", 100, 2, 1},
		{"High", 120, 5, 2},
		{"Giant", 150, 10, 3},
	}
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger := obs.NewLogger("console", "info", obs.FileSink{}).With().Str("component", "seeder").Logger()

	if err := db.Migrate(cfg.DatabaseURL); err != nil {
		logger.Fatal().Err(err).Msg("run migrations")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()

	err = pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		if err := seedUsers(ctx, tx); err != nil {
			return err
		}
		if err := seedCustomers(ctx, tx); err != nil {
			return err
		}
		if err := seedCatalog(ctx, tx); err != nil {
			return err
		}
		return seedTiers(ctx, tx)
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("seed")
	}
	logSummary(ctx, pool, logger)
}

func seedUsers(ctx context.Context, tx pgx.Tx) error {
	for _, u := range users {
		_, err := tx.Exec(ctx, `
			INSERT INTO users (username, full_name, roles)
			VALUES ($1, $2, $3)
			ON CONFLICT (username) DO UPDATE SET full_name = EXCLUDED.full_name, roles = EXCLUDED.roles`,
			u.Username, u.FullName, u.Roles)
		if err != nil {
			return fmt.Errorf("seed user %s: %w", u.Username, err)
		}
	}
	return nil
}

func seedCustomers(ctx context.Context, tx pgx.Tx) error {
	for _, name := range customers {
		_, err := tx.Exec(ctx, `
			INSERT INTO customers (name)
			SELECT $1 WHERE NOT EXISTS (SELECT 1 FROM customers WHERE name = $1)`, name)
		if err != nil {
			return fmt.Errorf("seed customer %s: %w", name, err)
		}
	}
	return nil
}

func seedCatalog(ctx context.Context, tx pgx.Tx) error {
	categoryIDs := make(map[string]int64)
	for _, p := range products {
		if _, ok := categoryIDs[p.Category]; ok {
			continue
		}
		var id int64
		err := tx.QueryRow(ctx, `
			INSERT INTO categories (name) VALUES ($1)
			ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
			RETURNING id`, p.Category).Scan(&id)
		if err != nil {
			return fmt.Errorf("seed category %s: %w", p.Category, err)
		}
		categoryIDs[p.Category] = id
	}
	for _, p := range products {
		_, err := tx.Exec(ctx, `
			INSERT INTO products (name, sale_price, import_price, category_id)
			SELECT $1, $2, $3, $4 WHERE NOT EXISTS (SELECT 1 FROM products WHERE name = $1)`,
			p.Name, p.SalePrice, p.ImportPrice, categoryIDs[p.Category])
		if err != nil {
			return fmt.Errorf("seed product %s: %w", p.Name, err)
		}
	}
	return nil
}

func seedTiers(ctx context.Context, tx pgx.Tx) error {
	for _, t := range tiers {
		_, err := tx.Exec(ctx, `
			INSERT INTO kpi_tiers (name, min_achieved_percent, bonus_percent, display_order)
			SELECT $1, $2, $3, $4 WHERE NOT EXISTS (SELECT 1 FROM kpi_tiers WHERE name = $1)`,
			t.Name, t.MinPercent, t.Bonus, t.Order)
		if err != nil {
			return fmt.Errorf("seed tier %s: %w", t.Name, err)
		}
	}
	return nil
}

func logSummary(ctx context.Context, pool *pgxpool.Pool, logger zerolog.Logger) {
	event := logger.Info()
	for _, table := range []string{"users", "customers", "categories", "products", "kpi_tiers"} {
		var n int64
		if err := pool.QueryRow(ctx, "SELECT count(*) FROM "+table).Scan(&n); err != nil {
			logger.Error().Err(err).Str("table", table).Msg("count rows")
			continue
		}
		event = event.Int64(table, n)
	}
	event.Msg("seeding completed")
}
