package main

import (
	"context"
	"flag"

	"storefront/internal/config"
	"storefront/internal/database"
	"storefront/internal/logger"
	"storefront/internal/models"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

type seedVariant struct {
	Color string
	Hex   string
	Sizes map[string]int
}

type seedProduct struct {
	Name     string
	Category string
	Price    string
	Variants []seedVariant
	Bundles  []seedBundle
}

type seedBundle struct {
	Name  string
	Type  models.BundleType
	Price string
}

var sizes = []string{"S", "M", "L", "XL", "XXL"}

var products = []seedProduct{
	{
		Name:     "Classic Cotton Brief",
		Category: "Underwear",
		Price:    "3500",
		Variants: []seedVariant{
			{Color: "Black", Hex: "#000000", Sizes: map[string]int{"S": 40, "M": 60, "L": 60, "XL": 30}},
			{Color: "White", Hex: "#FFFFFF", Sizes: map[string]int{"S": 40, "M": 60, "L": 60, "XL": 30}},
			{Color: "Navy", Hex: "#1F2A44", Sizes: map[string]int{"M": 50, "L": 50}},
		},
		Bundles: []seedBundle{
			{Name: "Brief 3-Pack", Type: models.BundleThreeInOne, Price: "9500"},
			{Name: "Brief 5-Pack", Type: models.BundleFiveInOne, Price: "10000"},
		},
	},
	{
		Name:     "Training Shorts",
		Category: "Gymwear",
		Price:    "8000",
		Variants: []seedVariant{
			{Color: "Black", Hex: "#000000", Sizes: map[string]int{"M": 25, "L": 25, "XL": 15}},
			{Color: "Grey", Hex: "#808080", Sizes: map[string]int{"M": 20, "L": 20}},
		},
	},
	{
		Name:     "Compression Top",
		Category: "Gymwear",
		Price:    "12000",
		Variants: []seedVariant{
			{Color: "Black", Hex: "#000000", Sizes: map[string]int{"S": 10, "M": 15, "L": 15, "XL": 10}},
		},
	},
	{
		Name:     "Everyday Crew Tee",
		Category: "Tops",
		Price:    "6500",
		Variants: []seedVariant{
			{Color: "White", Hex: "#FFFFFF", Sizes: map[string]int{"S": 30, "M": 40, "L": 40, "XL": 20, "XXL": 10}},
			{Color: "Olive", Hex: "#556B2F", Sizes: map[string]int{"M": 20, "L": 20}},
		},
	},
}

var coupons = []struct {
	Code  string
	Type  models.DiscountType
	Value string
}{
	{Code: "WELCOME10", Type: models.DiscountPercent, Value: "10"},
	{Code: "FLAT2000", Type: models.DiscountFixed, Value: "2000"},
}

func main() {
	reset := flag.Bool("reset", false, "Delete existing catalog rows before seeding")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logger.Setup("info", false, "seed-catalog")
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logger.Setup(cfg.Log.Level, cfg.IsProduction(), "seed-catalog")

	ctx := context.Background()
	db, err := database.NewConnection(ctx, database.FromConfig(cfg.Database))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	if err := db.RunMigrations(); err != nil {
		log.Fatal().Err(err).Msg("Failed to run migrations")
	}

	err = db.RunInTx(ctx, func(ctx context.Context) error {
		tx := db.Conn(ctx)
		if *reset {
			if _, err := tx.ExecContext(ctx, `TRUNCATE bundles, variant_sizes, product_variants, products RESTART IDENTITY CASCADE`); err != nil {
				return err
			}
		}

		sizeIDs := make(map[string]int, len(sizes))
		for i, name := range sizes {
			var id int
			err := tx.GetContext(ctx, &id, `
				INSERT INTO sizes (name, sort_order) VALUES ($1, $2)
				ON CONFLICT (name) DO UPDATE SET sort_order = EXCLUDED.sort_order
				RETURNING id`, name, i)
			if err != nil {
				return err
			}
			sizeIDs[name] = id
		}

		for _, p := range products {
			if err := seedOne(ctx, tx, p, sizeIDs); err != nil {
				return err
			}
		}

		for _, c := range coupons {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO coupons (code, discount_type, value)
				VALUES ($1, $2, $3)
				ON CONFLICT (code) DO UPDATE
				SET discount_type = EXCLUDED.discount_type, value = EXCLUDED.value, is_active = TRUE`,
				c.Code, c.Type, decimal.RequireFromString(c.Value))
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Seeding failed")
	}
	log.Info().Int("products", len(products)).Int("coupons", len(coupons)).Msg("Catalog seeded")
}

func seedOne(ctx context.Context, tx database.Queryer, p seedProduct, sizeIDs map[string]int) error {
	class := models.InferProductClass(p.Name, p.Category)
	price := decimal.RequireFromString(p.Price)

	var productID int
	err := tx.GetContext(ctx, &productID, `
		INSERT INTO products (name, category, moq_class)
		VALUES ($1, $2, $3)
		RETURNING id`, p.Name, p.Category, class)
	if err != nil {
		return err
	}

	for _, v := range p.Variants {
		var colorID int
		err := tx.GetContext(ctx, &colorID, `
			INSERT INTO colors (name, hex_code) VALUES ($1, $2)
			ON CONFLICT (name) DO UPDATE SET hex_code = EXCLUDED.hex_code
			RETURNING id`, v.Color, v.Hex)
		if err != nil {
			return err
		}

		var variantID int
		err = tx.GetContext(ctx, &variantID, `
			INSERT INTO product_variants (product_id, color_id)
			VALUES ($1, $2)
			RETURNING id`, productID, colorID)
		if err != nil {
			return err
		}

		for size, stock := range v.Sizes {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO variant_sizes (variant_id, size_id, price, stock)
				VALUES ($1, $2, $3, $4)`, variantID, sizeIDs[size], price, stock)
			if err != nil {
				return err
			}
		}
	}

	for _, b := range p.Bundles {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO bundles (product_id, name, bundle_type, bundle_price)
			VALUES ($1, $2, $3, $4)`, productID, b.Name, b.Type, decimal.RequireFromString(b.Price))
		if err != nil {
			return err
		}
	}

	log.Info().Str("product", p.Name).Str("class", string(class)).Int("variants", len(p.Variants)).Msg("Seeded product")
	return nil
}
