package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"storefront/internal/database"
	"storefront/internal/models"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// CartRepository handles cart, cart_items and cart_bundle_items.
type CartRepository struct {
	db *database.DB
}

// NewCartRepository creates a new cart repository
func NewCartRepository(db *database.DB) *CartRepository {
	return &CartRepository{db: db}
}

const cartColumns = `id, user_id, total, country, created_at, updated_at`

// GetLatestByUser returns the most recently updated cart of a user.
func (r *CartRepository) GetLatestByUser(ctx context.Context, userID int) (*models.Cart, error) {
	query := `SELECT ` + cartColumns + ` FROM cart WHERE user_id = $1 ORDER BY updated_at DESC, id DESC LIMIT 1`

	cart := &models.Cart{}
	err := r.db.Conn(ctx).GetContext(ctx, cart, query, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrCartNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}
	return cart, nil
}

// GetOrCreate returns the user's current cart, creating it on first use. It
// must run inside a transaction: a per-user advisory lock keeps two requests
// from creating two carts. Callers that modify the cart then take LockCart,
// the lock every cart mutation shares.
func (r *CartRepository) GetOrCreate(ctx context.Context, userID int, country string) (*models.Cart, error) {
	conn := r.db.Conn(ctx)

	if _, err := conn.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext('cart'), $1)`, userID); err != nil {
		return nil, fmt.Errorf("failed to lock cart: %w", err)
	}

	cart, err := r.GetLatestByUser(ctx, userID)
	if err == nil {
		return cart, nil
	}
	if !errors.Is(err, models.ErrCartNotFound) {
		return nil, err
	}

	cart = &models.Cart{}
	query := `
		INSERT INTO cart (user_id, total, country)
		VALUES ($1, 0, $2)
		RETURNING ` + cartColumns
	if err := conn.GetContext(ctx, cart, query, userID, country); err != nil {
		return nil, fmt.Errorf("failed to create cart: %w", err)
	}
	return cart, nil
}

// LockCart row-locks a cart for the rest of the transaction.
func (r *CartRepository) LockCart(ctx context.Context, cartID int) (*models.Cart, error) {
	query := `SELECT ` + cartColumns + ` FROM cart WHERE id = $1 FOR UPDATE`

	cart := &models.Cart{}
	err := r.db.Conn(ctx).GetContext(ctx, cart, query, cartID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrCartNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock cart: %w", err)
	}
	return cart, nil
}

const cartLineSelect = `
	SELECT ci.id, ci.cart_id, ci.product_type,
	       COALESCE(ci.variant_id, 0) AS variant_id,
	       COALESCE(ci.size_id, 0) AS size_id,
	       COALESCE(ci.bundle_id, 0) AS bundle_id,
	       COALESCE(ci.bundle_signature, '') AS bundle_signature,
	       COALESCE(b.bundle_type, '') AS bundle_type,
	       ci.quantity, ci.price, ci.color_name, ci.size_name,
	       p.id AS product_id, COALESCE(b.name, p.name) AS product_name,
	       p.category, p.moq_class,
	       COALESCE(NULLIF(b.image_url, ''), NULLIF(pv.image_url, ''), p.image_url) AS image_url
	FROM cart_items ci
	LEFT JOIN product_variants pv ON pv.id = ci.variant_id
	LEFT JOIN bundles b ON b.id = ci.bundle_id
	JOIN products p ON p.id = COALESCE(pv.product_id, b.product_id)`

// ListLines returns every line of a cart with bundle contents attached.
func (r *CartRepository) ListLines(ctx context.Context, cartID int) ([]models.CartLine, error) {
	query := cartLineSelect + `
	WHERE ci.cart_id = $1
	ORDER BY ci.created_at, ci.id`

	var lines []models.CartLine
	if err := r.db.Conn(ctx).SelectContext(ctx, &lines, query, cartID); err != nil {
		return nil, fmt.Errorf("failed to list cart items: %w", err)
	}

	if err := r.attachBundleItems(ctx, lines); err != nil {
		return nil, err
	}
	return lines, nil
}

// GetLine returns one line with its bundle contents.
func (r *CartRepository) GetLine(ctx context.Context, lineID int) (*models.CartLine, error) {
	query := cartLineSelect + `
	WHERE ci.id = $1`

	lines := make([]models.CartLine, 1)
	err := r.db.Conn(ctx).GetContext(ctx, &lines[0], query, lineID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrCartItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cart item: %w", err)
	}

	if err := r.attachBundleItems(ctx, lines); err != nil {
		return nil, err
	}
	return &lines[0], nil
}

func (r *CartRepository) attachBundleItems(ctx context.Context, lines []models.CartLine) error {
	var ids []int64
	byID := make(map[int]int)
	for i, l := range lines {
		if l.ProductType == models.ProductBundle {
			ids = append(ids, int64(l.ID))
			byID[l.ID] = i
		}
	}
	if len(ids) == 0 {
		return nil
	}

	query := `
		SELECT cbi.id, cbi.cart_item_id, cbi.variant_id, cbi.size_id, cbi.position,
		       p.name AS product_name, c.name AS color_name, s.name AS size_name,
		       COALESCE(NULLIF(pv.image_url, ''), p.image_url) AS image_url
		FROM cart_bundle_items cbi
		JOIN product_variants pv ON pv.id = cbi.variant_id
		JOIN products p ON p.id = pv.product_id
		JOIN colors c ON c.id = pv.color_id
		JOIN sizes s ON s.id = cbi.size_id
		WHERE cbi.cart_item_id = ANY($1)
		ORDER BY cbi.cart_item_id, cbi.position`

	var items []models.CartBundleItem
	if err := r.db.Conn(ctx).SelectContext(ctx, &items, query, pq.Array(ids)); err != nil {
		return fmt.Errorf("failed to list bundle items: %w", err)
	}

	for _, it := range items {
		idx := byID[it.CartItemID]
		lines[idx].BundleItems = append(lines[idx].BundleItems, it)
	}
	return nil
}

// UpsertSingleLine inserts a single-product line or adds to the quantity of
// the existing line for the same (variant, size). It returns the resulting
// quantity.
func (r *CartRepository) UpsertSingleLine(ctx context.Context, cartID int, line *models.CartLine) (int, error) {
	query := `
		INSERT INTO cart_items (cart_id, product_type, variant_id, size_id, quantity, price, color_name, size_name)
		VALUES ($1, 'single', $2, $3, $4, $5, $6, $7)
		ON CONFLICT (cart_id, variant_id, size_id) WHERE bundle_id IS NULL
		DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity
		RETURNING quantity`

	var quantity int
	err := r.db.Conn(ctx).QueryRowxContext(ctx, query,
		cartID, line.VariantID, line.SizeID, line.Quantity, line.Price, line.ColorName, line.SizeName,
	).Scan(&quantity)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert cart item: %w", err)
	}
	return quantity, nil
}

// FindSingleLine returns the single-product line for (variant, size), if any.
func (r *CartRepository) FindSingleLine(ctx context.Context, cartID, variantID, sizeID int) (*models.CartLine, error) {
	query := cartLineSelect + `
	WHERE ci.cart_id = $1 AND ci.variant_id = $2 AND ci.size_id = $3 AND ci.bundle_id IS NULL`

	line := &models.CartLine{}
	err := r.db.Conn(ctx).GetContext(ctx, line, query, cartID, variantID, sizeID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrCartItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find cart item: %w", err)
	}
	return line, nil
}

// FindBundleLine returns the bundle line with the given canonical signature.
func (r *CartRepository) FindBundleLine(ctx context.Context, cartID, bundleID int, signature string) (*models.CartLine, error) {
	query := cartLineSelect + `
	WHERE ci.cart_id = $1 AND ci.bundle_id = $2 AND ci.bundle_signature = $3`

	lines := make([]models.CartLine, 1)
	err := r.db.Conn(ctx).GetContext(ctx, &lines[0], query, cartID, bundleID, signature)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrCartItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find bundle line: %w", err)
	}

	if err := r.attachBundleItems(ctx, lines); err != nil {
		return nil, err
	}
	return &lines[0], nil
}

// InsertBundleLine inserts a bundle line and its content rows in the given
// order.
func (r *CartRepository) InsertBundleLine(ctx context.Context, cartID int, line *models.CartLine, items []models.BundleSelection) (int, error) {
	conn := r.db.Conn(ctx)

	query := `
		INSERT INTO cart_items (cart_id, product_type, bundle_id, bundle_signature, quantity, price)
		VALUES ($1, 'bundle', $2, $3, $4, $5)
		RETURNING id`

	var lineID int
	err := conn.QueryRowxContext(ctx, query,
		cartID, line.BundleID, line.BundleSignature, line.Quantity, line.Price,
	).Scan(&lineID)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, models.ErrDuplicateEntry
		}
		return 0, fmt.Errorf("failed to insert bundle line: %w", err)
	}

	itemQuery := `
		INSERT INTO cart_bundle_items (cart_item_id, variant_id, size_id, position)
		VALUES ($1, $2, $3, $4)`
	for i, it := range items {
		if _, err := conn.ExecContext(ctx, itemQuery, lineID, it.VariantID, it.SizeID, i); err != nil {
			return 0, fmt.Errorf("failed to insert bundle item: %w", err)
		}
	}
	return lineID, nil
}

// UpdateLineQuantity sets the quantity of a line.
func (r *CartRepository) UpdateLineQuantity(ctx context.Context, lineID, quantity int) error {
	result, err := r.db.Conn(ctx).ExecContext(ctx,
		`UPDATE cart_items SET quantity = $2 WHERE id = $1`, lineID, quantity)
	if err != nil {
		return fmt.Errorf("failed to update cart item: %w", err)
	}
	return expectRow(result, models.ErrCartItemNotFound)
}

// DeleteLine removes a line and its bundle contents.
func (r *CartRepository) DeleteLine(ctx context.Context, lineID int) error {
	conn := r.db.Conn(ctx)

	if _, err := conn.ExecContext(ctx, `DELETE FROM cart_bundle_items WHERE cart_item_id = $1`, lineID); err != nil {
		return fmt.Errorf("failed to delete bundle items: %w", err)
	}

	result, err := conn.ExecContext(ctx, `DELETE FROM cart_items WHERE id = $1`, lineID)
	if err != nil {
		return fmt.Errorf("failed to delete cart item: %w", err)
	}
	return expectRow(result, models.ErrCartItemNotFound)
}

// DeleteAllLines empties a cart.
func (r *CartRepository) DeleteAllLines(ctx context.Context, cartID int) error {
	conn := r.db.Conn(ctx)

	query := `
		DELETE FROM cart_bundle_items
		WHERE cart_item_id IN (SELECT id FROM cart_items WHERE cart_id = $1)`
	if _, err := conn.ExecContext(ctx, query, cartID); err != nil {
		return fmt.Errorf("failed to delete bundle items: %w", err)
	}

	if _, err := conn.ExecContext(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, cartID); err != nil {
		return fmt.Errorf("failed to delete cart items: %w", err)
	}
	return nil
}

// UpdateTotal persists the recomputed total and the country it was taxed for.
func (r *CartRepository) UpdateTotal(ctx context.Context, cartID int, total decimal.Decimal, country string) error {
	query := `
		UPDATE cart
		SET total = $2, country = $3, updated_at = NOW()
		WHERE id = $1`

	result, err := r.db.Conn(ctx).ExecContext(ctx, query, cartID, total, country)
	if err != nil {
		return fmt.Errorf("failed to update cart total: %w", err)
	}
	return expectRow(result, models.ErrCartNotFound)
}

func expectRow(result sql.Result, notFound error) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return notFound
	}
	return nil
}
