package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"storefront/internal/models"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// CartService maintains per-user carts. Every mutation runs in one
// transaction that also recomputes the cached cart total.
type CartService struct {
	tx      TxRunner
	carts   CartRepository
	catalog CatalogRepository
	pricer  *Pricer
}

// NewCartService creates a new cart service
func NewCartService(tx TxRunner, carts CartRepository, catalog CatalogRepository, pricer *Pricer) *CartService {
	return &CartService{
		tx:      tx,
		carts:   carts,
		catalog: catalog,
		pricer:  pricer,
	}
}

// GetCart prices the user's current cart for country. A user without a cart
// gets an empty view.
func (s *CartService) GetCart(ctx context.Context, userID int, country string) (*models.CartView, error) {
	if userID <= 0 {
		return nil, models.NewValidationError("user_id", "is required")
	}

	var view *models.CartView
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		cart, err := s.carts.GetLatestByUser(ctx, userID)
		if errors.Is(err, models.ErrCartNotFound) {
			view = models.EmptyCartView()
			return nil
		}
		if err != nil {
			return err
		}

		view, err = s.refresh(ctx, cart, countryOr(country, cart.Country))
		return err
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

// AddToCart adds a single product or a bundle to the user's cart.
func (s *CartService) AddToCart(ctx context.Context, req *models.AddToCartRequest) (*models.CartView, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var view *models.CartView
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		cart, err := s.carts.GetOrCreate(ctx, req.UserID, strings.TrimSpace(req.Country))
		if err != nil {
			return err
		}
		// Every cart mutation serializes on the cart row lock
		if cart, err = s.carts.LockCart(ctx, cart.ID); err != nil {
			return err
		}

		switch req.ProductType {
		case models.ProductSingle:
			err = s.addSingle(ctx, cart, req)
		case models.ProductBundle:
			err = s.addBundle(ctx, cart, req)
		}
		if err != nil {
			return err
		}

		view, err = s.refresh(ctx, cart, countryOr(req.Country, cart.Country))
		return err
	})
	if err != nil {
		return nil, err
	}

	log.Debug().
		Int("user_id", req.UserID).
		Str("product_type", string(req.ProductType)).
		Int("quantity", req.Quantity).
		Msg("cart item added")
	return view, nil
}

func (s *CartService) addSingle(ctx context.Context, cart *models.Cart, req *models.AddToCartRequest) error {
	vs, err := s.catalog.LockVariantSize(ctx, req.VariantID, req.SizeID)
	if err != nil {
		return err
	}

	existing := 0
	line, err := s.carts.FindSingleLine(ctx, cart.ID, vs.VariantID, vs.SizeID)
	switch {
	case err == nil:
		existing = line.Quantity
	case !errors.Is(err, models.ErrCartItemNotFound):
		return err
	}

	requested := existing + req.Quantity
	if requested > models.MaxLineQuantity {
		return models.NewQuantityLimitError()
	}
	if vs.Stock < requested {
		return &models.StockError{Label: vs.Label(), Requested: requested, Available: vs.Stock}
	}

	if vs.ProductClass == models.ClassBrief {
		lines, err := s.carts.ListLines(ctx, cart.ID)
		if err != nil {
			return err
		}
		result := EvaluateMinimumQuantity(projectSingleAdd(lines, vs, req.Quantity))
		if result.HasInsufficientBriefs {
			return &models.MinimumQuantityError{Remaining: result.Remaining}
		}
	}

	_, err = s.carts.UpsertSingleLine(ctx, cart.ID, &models.CartLine{
		ProductType: models.ProductSingle,
		VariantID:   vs.VariantID,
		SizeID:      vs.SizeID,
		Quantity:    req.Quantity,
		Price:       vs.Price,
		ColorName:   vs.ColorName,
		SizeName:    vs.SizeName,
	})
	return err
}

// projectSingleAdd returns the policy view of the cart after adding qty of vs.
func projectSingleAdd(lines []models.CartLine, vs *models.VariantSize, qty int) []models.PolicyLine {
	projected := make([]models.PolicyLine, 0, len(lines)+1)
	merged := false
	for _, l := range lines {
		pl := models.PolicyLineFromCart(l)
		if l.ProductType == models.ProductSingle && l.VariantID == vs.VariantID && l.SizeID == vs.SizeID {
			pl.Quantity += qty
			merged = true
		}
		projected = append(projected, pl)
	}
	if !merged {
		projected = append(projected, models.PolicyLine{ProductClass: vs.ProductClass, Quantity: qty, Units: 1})
	}
	return projected
}

func (s *CartService) addBundle(ctx context.Context, cart *models.Cart, req *models.AddToCartRequest) error {
	bundle, err := s.catalog.GetBundle(ctx, req.BundleID)
	if err != nil {
		return err
	}

	cardinality := bundle.BundleType.Cardinality()
	if len(req.Items) != cardinality {
		return models.NewValidationError("items",
			fmt.Sprintf("a %s bundle needs exactly %d items, got %d", bundle.BundleType, cardinality, len(req.Items)))
	}

	items := models.CanonicalSelections(req.Items)
	signature := models.BundleSignature(items)

	existing, err := s.carts.FindBundleLine(ctx, cart.ID, bundle.ID, signature)
	if err != nil && !errors.Is(err, models.ErrCartItemNotFound) {
		return err
	}

	quantity := req.Quantity
	if existing != nil {
		quantity += existing.Quantity
	}
	if quantity > models.MaxLineQuantity {
		return models.NewQuantityLimitError()
	}

	if err := s.checkBundleStock(ctx, bundle, items, quantity, true); err != nil {
		return err
	}

	if existing != nil {
		return s.carts.UpdateLineQuantity(ctx, existing.ID, quantity)
	}

	_, err = s.carts.InsertBundleLine(ctx, cart.ID, &models.CartLine{
		ProductType:     models.ProductBundle,
		BundleID:        bundle.ID,
		BundleSignature: signature,
		BundleType:      bundle.BundleType,
		Quantity:        req.Quantity,
		Price:           bundle.UnitPrice(),
	}, items)
	return err
}

// checkBundleStock verifies every selection for lineQty bundles. With
// checkMembership it also requires each selection to be a variant of the
// bundle's base product.
func (s *CartService) checkBundleStock(ctx context.Context, bundle *models.Bundle, items []models.BundleSelection, lineQty int, checkMembership bool) error {
	return checkSelectionsStock(ctx, s.catalog, bundle, items, lineQty, checkMembership)
}

func checkSelectionsStock(ctx context.Context, catalog CatalogRepository, bundle *models.Bundle, items []models.BundleSelection, lineQty int, checkMembership bool) error {
	units := make([]models.StockUnit, 0, len(items))
	for _, it := range items {
		units = append(units, models.StockUnit{VariantID: it.VariantID, SizeID: it.SizeID, Quantity: lineQty})
	}

	for _, u := range models.MergeStockUnits(units) {
		vs, err := catalog.LockVariantSize(ctx, u.VariantID, u.SizeID)
		if err != nil {
			return err
		}
		if checkMembership && bundle != nil && vs.ProductID != bundle.ProductID {
			return fmt.Errorf("%w: %s is not part of %s", models.ErrInvalidBundle, vs.Label(), bundle.Name)
		}
		if vs.Stock < u.Quantity {
			return &models.StockError{Label: vs.Label(), Requested: u.Quantity, Available: vs.Stock}
		}
	}
	return nil
}

// UpdateCartItem sets a line's quantity after re-checking stock.
func (s *CartService) UpdateCartItem(ctx context.Context, lineID int, quantity int) (*models.CartView, error) {
	req := &models.UpdateCartItemRequest{Quantity: quantity}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var view *models.CartView
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		line, err := s.carts.GetLine(ctx, lineID)
		if err != nil {
			return err
		}
		cart, err := s.carts.LockCart(ctx, line.CartID)
		if err != nil {
			return err
		}

		switch line.ProductType {
		case models.ProductSingle:
			vs, err := s.catalog.LockVariantSize(ctx, line.VariantID, line.SizeID)
			if err != nil {
				return err
			}
			if vs.Stock < quantity {
				return &models.StockError{Label: vs.Label(), Requested: quantity, Available: vs.Stock}
			}
		case models.ProductBundle:
			selections := make([]models.BundleSelection, 0, len(line.BundleItems))
			for _, it := range line.BundleItems {
				selections = append(selections, models.BundleSelection{VariantID: it.VariantID, SizeID: it.SizeID})
			}
			if err := checkSelectionsStock(ctx, s.catalog, nil, selections, quantity, false); err != nil {
				return err
			}
		}

		if err := s.carts.UpdateLineQuantity(ctx, line.ID, quantity); err != nil {
			return err
		}

		view, err = s.refresh(ctx, cart, cart.Country)
		return err
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

// RemoveFromCart deletes a line and its bundle contents.
func (s *CartService) RemoveFromCart(ctx context.Context, lineID int) (*models.CartView, error) {
	var view *models.CartView
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		line, err := s.carts.GetLine(ctx, lineID)
		if err != nil {
			return err
		}
		cart, err := s.carts.LockCart(ctx, line.CartID)
		if err != nil {
			return err
		}

		if err := s.carts.DeleteLine(ctx, line.ID); err != nil {
			return err
		}

		view, err = s.refresh(ctx, cart, cart.Country)
		return err
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

// ClearCart empties the user's current cart. Clearing a user without a cart
// succeeds.
func (s *CartService) ClearCart(ctx context.Context, userID int) error {
	if userID <= 0 {
		return models.NewValidationError("user_id", "is required")
	}

	return s.tx.RunInTx(ctx, func(ctx context.Context) error {
		cart, err := s.carts.GetLatestByUser(ctx, userID)
		if errors.Is(err, models.ErrCartNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if _, err := s.carts.LockCart(ctx, cart.ID); err != nil {
			return err
		}

		if err := s.carts.DeleteAllLines(ctx, cart.ID); err != nil {
			return err
		}
		return s.carts.UpdateTotal(ctx, cart.ID, decimal.Zero, cart.Country)
	})
}

// refresh re-reads lines, prices them, evaluates the brief rule and persists
// the recomputed total.
func (s *CartService) refresh(ctx context.Context, cart *models.Cart, country string) (*models.CartView, error) {
	lines, err := s.carts.ListLines(ctx, cart.ID)
	if err != nil {
		return nil, err
	}

	price := s.pricer.PriceCart(lines, country)
	if err := s.carts.UpdateTotal(ctx, cart.ID, price.Total, country); err != nil {
		return nil, err
	}
	cart.Total = price.Total
	cart.Country = country

	if lines == nil {
		lines = []models.CartLine{}
	}
	return &models.CartView{
		CartID:   cart.ID,
		Subtotal: price.Subtotal,
		Tax:      price.Tax,
		Total:    price.Total,
		Items:    lines,
		Warning:  EvaluateCart(lines).Warning(),
	}, nil
}

func countryOr(country, fallback string) string {
	if c := strings.TrimSpace(country); c != "" {
		return c
	}
	return fallback
}
