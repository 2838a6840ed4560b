package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"storefront/internal/models"
	"storefront/internal/repositories"

	"github.com/shopspring/decimal"
)

type stockKey [2]int

// fakeStore is an in-memory stand-in for the database. fakeTx snapshots it
// before a transaction and restores the snapshot when fn fails.
type fakeStore struct {
	mu sync.Mutex

	variantSizes map[stockKey]*models.VariantSize
	bundles      map[int]*models.Bundle
	coupons      map[string]*models.Coupon

	carts       map[int]*models.Cart
	lines       map[int]*models.CartLine
	bundleItems map[int][]models.BundleSelection

	orders     map[int]*models.Order
	orderItems map[int][]models.OrderItem
	events     []*models.PaymentEvent

	nextID int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		variantSizes: make(map[stockKey]*models.VariantSize),
		bundles:      make(map[int]*models.Bundle),
		coupons:      make(map[string]*models.Coupon),
		carts:        make(map[int]*models.Cart),
		lines:        make(map[int]*models.CartLine),
		bundleItems:  make(map[int][]models.BundleSelection),
		orders:       make(map[int]*models.Order),
		orderItems:   make(map[int][]models.OrderItem),
	}
}

func (s *fakeStore) id() int {
	s.nextID++
	return s.nextID
}

func (s *fakeStore) addVariantSize(vs models.VariantSize) {
	s.variantSizes[stockKey{vs.VariantID, vs.SizeID}] = &vs
}

func (s *fakeStore) stockOf(variantID, sizeID int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.variantSizes[stockKey{variantID, sizeID}].Stock
}

func (s *fakeStore) orderByRef(ref string) *models.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.orders {
		if o.Reference == ref {
			cp := *o
			return &cp
		}
	}
	return nil
}

func (s *fakeStore) orderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

type fakeSnapshot struct {
	variantSizes map[stockKey]models.VariantSize
	carts        map[int]models.Cart
	lines        map[int]models.CartLine
	bundleItems  map[int][]models.BundleSelection
	orders       map[int]models.Order
	orderItems   map[int][]models.OrderItem
	events       int
}

func (s *fakeStore) snapshot() fakeSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := fakeSnapshot{
		variantSizes: make(map[stockKey]models.VariantSize, len(s.variantSizes)),
		carts:        make(map[int]models.Cart, len(s.carts)),
		lines:        make(map[int]models.CartLine, len(s.lines)),
		bundleItems:  make(map[int][]models.BundleSelection, len(s.bundleItems)),
		orders:       make(map[int]models.Order, len(s.orders)),
		orderItems:   make(map[int][]models.OrderItem, len(s.orderItems)),
		events:       len(s.events),
	}
	for k, v := range s.variantSizes {
		snap.variantSizes[k] = *v
	}
	for k, v := range s.carts {
		snap.carts[k] = *v
	}
	for k, v := range s.lines {
		snap.lines[k] = *v
	}
	for k, v := range s.bundleItems {
		snap.bundleItems[k] = append([]models.BundleSelection(nil), v...)
	}
	for k, v := range s.orders {
		snap.orders[k] = *v
	}
	for k, v := range s.orderItems {
		snap.orderItems[k] = append([]models.OrderItem(nil), v...)
	}
	return snap
}

func (s *fakeStore) restore(snap fakeSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.variantSizes = make(map[stockKey]*models.VariantSize, len(snap.variantSizes))
	for k, v := range snap.variantSizes {
		v := v
		s.variantSizes[k] = &v
	}
	s.carts = make(map[int]*models.Cart, len(snap.carts))
	for k, v := range snap.carts {
		v := v
		s.carts[k] = &v
	}
	s.lines = make(map[int]*models.CartLine, len(snap.lines))
	for k, v := range snap.lines {
		v := v
		s.lines[k] = &v
	}
	s.bundleItems = snap.bundleItems
	s.orders = make(map[int]*models.Order, len(snap.orders))
	for k, v := range snap.orders {
		v := v
		s.orders[k] = &v
	}
	s.orderItems = snap.orderItems
	s.events = s.events[:snap.events]
}

type fakeTx struct {
	store *fakeStore
}

func (t *fakeTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	snap := t.store.snapshot()
	if err := fn(ctx); err != nil {
		t.store.restore(snap)
		return err
	}
	return nil
}

// Catalog

type fakeCatalog struct {
	store *fakeStore
}

func (c *fakeCatalog) GetVariantSize(ctx context.Context, variantID, sizeID int) (*models.VariantSize, error) {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	vs, ok := c.store.variantSizes[stockKey{variantID, sizeID}]
	if !ok {
		return nil, models.ErrVariantSizeNotFound
	}
	cp := *vs
	return &cp, nil
}

func (c *fakeCatalog) LockVariantSize(ctx context.Context, variantID, sizeID int) (*models.VariantSize, error) {
	return c.GetVariantSize(ctx, variantID, sizeID)
}

func (c *fakeCatalog) GetBundle(ctx context.Context, bundleID int) (*models.Bundle, error) {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	b, ok := c.store.bundles[bundleID]
	if !ok || !b.IsActive {
		return nil, models.ErrBundleNotFound
	}
	cp := *b
	return &cp, nil
}

func (c *fakeCatalog) DecrementStock(ctx context.Context, variantID, sizeID, qty int) error {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	vs, ok := c.store.variantSizes[stockKey{variantID, sizeID}]
	if !ok {
		return models.ErrVariantSizeNotFound
	}
	if vs.Stock < qty {
		return models.ErrInsufficientStock
	}
	vs.Stock -= qty
	return nil
}

func (c *fakeCatalog) IncrementStock(ctx context.Context, variantID, sizeID, qty int) error {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	vs, ok := c.store.variantSizes[stockKey{variantID, sizeID}]
	if !ok {
		return models.ErrVariantSizeNotFound
	}
	vs.Stock += qty
	return nil
}

// Carts

type fakeCarts struct {
	store  *fakeStore
	locked []int
}

func (r *fakeCarts) GetLatestByUser(ctx context.Context, userID int) (*models.Cart, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var latest *models.Cart
	for _, c := range r.store.carts {
		if c.UserID == userID && (latest == nil || c.ID > latest.ID) {
			latest = c
		}
	}
	if latest == nil {
		return nil, models.ErrCartNotFound
	}
	cp := *latest
	return &cp, nil
}

func (r *fakeCarts) lockCount() int {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return len(r.locked)
}

func (r *fakeCarts) GetOrCreate(ctx context.Context, userID int, country string) (*models.Cart, error) {
	if cart, err := r.GetLatestByUser(ctx, userID); err == nil {
		return cart, nil
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	cart := &models.Cart{ID: r.store.id(), UserID: userID, Country: country, Total: decimal.Zero}
	r.store.carts[cart.ID] = cart
	cp := *cart
	return &cp, nil
}

func (r *fakeCarts) LockCart(ctx context.Context, cartID int) (*models.Cart, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.locked = append(r.locked, cartID)
	cart, ok := r.store.carts[cartID]
	if !ok {
		return nil, models.ErrCartNotFound
	}
	cp := *cart
	return &cp, nil
}

// ListLines joins display data the way the SQL query does.
func (r *fakeCarts) ListLines(ctx context.Context, cartID int) ([]models.CartLine, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var lines []models.CartLine
	for _, l := range r.store.lines {
		if l.CartID != cartID {
			continue
		}
		lines = append(lines, r.materialize(l))
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].ID < lines[j].ID })
	return lines, nil
}

func (r *fakeCarts) materialize(l *models.CartLine) models.CartLine {
	line := *l
	switch line.ProductType {
	case models.ProductSingle:
		if vs, ok := r.store.variantSizes[stockKey{line.VariantID, line.SizeID}]; ok {
			line.ProductID = vs.ProductID
			line.ProductName = vs.ProductName
			line.Category = vs.Category
			line.ProductClass = vs.ProductClass
			line.ColorName = vs.ColorName
			line.SizeName = vs.SizeName
		}
	case models.ProductBundle:
		if b, ok := r.store.bundles[line.BundleID]; ok {
			line.ProductID = b.ProductID
			line.ProductName = b.Name
			line.Category = b.Category
			line.ProductClass = b.ProductClass
			line.BundleType = b.BundleType
		}
		line.BundleItems = nil
		for pos, sel := range r.store.bundleItems[line.ID] {
			item := models.CartBundleItem{CartItemID: line.ID, VariantID: sel.VariantID, SizeID: sel.SizeID, Position: pos}
			if vs, ok := r.store.variantSizes[stockKey{sel.VariantID, sel.SizeID}]; ok {
				item.ProductName = vs.ProductName
				item.ColorName = vs.ColorName
				item.SizeName = vs.SizeName
			}
			line.BundleItems = append(line.BundleItems, item)
		}
	}
	return line
}

func (r *fakeCarts) GetLine(ctx context.Context, lineID int) (*models.CartLine, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	l, ok := r.store.lines[lineID]
	if !ok {
		return nil, models.ErrCartItemNotFound
	}
	line := r.materialize(l)
	return &line, nil
}

func (r *fakeCarts) FindSingleLine(ctx context.Context, cartID, variantID, sizeID int) (*models.CartLine, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, l := range r.store.lines {
		if l.CartID == cartID && l.ProductType == models.ProductSingle && l.VariantID == variantID && l.SizeID == sizeID {
			cp := *l
			return &cp, nil
		}
	}
	return nil, models.ErrCartItemNotFound
}

func (r *fakeCarts) UpsertSingleLine(ctx context.Context, cartID int, line *models.CartLine) (int, error) {
	existing, err := r.FindSingleLine(ctx, cartID, line.VariantID, line.SizeID)
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if err == nil {
		r.store.lines[existing.ID].Quantity += line.Quantity
		return existing.ID, nil
	}
	l := *line
	l.ID = r.store.id()
	l.CartID = cartID
	r.store.lines[l.ID] = &l
	return l.ID, nil
}

func (r *fakeCarts) FindBundleLine(ctx context.Context, cartID, bundleID int, signature string) (*models.CartLine, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, l := range r.store.lines {
		if l.CartID == cartID && l.BundleID == bundleID && l.BundleSignature == signature {
			cp := *l
			return &cp, nil
		}
	}
	return nil, models.ErrCartItemNotFound
}

func (r *fakeCarts) InsertBundleLine(ctx context.Context, cartID int, line *models.CartLine, items []models.BundleSelection) (int, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	l := *line
	l.ID = r.store.id()
	l.CartID = cartID
	r.store.lines[l.ID] = &l
	r.store.bundleItems[l.ID] = append([]models.BundleSelection(nil), items...)
	return l.ID, nil
}

func (r *fakeCarts) UpdateLineQuantity(ctx context.Context, lineID, quantity int) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	l, ok := r.store.lines[lineID]
	if !ok {
		return models.ErrCartItemNotFound
	}
	l.Quantity = quantity
	return nil
}

func (r *fakeCarts) DeleteLine(ctx context.Context, lineID int) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, ok := r.store.lines[lineID]; !ok {
		return models.ErrCartItemNotFound
	}
	delete(r.store.lines, lineID)
	delete(r.store.bundleItems, lineID)
	return nil
}

func (r *fakeCarts) DeleteAllLines(ctx context.Context, cartID int) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for id, l := range r.store.lines {
		if l.CartID == cartID {
			delete(r.store.lines, id)
			delete(r.store.bundleItems, id)
		}
	}
	return nil
}

func (r *fakeCarts) UpdateTotal(ctx context.Context, cartID int, total decimal.Decimal, country string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	cart, ok := r.store.carts[cartID]
	if !ok {
		return models.ErrCartNotFound
	}
	cart.Total = total
	cart.Country = country
	return nil
}

// Orders

type fakeOrders struct {
	store *fakeStore
}

func (r *fakeOrders) Create(ctx context.Context, order *models.Order) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, o := range r.store.orders {
		if o.Reference == order.Reference {
			return false, nil
		}
		if order.IdempotencyKey.Valid && o.IdempotencyKey == order.IdempotencyKey {
			return false, nil
		}
	}
	order.ID = r.store.id()
	order.CreatedAt = time.Now()
	order.UpdatedAt = order.CreatedAt
	cp := *order
	cp.Items = nil
	r.store.orders[order.ID] = &cp
	return true, nil
}

func (r *fakeOrders) CreateItems(ctx context.Context, orderID int, items []models.OrderItem) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for i := range items {
		items[i].ID = r.store.id()
		items[i].OrderID = orderID
	}
	r.store.orderItems[orderID] = append([]models.OrderItem(nil), items...)
	return nil
}

func (r *fakeOrders) find(match func(o *models.Order) bool) (*models.Order, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, o := range r.store.orders {
		if match(o) {
			cp := *o
			return &cp, nil
		}
	}
	return nil, models.ErrOrderNotFound
}

func (r *fakeOrders) GetByReference(ctx context.Context, reference string) (*models.Order, error) {
	return r.find(func(o *models.Order) bool { return o.Reference == reference })
}

func (r *fakeOrders) GetByIdempotencyKey(ctx context.Context, key string) (*models.Order, error) {
	return r.find(func(o *models.Order) bool { return o.IdempotencyKey.Valid && o.IdempotencyKey.String == key })
}

func (r *fakeOrders) GetByDeliveryFeeReference(ctx context.Context, reference string) (*models.Order, error) {
	return r.find(func(o *models.Order) bool {
		return o.DeliveryFeeReference.Valid && o.DeliveryFeeReference.String == reference
	})
}

func (r *fakeOrders) GetItems(ctx context.Context, orderID int) ([]models.OrderItem, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return append([]models.OrderItem(nil), r.store.orderItems[orderID]...), nil
}

func (r *fakeOrders) HasCompletedOrder(ctx context.Context, userID int, email string) (bool, error) {
	_, err := r.find(func(o *models.Order) bool {
		if o.PaymentStatus != models.PaymentCompleted {
			return false
		}
		return (userID > 0 && o.UserID.Valid && int(o.UserID.Int64) == userID) || o.Email == email
	})
	return err == nil, nil
}

func (r *fakeOrders) update(orderID int, fn func(o *models.Order) bool) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	o, ok := r.store.orders[orderID]
	if !ok {
		return false, models.ErrOrderNotFound
	}
	return fn(o), nil
}

func (r *fakeOrders) UpdatePaymentInit(ctx context.Context, orderID int, authorizationURL, accessCode string) error {
	_, err := r.update(orderID, func(o *models.Order) bool {
		o.AuthorizationURL = authorizationURL
		o.AccessCode = accessCode
		return true
	})
	return err
}

func (r *fakeOrders) TransitionStatus(ctx context.Context, orderID int, from, to models.PaymentStatus) (bool, error) {
	if !from.CanTransitionTo(to) {
		return false, models.ErrInvalidStatusChange
	}
	return r.update(orderID, func(o *models.Order) bool {
		if o.PaymentStatus != from {
			return false
		}
		o.PaymentStatus = to
		return true
	})
}

func (r *fakeOrders) ClaimEmailSend(ctx context.Context, orderID int) (bool, error) {
	return r.update(orderID, func(o *models.Order) bool {
		if o.EmailSent {
			return false
		}
		o.EmailSent = true
		return true
	})
}

func (r *fakeOrders) ReleaseEmailSend(ctx context.Context, orderID int) error {
	_, err := r.update(orderID, func(o *models.Order) bool {
		o.EmailSent = false
		return true
	})
	return err
}

func (r *fakeOrders) SetDeliveryFeeQuote(ctx context.Context, orderID int, fee decimal.Decimal, reference string) error {
	_, err := r.update(orderID, func(o *models.Order) bool {
		o.DeliveryFee = decimal.NullDecimal{Decimal: fee, Valid: true}
		o.DeliveryFeeReference.String, o.DeliveryFeeReference.Valid = reference, true
		return true
	})
	return err
}

func (r *fakeOrders) MarkDeliveryFeePaid(ctx context.Context, orderID int) (bool, error) {
	return r.update(orderID, func(o *models.Order) bool {
		if o.DeliveryFeePaid {
			return false
		}
		o.DeliveryFeePaid = true
		return true
	})
}

func (r *fakeOrders) Search(ctx context.Context, filters repositories.OrderSearchFilters) ([]*models.Order, int, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []*models.Order
	for _, o := range r.store.orders {
		if filters.Status != "" && o.PaymentStatus != filters.Status {
			continue
		}
		if filters.DateTo != nil && o.CreatedAt.After(*filters.DateTo) {
			continue
		}
		cp := *o
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	total := len(out)
	if filters.Offset < len(out) {
		out = out[filters.Offset:]
	} else {
		out = nil
	}
	if len(out) > filters.Limit {
		out = out[:filters.Limit]
	}
	return out, total, nil
}

// Coupons

type fakeCoupons struct {
	store *fakeStore
}

func (r *fakeCoupons) GetByCode(ctx context.Context, code string) (*models.Coupon, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	c, ok := r.store.coupons[code]
	if !ok {
		return nil, models.ErrCouponNotFound
	}
	cp := *c
	return &cp, nil
}

// Payment events

type fakeEvents struct {
	store *fakeStore
}

func (r *fakeEvents) Create(ctx context.Context, event *models.PaymentEvent) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	event.ID = int64(r.store.id())
	event.CreatedAt = time.Now()
	cp := *event
	r.store.events = append(r.store.events, &cp)
	return nil
}

func (r *fakeEvents) ListByReference(ctx context.Context, reference string) ([]*models.PaymentEvent, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []*models.PaymentEvent
	for _, e := range r.store.events {
		if e.Reference == reference {
			out = append(out, e)
		}
	}
	return out, nil
}

// Gateway

type fakeGateway struct {
	mu          sync.Mutex
	initErr     error
	initialized []*TransactionRequest
	verify      *TransactionDetails
	verifyByRef map[string]*TransactionDetails
	verifyErr   error
	verifyErrs  map[string]error
	verified    []string
	validSig    string
}

func (g *fakeGateway) InitializeTransaction(ctx context.Context, req *TransactionRequest) (*TransactionData, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.initErr != nil {
		return nil, g.initErr
	}
	g.initialized = append(g.initialized, req)
	return &TransactionData{
		AuthorizationURL: "https://checkout.paystack.com/" + req.Reference,
		AccessCode:       "ac_" + req.Reference,
		Reference:        req.Reference,
	}, nil
}

func (g *fakeGateway) VerifyTransaction(ctx context.Context, reference string) (*TransactionDetails, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.verified = append(g.verified, reference)
	if g.verifyErr != nil {
		return nil, g.verifyErr
	}
	if err, ok := g.verifyErrs[reference]; ok {
		return nil, err
	}
	if d, ok := g.verifyByRef[reference]; ok {
		return d, nil
	}
	return g.verify, nil
}

func (g *fakeGateway) VerifyWebhookSignature(payload []byte, signature string) bool {
	return signature != "" && signature == g.validSig
}

func (g *fakeGateway) initCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.initialized)
}

// Notifier

type fakeNotifier struct {
	mu              sync.Mutex
	confirmErr      error
	confirmations   []string
	quoteNeeded     []string
	deliveryFeeURLs []string
}

func (n *fakeNotifier) SendOrderConfirmation(ctx context.Context, order *models.Order) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.confirmErr != nil {
		return n.confirmErr
	}
	n.confirmations = append(n.confirmations, order.Reference)
	return nil
}

func (n *fakeNotifier) SendDeliveryFeeQuoteNeeded(ctx context.Context, order *models.Order) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.quoteNeeded = append(n.quoteNeeded, order.Reference)
	return nil
}

func (n *fakeNotifier) SendDeliveryFeeRequest(ctx context.Context, order *models.Order, paymentURL string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.deliveryFeeURLs = append(n.deliveryFeeURLs, paymentURL)
	return nil
}

func (n *fakeNotifier) confirmationCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.confirmations)
}

// Catalog fixture

const (
	briefProductID   = 1
	gymProductID     = 2
	teeProductID     = 3
	briefBlackM      = 11 // variant id
	briefWhiteM      = 12
	gymShortsBlack   = 21
	teeWhite         = 31
	sizeM            = 2
	sizeL            = 3
	briefBundleThree = 100
	briefBundleFive  = 101
)

// harness wires every service against one fake store.
type harness struct {
	store      *fakeStore
	catalog    *fakeCatalog
	carts      *fakeCarts
	orders     *fakeOrders
	events     *fakeEvents
	gateway    *fakeGateway
	notifier   *fakeNotifier
	hub        *StatusHub
	pricer     *Pricer
	reconciler *PaymentReconciler
	cartSvc    *CartService
	orderSvc   *OrderService
	webhookSvc *WebhookService
}

func newHarness() *harness {
	store := newFakeStore()
	store.addVariantSize(models.VariantSize{VariantID: briefBlackM, SizeID: sizeM, ProductID: briefProductID, ProductName: "Classic Brief", Category: "Underwear", ProductClass: models.ClassBrief, ColorName: "Black", SizeName: "M", Price: decimal.NewFromInt(3000), Stock: 20})
	store.addVariantSize(models.VariantSize{VariantID: briefWhiteM, SizeID: sizeM, ProductID: briefProductID, ProductName: "Classic Brief", Category: "Underwear", ProductClass: models.ClassBrief, ColorName: "White", SizeName: "M", Price: decimal.NewFromInt(3000), Stock: 20})
	store.addVariantSize(models.VariantSize{VariantID: gymShortsBlack, SizeID: sizeL, ProductID: gymProductID, ProductName: "Training Shorts", Category: "Gymwear", ProductClass: models.ClassGymwear, ColorName: "Black", SizeName: "L", Price: decimal.NewFromInt(8000), Stock: 5})
	store.addVariantSize(models.VariantSize{VariantID: teeWhite, SizeID: sizeL, ProductID: teeProductID, ProductName: "Crew Tee", Category: "Tops", ProductClass: models.ClassStandard, ColorName: "White", SizeName: "L", Price: decimal.NewFromInt(6500), Stock: 3})
	store.bundles[briefBundleThree] = &models.Bundle{ID: briefBundleThree, ProductID: briefProductID, Name: "Brief 3-Pack", BundleType: models.BundleThreeInOne, BundlePrice: decimal.NewFromInt(8000), IsActive: true, ProductName: "Classic Brief", Category: "Underwear", ProductClass: models.ClassBrief}
	store.bundles[briefBundleFive] = &models.Bundle{ID: briefBundleFive, ProductID: briefProductID, Name: "Brief 5-Pack", BundleType: models.BundleFiveInOne, BundlePrice: decimal.NewFromInt(10000), IsActive: true, ProductName: "Classic Brief", Category: "Underwear", ProductClass: models.ClassBrief}
	store.coupons["SAVE10"] = &models.Coupon{Code: "SAVE10", DiscountType: models.DiscountPercent, Value: decimal.NewFromInt(10), IsActive: true}
	store.coupons["OLD"] = &models.Coupon{Code: "OLD", DiscountType: models.DiscountFixed, Value: decimal.NewFromInt(500), IsActive: false}

	h := &harness{
		store:    store,
		catalog:  &fakeCatalog{store: store},
		carts:    &fakeCarts{store: store},
		orders:   &fakeOrders{store: store},
		events:   &fakeEvents{store: store},
		gateway:  &fakeGateway{validSig: "good-signature"},
		notifier: &fakeNotifier{},
		hub:      NewStatusHub(),
		pricer:   NewPricer("Nigeria"),
	}
	tx := &fakeTx{store: store}
	h.reconciler = NewPaymentReconciler(tx, h.orders, h.carts, h.catalog, h.notifier, h.hub, h.pricer)
	h.cartSvc = NewCartService(tx, h.carts, h.catalog, h.pricer)
	h.orderSvc = NewOrderService(OrderServiceDeps{
		Tx:         tx,
		Orders:     h.orders,
		Carts:      h.carts,
		Catalog:    h.catalog,
		Coupons:    &fakeCoupons{store: store},
		Events:     h.events,
		Gateway:    h.gateway,
		Notifier:   h.notifier,
		Reconciler: h.reconciler,
		Pricer:     h.pricer,
		Currency:   "NGN",
	})
	h.webhookSvc = NewWebhookService(h.gateway, h.orders, h.events, h.reconciler)
	return h
}

func lagosAddress() models.Address {
	return models.Address{FullName: "Ada Obi", Line1: "12 Marina Road", City: "Lagos", State: "Lagos", Country: "Nigeria"}
}

func londonAddress() models.Address {
	return models.Address{FullName: "Ada Obi", Line1: "1 Baker Street", City: "London", Country: "United Kingdom"}
}

func guestSingle(variantID, sizeID, qty int) models.OrderItemRequest {
	return models.OrderItemRequest{ProductType: models.ProductSingle, VariantID: variantID, SizeID: sizeID, Quantity: qty}
}

func guestOrder(items ...models.OrderItemRequest) *models.CreateOrderRequest {
	return &models.CreateOrderRequest{
		Email:           "ada@example.com",
		CustomerName:    "Ada Obi",
		ShippingAddress: lagosAddress(),
		Items:           items,
	}
}
