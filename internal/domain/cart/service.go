package cart

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/pricing"
	"github.com/xenking/storefront/internal/domain/product"
)

// TaxRater supplies the current tax percentage.
type TaxRater interface {
	TaxRate(ctx context.Context) (decimal.Decimal, error)
}

// Summary is a priced view of a cart.
type Summary struct {
	pricing.Snapshot
	Lines []Line
	// Coupon is the applied coupon code, empty when none applies.
	Coupon   string
	CouponID int64
	// DroppedCoupon is set when a previously applied code stopped
	// validating and was removed from the session.
	DroppedCoupon string
}

// Result is returned by every mutation.
type Result struct {
	// Line is the affected line after the mutation, nil when it was removed.
	Line        *Line
	ProductName string
	Summary     *Summary
}

// AddRequest describes a product to put in the cart.
type AddRequest struct {
	ProductID int64
	Quantity  int
	Color     string
	Size      string
}

// BulkItemResult is the outcome of one item of BulkAdd.
type BulkItemResult struct {
	ProductID int64
	Success   bool
	Err       error
}

// BulkResult is returned by BulkAdd.
type BulkResult struct {
	Items   []BulkItemResult
	Summary *Summary
}

// LineCheck is the availability report for one line.
type LineCheck struct {
	Line            Line
	ProductExists   bool
	StockSufficient bool
	AvailableStock  int
}

// Validation is returned by Validate.
type Validation struct {
	Items     []LineCheck
	HasIssues bool
}

// RemoveRequest identifies a line by item id, product id or both.
type RemoveRequest struct {
	ProductID int64
	ItemID    int64
}

// Service implements cart mutations and pricing for both backings.
type Service struct {
	products  product.Repository
	coupons   coupon.Validator
	taxes     TaxRater
	carts     Repository
	mutations metric.Int64Counter
	now       func() time.Time
}

// NewService creates a cart Service.
func NewService(
	products product.Repository,
	coupons coupon.Validator,
	taxes TaxRater,
	carts Repository,
	mp metric.MeterProvider,
) (*Service, error) {
	meter := mp.Meter("github.com/xenking/storefront/internal/domain/cart")
	mutations, err := meter.Int64Counter("storefront.cart.mutations",
		metric.WithDescription("Cart mutations by kind and result"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create cart mutations counter")
	}
	return &Service{
		products:  products,
		coupons:   coupons,
		taxes:     taxes,
		carts:     carts,
		mutations: mutations,
		now:       time.Now,
	}, nil
}

// Store returns the backing for scope.
func (s *Service) Store(scope Scope) Store {
	if scope.IsGuest() {
		return guestStore{s: scope.Session, now: s.now}
	}
	return userStore{repo: s.carts, userID: scope.UserID}
}

// Count returns the number of units in the cart.
func (s *Service) Count(ctx context.Context, scope Scope) (int, error) {
	if err := checkScope(scope); err != nil {
		return 0, err
	}
	n, err := s.Store(scope).Count(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "count cart")
	}
	return n, nil
}

// Summary prices the cart, silently re-applying the stored coupon.
func (s *Service) Summary(ctx context.Context, scope Scope) (*Summary, error) {
	if err := checkScope(scope); err != nil {
		return nil, err
	}
	lines, err := s.Store(scope).Lines(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "load cart")
	}
	return s.price(ctx, scope, lines)
}

func (s *Service) price(ctx context.Context, scope Scope, lines []Line) (*Summary, error) {
	rate, err := s.taxes.TaxRate(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "get tax rate")
	}

	priced := pricingLines(lines)
	sum := &Summary{Lines: lines}

	var discount pricing.Discounter
	if code := scope.Session.Coupon(); code != "" {
		rule, err := s.coupons.Validate(ctx, code, scope.UserID, pricing.Subtotal(priced))
		switch {
		case err == nil:
			discount = coupon.Discounter(rule)
			sum.Coupon = rule.Code
			sum.CouponID = rule.ID
		case coupon.IsRejection(err):
			zctx.From(ctx).Debug("Dropping coupon that no longer applies",
				zap.String("code", code),
				zap.Error(err),
			)
			scope.Session.SetCoupon("")
			sum.DroppedCoupon = code
		default:
			return nil, errors.Wrap(err, "reapply coupon")
		}
	}

	sum.Snapshot = pricing.Compute(priced, rate, discount)
	return sum, nil
}

// Add puts qty units of a product in the cart, adding to an existing line.
func (s *Service) Add(ctx context.Context, scope Scope, req AddRequest) (_ *Result, err error) {
	defer func() { s.record(ctx, "add", err) }()

	line, p, err := s.add(ctx, scope, req)
	if err != nil {
		return nil, err
	}
	return s.result(ctx, scope, &line, p.Name)
}

func (s *Service) add(ctx context.Context, scope Scope, req AddRequest) (Line, *product.Product, error) {
	if err := checkScope(scope); err != nil {
		return Line{}, nil, err
	}
	if req.ProductID <= 0 {
		return Line{}, nil, ErrProductRequired
	}
	if req.Quantity < 1 {
		return Line{}, nil, ErrInvalidQuantity
	}
	if req.Quantity > MaxQuantityPerProduct {
		return Line{}, nil, ErrQuantityCapExceeded
	}

	p, err := s.product(ctx, req.ProductID)
	if err != nil {
		return Line{}, nil, err
	}

	store := s.Store(scope)
	existing, _, err := store.Line(ctx, req.ProductID)
	if err != nil {
		return Line{}, nil, errors.Wrap(err, "load cart line")
	}

	qty := existing.Quantity + req.Quantity
	if err := checkLimits(p, qty); err != nil {
		return Line{}, nil, err
	}

	line := Line{
		ProductID: p.ID,
		Name:      p.Name,
		Quantity:  qty,
		UnitPrice: p.EffectivePrice(),
		Color:     firstNonEmpty(req.Color, existing.Color),
		Size:      firstNonEmpty(req.Size, existing.Size),
		Stock:     p.StockQuantity,
	}
	saved, err := store.Put(ctx, line)
	if err != nil {
		return Line{}, nil, errors.Wrap(err, "save cart line")
	}
	return saved, p, nil
}

// Increase adds one unit to an existing line.
func (s *Service) Increase(ctx context.Context, scope Scope, productID int64) (_ *Result, err error) {
	defer func() { s.record(ctx, "increase", err) }()
	return s.change(ctx, scope, productID, 1, false)
}

// Decrease removes one unit from an existing line. A line never drops below
// one unit this way; Remove deletes it.
func (s *Service) Decrease(ctx context.Context, scope Scope, productID int64) (_ *Result, err error) {
	defer func() { s.record(ctx, "decrease", err) }()
	return s.change(ctx, scope, productID, -1, false)
}

// Update dispatches the increase and decrease actions.
func (s *Service) Update(ctx context.Context, scope Scope, productID int64, action string) (*Result, error) {
	switch action {
	case "increase":
		return s.Increase(ctx, scope, productID)
	case "decrease":
		return s.Decrease(ctx, scope, productID)
	default:
		return nil, ErrInvalidAction
	}
}

// ChangeQuantity adds delta units to a line. A resulting quantity of zero or
// less removes the line.
func (s *Service) ChangeQuantity(ctx context.Context, scope Scope, productID int64, delta int) (_ *Result, err error) {
	defer func() { s.record(ctx, "set_quantity", err) }()
	return s.change(ctx, scope, productID, delta, true)
}

func (s *Service) change(ctx context.Context, scope Scope, productID int64, delta int, removeAtZero bool) (*Result, error) {
	if err := checkScope(scope); err != nil {
		return nil, err
	}
	if productID <= 0 {
		return nil, ErrProductRequired
	}
	if delta > MaxQuantityPerProduct {
		return nil, ErrQuantityCapExceeded
	}

	store := s.Store(scope)
	existing, ok, err := store.Line(ctx, productID)
	if err != nil {
		return nil, errors.Wrap(err, "load cart line")
	}
	if !ok {
		return nil, ErrItemNotFound
	}

	// delta is capped above; a large negative delta saturates to removal.
	qty := 0
	if delta > -existing.Quantity {
		qty = existing.Quantity + delta
	}
	switch {
	case qty <= 0 && removeAtZero:
		if _, err := store.Delete(ctx, productID); err != nil {
			return nil, errors.Wrap(err, "delete cart line")
		}
		return s.result(ctx, scope, nil, existing.Name)
	case qty < 1:
		return nil, ErrMinimumQuantityReached
	}

	if delta > 0 {
		p, err := s.product(ctx, productID)
		if err != nil {
			return nil, err
		}
		if err := checkLimits(p, qty); err != nil {
			return nil, err
		}
		existing.Stock = p.StockQuantity
	}

	existing.Quantity = qty
	saved, err := store.Put(ctx, existing)
	if err != nil {
		return nil, errors.Wrap(err, "save cart line")
	}
	return s.result(ctx, scope, &saved, saved.Name)
}

// Remove deletes a line. The item id is tried first, then the product id
// when one is given.
// Guests removing an absent line get no error. Customers get ErrItemNotFound
// unless the id also matches a leftover line in their guest session.
func (s *Service) Remove(ctx context.Context, scope Scope, req RemoveRequest) (_ *Result, err error) {
	defer func() { s.record(ctx, "remove", err) }()

	if err := checkScope(scope); err != nil {
		return nil, err
	}
	if req.ProductID <= 0 && req.ItemID <= 0 {
		return nil, ErrProductRequired
	}

	removed, err := s.remove(ctx, s.Store(scope), req)
	if err != nil {
		return nil, err
	}
	if !removed && !scope.IsGuest() {
		// Lines added before signing in stay in the session.
		removed, err = s.remove(ctx, guestStore{s: scope.Session, now: s.now}, req)
		if err != nil {
			return nil, err
		}
		if !removed {
			return nil, ErrItemNotFound
		}
	}
	return s.result(ctx, scope, nil, "")
}

func (s *Service) remove(ctx context.Context, store Store, req RemoveRequest) (bool, error) {
	if req.ItemID > 0 {
		ok, err := store.DeleteItem(ctx, req.ItemID)
		if err != nil {
			return false, errors.Wrap(err, "delete cart item")
		}
		if ok {
			return true, nil
		}
	}
	if req.ProductID <= 0 {
		return false, nil
	}
	ok, err := store.Delete(ctx, req.ProductID)
	if err != nil {
		return false, errors.Wrap(err, "delete cart line")
	}
	return ok, nil
}

// Clear empties the cart and unsets the applied coupon.
func (s *Service) Clear(ctx context.Context, scope Scope) (_ *Summary, err error) {
	defer func() { s.record(ctx, "clear", err) }()

	if err := checkScope(scope); err != nil {
		return nil, err
	}
	if err := s.Store(scope).Clear(ctx); err != nil {
		return nil, errors.Wrap(err, "clear cart")
	}
	scope.Session.SetCoupon("")
	return s.price(ctx, scope, nil)
}

// BulkAdd adds several products, continuing past rejected items. Storage
// failures abort the batch.
func (s *Service) BulkAdd(ctx context.Context, scope Scope, items []AddRequest) (*BulkResult, error) {
	if err := checkScope(scope); err != nil {
		return nil, err
	}
	out := &BulkResult{Items: make([]BulkItemResult, 0, len(items))}
	for _, item := range items {
		_, _, err := s.add(ctx, scope, item)
		s.record(ctx, "bulk_add", err)
		if err != nil && !IsRejection(err) && !errors.Is(err, product.ErrNotFound) {
			return nil, err
		}
		out.Items = append(out.Items, BulkItemResult{
			ProductID: item.ProductID,
			Success:   err == nil,
			Err:       err,
		})
	}
	sum, err := s.Summary(ctx, scope)
	if err != nil {
		return nil, err
	}
	out.Summary = sum
	return out, nil
}

// Validate checks every line against the current catalog.
func (s *Service) Validate(ctx context.Context, scope Scope) (*Validation, error) {
	if err := checkScope(scope); err != nil {
		return nil, err
	}
	lines, err := s.Store(scope).Lines(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "load cart")
	}

	ids := make([]int64, len(lines))
	for i, l := range lines {
		ids[i] = l.ProductID
	}
	found, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}
	byID := make(map[int64]product.Product, len(found))
	for _, p := range found {
		byID[p.ID] = p
	}

	v := &Validation{Items: make([]LineCheck, len(lines))}
	for i, l := range lines {
		p, ok := byID[l.ProductID]
		check := LineCheck{Line: l, ProductExists: ok && p.Active}
		if check.ProductExists {
			check.AvailableStock = p.StockQuantity
			check.StockSufficient = l.Quantity <= p.StockQuantity
		}
		if !check.ProductExists || !check.StockSufficient {
			v.HasIssues = true
		}
		v.Items[i] = check
	}
	return v, nil
}

// ApplyCoupon validates code against the current subtotal and stores it in
// the session, replacing any previous coupon.
func (s *Service) ApplyCoupon(ctx context.Context, scope Scope, code string) (_ *Summary, err error) {
	defer func() { s.record(ctx, "apply_coupon", err) }()

	if err := checkScope(scope); err != nil {
		return nil, err
	}
	code = coupon.NormalizeCode(code)
	if code == "" {
		return nil, coupon.ErrEmptyCode
	}

	lines, err := s.Store(scope).Lines(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "load cart")
	}
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}

	rule, err := s.coupons.Validate(ctx, code, scope.UserID, pricing.Subtotal(pricingLines(lines)))
	if err != nil {
		return nil, err
	}
	scope.Session.SetCoupon(rule.Code)
	return s.price(ctx, scope, lines)
}

// RemoveCoupon unsets the applied coupon.
func (s *Service) RemoveCoupon(ctx context.Context, scope Scope) (_ *Summary, err error) {
	defer func() { s.record(ctx, "remove_coupon", err) }()

	if err := checkScope(scope); err != nil {
		return nil, err
	}
	scope.Session.SetCoupon("")
	return s.Summary(ctx, scope)
}

// MergeGuestCart moves the session cart into the customer's persisted cart.
// Quantities are clamped to the per-product cap and the available stock, and
// unavailable products are skipped. The session cart is emptied afterwards.
// It returns the number of lines merged.
func (s *Service) MergeGuestCart(ctx context.Context, scope Scope) (_ int, _ *Summary, err error) {
	defer func() { s.record(ctx, "merge", err) }()

	if err := checkScope(scope); err != nil {
		return 0, nil, err
	}
	if scope.IsGuest() {
		return 0, nil, ErrGuestMerge
	}

	guest := scope.Session.GuestLines()
	user := s.Store(scope)
	merged := 0
	for _, gl := range guest {
		p, err := s.product(ctx, gl.ProductID)
		if errors.Is(err, product.ErrNotFound) {
			continue
		}
		if err != nil {
			return 0, nil, err
		}
		existing, _, err := user.Line(ctx, gl.ProductID)
		if err != nil {
			return 0, nil, errors.Wrap(err, "load cart line")
		}
		qty := min(existing.Quantity+gl.Quantity, MaxQuantityPerProduct, p.StockQuantity)
		if qty <= existing.Quantity {
			continue
		}
		if _, err := user.Put(ctx, Line{
			ProductID: p.ID,
			Name:      p.Name,
			Quantity:  qty,
			UnitPrice: p.EffectivePrice(),
			Color:     firstNonEmpty(existing.Color, gl.Color),
			Size:      firstNonEmpty(existing.Size, gl.Size),
			Stock:     p.StockQuantity,
		}); err != nil {
			return 0, nil, errors.Wrap(err, "save cart line")
		}
		merged++
	}
	scope.Session.ClearGuest()

	sum, err := s.Summary(ctx, scope)
	if err != nil {
		return 0, nil, err
	}
	return merged, sum, nil
}

func (s *Service) result(ctx context.Context, scope Scope, line *Line, name string) (*Result, error) {
	sum, err := s.Summary(ctx, scope)
	if err != nil {
		return nil, err
	}
	return &Result{Line: line, ProductName: name, Summary: sum}, nil
}

func (s *Service) product(ctx context.Context, id int64) (*product.Product, error) {
	p, err := s.products.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, product.ErrNotFound) {
			return nil, product.ErrNotFound
		}
		return nil, errors.Wrap(err, "get product")
	}
	if !p.Active {
		return nil, product.ErrNotFound
	}
	return p, nil
}

func (s *Service) record(ctx context.Context, kind string, err error) {
	result := "ok"
	switch {
	case err == nil:
	case IsRejection(err), coupon.IsRejection(err), errors.Is(err, product.ErrNotFound):
		result = "rejected"
	default:
		result = "error"
	}
	s.mutations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("result", result),
	))
}

func checkLimits(p *product.Product, qty int) error {
	if qty > MaxQuantityPerProduct {
		return ErrQuantityCapExceeded
	}
	if qty > p.StockQuantity {
		return &StockError{ProductID: p.ID, Available: p.StockQuantity}
	}
	return nil
}

func checkScope(scope Scope) error {
	if scope.Session == nil {
		return ErrNoSession
	}
	return nil
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
