package referral

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/outbox"
	"github.com/xenking/storefront/internal/domain/pricing"
	"github.com/xenking/storefront/internal/domain/settings"
)

var hundred = decimal.NewFromInt(100)

// Commission sums quantity * unit price * rate over items, where rate is the
// item's own percentage or defaultRate. Rates outside 0..50 count as zero.
// The result is rounded to cents.
func Commission(items []Item, defaultRate decimal.Decimal) decimal.Decimal {
	sum := decimal.Zero
	for _, it := range items {
		if it.Quantity <= 0 {
			continue
		}
		rate := defaultRate
		if it.Commission != nil {
			rate = *it.Commission
		}
		rate = settings.ClampCommission(rate)
		line := it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity)))
		sum = sum.Add(line.Mul(rate).Div(hundred))
	}
	return pricing.Round2(sum)
}

// Service applies order lifecycle events to the referral ledger. Every
// operation is idempotent per order.
type Service struct {
	repo  Repository
	rates CommissionRater
}

// NewService creates a referral Service.
func NewService(repo Repository, rates CommissionRater) *Service {
	return &Service{repo: repo, rates: rates}
}

// ProcessDelivered pays the referrer of a delivered order. It returns nil
// when the order is not delivered, the buyer has no referrer, or the
// commission is zero. An already paid or cancelled earning is returned
// unchanged.
func (s *Service) ProcessDelivered(ctx context.Context, orderID int64) (*Earning, error) {
	oc, err := s.repo.OrderContext(ctx, orderID)
	if err != nil {
		return nil, errors.Wrap(err, "get order")
	}
	if oc.Status != order.StatusDelivered || !hasReferrer(oc) {
		return nil, nil
	}

	existing, err := s.find(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if existing.Status != StatusPending {
			return existing, nil
		}
		changed, err := s.repo.MarkPaid(ctx, existing.ID)
		if err != nil {
			return nil, errors.Wrap(err, "mark earning paid")
		}
		if changed {
			existing.Status = StatusPaid
			s.log(ctx, "Referral earning paid", existing)
			return existing, nil
		}
		return s.find(ctx, orderID)
	}

	e, err := s.earning(ctx, oc, StatusPaid)
	if err != nil || e == nil {
		return nil, err
	}
	if err := s.repo.CreatePaid(ctx, e); err != nil {
		if errors.Is(err, ErrDuplicate) {
			return s.find(ctx, orderID)
		}
		return nil, errors.Wrap(err, "create paid earning")
	}
	s.log(ctx, "Referral earning paid", e)
	return e, nil
}

// CreatePending records the expected commission of a new order so the
// referrer can see it before delivery.
func (s *Service) CreatePending(ctx context.Context, orderID int64) (*Earning, error) {
	oc, err := s.repo.OrderContext(ctx, orderID)
	if err != nil {
		return nil, errors.Wrap(err, "get order")
	}
	if !hasReferrer(oc) || oc.Status == order.StatusCancelled {
		return nil, nil
	}

	existing, err := s.find(ctx, orderID)
	if err != nil || existing != nil {
		return existing, err
	}

	e, err := s.earning(ctx, oc, StatusPending)
	if err != nil || e == nil {
		return nil, err
	}
	if err := s.repo.CreatePending(ctx, e); err != nil {
		if errors.Is(err, ErrDuplicate) {
			return s.find(ctx, orderID)
		}
		return nil, errors.Wrap(err, "create pending earning")
	}
	s.log(ctx, "Referral earning pending", e)
	return e, nil
}

// Cancel voids the earning of a cancelled order. A paid earning is taken
// back from the referrer balance.
func (s *Service) Cancel(ctx context.Context, orderID int64) (*Earning, error) {
	e, err := s.find(ctx, orderID)
	if err != nil || e == nil {
		return nil, err
	}
	if e.Status == StatusCancelled {
		return e, nil
	}
	changed, err := s.repo.MarkCancelled(ctx, e.ID)
	if err != nil {
		return nil, errors.Wrap(err, "cancel earning")
	}
	if !changed {
		return s.find(ctx, orderID)
	}
	e.Status = StatusCancelled
	s.log(ctx, "Referral earning cancelled", e)
	return e, nil
}

// Handlers returns the outbox handlers of the referral event kinds.
func (s *Service) Handlers() map[outbox.Kind]outbox.Handler {
	wrap := func(fn func(context.Context, int64) (*Earning, error)) outbox.Handler {
		return func(ctx context.Context, e outbox.Event) error {
			_, err := fn(ctx, e.OrderID)
			if errors.Is(err, order.ErrNotFound) {
				return outbox.Permanent(err)
			}
			return err
		}
	}
	return map[outbox.Kind]outbox.Handler{
		outbox.KindReferralPending: wrap(s.CreatePending),
		outbox.KindReferralEarn:    wrap(s.ProcessDelivered),
		outbox.KindReferralCancel:  wrap(s.Cancel),
	}
}

func (s *Service) earning(ctx context.Context, oc *OrderContext, status Status) (*Earning, error) {
	rate, err := s.rates.CommissionRate(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "get commission rate")
	}
	amount := Commission(oc.Items, rate)
	if !amount.IsPositive() {
		return nil, nil
	}
	return &Earning{
		OrderID: oc.OrderID,
		UserID:  oc.ReferrerID,
		Amount:  amount,
		Status:  status,
	}, nil
}

func (s *Service) find(ctx context.Context, orderID int64) (*Earning, error) {
	e, err := s.repo.FindByOrderID(ctx, orderID)
	switch {
	case errors.Is(err, ErrNotFound):
		return nil, nil
	case err != nil:
		return nil, errors.Wrap(err, "find earning")
	}
	return e, nil
}

func (s *Service) log(ctx context.Context, msg string, e *Earning) {
	zctx.From(ctx).Info(msg,
		zap.Int64("order_id", e.OrderID),
		zap.Int64("referrer_id", e.UserID),
		zap.String("amount", e.Amount.StringFixed(2)),
	)
}

func hasReferrer(oc *OrderContext) bool {
	return oc.ReferrerID != 0 && oc.ReferrerID != oc.BuyerID
}
