// Package session holds the per-visitor state that survives between requests:
// the guest cart, its cached item count and the applied coupon code.
package session

import (
	"context"
	"sort"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned by Store.Load for unknown or expired sessions.
var ErrNotFound = errors.New("session not found")

// GuestLine is one guest cart entry. UnitPrice is the effective price
// captured when the line was first added.
type GuestLine struct {
	ItemID    int64
	ProductID int64
	Name      string
	UnitPrice decimal.Decimal
	Quantity  int
	Color     string
	Size      string
	AddedAt   time.Time
}

// Data is the serialized part of a session.
type Data struct {
	Guest      map[int64]GuestLine
	GuestCount int
	Coupon     string
	NextItemID int64
}

// Session is the explicit per-request context passed to cart operations.
type Session struct {
	ID        string
	UserID    int64
	Data      Data
	ExpiresAt time.Time

	dirty bool
}

// New creates an empty session with a random id.
func New(expiresAt time.Time) *Session {
	return &Session{
		ID:        uuid.New().String(),
		Data:      Data{Guest: make(map[int64]GuestLine)},
		ExpiresAt: expiresAt,
		dirty:     true,
	}
}

// Dirty reports whether the session changed since it was loaded.
func (s *Session) Dirty() bool { return s.dirty }

// MarkDirty flags the session for saving.
func (s *Session) MarkDirty() { s.dirty = true }

// MarkClean is called by stores after a successful save.
func (s *Session) MarkClean() { s.dirty = false }

// Coupon returns the applied coupon code, if any.
func (s *Session) Coupon() string { return s.Data.Coupon }

// SetCoupon stores code as the applied coupon. An empty code unsets it.
func (s *Session) SetCoupon(code string) {
	if s.Data.Coupon == code {
		return
	}
	s.Data.Coupon = code
	s.dirty = true
}

// GuestCount is the cached sum of guest line quantities.
func (s *Session) GuestCount() int { return s.Data.GuestCount }

// GuestLines returns the guest cart ordered by item id.
func (s *Session) GuestLines() []GuestLine {
	lines := make([]GuestLine, 0, len(s.Data.Guest))
	for _, l := range s.Data.Guest {
		lines = append(lines, l)
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].ItemID < lines[j].ItemID })
	return lines
}

// GuestLine returns the guest line for productID.
func (s *Session) GuestLine(productID int64) (GuestLine, bool) {
	l, ok := s.Data.Guest[productID]
	return l, ok
}

// PutGuestLine inserts or replaces the line keyed by its product id. New
// lines get the next item id.
func (s *Session) PutGuestLine(l GuestLine) GuestLine {
	if s.Data.Guest == nil {
		s.Data.Guest = make(map[int64]GuestLine)
	}
	if prev, ok := s.Data.Guest[l.ProductID]; ok {
		l.ItemID = prev.ItemID
		if l.AddedAt.IsZero() {
			l.AddedAt = prev.AddedAt
		}
	} else {
		s.Data.NextItemID++
		l.ItemID = s.Data.NextItemID
	}
	s.Data.Guest[l.ProductID] = l
	s.recount()
	return l
}

// DeleteGuestLine removes the line for productID. Absent lines are a no-op.
func (s *Session) DeleteGuestLine(productID int64) bool {
	if _, ok := s.Data.Guest[productID]; !ok {
		return false
	}
	delete(s.Data.Guest, productID)
	s.recount()
	return true
}

// DeleteGuestItem removes the line whose item id is itemID.
func (s *Session) DeleteGuestItem(itemID int64) bool {
	for pid, l := range s.Data.Guest {
		if l.ItemID == itemID {
			return s.DeleteGuestLine(pid)
		}
	}
	return false
}

// ClearGuest empties the guest cart.
func (s *Session) ClearGuest() {
	if len(s.Data.Guest) == 0 && s.Data.GuestCount == 0 {
		return
	}
	s.Data.Guest = make(map[int64]GuestLine)
	s.recount()
}

func (s *Session) recount() {
	s.Data.GuestCount = countLines(s.Data.Guest)
	s.dirty = true
}

func countLines(lines map[int64]GuestLine) int {
	n := 0
	for _, l := range lines {
		n += l.Quantity
	}
	return n
}

// Clone returns a deep copy of d.
func (d Data) Clone() Data {
	out := d
	out.Guest = make(map[int64]GuestLine, len(d.Guest))
	for k, v := range d.Guest {
		out.Guest[k] = v
	}
	return out
}

// Store persists sessions.
type Store interface {
	// Load returns ErrNotFound for unknown or expired ids.
	Load(ctx context.Context, id string) (*Session, error)
	Save(ctx context.Context, s *Session) error
	Delete(ctx context.Context, id string) error
}

// Manager opens and commits sessions with a sliding expiry.
type Manager struct {
	store Store
	ttl   time.Duration
	now   func() time.Time
}

// NewManager creates a Manager. Sessions expire ttl after their last save;
// Commit refreshes the expiry of sessions that are only read.
func NewManager(store Store, ttl time.Duration) *Manager {
	return &Manager{store: store, ttl: ttl, now: time.Now}
}

// TTL returns the session lifetime.
func (m *Manager) TTL() time.Duration { return m.ttl }

// Open loads the session for id, or starts a new one when id is empty,
// unknown or expired.
func (m *Manager) Open(ctx context.Context, id string) (*Session, error) {
	if id != "" {
		s, err := m.store.Load(ctx, id)
		switch {
		case err == nil:
			return s, nil
		case !errors.Is(err, ErrNotFound):
			return nil, errors.Wrap(err, "load session")
		}
	}
	return New(m.now().Add(m.ttl)), nil
}

// Commit saves s when it changed, or when less than half of its lifetime
// is left so read-only visits keep the session alive as long as the cookie.
func (m *Manager) Commit(ctx context.Context, s *Session) error {
	if s == nil {
		return nil
	}
	if !s.Dirty() && s.ExpiresAt.Sub(m.now()) > m.ttl/2 {
		return nil
	}
	s.ExpiresAt = m.now().Add(m.ttl)
	if err := m.store.Save(ctx, s); err != nil {
		return errors.Wrap(err, "save session")
	}
	s.MarkClean()
	return nil
}
