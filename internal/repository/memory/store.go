// Package memory is an in-process repository.Store. Every atomic unit runs
// against a private copy of the state under one mutex and the copy replaces
// the live state only when the unit returns nil.
package memory

import (
	"cmp"
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"ticket-transaction-engine/internal/model"
	"ticket-transaction-engine/internal/repository"
	apperrors "ticket-transaction-engine/pkg/app_errors"
)

type state struct {
	nextID       int64
	events       map[int64]model.Event
	ticketTypes  map[int64]model.TicketType
	pointBatches map[int64]model.PointBatch
	coupons      map[int64]model.Coupon
	promotions   map[int64]model.Promotion
	transactions map[int64]model.Transaction
}

func newState() *state {
	return &state{
		events:       make(map[int64]model.Event),
		ticketTypes:  make(map[int64]model.TicketType),
		pointBatches: make(map[int64]model.PointBatch),
		coupons:      make(map[int64]model.Coupon),
		promotions:   make(map[int64]model.Promotion),
		transactions: make(map[int64]model.Transaction),
	}
}

func (s *state) clone() *state {
	return &state{
		nextID:       s.nextID,
		events:       maps.Clone(s.events),
		ticketTypes:  maps.Clone(s.ticketTypes),
		pointBatches: maps.Clone(s.pointBatches),
		coupons:      maps.Clone(s.coupons),
		promotions:   maps.Clone(s.promotions),
		transactions: maps.Clone(s.transactions),
	}
}

func (s *state) id() int64 {
	s.nextID++
	return s.nextID
}

type Store struct {
	mu sync.Mutex
	st *state
}

func NewStore() *Store {
	return &Store{st: newState()}
}

func (s *Store) WithAtomicUnit(ctx context.Context, fn func(ctx context.Context, uow repository.UnitOfWork) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	work := s.st.clone()
	if err := fn(ctx, &unit{st: work}); err != nil {
		return err
	}
	s.st = work
	return nil
}

// View 直接讀取目前狀態，fn 不可寫入
func (s *Store) View(ctx context.Context, fn func(ctx context.Context, uow repository.UnitOfWork) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return fn(ctx, &unit{st: s.st})
}

type unit struct {
	st *state
}

func (u *unit) Events() repository.EventRepository             { return eventRepo{u.st} }
func (u *unit) TicketTypes() repository.TicketTypeRepository   { return ticketTypeRepo{u.st} }
func (u *unit) PointBatches() repository.PointBatchRepository  { return pointBatchRepo{u.st} }
func (u *unit) Coupons() repository.CouponRepository           { return couponRepo{u.st} }
func (u *unit) Promotions() repository.PromotionRepository     { return promotionRepo{u.st} }
func (u *unit) Transactions() repository.TransactionRepository { return transactionRepo{u.st} }

type eventRepo struct{ st *state }

func (r eventRepo) Create(_ context.Context, event *model.Event) (*model.Event, error) {
	e := *event
	e.ID = r.st.id()
	e.CreatedAt = time.Now().UTC()
	e.UpdatedAt = e.CreatedAt
	r.st.events[e.ID] = e
	return &e, nil
}

func (r eventRepo) FindByID(_ context.Context, id int64) (*model.Event, error) {
	e, ok := r.st.events[id]
	if !ok {
		return nil, apperrors.ErrEventNotFound
	}
	return &e, nil
}

type ticketTypeRepo struct{ st *state }

func (r ticketTypeRepo) Create(_ context.Context, ticketType *model.TicketType) (*model.TicketType, error) {
	t := *ticketType
	t.ID = r.st.id()
	t.CreatedAt = time.Now().UTC()
	t.UpdatedAt = t.CreatedAt
	r.st.ticketTypes[t.ID] = t
	return &t, nil
}

func (r ticketTypeRepo) FindByID(_ context.Context, id int64) (*model.TicketType, error) {
	t, ok := r.st.ticketTypes[id]
	if !ok {
		return nil, apperrors.ErrTicketTypeNotFound
	}
	return &t, nil
}

func (r ticketTypeRepo) FindByIDWithLock(ctx context.Context, id int64) (*model.TicketType, error) {
	return r.FindByID(ctx, id)
}

func (r ticketTypeRepo) DecrementSeats(_ context.Context, id int64, qty int) error {
	t, ok := r.st.ticketTypes[id]
	if !ok {
		return apperrors.ErrTicketTypeNotFound
	}
	if t.Seats < qty {
		return apperrors.ErrInsufficientSeats
	}
	t.Seats -= qty
	t.UpdatedAt = time.Now().UTC()
	r.st.ticketTypes[id] = t
	return nil
}

func (r ticketTypeRepo) IncrementSeats(_ context.Context, id int64, qty int) error {
	t, ok := r.st.ticketTypes[id]
	if !ok {
		return apperrors.ErrTicketTypeNotFound
	}
	t.Seats += qty
	t.UpdatedAt = time.Now().UTC()
	r.st.ticketTypes[id] = t
	return nil
}

type pointBatchRepo struct{ st *state }

func (r pointBatchRepo) Create(_ context.Context, batch *model.PointBatch) (*model.PointBatch, error) {
	b := *batch
	b.ID = r.st.id()
	b.CreatedAt = time.Now().UTC()
	r.st.pointBatches[b.ID] = b
	return &b, nil
}

func (r pointBatchRepo) byUser(userID int64, keep func(model.PointBatch) bool) []*model.PointBatch {
	batches := make([]*model.PointBatch, 0)
	for _, b := range r.st.pointBatches {
		if b.UserID == userID && keep(b) {
			b := b
			batches = append(batches, &b)
		}
	}
	slices.SortFunc(batches, func(a, b *model.PointBatch) int {
		if c := a.ExpiresAt.Compare(b.ExpiresAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return batches
}

func (r pointBatchRepo) ListSpendableWithLock(_ context.Context, userID int64, now time.Time) ([]*model.PointBatch, error) {
	return r.byUser(userID, func(b model.PointBatch) bool {
		return !b.IsRedeemed && b.ExpiresAt.After(now)
	}), nil
}

func (r pointBatchRepo) ListByUserID(_ context.Context, userID int64) ([]*model.PointBatch, error) {
	return r.byUser(userID, func(model.PointBatch) bool { return true }), nil
}

func (r pointBatchRepo) UpdateAmount(_ context.Context, id int64, amount int64, redeemed bool) error {
	b, ok := r.st.pointBatches[id]
	if !ok {
		return apperrors.Validation("point batch %d does not exist", id)
	}
	b.Amount = amount
	b.IsRedeemed = redeemed
	r.st.pointBatches[id] = b
	return nil
}

type couponRepo struct{ st *state }

func (r couponRepo) Create(_ context.Context, coupon *model.Coupon) (*model.Coupon, error) {
	c := *coupon
	c.ID = r.st.id()
	c.CreatedAt = time.Now().UTC()
	r.st.coupons[c.ID] = c
	return &c, nil
}

func (r couponRepo) FindByID(_ context.Context, id int64) (*model.Coupon, error) {
	c, ok := r.st.coupons[id]
	if !ok {
		return nil, apperrors.ErrCouponNotFound
	}
	return &c, nil
}

func (r couponRepo) FindByIDWithLock(ctx context.Context, id int64) (*model.Coupon, error) {
	return r.FindByID(ctx, id)
}

func (r couponRepo) FindByUserAndCodeWithLock(_ context.Context, userID int64, code string) (*model.Coupon, error) {
	for _, c := range r.st.coupons {
		if c.UserID == userID && c.Code == code {
			return &c, nil
		}
	}
	return nil, apperrors.ErrCouponNotFound
}

func (r couponRepo) SetUsed(_ context.Context, id int64, used bool) error {
	c, ok := r.st.coupons[id]
	if !ok {
		return apperrors.ErrCouponNotFound
	}
	c.IsUsed = used
	r.st.coupons[id] = c
	return nil
}

type promotionRepo struct{ st *state }

func (r promotionRepo) Create(_ context.Context, promotion *model.Promotion) (*model.Promotion, error) {
	p := *promotion
	p.ID = r.st.id()
	p.CreatedAt = time.Now().UTC()
	r.st.promotions[p.ID] = p
	return &p, nil
}

func (r promotionRepo) FindByEventAndCode(_ context.Context, eventID int64, code string) (*model.Promotion, error) {
	for _, p := range r.st.promotions {
		if p.EventID == eventID && p.Code == code {
			return &p, nil
		}
	}
	return nil, apperrors.ErrPromotionNotFound
}

type transactionRepo struct{ st *state }

func (r transactionRepo) Create(_ context.Context, transaction *model.Transaction) (*model.Transaction, error) {
	t := *transaction
	t.ID = r.st.id()
	t.CreatedAt = time.Now().UTC()
	t.UpdatedAt = t.CreatedAt
	r.st.transactions[t.ID] = t
	return &t, nil
}

func (r transactionRepo) FindByID(_ context.Context, id int64) (*model.Transaction, error) {
	t, ok := r.st.transactions[id]
	if !ok {
		return nil, apperrors.ErrTransactionNotFound
	}
	return &t, nil
}

func (r transactionRepo) FindByIDWithLock(ctx context.Context, id int64) (*model.Transaction, error) {
	return r.FindByID(ctx, id)
}

func (r transactionRepo) filter(keep func(model.Transaction) bool, less func(a, b *model.Transaction) int) []*model.Transaction {
	transactions := make([]*model.Transaction, 0)
	for _, t := range r.st.transactions {
		if keep(t) {
			t := t
			transactions = append(transactions, &t)
		}
	}
	slices.SortFunc(transactions, less)
	return transactions
}

func byExpiresAt(a, b *model.Transaction) int {
	if c := a.ExpiresAt.Compare(b.ExpiresAt); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

func (r transactionRepo) ListByUserID(_ context.Context, userID int64) ([]*model.Transaction, error) {
	return r.filter(
		func(t model.Transaction) bool { return t.UserID == userID },
		func(a, b *model.Transaction) int { return cmp.Compare(b.ID, a.ID) },
	), nil
}

func (r transactionRepo) Update(_ context.Context, transaction *model.Transaction, expected model.TransactionStatus) (*model.Transaction, error) {
	current, ok := r.st.transactions[transaction.ID]
	if !ok {
		return nil, apperrors.ErrTransactionNotFound
	}
	if current.Status != expected {
		return nil, apperrors.InvalidTransition(string(current.Status), string(transaction.Status))
	}
	current.Status = transaction.Status
	current.PaymentProof = transaction.PaymentProof
	current.PaymentProofUploadedAt = transaction.PaymentProofUploadedAt
	current.OrganizerResponseDeadline = transaction.OrganizerResponseDeadline
	current.ReminderSent = transaction.ReminderSent
	current.UpdatedAt = time.Now().UTC()
	r.st.transactions[current.ID] = current
	return &current, nil
}

func (r transactionRepo) MarkReminderSent(_ context.Context, id int64) (bool, error) {
	t, ok := r.st.transactions[id]
	if !ok || t.Status != model.TransactionStatusWaitingPayment || t.ReminderSent {
		return false, nil
	}
	t.ReminderSent = true
	t.UpdatedAt = time.Now().UTC()
	r.st.transactions[id] = t
	return true, nil
}

func (r transactionRepo) ListDueForReminder(_ context.Context, from, to time.Time) ([]*model.Transaction, error) {
	return r.filter(func(t model.Transaction) bool {
		return t.Status == model.TransactionStatusWaitingPayment && !t.ReminderSent &&
			!t.ExpiresAt.Before(from) && !t.ExpiresAt.After(to)
	}, byExpiresAt), nil
}

func (r transactionRepo) ListPaymentExpired(_ context.Context, now time.Time) ([]*model.Transaction, error) {
	return r.filter(func(t model.Transaction) bool {
		return t.Status == model.TransactionStatusWaitingPayment && t.ExpiresAt.Before(now)
	}, byExpiresAt), nil
}

func (r transactionRepo) ListConfirmationOverdue(_ context.Context, now time.Time) ([]*model.Transaction, error) {
	return r.filter(func(t model.Transaction) bool {
		return t.Status == model.TransactionStatusWaitingConfirmation &&
			t.OrganizerResponseDeadline != nil && t.OrganizerResponseDeadline.Before(now)
	}, byExpiresAt), nil
}
