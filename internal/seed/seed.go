// Package seed loads demo data: one event with its ticket types, an event
// promotion, personal coupons and referral points for a few buyers.
package seed

import (
	"context"
	"errors"
	"time"

	"ticket-transaction-engine/internal/model"
	"ticket-transaction-engine/internal/repository"
	"ticket-transaction-engine/internal/service"
	apperrors "ticket-transaction-engine/pkg/app_errors"
	"ticket-transaction-engine/pkg/clock"
	"ticket-transaction-engine/pkg/logger"

	"go.uber.org/zap"
)

type TicketType struct {
	Name  string
	Price int64
	Seats int
}

type Promotion struct {
	Code     string
	Type     model.PromotionType
	Value    int64
	Duration time.Duration
	MaxUsage int
}

// Buyer 推薦獎勵點數與個人優惠券
type Buyer struct {
	UserID           int64
	ReferralPoints   int64
	PointsTTL        time.Duration
	CouponCode       string
	CouponPercentage int64
	CouponTTL        time.Duration
}

type Options struct {
	OrganizerID int64
	EventName   string
	TicketTypes []TicketType
	Promotion   *Promotion
	Buyers      []Buyer
}

type Result struct {
	Event        *model.Event
	TicketTypes  []*model.TicketType
	Promotion    *model.Promotion
	Coupons      []*model.Coupon
	PointBatches []*model.PointBatch
}

func DemoOptions() Options {
	return Options{
		OrganizerID: 100,
		EventName:   "Summer Live 2026",
		TicketTypes: []TicketType{
			{Name: "VIP", Price: 500_000, Seats: 50},
			{Name: "Regular", Price: 100_000, Seats: 500},
		},
		Promotion: &Promotion{Code: "EARLYBIRD", Type: model.PromotionTypePercentage, Value: 10, Duration: 30 * 24 * time.Hour, MaxUsage: 100},
		Buyers: []Buyer{
			{UserID: 7, ReferralPoints: 50_000, PointsTTL: 90 * 24 * time.Hour, CouponCode: "WELCOME10", CouponPercentage: 10, CouponTTL: 90 * 24 * time.Hour},
			{UserID: 8, ReferralPoints: 20_000, PointsTTL: 90 * 24 * time.Hour},
		},
	}
}

func (o Options) validate() error {
	if o.OrganizerID <= 0 || o.EventName == "" {
		return apperrors.Validation("organizer id and event name are required")
	}
	if len(o.TicketTypes) == 0 {
		return apperrors.Validation("at least one ticket type is required")
	}
	for _, tt := range o.TicketTypes {
		if tt.Price < 0 || tt.Seats < 0 {
			return apperrors.Validation("ticket type %q has negative price or seats", tt.Name)
		}
	}
	return nil
}

// Run 活動、票種、促銷碼、優惠券在同一個 atomic unit；點數透過 PointsLedger.Grant 發放。
// 同一使用者已有相同代碼的優惠券時沿用，不重複建立
func Run(ctx context.Context, store repository.Store, ledger *service.PointsLedger, clk clock.Clock, opts Options) (*Result, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	now := clk.Now()
	res := &Result{}

	err := store.WithAtomicUnit(ctx, func(ctx context.Context, uow repository.UnitOfWork) error {
		var err error
		res.Event, err = uow.Events().Create(ctx, &model.Event{OrganizerID: opts.OrganizerID, Name: opts.EventName})
		if err != nil {
			return err
		}

		for _, tt := range opts.TicketTypes {
			created, err := uow.TicketTypes().Create(ctx, &model.TicketType{
				EventID: res.Event.ID,
				Name:    tt.Name,
				Price:   tt.Price,
				Seats:   tt.Seats,
			})
			if err != nil {
				return err
			}
			res.TicketTypes = append(res.TicketTypes, created)
		}

		if p := opts.Promotion; p != nil {
			res.Promotion, err = uow.Promotions().Create(ctx, &model.Promotion{
				EventID:   res.Event.ID,
				Code:      p.Code,
				Type:      p.Type,
				Value:     p.Value,
				StartDate: now,
				EndDate:   now.Add(p.Duration),
				MaxUsage:  p.MaxUsage,
			})
			if err != nil {
				return err
			}
		}

		for _, b := range opts.Buyers {
			if b.CouponCode == "" {
				continue
			}
			coupon, err := uow.Coupons().FindByUserAndCodeWithLock(ctx, b.UserID, b.CouponCode)
			if errors.Is(err, apperrors.ErrNotFound) {
				coupon, err = uow.Coupons().Create(ctx, &model.Coupon{
					UserID:     b.UserID,
					Code:       b.CouponCode,
					Percentage: b.CouponPercentage,
					ExpiresAt:  now.Add(b.CouponTTL),
				})
			}
			if err != nil {
				return err
			}
			res.Coupons = append(res.Coupons, coupon)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, b := range opts.Buyers {
		if b.ReferralPoints <= 0 {
			continue
		}
		batch, err := ledger.Grant(ctx, b.UserID, b.ReferralPoints, now.Add(b.PointsTTL))
		if err != nil {
			return nil, err
		}
		res.PointBatches = append(res.PointBatches, batch)
	}

	logger.WithComponent("seed").Info("demo data seeded",
		zap.Int64("event_id", res.Event.ID),
		zap.Int("ticket_types", len(res.TicketTypes)),
		zap.Int("coupons", len(res.Coupons)),
		zap.Int("point_batches", len(res.PointBatches)),
	)
	return res, nil
}
