package service

import (
	"time"

	"ticket-transaction-engine/internal/model"
	apperrors "ticket-transaction-engine/pkg/app_errors"

	"github.com/shopspring/decimal"
)

// PriceInput 計價輸入。Qty 的上下限由呼叫端檢查
type PriceInput struct {
	TicketPrice     int64
	Qty             int
	EventID         int64
	UserID          int64
	Promotion       *model.Promotion
	Coupon          *model.Coupon
	PointsRequested int64
	Now             time.Time
}

// PriceBreakdown 各階段折抵金額
type PriceBreakdown struct {
	TotalPrice        int64
	PromotionDiscount int64
	CouponDiscount    int64
	PointsApplied     int64
	FinalPrice        int64
}

var hundred = decimal.NewFromInt(100)

// percentOf 取 amount 的 pct%，無條件捨去到最小貨幣單位
func percentOf(amount, pct int64) int64 {
	return decimal.NewFromInt(amount).Mul(decimal.NewFromInt(pct)).Div(hundred).Floor().IntPart()
}

// ValidatePromotion 促銷碼必須屬於該活動且 now 在有效期間內
func ValidatePromotion(p *model.Promotion, eventID int64, now time.Time) error {
	if p.EventID != eventID {
		return apperrors.ErrInvalidPromotion
	}
	if !p.Type.IsValid() || p.Value < 0 {
		return apperrors.ErrInvalidPromotion
	}
	if p.Type == model.PromotionTypePercentage && p.Value > 100 {
		return apperrors.ErrInvalidPromotion
	}
	if !p.IsActiveAt(now) {
		return apperrors.ErrInvalidPromotion
	}
	return nil
}

// ValidateCoupon 優惠券必須屬於該使用者、未使用且未過期
func ValidateCoupon(c *model.Coupon, userID int64, now time.Time) error {
	if c.UserID != userID {
		return apperrors.ErrCouponNotFound
	}
	if c.Percentage < 0 || c.Percentage > 100 {
		return apperrors.ErrInvalidOrUsedCoupon
	}
	if !c.IsRedeemableAt(now) {
		return apperrors.ErrInvalidOrUsedCoupon
	}
	return nil
}

// CalculatePrice 固定順序：總價 -> 促銷碼 -> 優惠券 (以折後價計算) -> 點數 -> 最低 0
func CalculatePrice(in PriceInput) (PriceBreakdown, error) {
	if in.Qty <= 0 || in.TicketPrice < 0 || in.PointsRequested < 0 {
		return PriceBreakdown{}, apperrors.Validation("qty, price and points must be positive")
	}

	var b PriceBreakdown
	b.TotalPrice = in.TicketPrice * int64(in.Qty)
	running := b.TotalPrice

	if in.Promotion != nil {
		if err := ValidatePromotion(in.Promotion, in.EventID, in.Now); err != nil {
			return PriceBreakdown{}, err
		}
		switch in.Promotion.Type {
		case model.PromotionTypePercentage:
			b.PromotionDiscount = percentOf(running, in.Promotion.Value)
		case model.PromotionTypeFlat:
			b.PromotionDiscount = in.Promotion.Value
		}
		running -= b.PromotionDiscount
	}

	if in.Coupon != nil {
		if err := ValidateCoupon(in.Coupon, in.UserID, in.Now); err != nil {
			return PriceBreakdown{}, err
		}
		if running > 0 {
			b.CouponDiscount = percentOf(running, in.Coupon.Percentage)
		}
		running -= b.CouponDiscount
	}

	if in.PointsRequested > 0 {
		b.PointsApplied = in.PointsRequested
		running -= in.PointsRequested
	}

	b.FinalPrice = max(running, 0)
	return b, nil
}
