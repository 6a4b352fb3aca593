package model

import "time"

// TicketType 票種：Seats 為剩餘座位數，只能透過交易生命週期增減
type TicketType struct {
	ID        int64     `json:"id" db:"id"`
	EventID   int64     `json:"event_id" db:"event_id"`
	Name      string    `json:"name" db:"name"`
	Price     int64     `json:"price" db:"price"` // 最小貨幣單位
	Seats     int       `json:"seats" db:"seats"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
