package model

import "time"

type NotificationKind string

const (
	NotificationCreated   NotificationKind = "transaction.created"
	NotificationAccepted  NotificationKind = "transaction.accepted"
	NotificationRejected  NotificationKind = "transaction.rejected"
	NotificationExpired   NotificationKind = "transaction.expired"
	NotificationCancelled NotificationKind = "transaction.cancelled"
	NotificationReminder  NotificationKind = "transaction.payment_reminder"
)

// NotificationKinds 所有通知類型，每種各自一條 stream
var NotificationKinds = []NotificationKind{
	NotificationCreated,
	NotificationAccepted,
	NotificationRejected,
	NotificationExpired,
	NotificationCancelled,
	NotificationReminder,
}

func (k NotificationKind) IsValid() bool {
	for _, known := range NotificationKinds {
		if k == known {
			return true
		}
	}
	return false
}

// NotificationKindFor 回滾原因對應的通知類型
func NotificationKindFor(reason TransactionStatus) (NotificationKind, bool) {
	switch reason {
	case TransactionStatusRejected:
		return NotificationRejected, true
	case TransactionStatusExpired:
		return NotificationExpired, true
	case TransactionStatusCancelled:
		return NotificationCancelled, true
	}
	return "", false
}

// Notification 放進通知隊列的訊息
type Notification struct {
	ID            string            `json:"id"`
	Kind          NotificationKind  `json:"kind"`
	TransactionID int64             `json:"transaction_id"`
	Extra         map[string]string `json:"extra,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
}
