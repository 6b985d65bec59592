package domain

import (
	"math/big"
	"time"
)

// PurchaseRecord is emitted once per successful purchase flow.
type PurchaseRecord struct {
	ID            string    `json:"id"`
	PositionID    uint64    `json:"position_id"`
	Buyer         string    `json:"buyer"`
	DepositAmount *big.Int  `json:"deposit_amount"`
	GrossOutput   *big.Int  `json:"gross_output"`
	LockedAmount  *big.Int  `json:"locked_amount"`
	Fee           *big.Int  `json:"fee"`
	UnitPrice     *big.Int  `json:"unit_price"`
	Destination   string    `json:"destination"`
	ExpiresAt     time.Time `json:"expires_at"`
	CreatedAt     time.Time `json:"created_at"`
}

// RedemptionRecord is emitted once per redemption, partial or final.
// Delivered is false when the ledger debit committed but the delivery leg
// failed; the owed amount is then tracked as a PendingDelivery.
type RedemptionRecord struct {
	ID          string    `json:"id"`
	PositionID  uint64    `json:"position_id"`
	Amount      *big.Int  `json:"amount"`
	Destination string    `json:"destination"`
	Recipient   string    `json:"recipient"`
	Partial     bool      `json:"partial"`
	Delivered   bool      `json:"delivered"`
	CreatedAt   time.Time `json:"created_at"`
}

// ClaimRecord is emitted when a holder claims back an expired position.
type ClaimRecord struct {
	ID         string    `json:"id"`
	PositionID uint64    `json:"position_id"`
	Holder     string    `json:"holder"`
	Refund     *big.Int  `json:"refund"`
	Fee        *big.Int  `json:"fee"`
	Delivered  bool      `json:"delivered"`
	CreatedAt  time.Time `json:"created_at"`
}

// DeliveryStatus tracks the remediation state of a stuck delivery.
type DeliveryStatus string

const (
	DeliveryStatusPending   DeliveryStatus = "pending"
	DeliveryStatusDelivered DeliveryStatus = "delivered"
)

// PendingDelivery records value that was debited from a position but not
// delivered because the transfer or bridge leg failed. The ledger debit is
// never reversed; an operator (or the remediation worker) retries the
// delivery against this row until it succeeds.
type PendingDelivery struct {
	ID          string         `json:"id"`
	PositionID  uint64         `json:"position_id"`
	Amount      *big.Int       `json:"amount"`
	Destination string         `json:"destination"`
	Recipient   string         `json:"recipient"`
	RouteData   []byte         `json:"route_data,omitempty"`
	Reason      string         `json:"reason"` // "redeem", "claim", or "refund"
	Attempts    int            `json:"attempts"`
	LastError   string         `json:"last_error,omitempty"`
	Status      DeliveryStatus `json:"status"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}
