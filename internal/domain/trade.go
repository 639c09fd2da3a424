package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Trade is one executed order. Rows are append-only: never mutated or
// deleted, forming the audit trail for the ledger invariant (holding =
// signed sum of trade deltas) and the source for price history.
type Trade struct {
	TradeID          uuid.UUID      `gorm:"column:trade_id;type:uuid;primaryKey" json:"trade_id"`
	DocID            uuid.UUID      `gorm:"column:doc_id;type:uuid;not null;index" json:"doc_id"`
	UserID           uuid.UUID      `gorm:"column:user_id;type:uuid;not null;index" json:"user_id"`
	SecurityID       string         `gorm:"column:security_id;not null;index" json:"security_id"`
	DeltaScaled      string         `gorm:"column:delta_scaled;not null" json:"delta_scaled"`
	CostScaled       string         `gorm:"column:cost_scaled;not null" json:"cost_scaled"`
	PriceAfterScaled string         `gorm:"column:price_after_scaled;not null" json:"price_after_scaled"`
	Metadata         datatypes.JSON `gorm:"column:metadata" json:"metadata,omitempty"`
	CreatedAt        time.Time      `gorm:"column:createdAt" json:"createdAt"`
}

func (Trade) TableName() string {
	return "Trades"
}

func (t *Trade) BeforeCreate(tx *gorm.DB) error {
	if t.TradeID == uuid.Nil {
		t.TradeID = uuid.New()
	}
	return nil
}
