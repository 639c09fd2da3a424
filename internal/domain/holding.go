package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Holding is a user's position in one security of one document's market.
// At most one row exists per (doc, user, security); trades upsert it.
// AmountScaled is a scaled integer encoded as a decimal string so no
// floating-point arithmetic ever touches it.
type Holding struct {
	HoldingID    uuid.UUID `gorm:"column:holding_id;type:uuid;primaryKey" json:"holding_id"`
	DocID        uuid.UUID `gorm:"column:doc_id;type:uuid;not null;uniqueIndex:uq_holdings_doc_user_security" json:"doc_id"`
	UserID       uuid.UUID `gorm:"column:user_id;type:uuid;not null;uniqueIndex:uq_holdings_doc_user_security" json:"user_id"`
	SecurityID   string    `gorm:"column:security_id;not null;uniqueIndex:uq_holdings_doc_user_security" json:"security_id"`
	AmountScaled string    `gorm:"column:amount_scaled;not null;default:0" json:"amount_scaled"`
	CreatedAt    time.Time `gorm:"column:createdAt" json:"createdAt"`
	UpdatedAt    time.Time `gorm:"column:updatedAt" json:"updatedAt"`
}

func (Holding) TableName() string {
	return "Holdings"
}

func (h *Holding) BeforeCreate(tx *gorm.DB) error {
	if h.HoldingID == uuid.Nil {
		h.HoldingID = uuid.New()
	}
	return nil
}
