package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PricePoint records the post-trade price of one security at one moment.
type PricePoint struct {
	PointID     uuid.UUID `gorm:"column:point_id;type:uuid;primaryKey" json:"point_id"`
	DocID       uuid.UUID `gorm:"column:doc_id;type:uuid;not null;index:idx_price_points_doc_security" json:"doc_id"`
	SecurityID  string    `gorm:"column:security_id;not null;index:idx_price_points_doc_security" json:"security_id"`
	PriceScaled string    `gorm:"column:price_scaled;not null" json:"price_scaled"`
	CreatedAt   time.Time `gorm:"column:createdAt" json:"createdAt"`
}

func (PricePoint) TableName() string {
	return "PricePoints"
}

func (p *PricePoint) BeforeCreate(tx *gorm.DB) error {
	if p.PointID == uuid.Nil {
		p.PointID = uuid.New()
	}
	return nil
}
