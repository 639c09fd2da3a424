package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// DocDelta is one encoded document delta in the append-only log. Rows are
// never updated or deleted; replaying the log oldest-first rebuilds the
// document.
type DocDelta struct {
	DeltaID   uuid.UUID      `gorm:"column:delta_id;type:uuid;primaryKey" json:"delta_id"`
	DocID     uuid.UUID      `gorm:"column:doc_id;type:uuid;not null;index" json:"doc_id"`
	Payload   datatypes.JSON `gorm:"column:payload;not null" json:"payload"`
	Origin    string         `gorm:"column:origin;type:varchar(20);not null" json:"origin"`
	UserID    *uuid.UUID     `gorm:"column:user_id;type:uuid" json:"user_id"`
	CreatedAt time.Time      `gorm:"column:createdAt" json:"createdAt"`
}

func (DocDelta) TableName() string {
	return "DocDeltas"
}

func (d *DocDelta) BeforeCreate(tx *gorm.DB) error {
	if d.DeltaID == uuid.Nil {
		d.DeltaID = uuid.New()
	}
	return nil
}
