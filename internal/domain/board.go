package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Board is a collaboratively edited document. Boards are addressed by
// human-readable slug or canonical id; the market always operates on the
// canonical id.
type Board struct {
	BoardID    uuid.UUID `gorm:"column:board_id;type:uuid;primaryKey" json:"board_id"`
	Slug       string    `gorm:"column:slug;not null;uniqueIndex" json:"slug"`
	Title      string    `gorm:"column:title;not null" json:"title"`
	RootNodeID string    `gorm:"column:root_node_id;not null" json:"root_node_id"`
	CreatedBy  uuid.UUID `gorm:"column:created_by;type:uuid" json:"created_by"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

func (Board) TableName() string {
	return "Boards"
}

func (b *Board) BeforeCreate(tx *gorm.DB) error {
	if b.BoardID == uuid.Nil {
		b.BoardID = uuid.New()
	}
	return nil
}
