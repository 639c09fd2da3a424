package domain

import (
	"time"

	"github.com/google/uuid"
)

// MarketState is the per-document optimistic-concurrency token. Version is
// incremented exactly once per successfully applied trade; a trade commits
// only if the version it read is still current.
type MarketState struct {
	DocID     uuid.UUID `gorm:"column:doc_id;type:uuid;primaryKey" json:"doc_id"`
	Version   int64     `gorm:"column:version;not null;default:0" json:"version"`
	UpdatedAt time.Time `gorm:"column:updatedAt" json:"updatedAt"`
}

func (MarketState) TableName() string {
	return "MarketStates"
}
