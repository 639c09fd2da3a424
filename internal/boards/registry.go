package boards

import (
	"context"
	"sync"

	"agora-backend/internal/document"
	"agora-backend/internal/domain"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// serverReplica identifies deltas minted by the backend itself (seeding,
// runtime maintenance) as opposed to client replicas.
const serverReplica = "server"

// Registry holds the live in-memory document stores, one per board. A store
// is hydrated lazily on first access by replaying the board's delta log
// oldest-first with the replay origin, so hydration never re-persists or
// re-broadcasts anything.
type Registry struct {
	mu     sync.Mutex
	db     *gorm.DB
	stores map[uuid.UUID]*document.Store
}

func NewRegistry(db *gorm.DB) *Registry {
	return &Registry{
		db:     db,
		stores: make(map[uuid.UUID]*document.Store),
	}
}

// Get returns the live store for docID, hydrating it from the delta log if
// this is the first access since startup.
func (r *Registry) Get(ctx context.Context, docID uuid.UUID) (*document.Store, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.stores[docID]; ok {
		return s, nil
	}

	var rows []domain.DocDelta
	if err := r.db.WithContext(ctx).
		Where(`"doc_id" = ?`, docID).
		Order(`"createdAt" ASC`).
		Find(&rows).Error; err != nil {
		return nil, err
	}

	s := document.NewStore(docID.String(), serverReplica)
	for _, row := range rows {
		d, err := document.DecodeDelta(row.Payload)
		if err != nil {
			log.Warn().Str("doc_id", docID.String()).Str("delta_id", row.DeltaID.String()).
				Err(err).Msg("skipping undecodable delta during hydration")
			continue
		}
		d.Origin = document.OriginReplay
		if err := s.ApplyRemote(d); err != nil {
			log.Warn().Str("doc_id", docID.String()).Str("delta_id", row.DeltaID.String()).
				Err(err).Msg("skipping unappliable delta during hydration")
		}
	}

	r.stores[docID] = s
	return s, nil
}

// add registers a freshly created store without touching the delta log.
// Used by board creation, where the store starts empty by construction.
func (r *Registry) add(docID uuid.UUID, s *document.Store) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stores[docID] = s
}
