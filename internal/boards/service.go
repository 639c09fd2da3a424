package boards

import (
	"context"
	"errors"
	"strings"

	"agora-backend/internal/document"
	"agora-backend/internal/domain"
	"agora-backend/internal/reconcile"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Service owns board lifecycle and the collaboration transport: delta
// ingest, the append-only delta log, and fan-out over Redis pub/sub.
type Service struct {
	DB       *gorm.DB
	Rdb      *redis.Client
	Registry *Registry
}

// DeltaChannel is the Redis pub/sub channel deltas for a document are
// fanned out on.
func DeltaChannel(docID string) string {
	return "doc:deltas:" + docID
}

func slugify(title string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(title) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		case !lastDash:
			b.WriteByte('-')
			lastDash = true
		}
	}
	return strings.Trim(b.String(), "-")
}

// CreateBoard creates the board row, its zero-version market state, and the
// seed delta carrying the root statement node. The seed travels through the
// same delta log as every other edit so hydration needs no special case.
func (s *Service) CreateBoard(ctx context.Context, userID uuid.UUID, title, slug string) (*domain.Board, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, ErrMissingTitle
	}
	if slug == "" {
		slug = slugify(title)
		if slug == "" {
			slug = uuid.NewString()[:8]
		}
	}

	var count int64
	if err := s.DB.WithContext(ctx).Model(&domain.Board{}).
		Where(`"slug" = ?`, slug).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, ErrSlugTaken
	}

	board := &domain.Board{
		BoardID:    uuid.New(),
		Slug:       slug,
		Title:      title,
		RootNodeID: uuid.NewString(),
		CreatedBy:  userID,
	}

	store := document.NewStore(board.BoardID.String(), serverReplica)
	seed, err := store.ApplyLocal(document.OriginRuntime, func(tx *document.Txn) error {
		tx.PutNode(document.Node{
			ID:   board.RootNodeID,
			Type: document.NodeStatement,
			Data: document.StatementData{Statement: title},
		})
		tx.SetText(board.RootNodeID, title)
		return nil
	})
	if err != nil {
		return nil, err
	}
	payload, err := seed.Encode()
	if err != nil {
		return nil, err
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(board).Error; err != nil {
			return err
		}
		if err := tx.Create(&domain.MarketState{DocID: board.BoardID, Version: 0}).Error; err != nil {
			return err
		}
		return tx.Create(&domain.DocDelta{
			DocID:   board.BoardID,
			Payload: datatypes.JSON(payload),
			Origin:  string(document.OriginRuntime),
			UserID:  &userID,
		}).Error
	})
	if err != nil {
		return nil, err
	}

	s.Registry.add(board.BoardID, store)
	s.publish(ctx, board.BoardID, payload)
	return board, nil
}

// Resolve maps a slug or canonical id to the canonical board id.
func (s *Service) Resolve(ctx context.Context, slugOrID string) (uuid.UUID, error) {
	var board domain.Board
	q := s.DB.WithContext(ctx)
	if id, err := uuid.Parse(slugOrID); err == nil {
		q = q.Where(`"board_id" = ?`, id)
	} else {
		q = q.Where(`"slug" = ?`, slugOrID)
	}
	if err := q.First(&board).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return uuid.Nil, ErrBoardNotFound
		}
		return uuid.Nil, err
	}
	return board.BoardID, nil
}

// IngestDelta applies one encoded delta to the live store, appends it to
// the delta log, and fans it out to subscribers. Replay deltas are applied
// only: persisting or re-publishing them would loop the log back on itself.
func (s *Service) IngestDelta(ctx context.Context, docID, userID uuid.UUID, payload []byte) error {
	d, err := document.DecodeDelta(payload)
	if err != nil || !d.Origin.Valid() {
		return ErrInvalidDelta
	}
	if d.DocID != "" && d.DocID != docID.String() {
		return ErrWrongDocument
	}

	store, err := s.Registry.Get(ctx, docID)
	if err != nil {
		return err
	}
	d.DocID = docID.String()
	if err := store.ApplyRemote(d); err != nil {
		return err
	}

	if d.Origin == document.OriginReplay {
		return nil
	}

	if err := s.DB.WithContext(ctx).Create(&domain.DocDelta{
		DocID:   docID,
		Payload: datatypes.JSON(payload),
		Origin:  string(d.Origin),
		UserID:  &userID,
	}).Error; err != nil {
		return err
	}
	s.publish(ctx, docID, payload)
	return nil
}

func (s *Service) publish(ctx context.Context, docID uuid.UUID, payload []byte) {
	if s.Rdb == nil {
		return
	}
	if err := s.Rdb.Publish(ctx, DeltaChannel(docID.String()), payload).Err(); err != nil {
		log.Warn().Str("doc_id", docID.String()).Err(err).Msg("failed to publish delta")
	}
}

// Snapshot returns the deterministic JSON snapshot of the live document.
func (s *Service) Snapshot(ctx context.Context, docID uuid.UUID) ([]byte, error) {
	store, err := s.Registry.Get(ctx, docID)
	if err != nil {
		return nil, err
	}
	return store.Snapshot()
}

// Structure reconciles the live document into its tradable form.
func (s *Service) Structure(ctx context.Context, docID uuid.UUID) (reconcile.Result, error) {
	snapshot, err := s.Snapshot(ctx, docID)
	if err != nil {
		return reconcile.Result{}, err
	}
	return reconcile.Reconcile(snapshot)
}

// Securities implements the market's security provider: the set of ids
// currently tradable on this document.
func (s *Service) Securities(ctx context.Context, docID uuid.UUID) (map[string]struct{}, error) {
	result, err := s.Structure(ctx, docID)
	if err != nil {
		return nil, err
	}
	return result.SecuritySet(), nil
}
