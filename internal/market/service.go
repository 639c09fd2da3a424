// Package market executes buy orders against the securities of a reconciled
// board. Holdings, trades, and price history are persisted through GORM;
// the per-document MarketState.version row is the single point of mutual
// exclusion for trade application.
package market

import (
	"context"
	"errors"
	"time"

	"agora-backend/internal/document"
	"agora-backend/internal/domain"
	"agora-backend/internal/pkg/fixedpoint"
	"agora-backend/internal/pricing"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// SecurityProvider yields the current reconciled security set for a
// document. Implemented by the boards registry.
type SecurityProvider interface {
	Securities(ctx context.Context, docID uuid.UUID) (map[string]struct{}, error)
}

const defaultMaxRetries = 5

// Service executes and reads trades.
type Service struct {
	DB         *gorm.DB
	Pricing    pricing.Engine
	Securities SecurityProvider
	MaxRetries int

	// beforeApply runs between quoting and the transactional apply.
	// Test seam for provoking version conflicts.
	beforeApply func()
}

// BuyResult is the outcome of a buy order.
type BuyResult struct {
	Cost       string `json:"cost"`
	NewHolding string `json:"newHolding"`
	PriceAfter string `json:"priceAfter"`
}

// BuyShares validates, prices, and atomically applies a buy order.
// Holding upsert, trade insert, and version bump succeed or fail together;
// a stale version aborts the transaction and the order is retried from the
// top with backoff, up to MaxRetries attempts.
func (s *Service) BuyShares(ctx context.Context, docID, userID uuid.UUID, securityID, deltaScaled string) (BuyResult, error) {
	if securityID == "" {
		return BuyResult{}, ErrMissingSecurity
	}
	secID := document.StripAnchor(securityID)

	delta, err := fixedpoint.Parse(deltaScaled)
	if err != nil {
		return BuyResult{}, ErrInvalidAmount
	}

	set, err := s.Securities.Securities(ctx, docID)
	if err != nil {
		return BuyResult{}, err
	}
	if _, ok := set[secID]; !ok {
		return BuyResult{}, ErrSecurityNotTradable
	}

	// One trade id for all attempts: if an apply fails ambiguously we can
	// check the trade log instead of risking double-application.
	tradeID := uuid.New()

	retries := s.MaxRetries
	if retries <= 0 {
		retries = defaultMaxRetries
	}
	for attempt := 1; attempt <= retries; attempt++ {
		result, err := s.tryApply(ctx, tradeID, docID, userID, secID, delta)
		if err == nil {
			return result, nil
		}
		if errors.Is(err, errVersionConflict) {
			log.Info().Str("doc_id", docID.String()).Str("security_id", secID).Int("attempt", attempt).Msg("Trade hit version conflict, retrying")
			time.Sleep(time.Duration(attempt) * 10 * time.Millisecond)
			continue
		}
		// Ambiguous failure: the transaction may or may not have committed.
		if applied, res := s.findApplied(ctx, tradeID); applied {
			return res, nil
		}
		return BuyResult{}, err
	}
	return BuyResult{}, ErrContention
}

func (s *Service) tryApply(ctx context.Context, tradeID, docID, userID uuid.UUID, secID string, delta fixedpoint.Amount) (BuyResult, error) {
	version, err := s.currentVersion(ctx, docID)
	if err != nil {
		return BuyResult{}, err
	}

	position, err := s.aggregatePosition(ctx, docID, secID)
	if err != nil {
		return BuyResult{}, err
	}
	quote, err := s.Pricing.Quote(position, delta)
	if err != nil {
		return BuyResult{}, err
	}

	if s.beforeApply != nil {
		s.beforeApply()
	}

	var newHolding fixedpoint.Amount
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Compare-and-swap: the condition is embedded in the update itself,
		// so no trade can commit against a stale version.
		res := tx.Model(&domain.MarketState{}).
			Where("doc_id = ? AND version = ?", docID, version).
			Update("version", version+1)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errVersionConflict
		}

		var holding domain.Holding
		err := tx.Where("doc_id = ? AND user_id = ? AND security_id = ?", docID, userID, secID).First(&holding).Error
		switch {
		case err == nil:
			cur, perr := fixedpoint.Parse(holding.AmountScaled)
			if perr != nil {
				return perr
			}
			newHolding = cur.Add(delta)
			holding.AmountScaled = newHolding.String()
			if err := tx.Save(&holding).Error; err != nil {
				return err
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
			newHolding = delta
			holding = domain.Holding{
				DocID:        docID,
				UserID:       userID,
				SecurityID:   secID,
				AmountScaled: newHolding.String(),
			}
			if err := tx.Create(&holding).Error; err != nil {
				return err
			}
		default:
			return err
		}

		trade := domain.Trade{
			TradeID:          tradeID,
			DocID:            docID,
			UserID:           userID,
			SecurityID:       secID,
			DeltaScaled:      delta.String(),
			CostScaled:       quote.Cost.String(),
			PriceAfterScaled: quote.PriceAfter.String(),
		}
		if err := tx.Create(&trade).Error; err != nil {
			return err
		}

		return tx.Create(&domain.PricePoint{
			DocID:       docID,
			SecurityID:  secID,
			PriceScaled: quote.PriceAfter.String(),
		}).Error
	})
	if err != nil {
		return BuyResult{}, err
	}
	return BuyResult{
		Cost:       quote.Cost.String(),
		NewHolding: newHolding.String(),
		PriceAfter: quote.PriceAfter.String(),
	}, nil
}

// currentVersion reads the document's market state, creating the row at
// version 0 on first use.
func (s *Service) currentVersion(ctx context.Context, docID uuid.UUID) (int64, error) {
	var state domain.MarketState
	err := s.DB.WithContext(ctx).Where("doc_id = ?", docID).First(&state).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		state = domain.MarketState{DocID: docID, Version: 0}
		if err := s.DB.WithContext(ctx).Create(&state).Error; err != nil {
			return 0, err
		}
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return state.Version, nil
}

// aggregatePosition sums every user's holding of one security with exact
// integer arithmetic.
func (s *Service) aggregatePosition(ctx context.Context, docID uuid.UUID, secID string) (fixedpoint.Amount, error) {
	var holdings []domain.Holding
	if err := s.DB.WithContext(ctx).Where("doc_id = ? AND security_id = ?", docID, secID).Find(&holdings).Error; err != nil {
		return fixedpoint.Amount{}, err
	}
	total := fixedpoint.Zero()
	for _, h := range holdings {
		a, err := fixedpoint.Parse(h.AmountScaled)
		if err != nil {
			return fixedpoint.Amount{}, err
		}
		total = total.Add(a)
	}
	return total, nil
}

func (s *Service) findApplied(ctx context.Context, tradeID uuid.UUID) (bool, BuyResult) {
	var trade domain.Trade
	if err := s.DB.WithContext(ctx).Where("trade_id = ?", tradeID).First(&trade).Error; err != nil {
		return false, BuyResult{}
	}
	var holding domain.Holding
	newHolding := ""
	if err := s.DB.WithContext(ctx).Where("doc_id = ? AND user_id = ? AND security_id = ?", trade.DocID, trade.UserID, trade.SecurityID).First(&holding).Error; err == nil {
		newHolding = holding.AmountScaled
	}
	return true, BuyResult{Cost: trade.CostScaled, NewHolding: newHolding, PriceAfter: trade.PriceAfterScaled}
}

// GetUserHoldings returns the calling user's holdings for a document as a
// normalized securityId → amountScaled map.
func (s *Service) GetUserHoldings(ctx context.Context, docID, userID uuid.UUID) (map[string]string, error) {
	var holdings []domain.Holding
	if err := s.DB.WithContext(ctx).Where("doc_id = ? AND user_id = ?", docID, userID).Find(&holdings).Error; err != nil {
		return nil, err
	}
	out := make(map[string]string, len(holdings))
	for _, h := range holdings {
		out[document.StripAnchor(h.SecurityID)] = h.AmountScaled
	}
	return out, nil
}

// BreakdownRow is one user's position in a security, for display.
type BreakdownRow struct {
	UserID       uuid.UUID `json:"userId"`
	AmountScaled string    `json:"amountScaled"`
	DisplayName  string    `json:"displayName"`
}

// GetHoldingsBreakdown returns all users' holdings of one security.
func (s *Service) GetHoldingsBreakdown(ctx context.Context, docID uuid.UUID, securityID string) ([]BreakdownRow, error) {
	if securityID == "" {
		return nil, ErrMissingSecurity
	}
	secID := document.StripAnchor(securityID)

	var holdings []domain.Holding
	if err := s.DB.WithContext(ctx).Where("doc_id = ? AND security_id = ?", docID, secID).Find(&holdings).Error; err != nil {
		return nil, err
	}
	rows := make([]BreakdownRow, 0, len(holdings))
	for _, h := range holdings {
		row := BreakdownRow{UserID: h.UserID, AmountScaled: h.AmountScaled}
		var user domain.User
		if err := s.DB.WithContext(ctx).Where("user_id = ?", h.UserID).First(&user).Error; err == nil {
			row.DisplayName = user.Fullname
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// PriceHistoryPoint is one point of a security's price series.
type PriceHistoryPoint struct {
	PriceScaled string    `json:"priceScaled"`
	CreatedAt   time.Time `json:"createdAt"`
	Baseline    bool      `json:"baseline,omitempty"`
}

const defaultHistoryLimit = 100

// GetPriceHistory returns the most recent points in chronological order.
// With includeBaseline, a synthetic point at the curve's zero-position price
// is prepended when the history is empty or sparser than the limit.
func (s *Service) GetPriceHistory(ctx context.Context, docID uuid.UUID, securityID string, limit int, includeBaseline bool) ([]PriceHistoryPoint, error) {
	if securityID == "" {
		return nil, ErrMissingSecurity
	}
	secID := document.StripAnchor(securityID)
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	var points []domain.PricePoint
	if err := s.DB.WithContext(ctx).
		Where("doc_id = ? AND security_id = ?", docID, secID).
		Order("\"createdAt\" DESC").
		Limit(limit).
		Find(&points).Error; err != nil {
		return nil, err
	}

	out := make([]PriceHistoryPoint, 0, len(points)+1)
	if includeBaseline && len(points) < limit {
		quote, err := s.Pricing.Quote(fixedpoint.Zero(), fixedpoint.Zero())
		if err != nil {
			return nil, err
		}
		out = append(out, PriceHistoryPoint{PriceScaled: quote.PriceAfter.String(), Baseline: true})
	}
	for i := len(points) - 1; i >= 0; i-- {
		out = append(out, PriceHistoryPoint{PriceScaled: points[i].PriceScaled, CreatedAt: points[i].CreatedAt})
	}
	return out, nil
}
