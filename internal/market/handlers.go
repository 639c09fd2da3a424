package market

import (
	"context"
	"errors"

	"agora-backend/internal/middleware"
	"agora-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// DocResolver maps a slug-or-canonical-id path parameter to the canonical
// board id. Implemented by the boards service.
type DocResolver interface {
	Resolve(ctx context.Context, slugOrID string) (uuid.UUID, error)
}

// Handlers bundles market handlers. Enabled mirrors the deployment feature
// flag: a disabled market 404s on every route.
type Handlers struct {
	Service  *Service
	Resolver DocResolver
	Enabled  bool
}

func (h *Handlers) disabled(c *fiber.Ctx) (bool, error) {
	if h.Enabled {
		return false, nil
	}
	return true, response.Error(c, ErrMarketDisabled.Error(), 404, nil)
}

func (h *Handlers) callerID(c *fiber.Ctx) (uuid.UUID, bool) {
	user := middleware.GetUser(c)
	if user == nil {
		return uuid.Nil, false
	}
	m, ok := user.(map[string]interface{})
	if !ok {
		return uuid.Nil, false
	}
	idStr, _ := m["user_id"].(string)
	id, err := uuid.Parse(idStr)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handlers) resolveDoc(c *fiber.Ctx) (uuid.UUID, error) {
	docID, err := h.Resolver.Resolve(c.Context(), c.Params("docId"))
	if err != nil {
		return uuid.Nil, response.Error(c, "Board not found", 404, nil)
	}
	return docID, nil
}

type buySharesRequest struct {
	SecurityID  string `json:"securityId"`
	DeltaScaled string `json:"deltaScaled"`
}

// BuyShares POST /api/v1/market/:docId/buy-shares
func (h *Handlers) BuyShares(c *fiber.Ctx) error {
	if off, err := h.disabled(c); off {
		return err
	}
	userID, ok := h.callerID(c)
	if !ok {
		return response.Unauthorized(c, "Unauthorized")
	}
	var req buySharesRequest
	if err := c.BodyParser(&req); err != nil {
		return response.Error(c, "Invalid request body", 400, nil)
	}
	docID, ferr := h.resolveDoc(c)
	if ferr != nil {
		return ferr
	}

	result, err := h.Service.BuyShares(c.Context(), docID, userID, req.SecurityID, req.DeltaScaled)
	if err != nil {
		switch {
		case errors.Is(err, ErrMissingSecurity), errors.Is(err, ErrInvalidAmount):
			return response.Error(c, err.Error(), 400, nil)
		case errors.Is(err, ErrSecurityNotTradable):
			return response.Error(c, err.Error(), 400, nil)
		case errors.Is(err, ErrContention):
			return response.Error(c, err.Error(), 503, nil)
		default:
			return response.Error(c, "Internal Server Error", 500, nil)
		}
	}
	return response.Success(c, "Shares purchased successfully", result, nil)
}

// Holdings GET /api/v1/market/:docId/holdings
func (h *Handlers) Holdings(c *fiber.Ctx) error {
	if off, err := h.disabled(c); off {
		return err
	}
	userID, ok := h.callerID(c)
	if !ok {
		return response.Unauthorized(c, "Unauthorized")
	}
	docID, ferr := h.resolveDoc(c)
	if ferr != nil {
		return ferr
	}

	holdings, err := h.Service.GetUserHoldings(c.Context(), docID, userID)
	if err != nil {
		return response.Error(c, "Internal Server Error", 500, nil)
	}
	return response.Success(c, "Holdings fetched successfully", fiber.Map{"holdings": holdings}, nil)
}

type breakdownRequest struct {
	SecurityID string `json:"securityId"`
}

// HoldingsBreakdown POST /api/v1/market/:docId/holdings-breakdown
func (h *Handlers) HoldingsBreakdown(c *fiber.Ctx) error {
	if off, err := h.disabled(c); off {
		return err
	}
	if _, ok := h.callerID(c); !ok {
		return response.Unauthorized(c, "Unauthorized")
	}
	var req breakdownRequest
	if err := c.BodyParser(&req); err != nil || req.SecurityID == "" {
		return response.Error(c, ErrMissingSecurity.Error(), 400, nil)
	}
	docID, ferr := h.resolveDoc(c)
	if ferr != nil {
		return ferr
	}

	rows, err := h.Service.GetHoldingsBreakdown(c.Context(), docID, req.SecurityID)
	if err != nil {
		if errors.Is(err, ErrMissingSecurity) {
			return response.Error(c, err.Error(), 400, nil)
		}
		return response.Error(c, "Internal Server Error", 500, nil)
	}
	return response.Success(c, "Breakdown fetched successfully", fiber.Map{"rows": rows}, nil)
}

type priceHistoryRequest struct {
	SecurityID      string `json:"securityId"`
	Limit           int    `json:"limit"`
	IncludeBaseline bool   `json:"includeBaseline"`
}

// PriceHistory POST /api/v1/market/:docId/price-history
func (h *Handlers) PriceHistory(c *fiber.Ctx) error {
	if off, err := h.disabled(c); off {
		return err
	}
	if _, ok := h.callerID(c); !ok {
		return response.Unauthorized(c, "Unauthorized")
	}
	var req priceHistoryRequest
	if err := c.BodyParser(&req); err != nil || req.SecurityID == "" {
		return response.Error(c, ErrMissingSecurity.Error(), 400, nil)
	}
	docID, ferr := h.resolveDoc(c)
	if ferr != nil {
		return ferr
	}

	points, err := h.Service.GetPriceHistory(c.Context(), docID, req.SecurityID, req.Limit, req.IncludeBaseline)
	if err != nil {
		if errors.Is(err, ErrMissingSecurity) {
			return response.Error(c, err.Error(), 400, nil)
		}
		return response.Error(c, "Internal Server Error", 500, nil)
	}
	return response.Success(c, "Price history fetched successfully", fiber.Map{"points": points}, nil)
}
