package boards

import (
	"encoding/json"
	"errors"

	"agora-backend/internal/middleware"
	"agora-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// Handlers bundles board handlers. Collab mirrors the deployment feature
// flag: with collaboration off the delta ingest route 404s while read
// routes stay up.
type Handlers struct {
	Service *Service
	Collab  bool
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
	docID, err := h.Service.Resolve(c.Context(), c.Params("docId"))
	if err != nil {
		return uuid.Nil, response.Error(c, ErrBoardNotFound.Error(), 404, nil)
	}
	return docID, nil
}

type createBoardRequest struct {
	Title string `json:"title"`
	Slug  string `json:"slug"`
}

// CreateBoard POST /api/v1/boards
func (h *Handlers) CreateBoard(c *fiber.Ctx) error {
	userID, ok := h.callerID(c)
	if !ok {
		return response.Unauthorized(c, "Unauthorized")
	}
	var req createBoardRequest
	if err := c.BodyParser(&req); err != nil {
		return response.Error(c, "Invalid request body", 400, nil)
	}

	board, err := h.Service.CreateBoard(c.Context(), userID, req.Title, req.Slug)
	if err != nil {
		switch {
		case errors.Is(err, ErrMissingTitle):
			return response.Error(c, err.Error(), 400, nil)
		case errors.Is(err, ErrSlugTaken):
			return response.Error(c, err.Error(), 409, nil)
		default:
			return response.Error(c, "Internal Server Error", 500, nil)
		}
	}
	return response.SuccessCreated(c, "Board created successfully", board, nil)
}

// ResolveSlug GET /api/v1/boards/resolve/:slug
func (h *Handlers) ResolveSlug(c *fiber.Ctx) error {
	if _, ok := h.callerID(c); !ok {
		return response.Unauthorized(c, "Unauthorized")
	}
	docID, err := h.Service.Resolve(c.Context(), c.Params("slug"))
	if err != nil {
		if errors.Is(err, ErrBoardNotFound) {
			return response.Error(c, err.Error(), 404, nil)
		}
		return response.Error(c, "Internal Server Error", 500, nil)
	}
	return response.Success(c, "Board resolved successfully", fiber.Map{"docId": docID.String()}, nil)
}

// PostDelta POST /api/v1/boards/:docId/deltas
// The request body is the encoded delta itself.
func (h *Handlers) PostDelta(c *fiber.Ctx) error {
	if !h.Collab {
		return response.Error(c, ErrCollabDisabled.Error(), 404, nil)
	}
	userID, ok := h.callerID(c)
	if !ok {
		return response.Unauthorized(c, "Unauthorized")
	}
	docID, ferr := h.resolveDoc(c)
	if ferr != nil {
		return ferr
	}

	if err := h.Service.IngestDelta(c.Context(), docID, userID, c.Body()); err != nil {
		switch {
		case errors.Is(err, ErrInvalidDelta), errors.Is(err, ErrWrongDocument):
			return response.Error(c, err.Error(), 400, nil)
		default:
			return response.Error(c, "Internal Server Error", 500, nil)
		}
	}
	return response.Success(c, "Delta applied successfully", nil, nil)
}

// Snapshot GET /api/v1/boards/:docId/snapshot
func (h *Handlers) Snapshot(c *fiber.Ctx) error {
	if _, ok := h.callerID(c); !ok {
		return response.Unauthorized(c, "Unauthorized")
	}
	docID, ferr := h.resolveDoc(c)
	if ferr != nil {
		return ferr
	}

	snapshot, err := h.Service.Snapshot(c.Context(), docID)
	if err != nil {
		return response.Error(c, "Internal Server Error", 500, nil)
	}
	return response.Success(c, "Snapshot fetched successfully", fiber.Map{"snapshot": json.RawMessage(snapshot)}, nil)
}

// Structure GET /api/v1/boards/:docId/structure
func (h *Handlers) Structure(c *fiber.Ctx) error {
	if _, ok := h.callerID(c); !ok {
		return response.Unauthorized(c, "Unauthorized")
	}
	docID, ferr := h.resolveDoc(c)
	if ferr != nil {
		return ferr
	}

	result, err := h.Service.Structure(c.Context(), docID)
	if err != nil {
		return response.Error(c, "Internal Server Error", 500, nil)
	}
	return response.Success(c, "Structure fetched successfully", result, nil)
}
