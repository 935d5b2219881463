package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/codebuildervaibhav/transcript-queue/internal/queue"
)

// ItemsHandler lists and enqueues work items
type ItemsHandler struct {
	table  Table
	logger zerolog.Logger
}

// NewItemsHandler creates a new items handler
func NewItemsHandler(table Table, logger zerolog.Logger) *ItemsHandler {
	return &ItemsHandler{table: table, logger: logger}
}

// AddRequest represents the request body
type AddRequest struct {
	URL string `json:"url"`
}

// Add appends a new row for a video URL
func (h *ItemsHandler) Add(c *fiber.Ctx) error {
	var req AddRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
			"code":  "ERR_INVALID_BODY",
		})
	}

	if req.URL == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "URL is required",
			"code":  "ERR_NO_URL",
		})
	}

	itemID := queue.ParseVideoID(req.URL)
	if itemID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Could not find a video id in URL",
			"code":  "ERR_INVALID_URL",
		})
	}

	ctx := c.UserContext()
	rows, err := h.table.ReadAll(ctx)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to read table")
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": "Failed to read table",
			"code":  "ERR_STORE",
		})
	}
	for _, item := range queue.ItemsFromRows(rows) {
		if item.ItemID == itemID {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error": "Item already queued",
				"code":  "ERR_DUPLICATE",
				"row":   item.Row,
			})
		}
	}

	if err := h.table.Append(ctx, [][]string{queue.NewRow(req.URL, itemID)}); err != nil {
		h.logger.Error().Err(err).Str("item_id", itemID).Msg("Failed to append row")
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": "Failed to append row",
			"code":  "ERR_STORE",
		})
	}
	h.logger.Info().Str("item_id", itemID).Msg("Item queued")

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"item_id": itemID,
		"status":  "queued",
	})
}

// List returns per-status counts and the rows still in flight
func (h *ItemsHandler) List(c *fiber.Ctx) error {
	rows, err := h.table.ReadAll(c.UserContext())
	if err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": "Failed to read table",
			"code":  "ERR_STORE",
		})
	}

	items := queue.ItemsFromRows(rows)
	counts := make(map[string]int)
	pending := make([]fiber.Map, 0)
	for _, item := range items {
		st := item.Status()
		counts[st.Label()]++
		if st.Stage != queue.StageDone && !item.HasTranscript() {
			pending = append(pending, fiber.Map{
				"row":     item.Row,
				"item_id": item.ItemID,
				"status":  st.Label(),
			})
		}
	}

	return c.JSON(fiber.Map{
		"total":   len(items),
		"counts":  counts,
		"pending": pending,
	})
}
