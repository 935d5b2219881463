package handlers

import (
	"github.com/gofiber/fiber/v2"
)

const maxAttemptsLimit = 500

// StatusHandler serves health, recent logs and the attempt ledger.
type StatusHandler struct {
	role   string
	ledger AttemptLister
	logs   LogSource
}

// Health reports liveness.
func (h *StatusHandler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status": "healthy",
		"role":   h.role,
	})
}

// Logs returns the buffered log lines.
func (h *StatusHandler) Logs(c *fiber.Ctx) error {
	if h.logs == nil {
		return c.JSON(fiber.Map{"logs": []string{}})
	}
	return c.JSON(fiber.Map{"logs": h.logs.GetLogs()})
}

// Attempts lists recent row attempts, optionally for one item.
func (h *StatusHandler) Attempts(c *fiber.Ctx) error {
	if h.ledger == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Attempt ledger is not enabled",
			"code":  "ERR_NO_LEDGER",
		})
	}

	limit := c.QueryInt("limit", 50)
	if limit < 1 || limit > maxAttemptsLimit {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "limit must be between 1 and 500",
			"code":  "ERR_BAD_LIMIT",
		})
	}

	attempts, err := h.ledger.RecentAttempts(c.UserContext(), c.Query("item_id"), limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
			"code":  "ERR_LEDGER",
		})
	}

	out := make([]fiber.Map, 0, len(attempts))
	for _, a := range attempts {
		out = append(out, fiber.Map{
			"pass_id":     a.PassID,
			"role":        a.Role,
			"row":         a.Row,
			"item_id":     a.ItemID,
			"outcome":     a.Outcome,
			"status":      a.Status,
			"error":       a.Error,
			"duration_ms": a.Duration.Milliseconds(),
			"created_at":  a.CreatedAt,
		})
	}
	return c.JSON(fiber.Map{"attempts": out})
}
