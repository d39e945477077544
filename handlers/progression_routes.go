// handlers/progression_routes.go
package handlers

import (
	"game-match-system/middleware"
	"game-match-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupProgressionRoutes(app *fiber.App, progressionService *services.ProgressionService) {
	// 🔐 Secured routes, require user context forwarded by the Gateway
	securedGroup := app.Group("/user", middleware.UserContextMiddleware())

	securedGroup.Get("/progress", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)

		prog, err := progressionService.EnsureProgressRecord(userID)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to load progress record",
				"cause": err.Error(),
			})
		}

		return c.JSON(fiber.Map{
			"id":               prog.ID,
			"xp":               prog.XP,
			"level":            prog.Level,
			"rank":             prog.Rank,
			"xp_for_next":      services.XPForNextLevel(prog.Level),
			"total_matches":    prog.TotalMatches,
			"matches_won":      prog.MatchesWon,
			"matches_lost":     prog.MatchesLost,
			"matches_drawn":    prog.MatchesDrawn,
			"last_level_up_at": prog.LastLevelUpAt,
			"last_rank_up_at":  prog.LastRankUpAt,
		})
	})
}
