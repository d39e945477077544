// handlers/match_routes.go
package handlers

import (
	"encoding/json"
	"log"

	"game-match-system/middleware"
	"game-match-system/services"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

type joinQueueRequest struct {
	GameType string `json:"gameType"`
	UserID   string `json:"userId"`
}

type tictactoeMoveRequest struct {
	MatchID string `json:"matchId"`
	UserID  string `json:"userId"`
	Index   *int   `json:"index"`
}

type rpsMoveRequest struct {
	MatchID string `json:"matchId"`
	UserID  string `json:"userId"`
	Choice  string `json:"choice"`
}

// SetupMatchRoutes wires the matchmaking and gameplay surface plus the event
// stream endpoints.
func SetupMatchRoutes(
	app *fiber.App,
	matchmaking *services.MatchmakingService,
	tictactoe *services.TicTacToeService,
	rps *services.RPSService,
	events *services.EventService,
) {
	app.Post("/queue/join", func(c *fiber.Ctx) error {
		var req joinQueueRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON", "details": err.Error()})
		}
		if req.GameType == "" || req.UserID == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "missing gameType or userId"})
		}

		result, err := matchmaking.JoinQueue(req.GameType, req.UserID)
		if err != nil {
			return serviceError(c, err, "join queue")
		}

		if result.Status == services.JoinStatusMatched {
			return c.JSON(fiber.Map{
				"status":  result.Status,
				"matchId": result.MatchID,
				"players": result.Players,
			})
		}
		return c.JSON(fiber.Map{
			"status":  result.Status,
			"matchId": result.MatchID,
		})
	})

	app.Post("/match/tictactoe/move", func(c *fiber.Ctx) error {
		var req tictactoeMoveRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON", "details": err.Error()})
		}
		if req.MatchID == "" || req.UserID == "" || req.Index == nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "missing matchId, userId or index"})
		}

		winner, err := tictactoe.SubmitMove(req.MatchID, req.UserID, *req.Index)
		if err != nil {
			return serviceError(c, err, "tictactoe move")
		}

		resp := fiber.Map{"ok": true, "winner": nil}
		if winner != "" {
			resp["winner"] = winner
		}
		return c.JSON(resp)
	})

	app.Post("/match/rps/move", func(c *fiber.Ctx) error {
		var req rpsMoveRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON", "details": err.Error()})
		}
		if req.MatchID == "" || req.UserID == "" || req.Choice == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "missing matchId, userId or choice"})
		}

		duplicate, err := rps.SubmitMove(req.MatchID, req.UserID, req.Choice)
		if err != nil {
			return serviceError(c, err, "rps move")
		}
		if duplicate {
			return c.JSON(fiber.Map{"ok": true, "message": "Already submitted for this round"})
		}
		return c.JSON(fiber.Map{"ok": true})
	})

	// Reconnect/resync snapshot; event payloads are only invalidation hints,
	// this is the canonical state.
	app.Get("/match/:match_id", func(c *fiber.Ctx) error {
		match, err := matchmaking.GetMatch(c.Params("match_id"))
		if err != nil {
			return serviceError(c, err, "get match")
		}

		players := make([]fiber.Map, 0, len(match.Players))
		for _, p := range match.Players {
			players = append(players, fiber.Map{
				"userId": p.UserID,
				"seat":   p.Seat,
				"isHost": p.IsHost,
				"result": p.Result,
			})
		}
		return c.JSON(fiber.Map{
			"id":        match.ID,
			"gameType":  match.GameType,
			"status":    match.Status,
			"winnerId":  match.WinnerID,
			"startedAt": match.StartedAt,
			"endedAt":   match.EndedAt,
			"players":   players,
			"gameState": json.RawMessage(match.GameState),
			"createdAt": match.CreatedAt,
		})
	})

	// Event streams use query-token auth, see middleware.StreamAuthMiddleware.
	sse := app.Group("/events", middleware.StreamAuthMiddleware())
	sse.Get("/:channel", events.StreamChannelSSE)

	ws := app.Group("/ws", middleware.StreamAuthMiddleware())
	ws.Use("/:channel", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	ws.Get("/:channel", events.StreamChannelWS())
}

// serviceError maps a service error onto the HTTP taxonomy. Internal errors
// are logged and masked.
func serviceError(c *fiber.Ctx, err error, context string) error {
	status := services.StatusForError(err)
	if status == fiber.StatusInternalServerError {
		log.Printf("ERROR %s: %v", context, err)
		return c.Status(status).JSON(fiber.Map{"error": "internal error"})
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}
