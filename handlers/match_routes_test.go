package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"testing"

	"game-match-system/models"
	"game-match-system/services"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestApp(t *testing.T) *fiber.App {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
	}
	if err := db.AutoMigrate(&models.Match{}, &models.MatchPlayer{}, &models.Move{}, &models.UserProgress{}); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}

	hub := services.NewHub()
	progression := services.NewProgressionService(db, rand.New(rand.NewSource(1)))
	ledger := services.NewMoveLedger(db)
	matchmaking := services.NewMatchmakingService(db, hub)
	tictactoe := services.NewTicTacToeService(db, ledger, hub, progression)
	rps := services.NewRPSService(db, ledger, hub, progression)
	events := services.NewEventService(hub)

	app := fiber.New()
	SetupMatchRoutes(app, matchmaking, tictactoe, rps, events)
	SetupProgressionRoutes(app, progression)
	return app
}

func doJSON(t *testing.T, app *fiber.App, method, path string, body interface{}, headers map[string]string) (int, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var parsed map[string]interface{}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &parsed); err != nil {
			t.Fatalf("parse response %q: %v", raw, err)
		}
	}
	return resp.StatusCode, parsed
}

func TestJoinQueueEndpoint(t *testing.T) {
	app := newTestApp(t)

	status, body := doJSON(t, app, http.MethodPost, "/queue/join",
		map[string]string{"gameType": models.GameTypeTicTacToe, "userId": "alice"}, nil)
	if status != http.StatusOK {
		t.Fatalf("first join status = %d, body %v", status, body)
	}
	if body["status"] != services.JoinStatusWaiting || body["matchId"] == "" {
		t.Errorf("first join body = %v", body)
	}

	status, body = doJSON(t, app, http.MethodPost, "/queue/join",
		map[string]string{"gameType": models.GameTypeTicTacToe, "userId": "bob"}, nil)
	if status != http.StatusOK {
		t.Fatalf("second join status = %d, body %v", status, body)
	}
	if body["status"] != services.JoinStatusMatched {
		t.Errorf("second join body = %v", body)
	}
	players, ok := body["players"].([]interface{})
	if !ok || len(players) != 2 {
		t.Errorf("matched players = %v, want 2 seats", body["players"])
	}
}

func TestJoinQueueEndpointValidation(t *testing.T) {
	app := newTestApp(t)

	status, _ := doJSON(t, app, http.MethodPost, "/queue/join",
		map[string]string{"gameType": models.GameTypeRPS}, nil)
	if status != http.StatusBadRequest {
		t.Errorf("missing userId status = %d, want 400", status)
	}

	status, _ = doJSON(t, app, http.MethodPost, "/queue/join",
		map[string]string{"gameType": "CHESS", "userId": "alice"}, nil)
	if status != http.StatusBadRequest {
		t.Errorf("unknown game type status = %d, want 400", status)
	}
}

func TestTicTacToeMoveEndpoint(t *testing.T) {
	app := newTestApp(t)

	doJSON(t, app, http.MethodPost, "/queue/join",
		map[string]string{"gameType": models.GameTypeTicTacToe, "userId": "alice"}, nil)
	_, joined := doJSON(t, app, http.MethodPost, "/queue/join",
		map[string]string{"gameType": models.GameTypeTicTacToe, "userId": "bob"}, nil)
	matchID, _ := joined["matchId"].(string)
	if matchID == "" {
		t.Fatalf("pairing gave no match id: %v", joined)
	}

	status, body := doJSON(t, app, http.MethodPost, "/match/tictactoe/move",
		map[string]interface{}{"matchId": matchID, "userId": "alice", "index": 0}, nil)
	if status != http.StatusOK || body["ok"] != true {
		t.Fatalf("legal move: status %d body %v", status, body)
	}
	if body["winner"] != nil {
		t.Errorf("opening move reported winner %v", body["winner"])
	}

	status, _ = doJSON(t, app, http.MethodPost, "/match/tictactoe/move",
		map[string]interface{}{"matchId": matchID, "userId": "alice", "index": 1}, nil)
	if status != http.StatusConflict {
		t.Errorf("out-of-turn move status = %d, want 409", status)
	}

	status, _ = doJSON(t, app, http.MethodPost, "/match/tictactoe/move",
		map[string]interface{}{"matchId": matchID, "userId": "bob"}, nil)
	if status != http.StatusBadRequest {
		t.Errorf("missing index status = %d, want 400", status)
	}
}

func TestRPSMoveEndpointReportsDuplicates(t *testing.T) {
	app := newTestApp(t)

	doJSON(t, app, http.MethodPost, "/queue/join",
		map[string]string{"gameType": models.GameTypeRPS, "userId": "alice"}, nil)
	_, joined := doJSON(t, app, http.MethodPost, "/queue/join",
		map[string]string{"gameType": models.GameTypeRPS, "userId": "bob"}, nil)
	matchID, _ := joined["matchId"].(string)

	status, body := doJSON(t, app, http.MethodPost, "/match/rps/move",
		map[string]string{"matchId": matchID, "userId": "alice", "choice": "rock"}, nil)
	if status != http.StatusOK || body["ok"] != true {
		t.Fatalf("first choice: status %d body %v", status, body)
	}

	status, body = doJSON(t, app, http.MethodPost, "/match/rps/move",
		map[string]string{"matchId": matchID, "userId": "alice", "choice": "paper"}, nil)
	if status != http.StatusOK {
		t.Fatalf("duplicate choice status = %d", status)
	}
	if body["message"] != "Already submitted for this round" {
		t.Errorf("duplicate body = %v", body)
	}
}

func TestGetMatchEndpoint(t *testing.T) {
	app := newTestApp(t)

	status, _ := doJSON(t, app, http.MethodGet, "/match/does-not-exist", nil, nil)
	if status != http.StatusNotFound {
		t.Errorf("unknown match status = %d, want 404", status)
	}

	_, joined := doJSON(t, app, http.MethodPost, "/queue/join",
		map[string]string{"gameType": models.GameTypeRPS, "userId": "alice"}, nil)
	matchID, _ := joined["matchId"].(string)

	status, body := doJSON(t, app, http.MethodGet, "/match/"+matchID, nil, nil)
	if status != http.StatusOK {
		t.Fatalf("snapshot status = %d", status)
	}
	if body["status"] != models.MatchStatusWaiting || body["id"] != matchID {
		t.Errorf("snapshot body = %v", body)
	}
	if _, ok := body["gameState"].(map[string]interface{}); !ok {
		t.Errorf("gameState should be inline JSON, got %T", body["gameState"])
	}
}

func TestUserProgressEndpoint(t *testing.T) {
	app := newTestApp(t)

	status, _ := doJSON(t, app, http.MethodGet, "/user/progress", nil, nil)
	if status != http.StatusUnauthorized {
		t.Errorf("missing identity status = %d, want 401", status)
	}

	status, body := doJSON(t, app, http.MethodGet, "/user/progress", nil,
		map[string]string{"X-User-ID": "alice"})
	if status != http.StatusOK {
		t.Fatalf("progress status = %d, body %v", status, body)
	}
	if body["rank"] != "BRONZE" || body["level"] != float64(1) {
		t.Errorf("fresh progress body = %v", body)
	}
}
