package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/Hussein135-coder/souriana-extract-bot/config"
	"github.com/Hussein135-coder/souriana-extract-bot/model"
	"github.com/Hussein135-coder/souriana-extract-bot/service"
)

func newTestRouter() (*gin.Engine, *service.ConversationStore) {
	gin.SetMode(gin.TestMode)

	website := service.NewWebsiteService(&config.WebsiteConfig{})
	store := service.NewConversationStore()
	h := NewHealthHandler(website, store)

	router := gin.New()
	router.GET("/", h.Root)
	router.GET("/health", h.Health)
	router.GET("/status", h.Status)
	return router, store
}

func TestRoot(t *testing.T) {
	router, _ := newTestRouter()

	req := httptest.NewRequest("GET", "/", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Telegram bot is running!") {
		t.Errorf("Unexpected body: %s", w.Body.String())
	}
}

func TestHealth(t *testing.T) {
	router, _ := newTestRouter()

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("Invalid JSON: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("Expected status ok, got %v", body["status"])
	}
}

func TestStatus(t *testing.T) {
	router, store := newTestRouter()
	store.SetPending(1, model.Record{"name": "x"})

	req := httptest.NewRequest("GET", "/status", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("Invalid JSON: %v", err)
	}
	if body["login_status"] != string(service.LoginNotAttempted) {
		t.Errorf("Expected not_attempted, got %v", body["login_status"])
	}
	if body["has_token"] != false {
		t.Errorf("Expected has_token false, got %v", body["has_token"])
	}
	if body["active_chats"] != float64(1) {
		t.Errorf("Expected 1 active chat, got %v", body["active_chats"])
	}
}
