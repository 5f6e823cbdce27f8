package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

func newTestRouter(h *Handler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/api/public/feedback", h.FeedbackCreate)
	r.GET("/api/inbox", h.InboxList)
	r.POST("/api/inbox/:id/validate", h.InboxValidate)
	r.POST("/api/inbox/:id/assign/:email", h.InboxAssign)
	return r
}

func newTestHandler() *Handler {
	return &Handler{Validator: validator.New(), Logger: zerolog.Nop()}
}

func postJSON(t *testing.T, r *gin.Engine, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req, _ := http.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestFeedbackCreateRejectsUnknownStatus(t *testing.T) {
	r := newTestRouter(newTestHandler())
	w := postJSON(t, r, "/api/public/feedback", map[string]any{
		"user_question": "how do I renew",
		"timestamp":     1700000000.5,
		"status":        "meh",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
}

func TestFeedbackCreateRejectsMissingTimestamp(t *testing.T) {
	r := newTestRouter(newTestHandler())
	w := postJSON(t, r, "/api/public/feedback", map[string]any{
		"user_question": "how do I renew",
		"status":        "relevant",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
}

func TestInboxListRejectsUnknownStatus(t *testing.T) {
	r := newTestRouter(newTestHandler())
	req, _ := http.NewRequest(http.MethodGet, "/api/inbox?status=bogus", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
}

func TestInboxValidateRejectsBadID(t *testing.T) {
	r := newTestRouter(newTestHandler())
	w := postJSON(t, r, "/api/inbox/abc/validate", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
}

func TestInboxAssignRejectsInvalidEmail(t *testing.T) {
	r := newTestRouter(newTestHandler())
	w := postJSON(t, r, "/api/inbox/1/assign/not-an-email", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
}
