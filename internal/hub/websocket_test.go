package hub

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gymstack/presenced/internal/logger"
)

func TestValidateUserID(t *testing.T) {
	valid := []string{"u1", "a", "member_42", "3fa85f64-5717-4562-b3fc-2c963f66afa6"}
	for _, id := range valid {
		if !validateUserID(id) {
			t.Errorf("validateUserID(%q) = false, want true", id)
		}
	}

	invalid := []string{"", "has space", "semi;colon", strings.Repeat("x", 65)}
	for _, id := range invalid {
		if validateUserID(id) {
			t.Errorf("validateUserID(%q) = true, want false", id)
		}
	}
}

func TestServeWsRejectsMissingUser(t *testing.T) {
	h := NewHub(nil, nil, nil, logger.NewLogger("test"))

	for _, target := range []string{"/ws", "/ws?user=bad%20id"} {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		rec := httptest.NewRecorder()
		h.ServeWs(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("ServeWs(%q) status = %d, want 400", target, rec.Code)
		}
	}
}
