package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRequireJSON(t *testing.T) {
	h := RequireJSON(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("accepts json post", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/v1/proof-requests", strings.NewReader("{}"))
		req.Header.Set("Content-Type", "application/json")
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("unexpected status: %d", rr.Code)
		}
	})

	t.Run("rejects non-json post", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/v1/proof-requests", strings.NewReader("<xml/>"))
		req.Header.Set("Content-Type", "text/xml")
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Code != http.StatusUnsupportedMediaType {
			t.Fatalf("unexpected status: %d", rr.Code)
		}
		if code := errorCode(t, rr); code != "UNSUPPORTED_MEDIA_TYPE" {
			t.Fatalf("unexpected code: %s", code)
		}
	})

	t.Run("ignores get requests", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/api-keys", nil)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("unexpected status: %d", rr.Code)
		}
	})
}
