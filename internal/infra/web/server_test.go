//go:build !integration

package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"pizza-order-bot/internal/config"
	"pizza-order-bot/internal/domain"
	"pizza-order-bot/internal/domain/model"
)

const testSecret = "test-admin-jwt-secret-please-change"

type mockAdmin struct {
	sessions map[model.SessionKey]*model.Session
	resetErr error
	resets   []model.SessionKey
}

func (m *mockAdmin) Inspect(_ context.Context, key model.SessionKey) (*model.Session, error) {
	if s, ok := m.sessions[key]; ok {
		return s, nil
	}
	return model.NewSession(key), nil
}

func (m *mockAdmin) Reset(_ context.Context, key model.SessionKey) error {
	if m.resetErr != nil {
		return m.resetErr
	}
	m.resets = append(m.resets, key)
	return nil
}

type mockInvoices struct{ invs []model.Invoice }

func (m *mockInvoices) ListBySession(_ context.Context, key model.SessionKey, limit int) ([]model.Invoice, error) {
	var out []model.Invoice
	for _, inv := range m.invs {
		if inv.Channel == key.Channel && inv.UserID == key.UserID {
			out = append(out, inv)
		}
	}
	return out, nil
}

type mockWebhook struct{ verified, received int }

func (m *mockWebhook) Verify(w http.ResponseWriter, _ *http.Request) {
	m.verified++
	_, _ = w.Write([]byte("challenge"))
}

func (m *mockWebhook) Receive(w http.ResponseWriter, _ *http.Request) {
	m.received++
	_, _ = w.Write([]byte("EVENT_RECEIVED"))
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func newTestServer(t *testing.T, deps Deps) *Server {
	t.Helper()
	nop := zerolog.Nop()
	if deps.Metrics == nil {
		deps.Metrics = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("# metrics")) })
	}
	return NewServer(config.HTTPConfig{Port: 0, WriteTimeout: time.Second}, deps, &nop)
}

func do(t *testing.T, h http.Handler, method, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAuthenticator(t *testing.T) {
	auth := NewAuthenticator(testSecret)

	t.Run("round trip", func(t *testing.T) {
		tok, err := auth.Mint("ops", time.Minute)
		if err != nil {
			t.Fatal(err)
		}
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "bearer "+tok)
		claims, err := auth.ParseFromRequest(req)
		if err != nil || claims.Subject != "ops" || claims.Role != "admin" {
			t.Fatalf("claims=%+v err=%v", claims, err)
		}
	})

	t.Run("expired token", func(t *testing.T) {
		tok, _ := auth.Mint("ops", time.Minute)
		later := NewAuthenticator(testSecret)
		later.now = func() time.Time { return time.Now().Add(time.Hour) }
		if _, err := later.parse(tok); !errors.Is(err, errInvalidToken) {
			t.Fatalf("expected invalid token, got %v", err)
		}
	})

	t.Run("foreign secret", func(t *testing.T) {
		tok, _ := NewAuthenticator("another-secret").Mint("ops", time.Minute)
		if _, err := auth.parse(tok); !errors.Is(err, errInvalidToken) {
			t.Fatalf("expected invalid token, got %v", err)
		}
	})

	t.Run("missing header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Basic abc")
		if _, err := auth.ParseFromRequest(req); !errors.Is(err, errMissingToken) {
			t.Fatalf("expected missing token, got %v", err)
		}
	})
}

func TestAdminRoutes(t *testing.T) {
	auth := NewAuthenticator(testSecret)
	token, err := auth.Mint("ops", time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	key := model.SessionKey{Channel: model.ChannelTelegram, UserID: "42"}
	sess := model.NewSession(key)
	sess.State = model.StateAwaitingPayment
	sess.DeliveryCost = 100
	sess.UpdatedAt = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	admin := &mockAdmin{sessions: map[model.SessionKey]*model.Session{key: sess}}
	invoices := &mockInvoices{invs: []model.Invoice{
		{Payload: "inv-1", Channel: model.ChannelTelegram, UserID: "42", Amount: 60000, Currency: "RUB", Status: model.InvoicePending},
		{Payload: "inv-2", Channel: model.ChannelFacebook, UserID: "42", Amount: 1, Currency: "RUB"},
	}}
	h := newTestServer(t, Deps{Sessions: admin, Invoices: invoices, Auth: auth}).Handler()

	t.Run("no credentials -> 401", func(t *testing.T) {
		rec := do(t, h, http.MethodGet, "/admin/sessions/telegram/42", "")
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("got %d", rec.Code)
		}
	})

	t.Run("inspect returns session and invoices", func(t *testing.T) {
		rec := do(t, h, http.MethodGet, "/admin/sessions/telegram/42", token)
		if rec.Code != http.StatusOK {
			t.Fatalf("got %d: %s", rec.Code, rec.Body.String())
		}
		var view sessionView
		if err := json.NewDecoder(rec.Body).Decode(&view); err != nil {
			t.Fatal(err)
		}
		if view.State != string(model.StateAwaitingPayment) || view.DeliveryCost != 100 || view.UpdatedAt == nil {
			t.Fatalf("unexpected view %+v", view)
		}
		if len(view.Invoices) != 1 || view.Invoices[0].Payload != "inv-1" {
			t.Fatalf("unexpected invoices %+v", view.Invoices)
		}
	})

	t.Run("unknown session is reported as START", func(t *testing.T) {
		rec := do(t, h, http.MethodGet, "/admin/sessions/facebook/psid-9", token)
		var view sessionView
		_ = json.NewDecoder(rec.Body).Decode(&view)
		if rec.Code != http.StatusOK || view.State != string(model.StateStart) || view.Invoices == nil {
			t.Fatalf("got %d %+v", rec.Code, view)
		}
	})

	t.Run("unknown channel -> 400", func(t *testing.T) {
		rec := do(t, h, http.MethodGet, "/admin/sessions/whatsapp/42", token)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("got %d", rec.Code)
		}
	})

	t.Run("reset", func(t *testing.T) {
		rec := do(t, h, http.MethodDelete, "/admin/sessions/telegram/42", token)
		if rec.Code != http.StatusNoContent || len(admin.resets) != 1 || admin.resets[0] != key {
			t.Fatalf("got %d resets=%v", rec.Code, admin.resets)
		}
	})

	t.Run("reset on a busy session -> 409", func(t *testing.T) {
		admin.resetErr = domain.ErrLockTimeout
		defer func() { admin.resetErr = nil }()
		rec := do(t, h, http.MethodDelete, "/admin/sessions/telegram/42", token)
		if rec.Code != http.StatusConflict {
			t.Fatalf("got %d", rec.Code)
		}
	})
}

func TestAdminDisabledWithoutSecret(t *testing.T) {
	h := newTestServer(t, Deps{Sessions: &mockAdmin{}}).Handler()
	rec := do(t, h, http.MethodGet, "/admin/sessions/telegram/1", "whatever")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("got %d", rec.Code)
	}
}

func TestPublicRoutes(t *testing.T) {
	fb := &mockWebhook{}
	var redisDown bool
	h := newTestServer(t, Deps{
		Sessions: &mockAdmin{},
		Facebook: fb,
		Checks: map[string]Pinger{"redis": pingFunc(func(context.Context) error {
			if redisDown {
				return errors.New("connection refused")
			}
			return nil
		})},
	}).Handler()

	t.Run("health", func(t *testing.T) {
		rec := do(t, h, http.MethodGet, "/health", "")
		if rec.Code != http.StatusOK || rec.Header().Get("X-Request-ID") == "" {
			t.Fatalf("got %d", rec.Code)
		}
		redisDown = true
		defer func() { redisDown = false }()
		if rec := do(t, h, http.MethodGet, "/health", ""); rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("got %d", rec.Code)
		}
	})

	t.Run("metrics", func(t *testing.T) {
		rec := do(t, h, http.MethodGet, "/metrics", "")
		if rec.Code != http.StatusOK || rec.Body.String() != "# metrics" {
			t.Fatalf("got %d %q", rec.Code, rec.Body.String())
		}
	})

	t.Run("facebook webhook", func(t *testing.T) {
		do(t, h, http.MethodGet, "/webhooks/facebook", "")
		do(t, h, http.MethodPost, "/webhooks/facebook", "")
		if fb.verified != 1 || fb.received != 1 {
			t.Fatalf("verified=%d received=%d", fb.verified, fb.received)
		}
		if rec := do(t, h, http.MethodPut, "/webhooks/facebook", ""); rec.Code != http.StatusMethodNotAllowed {
			t.Fatalf("got %d", rec.Code)
		}
	})
}

func TestRecover(t *testing.T) {
	nop := zerolog.Nop()
	h := Recover(&nop)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("got %d", rec.Code)
	}
}
