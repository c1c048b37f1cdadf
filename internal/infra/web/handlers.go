package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"pizza-order-bot/internal/domain"
	"pizza-order-bot/internal/domain/model"
	"pizza-order-bot/internal/infra/logging"
)

const invoiceListLimit = 20

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{}
	status := http.StatusOK
	for name, p := range s.deps.Checks {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		err := p.Ping(ctx)
		cancel()
		if err != nil {
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}
	writeJSON(w, status, map[string]any{"status": http.StatusText(status), "checks": checks})
}

type sessionView struct {
	Channel      string        `json:"channel"`
	UserID       string        `json:"user_id"`
	State        string        `json:"state"`
	ChatID       string        `json:"chat_id,omitempty"`
	Page         int           `json:"page"`
	CategoryID   string        `json:"category_id,omitempty"`
	NearestStore *model.Store  `json:"nearest_store,omitempty"`
	Location     *model.Point  `json:"location,omitempty"`
	DeliveryCost int           `json:"delivery_cost"`
	CustomerID   string        `json:"customer_id,omitempty"`
	UpdatedAt    *time.Time    `json:"updated_at,omitempty"`
	Invoices     []invoiceView `json:"invoices"`
}

type invoiceView struct {
	Payload   string     `json:"payload"`
	Amount    int        `json:"amount"`
	Currency  string     `json:"currency"`
	Status    string     `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	PaidAt    *time.Time `json:"paid_at,omitempty"`
}

func sessionKeyFromPath(r *http.Request) (model.SessionKey, bool) {
	ch := model.Channel(chi.URLParam(r, "channel"))
	user := chi.URLParam(r, "userID")
	if user == "" || (ch != model.ChannelTelegram && ch != model.ChannelFacebook) {
		return model.SessionKey{}, false
	}
	return model.SessionKey{Channel: ch, UserID: user}, true
}

func (s *Server) handleInspectSession(w http.ResponseWriter, r *http.Request) {
	key, ok := sessionKeyFromPath(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown channel or empty user id")
		return
	}
	ctx := logging.WithSession(r.Context(), key.String())
	log := logging.With(ctx, s.log)

	sess, err := s.deps.Sessions.Inspect(ctx, key)
	if err != nil {
		log.Error().Err(err).Msg("inspect session")
		writeError(w, http.StatusBadGateway, "session store unavailable")
		return
	}
	view := sessionView{
		Channel:      string(key.Channel),
		UserID:       key.UserID,
		State:        string(sess.State),
		ChatID:       sess.ChatID,
		Page:         sess.PageNumber,
		CategoryID:   sess.CategoryID,
		NearestStore: sess.NearestStore,
		Location:     sess.Location,
		DeliveryCost: sess.DeliveryCost,
		CustomerID:   sess.CustomerID,
		Invoices:     []invoiceView{},
	}
	if !sess.UpdatedAt.IsZero() {
		view.UpdatedAt = &sess.UpdatedAt
	}

	if s.deps.Invoices != nil {
		invs, err := s.deps.Invoices.ListBySession(ctx, key, invoiceListLimit)
		if err != nil {
			log.Warn().Err(err).Msg("list invoices")
		}
		for _, inv := range invs {
			view.Invoices = append(view.Invoices, invoiceView{
				Payload:   inv.Payload,
				Amount:    inv.Amount,
				Currency:  inv.Currency,
				Status:    string(inv.Status),
				CreatedAt: inv.CreatedAt,
				PaidAt:    inv.PaidAt,
			})
		}
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleResetSession(w http.ResponseWriter, r *http.Request) {
	key, ok := sessionKeyFromPath(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown channel or empty user id")
		return
	}
	ctx := logging.WithSession(r.Context(), key.String())
	log := logging.With(ctx, s.log)

	if err := s.deps.Sessions.Reset(ctx, key); err != nil {
		if errors.Is(err, domain.ErrLockTimeout) {
			writeError(w, http.StatusConflict, "session busy, retry later")
			return
		}
		log.Error().Err(err).Msg("reset session")
		writeError(w, http.StatusBadGateway, "session store unavailable")
		return
	}
	log.Info().Msg("session reset by admin")
	w.WriteHeader(http.StatusNoContent)
}
