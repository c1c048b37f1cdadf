package facebook

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"pizza-order-bot/internal/domain/model"
	"pizza-order-bot/internal/infra/logging"
	"pizza-order-bot/internal/infra/worker"
)

// getStartedPayload is what the Messenger "Get Started" button posts back.
const getStartedPayload = "GET_STARTED"

type EventHandler interface {
	Handle(ctx context.Context, ev model.Event) (*model.Outcome, error)
}

type Sender interface {
	Send(ctx context.Context, psid string, msgs ...model.Message) error
}

// Webhook receives Messenger platform callbacks. Events are acknowledged at once
// and processed on the worker pool.
type Webhook struct {
	verifyToken string
	handler     EventHandler
	sender      Sender
	pool        *worker.Pool
	log         *zerolog.Logger
}

func NewWebhook(verifyToken string, handler EventHandler, sender Sender, pool *worker.Pool, logger *zerolog.Logger) *Webhook {
	l := logger.With().Str("component", "facebook-webhook").Logger()
	return &Webhook{verifyToken: verifyToken, handler: handler, sender: sender, pool: pool, log: &l}
}

// Verify answers the subscription handshake by echoing hub.challenge.
func (h *Webhook) Verify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("hub.mode") != "subscribe" || q.Get("hub.challenge") == "" {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
		return
	}
	if q.Get("hub.verify_token") != h.verifyToken {
		http.Error(w, "Verification token mismatch", http.StatusForbidden)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(q.Get("hub.challenge")))
}

// Receive parses a callback batch and queues every event.
func (h *Webhook) Receive(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil || !gjson.ValidBytes(body) {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if gjson.GetBytes(body, "object").String() != "page" {
		http.NotFound(w, r)
		return
	}

	for _, ev := range ParseEvents(body) {
		ev := ev
		err := h.pool.Submit(func(ctx context.Context) error { return h.process(ctx, ev) })
		if err != nil {
			h.log.Warn().Err(err).Str("event_id", ev.ID).Msg("event dropped")
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("EVENT_RECEIVED"))
}

func (h *Webhook) process(ctx context.Context, ev model.Event) error {
	ctx = logging.WithTraceID(ctx, ev.ID)
	out, err := h.handler.Handle(ctx, ev)
	if err != nil {
		log := logging.With(ctx, h.log)
		log.Warn().Err(err).Str("kind", string(ev.Kind)).Msg("event not handled")
	}
	if out == nil || out.Duplicate || len(out.Messages) == 0 {
		return nil
	}
	return h.sender.Send(ctx, ev.ChatID, out.Messages...)
}

// ParseEvents flattens entry[].messaging[] into normalized events.
// Echoes, deliveries and reads are skipped.
func ParseEvents(body []byte) []model.Event {
	var out []model.Event
	gjson.GetBytes(body, "entry").ForEach(func(_, entry gjson.Result) bool {
		entry.Get("messaging").ForEach(func(_, m gjson.Result) bool {
			if ev, ok := parseMessaging(m); ok {
				out = append(out, ev)
			}
			return true
		})
		return true
	})
	return out
}

func parseMessaging(m gjson.Result) (model.Event, bool) {
	sender := m.Get("sender.id").String()
	if sender == "" {
		return model.Event{}, false
	}
	ev := model.Event{
		Channel: model.ChannelFacebook,
		UserID:  sender,
		ChatID:  sender,
	}

	if pb := m.Get("postback"); pb.Exists() {
		ev.ID = eventID(pb.Get("mid").String(), sender, m.Get("timestamp").String())
		payload := strings.TrimSpace(pb.Get("payload").String())
		if payload == getStartedPayload || payload == model.CommandStart {
			ev.Kind = model.EventCommand
			ev.Text = model.CommandStart
			return ev, true
		}
		ev.Kind = model.EventSelect
		ev.Payload = payload
		return ev, true
	}

	msg := m.Get("message")
	if !msg.Exists() || msg.Get("is_echo").Bool() {
		return model.Event{}, false
	}
	ev.ID = eventID(msg.Get("mid").String(), sender, m.Get("timestamp").String())

	if qr := msg.Get("quick_reply.payload"); qr.Exists() {
		ev.Kind = model.EventSelect
		ev.Payload = qr.String()
		return ev, true
	}

	var loc *model.Point
	msg.Get("attachments").ForEach(func(_, a gjson.Result) bool {
		if a.Get("type").String() != "location" {
			return true
		}
		c := a.Get("payload.coordinates")
		loc = &model.Point{Lat: c.Get("lat").Float(), Lon: c.Get("long").Float()}
		return false
	})
	if loc != nil {
		ev.Kind = model.EventLocation
		ev.Location = loc
		return ev, true
	}

	text := strings.TrimSpace(msg.Get("text").String())
	switch {
	case text == "":
		return model.Event{}, false
	case strings.HasPrefix(text, "/"):
		ev.Kind = model.EventCommand
		ev.Text = strings.ToLower(strings.Fields(text)[0])
	default:
		ev.Kind = model.EventText
		ev.Text = text
	}
	return ev, true
}

// eventID prefers the platform message id; postbacks without one fall back to sender+timestamp.
func eventID(mid, sender, ts string) string {
	if mid != "" {
		return "fb:" + mid
	}
	if ts == "" {
		return ""
	}
	return "fb:" + sender + ":" + ts
}
