package telegram

import (
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"pizza-order-bot/internal/domain/model"
)

// normalize maps a Telegram update onto the engine's event categories.
// Updates the bot does not care about (edits, channel posts, ...) return false.
func normalize(up tgbotapi.Update) (model.Event, bool) {
	ev := model.Event{
		ID:      "tg:" + strconv.Itoa(up.UpdateID),
		Channel: model.ChannelTelegram,
	}

	switch {
	case up.CallbackQuery != nil:
		q := up.CallbackQuery
		if q.From == nil {
			return ev, false
		}
		setUser(&ev, q.From)
		ev.ChatID = ev.UserID
		if q.Message != nil && q.Message.Chat != nil {
			ev.ChatID = strconv.FormatInt(q.Message.Chat.ID, 10)
		}
		ev.Kind = model.EventSelect
		ev.Payload = strings.TrimSpace(q.Data)
		return ev, true

	case up.PreCheckoutQuery != nil:
		q := up.PreCheckoutQuery
		if q.From == nil {
			return ev, false
		}
		setUser(&ev, q.From)
		ev.ChatID = ev.UserID
		ev.Kind = model.EventPaymentPrecheck
		ev.Payment = &model.PaymentInfo{
			QueryID:        q.ID,
			InvoicePayload: q.InvoicePayload,
			Currency:       q.Currency,
			TotalAmount:    q.TotalAmount,
		}
		return ev, true

	case up.Message != nil:
		return normalizeMessage(ev, up.Message)
	}
	return ev, false
}

func normalizeMessage(ev model.Event, m *tgbotapi.Message) (model.Event, bool) {
	if m.From == nil || m.Chat == nil {
		return ev, false
	}
	setUser(&ev, m.From)
	ev.ChatID = strconv.FormatInt(m.Chat.ID, 10)

	switch {
	case m.SuccessfulPayment != nil:
		p := m.SuccessfulPayment
		ev.Kind = model.EventPaymentSuccess
		ev.Payment = &model.PaymentInfo{
			InvoicePayload:   p.InvoicePayload,
			Currency:         p.Currency,
			TotalAmount:      p.TotalAmount,
			ProviderChargeID: p.TelegramPaymentChargeID,
		}
	case m.Location != nil:
		ev.Kind = model.EventLocation
		ev.Location = &model.Point{Lat: m.Location.Latitude, Lon: m.Location.Longitude}
	case strings.HasPrefix(strings.TrimSpace(m.Text), "/"):
		ev.Kind = model.EventCommand
		ev.Text = commandName(m.Text)
	case strings.TrimSpace(m.Text) != "":
		ev.Kind = model.EventText
		ev.Text = strings.TrimSpace(m.Text)
	default:
		return ev, false
	}
	return ev, true
}

func setUser(ev *model.Event, u *tgbotapi.User) {
	ev.UserID = strconv.FormatInt(u.ID, 10)
	ev.UserName = u.UserName
	if ev.UserName == "" {
		ev.UserName = strings.TrimSpace(u.FirstName + " " + u.LastName)
	}
}

// commandName strips arguments and the "@botname" suffix: "/start@PizzaBot x" -> "/start".
func commandName(text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ""
	}
	cmd, _, _ := strings.Cut(fields[0], "@")
	return strings.ToLower(cmd)
}
