package telegram

import (
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"pizza-order-bot/internal/domain/model"
)

// Telegram caps photo captions at 1024 characters.
const maxCaption = 1024

type outbound struct {
	msg      tgbotapi.Chattable
	fallback tgbotapi.Chattable
}

func (r *RealBotAdapter) render(chatID int64, m model.Message) []outbound {
	switch m.Kind {
	case model.MessageButtons:
		return []outbound{{msg: textMessage(chatID, m.Text, m.Buttons)}}

	case model.MessageCards:
		return renderCards(chatID, m)

	case model.MessageLocation:
		if m.Location == nil {
			return nil
		}
		return []outbound{{msg: tgbotapi.NewLocation(chatID, m.Location.Lat, m.Location.Lon)}}

	case model.MessageInvoice:
		if m.Invoice == nil {
			return nil
		}
		return []outbound{{msg: r.invoice(chatID, m.Invoice)}}

	default:
		if strings.TrimSpace(m.Text) == "" {
			return nil
		}
		return []outbound{{msg: textMessage(chatID, m.Text, nil)}}
	}
}

// renderCards sends a single card as one photo whose caption is the message text;
// several cards go out as a header followed by one photo per card.
func renderCards(chatID int64, m model.Message) []outbound {
	if len(m.Cards) == 1 {
		c := m.Cards[0]
		text := m.Text
		if strings.TrimSpace(text) == "" {
			text = cardText(c)
		}
		rows := append([][]model.Button{c.Buttons}, m.Buttons...)
		return []outbound{cardMessage(chatID, c.ImageURL, text, rows)}
	}

	var out []outbound
	if strings.TrimSpace(m.Text) != "" || len(m.Buttons) > 0 {
		out = append(out, outbound{msg: textMessage(chatID, m.Text, m.Buttons)})
	}
	for _, c := range m.Cards {
		out = append(out, cardMessage(chatID, c.ImageURL, cardText(c), [][]model.Button{c.Buttons}))
	}
	return out
}

func cardMessage(chatID int64, imageURL, text string, rows [][]model.Button) outbound {
	plain := textMessage(chatID, text, rows)
	if imageURL == "" {
		return outbound{msg: plain}
	}
	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileURL(imageURL))
	photo.Caption = truncate(text, maxCaption)
	if kb := keyboard(rows); kb != nil {
		photo.ReplyMarkup = *kb
	}
	return outbound{msg: photo, fallback: plain}
}

func cardText(c model.Card) string {
	if c.Subtitle == "" {
		return c.Title
	}
	return c.Title + "\n" + c.Subtitle
}

func textMessage(chatID int64, text string, rows [][]model.Button) tgbotapi.MessageConfig {
	if strings.TrimSpace(text) == "" {
		text = "•"
	}
	msg := tgbotapi.NewMessage(chatID, text)
	if kb := keyboard(rows); kb != nil {
		msg.ReplyMarkup = *kb
	}
	return msg
}

// keyboard builds an inline keyboard; URL buttons open links, the rest send their payload back.
func keyboard(rows [][]model.Button) *tgbotapi.InlineKeyboardMarkup {
	kbRows := make([][]tgbotapi.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		r := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, btn := range row {
			label := strings.TrimSpace(btn.Text)
			if label == "" {
				label = "•"
			}
			switch {
			case btn.URL != "":
				r = append(r, tgbotapi.NewInlineKeyboardButtonURL(label, btn.URL))
			case btn.Payload != "":
				r = append(r, tgbotapi.NewInlineKeyboardButtonData(label, btn.Payload))
			default:
				r = append(r, tgbotapi.NewInlineKeyboardButtonData(label, label))
			}
		}
		kbRows = append(kbRows, r)
	}
	if len(kbRows) == 0 {
		return nil
	}
	kb := tgbotapi.NewInlineKeyboardMarkup(kbRows...)
	return &kb
}

func (r *RealBotAdapter) invoice(chatID int64, in *model.InvoiceRequest) tgbotapi.InvoiceConfig {
	currency := in.Currency
	if currency == "" {
		currency = r.payment.Currency
	}
	inv := tgbotapi.NewInvoice(chatID, in.Title, in.Description, in.Payload,
		r.payment.ProviderToken, "pizza", currency,
		[]tgbotapi.LabeledPrice{{Label: in.Title, Amount: in.Amount}})
	// a nil slice is sent as JSON null, which the Bot API rejects
	inv.SuggestedTipAmounts = []int{}
	return inv
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
