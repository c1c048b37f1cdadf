package facebook

import (
	"fmt"
	"strings"

	"pizza-order-bot/internal/domain/model"
)

// Platform limits of the Send API templates.
const (
	maxTemplateButtons = 3
	maxQuickReplies    = 13
	maxElements        = 10
	maxTitle           = 80
	maxButtonTitle     = 20
	maxTemplateText    = 640
)

type sendRequest struct {
	Recipient     recipient   `json:"recipient"`
	MessagingType string      `json:"messaging_type"`
	Message       messageBody `json:"message"`
}

type recipient struct {
	ID string `json:"id"`
}

type messageBody struct {
	Text         string       `json:"text,omitempty"`
	Attachment   *attachment  `json:"attachment,omitempty"`
	QuickReplies []quickReply `json:"quick_replies,omitempty"`
}

type attachment struct {
	Type    string          `json:"type"`
	Payload templatePayload `json:"payload"`
}

type templatePayload struct {
	TemplateType     string    `json:"template_type"`
	Text             string    `json:"text,omitempty"`
	ImageAspectRatio string    `json:"image_aspect_ratio,omitempty"`
	Elements         []element `json:"elements,omitempty"`
	Buttons          []button  `json:"buttons,omitempty"`
}

type element struct {
	Title    string   `json:"title"`
	Subtitle string   `json:"subtitle,omitempty"`
	ImageURL string   `json:"image_url,omitempty"`
	Buttons  []button `json:"buttons,omitempty"`
}

type button struct {
	Type    string `json:"type"`
	Title   string `json:"title"`
	Payload string `json:"payload,omitempty"`
	URL     string `json:"url,omitempty"`
}

type quickReply struct {
	ContentType string `json:"content_type"`
	Title       string `json:"title"`
	Payload     string `json:"payload"`
}

// render maps one abstract message onto one or more Send API bodies.
func render(m model.Message) []messageBody {
	switch m.Kind {
	case model.MessageButtons:
		return renderButtons(m.Text, m.Buttons)

	case model.MessageCards:
		var out []messageBody
		if strings.TrimSpace(m.Text) != "" && len(m.Cards) > 1 {
			out = append(out, messageBody{Text: m.Text})
		}
		for start := 0; start < len(m.Cards); start += maxElements {
			end := min(start+maxElements, len(m.Cards))
			out = append(out, genericTemplate(m.Cards[start:end], len(m.Cards) == 1 && m.Text != "", m.Text))
		}
		if len(m.Buttons) > 0 {
			out = append(out, renderButtons("…", m.Buttons)...)
		}
		return out

	case model.MessageLocation:
		if m.Location == nil {
			return nil
		}
		link := fmt.Sprintf("https://maps.google.com/?q=%.6f,%.6f", m.Location.Lat, m.Location.Lon)
		return []messageBody{buttonTemplate(link, []model.Button{{Text: "Map", URL: link}})}

	case model.MessageInvoice:
		if m.Invoice == nil {
			return nil
		}
		return []messageBody{{Text: m.Invoice.Title + "\n" + m.Invoice.Description}}

	default:
		if strings.TrimSpace(m.Text) == "" {
			return nil
		}
		return []messageBody{{Text: m.Text}}
	}
}

// renderButtons uses a button template when the buttons fit, otherwise quick replies.
// Quick replies cannot open links, so URL buttons are dropped in that case.
func renderButtons(text string, rows [][]model.Button) []messageBody {
	var flat []model.Button
	for _, r := range rows {
		flat = append(flat, r...)
	}
	if strings.TrimSpace(text) == "" {
		text = "…"
	}
	if len(flat) == 0 {
		return []messageBody{{Text: text}}
	}
	if len(flat) <= maxTemplateButtons {
		return []messageBody{buttonTemplate(text, flat)}
	}

	body := messageBody{Text: text}
	for _, b := range flat {
		if b.Payload == "" || len(body.QuickReplies) == maxQuickReplies {
			continue
		}
		body.QuickReplies = append(body.QuickReplies, quickReply{
			ContentType: "text",
			Title:       clip(b.Text, maxButtonTitle),
			Payload:     b.Payload,
		})
	}
	return []messageBody{body}
}

func buttonTemplate(text string, btns []model.Button) messageBody {
	return messageBody{Attachment: &attachment{
		Type: "template",
		Payload: templatePayload{
			TemplateType: "button",
			Text:         clip(text, maxTemplateText),
			Buttons:      toButtons(btns),
		},
	}}
}

// genericTemplate renders a card carousel. A lone card takes the message text as subtitle.
func genericTemplate(cards []model.Card, useText bool, text string) messageBody {
	els := make([]element, 0, len(cards))
	for _, c := range cards {
		sub := c.Subtitle
		if useText {
			sub = text
		}
		els = append(els, element{
			Title:    clip(c.Title, maxTitle),
			Subtitle: clip(sub, maxTitle),
			ImageURL: c.ImageURL,
			Buttons:  toButtons(c.Buttons),
		})
	}
	return messageBody{Attachment: &attachment{
		Type: "template",
		Payload: templatePayload{
			TemplateType:     "generic",
			ImageAspectRatio: "square",
			Elements:         els,
		},
	}}
}

func toButtons(btns []model.Button) []button {
	out := make([]button, 0, min(len(btns), maxTemplateButtons))
	for _, b := range btns {
		if len(out) == maxTemplateButtons {
			break
		}
		title := clip(b.Text, maxButtonTitle)
		if b.URL != "" {
			out = append(out, button{Type: "web_url", Title: title, URL: b.URL})
			continue
		}
		out = append(out, button{Type: "postback", Title: title, Payload: b.Payload})
	}
	return out
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
