package model

// MessageKind is the abstract outbound message shape.
type MessageKind string

const (
	MessageText     MessageKind = "text"
	MessageButtons  MessageKind = "buttons"
	MessageCards    MessageKind = "cards"
	MessageLocation MessageKind = "location"
	MessageInvoice  MessageKind = "invoice"
)

type Button struct {
	Text    string `json:"text"`
	Payload string `json:"payload,omitempty"`
	URL     string `json:"url,omitempty"`
}

type Card struct {
	Title    string   `json:"title"`
	Subtitle string   `json:"subtitle,omitempty"`
	ImageURL string   `json:"image_url,omitempty"`
	Buttons  []Button `json:"buttons,omitempty"`
}

// InvoiceRequest is what a messenger needs to render a payment invoice.
type InvoiceRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Payload     string `json:"payload"`
	Currency    string `json:"currency"`
	Amount      int    `json:"amount"`
}

// Message is a platform-neutral outbound message.
type Message struct {
	Kind     MessageKind     `json:"kind"`
	Text     string          `json:"text,omitempty"`
	Buttons  [][]Button      `json:"buttons,omitempty"`
	Cards    []Card          `json:"cards,omitempty"`
	Location *Point          `json:"location,omitempty"`
	Invoice  *InvoiceRequest `json:"invoice,omitempty"`
}

func Text(s string) Message { return Message{Kind: MessageText, Text: s} }

func Buttons(s string, rows ...[]Button) Message {
	return Message{Kind: MessageButtons, Text: s, Buttons: rows}
}

func Row(btns ...Button) []Button { return btns }

func Btn(text, payload string) Button { return Button{Text: text, Payload: payload} }
