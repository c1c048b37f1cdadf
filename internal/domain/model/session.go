package model

import (
	"fmt"
	"strings"
	"time"
)

// State is the conversation state tag persisted per session.
type State string

const (
	StateStart           State = "START"
	StateBrowsing        State = "BROWSING"
	StateProductDetail   State = "PRODUCT_DETAIL"
	StateCartEdit        State = "CART_EDIT"
	StateAwaitingAddress State = "AWAITING_ADDRESS"
	StateOrderRouting    State = "ORDER_ROUTING"
	StateAwaitingPayment State = "AWAITING_PAYMENT"
	StateFinished        State = "FINISHED"
)

// States lists every valid state in flow order.
var States = []State{
	StateStart, StateBrowsing, StateProductDetail, StateCartEdit,
	StateAwaitingAddress, StateOrderRouting, StateAwaitingPayment, StateFinished,
}

func (s State) Valid() bool {
	for _, v := range States {
		if v == s {
			return true
		}
	}
	return false
}

// ParseState maps a stored tag to a State. Unknown or empty tags yield StateStart.
func ParseState(raw string) State {
	s := State(strings.TrimSpace(raw))
	if s.Valid() {
		return s
	}
	return StateStart
}

// Channel identifies the chat platform an event came from.
type Channel string

const (
	ChannelTelegram Channel = "telegram"
	ChannelFacebook Channel = "facebook"
)

// SessionKey is the channel-qualified user identity.
type SessionKey struct {
	Channel Channel
	UserID  string
}

func (k SessionKey) String() string { return fmt.Sprintf("%s:%s", k.Channel, k.UserID) }

// CartRef is the reference used to address the user's remote cart.
func (k SessionKey) CartRef() string {
	return strings.ReplaceAll(k.String(), ":", "_")
}

// ParseSessionKey parses "channel:user".
func ParseSessionKey(s string) (SessionKey, bool) {
	ch, user, ok := strings.Cut(s, ":")
	if !ok || ch == "" || user == "" {
		return SessionKey{}, false
	}
	return SessionKey{Channel: Channel(ch), UserID: user}, true
}

// Session is the per-user conversational state plus auxiliary fields.
type Session struct {
	Key              SessionKey
	State            State
	ChatID           string
	PageNumber       int
	CategoryID       string
	NearestStore     *Store
	PendingAddressID string
	Location         *Point
	DeliveryCost     int
	DeliveryAvail    bool
	LastCartSummary  string
	CustomerID       string
	LastPrompt       []Message
	UpdatedAt        time.Time
}

// NewSession returns a fresh session in StateStart.
func NewSession(key SessionKey) *Session {
	return &Session{Key: key, State: StateStart, PageNumber: 1}
}

// Reset moves the session back to StateStart and drops transient fields.
// Identity and the customer record survive.
func (s *Session) Reset() {
	s.State = StateStart
	s.PageNumber = 1
	s.CategoryID = ""
	s.NearestStore = nil
	s.PendingAddressID = ""
	s.Location = nil
	s.DeliveryCost = 0
	s.DeliveryAvail = false
	s.LastCartSummary = ""
	s.LastPrompt = nil
}

// Clone returns a deep copy so handlers can mutate freely and the engine
// can discard the copy on failure.
func (s *Session) Clone() *Session {
	c := *s
	if s.NearestStore != nil {
		st := *s.NearestStore
		c.NearestStore = &st
	}
	if s.Location != nil {
		p := *s.Location
		c.Location = &p
	}
	if s.LastPrompt != nil {
		c.LastPrompt = append([]Message(nil), s.LastPrompt...)
	}
	return &c
}
