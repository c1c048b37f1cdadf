package model

import (
	"encoding/json"
	"strconv"
	"time"
)

// Auxiliary session field names as stored next to the state tag.
const (
	FieldPageNumber       = "page_number"
	FieldCategoryID       = "category_id"
	FieldNearestStore     = "nearest_store"
	FieldPendingAddressID = "pending_address_id"
	FieldLocation         = "location"
	FieldDeliveryCost     = "delivery_cost"
	FieldDeliveryAvail    = "delivery_available"
	FieldLastCartSummary  = "last_cart_summary"
	FieldCustomerID       = "customer_id"
	FieldLastPrompt       = "last_prompt"
	FieldChatID           = "chat_id"
	FieldUpdatedAt        = "updated_at"
)

// Fields flattens the auxiliary session data into string values.
// Empty values are omitted.
func (s *Session) Fields() map[string]string {
	f := map[string]string{
		FieldPageNumber:    strconv.Itoa(s.PageNumber),
		FieldDeliveryCost:  strconv.Itoa(s.DeliveryCost),
		FieldDeliveryAvail: strconv.FormatBool(s.DeliveryAvail),
	}
	put := func(k, v string) {
		if v != "" {
			f[k] = v
		}
	}
	put(FieldCategoryID, s.CategoryID)
	put(FieldPendingAddressID, s.PendingAddressID)
	put(FieldLastCartSummary, s.LastCartSummary)
	put(FieldCustomerID, s.CustomerID)
	put(FieldChatID, s.ChatID)
	if s.NearestStore != nil {
		put(FieldNearestStore, mustJSON(s.NearestStore))
	}
	if s.Location != nil {
		put(FieldLocation, mustJSON(s.Location))
	}
	if len(s.LastPrompt) > 0 {
		put(FieldLastPrompt, mustJSON(s.LastPrompt))
	}
	if !s.UpdatedAt.IsZero() {
		put(FieldUpdatedAt, s.UpdatedAt.UTC().Format(time.RFC3339Nano))
	}
	return f
}

// SessionFromFields rebuilds a session from a stored state tag and fields.
// Unparseable values fall back to their defaults instead of failing.
func SessionFromFields(key SessionKey, state string, f map[string]string) *Session {
	s := NewSession(key)
	s.State = ParseState(state)
	if n, err := strconv.Atoi(f[FieldPageNumber]); err == nil && n > 0 {
		s.PageNumber = n
	}
	if n, err := strconv.Atoi(f[FieldDeliveryCost]); err == nil && n >= 0 {
		s.DeliveryCost = n
	}
	s.DeliveryAvail, _ = strconv.ParseBool(f[FieldDeliveryAvail])
	s.CategoryID = f[FieldCategoryID]
	s.PendingAddressID = f[FieldPendingAddressID]
	s.LastCartSummary = f[FieldLastCartSummary]
	s.CustomerID = f[FieldCustomerID]
	s.ChatID = f[FieldChatID]

	if v := f[FieldNearestStore]; v != "" {
		var st Store
		if json.Unmarshal([]byte(v), &st) == nil {
			s.NearestStore = &st
		}
	}
	if v := f[FieldLocation]; v != "" {
		var p Point
		if json.Unmarshal([]byte(v), &p) == nil {
			s.Location = &p
		}
	}
	if v := f[FieldLastPrompt]; v != "" {
		var msgs []Message
		if json.Unmarshal([]byte(v), &msgs) == nil {
			s.LastPrompt = msgs
		}
	}
	if t, err := time.Parse(time.RFC3339Nano, f[FieldUpdatedAt]); err == nil {
		s.UpdatedAt = t
	}
	return s
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
