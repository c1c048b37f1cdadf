package model

import (
	"fmt"
	"strconv"
)

type Product struct {
	ID          string
	Name        string
	Description string
	Price       string // display price as formatted by the commerce backend
	ImageURL    string
}

type Category struct {
	ID   string
	Name string
	Slug string
}

// ProductPage is one page of the catalog. Page is 1-based.
type ProductPage struct {
	Products []Product
	Page     int
	Pages    int
}

type CartItem struct {
	ID          string
	ProductID   string
	Name        string
	Description string
	Quantity    int
	UnitPrice   string
	LinePrice   string
}

// Cart is the remote cart summary. TotalAmount is in minor currency units.
type Cart struct {
	Items          []CartItem
	TotalAmount    int
	Currency       string
	TotalFormatted string
}

func (c *Cart) Empty() bool { return c == nil || len(c.Items) == 0 }

// Entry is a generic flexible-schema record from the commerce backend.
type Entry struct {
	ID     string
	Fields map[string]any
}

func (e Entry) String(field string) string {
	v, ok := e.Fields[field]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}

func (e Entry) Float(field string) (float64, bool) {
	v, ok := e.Fields[field]
	if !ok || v == nil {
		return 0, false
	}
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		return f, err == nil
	}
	return 0, false
}

// Flow names and field slugs used in the commerce backend.
const (
	FlowPizzeria        = "pizzeria"
	FlowCustomerAddress = "customer_address"

	FieldAlias         = "alias"
	FieldAddress       = "address"
	FieldLatitude      = "latitude"
	FieldLongitude     = "longitude"
	FieldCourierChatID = "courier_chat_id"
	FieldCustomerRef   = "customer_chat_id"
)

// Point is a WGS84 coordinate.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Store is a pizzeria location snapshot.
type Store struct {
	ID            string `json:"id"`
	Alias         string `json:"alias"`
	Address       string `json:"address"`
	CourierChatID string `json:"courier_chat_id,omitempty"`
	Point         Point  `json:"point"`
}

// StoreFromEntry maps a pizzeria entry. Entries without coordinates are rejected.
func StoreFromEntry(e Entry) (Store, bool) {
	lat, ok1 := e.Float(FieldLatitude)
	lon, ok2 := e.Float(FieldLongitude)
	if !ok1 || !ok2 {
		return Store{}, false
	}
	return Store{
		ID:            e.ID,
		Alias:         e.String(FieldAlias),
		Address:       e.String(FieldAddress),
		CourierChatID: e.String(FieldCourierChatID),
		Point:         Point{Lat: lat, Lon: lon},
	}, true
}
