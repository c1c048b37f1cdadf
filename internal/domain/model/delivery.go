package model

// DeliveryTier is the distance bucket a delivery falls into.
type DeliveryTier string

const (
	TierNearby     DeliveryTier = "nearby"
	TierNear       DeliveryTier = "near"
	TierFar        DeliveryTier = "far"
	TierPickupOnly DeliveryTier = "pickup_only"
)

// DeliveryQuote is the result of nearest-store resolution.
type DeliveryQuote struct {
	Point     Point
	Store     Store
	Distance  int // meters, truncated
	Tier      DeliveryTier
	Cost      int
	Available bool
	Text      string
}

// Outcome summarizes one processed event.
type Outcome struct {
	Key       SessionKey
	From      State
	To        State
	Messages  []Message
	Duplicate bool
}
