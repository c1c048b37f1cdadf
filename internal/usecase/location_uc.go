package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/geodesic"

	"pizza-order-bot/internal/domain"
	"pizza-order-bot/internal/domain/model"
	"pizza-order-bot/internal/domain/ports/adapter"
	"pizza-order-bot/internal/infra/logging"
	"pizza-order-bot/internal/infra/metrics"
)

// Delivery tier bounds in meters.
const (
	NearbyRadius   = 500
	NearRadius     = 5000
	DeliveryRadius = 20000

	NearCost = 100
	FarCost  = 300
)

// Translator renders localized texts.
type Translator interface {
	T(key string, args ...interface{}) string
}

// LocationQuery is either free text or explicit coordinates.
type LocationQuery struct {
	Text  string
	Point *model.Point
}

// Compile-time check
var _ LocationUseCase = (*locationUC)(nil)

type LocationUseCase interface {
	// Geocode returns domain.ErrGeocodeNoMatch when the provider has no candidates.
	Geocode(ctx context.Context, text string) (model.Point, error)
	// Resolve locates the query, picks the nearest store and quotes delivery.
	Resolve(ctx context.Context, q LocationQuery) (*model.DeliveryQuote, error)
}

type locationUC struct {
	geocoder adapter.Geocoder
	commerce adapter.CommerceGateway
	tr       Translator
	timeout  time.Duration
	log      *zerolog.Logger
}

func NewLocationUseCase(geocoder adapter.Geocoder, commerce adapter.CommerceGateway, tr Translator, timeout time.Duration, logger *zerolog.Logger) *locationUC {
	return &locationUC{geocoder: geocoder, commerce: commerce, tr: tr, timeout: timeout, log: logger}
}

func (u *locationUC) Geocode(ctx context.Context, text string) (model.Point, error) {
	defer logging.TraceDuration(u.log, "LocationUC.Geocode")()

	text = strings.TrimSpace(text)
	if text == "" {
		return model.Point{}, domain.ErrGeocodeNoMatch
	}
	cctx, cancel := withTimeout(ctx, u.timeout)
	defer cancel()

	p, found, err := u.geocoder.Geocode(cctx, text)
	if err != nil {
		metrics.IncGeocode("error")
		if errors.Is(err, domain.ErrUpstreamUnavailable) {
			return model.Point{}, err
		}
		return model.Point{}, domain.Upstream("geocoder", "geocode", 0, err)
	}
	if !found {
		metrics.IncGeocode("not_found")
		return model.Point{}, domain.ErrGeocodeNoMatch
	}
	metrics.IncGeocode("found")
	return p, nil
}

func (u *locationUC) Resolve(ctx context.Context, q LocationQuery) (*model.DeliveryQuote, error) {
	defer logging.TraceDuration(u.log, "LocationUC.Resolve")()

	var point model.Point
	if q.Point != nil {
		point = *q.Point
	} else {
		p, err := u.Geocode(ctx, q.Text)
		if err != nil {
			return nil, err
		}
		point = p
	}

	cctx, cancel := withTimeout(ctx, u.timeout)
	defer cancel()
	entries, err := u.commerce.ListEntries(cctx, model.FlowPizzeria)
	if err != nil {
		return nil, err
	}
	stores := make([]model.Store, 0, len(entries))
	for _, e := range entries {
		if st, ok := model.StoreFromEntry(e); ok {
			stores = append(stores, st)
		}
	}

	store, dist, err := NearestStore(point, stores)
	if err != nil {
		return nil, err
	}
	tier, cost, available := QuoteDelivery(dist)

	quote := &model.DeliveryQuote{
		Point:     point,
		Store:     store,
		Distance:  dist,
		Tier:      tier,
		Cost:      cost,
		Available: available,
	}
	quote.Text = u.quoteText(quote)
	return quote, nil
}

func (u *locationUC) quoteText(q *model.DeliveryQuote) string {
	switch q.Tier {
	case model.TierNearby:
		return u.tr.T("delivery.nearby", q.Store.Alias, q.Store.Address, q.Distance)
	case model.TierNear, model.TierFar:
		return u.tr.T("delivery.cost", q.Store.Alias, q.Store.Address, q.Cost)
	default:
		return u.tr.T("delivery.pickup_only", q.Distance/1000, q.Store.Address)
	}
}

// Distance returns the WGS84 geodesic distance in whole meters.
func Distance(a, b model.Point) int {
	var s12 float64
	geodesic.WGS84.Inverse(a.Lat, a.Lon, b.Lat, b.Lon, &s12, nil, nil)
	return int(s12)
}

// NearestStore picks the store closest to p. Ties keep the first candidate.
func NearestStore(p model.Point, stores []model.Store) (model.Store, int, error) {
	if len(stores) == 0 {
		return model.Store{}, 0, domain.ErrNoStores
	}
	best, bestDist := 0, Distance(p, stores[0].Point)
	for i := 1; i < len(stores); i++ {
		if d := Distance(p, stores[i].Point); d < bestDist {
			best, bestDist = i, d
		}
	}
	return stores[best], bestDist, nil
}

// QuoteDelivery maps a distance in meters to its tier and cost.
// available is false when only pickup is possible.
func QuoteDelivery(d int) (tier model.DeliveryTier, cost int, available bool) {
	switch {
	case d < NearbyRadius:
		return model.TierNearby, 0, true
	case d < NearRadius:
		return model.TierNear, NearCost, true
	case d <= DeliveryRadius:
		return model.TierFar, FarCost, true
	default:
		return model.TierPickupOnly, 0, false
	}
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
