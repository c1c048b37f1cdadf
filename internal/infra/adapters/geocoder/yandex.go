package geocoder

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"pizza-order-bot/internal/config"
	"pizza-order-bot/internal/domain"
	"pizza-order-bot/internal/domain/model"
	"pizza-order-bot/internal/domain/ports/adapter"
)

var _ adapter.Geocoder = (*Yandex)(nil)

const firstPos = "response.GeoObjectCollection.featureMember.0.GeoObject.Point.pos"

// Yandex resolves addresses with the Yandex geocoder HTTP API.
type Yandex struct {
	endpoint string
	apiKey   string
	client   *http.Client
	log      *zerolog.Logger
}

func NewYandex(cfg config.GeocoderConfig, logger *zerolog.Logger) *Yandex {
	return &Yandex{
		endpoint: cfg.URL,
		apiKey:   cfg.APIKey,
		client:   &http.Client{Timeout: 10 * time.Second},
		log:      logger,
	}
}

func (y *Yandex) Geocode(ctx context.Context, address string) (model.Point, bool, error) {
	q := url.Values{}
	q.Set("geocode", address)
	q.Set("apikey", y.apiKey)
	q.Set("format", "json")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, y.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return model.Point{}, false, err
	}
	resp, err := y.client.Do(req)
	if err != nil {
		return model.Point{}, false, domain.Upstream("geocoder", "geocode", 0, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return model.Point{}, false, domain.Upstream("geocoder", "geocode", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		return model.Point{}, false, domain.Upstream("geocoder", "geocode", resp.StatusCode, fmt.Errorf("%s", strings.TrimSpace(string(body))))
	}

	pos := gjson.GetBytes(body, firstPos)
	if !pos.Exists() {
		return model.Point{}, false, nil
	}
	p, err := parsePos(pos.String())
	if err != nil {
		y.log.Warn().Err(err).Str("pos", pos.String()).Msg("unparseable geocoder position")
		return model.Point{}, false, domain.Upstream("geocoder", "geocode", resp.StatusCode, err)
	}
	return p, true, nil
}

// parsePos reads "<lon> <lat>".
func parsePos(s string) (model.Point, error) {
	parts := strings.Fields(s)
	if len(parts) != 2 {
		return model.Point{}, fmt.Errorf("position %q: want two coordinates", s)
	}
	lon, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return model.Point{}, fmt.Errorf("position %q: %w", s, err)
	}
	lat, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return model.Point{}, fmt.Errorf("position %q: %w", s, err)
	}
	return model.Point{Lat: lat, Lon: lon}, nil
}
