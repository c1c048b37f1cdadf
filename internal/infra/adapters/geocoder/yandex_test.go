//go:build !integration

package geocoder

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"pizza-order-bot/internal/config"
	"pizza-order-bot/internal/domain"
)

func TestYandexGeocode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("apikey") != "key" || q.Get("format") != "json" {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		switch q.Get("geocode") {
		case "Lenina 1":
			io.WriteString(w, `{"response":{"GeoObjectCollection":{"featureMember":[
				{"GeoObject":{"Point":{"pos":"37.617635 55.755814"}}},
				{"GeoObject":{"Point":{"pos":"30.0 59.0"}}}]}}}`)
		case "broken":
			io.WriteString(w, `{"response":{"GeoObjectCollection":{"featureMember":[{"GeoObject":{"Point":{"pos":"nope"}}}]}}}`)
		default:
			io.WriteString(w, `{"response":{"GeoObjectCollection":{"featureMember":[]}}}`)
		}
	}))
	defer srv.Close()

	logger := zerolog.Nop()
	ctx := context.Background()

	t.Run("should take the most relevant match", func(t *testing.T) {
		y := NewYandex(config.GeocoderConfig{URL: srv.URL, APIKey: "key"}, &logger)
		p, found, err := y.Geocode(ctx, "Lenina 1")
		if err != nil || !found {
			t.Fatalf("got %v %v", found, err)
		}
		if p.Lat != 55.755814 || p.Lon != 37.617635 {
			t.Errorf("expected lat/lon swapped from pos, got %+v", p)
		}
	})

	t.Run("should report no match", func(t *testing.T) {
		y := NewYandex(config.GeocoderConfig{URL: srv.URL, APIKey: "key"}, &logger)
		_, found, err := y.Geocode(ctx, "Gibberish City")
		if err != nil || found {
			t.Errorf("expected no match, got %v %v", found, err)
		}
	})

	t.Run("should surface provider failures as upstream errors", func(t *testing.T) {
		y := NewYandex(config.GeocoderConfig{URL: srv.URL, APIKey: "wrong"}, &logger)
		_, _, err := y.Geocode(ctx, "Lenina 1")
		var up *domain.UpstreamError
		if !errors.As(err, &up) || up.Status != http.StatusForbidden {
			t.Errorf("expected 403 upstream error, got %v", err)
		}
		y = NewYandex(config.GeocoderConfig{URL: srv.URL, APIKey: "key"}, &logger)
		if _, _, err := y.Geocode(ctx, "broken"); !errors.Is(err, domain.ErrUpstreamUnavailable) {
			t.Errorf("expected upstream error for bad pos, got %v", err)
		}
	})
}
