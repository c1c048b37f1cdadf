// Command seed loads the menu and the pizzeria addresses into the commerce backend
// and creates the flows the bot reads stores and customer addresses from.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"pizza-order-bot/internal/config"
	"pizza-order-bot/internal/domain/model"
	"pizza-order-bot/internal/infra/adapters/moltin"
	"pizza-order-bot/internal/infra/logging"
)

type menuItem struct {
	ID           int    `json:"id"`
	Name         string `json:"name"`
	Description  string `json:"description"`
	Price        int    `json:"price"`
	ProductImage struct {
		URL string `json:"url"`
	} `json:"product_image"`
}

type pizzeria struct {
	Alias   string `json:"alias"`
	Address struct {
		Full string `json:"full"`
	} `json:"address"`
	Coordinates struct {
		Lat string `json:"lat"`
		Lon string `json:"lon"`
	} `json:"coordinates"`
	CourierChatID string `json:"courier_chat_id"`
}

var pizzeriaFields = []moltin.FieldSeed{
	{Name: model.FieldAddress, Type: "string", Description: "Pizzeria address"},
	{Name: model.FieldAlias, Type: "string", Description: "Pizzeria name"},
	{Name: model.FieldLongitude, Type: "float", Description: "Longitude"},
	{Name: model.FieldLatitude, Type: "float", Description: "Latitude"},
	{Name: model.FieldCourierChatID, Type: "string", Description: "Courier chat id"},
}

var customerAddressFields = []moltin.FieldSeed{
	{Name: model.FieldCustomerRef, Type: "string", Description: "Customer session"},
	{Name: model.FieldLongitude, Type: "float", Description: "Longitude"},
	{Name: model.FieldLatitude, Type: "float", Description: "Latitude"},
}

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	menuPath := flag.String("menu", "menu.json", "products to create")
	addrPath := flag.String("addresses", "addresses.json", "pizzerias to create")
	skipMenu := flag.Bool("skip-menu", false, "do not create products")
	skipFlows := flag.Bool("skip-flows", false, "do not create flows, only entries")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log, true)
	client := moltin.New(cfg.Commerce, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	if !*skipMenu {
		var items []menuItem
		if err := readJSON(*menuPath, &items); err != nil {
			logger.Fatal().Err(err).Msg("read menu")
		}
		seedProducts(ctx, client, items, logger)
	}

	if !*skipFlows {
		for _, f := range []struct {
			slug, desc string
			fields     []moltin.FieldSeed
		}{
			{model.FlowPizzeria, "Pizzeria names and addresses", pizzeriaFields},
			{model.FlowCustomerAddress, "Customer delivery addresses", customerAddressFields},
		} {
			if err := seedFlow(ctx, client, f.slug, f.desc, f.fields); err != nil {
				logger.Error().Err(err).Str("flow", f.slug).Msg("create flow")
			}
		}
	}

	var stores []pizzeria
	if err := readJSON(*addrPath, &stores); err != nil {
		logger.Fatal().Err(err).Msg("read addresses")
	}
	seedStores(ctx, client, stores, logger)
	logger.Info().Msg("seeding complete")
}

func readJSON(path string, v any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

// seedProducts keeps going after a failed item so one bad record does not block the rest.
func seedProducts(ctx context.Context, c *moltin.Client, items []menuItem, log *zerolog.Logger) {
	for _, it := range items {
		l := log.With().Str("product", it.Name).Logger()
		id, err := c.CreateProduct(ctx, moltin.ProductSeed{
			Name:        it.Name,
			Slug:        strconv.Itoa(it.ID),
			Description: it.Description,
			Price:       it.Price,
		})
		if err != nil {
			l.Error().Err(err).Msg("create product")
			continue
		}
		if it.ProductImage.URL == "" {
			continue
		}
		fileID, err := c.UploadFile(ctx, it.Name+".jpg", nil, it.ProductImage.URL)
		if err != nil {
			l.Error().Err(err).Msg("upload image")
			continue
		}
		if err := c.SetMainImage(ctx, id, fileID); err != nil {
			l.Error().Err(err).Msg("set main image")
			continue
		}
		l.Info().Str("id", id).Msg("product created")
	}
}

func seedFlow(ctx context.Context, c *moltin.Client, slug, desc string, fields []moltin.FieldSeed) error {
	flowID, err := c.CreateFlow(ctx, slug, desc)
	if err != nil {
		return err
	}
	for _, f := range fields {
		if _, err := c.CreateField(ctx, flowID, f); err != nil {
			return fmt.Errorf("field %s: %w", f.Name, err)
		}
	}
	return nil
}

func seedStores(ctx context.Context, c *moltin.Client, stores []pizzeria, log *zerolog.Logger) {
	for _, p := range stores {
		lat, err1 := strconv.ParseFloat(p.Coordinates.Lat, 64)
		lon, err2 := strconv.ParseFloat(p.Coordinates.Lon, 64)
		if err1 != nil || err2 != nil {
			log.Warn().Str("alias", p.Alias).Msg("bad coordinates, skipped")
			continue
		}
		fields := map[string]any{
			model.FieldAlias:     p.Alias,
			model.FieldAddress:   p.Address.Full,
			model.FieldLatitude:  lat,
			model.FieldLongitude: lon,
		}
		if p.CourierChatID != "" {
			fields[model.FieldCourierChatID] = p.CourierChatID
		}
		if _, err := c.CreateEntry(ctx, model.FlowPizzeria, fields); err != nil {
			log.Error().Err(err).Str("alias", p.Alias).Msg("create pizzeria entry")
		}
	}
}
