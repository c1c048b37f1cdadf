package moltin

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"

	"github.com/tidwall/gjson"
)

// Catalog administration used by the seeding tool.

type ProductSeed struct {
	Name        string
	Slug        string
	Description string
	Price       int // major currency units
}

type FieldSeed struct {
	Name        string
	Type        string // string, float, integer, boolean
	Description string
}

func (c *Client) CreateProduct(ctx context.Context, p ProductSeed) (string, error) {
	body := map[string]any{"data": map[string]any{
		"type":           "product",
		"name":           p.Name,
		"slug":           p.Slug,
		"sku":            p.Slug,
		"manage_stock":   false,
		"description":    p.Description,
		"status":         "live",
		"commodity_type": "physical",
		"price": []map[string]any{{
			"amount":       p.Price * 100,
			"currency":     c.currency,
			"includes_tax": true,
		}},
	}}
	resp, err := c.do(ctx, "create_product", http.MethodPost, "/v2/products", nil, body)
	if err != nil {
		return "", err
	}
	return gjson.GetBytes(resp, "data.id").String(), nil
}

// UploadFile stores a file, either from r or, when r is nil, from fileURL.
func (c *Client) UploadFile(ctx context.Context, name string, r io.Reader, fileURL string) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if r != nil {
		fw, err := mw.CreateFormFile("file", name)
		if err != nil {
			return "", err
		}
		if _, err := io.Copy(fw, r); err != nil {
			return "", fmt.Errorf("read %s: %w", name, err)
		}
	} else {
		if err := mw.WriteField("file_location", fileURL); err != nil {
			return "", err
		}
	}
	if err := mw.Close(); err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v2/files", &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := c.send(ctx, "upload_file", req)
	if err != nil {
		return "", err
	}
	return gjson.GetBytes(resp, "data.id").String(), nil
}

func (c *Client) SetMainImage(ctx context.Context, productID, fileID string) error {
	body := map[string]any{"data": map[string]any{"id": fileID, "type": "main_image"}}
	path := "/v2/products/" + url.PathEscape(productID) + "/relationships/main-image"
	_, err := c.do(ctx, "set_main_image", http.MethodPost, path, nil, body)
	return err
}

func (c *Client) CreateFlow(ctx context.Context, slug, description string) (string, error) {
	body := map[string]any{"data": map[string]any{
		"type":        "flow",
		"name":        slug,
		"slug":        slug,
		"description": description,
		"enabled":     true,
	}}
	resp, err := c.do(ctx, "create_flow", http.MethodPost, "/v2/flows", nil, body)
	if err != nil {
		return "", err
	}
	return gjson.GetBytes(resp, "data.id").String(), nil
}

func (c *Client) CreateField(ctx context.Context, flowID string, f FieldSeed) (string, error) {
	body := map[string]any{"data": map[string]any{
		"type":        "field",
		"name":        f.Name,
		"slug":        f.Name,
		"field_type":  f.Type,
		"description": f.Description,
		"required":    true,
		"enabled":     true,
		"relationships": map[string]any{
			"flow": map[string]any{"data": map[string]any{"type": "flow", "id": flowID}},
		},
	}}
	resp, err := c.do(ctx, "create_field", http.MethodPost, "/v2/fields", nil, body)
	if err != nil {
		return "", err
	}
	return gjson.GetBytes(resp, "data.id").String(), nil
}
