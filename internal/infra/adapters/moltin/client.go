package moltin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"pizza-order-bot/internal/config"
	"pizza-order-bot/internal/domain"
)

const (
	service = "commerce"
	// tokenLeeway refreshes the token this long before it actually expires.
	tokenLeeway = 10 * time.Second
)

// Client talks to a Moltin-compatible commerce API. A bearer token obtained with
// the client-credentials grant is checked and refreshed by ensureToken before
// every call.
type Client struct {
	baseURL  string
	http     *http.Client
	creds    clientcredentials.Config
	currency string
	log      *zerolog.Logger

	mu    sync.Mutex
	token *oauth2.Token
	now   func() time.Time
}

func New(cfg config.CommerceConfig, logger *zerolog.Logger) *Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		baseURL: base,
		http:    &http.Client{Timeout: 15 * time.Second},
		creds: clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     base + "/oauth/access_token",
			AuthStyle:    oauth2.AuthStyleInParams,
		},
		currency: cfg.Currency,
		log:      logger,
		now:      time.Now,
	}
}

// ensureToken returns a bearer token valid for at least tokenLeeway.
func (c *Client) ensureToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != nil && c.token.AccessToken != "" && c.now().Add(tokenLeeway).Before(c.token.Expiry) {
		return c.token.AccessToken, nil
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.http)
	tok, err := c.creds.Token(ctx)
	if err != nil {
		return "", domain.Upstream(service, "token", statusOf(err), err)
	}
	c.log.Debug().Time("expiry", tok.Expiry).Msg("commerce token refreshed")
	c.token = tok
	return tok.AccessToken, nil
}

func (c *Client) dropToken() {
	c.mu.Lock()
	c.token = nil
	c.mu.Unlock()
}

func statusOf(err error) int {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && re.Response != nil {
		return re.Response.StatusCode
	}
	return 0
}

// do performs one authorized JSON call and returns the raw response body.
func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body any) ([]byte, error) {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode %s body: %w", op, err)
		}
		rd = bytes.NewReader(b)
	}
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", op, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(ctx, op, req)
}

// send authorizes and executes req. Transport failures and non-2xx replies
// become *domain.UpstreamError.
func (c *Client) send(ctx context.Context, op string, req *http.Request) ([]byte, error) {
	token, err := c.ensureToken(ctx)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	start := c.now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, domain.Upstream(service, op, 0, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, domain.Upstream(service, op, resp.StatusCode, err)
	}

	c.log.Trace().Str("op", op).Int("status", resp.StatusCode).Dur("took", c.now().Sub(start)).Msg("commerce call")
	if resp.StatusCode == http.StatusUnauthorized {
		c.dropToken()
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, domain.Upstream(service, op, resp.StatusCode, fmt.Errorf("%s", snippet(data)))
	}
	return data, nil
}

func snippet(b []byte) string {
	const max = 256
	s := strings.TrimSpace(string(b))
	if len(s) > max {
		s = s[:max]
	}
	return s
}
