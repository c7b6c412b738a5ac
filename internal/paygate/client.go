package paygate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Transfer is one incoming peer-to-peer transfer reported by the
// payment provider.
type Transfer struct {
	ID           int
	SenderName   string
	SenderMobile string
	Amount       float64
	Date         time.Time
}

// Client talks to the payment provider's API. Tokens are cached and
// refreshed once on a 401 response.
type Client struct {
	baseURL  string
	mobileNo string
	password string
	deviceID string
	appID    string

	http   *http.Client
	tokens *TokenCache
	logger *slog.Logger
}

// ClientConfig configures a Client.
type ClientConfig struct {
	BaseURL  string
	MobileNo string
	Password string
	DeviceID string
	AppID    string

	// TokenTTL bounds how long a signin token is reused.
	TokenTTL time.Duration

	// HTTPClient overrides the default client. Tests only.
	HTTPClient *http.Client

	Logger *slog.Logger
}

// NewClient creates a Client.
func NewClient(cfg ClientConfig) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		baseURL:  strings.TrimSuffix(cfg.BaseURL, "/"),
		mobileNo: cfg.MobileNo,
		password: cfg.Password,
		deviceID: cfg.DeviceID,
		appID:    cfg.AppID,
		http:     httpClient,
		logger:   logger.With("component", "paygate"),
	}
	c.tokens = NewTokenCache(c, cfg.TokenTTL)
	return c
}

// FetchToken signs in and returns a fresh API token. Called through
// the token cache, not directly.
func (c *Client) FetchToken(ctx context.Context) (string, error) {
	form := url.Values{
		"mobile_no": {c.mobileNo},
		"password":  {c.password},
		"device_id": {c.deviceID},
		"app_id":    {c.appID},
		"lang":      {"en"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/signin/step1", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("provider signin: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("provider signin returned status %d", resp.StatusCode)
	}

	var body struct {
		Code     int      `json:"code"`
		APIToken string   `json:"api_token"`
		Messages []string `json:"messages"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode signin response: %w", err)
	}
	if body.Code != 200 {
		return "", fmt.Errorf("provider signin failed: code %d: %s",
			body.Code, strings.Join(body.Messages, ", "))
	}
	return body.APIToken, nil
}

type historyResponse struct {
	Code     int    `json:"code"`
	Messages []any  `json:"messages"`
	Data     []struct {
		ID        int       `json:"id"`
		Name      string    `json:"name"`
		MobileNo  string    `json:"mobile_no"`
		Flow      string    `json:"flow"`
		TxType    string    `json:"tx_type"`
		Amount    float64   `json:"amount"`
		Status    string    `json:"status"`
		UpdatedAt time.Time `json:"updated_at"`
	} `json:"data"`
}

// IncomingTransfers lists successful incoming peer-to-peer transfers.
func (c *Client) IncomingTransfers(ctx context.Context) ([]Transfer, error) {
	return c.incomingTransfers(ctx, true)
}

func (c *Client) incomingTransfers(ctx context.Context, retryAuth bool) ([]Transfer, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/transaction-history", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read transaction response: %w", err)
	}

	var body historyResponse
	// Decode failures fall through to the status checks below.
	_ = json.Unmarshal(raw, &body)

	if resp.StatusCode == http.StatusUnauthorized || body.Code == 401 {
		if !retryAuth {
			return nil, fmt.Errorf("provider rejected token after refresh")
		}
		c.logger.Debug("token rejected, refreshing")
		c.tokens.Invalidate()
		return c.incomingTransfers(ctx, false)
	}
	if body.Code != 200 {
		return nil, fmt.Errorf("provider API failed: code %d", body.Code)
	}

	var transfers []Transfer
	for _, t := range body.Data {
		if t.Flow != "in" || t.Status != "Success" || t.TxType != "P2P Transfer" {
			continue
		}
		transfers = append(transfers, Transfer{
			ID:           t.ID,
			SenderName:   t.Name,
			SenderMobile: t.MobileNo,
			Amount:       t.Amount,
			Date:         t.UpdatedAt,
		})
	}
	return transfers, nil
}
