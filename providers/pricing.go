package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/agmanagement/kyc-intake/interfaces"
)

// coingeckoIDs maps asset symbols to CoinGecko ids. Unknown symbols fall
// back to bitcoin, matching the behavior the frontend has always relied on.
var coingeckoIDs = map[string]string{
	"BTC":   "bitcoin",
	"ETH":   "ethereum",
	"USDT":  "tether",
	"USDC":  "usd-coin",
	"SOL":   "solana",
	"ADA":   "cardano",
	"XRP":   "ripple",
	"BNB":   "binancecoin",
	"DOGE":  "dogecoin",
	"TRX":   "tron",
	"AVAX":  "avalanche-2",
	"DOT":   "polkadot",
	"MATIC": "matic-network",
	"TON":   "the-open-network",
	"SHIB":  "shiba-inu",
}

// CoinGecko resolves USD unit prices from the public CoinGecko simple-price
// API.
type CoinGecko struct {
	baseURL string
	client  *http.Client
	log     *slog.Logger
}

// NewCoinGecko creates a pricing client against the public API.
func NewCoinGecko(log *slog.Logger) *CoinGecko {
	return &CoinGecko{
		baseURL: "https://api.coingecko.com/api/v3",
		client:  &http.Client{Timeout: 10 * time.Second},
		log:     log,
	}
}

// NewCoinGeckoWithBaseURL creates a pricing client against a custom endpoint
// (tests, proxies).
func NewCoinGeckoWithBaseURL(baseURL string, log *slog.Logger) *CoinGecko {
	c := NewCoinGecko(log)
	c.baseURL = strings.TrimSuffix(baseURL, "/")
	return c
}

// USDPrice fetches the current USD price for the asset symbol. Any feed
// failure or unusable response maps to ErrPriceUnavailable.
func (c *CoinGecko) USDPrice(ctx context.Context, asset string) (float64, error) {
	id, ok := coingeckoIDs[strings.ToUpper(asset)]
	if !ok {
		id = coingeckoIDs["BTC"]
	}

	endpoint := fmt.Sprintf("%s/simple/price?ids=%s&vs_currencies=usd", c.baseURL, url.QueryEscape(id))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: building price request: %v", interfaces.ErrPriceUnavailable, err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", interfaces.ErrPriceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("%w: price provider returned %d", interfaces.ErrPriceUnavailable, resp.StatusCode)
	}

	var body map[string]struct {
		USD float64 `json:"usd"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("%w: decoding price response: %v", interfaces.ErrPriceUnavailable, err)
	}

	price := body[id].USD
	if price <= 0 {
		return 0, fmt.Errorf("%w: no usd price for %s", interfaces.ErrPriceUnavailable, asset)
	}

	c.log.Debug("Fetched USD price", "asset", asset, "price", price)
	return price, nil
}
