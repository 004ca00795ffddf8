package yahoo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/time/rate"

	"github.com/username/portfoliopulse/backend/src/logger"
	"github.com/username/portfoliopulse/backend/src/models"
)

const (
	DefaultBaseURL = "https://query1.finance.yahoo.com"

	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

	// Quotes fetched once for a ticker are reused for the rest of the day.
	priceCacheTTL     = 10 * time.Minute
	priceCacheCleanup = 30 * time.Minute
)

type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Currency           string  `json:"currency"`
				Symbol             string  `json:"symbol"`
				RegularMarketPrice float64 `json:"regularMarketPrice"`
			} `json:"meta"`
		} `json:"result"`
		Error interface{} `json:"error"`
	} `json:"chart"`
}

// Config holds the tunables of the Yahoo provider.
type Config struct {
	// BaseURL points at the query API; tests override it.
	BaseURL string
	// RequestInterval paces consecutive quote requests.
	RequestInterval time.Duration
}

// Provider fetches current quotes from the Yahoo Finance chart API. It keeps
// a crumb-authenticated session alive, paces its requests and caches quotes
// so repeated update runs do not hammer the API. It satisfies the
// sources.Provider contract: no data means an empty table, not an error.
type Provider struct {
	httpClient http.Client
	baseURL    string
	limiter    *rate.Limiter
	quoteCache *cache.Cache

	mu            sync.Mutex
	crumb         string
	isInitialized bool
}

// NewProvider creates a Yahoo provider. The session crumb is fetched lazily
// on the first Fetch rather than at construction.
func NewProvider(cfg Config) *Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.RequestInterval <= 0 {
		cfg.RequestInterval = 250 * time.Millisecond
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		logger.L.Error("Failed to create cookie jar", "error", err)
	}

	return &Provider{
		httpClient: http.Client{
			Jar:     jar,
			Timeout: 20 * time.Second,
		},
		baseURL:    cfg.BaseURL,
		limiter:    rate.NewLimiter(rate.Every(cfg.RequestInterval), 1),
		quoteCache: cache.New(priceCacheTTL, priceCacheCleanup),
	}
}

// Fetch returns a table with one row per resolvable ticker, columns TICKER
// and PRECO_ATUAL. Expects params["tickers"] as []string (or []any of
// strings); anything else is a programmer error. Per-ticker failures are
// logged and skipped; a run where nothing resolves yields an empty table.
func (p *Provider) Fetch(ctx context.Context, params map[string]any) (*models.Table, error) {
	tickers, err := tickerParam(params)
	if err != nil {
		return nil, err
	}
	if len(tickers) == 0 {
		return models.NewTable(), nil
	}

	p.ensureSession(ctx)

	out := models.NewTable()
	for _, ticker := range tickers {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		price, err := p.quote(ctx, ticker)
		if err != nil {
			logger.L.Warn("Could not get price for ticker", "ticker", ticker, "error", err)
			continue
		}
		out.AppendRow(map[string]any{
			models.ColTicker:       ticker,
			models.ColCurrentPrice: price,
		})
	}
	return out, nil
}

func tickerParam(params map[string]any) ([]string, error) {
	raw, ok := params["tickers"]
	if !ok || raw == nil {
		return nil, nil
	}
	switch v := raw.(type) {
	case []string:
		return v, nil
	case []any:
		tickers := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("yahoo: tickers must be strings, got %T", item)
			}
			tickers = append(tickers, s)
		}
		return tickers, nil
	default:
		return nil, fmt.Errorf("yahoo: invalid tickers parameter type %T", raw)
	}
}

func (p *Provider) quote(ctx context.Context, ticker string) (float64, error) {
	cacheKey := fmt.Sprintf("quote-%s-%s", ticker, time.Now().Format("2006-01-02"))
	if cached, found := p.quoteCache.Get(cacheKey); found {
		return cached.(float64), nil
	}

	quoteURL := fmt.Sprintf("%s/v8/finance/chart/%s?crumb=%s", p.baseURL, ticker, p.currentCrumb())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, quoteURL, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to call Yahoo chart API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		p.mu.Lock()
		p.isInitialized = false
		p.mu.Unlock()
		return 0, fmt.Errorf("status 401 (Unauthorized) - crumb invalid")
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("yahoo chart API returned non-OK status %d", resp.StatusCode)
	}

	var chartData chartResponse
	if err := json.NewDecoder(resp.Body).Decode(&chartData); err != nil {
		return 0, fmt.Errorf("failed to decode Yahoo chart response: %w", err)
	}
	if chartData.Chart.Error != nil {
		return 0, fmt.Errorf("yahoo chart API returned an error: %v", chartData.Chart.Error)
	}
	if len(chartData.Chart.Result) == 0 || chartData.Chart.Result[0].Meta.RegularMarketPrice == 0 {
		return 0, fmt.Errorf("no price data found")
	}

	price := chartData.Chart.Result[0].Meta.RegularMarketPrice
	p.quoteCache.Set(cacheKey, price, cache.DefaultExpiration)
	return price, nil
}

func (p *Provider) currentCrumb() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.crumb
}

func (p *Provider) ensureSession(ctx context.Context) {
	p.mu.Lock()
	needsInit := !p.isInitialized || p.crumb == ""
	p.mu.Unlock()

	if needsInit {
		p.initializeSession(ctx)
	}
}

func (p *Provider) initializeSession(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.isInitialized && p.crumb != "" {
		return
	}

	logger.L.Info("Initializing Yahoo Finance session and fetching crumb...")

	// The cookie warm-up only makes sense against the real endpoints.
	if p.baseURL == DefaultBaseURL {
		for _, warmup := range []string{"https://fc.yahoo.com", "https://finance.yahoo.com"} {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, warmup, nil)
			if err != nil {
				continue
			}
			req.Header.Set("User-Agent", userAgent)
			if resp, err := p.httpClient.Do(req); err == nil {
				io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
			}
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/v1/test/getcrumb", nil)
	if err != nil {
		return
	}
	req.Header.Set("User-Agent", userAgent)
	resp, err := p.httpClient.Do(req)
	if err != nil {
		logger.L.Error("Failed to fetch crumb", "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		p.crumb = string(bodyBytes)
		p.isInitialized = true
		logger.L.Info("Yahoo session initialized successfully")
	} else {
		logger.L.Warn("Failed to fetch crumb", "status", resp.Status)
	}
}
