package prices

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"time"

	"github.com/awaistahir/smart-heat/internal/engine"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
)

const (
	DefaultBaseURL = "https://api.octopus.energy/v1"
	// Current Agile product code - update as needed
	DefaultProduct = "AGILE-24-10-01"

	pageSize = 100
	maxPages = 20
)

// OctopusClient fetches unit rates for one electricity tariff
type OctopusClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	product    string
	tariff     string
}

// NewOctopusClient creates a client for a product/tariff pair. apiKey may be
// empty for public tariffs.
func NewOctopusClient(baseURL, apiKey, product, tariff string) *OctopusClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if product == "" {
		product = DefaultProduct
	}
	return &OctopusClient{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    baseURL,
		apiKey:     apiKey,
		product:    product,
		tariff:     tariff,
	}
}

// RegionTariff builds the single-register Agile tariff code for a region (A-P)
func RegionTariff(product, region string) string {
	return fmt.Sprintf("E-1R-%s-%s", product, region)
}

// octopusResponse represents the API response structure
type octopusResponse struct {
	Count    int          `json:"count"`
	Next     *string      `json:"next"`
	Previous *string      `json:"previous"`
	Results  []resultItem `json:"results"`
}

type resultItem struct {
	ValueExcVAT   float64   `json:"value_exc_vat"`
	ValueIncVAT   float64   `json:"value_inc_vat"`
	ValidFrom     time.Time `json:"valid_from"`
	ValidTo       time.Time `json:"valid_to"`
	PaymentMethod *string   `json:"payment_method"`
}

// Rates fetches every rate in [from, to), following pagination, in ascending order
func (c *OctopusClient) Rates(ctx context.Context, from, to time.Time) ([]engine.Rate, error) {
	if c.tariff == "" {
		return nil, fmt.Errorf("no tariff code configured")
	}

	endpoint := fmt.Sprintf("%s/products/%s/electricity-tariffs/%s/standard-unit-rates/",
		c.baseURL, c.product, c.tariff)

	params := url.Values{}
	params.Add("period_from", from.UTC().Format(time.RFC3339))
	params.Add("period_to", to.UTC().Format(time.RFC3339))
	params.Add("page_size", fmt.Sprint(pageSize))
	next := fmt.Sprintf("%s?%s", endpoint, params.Encode())

	rates := []engine.Rate{}
	for page := 0; next != ""; page++ {
		if page == maxPages {
			return nil, fmt.Errorf("more than %d pages of rates", maxPages)
		}

		resp, err := c.fetchPage(ctx, next)
		if err != nil {
			return nil, err
		}
		for _, r := range resp.Results {
			rates = append(rates, engine.Rate{
				ValidFrom:   r.ValidFrom,
				ValidTo:     r.ValidTo,
				ValueIncVAT: r.ValueIncVAT,
				ValueExcVAT: r.ValueExcVAT,
			})
		}

		logrus.WithFields(logrus.Fields{
			"tariff":  c.tariff,
			"page":    page,
			"results": len(resp.Results),
			"count":   resp.Count,
		}).Debug("fetched octopus rates page")

		next = ""
		if resp.Next != nil {
			next = *resp.Next
		}
	}

	// API returns in reverse chronological order
	slices.SortFunc(rates, func(a, b engine.Rate) int {
		return a.ValidFrom.Compare(b.ValidFrom)
	})

	return rates, nil
}

func (c *OctopusClient) fetchPage(ctx context.Context, fullURL string) (*octopusResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if c.apiKey != "" {
		req.SetBasicAuth(c.apiKey, "")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching prices: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(body))
	}

	var octResp octopusResponse
	if err := json.NewDecoder(resp.Body).Decode(&octResp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return &octResp, nil
}

// FetchTodayAndTomorrow fetches from the start of today until the start of
// the day after tomorrow, both in loc
func (c *OctopusClient) FetchTodayAndTomorrow(ctx context.Context, now time.Time, loc *time.Location) ([]engine.Rate, error) {
	from, to := TodayAndTomorrow(now, loc)
	rates, err := c.Rates(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("fetching rates %s - %s: %w", from.Format(time.RFC3339), to.Format(time.RFC3339), err)
	}
	return rates, nil
}

// TodayAndTomorrow returns the local midnight bounds of today and tomorrow
func TodayAndTomorrow(now time.Time, loc *time.Location) (time.Time, time.Time) {
	if loc == nil {
		loc = time.Local
	}
	local := now.In(loc)
	from := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	to := time.Date(local.Year(), local.Month(), local.Day()+2, 0, 0, 0, 0, loc)
	return from, to
}

// CurrentRate finds the rate in effect at now
func CurrentRate(rates []engine.Rate, now time.Time) *engine.Rate {
	for i := range rates {
		if !now.Before(rates[i].ValidFrom) && now.Before(rates[i].ValidTo) {
			return &rates[i]
		}
	}
	return nil
}

// Upcoming keeps the rates that have not yet ended at now
func Upcoming(rates []engine.Rate, now time.Time) []engine.Rate {
	return lo.Filter(rates, func(r engine.Rate, _ int) bool {
		return r.ValidTo.After(now)
	})
}
