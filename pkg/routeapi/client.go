package routeapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/eko/gocache/lib/v4/cache"
	"github.com/eko/gocache/lib/v4/store"
	redisstore "github.com/eko/gocache/store/redis/v4"
	"github.com/railwatch/railwatch/pkg/redis_client"
	"github.com/railwatch/railwatch/pkg/ride"
	"github.com/railwatch/railwatch/pkg/util"
	"github.com/rs/zerolog/log"
)

const defaultEndpoint = "https://api.raildata.localhost"

// Client fetches live route status from the upstream rail data provider.
// Responses are cached briefly in Redis so many rides tracking the same
// service share a single upstream fetch.
type Client struct {
	Endpoint   string
	HTTPClient *http.Client

	Cache *cache.Cache[string]
}

type statusResponse struct {
	ServiceRef         string `json:"serviceRef"`
	Cancelled          bool   `json:"cancelled"`
	DelayMinutes       int    `json:"delayMinutes"`
	Platform           string `json:"platform"`
	EstimatedDeparture string `json:"estimatedDeparture"`
}

func NewClient(cacheTTL time.Duration) *Client {
	endpoint := defaultEndpoint

	env := util.GetEnvironmentVariables()
	if env["RAILWATCH_ROUTEAPI_ENDPOINT"] != "" {
		endpoint = env["RAILWATCH_ROUTEAPI_ENDPOINT"]
	}

	client := &Client{
		Endpoint:   endpoint,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}

	if redis_client.Client != nil {
		redisStore := redisstore.NewRedis(redis_client.Client, store.WithExpiration(cacheTTL))
		client.Cache = cache.New[string](redisStore)
	}

	return client
}

func (c *Client) LookupStatus(ctx context.Context, route ride.Route) (*ride.RouteStatus, error) {
	cacheKey := fmt.Sprintf("routestatus:%s:%s", route.ServiceRef, route.DepartureTime.Format("2006-01-02"))

	if c.Cache != nil {
		if cached, err := c.Cache.Get(ctx, cacheKey); err == nil {
			var status *ride.RouteStatus
			if err := json.Unmarshal([]byte(cached), &status); err == nil {
				return status, nil
			}
		}
	}

	var body []byte

	operation := func() error {
		requestURL := fmt.Sprintf("%s/services/%s/status?date=%s", c.Endpoint, route.ServiceRef, route.DepartureTime.Format("2006-01-02"))

		req, err := http.NewRequestWithContext(ctx, "GET", requestURL, nil)
		if err != nil {
			return backoff.Permanent(err)
		}

		resp, err := c.HTTPClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("route status request returned %d", resp.StatusCode)
		}

		body, err = io.ReadAll(resp.Body)
		return err
	}

	retryPolicy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(2*time.Second), 2), ctx)

	if err := backoff.Retry(operation, retryPolicy); err != nil {
		log.Error().Err(err).Str("event", "routeapi.fetch.failed").Str("service", route.ServiceRef).Msg("Failed to fetch route status")
		return nil, err
	}

	var response statusResponse
	if err := json.Unmarshal(body, &response); err != nil {
		log.Error().Err(err).Str("event", "routeapi.fetch.failed").Str("service", route.ServiceRef).Msg("Failed to decode route status")
		return nil, err
	}

	status := &ride.RouteStatus{
		ServiceRef:   response.ServiceRef,
		Cancelled:    response.Cancelled,
		DelayMinutes: response.DelayMinutes,
		Platform:     response.Platform,
		RetrievedAt:  time.Now(),
	}

	if response.EstimatedDeparture != "" {
		estimated, err := time.Parse(time.RFC3339, response.EstimatedDeparture)
		if err == nil {
			status.EstimatedDeparture = estimated
		}
	}

	log.Debug().Str("event", "routeapi.fetch.success").Str("service", route.ServiceRef).Send()

	if c.Cache != nil {
		if encoded, err := json.Marshal(status); err == nil {
			c.Cache.Set(ctx, cacheKey, string(encoded))
		}
	}

	return status, nil
}
