package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/wh0th3h3llam1/agent-aid/internal/models"
)

// minAddressLen is the shortest address worth sending to the geocoder.
const minAddressLen = 5

// Geocoder resolves free-text addresses to coordinates. A nil result with a
// nil error means the provider had no match; callers proceed without
// coordinates either way.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (*models.Coordinates, error)

	// RateDelay is the courtesy pause between successive calls in batch
	// mode, mandated by the provider's usage policy.
	RateDelay() time.Duration
}

// NominatimGeocoder implements Geocoder against the OpenStreetMap Nominatim
// search API.
type NominatimGeocoder struct {
	baseURL   string
	userAgent string
	delay     time.Duration
	client    *http.Client
}

// NominatimConfig configures the Nominatim client.
type NominatimConfig struct {
	// BaseURL of the search endpoint. Default: the public Nominatim API.
	BaseURL string

	// UserAgent is required by the Nominatim usage policy.
	UserAgent string

	// RateDelay between batch calls. Default: 1s.
	RateDelay time.Duration

	// Timeout per request. Default: 10s.
	Timeout time.Duration
}

// NewNominatimGeocoder creates a client with defaults filled in.
func NewNominatimGeocoder(cfg NominatimConfig) *NominatimGeocoder {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://nominatim.openstreetmap.org/search"
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "AgentAid-DisasterResponse/1.0"
	}
	if cfg.RateDelay <= 0 {
		cfg.RateDelay = time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &NominatimGeocoder{
		baseURL:   cfg.BaseURL,
		userAgent: cfg.UserAgent,
		delay:     cfg.RateDelay,
		client:    &http.Client{Timeout: cfg.Timeout},
	}
}

type nominatimResult struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
	Address     struct {
		City     string `json:"city"`
		Town     string `json:"town"`
		State    string `json:"state"`
		Country  string `json:"country"`
		Postcode string `json:"postcode"`
	} `json:"address"`
}

// Geocode resolves the address. Addresses shorter than five characters are
// skipped without a provider call.
func (g *NominatimGeocoder) Geocode(ctx context.Context, address string) (*models.Coordinates, error) {
	if len(address) < minAddressLen {
		return nil, nil
	}

	q := url.Values{}
	q.Set("q", address)
	q.Set("format", "json")
	q.Set("limit", "1")
	q.Set("addressdetails", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", g.userAgent)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("geocoding request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("geocoder returned %d", resp.StatusCode)
	}

	var results []nominatimResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, fmt.Errorf("decoding geocoder response: %w", err)
	}
	if len(results) == 0 {
		return nil, nil
	}

	r := results[0]
	lat, err := strconv.ParseFloat(r.Lat, 64)
	if err != nil {
		return nil, fmt.Errorf("bad latitude %q: %w", r.Lat, err)
	}
	lon, err := strconv.ParseFloat(r.Lon, 64)
	if err != nil {
		return nil, fmt.Errorf("bad longitude %q: %w", r.Lon, err)
	}

	city := r.Address.City
	if city == "" {
		city = r.Address.Town
	}
	return &models.Coordinates{
		Latitude:         lat,
		Longitude:        lon,
		FormattedAddress: r.DisplayName,
		Confidence:       0.8, // Nominatim provides none
		City:             city,
		State:            r.Address.State,
		Country:          r.Address.Country,
		Postcode:         r.Address.Postcode,
	}, nil
}

// RateDelay returns the courtesy pause between batch calls.
func (g *NominatimGeocoder) RateDelay() time.Duration { return g.delay }
