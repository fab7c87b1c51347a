package eta

import (
	"context"
	"fmt"
	"math"
	"time"

	"googlemaps.github.io/maps"

	"parktayo/pkg/logger"
)

// Confidence grades how much the booking core should trust an estimate.
type Confidence string

const (
	ConfidenceHigh Confidence = "high"
	ConfidenceLow  Confidence = "low"
)

// Source identifies where an estimate came from.
type Source string

const (
	SourceGoogleMaps Source = "google_maps"
	SourceFallback   Source = "fallback"
)

// Point is a WGS84 coordinate pair.
type Point struct {
	Latitude  float64
	Longitude float64
}

// Estimate is a travel-time answer. Minutes is always usable: when the
// upstream provider fails the oracle degrades to a fixed fallback rather
// than failing the booking.
type Estimate struct {
	Minutes    int        `json:"minutes"`
	Confidence Confidence `json:"confidence"`
	Source     Source     `json:"source"`
}

// Oracle estimates driving time between two points.
type Oracle interface {
	Estimate(ctx context.Context, origin, destination Point) Estimate
}

// googleOracle asks the Google Maps Distance Matrix API, driving mode with
// live traffic, under a hard timeout.
type googleOracle struct {
	client          *maps.Client
	timeout         time.Duration
	region          string
	fallbackMinutes int
	log             *logger.Logger
}

// Config holds the oracle's tunables.
type Config struct {
	APIKey          string
	Timeout         time.Duration
	Region          string
	FallbackMinutes int
}

// NewOracle builds the Google Maps oracle. An empty API key yields an
// always-fallback oracle so development environments work offline.
func NewOracle(cfg Config) (Oracle, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.FallbackMinutes <= 0 {
		cfg.FallbackMinutes = 30
	}

	if cfg.APIKey == "" {
		return &fallbackOracle{minutes: cfg.FallbackMinutes}, nil
	}

	client, err := maps.NewClient(maps.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}

	return &googleOracle{
		client:          client,
		timeout:         cfg.Timeout,
		region:          cfg.Region,
		fallbackMinutes: cfg.FallbackMinutes,
		log:             logger.GetDefault(),
	}, nil
}

func (o *googleOracle) Estimate(ctx context.Context, origin, destination Point) Estimate {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	r := &maps.DistanceMatrixRequest{
		Origins:       []string{latLngParam(origin)},
		Destinations:  []string{latLngParam(destination)},
		Mode:          maps.TravelModeDriving,
		DepartureTime: "now",
	}

	resp, err := o.client.DistanceMatrix(ctx, r)
	if err != nil {
		o.log.Warn("distance matrix request failed", "error", err)
		return o.fallback()
	}
	if len(resp.Rows) == 0 || len(resp.Rows[0].Elements) == 0 {
		o.log.Warn("distance matrix returned no elements")
		return o.fallback()
	}

	element := resp.Rows[0].Elements[0]
	if element.Status != "OK" {
		o.log.Warn("distance matrix element not ok", "status", element.Status)
		return o.fallback()
	}

	duration := element.Duration
	if element.DurationInTraffic > 0 {
		duration = element.DurationInTraffic
	}

	minutes := int(math.Ceil(duration.Minutes()))
	if minutes < 1 {
		minutes = 1
	}
	return Estimate{Minutes: minutes, Confidence: ConfidenceHigh, Source: SourceGoogleMaps}
}

func (o *googleOracle) fallback() Estimate {
	return Estimate{Minutes: o.fallbackMinutes, Confidence: ConfidenceLow, Source: SourceFallback}
}

// fallbackOracle always answers with the configured fixed estimate.
type fallbackOracle struct {
	minutes int
}

func (f *fallbackOracle) Estimate(ctx context.Context, origin, destination Point) Estimate {
	return Estimate{Minutes: f.minutes, Confidence: ConfidenceLow, Source: SourceFallback}
}

func latLngParam(p Point) string {
	return fmt.Sprintf("%f,%f", p.Latitude, p.Longitude)
}
