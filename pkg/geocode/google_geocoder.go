// Package geocode turns event coordinates into street addresses for
// notification text. Geocoding is cosmetic: callers fall back to raw
// coordinates whenever it fails.
package geocode

import (
	"context"
	"errors"
	"time"

	"googlemaps.github.io/maps"
)

// Geocoder resolves a coordinate pair to a human-readable place label.
type Geocoder interface {
	ReverseGeocode(ctx context.Context, latitude, longitude float64) (string, error)
}

// GoogleGeocoder uses the Google Maps Geocoding API.
type GoogleGeocoder struct {
	client  *maps.Client
	timeout time.Duration
}

// NewGoogleGeocoder creates a GoogleGeocoder with the given API key.
func NewGoogleGeocoder(apiKey string) (*GoogleGeocoder, error) {
	c, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}

	return &GoogleGeocoder{
		client:  c,
		timeout: 10 * time.Second,
	}, nil
}

// ReverseGeocode returns the formatted address of the first geocoding
// result for the coordinates.
func (g *GoogleGeocoder) ReverseGeocode(ctx context.Context, latitude, longitude float64) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	results, err := g.client.ReverseGeocode(ctx, &maps.GeocodingRequest{
		LatLng: &maps.LatLng{Lat: latitude, Lng: longitude},
	})
	if err != nil {
		return "", err
	}
	if len(results) == 0 {
		return "", errors.New("no geocoding results")
	}

	return results[0].FormattedAddress, nil
}
