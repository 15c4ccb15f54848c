package gps

import (
	"math"
	"math/rand"
	"time"
)

const (
	kmPerDegreeLat = 110.574
	kmPerDegreeLng = 111.320
)

// RouteProvider synthesizes fixes along a circular route around a
// center point, for running devices without GPS hardware. Successive
// calls advance along the circle at the configured speed.
type RouteProvider struct {
	centerLat float64
	centerLng float64
	radiusKm  float64
	speedKmh  float64

	start time.Time
	now   func() time.Time
}

// NewRouteProvider creates a RouteProvider circling the given center.
// A nil clock defaults to time.Now.
func NewRouteProvider(centerLat, centerLng, radiusKm, speedKmh float64, now func() time.Time) *RouteProvider {
	if now == nil {
		now = time.Now
	}
	return &RouteProvider{
		centerLat: centerLat,
		centerLng: centerLng,
		radiusKm:  radiusKm,
		speedKmh:  speedKmh,
		start:     now(),
		now:       now,
	}
}

// GetPosition returns the fix for the current moment on the route.
func (r *RouteProvider) GetPosition() (Position, error) {
	elapsed := r.now().Sub(r.start)
	circumference := 2 * math.Pi * r.radiusKm
	laps := r.speedKmh * elapsed.Hours() / circumference
	angle := 2 * math.Pi * laps

	latOffset := r.radiusKm / kmPerDegreeLat * math.Cos(angle)
	lngScale := kmPerDegreeLng * math.Cos(r.centerLat*math.Pi/180)
	lngOffset := r.radiusKm / lngScale * math.Sin(angle)

	// Bearing of the tangent, clockwise from north.
	heading := math.Atan2(math.Cos(angle), -math.Sin(angle)) * 180 / math.Pi
	heading = math.Mod(heading+360, 360)

	return Position{
		Lat:     r.centerLat + latOffset,
		Lng:     r.centerLng + lngOffset,
		Speed:   r.speedKmh,
		Heading: int(heading),
		Sats:    8 + rand.Intn(5),
	}, nil
}

// Close is a no-op for the synthetic route.
func (r *RouteProvider) Close() error {
	return nil
}
