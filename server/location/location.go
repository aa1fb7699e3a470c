package location

import (
	"context"
	"fmt"
	"math"
	"time"
)

// DefaultFetchTimeout bounds how long a panic flow will wait for a
// fresh fix before falling back to the last known one.
const DefaultFetchTimeout = 10 * time.Second

// Fix is a single location sample. Callers must treat a 0.0
// latitude/longitude pair as "unknown", never as a coordinate.
type Fix struct {
	Latitude  float64
	Longitude float64
	Timestamp time.Time
}

// Source is the platform location feed the provider wraps.
type Source interface {
	// LastKnown returns the most recent cached fix, or nil if none.
	LastKnown() (*Fix, error)

	// RequestFresh blocks for a new fix until ctx is done.
	RequestFresh(ctx context.Context) (*Fix, error)

	// Subscribe emits fixes at roughly 'interval' until ctx is done.
	Subscribe(ctx context.Context, interval time.Duration) (<-chan Fix, error)
}

// Provider adds a bounded-wait fresh-fix request with last-known
// fallback and a staleness check on top of a Source.
type Provider struct {
	source       Source
	fetchTimeout time.Duration
	maxFixAge    time.Duration
}

func NewProvider(source Source, fetchTimeout, maxFixAge time.Duration) *Provider {
	return &Provider{
		source:       source,
		fetchTimeout: fetchTimeout,
		maxFixAge:    maxFixAge,
	}
}

// Current returns the best available fix within the provider's fetch
// timeout: a fresh fix if the source delivers one in time, otherwise
// the last known fix if it isn't stale, otherwise nil.
func (p *Provider) Current(ctx context.Context) *Fix {
	ctx, cancel := context.WithTimeout(ctx, p.fetchTimeout)
	defer cancel()

	fix, err := p.source.RequestFresh(ctx)
	if err == nil && fix != nil {
		return fix
	}

	fix, err = p.source.LastKnown()
	if err != nil || fix == nil {
		return nil
	}

	if p.maxFixAge > 0 && time.Since(fix.Timestamp) > p.maxFixAge {
		return nil
	}

	return fix
}

// Subscribe streams fixes from the source, dropping samples that
// moved less than 'minDistance' meters since the last emitted one.
func (p *Provider) Subscribe(ctx context.Context, interval time.Duration, minDistance float64) (<-chan Fix, error) {
	raw, err := p.source.Subscribe(ctx, interval)
	if err != nil {
		return nil, fmt.Errorf("location subscribe: %v", err)
	}

	out := make(chan Fix)
	go func() {
		defer close(out)

		var last *Fix
		for fix := range raw {
			if last != nil && minDistance > 0 && DistanceMeters(*last, fix) < minDistance {
				continue
			}

			f := fix
			last = &f

			select {
			case out <- fix:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

// DistanceMeters is the haversine distance between two fixes.
func DistanceMeters(a, b Fix) float64 {
	const earthRadiusMeters = 6371000.0

	lat1 := a.Latitude * math.Pi / 180
	lat2 := b.Latitude * math.Pi / 180
	dLat := (b.Latitude - a.Latitude) * math.Pi / 180
	dLng := (b.Longitude - a.Longitude) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)

	return 2 * earthRadiusMeters * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// MapsLink renders a fix as a shareable maps URL for alert messages.
func MapsLink(fix Fix) string {
	return fmt.Sprintf("https://maps.google.com/?q=%v,%v", fix.Latitude, fix.Longitude)
}
