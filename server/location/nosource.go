package location

import (
	"context"
	"time"
)

// NoSource is the Source used when the host has no location
// hardware configured. Every alert path degrades to "location
// unavailable" instead of failing.
type NoSource struct{}

func (NoSource) LastKnown() (*Fix, error) { return nil, nil }

func (NoSource) RequestFresh(ctx context.Context) (*Fix, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (NoSource) Subscribe(ctx context.Context, interval time.Duration) (<-chan Fix, error) {
	ch := make(chan Fix)
	go func() {
		<-ctx.Done()
		close(ch)
	}()

	return ch, nil
}
