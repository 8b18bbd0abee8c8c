package cli

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"github.com/FrenchMajesty/turbo-retry/imagegen"
	"github.com/google/uuid"
)

// demoGenerator stands in for an image API when no provider is configured.
// It is slow and flaky on purpose so retries show up in the state and events.
type demoGenerator struct {
	failureRate float32
}

var _ imagegen.Generator = (*demoGenerator)(nil)

func (d *demoGenerator) Generate(ctx context.Context, req imagegen.Request) (*imagegen.Image, error) {
	// Simulate processing time (200ms to 2000ms)
	processingTime := time.Duration(200+rand.Intn(1800)) * time.Millisecond

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(processingTime):
	}

	// Simulate occasional upstream errors
	if rand.Float32() < d.failureRate {
		return nil, &imagegen.RequestError{
			StatusCode: http.StatusServiceUnavailable,
			Err:        fmt.Errorf("demo generator overloaded"),
		}
	}

	return &imagegen.Image{
		URL:           fmt.Sprintf("https://picsum.photos/seed/%s/%d/%d", uuid.NewString(), orDefault(req.Width, imagegen.DefaultWidth), orDefault(req.Height, imagegen.DefaultHeight)),
		RevisedPrompt: req.FullPrompt(),
		Model:         "demo",
		Size:          req.Size(),
		CreatedAt:     time.Now().UTC(),
	}, nil
}

func orDefault(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}
