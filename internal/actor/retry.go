package actor

import (
	"context"

	"fleetops/internal/api"
)

// Classifier extracts the wait encoded in a retryable error.
type Classifier func(error) (api.Wait, bool)

// RetryOnce runs op. If it fails with an error classify recognizes, wait is
// given the extracted delay and op runs exactly one more time. Any other
// error is returned unchanged.
func RetryOnce(ctx context.Context, op func(context.Context) error, classify Classifier, wait func(context.Context, api.Wait) error) error {
	err := op(ctx)
	if err == nil {
		return nil
	}
	w, ok := classify(err)
	if !ok {
		return err
	}
	if werr := wait(ctx, w); werr != nil {
		return werr
	}
	return op(ctx)
}
