package changefeed

import (
	"context"

	"github.com/reactivex/rxgo/v2"
)

// Watch turns a subscription on one collection into an observable of Change
// values, optionally narrowed by match. The stream ends when ctx is cancelled.
func Watch(ctx context.Context, sub Subscriber, collection string, match func(Change) bool) (rxgo.Observable, error) {
	ch, err := sub.Subscribe(ctx, collection)
	if err != nil {
		return nil, err
	}
	items := make(chan rxgo.Item)
	go func() {
		defer close(items)
		for c := range ch {
			select {
			case items <- rxgo.Of(c):
			case <-ctx.Done():
				return
			}
		}
	}()
	return rxgo.FromChannel(items, rxgo.WithContext(ctx)).Filter(func(i interface{}) bool {
		c, ok := i.(Change)
		return ok && (match == nil || match(c))
	}), nil
}
