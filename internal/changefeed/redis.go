package changefeed

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const defaultChannelPrefix = "changes:"

// Redis fans changes out over Redis pub/sub so every process sees every write.
// Channel per collection: <prefix><collection>.
type Redis struct {
	Rdb    *redis.Client
	Prefix string
}

func (r *Redis) prefix() string {
	if r.Prefix == "" {
		return defaultChannelPrefix
	}
	return r.Prefix
}

func (r *Redis) Publish(ctx context.Context, c Change) error {
	b, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return r.Rdb.Publish(ctx, r.prefix()+c.Collection, b).Err()
}

func (r *Redis) Subscribe(ctx context.Context, collections ...string) (<-chan Change, error) {
	var ps *redis.PubSub
	if len(collections) == 0 {
		ps = r.Rdb.PSubscribe(ctx, r.prefix()+"*")
	} else {
		channels := make([]string, 0, len(collections))
		for _, c := range collections {
			channels = append(channels, r.prefix()+c)
		}
		ps = r.Rdb.Subscribe(ctx, channels...)
	}
	// Wait for the subscription confirmation so nothing published after we return is missed.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}

	out := make(chan Change, 64)
	go func() {
		defer close(out)
		defer ps.Close()
		msgs := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var c Change
				if err := json.Unmarshal([]byte(msg.Payload), &c); err != nil {
					log.Warn().Err(err).Str("channel", msg.Channel).Msg("Malformed change notification")
					continue
				}
				select {
				case out <- c:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
