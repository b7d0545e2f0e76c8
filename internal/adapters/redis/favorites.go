package redisad

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"service_locator/internal/domain"
)

// Favorites keeps the local favorites cache in one redis hash per device and
// announces every change on a pub/sub channel.
type Favorites struct {
	c       *redis.Client
	key     string
	channel string
}

func NewFavorites(c *redis.Client, device string) *Favorites {
	key := "favorites:" + device
	return &Favorites{c: c, key: key, channel: key + ":changed"}
}

func (f *Favorites) Upsert(ctx context.Context, fav domain.Favorite) error {
	b, err := json.Marshal(fav)
	if err != nil {
		return err
	}
	if err := f.c.HSet(ctx, f.key, fav.PlaceID, b).Err(); err != nil {
		return err
	}
	f.announce(ctx)
	return nil
}

func (f *Favorites) Delete(ctx context.Context, placeID string) error {
	n, err := f.c.HDel(ctx, f.key, placeID).Result()
	if err != nil {
		return err
	}
	if n > 0 {
		f.announce(ctx)
	}
	return nil
}

func (f *Favorites) DeleteAll(ctx context.Context) error {
	if err := f.c.Del(ctx, f.key).Err(); err != nil {
		return err
	}
	f.announce(ctx)
	return nil
}

func (f *Favorites) Exists(ctx context.Context, placeID string) (bool, error) {
	return f.c.HExists(ctx, f.key, placeID).Result()
}

func (f *Favorites) List(ctx context.Context) ([]domain.Favorite, error) {
	raw, err := f.c.HGetAll(ctx, f.key).Result()
	if err != nil {
		return nil, err
	}
	out := make([]domain.Favorite, 0, len(raw))
	for id, v := range raw {
		var fav domain.Favorite
		if err := json.Unmarshal([]byte(v), &fav); err != nil {
			log.Warn().Err(err).Str("place_id", id).Msg("skipping malformed cached favorite")
			continue
		}
		out = append(out, fav)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PlaceID < out[j].PlaceID })
	return out, nil
}

// Observe subscribes before taking the first snapshot so no change is missed.
func (f *Favorites) Observe(ctx context.Context) (<-chan []domain.Favorite, error) {
	ps := f.c.Subscribe(ctx, f.channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}
	first, err := f.List(ctx)
	if err != nil {
		_ = ps.Close()
		return nil, err
	}

	out := make(chan []domain.Favorite, 1)
	out <- first
	msgs := ps.Channel()

	go func() {
		defer close(out)
		defer ps.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-msgs:
				if !ok {
					return
				}
				snap, err := f.List(ctx)
				if err != nil {
					if ctx.Err() == nil {
						log.Warn().Err(err).Msg("favorites snapshot failed")
					}
					continue
				}
				select {
				case <-out:
				default:
				}
				out <- snap
			}
		}
	}()
	return out, nil
}

// announce tells observers to re-read. The write already landed, so a failed
// publish only delays observers until the next change.
func (f *Favorites) announce(ctx context.Context) {
	if err := f.c.Publish(ctx, f.channel, "1").Err(); err != nil {
		log.Warn().Err(err).Str("key", f.key).Msg("favorites change announce failed")
	}
}
