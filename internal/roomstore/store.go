// Package roomstore adapts Redis to the narrow contract the session
// layer relies on: a room is a hash whose fields are last-write-wins
// independently of one another, and every write is followed by a
// pub/sub notification so each subscriber can re-fetch the full
// record. Nothing here is transactional across fields; interleaving
// safety is the callers' single-writer-per-turn discipline.
package roomstore

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/kapu/chess-rooms-go/internal/obslog"
	"github.com/kapu/chess-rooms-go/internal/room"
)

// Rooms are ephemeral; anything a client never cleans up expires on
// its own.
const ttlRoom = 24 * time.Hour

type Store struct {
	rdb *redis.Client
}

func New(rdb *redis.Client) *Store { return &Store{rdb: rdb} }

// Open connects to the store at redisURL and verifies the connection.
func Open(redisURL string) (*Store, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, fmt.Errorf("REDIS_URL required for room store")
	}
	opts, err := parseRedisURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Store{rdb: rdb}, nil
}

func (s *Store) Close() error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.Close()
}

func key(code string) string       { return "room:" + strings.TrimSpace(code) }
func eventsKey(code string) string { return key(code) + ":events" }

// Create claims code and writes the initial record. Fails with
// ErrCodeTaken when the code already denotes a live room.
func (s *Store) Create(ctx context.Context, r *room.Room) error {
	if r == nil || strings.TrimSpace(r.Code) == "" {
		return room.ErrInvalidArgs
	}
	code := strings.TrimSpace(r.Code)
	ok, err := s.rdb.HSetNX(ctx, key(code), fieldCode, code).Result()
	if err != nil {
		return err
	}
	if !ok {
		return room.ErrCodeTaken
	}
	if err := s.rdb.HSet(ctx, key(code), encodeRoom(r)).Err(); err != nil {
		return err
	}
	_ = s.rdb.Expire(ctx, key(code), ttlRoom).Err()
	return s.publish(ctx, code)
}

// Get returns the current snapshot, or ErrRoomNotFound.
func (s *Store) Get(ctx context.Context, code string) (*room.Room, error) {
	raw, err := s.rdb.HGetAll(ctx, key(code)).Result()
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, room.ErrRoomNotFound
	}
	return decodeRoom(strings.TrimSpace(code), raw), nil
}

// Patch merges the named fields into the record. Each field write is
// last-write-wins on arrival order at the store; the patch as a whole
// is not atomic with respect to unrelated fields.
func (s *Store) Patch(ctx context.Context, code string, p room.Patch) error {
	if p.IsZero() {
		return nil
	}
	set, del := encodePatch(p)
	k := key(code)
	if len(set) > 0 {
		if err := s.rdb.HSet(ctx, k, set).Err(); err != nil {
			return err
		}
	}
	if len(del) > 0 {
		if err := s.rdb.HDel(ctx, k, del...).Err(); err != nil {
			return err
		}
	}
	_ = s.rdb.Expire(ctx, k, ttlRoom).Err()
	return s.publish(ctx, code)
}

// Remove deletes the record. Removing an already-removed room is a
// no-op; cleanup is convergent and any number of observers may race
// to issue it.
func (s *Store) Remove(ctx context.Context, code string) error {
	if err := s.rdb.Del(ctx, key(code)).Err(); err != nil {
		return err
	}
	return s.publish(ctx, code)
}

func (s *Store) publish(ctx context.Context, code string) error {
	return s.rdb.Publish(ctx, eventsKey(code), "update").Err()
}

// Subscription delivers room snapshots: the current one immediately,
// then one per observed change, at least once. A nil snapshot means
// the room no longer exists. Close suppresses future deliveries; it
// never cancels in-flight writes.
type Subscription struct {
	ID string

	ch   chan *room.Room
	ps   *redis.PubSub
	once sync.Once
}

func (sub *Subscription) Snapshots() <-chan *room.Room { return sub.ch }

func (sub *Subscription) Close() error {
	var err error
	sub.once.Do(func() { err = sub.ps.Close() })
	return err
}

// Subscribe registers for change notifications on code. The returned
// subscription owns one pub/sub connection; the caller must Close it.
func (s *Store) Subscribe(ctx context.Context, code string) (*Subscription, error) {
	ps := s.rdb.Subscribe(ctx, eventsKey(code))
	// confirm the subscription before the initial snapshot so no
	// change between the two can be missed
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}
	sub := &Subscription{ID: uuid.NewString(), ch: make(chan *room.Room, 8), ps: ps}
	go sub.loop(ctx, s, code)
	return sub, nil
}

func (sub *Subscription) loop(ctx context.Context, s *Store, code string) {
	defer close(sub.ch)
	deliver := func() bool {
		r, err := s.Get(ctx, code)
		if err != nil && !errors.Is(err, room.ErrRoomNotFound) {
			obslog.L().Warn("room_snapshot_error",
				zap.String("code", code),
				zap.String("sub_id", sub.ID),
				zap.Error(err),
			)
			return true
		}
		select {
		case sub.ch <- r:
			return true
		case <-ctx.Done():
			return false
		}
	}
	if !deliver() {
		return
	}
	msgs := sub.ps.Channel()
	for {
		select {
		case _, ok := <-msgs:
			if !ok {
				return
			}
			if !deliver() {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func parseRedisURL(raw string) (*redis.Options, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	db := 0
	if p := strings.TrimPrefix(u.Path, "/"); p != "" {
		if n, err := strconv.Atoi(p); err == nil {
			db = n
		}
	}
	pass, _ := u.User.Password()
	return &redis.Options{Addr: u.Host, Password: pass, DB: db}, nil
}
