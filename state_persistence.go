package lottery

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	// StateKeyPrefix is the prefix of every key the Redis store writes
	StateKeyPrefix = "lottery:"

	// MaxSerializationSize is the maximum size of a single persisted record
	MaxSerializationSize = 10 * 1024 * 1024 // 10MB
)

// RedisStoreOptions tunes the Redis store
type RedisStoreOptions struct {
	// Prefix replaces StateKeyPrefix, so several engines can share one Redis
	Prefix string

	// MaxRetries is the number of retries for a failed commit or load
	MaxRetries int

	// RetryDelay is the base delay of the exponential backoff
	RetryDelay time.Duration
}

// RedisStore persists engine state in Redis.
//
// Layout (with the default prefix):
//
//	lottery:meta               string  engine metadata, scheduler and guard state
//	lottery:treasury           string  treasury balances
//	lottery:draws              hash    draw id -> draw
//	lottery:tickets            hash    ticket id -> ticket
//	lottery:players            hash    principal -> player stats
//	lottery:owner:<principal>  set     ticket ids owned by a player
//	lottery:draw:<id>:tickets  set     ticket ids sold for a draw
//
// A change set is written in one MULTI/EXEC transaction.
type RedisStore struct {
	client   *redis.Client
	logger   Logger
	prefix   string
	recovery *ErrorRecovery
}

// NewRedisStore creates a store on top of client
func NewRedisStore(client *redis.Client, logger Logger, opts *RedisStoreOptions) *RedisStore {
	if logger == nil {
		logger = NewSilentLogger()
	}
	o := RedisStoreOptions{Prefix: StateKeyPrefix, MaxRetries: DefaultRetryAttempts, RetryDelay: DefaultRetryInterval}
	if opts != nil {
		if opts.Prefix != "" {
			o.Prefix = opts.Prefix
		}
		if opts.MaxRetries >= 0 {
			o.MaxRetries = opts.MaxRetries
		}
		if opts.RetryDelay > 0 {
			o.RetryDelay = opts.RetryDelay
		}
	}

	return &RedisStore{
		client:   client,
		logger:   logger,
		prefix:   o.Prefix,
		recovery: NewErrorRecovery(NewErrorHandlerWithDelay(logger, o.RetryDelay), o.MaxRetries, logger),
	}
}

func (s *RedisStore) metaKey() string     { return s.prefix + "meta" }
func (s *RedisStore) treasuryKey() string { return s.prefix + "treasury" }
func (s *RedisStore) drawsKey() string    { return s.prefix + "draws" }
func (s *RedisStore) ticketsKey() string  { return s.prefix + "tickets" }
func (s *RedisStore) playersKey() string  { return s.prefix + "players" }

func (s *RedisStore) ownerKey(p Principal) string {
	return fmt.Sprintf("%sowner:%s", s.prefix, p)
}

func (s *RedisStore) drawTicketsKey(drawID uint64) string {
	return fmt.Sprintf("%sdraw:%d:tickets", s.prefix, drawID)
}

// metaRecord is the value stored under the meta key
type metaRecord struct {
	Meta      EngineState    `json:"meta"`
	Scheduler SchedulerState `json:"scheduler"`
	Guard     GuardState     `json:"guard"`
}

// encodedChangeset is a change set ready to be written
type encodedChangeset struct {
	meta       []byte
	treasury   []byte
	draws      map[string]any
	tickets    map[string]any
	players    map[string]any
	byOwner    map[Principal][]any
	byDraw     map[uint64][]any
	totalBytes int
}

// encodeChangeset serializes every record of cs
func encodeChangeset(cs *Snapshot) (*encodedChangeset, error) {
	if cs == nil {
		return nil, ErrInvalidParameters.WithDetails("nil change set")
	}

	enc := &encodedChangeset{
		draws:   make(map[string]any, len(cs.Draws)),
		tickets: make(map[string]any, len(cs.Tickets)),
		players: make(map[string]any, len(cs.Players)),
		byOwner: make(map[Principal][]any),
		byDraw:  make(map[uint64][]any),
	}

	var err error
	if enc.meta, err = encodeRecord(metaRecord{Meta: cs.Meta, Scheduler: cs.Scheduler, Guard: cs.Guard}); err != nil {
		return nil, err
	}
	if enc.treasury, err = encodeRecord(cs.Treasury); err != nil {
		return nil, err
	}
	enc.totalBytes = len(enc.meta) + len(enc.treasury)

	for i := range cs.Draws {
		data, err := encodeRecord(cs.Draws[i])
		if err != nil {
			return nil, err
		}
		enc.draws[strconv.FormatUint(cs.Draws[i].ID, 10)] = data
		enc.totalBytes += len(data)
	}
	for i := range cs.Tickets {
		t := &cs.Tickets[i]
		data, err := encodeRecord(*t)
		if err != nil {
			return nil, err
		}
		enc.tickets[strconv.FormatUint(t.ID, 10)] = data
		enc.byOwner[t.Owner] = append(enc.byOwner[t.Owner], t.ID)
		enc.byDraw[t.DrawID] = append(enc.byDraw[t.DrawID], t.ID)
		enc.totalBytes += len(data)
	}
	for i := range cs.Players {
		data, err := encodeRecord(cs.Players[i].Stats)
		if err != nil {
			return nil, err
		}
		enc.players[string(cs.Players[i].Player)] = data
		enc.totalBytes += len(data)
	}

	return enc, nil
}

func encodeRecord(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, ErrSerializationFailed.WithDetails(fmt.Sprintf("%T", v)).WithCause(err)
	}
	if len(data) > MaxSerializationSize {
		return nil, ErrSerializationFailed.WithDetails(
			fmt.Sprintf("%T is %d bytes, max %d", v, len(data), MaxSerializationSize))
	}
	return data, nil
}

func decodeRecord(data []byte, v any) error {
	if len(data) > MaxSerializationSize {
		return ErrDeserializationFailed.WithDetails(
			fmt.Sprintf("%d bytes exceeds max %d", len(data), MaxSerializationSize))
	}
	if err := json.Unmarshal(data, v); err != nil {
		return ErrDeserializationFailed.WithDetails(fmt.Sprintf("%T", v)).WithCause(err)
	}
	return nil
}

// Commit writes the change set in a single transaction
func (s *RedisStore) Commit(ctx context.Context, cs *Snapshot) error {
	enc, err := encodeChangeset(cs)
	if err != nil {
		s.logger.Error("RedisStore.Commit: encode failed: %v", err)
		return err
	}

	start := time.Now()
	err = s.recovery.ExecuteWithRetry(ctx, func() error {
		_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, s.metaKey(), enc.meta, 0)
			pipe.Set(ctx, s.treasuryKey(), enc.treasury, 0)
			if len(enc.draws) > 0 {
				pipe.HSet(ctx, s.drawsKey(), enc.draws)
			}
			if len(enc.tickets) > 0 {
				pipe.HSet(ctx, s.ticketsKey(), enc.tickets)
			}
			if len(enc.players) > 0 {
				pipe.HSet(ctx, s.playersKey(), enc.players)
			}
			for owner, ids := range enc.byOwner {
				pipe.SAdd(ctx, s.ownerKey(owner), ids...)
			}
			for drawID, ids := range enc.byDraw {
				pipe.SAdd(ctx, s.drawTicketsKey(drawID), ids...)
			}
			return nil
		})
		return err
	})
	if err != nil {
		s.logger.Error("RedisStore.Commit: write failed after retries: draws=%d tickets=%d players=%d size=%d bytes: %v",
			len(enc.draws), len(enc.tickets), len(enc.players), enc.totalBytes, err)
		return ErrStateSaveFailure.WithCause(err)
	}

	s.logger.Debug("RedisStore.Commit: draws=%d tickets=%d players=%d size=%d bytes in %v",
		len(enc.draws), len(enc.tickets), len(enc.players), enc.totalBytes, time.Since(start))
	return nil
}

// Load reads the whole persisted state. It returns (nil, nil) when the meta key is absent.
func (s *RedisStore) Load(ctx context.Context) (*Snapshot, error) {
	var (
		metaRaw, treasuryRaw  []byte
		draws, tickets, plays map[string]string
		empty                 bool
	)

	start := time.Now()
	err := s.recovery.ExecuteWithRetry(ctx, func() error {
		var err error
		metaRaw, err = s.client.Get(ctx, s.metaKey()).Bytes()
		if errors.Is(err, redis.Nil) {
			// nothing persisted yet, not worth a retry
			empty = true
			return nil
		}
		if err != nil {
			return err
		}
		if treasuryRaw, err = s.client.Get(ctx, s.treasuryKey()).Bytes(); err != nil {
			return err
		}
		if draws, err = s.client.HGetAll(ctx, s.drawsKey()).Result(); err != nil {
			return err
		}
		if tickets, err = s.client.HGetAll(ctx, s.ticketsKey()).Result(); err != nil {
			return err
		}
		plays, err = s.client.HGetAll(ctx, s.playersKey()).Result()
		return err
	})
	if err != nil {
		s.logger.Error("RedisStore.Load: read failed after retries: %v", err)
		return nil, ErrStateLoadFailure.WithCause(err)
	}
	if empty {
		s.logger.Debug("RedisStore.Load: no persisted state under %s", s.metaKey())
		return nil, nil
	}

	snap, err := decodeSnapshot(metaRaw, treasuryRaw, draws, tickets, plays)
	if err != nil {
		s.logger.Error("RedisStore.Load: decode failed: %v", err)
		return nil, ErrStateCorrupted.WithCause(err)
	}

	s.logger.Debug("RedisStore.Load: draws=%d tickets=%d players=%d in %v",
		len(snap.Draws), len(snap.Tickets), len(snap.Players), time.Since(start))
	return snap, nil
}

func decodeSnapshot(metaRaw, treasuryRaw []byte, draws, tickets, players map[string]string) (*Snapshot, error) {
	var m metaRecord
	if err := decodeRecord(metaRaw, &m); err != nil {
		return nil, err
	}
	snap := &Snapshot{Meta: m.Meta, Scheduler: m.Scheduler, Guard: m.Guard}
	if err := decodeRecord(treasuryRaw, &snap.Treasury); err != nil {
		return nil, err
	}

	for field, raw := range draws {
		var d Draw
		if err := decodeRecord([]byte(raw), &d); err != nil {
			return nil, err
		}
		if strconv.FormatUint(d.ID, 10) != field {
			return nil, ErrDeserializationFailed.WithDetails(fmt.Sprintf("draw field %s holds draw %d", field, d.ID))
		}
		snap.Draws = append(snap.Draws, d)
	}
	for field, raw := range tickets {
		var t Ticket
		if err := decodeRecord([]byte(raw), &t); err != nil {
			return nil, err
		}
		if strconv.FormatUint(t.ID, 10) != field {
			return nil, ErrDeserializationFailed.WithDetails(fmt.Sprintf("ticket field %s holds ticket %d", field, t.ID))
		}
		snap.Tickets = append(snap.Tickets, t)
	}
	for field, raw := range players {
		var st PlayerStats
		if err := decodeRecord([]byte(raw), &st); err != nil {
			return nil, err
		}
		snap.Players = append(snap.Players, PlayerRecord{Player: Principal(field), Stats: st})
	}

	slices.SortFunc(snap.Draws, func(a, b Draw) int { return cmp.Compare(a.ID, b.ID) })
	slices.SortFunc(snap.Tickets, func(a, b Ticket) int { return cmp.Compare(a.ID, b.ID) })
	slices.SortFunc(snap.Players, func(a, b PlayerRecord) int { return cmp.Compare(a.Player, b.Player) })
	return snap, nil
}

// PlayerTicketIDs reads the owner index directly from Redis
func (s *RedisStore) PlayerTicketIDs(ctx context.Context, p Principal) ([]uint64, error) {
	return s.readIndex(ctx, s.ownerKey(p))
}

// DrawTicketIDs reads the per-draw ticket index directly from Redis
func (s *RedisStore) DrawTicketIDs(ctx context.Context, drawID uint64) ([]uint64, error) {
	return s.readIndex(ctx, s.drawTicketsKey(drawID))
}

func (s *RedisStore) readIndex(ctx context.Context, key string) ([]uint64, error) {
	members, err := s.client.SMembers(ctx, key).Result()
	if err != nil {
		return nil, ErrStateLoadFailure.WithDetails(key).WithCause(err)
	}
	ids := make([]uint64, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseUint(m, 10, 64)
		if err != nil {
			return nil, ErrStateCorrupted.WithDetails(fmt.Sprintf("%s holds %q", key, m)).WithCause(err)
		}
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}
