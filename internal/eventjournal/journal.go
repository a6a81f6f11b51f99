// Package eventjournal is a side-channel sink for pool state transitions
// (worker registered, pushed idle, killed, request matched/queued/failed,
// I/O worker spawned), appended to a capped Redis list. Grounded on
// alexdev-tb-CodePortal/internal/executor.RedisJobStore's Save/Update
// shape (one *redis.Client, JSON-marshaled values), generalized from "one
// key per job" to "one capped list of append-only events."
//
// The event loop never blocks on or reads from Redis: Record enqueues
// onto a buffered channel and returns immediately; a single background
// goroutine drains it and talks to Redis. A full channel drops the event
// rather than apply backpressure to the pool (spec.md §5's "asynchronous
// posts... so callers don't observe mid-mutation state" extends here to
// "the event loop never observes Redis latency either").
package eventjournal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Event is one recorded state transition. ID is a random UUID so a
// consumer tailing the journal (e.g. /debug/pool) can dedupe across
// overlapping reads without depending on Redis list position.
type Event struct {
	ID   string    `json:"id"`
	Kind string    `json:"kind"`
	At   time.Time `json:"at"`
	Data any       `json:"data,omitempty"`
}

// Journal buffers and appends Events to a capped Redis list.
type Journal struct {
	client   *redis.Client
	key      string
	maxLen   int64
	events   chan Event
	dropped  func()
	warn     func(format string, args ...any)
}

// Config seeds a Journal.
type Config struct {
	Client *redis.Client
	Key    string // Redis key for the capped list; defaults to "nodeagent:events"
	MaxLen int64  // LTRIM bound; defaults to 1000
	Buffer int    // channel buffer; defaults to 256
	Warn   func(format string, args ...any)
}

// New starts the background writer goroutine and returns a Journal ready
// to Record events. Call Stop to drain and exit the goroutine.
func New(cfg Config) *Journal {
	if cfg.Key == "" {
		cfg.Key = "nodeagent:events"
	}
	if cfg.MaxLen <= 0 {
		cfg.MaxLen = 1000
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 256
	}
	if cfg.Warn == nil {
		cfg.Warn = func(string, ...any) {}
	}

	j := &Journal{
		client: cfg.Client,
		key:    cfg.Key,
		maxLen: cfg.MaxLen,
		events: make(chan Event, cfg.Buffer),
		warn:   cfg.Warn,
	}
	go j.run()
	return j
}

// Record enqueues an event for the background writer. It never blocks: a
// full buffer drops the event and calls Warn once per drop.
func (j *Journal) Record(kind string, data any) {
	select {
	case j.events <- Event{ID: uuid.New().String(), Kind: kind, At: time.Now(), Data: data}:
	default:
		j.warn("eventjournal: buffer full, dropping %s event", kind)
	}
}

// Stop closes the event channel, letting run drain what's queued and exit.
func (j *Journal) Stop() { close(j.events) }

func (j *Journal) run() {
	ctx := context.Background()
	for ev := range j.events {
		payload, err := json.Marshal(ev)
		if err != nil {
			j.warn("eventjournal: marshal event %s: %v", ev.Kind, err)
			continue
		}
		pipe := j.client.Pipeline()
		pipe.LPush(ctx, j.key, payload)
		pipe.LTrim(ctx, j.key, 0, j.maxLen-1)
		if _, err := pipe.Exec(ctx); err != nil {
			j.warn("eventjournal: append to redis: %v", err)
		}
	}
}

// Recent returns up to n of the most recently recorded events, newest
// first. The /debug/pool handler does not call it; it serves the live
// snapshot only.
func (j *Journal) Recent(ctx context.Context, n int64) ([]Event, error) {
	raw, err := j.client.LRange(ctx, j.key, 0, n-1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Event, 0, len(raw))
	for _, r := range raw {
		var ev Event
		if err := json.Unmarshal([]byte(r), &ev); err != nil {
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}
