// Package notify carries sync status transitions to whatever displays them.
package notify

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// State is a coordinator transition.
type State string

const (
	StateConnected    State = "connected"
	StateSyncing      State = "syncing"
	StateSynced       State = "synced"
	StateError        State = "error"
	StateDisconnected State = "disconnected"
)

// Tag returns the connection indicator shown next to the status text.
func (s State) Tag() string {
	switch s {
	case StateSynced, StateConnected:
		return "connected"
	case StateSyncing:
		return "syncing"
	case StateError:
		return "error"
	default:
		return "disconnected"
	}
}

// Status is one status line for one user.
type Status struct {
	UserID   string    `json:"user_id"`
	State    State     `json:"state"`
	Tag      string    `json:"tag"`
	Text     string    `json:"text"`
	Reason   string    `json:"reason,omitempty"`
	At       time.Time `json:"at"`
	AutoSync bool      `json:"auto_sync"`
	Origin   string    `json:"origin,omitempty"`
}

// Notifier receives status transitions. Implementations must not block.
type Notifier interface {
	Notify(s Status)
}

// Multi fans a status out to several notifiers.
type Multi []Notifier

// Notify forwards to every notifier.
func (m Multi) Notify(s Status) {
	for _, n := range m {
		if n != nil {
			n.Notify(s)
		}
	}
}

// Board keeps the latest status and auto-sync flag per user.
type Board struct {
	mu     sync.RWMutex
	latest map[string]Status
	auto   map[string]bool
}

// NewBoard creates an empty board.
func NewBoard() *Board {
	return &Board{latest: make(map[string]Status), auto: make(map[string]bool)}
}

// Notify records the status as the user's latest. A status older than the
// stored one is ignored.
func (b *Board) Notify(s Status) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if prev, ok := b.latest[s.UserID]; ok && s.At.Before(prev.At) {
		return
	}
	s.AutoSync = b.auto[s.UserID]
	b.latest[s.UserID] = s
}

// SetAutoSync reflects the auto-sync toggle.
func (b *Board) SetAutoSync(userID string, enabled bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.auto[userID] = enabled
	if s, ok := b.latest[userID]; ok {
		s.AutoSync = enabled
		b.latest[userID] = s
	}
}

// Get returns the latest status, or a disconnected placeholder.
func (b *Board) Get(userID string) Status {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if s, ok := b.latest[userID]; ok {
		return s
	}
	return Status{
		UserID:   userID,
		State:    StateDisconnected,
		Tag:      StateDisconnected.Tag(),
		Text:     "Not synced yet",
		AutoSync: b.auto[userID],
	}
}

// LogNotifier writes each transition to the log.
type LogNotifier struct {
	log zerolog.Logger
}

// NewLogNotifier creates a log-backed notifier.
func NewLogNotifier(log zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: log.With().Str("component", "sync_status").Logger()}
}

// Notify logs errors at warn and everything else at debug.
func (l *LogNotifier) Notify(s Status) {
	ev := l.log.Debug()
	if s.State == StateError {
		ev = l.log.Warn()
	}
	ev.Str("user_id", s.UserID).Str("state", string(s.State)).Str("reason", s.Reason).Msg(s.Text)
}

// RedisPublisher publishes statuses as JSON on <prefix><user> so other
// processes (the API serving a worker's syncs) can follow them. Statuses are
// sent by one goroutine in the order Notify saw them.
type RedisPublisher struct {
	client  *redis.Client
	prefix  string
	origin  string
	timeout time.Duration
	log     zerolog.Logger

	out  chan Status
	done chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

// NewRedisPublisher creates a publisher on the given client and starts its
// sender. Close stops it.
func NewRedisPublisher(client *redis.Client, log zerolog.Logger) *RedisPublisher {
	p := &RedisPublisher{
		client:  client,
		prefix:  "tutorledger:status:",
		origin:  uuid.NewString(),
		timeout: time.Second,
		log:     log.With().Str("component", "status_publisher").Logger(),
		out:     make(chan Status, 256),
		done:    make(chan struct{}),
	}
	p.wg.Add(1)
	go p.run()
	return p
}

// Channel returns the pub/sub channel for a user.
func (p *RedisPublisher) Channel(userID string) string { return p.prefix + userID }

// Origin identifies statuses sent by this publisher.
func (p *RedisPublisher) Origin() string { return p.origin }

// Notify queues the status for publishing. A full buffer drops it.
func (p *RedisPublisher) Notify(s Status) {
	if s.Origin == "" {
		s.Origin = p.origin
	}
	select {
	case <-p.done:
		return
	default:
	}
	select {
	case p.out <- s:
	default:
		p.log.Warn().Str("user_id", s.UserID).Str("state", string(s.State)).Msg("status buffer full, dropped")
	}
}

// Close stops the sender after the queued statuses are published.
func (p *RedisPublisher) Close() {
	p.once.Do(func() { close(p.done) })
	p.wg.Wait()
}

func (p *RedisPublisher) run() {
	defer p.wg.Done()
	for {
		select {
		case s := <-p.out:
			p.publish(s)
		case <-p.done:
			for {
				select {
				case s := <-p.out:
					p.publish(s)
				default:
					return
				}
			}
		}
	}
}

func (p *RedisPublisher) publish(s Status) {
	body, err := json.Marshal(s)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	if err := p.client.Publish(ctx, p.Channel(s.UserID), body).Err(); err != nil {
		p.log.Debug().Err(err).Str("user_id", s.UserID).Msg("status publish failed")
	}
}

// Follow subscribes to every user's status channel and forwards statuses
// sent by other processes to n until ctx is done.
func (p *RedisPublisher) Follow(ctx context.Context, n Notifier) {
	sub := p.client.PSubscribe(ctx, p.prefix+"*")
	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var s Status
				if err := json.Unmarshal([]byte(msg.Payload), &s); err != nil {
					continue
				}
				if s.Origin == p.origin {
					continue
				}
				n.Notify(s)
			}
		}
	}()
}
