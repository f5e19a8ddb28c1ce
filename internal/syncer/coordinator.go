// Package syncer reconciles a user's local snapshot with its remote replica.
package syncer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"tutorledger/internal/ledger"
	"tutorledger/internal/notify"
	"tutorledger/internal/remote"
)

// ErrSyncInProgress is set on results of syncs rejected by the overlap guard.
var ErrSyncInProgress = errors.New("sync in progress")

// Trigger records what started a cycle.
type Trigger string

const (
	TriggerManual Trigger = "manual"
	TriggerTimer  Trigger = "timer"
	TriggerSignIn Trigger = "sign_in"
	TriggerToggle Trigger = "toggle"
	TriggerQueue  Trigger = "queue"
)

// Outcome is the terminal state of one Sync call.
type Outcome string

const (
	OutcomeSynced     Outcome = "synced"
	OutcomeInProgress Outcome = "in_progress"
	OutcomeLocalOnly  Outcome = "local_only"
	OutcomeFailed     Outcome = "failed"
)

// Result describes one Sync call.
type Result struct {
	UserID  string        `json:"user_id"`
	Trigger Trigger       `json:"trigger"`
	Outcome Outcome       `json:"outcome"`
	Winner  Winner        `json:"winner,omitempty"`
	Pushed  bool          `json:"pushed"`
	Reason  remote.Reason `json:"reason,omitempty"`
	At      time.Time     `json:"at"`
	Err     error         `json:"-"`
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithNotifier sets where status transitions go.
func WithNotifier(n notify.Notifier) Option { return func(c *Coordinator) { c.notifier = n } }

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Coordinator) { c.log = l.With().Str("component", "syncer").Logger() }
}

// WithMetrics enables prometheus instrumentation.
func WithMetrics(m *Metrics) Option { return func(c *Coordinator) { c.metrics = m } }

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(c *Coordinator) { c.now = now } }

// Coordinator runs sync cycles. At most one cycle per user runs at a time;
// extra requests are dropped, not queued.
type Coordinator struct {
	local    ledger.LocalStore
	remote   remote.Store
	notifier notify.Notifier
	metrics  *Metrics
	log      zerolog.Logger
	now      func() time.Time

	mu      sync.Mutex
	syncing map[string]bool

	remoteDisabled atomic.Bool
}

// New creates a coordinator. rem may be nil, in which case every cycle is
// local-only.
func New(local ledger.LocalStore, rem remote.Store, opts ...Option) *Coordinator {
	c := &Coordinator{
		local:    local,
		remote:   rem,
		notifier: notify.Multi{},
		log:      zerolog.Nop(),
		now:      time.Now,
		syncing:  make(map[string]bool),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Syncing reports whether a cycle for the user is running.
func (c *Coordinator) Syncing(userID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.syncing[userID]
}

// RemoteDisabled reports whether a permission failure has switched this
// process to local-only.
func (c *Coordinator) RemoteDisabled() bool { return c.remoteDisabled.Load() }

// RemoteName returns the configured backend name, or "none".
func (c *Coordinator) RemoteName() string {
	if c.remote == nil {
		return "none"
	}
	return c.remote.Name()
}

func (c *Coordinator) begin(userID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.syncing[userID] {
		return false
	}
	c.syncing[userID] = true
	return true
}

func (c *Coordinator) end(userID string) {
	c.mu.Lock()
	delete(c.syncing, userID)
	c.mu.Unlock()
}

func (c *Coordinator) emit(userID string, state notify.State, text string, reason remote.Reason) {
	c.notifier.Notify(notify.Status{
		UserID: userID,
		State:  state,
		Tag:    state.Tag(),
		Text:   text,
		Reason: string(reason),
		At:     c.now().UTC(),
	})
}

// Sync runs one cycle for the user: push local, fetch remote, keep the later
// snapshot, write it locally, report status. Connected is reported once per
// cycle, on the first remote call that succeeds. Remote failures end up in the
// result and the status, never as a returned error.
func (c *Coordinator) Sync(ctx context.Context, userID string, trigger Trigger) Result {
	res := Result{UserID: userID, Trigger: trigger}
	if userID == "" {
		res.Outcome, res.Reason, res.At = OutcomeLocalOnly, remote.ReasonNotAuthenticated, c.now().UTC()
		c.emit(userID, notify.StateDisconnected, "Sign in to sync", res.Reason)
		return res
	}
	if !c.begin(userID) {
		res.Outcome, res.Err, res.At = OutcomeInProgress, ErrSyncInProgress, c.now().UTC()
		c.metrics.observeCycle(res.Outcome, 0)
		return res
	}
	defer c.end(userID)

	start := c.now()
	c.emit(userID, notify.StateSyncing, "Syncing...", remote.ReasonNone)
	res = c.cycle(ctx, res)
	res.At = c.now().UTC()
	c.metrics.observeCycle(res.Outcome, c.now().Sub(start))

	ev := c.log.Info()
	if res.Outcome == OutcomeFailed {
		ev = c.log.Warn().Err(res.Err)
	}
	ev.Str("user_id", userID).
		Str("trigger", string(trigger)).
		Str("outcome", string(res.Outcome)).
		Str("winner", string(res.Winner)).
		Str("reason", string(res.Reason)).
		Dur("took", c.now().Sub(start)).
		Msg("sync cycle finished")
	return res
}

func (c *Coordinator) cycle(ctx context.Context, res Result) Result {
	userID := res.UserID
	local, err := c.local.Read(ctx, userID)
	if err != nil {
		return c.fail(res, remote.ReasonBackend, err, "Local data unavailable")
	}

	if c.remote == nil || c.remoteDisabled.Load() {
		res.Outcome = OutcomeLocalOnly
		c.emit(userID, notify.StateDisconnected, "Working offline", remote.ReasonNone)
		return res
	}

	if err := c.remote.Upsert(ctx, userID, local); err != nil {
		reason := remote.Classify(err)
		c.metrics.pushFailed(string(reason))
		c.log.Warn().Err(err).Str("user_id", userID).Str("reason", string(reason)).Msg("push to remote failed")
		if r, stop := c.degrade(res, reason, err); stop {
			return r
		}
	} else {
		res.Pushed = true
		c.emit(userID, notify.StateConnected, "Connected", remote.ReasonNone)
	}

	rem, err := c.remote.Fetch(ctx, userID)
	if err == nil && !res.Pushed {
		c.emit(userID, notify.StateConnected, "Connected", remote.ReasonNone)
	}
	if err != nil {
		reason := remote.Classify(err)
		if r, stop := c.degrade(res, reason, err); stop {
			return r
		}
		if reason != remote.ReasonNotFound {
			return c.fail(res, reason, err, "Sync failed")
		}
		rem = nil
	}

	merged, winner := Reconcile(local, rem, c.now())
	if err := c.local.Write(ctx, userID, merged); err != nil {
		return c.fail(res, remote.ReasonBackend, err, "Could not save synced data")
	}
	res.Outcome, res.Winner = OutcomeSynced, winner
	c.emit(userID, notify.StateSynced, "Last synced: "+c.now().Local().Format("Jan 2 15:04:05"), remote.ReasonNone)
	return res
}

// degrade handles failures that switch the cycle to local-only.
func (c *Coordinator) degrade(res Result, reason remote.Reason, err error) (Result, bool) {
	switch reason {
	case remote.ReasonPermission:
		if !c.remoteDisabled.Swap(true) {
			c.log.Warn().Err(err).Str("backend", c.remote.Name()).Msg("remote access denied, continuing local-only")
		}
		res.Outcome, res.Reason, res.Err = OutcomeLocalOnly, reason, err
		c.emit(res.UserID, notify.StateError, "Cloud access denied, working offline", reason)
		return res, true
	case remote.ReasonNotAuthenticated:
		res.Outcome, res.Reason, res.Err = OutcomeLocalOnly, reason, err
		c.emit(res.UserID, notify.StateDisconnected, "Sign in to sync", reason)
		return res, true
	}
	return res, false
}

func (c *Coordinator) fail(res Result, reason remote.Reason, err error, text string) Result {
	res.Outcome, res.Reason, res.Err = OutcomeFailed, reason, err
	c.emit(res.UserID, notify.StateError, text, reason)
	return res
}
