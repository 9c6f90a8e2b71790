// Package presence runs the local user's presence state machine and keeps
// the last reported presence of everyone else.
package presence

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/ageniuscoder/mmchat/client/internal/events"
	"github.com/ageniuscoder/mmchat/client/internal/models"
	"github.com/ageniuscoder/mmchat/client/internal/storage"
)

var ErrNotSettable = errors.New("presence: status cannot be set explicitly")

// Transport is the outbound side the tracker talks through.
type Transport interface {
	Heartbeat() error
	Announce(status models.Status) error
}

type Options struct {
	InactivityTimeout time.Duration
	HeartbeatInterval time.Duration
	CacheTTL          time.Duration
	Now               func() time.Time
}

func (o *Options) defaults() {
	if o.InactivityTimeout <= 0 {
		o.InactivityTimeout = 5 * time.Minute
	}
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = 30 * time.Second
	}
	if o.CacheTTL <= 0 {
		o.CacheTTL = 2 * time.Minute
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// cached is what survives while the transport is down.
type cached struct {
	Status      models.Status `json:"status"`
	HeartbeatAt time.Time     `json:"heartbeat_at"`
	CachedAt    time.Time     `json:"cached_at"`
}

type Tracker struct {
	mu   sync.Mutex
	opts Options
	tr   Transport
	kv   storage.KV
	bus  *events.Bus
	log  *slog.Logger

	self          string
	status        models.Status
	explicitOff   bool
	lastHeartbeat time.Time
	idle          *time.Timer
	stopBeat      chan struct{}

	remote map[string]models.Presence
}

func New(self string, tr Transport, kv storage.KV, opts Options, bus *events.Bus, logger *slog.Logger) *Tracker {
	opts.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		opts:   opts,
		tr:     tr,
		kv:     kv,
		bus:    bus,
		log:    logger.With("component", "presence"),
		self:   self,
		status: models.Offline,
		remote: make(map[string]models.Presence),
	}
}

// Status returns the local user's current status.
func (t *Tracker) Status() models.Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Set applies an explicit user choice. Away is only reached by inactivity.
func (t *Tracker) Set(status models.Status) error {
	switch status {
	case models.Online, models.Busy, models.Offline:
	default:
		return ErrNotSettable
	}
	t.mu.Lock()
	t.explicitOff = status == models.Offline
	changed := t.transitionLocked(status)
	t.mu.Unlock()
	if changed {
		t.announce(status)
	}
	return nil
}

// Activity records foreground activity. Away returns to online; online
// restarts the inactivity timer.
func (t *Tracker) Activity() {
	t.mu.Lock()
	var changed bool
	switch t.status {
	case models.Away:
		changed = t.transitionLocked(models.Online)
	case models.Online:
		t.armIdleLocked()
	}
	status := t.status
	t.mu.Unlock()
	if changed {
		t.announce(status)
	}
}

// transitionLocked moves to status and (re)arms the timers that belong to
// it: inactivity and heartbeat run only while online.
func (t *Tracker) transitionLocked(status models.Status) bool {
	if t.status == status {
		if status == models.Online {
			t.armIdleLocked()
		}
		return false
	}
	t.status = status
	if status == models.Online {
		t.armIdleLocked()
		t.startHeartbeatLocked()
	} else {
		t.stopTimersLocked()
	}
	t.publishSelfLocked()
	return true
}

func (t *Tracker) armIdleLocked() {
	if t.idle != nil {
		t.idle.Stop()
	}
	t.idle = time.AfterFunc(t.opts.InactivityTimeout, t.onIdle)
}

func (t *Tracker) onIdle() {
	t.mu.Lock()
	if t.status != models.Online {
		t.mu.Unlock()
		return
	}
	t.transitionLocked(models.Away)
	t.mu.Unlock()
	t.announce(models.Away)
}

func (t *Tracker) startHeartbeatLocked() {
	if t.stopBeat != nil {
		return
	}
	stop := make(chan struct{})
	t.stopBeat = stop
	go t.heartbeatLoop(stop)
}

func (t *Tracker) stopTimersLocked() {
	if t.idle != nil {
		t.idle.Stop()
		t.idle = nil
	}
	if t.stopBeat != nil {
		close(t.stopBeat)
		t.stopBeat = nil
	}
}

func (t *Tracker) heartbeatLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(t.opts.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			t.beat()
		}
	}
}

func (t *Tracker) beat() {
	t.mu.Lock()
	if t.status != models.Online {
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()

	if t.tr == nil {
		return
	}
	if err := t.tr.Heartbeat(); err != nil {
		t.log.Debug("heartbeat not delivered", "error", err)
		t.cache()
		return
	}
	t.mu.Lock()
	t.lastHeartbeat = t.opts.Now()
	t.mu.Unlock()
}

func (t *Tracker) announce(status models.Status) {
	if t.tr == nil {
		return
	}
	if err := t.tr.Announce(status); err != nil {
		t.log.Debug("presence not delivered", "status", status, "error", err)
		t.cache()
	}
}

func (t *Tracker) cache() {
	if t.kv == nil {
		return
	}
	t.mu.Lock()
	c := cached{Status: t.status, HeartbeatAt: t.lastHeartbeat, CachedAt: t.opts.Now()}
	t.mu.Unlock()
	if err := storage.PutJSON(context.Background(), t.kv, storage.KeyPresence, c); err != nil {
		t.log.Warn("presence cache write failed", "error", err)
	}
}

func (t *Tracker) stale(c cached) bool {
	since := c.HeartbeatAt
	if since.IsZero() {
		since = c.CachedAt
	}
	return t.opts.Now().Sub(since) > t.opts.CacheTTL
}

func (t *Tracker) loadCache(ctx context.Context) (cached, bool) {
	if t.kv == nil {
		return cached{}, false
	}
	var c cached
	if err := storage.GetJSON(ctx, t.kv, storage.KeyPresence, &c); err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			t.log.Warn("presence cache read failed", "error", err)
		}
		return cached{}, false
	}
	return c, true
}

// Restore loads the presence cached by a previous run. A cache whose last
// heartbeat is older than CacheTTL is discarded. Returns the status now in
// effect.
func (t *Tracker) Restore(ctx context.Context) models.Status {
	c, ok := t.loadCache(ctx)
	if !ok {
		return t.Status()
	}
	if t.stale(c) {
		t.log.Info("discarding stale cached presence", "status", c.Status, "cached_at", c.CachedAt)
		_ = t.kv.Delete(ctx, storage.KeyPresence)
		return t.Status()
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if c.Status.Valid() && c.Status != models.Away {
		t.explicitOff = c.Status == models.Offline
		t.transitionLocked(c.Status)
	}
	t.lastHeartbeat = c.HeartbeatAt
	return t.status
}

// Reconcile runs once a session is up. The offline cache is dropped and the
// local status is pushed to the server. If the cache went stale while
// disconnected an automatic away is discarded in favour of online, and a
// user who never chose offline comes online with the connection.
func (t *Tracker) Reconcile(ctx context.Context) {
	c, ok := t.loadCache(ctx)

	t.mu.Lock()
	switch {
	case t.status == models.Offline && !t.explicitOff:
		t.transitionLocked(models.Online)
	case ok && t.stale(c) && t.status == models.Away:
		t.log.Info("discarding stale cached presence", "status", c.Status, "cached_at", c.CachedAt)
		t.transitionLocked(models.Online)
	}
	status := t.status
	t.mu.Unlock()

	if ok {
		if err := t.kv.Delete(ctx, storage.KeyPresence); err != nil {
			t.log.Warn("presence cache clear failed", "error", err)
		}
	}
	t.announce(status)
}

// Stop cancels the timers. The status is left as is.
func (t *Tracker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopTimersLocked()
}

// ApplyRemote ingests a server-pushed presence event. Events older than
// the last one seen for that user are ignored.
func (t *Tracker) ApplyRemote(p models.Presence) bool {
	if p.UserID == "" || p.UserID == t.self || !p.Status.Valid() {
		return false
	}
	t.mu.Lock()
	prev, ok := t.remote[p.UserID]
	if ok && p.LastSeen.Before(prev.LastSeen) {
		t.mu.Unlock()
		return false
	}
	t.remote[p.UserID] = p
	t.mu.Unlock()

	t.bus.Publish(events.Change{Topic: events.TopicPresence, ID: p.UserID, Data: p})
	return true
}

// Get returns the last known presence of a user. The local user is
// answered from the state machine.
func (t *Tracker) Get(userID string) (models.Presence, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if userID == t.self {
		return models.Presence{UserID: t.self, Status: t.status, LastSeen: t.opts.Now()}, true
	}
	p, ok := t.remote[userID]
	return p, ok
}

func (t *Tracker) publishSelfLocked() {
	t.bus.Publish(events.Change{
		Topic: events.TopicPresence,
		ID:    t.self,
		Data:  models.Presence{UserID: t.self, Status: t.status, LastSeen: t.opts.Now()},
	})
}
