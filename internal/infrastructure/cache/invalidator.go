package cache

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/lib/pq"

	"github.com/mizutama/torii/pkg/cache"
)

// NotifyChannel is the PostgreSQL NOTIFY channel written by the rule-change
// triggers.
const NotifyChannel = "torii_rules_changed"

// Invalidator flushes the decision cache when permission rules change.
// It uses PostgreSQL LISTEN/NOTIFY so every instance drops stale decisions
// as soon as any writer touches a catalogue or template; the cache's own TTL
// remains the fallback when the connection is lost.
type Invalidator struct {
	mu       sync.Mutex
	cache    cache.Cache
	listener *pq.Listener
	connStr  string
	stopCh   chan struct{}
	stopped  bool

	// OnInvalidate is invoked after each flush (optional)
	OnInvalidate func(payload string)
}

// NewInvalidator creates a new Invalidator.
// connStr is the PostgreSQL connection string for LISTEN/NOTIFY.
func NewInvalidator(decisionCache cache.Cache, connStr string) *Invalidator {
	return &Invalidator{
		cache:   decisionCache,
		connStr: connStr,
		stopCh:  make(chan struct{}),
	}
}

// Start begins listening for rule-change notifications.
func (i *Invalidator) Start() error {
	reportProblem := func(ev pq.ListenerEventType, err error) {
		if err != nil {
			// Log but don't fail - cached decisions still expire via TTL
			log.Printf("cache invalidator listener error: %v", err)
		}
	}

	i.listener = pq.NewListener(i.connStr, 10*time.Second, time.Minute, reportProblem)
	if err := i.listener.Listen(NotifyChannel); err != nil {
		return err
	}

	go i.handleNotifications(i.listener.Notify)
	return nil
}

// Stop stops the Invalidator and cleans up resources.
func (i *Invalidator) Stop() error {
	i.mu.Lock()
	if i.stopped {
		i.mu.Unlock()
		return nil
	}
	i.stopped = true
	close(i.stopCh)
	i.mu.Unlock()

	if i.listener != nil {
		return i.listener.Close()
	}
	return nil
}

// handleNotifications processes incoming NOTIFY events.
func (i *Invalidator) handleNotifications(notify <-chan *pq.Notification) {
	for {
		select {
		case <-i.stopCh:
			return
		case notification := <-notify:
			if notification == nil {
				// Connection lost, listener will reconnect automatically
				continue
			}
			i.invalidate(notification.Extra)
		case <-time.After(90 * time.Second):
			// Periodic ping to keep connection alive
			go func() {
				if i.listener == nil {
					return
				}
				if err := i.listener.Ping(); err != nil {
					log.Printf("cache invalidator ping error: %v", err)
				}
			}()
		}
	}
}

// invalidate flushes every cached decision. Rule edits are rare relative to
// checks, so a full flush is simpler than tracking which decisions a changed
// catalogue or template could have influenced.
func (i *Invalidator) invalidate(payload string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := i.cache.Clear(ctx); err != nil {
		log.Printf("failed to flush decision cache: %v", err)
		return
	}
	if i.OnInvalidate != nil {
		i.OnInvalidate(payload)
	}
}
