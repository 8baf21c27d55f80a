package stream

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/basshelal/hls2vod/internal/models"
	"github.com/basshelal/hls2vod/internal/observability"
)

// EventType names a lifecycle transition of a stream.
type EventType string

const (
	EventSessionOpened     EventType = "session_opened"
	EventSessionClosed     EventType = "session_closed"
	EventStateChanged      EventType = "state_changed"
	EventDownloaderStopped EventType = "downloader_stopped"
)

// Event is published on the Bus for every lifecycle transition.
type Event struct {
	Type   EventType
	Stream string
	Time   time.Time

	// Show and SessionID are set for session events.
	Show      string
	SessionID string
	Forced    bool

	// State is set for state_changed.
	State models.StreamState

	// Err is why a downloader stopped, nil after a normal stop.
	Err error
}

// LogValue groups the event's attributes for slog.
func (e Event) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("type", string(e.Type)),
		slog.String("stream", e.Stream),
	}
	if e.Show != "" {
		attrs = append(attrs, slog.String("show", e.Show))
	}
	if e.SessionID != "" {
		attrs = append(attrs, slog.String("session", e.SessionID))
	}
	if e.State != "" {
		attrs = append(attrs, slog.String("state", string(e.State)))
	}
	if e.Err != nil {
		attrs = append(attrs, slog.String("error", e.Err.Error()))
	}
	return slog.GroupValue(attrs...)
}

// Bus fans events out to subscribers. Publish never blocks: a subscriber
// whose buffer is full misses the event.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]chan Event
	nextID int
	closed bool
}

// NewBus creates an empty Bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Subscribe returns a channel receiving every event published from now on
// and a function that unsubscribes and closes it.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if _, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(ch)
			}
		})
	}
}

// Publish delivers e to every subscriber with room for it. A nil Bus
// drops everything.
func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Close closes every subscriber channel. Later subscriptions get a closed channel.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}

// LogEvents logs every event received on events until the channel closes or
// ctx is done. Downloader stops caused by an error are logged at warn.
func LogEvents(ctx context.Context, events <-chan Event, logger *slog.Logger) {
	logger = observability.WithComponent(logger, "events")
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			level := slog.LevelInfo
			if e.Type == EventDownloaderStopped && e.Err != nil {
				level = slog.LevelWarn
			}
			logger.LogAttrs(ctx, level, "stream event", slog.Any("event", e))
		}
	}
}
