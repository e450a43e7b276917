package notify

import (
	"context"
	"sync"
)

// Delivery is an event with the session it was published for.
type Delivery struct {
	Event     *Event
	SessionID string
}

// ChannelNotifier hands events to in-process subscribers. Slow
// subscribers drop events instead of blocking the run.
type ChannelNotifier struct {
	mu     sync.RWMutex
	subs   map[int]chan Delivery
	nextID int
}

func NewChannelNotifier() *ChannelNotifier {
	return &ChannelNotifier{subs: make(map[int]chan Delivery)}
}

func (c *ChannelNotifier) Name() string {
	return "channel"
}

// Subscribe returns a buffered channel of deliveries and a function that
// closes it.
func (c *ChannelNotifier) Subscribe(buffer int) (<-chan Delivery, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	ch := make(chan Delivery, buffer)
	c.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			c.mu.Unlock()
			close(ch)
		})
	}
}

func (c *ChannelNotifier) Notify(_ context.Context, event *Event, sessionID string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, ch := range c.subs {
		select {
		case ch <- Delivery{Event: event, SessionID: sessionID}:
		default:
		}
	}
	return nil
}
