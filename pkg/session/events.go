package session

import (
	"sync"

	"github.com/google/uuid"

	"github.com/simonjbeaumont/mirage-block-volume/pkg/types"
	"github.com/simonjbeaumont/mirage-block-volume/pkg/vg"
)

// EventType names the kind of change an Event reports, one per vg.Op
// variant, a flat string-const set instead of a type hierarchy.
type EventType string

const (
	EventLvCreated      EventType = "lv.created"
	EventLvExpanded     EventType = "lv.expanded"
	EventLvReduced      EventType = "lv.reduced"
	EventLvTransferred  EventType = "lv.transferred"
	EventLvRemoved      EventType = "lv.removed"
	EventLvRenamed      EventType = "lv.renamed"
	EventLvTagged       EventType = "lv.tagged"
	EventLvUntagged     EventType = "lv.untagged"
	EventLvStatusChange EventType = "lv.status_changed"
)

// Event is one notification a Bus delivers, keyed by LV id instead of
// a free-form metadata map. ID is a random correlation id a subscriber
// can put in its own log lines to tie a downstream action back to the
// update that caused it.
type Event struct {
	ID    string
	Type  EventType
	LvID  types.Uuid
	Seqno uint32
}

func newEventID() string {
	return uuid.New().String()
}

// Subscriber is a channel a Bus delivers Events to, same shape as the
// teacher's events.Subscriber.
type Subscriber chan *Event

// Bus fans Events out to subscribers, adapted directly from the
// teacher's pkg/events.Broker: a subscriber set guarded by a mutex and
// a buffered intake channel drained by one goroutine, so Publish never
// blocks the caller on a slow subscriber.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[Subscriber]bool
	eventCh     chan *Event
	stopCh      chan struct{}
	stopped     sync.WaitGroup
}

// NewBus builds a Bus and starts its delivery goroutine.
func NewBus() *Bus {
	b := &Bus{
		subscribers: make(map[Subscriber]bool),
		eventCh:     make(chan *Event, 256),
		stopCh:      make(chan struct{}),
	}
	b.stopped.Add(1)
	go b.run()
	return b
}

func (b *Bus) run() {
	defer b.stopped.Done()
	for {
		select {
		case ev := <-b.eventCh:
			b.broadcast(ev)
		case <-b.stopCh:
			return
		}
	}
}

// Subscribe registers a new Subscriber with a small buffer, the way
// events.Broker.Subscribe does.
func (b *Bus) Subscribe() Subscriber {
	sub := make(Subscriber, 16)
	b.mu.Lock()
	b.subscribers[sub] = true
	b.mu.Unlock()
	return sub
}

// Unsubscribe removes sub and closes it.
func (b *Bus) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subscribers[sub]; ok {
		delete(b.subscribers, sub)
		close(sub)
	}
}

// SubscriberCount reports how many subscribers are currently
// registered, mirroring events.Broker.SubscriberCount.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

func (b *Bus) publish(ev *Event) {
	select {
	case b.eventCh <- ev:
	case <-b.stopCh:
	default:
		// intake buffer full: drop rather than block Update, the same
		// trade events.Broker.Publish makes.
	}
}

func (b *Bus) broadcast(ev *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subscribers {
		select {
		case sub <- ev:
		default:
			// subscriber buffer full: drop for that subscriber only.
		}
	}
}

func (b *Bus) stop() {
	close(b.stopCh)
	b.stopped.Wait()
}

// eventForOp maps a vg.Op to the Event it should raise. The bool
// return is always true today; it exists so a future Op variant that
// shouldn't raise anything can opt out without every call site
// needing a nil check on the EventType instead.
func eventForOp(op vg.Op) (EventType, types.Uuid, bool) {
	switch o := op.(type) {
	case vg.LvCreate:
		return EventLvCreated, o.Lv.ID, true
	case vg.LvExpand:
		return EventLvExpanded, o.ID, true
	case vg.LvReduce:
		return EventLvReduced, o.ID, true
	case vg.LvTransfer:
		return EventLvTransferred, o.DstID, true
	case vg.LvRemove:
		return EventLvRemoved, o.ID, true
	case vg.LvRename:
		return EventLvRenamed, o.ID, true
	case vg.LvAddTag:
		return EventLvTagged, o.ID, true
	case vg.LvRemoveTag:
		return EventLvUntagged, o.ID, true
	case vg.LvSetStatus:
		return EventLvStatusChange, o.ID, true
	default:
		return "", types.Uuid{}, false
	}
}
