// Package hub fans job progress snapshots out to the HTTP streams that
// follow each job.
package hub

import (
	"sync"

	"github.com/archon-dev/archon/internal/models"
	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("hub")

// subscriberBuffer is how many snapshots a subscriber may fall behind
// before it is dropped.
const subscriberBuffer = 64

// Subscriber receives the snapshots published for one job. C is closed when
// the subscriber is unsubscribed, dropped for being too slow, or the hub
// stops.
type Subscriber struct {
	JobID models.JobID
	C     <-chan models.JobProgressSnapshot

	send chan models.JobProgressSnapshot
}

// Hub maintains the set of active subscribers and broadcasts snapshots to
// the subscribers of the matching job.
type Hub struct {
	subscribers map[models.JobID]map[*Subscriber]bool
	broadcast   chan models.JobProgressSnapshot
	register    chan *Subscriber
	unregister  chan *Subscriber
	count       chan chan int
	quit        chan struct{}
	stopOnce    sync.Once
}

func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[models.JobID]map[*Subscriber]bool),
		broadcast:   make(chan models.JobProgressSnapshot),
		register:    make(chan *Subscriber),
		unregister:  make(chan *Subscriber),
		count:       make(chan chan int),
		quit:        make(chan struct{}),
	}
}

// Run processes registrations and broadcasts until Stop is called.
func (h *Hub) Run() {
	for {
		select {
		case sub := <-h.register:
			subs, ok := h.subscribers[sub.JobID]
			if !ok {
				subs = make(map[*Subscriber]bool)
				h.subscribers[sub.JobID] = subs
			}
			subs[sub] = true
		case sub := <-h.unregister:
			h.remove(sub)
		case snap := <-h.broadcast:
			for sub := range h.subscribers[snap.JobID] {
				select {
				case sub.send <- snap:
				default:
					log.Warnf("job %s: dropping slow subscriber", snap.JobID)
					h.remove(sub)
				}
			}
		case reply := <-h.count:
			n := 0
			for _, subs := range h.subscribers {
				n += len(subs)
			}
			reply <- n
		case <-h.quit:
			for _, subs := range h.subscribers {
				for sub := range subs {
					close(sub.send)
				}
			}
			h.subscribers = make(map[models.JobID]map[*Subscriber]bool)
			return
		}
	}
}

func (h *Hub) remove(sub *Subscriber) {
	subs, ok := h.subscribers[sub.JobID]
	if !ok || !subs[sub] {
		return
	}
	delete(subs, sub)
	close(sub.send)
	if len(subs) == 0 {
		delete(h.subscribers, sub.JobID)
	}
}

// Stop ends Run and closes every subscriber channel.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.quit) })
}

// Subscribe registers interest in a job. Every snapshot published after
// Subscribe returns is delivered, unless the subscriber falls behind.
func (h *Hub) Subscribe(jobID models.JobID) *Subscriber {
	send := make(chan models.JobProgressSnapshot, subscriberBuffer)
	sub := &Subscriber{JobID: jobID, C: send, send: send}
	select {
	case h.register <- sub:
	case <-h.quit:
		close(send)
	}
	return sub
}

// Unsubscribe removes a subscriber. It is safe to call more than once and
// after the subscriber was dropped.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	select {
	case h.unregister <- sub:
	case <-h.quit:
	}
}

// Publish delivers a snapshot to the subscribers of its job.
func (h *Hub) Publish(snap models.JobProgressSnapshot) {
	select {
	case h.broadcast <- snap:
	case <-h.quit:
	}
}

// Subscribers returns the number of registered subscribers.
func (h *Hub) Subscribers() int {
	reply := make(chan int, 1)
	select {
	case h.count <- reply:
		return <-reply
	case <-h.quit:
		return 0
	}
}
