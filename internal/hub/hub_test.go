package hub

import (
	"testing"
	"time"

	"github.com/archon-dev/archon/internal/models"
	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
)

func TestHub(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	hub := NewHub()
	go hub.Run()
	defer hub.Stop()

	sub := hub.Subscribe("1")
	other := hub.Subscribe("2")
	if n := hub.Subscribers(); n != 2 {
		t.Fatalf("Expected 2 subscribers after registration, got %d", n)
	}

	hub.Publish(models.JobProgressSnapshot{JobID: "1", Status: models.StatusRunning, CompletedUnits: 3})

	select {
	case received := <-sub.C:
		if received.CompletedUnits != 3 {
			t.Errorf("Subscriber received wrong snapshot: got %d units, want 3", received.CompletedUnits)
		}
	case <-time.After(1 * time.Second):
		t.Fatal("Subscriber did not receive snapshot in time")
	}

	select {
	case snap := <-other.C:
		t.Fatalf("Subscriber of another job received %+v", snap)
	default:
	}

	hub.Unsubscribe(sub)
	if n := hub.Subscribers(); n != 1 {
		t.Fatalf("Expected 1 subscriber after unregistration, got %d", n)
	}
	_, open := <-sub.C
	assert.False(t, open, "unsubscribed channel is closed")

	// A second Unsubscribe is a no-op.
	hub.Unsubscribe(sub)
}

func TestHubDropsSlowSubscriber(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	hub := NewHub()
	go hub.Run()
	defer hub.Stop()

	sub := hub.Subscribe("7")
	for i := 0; i <= subscriberBuffer; i++ {
		hub.Publish(models.JobProgressSnapshot{JobID: "7", CompletedUnits: i})
	}
	assert.Equal(t, 0, hub.Subscribers())

	received := 0
	for range sub.C {
		received++
	}
	assert.Equal(t, subscriberBuffer, received, "buffered snapshots are still readable before the close")
	hub.Unsubscribe(sub)
}

func TestHubStopClosesSubscribers(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	hub := NewHub()
	done := make(chan struct{})
	go func() {
		hub.Run()
		close(done)
	}()

	sub := hub.Subscribe("1")
	hub.Subscribers()
	hub.Stop()
	<-done

	_, open := <-sub.C
	assert.False(t, open)

	// Calls after Stop return immediately.
	late := hub.Subscribe("1")
	_, open = <-late.C
	assert.False(t, open)
	hub.Publish(models.JobProgressSnapshot{JobID: "1"})
	hub.Unsubscribe(late)
	assert.Equal(t, 0, hub.Subscribers())
	hub.Stop()
}
