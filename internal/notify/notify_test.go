package notify

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestPublishDeliversToEverySubscriber(t *testing.T) {
	t.Parallel()

	hub := NewHub()
	defer hub.Close()

	a := hub.Subscribe(4)
	b := hub.Subscribe(4)

	hub.Publish(Data("employee"))
	hub.Publish(Settings("theme"))

	for _, sub := range []*Subscription{a, b} {
		require.Equal(t, Event{Signal: DataChanged, Entity: "employee"}, <-sub.C())
		require.Equal(t, Event{Signal: SettingsChanged, Entity: "theme"}, <-sub.C())
	}
}

func TestPublishWithoutSubscribersIsNoop(t *testing.T) {
	t.Parallel()

	hub := NewHub()
	hub.Publish(Data("room"))
	require.Zero(t, hub.Dropped())

	var nilHub *Hub
	nilHub.Publish(Data("room"))
}

func TestFullSubscriberDropsInsteadOfBlocking(t *testing.T) {
	t.Parallel()

	hub := NewHub()
	defer hub.Close()
	sub := hub.Subscribe(1)

	hub.Publish(Data("tenant"))
	hub.Publish(Data("user"))
	hub.Publish(Data("role"))

	require.Equal(t, uint64(2), hub.Dropped())
	require.Equal(t, "tenant", (<-sub.C()).Entity)
}

func TestLateSubscriberSeesNoHistory(t *testing.T) {
	t.Parallel()

	hub := NewHub()
	defer hub.Close()
	hub.Publish(Data("floor"))

	sub := hub.Subscribe(1)
	select {
	case ev := <-sub.C():
		t.Fatalf("unexpected event %v", ev)
	default:
	}
}

func TestCloseUnsubscribes(t *testing.T) {
	t.Parallel()

	hub := NewHub()
	sub := hub.Subscribe(1)
	sub.Close()
	sub.Close()

	_, ok := <-sub.C()
	require.False(t, ok)

	hub.Publish(Data("building"))
	require.Zero(t, hub.Dropped())

	hub.Close()
	hub.Close()

	after := hub.Subscribe(1)
	_, ok = <-after.C()
	require.False(t, ok)
}

func TestConcurrentObserversDrainUntilClose(t *testing.T) {
	t.Parallel()

	hub := NewHub()
	const observers = 4
	const events = 50

	var wg sync.WaitGroup
	counts := make([]int, observers)
	for i := 0; i < observers; i++ {
		sub := hub.Subscribe(events)
		wg.Add(1)
		go func(i int, sub *Subscription) {
			defer wg.Done()
			for range sub.C() {
				counts[i]++
			}
		}(i, sub)
	}

	for i := 0; i < events; i++ {
		hub.Publish(Data("assignment"))
	}
	hub.Close()
	wg.Wait()

	for _, n := range counts {
		require.Equal(t, events, n)
	}
}
