package tracking

import (
	"testing"
)

// TestHub_Publish tests delivery to joined subscribers only.
func TestHub_Publish(t *testing.T) {
	hub := NewHub(4)

	a := hub.Subscribe("a")
	b := hub.Subscribe("b")
	c := hub.Subscribe("c")
	hub.Join(a, "p1")
	hub.Join(b, "p1")
	hub.Join(c, "p2")

	delivered, dropped := hub.Publish("p1", Event{Name: EventRequestLogged})
	if delivered != 2 || dropped != 0 {
		t.Errorf("Publish() = (%d, %d), want (2, 0)", delivered, dropped)
	}

	for _, sub := range []*Subscriber{a, b} {
		select {
		case ev := <-sub.C:
			if ev.Name != EventRequestLogged {
				t.Errorf("subscriber %s got %q", sub.ID, ev.Name)
			}
		default:
			t.Errorf("subscriber %s received nothing", sub.ID)
		}
	}
	select {
	case ev := <-c.C:
		t.Errorf("subscriber of another project received %q", ev.Name)
	default:
	}
}

// TestHub_PublishNoSubscribers tests that events for empty channels are discarded.
func TestHub_PublishNoSubscribers(t *testing.T) {
	hub := NewHub(1)

	delivered, dropped := hub.Publish("nobody", Event{Name: EventRequestLogged})
	if delivered != 0 || dropped != 0 {
		t.Errorf("Publish() = (%d, %d), want (0, 0)", delivered, dropped)
	}

	// Joining later must not replay anything.
	sub := hub.Subscribe("late")
	hub.Join(sub, "nobody")
	select {
	case <-sub.C:
		t.Error("late subscriber received a buffered event")
	default:
	}
}

// TestHub_SlowSubscriber tests that a full buffer drops instead of blocking.
func TestHub_SlowSubscriber(t *testing.T) {
	hub := NewHub(1)
	slow := hub.Subscribe("slow")
	hub.Join(slow, "p")

	hub.Publish("p", Event{Name: "first"})
	delivered, dropped := hub.Publish("p", Event{Name: "second"})

	if delivered != 0 || dropped != 1 {
		t.Errorf("Publish() = (%d, %d), want (0, 1)", delivered, dropped)
	}
	if ev := <-slow.C; ev.Name != "first" {
		t.Errorf("got %q, want first", ev.Name)
	}
}

// TestHub_LeaveAndUnsubscribe tests channel membership changes.
func TestHub_LeaveAndUnsubscribe(t *testing.T) {
	hub := NewHub(2)
	sub := hub.Subscribe("s")
	hub.Join(sub, "p1")
	hub.Join(sub, "p2")

	hub.Leave(sub, "p1")
	if hub.Subscribers("p1") != 0 || hub.Subscribers("p2") != 1 {
		t.Errorf("Subscribers() = %d/%d, want 0/1", hub.Subscribers("p1"), hub.Subscribers("p2"))
	}

	hub.Unsubscribe(sub)
	hub.Unsubscribe(sub)
	if hub.Subscribers("p2") != 0 {
		t.Errorf("Subscribers(p2) = %d after Unsubscribe", hub.Subscribers("p2"))
	}
	if _, ok := <-sub.C; ok {
		t.Error("C not closed after Unsubscribe")
	}

	// Joining after Unsubscribe is ignored.
	hub.Join(sub, "p3")
	if hub.Subscribers("p3") != 0 {
		t.Error("closed subscriber joined a project")
	}
}
