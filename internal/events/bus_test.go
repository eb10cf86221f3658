package events

import (
	"testing"
	"time"
)

func TestBus_PublishSubscribe(t *testing.T) {
	bus := New()
	received := make(chan BootedEvent, 1)

	unsub := bus.Subscribe(func(e BootedEvent) {
		received <- e
	})
	defer unsub()

	bus.Publish(BootedEvent{Name: "test", Address: "127.0.0.1:57110"})

	select {
	case got := <-received:
		if got.Name != "test" || got.Address != "127.0.0.1:57110" {
			t.Errorf("unexpected event %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestBus_TypedDelivery(t *testing.T) {
	bus := New()
	panics := make(chan PanicEvent, 1)
	quits := make(chan QuitEvent, 1)

	defer bus.Subscribe(func(e PanicEvent) { panics <- e })()
	defer bus.Subscribe(func(e QuitEvent) { quits <- e })()

	bus.Publish(PanicEvent{Name: "a", ExitCode: 9})

	select {
	case e := <-panics:
		if e.ExitCode != 9 {
			t.Errorf("ExitCode = %d, want 9", e.ExitCode)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for panic event")
	}
	select {
	case <-quits:
		t.Fatal("quit subscriber must not receive a panic event")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := New()
	received := make(chan StatusChangedEvent, 1)

	unsub := bus.Subscribe(func(e StatusChangedEvent) {
		received <- e
	})

	bus.Publish(StatusChangedEvent{NewStatus: "booting"})
	<-received

	unsub()

	bus.Publish(StatusChangedEvent{NewStatus: "online"})
	select {
	case <-received:
		t.Fatal("Should not have received event after unsubscribe")
	case <-time.After(10 * time.Millisecond):
		// Expected - no event
	}
}

func TestBus_NilPublishIsNoop(_ *testing.T) {
	var bus *Bus
	bus.Publish(BootedEvent{})
}

func TestSubscribeToChannel(t *testing.T) {
	bus := New()
	ch := make(chan any, 4)
	unsub := SubscribeToChannel[QuitEvent](bus, ch)
	defer unsub()

	bus.Publish(QuitEvent{Name: "x"})

	select {
	case ev := <-ch:
		if q, ok := ev.(QuitEvent); !ok || q.Name != "x" {
			t.Errorf("unexpected event %#v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for channel delivery")
	}
}

func TestUnknownHandlerReturnsNoop(_ *testing.T) {
	bus := New()
	unsub := bus.Subscribe(func(string) {})
	unsub()
}
