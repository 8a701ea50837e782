package signalbus

import (
	"testing"
	"time"
)

type fakeSink struct{ recorded []Signal }

func (f *fakeSink) RecordSignal(s Signal) error {
	f.recorded = append(f.recorded, s)
	return nil
}

func TestPublish_RecordsToSinkAndBroadcasts(t *testing.T) {
	sink := &fakeSink{}
	b := New(sink)
	ch := b.Subscribe(4)

	sig := Signal{Kind: KindPersonCreated, EntityID: "p1", Source: TierCalendar, Confidence: 1, At: time.Now()}
	if err := b.Publish(sig); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	if len(sink.recorded) != 1 {
		t.Fatalf("expected 1 recorded signal, got %d", len(sink.recorded))
	}
	select {
	case got := <-ch:
		if got.EntityID != "p1" {
			t.Errorf("got %+v", got)
		}
	default:
		t.Fatal("expected signal on subscriber channel")
	}
}

func TestPublish_NilBusIsNoOp(t *testing.T) {
	var b *Bus
	if err := b.Publish(Signal{}); err != nil {
		t.Fatalf("nil bus Publish should be no-op: %v", err)
	}
}

func TestDecay_LiveSignalNearOne(t *testing.T) {
	now := time.Now()
	s := Signal{At: now}
	if d := s.Decay(now); d < 0.99 {
		t.Errorf("expected live signal decay near 1.0, got %f", d)
	}
}

func TestDecay_ThirtyDaysIsHalf(t *testing.T) {
	now := time.Now()
	s := Signal{At: now.Add(-30 * 24 * time.Hour)}
	d := s.Decay(now)
	if d < 0.45 || d > 0.55 {
		t.Errorf("expected ~0.5 decay at 30 days, got %f", d)
	}
}

func TestTierWeight_JunctionHighestTrust(t *testing.T) {
	if TierWeight(TierJunction) <= TierWeight(TierAI) {
		t.Error("junction tier should outweigh AI-derived tier")
	}
}

func TestUnsubscribe_StopsDelivery(t *testing.T) {
	b := New(nil)
	ch := b.Subscribe(1)
	b.Unsubscribe(ch)
	if err := b.Publish(Signal{Kind: KindPrepReady}); err != nil {
		t.Fatal(err)
	}
	if _, ok := <-ch; ok {
		t.Fatal("expected channel closed after unsubscribe")
	}
}
