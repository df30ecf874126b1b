package usecases

import (
	"slices"
	"testing"

	"go.uber.org/zap"
)

// leaver unsubscribes itself on the first delta it receives.
type leaver struct {
	recorder
	unsubscribe func()
}

func (l *leaver) OnStreamDelta(delta string) {
	l.recorder.OnStreamDelta(delta)
	l.unsubscribe()
}

func TestDispatcher_UnsubscribeMidBatch(t *testing.T) {
	d := newDispatcher(zap.NewNop())

	l := &leaver{}
	l.unsubscribe = d.subscribe(l)
	other := &recorder{}
	removeOther := d.subscribe(other)

	// A subscriber removed by another one's callback misses the rest too.
	remover := &leaver{unsubscribe: removeOther}
	d.subscribe(remover)

	d.publish(deltaEvent("a"), deltaEvent("b"), deltaEvent("c"))
	d.close()

	if got := l.log(); !slices.Equal(got, []string{"delta:a"}) {
		t.Errorf("self-removed subscriber got %v, want only the first event", got)
	}
	if got := other.log(); !slices.Equal(got, []string{"delta:a"}) {
		t.Errorf("removed subscriber got %v, want only the first event", got)
	}
	if got := remover.log(); !slices.Equal(got, []string{"delta:a", "delta:b", "delta:c"}) {
		t.Errorf("remaining subscriber got %v", got)
	}
}

func TestDispatcher_DeliversInPublishOrder(t *testing.T) {
	d := newDispatcher(zap.NewNop())
	rec := &recorder{}
	d.subscribe(rec)

	d.publish(deltaEvent("1"))
	d.publish(deltaEvent("2"), deltaEvent("3"))
	d.close()
	d.publish(deltaEvent("late"))

	if got := rec.log(); !slices.Equal(got, []string{"delta:1", "delta:2", "delta:3"}) {
		t.Errorf("got %v", got)
	}
}
