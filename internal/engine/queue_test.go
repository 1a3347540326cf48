package engine

import (
	"errors"
	"math/rand/v2"
	"testing"

	"contagion/internal/simtime"
)

func TestQueuePopsInMinuteThenPriorityOrder(t *testing.T) {
	inf := &Infection{IncubationEnd: 60, TransmissionEnd: 120}
	q := NewQueue()
	q.Push(VirusSpread{At: 60})
	q.Push(Transition{At: 60, Person: 1})
	q.Push(PlanDay{At: 0})
	q.Push(InfectionEnd{Infection: inf})
	q.Push(Incubation{Infection: inf})
	q.Push(VirusSpread{At: 0})

	want := []struct {
		minute simtime.Time
		kind   Kind
	}{
		{0, KindPlanDay},
		{0, KindVirusSpread},
		{60, KindIncubation},
		{60, KindTransition},
		{60, KindVirusSpread},
		{120, KindInfection},
	}
	for i, w := range want {
		ev, err := q.Pop()
		if err != nil {
			t.Fatalf("pop %d: %v", i, err)
		}
		if ev.Minute() != w.minute || ev.Kind() != w.kind {
			t.Fatalf("pop %d: expected (%d, %s), got (%d, %s)", i, w.minute, w.kind, ev.Minute(), ev.Kind())
		}
	}
	if _, err := q.Pop(); !errors.Is(err, ErrEmptyQueue) {
		t.Fatalf("expected ErrEmptyQueue, got %v", err)
	}
}

func TestQueueDrainIsNonDecreasing(t *testing.T) {
	r := rand.New(rand.NewPCG(3, 4))
	q := NewQueue()
	for range 500 {
		at := simtime.Time(r.IntN(2000))
		switch r.IntN(4) {
		case 0:
			q.Push(PlanDay{At: at})
		case 1:
			q.Push(Transition{At: at})
		case 2:
			q.Push(VirusSpread{At: at})
		default:
			q.Push(Incubation{Infection: &Infection{IncubationEnd: at}})
		}
	}
	if q.Count(KindPlanDay)+q.Count(KindTransition)+q.Count(KindVirusSpread)+q.Count(KindIncubation) != 500 {
		t.Fatalf("counts do not add up to queue length %d", q.Len())
	}
	prev, err := q.Pop()
	if err != nil {
		t.Fatalf("pop: %v", err)
	}
	for q.Len() > 0 {
		next, err := q.Pop()
		if err != nil {
			t.Fatalf("pop: %v", err)
		}
		if Less(next, prev) {
			t.Fatalf("(%d, %s) popped after (%d, %s)", next.Minute(), next.Kind(), prev.Minute(), prev.Kind())
		}
		prev = next
	}
}

func TestQueuePeek(t *testing.T) {
	q := NewQueue()
	if _, ok := q.Peek(); ok {
		t.Fatalf("expected empty peek")
	}
	q.Push(VirusSpread{At: 5})
	q.Push(PlanDay{At: 5})
	ev, ok := q.Peek()
	if !ok || ev.Kind() != KindPlanDay {
		t.Fatalf("expected plan day at head, got %v", ev)
	}
	if q.Len() != 2 {
		t.Fatalf("peek removed an event")
	}
}
