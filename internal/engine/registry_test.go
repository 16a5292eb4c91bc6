package engine

import "testing"

func TestRegistryLifecycle(t *testing.T) {
	r := NewRegistry()
	if r.Get(1) != nil {
		t.Fatal("empty registry returned a worker")
	}

	w1 := NewWorker(1, eventSender(1), nil)
	r.Put(1, w1)
	if r.Get(1) != w1 {
		t.Fatal("registered worker not returned")
	}

	w2 := NewWorker(1, eventSender(1), nil)
	r.Put(1, w2)
	if r.Get(1) != w2 {
		t.Fatal("replacement did not take effect")
	}
	if r.Len() != 1 {
		t.Fatalf("Len = %d", r.Len())
	}

	r.Remove(1)
	if r.Get(1) != nil {
		t.Fatal("removed worker still reachable")
	}
}

func TestRegistryDrain(t *testing.T) {
	r := NewRegistry()
	r.Put(1, NewWorker(1, eventSender(1), nil))
	r.Put(2, NewWorker(2, eventSender(2), nil))

	drained := r.Drain()
	if len(drained) != 2 {
		t.Fatalf("drained %d workers", len(drained))
	}
	if r.Len() != 0 {
		t.Fatalf("registry not empty after drain: %d", r.Len())
	}
}
