package fault

import (
	"context"
	"testing"
)

func TestUnwindReverseOrder(t *testing.T) {
	var order []int
	s := &Stack{}
	for i := 0; i < 4; i++ {
		i := i
		s.Push(func(ctx context.Context) ([]Rollback, *Entry) {
			order = append(order, i)
			return nil, nil
		})
	}

	s.Unwind(context.Background())

	want := []int{3, 2, 1, 0}
	if len(order) != len(want) {
		t.Fatalf("ran %d rollbacks, want %d", len(order), len(want))
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order[%d] = %d, want %d", i, order[i], want[i])
		}
	}
	if s.Len() != 0 {
		t.Errorf("stack not cleared, len = %d", s.Len())
	}
}

func TestUnwindDescendsIntoSubRollbacks(t *testing.T) {
	var order []string
	mk := func(name string, sub []Rollback) Rollback {
		return func(ctx context.Context) ([]Rollback, *Entry) {
			order = append(order, name)
			return sub, nil
		}
	}

	inner := []Rollback{mk("inner-a", nil), mk("inner-b", nil)}
	fns := []Rollback{mk("first", nil), mk("second", inner)}

	Unwind(context.Background(), fns)

	// second unwinds before first; its sub-rollbacks run depth-first,
	// themselves in reverse order.
	want := []string{"second", "inner-b", "inner-a", "first"}
	if len(order) != len(want) {
		t.Fatalf("order = %v", order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestUnwindContinuesPastFailures(t *testing.T) {
	var ran []int
	fns := []Rollback{
		func(ctx context.Context) ([]Rollback, *Entry) {
			ran = append(ran, 0)
			return nil, nil
		},
		func(ctx context.Context) ([]Rollback, *Entry) {
			ran = append(ran, 1)
			return nil, Engine("rollback.fail", errTest("disk gone"))
		},
		func(ctx context.Context) ([]Rollback, *Entry) {
			ran = append(ran, 2)
			return nil, nil
		},
	}

	logs := Unwind(context.Background(), fns)

	if len(ran) != 3 {
		t.Fatalf("ran %d rollbacks, want all 3", len(ran))
	}
	if len(logs) != 1 {
		t.Fatalf("logs = %v", logs)
	}
	if logs[0] != "rollback failed: rollback.fail: disk gone" {
		t.Errorf("log line = %q", logs[0])
	}
}

func TestPushIgnoresNil(t *testing.T) {
	s := &Stack{}
	s.Push(nil)
	if s.Len() != 0 {
		t.Errorf("nil rollback registered")
	}
}
