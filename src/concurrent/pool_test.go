package concurrent

import (
	"context"
	"errors"
	"strconv"
	"sync/atomic"
	"testing"
)

func TestParallelMapOrder(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}
	out, err := ParallelMap(context.Background(), items, func(n int) (string, error) {
		return strconv.Itoa(n * 10), nil
	}, 2)
	if err != nil {
		t.Fatalf("ParallelMap: %v", err)
	}
	want := []string{"10", "20", "30", "40", "50"}
	for i := range want {
		if out[i] != want[i] {
			t.Fatalf("out = %v, want %v", out, want)
		}
	}
}

func TestParallelMapPropagatesError(t *testing.T) {
	boom := errors.New("boom")
	_, err := ParallelMap(context.Background(), []int{1, 2, 3}, func(n int) (int, error) {
		if n == 2 {
			return 0, boom
		}
		return n, nil
	}, 0)
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
}

func TestParallelMapBoundsConcurrency(t *testing.T) {
	var inFlight, peak atomic.Int64
	items := make([]int, 50)
	_, err := ParallelMap(context.Background(), items, func(int) (int, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		defer inFlight.Add(-1)
		return 0, nil
	}, 4)
	if err != nil {
		t.Fatalf("ParallelMap: %v", err)
	}
	if peak.Load() > 4 {
		t.Fatalf("peak concurrency = %d, want <= 4", peak.Load())
	}
}

func TestParallelMapEmptyInput(t *testing.T) {
	out, err := ParallelMap(context.Background(), nil, func(int) (int, error) { return 0, nil }, 4)
	if err != nil || out != nil {
		t.Fatalf("out = %v, err = %v", out, err)
	}
}
