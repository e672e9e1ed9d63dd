package clock

import (
	"sync"
	"testing"
	"time"
)

func TestFakeAdvance(t *testing.T) {
	t0 := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	c := NewFake(t0)

	if got := c.Now(); !got.Equal(t0) {
		t.Fatalf("Now() = %v, want %v", got, t0)
	}
	if got := c.Advance(31 * time.Minute); !got.Equal(t0.Add(31 * time.Minute)) {
		t.Fatalf("Advance returned %v", got)
	}
	c.Set(t0)
	if got := c.Now(); !got.Equal(t0) {
		t.Fatalf("after Set, Now() = %v", got)
	}
}

func TestFakeConcurrentAdvance(t *testing.T) {
	t0 := time.Unix(0, 0).UTC()
	c := NewFake(t0)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Advance(time.Second)
			_ = c.Now()
		}()
	}
	wg.Wait()

	if got := c.Now().Sub(t0); got != 50*time.Second {
		t.Errorf("elapsed = %v, want 50s", got)
	}
}

func TestFuncAndSystem(t *testing.T) {
	fixed := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	var c Clock = Func(func() time.Time { return fixed })
	if !c.Now().Equal(fixed) {
		t.Errorf("Func clock = %v", c.Now())
	}
	if loc := System().Now().Location(); loc != time.UTC {
		t.Errorf("System clock location = %v, want UTC", loc)
	}
}
