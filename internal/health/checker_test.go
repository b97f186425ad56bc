package health

import (
	"context"
	"errors"
	"testing"
	"time"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func ok(context.Context) error { return nil }

func TestCheckAllHealthy(t *testing.T) {
	c := New(Config{MaxLatency: time.Second})
	c.AddDatabase("ledger_db", pingFunc(ok))
	c.Add("theme_file", "file", pingFunc(ok))

	st := c.Check(context.Background())
	if st.Status != StatusHealthy {
		t.Fatalf("expected healthy, got %s", st.Status)
	}
	if len(st.Components) != 2 || st.Components[0].Name != "ledger_db" {
		t.Fatalf("unexpected components %+v", st.Components)
	}
}

func TestCheckDatabaseFailureIsUnhealthy(t *testing.T) {
	c := New(Config{})
	c.AddDatabase("ledger_db", pingFunc(func(context.Context) error { return errors.New("disk I/O error") }))

	st := c.Check(context.Background())
	if st.Status != StatusUnhealthy {
		t.Fatalf("expected unhealthy, got %s", st.Status)
	}
	if st.Components[0].Error != "disk I/O error" {
		t.Fatalf("unexpected error %q", st.Components[0].Error)
	}
	if got := c.GetLastStatus().Status; got != StatusUnhealthy {
		t.Fatalf("last status %s", got)
	}
}

func TestCheckNonCriticalFailureDegrades(t *testing.T) {
	c := New(Config{})
	c.Add("upstream", "http", pingFunc(func(context.Context) error { return errors.New("refused") }))
	if st := c.Check(context.Background()); st.Status != StatusDegraded {
		t.Fatalf("expected degraded, got %s", st.Status)
	}
}

func TestCheckSlowProbeIsDegradedAndBounded(t *testing.T) {
	c := New(Config{Timeout: 20 * time.Millisecond, MaxLatency: time.Millisecond})
	c.AddDatabase("slow", pingFunc(func(ctx context.Context) error {
		select {
		case <-time.After(5 * time.Millisecond):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}))
	st := c.Check(context.Background())
	if st.Status != StatusDegraded {
		t.Fatalf("expected degraded, got %s (%+v)", st.Status, st.Components)
	}
}

func TestNilCheckerAndNoProbes(t *testing.T) {
	var c *Checker
	if st := c.Check(context.Background()); st.Status != StatusHealthy {
		t.Fatalf("nil checker: %s", st.Status)
	}
	if st := New(Config{}).GetLastStatus(); st.Status != StatusHealthy {
		t.Fatalf("empty checker: %s", st.Status)
	}
	c = New(Config{})
	c.AddDatabase("none", nil)
	if st := c.Check(context.Background()); len(st.Components) != 0 {
		t.Fatalf("nil pinger should be ignored")
	}
}
