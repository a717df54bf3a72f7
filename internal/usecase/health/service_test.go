package health

import (
	"context"
	"errors"
	"testing"
	"time"
)

type mockDBPinger struct {
	err error
}

func (m *mockDBPinger) Ping(_ context.Context) error { return m.err }

type mockChecker struct {
	err   error
	block bool
}

func (m *mockChecker) HealthCheck(ctx context.Context) error {
	if m.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return m.err
}

func TestCheck_AllHealthy(t *testing.T) {
	svc := New(&mockDBPinger{},
		Probe{Name: "text_embedding", Checker: &mockChecker{}},
		Probe{Name: "vector_index", Checker: &mockChecker{}},
	)
	r := svc.Check(context.Background())

	if r.Status != Healthy {
		t.Errorf("expected %q, got %q", Healthy, r.Status)
	}
	for _, name := range []string{"database", "text_embedding", "vector_index"} {
		if r.Checks[name] != CheckOK {
			t.Errorf("expected %s %q, got %q", name, CheckOK, r.Checks[name])
		}
	}
}

func TestCheck_DBError(t *testing.T) {
	svc := New(&mockDBPinger{err: errors.New("conn refused")}, Probe{Name: "text_embedding", Checker: &mockChecker{}})
	r := svc.Check(context.Background())

	if r.Status != Unhealthy {
		t.Errorf("expected %q, got %q", Unhealthy, r.Status)
	}
	if r.Checks["database"] != CheckError {
		t.Errorf("expected database %q, got %q", CheckError, r.Checks["database"])
	}
	if r.Checks["text_embedding"] != CheckOK {
		t.Errorf("expected text_embedding %q, got %q", CheckOK, r.Checks["text_embedding"])
	}
}

func TestCheck_ProbeError(t *testing.T) {
	svc := New(&mockDBPinger{},
		Probe{Name: "text_embedding", Checker: &mockChecker{}},
		Probe{Name: "image_embedding", Checker: &mockChecker{err: errors.New("timeout")}},
	)
	r := svc.Check(context.Background())

	if r.Status != Degraded {
		t.Errorf("expected %q, got %q", Degraded, r.Status)
	}
	if r.Checks["image_embedding"] != CheckError {
		t.Errorf("expected image_embedding %q, got %q", CheckError, r.Checks["image_embedding"])
	}
}

func TestCheck_SlowProbeTimesOut(t *testing.T) {
	svc := New(&mockDBPinger{}, Probe{Name: "image_embedding", Checker: &mockChecker{block: true}})
	svc.timeout = 10 * time.Millisecond

	start := time.Now()
	r := svc.Check(context.Background())

	if time.Since(start) > time.Second {
		t.Fatal("probe timeout not applied")
	}
	if r.Status != Degraded {
		t.Errorf("expected %q, got %q", Degraded, r.Status)
	}
}

func TestCheck_NilCheckerIgnored(t *testing.T) {
	svc := New(&mockDBPinger{}, Probe{Name: "image_embedding"})
	r := svc.Check(context.Background())

	if r.Status != Healthy {
		t.Errorf("expected %q, got %q", Healthy, r.Status)
	}
	if _, ok := r.Checks["image_embedding"]; ok {
		t.Error("nil checker should not be reported")
	}
}
