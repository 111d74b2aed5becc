package ratelimit

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
)

func newTestDistributed(t *testing.T, quota int, onError func()) (*Distributed, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	d := NewDistributed(srv.Addr(), "", 0, quota, onError)
	return d, srv
}

func TestDistributedAllowsWithinQuota(t *testing.T) {
	d, srv := newTestDistributed(t, 3, nil)
	defer srv.Close()
	defer d.Close()

	for i := 0; i < 3; i++ {
		decision, err := d.Check(context.Background(), "client-a")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if decision != Allow {
			t.Fatalf("expected Allow at request %d", i)
		}
	}
}

func TestDistributedDeniesOverQuota(t *testing.T) {
	d, srv := newTestDistributed(t, 2, nil)
	defer srv.Close()
	defer d.Close()

	d.Check(context.Background(), "client-b")
	d.Check(context.Background(), "client-b")
	decision, err := d.Check(context.Background(), "client-b")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decision != Deny {
		t.Fatal("expected Deny once quota exceeded")
	}
}

func TestDistributedIndependentClients(t *testing.T) {
	d, srv := newTestDistributed(t, 1, nil)
	defer srv.Close()
	defer d.Close()

	d.Check(context.Background(), "client-c")
	decision, _ := d.Check(context.Background(), "client-d")
	if decision != Allow {
		t.Fatal("expected an independent client's window to allow")
	}
}

func TestDistributedFailsOpenOnStoreError(t *testing.T) {
	srv := miniredis.RunT(t)
	errored := false
	d := NewDistributed(srv.Addr(), "", 0, 1, func() { errored = true })
	srv.Close() // close before use so the client can't reach it

	decision, err := d.Check(context.Background(), "client-e")
	if err != nil {
		t.Fatalf("Check should not return an error on fail-open: %v", err)
	}
	if decision != Allow {
		t.Fatal("expected fail-open Allow when store is unreachable")
	}
	if !errored {
		t.Error("expected onError callback to fire on store failure")
	}
}
