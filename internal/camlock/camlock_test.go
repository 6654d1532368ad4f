package camlock

import (
	"context"
	"testing"
	"time"
)

func TestAcquireRelease(t *testing.T) {
	dir := t.TempDir()

	l := New(dir, 0)
	if err := l.Acquire(context.Background()); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if err := l.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}

	// Immediately acquirable again after release.
	ok, err := New(dir, 0).TryAcquire()
	if err != nil {
		t.Fatalf("try acquire: %v", err)
	}
	if !ok {
		t.Fatal("lock still held after release")
	}
}

func TestContendersBlockWhileHeld(t *testing.T) {
	dir := t.TempDir()

	holder := New(dir, 3)
	if err := holder.Acquire(context.Background()); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	contender := New(dir, 3)
	ok, err := contender.TryAcquire()
	if err != nil {
		t.Fatalf("try acquire: %v", err)
	}
	if ok {
		t.Fatal("contender acquired a held lock")
	}

	// A blocking contender proceeds once the holder releases.
	done := make(chan error, 1)
	go func() {
		done <- contender.Acquire(context.Background())
	}()

	select {
	case <-done:
		t.Fatal("contender acquired before release")
	case <-time.After(50 * time.Millisecond):
	}

	if err := holder.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("blocked acquire: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("contender never acquired after release")
	}
	_ = contender.Release()
}

func TestAcquireHonorsDeadlineWhileHeld(t *testing.T) {
	dir := t.TempDir()

	holder := New(dir, 5)
	if err := holder.Acquire(context.Background()); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer holder.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- New(dir, 5).Acquire(ctx)
	}()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("acquire succeeded while the lock was held")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("acquire still blocked long after its deadline expired")
	}

	// The holder's lease is untouched by the failed attempt.
	ok, err := New(dir, 5).TryAcquire()
	if err != nil {
		t.Fatalf("try acquire: %v", err)
	}
	if ok {
		t.Fatal("lock free after an expired waiter; holder lost the lease")
	}
}

func TestDifferentDevicesDoNotContend(t *testing.T) {
	dir := t.TempDir()

	a := New(dir, 0)
	if err := a.Acquire(context.Background()); err != nil {
		t.Fatalf("acquire device 0: %v", err)
	}
	defer a.Release()

	b := New(dir, 1)
	ok, err := b.TryAcquire()
	if err != nil {
		t.Fatalf("try acquire device 1: %v", err)
	}
	if !ok {
		t.Fatal("device 1 lock blocked by device 0 lock")
	}
	_ = b.Release()
}
