// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"testing"
	"time"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestFakeNowOnlyMovesOnAdvance(t *testing.T) {
	c := Fake(epoch)
	if !c.Now().Equal(epoch) {
		t.Fatalf("Now() = %v, want %v", c.Now(), epoch)
	}
	c.Advance(3 * time.Second)
	if want := epoch.Add(3 * time.Second); !c.Now().Equal(want) {
		t.Fatalf("Now() = %v, want %v", c.Now(), want)
	}
}

func TestFakeAfterNonPositiveFiresImmediately(t *testing.T) {
	c := Fake(epoch)
	select {
	case fired := <-c.After(0):
		if !fired.Equal(epoch) {
			t.Errorf("fired at %v, want %v", fired, epoch)
		}
	default:
		t.Fatal("After(0) did not fire immediately")
	}
	if c.PendingCount() != 0 {
		t.Errorf("PendingCount() = %d, want 0", c.PendingCount())
	}
}

func TestFakeSleepReleasedByAdvance(t *testing.T) {
	c := Fake(epoch)
	done := make(chan struct{})
	go func() {
		c.Sleep(50 * time.Millisecond)
		close(done)
	}()

	c.WaitForTimers(1)
	c.Advance(49 * time.Millisecond)
	select {
	case <-done:
		t.Fatal("Sleep returned before its deadline")
	default:
	}

	c.Advance(time.Millisecond)
	select {
	case <-done:
	case <-time.After(5 * time.Second): //nolint:realclock test hang prevention
		t.Fatal("Sleep not released after deadline")
	}
}

func TestFakeAdvanceFiresAllExpiredWaiters(t *testing.T) {
	c := Fake(epoch)
	late := c.After(2 * time.Second)
	early := c.After(time.Second)

	c.Advance(5 * time.Second)

	for name, channel := range map[string]<-chan time.Time{"early": early, "late": late} {
		select {
		case <-channel:
		default:
			t.Errorf("%s waiter did not fire", name)
		}
	}
	if c.PendingCount() != 0 {
		t.Errorf("PendingCount() = %d, want 0", c.PendingCount())
	}
}
