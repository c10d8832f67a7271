package blacklist

import (
	"testing"
	"time"
)

func TestBannedFalseForUnknownIP(t *testing.T) {
	b := New(0, 0)
	if b.Banned("203.0.113.1") {
		t.Error("Banned() = true for never-seen IP, want false")
	}
}

func TestRecordFailureBans(t *testing.T) {
	b := New(100*time.Millisecond, time.Second)
	fakeNow := time.Now()
	b.now = func() time.Time { return fakeNow }

	b.RecordFailure("203.0.113.1")
	if !b.Banned("203.0.113.1") {
		t.Error("Banned() = false right after a failure, want true")
	}

	fakeNow = fakeNow.Add(200 * time.Millisecond)
	if b.Banned("203.0.113.1") {
		t.Error("Banned() = true after ban window elapsed, want false")
	}
}

func TestRecordFailureGrowsWithRepeatedFailures(t *testing.T) {
	b := New(100*time.Millisecond, time.Second)
	fakeNow := time.Now()
	b.now = func() time.Time { return fakeNow }

	b.RecordFailure("203.0.113.1")
	b.RecordFailure("203.0.113.1")
	b.RecordFailure("203.0.113.1")

	fakeNow = fakeNow.Add(250 * time.Millisecond)
	if !b.Banned("203.0.113.1") {
		t.Error("Banned() = false within 3x-base window after 3 failures, want true")
	}
}

func TestRecordFailureRespectsCap(t *testing.T) {
	b := New(time.Second, 2*time.Second)
	fakeNow := time.Now()
	b.now = func() time.Time { return fakeNow }

	for i := 0; i < 10; i++ {
		b.RecordFailure("203.0.113.1")
	}

	fakeNow = fakeNow.Add(2*time.Second + 500*time.Millisecond)
	if b.Banned("203.0.113.1") {
		t.Error("Banned() = true past the cap, want false")
	}
}

func TestRecordSuccessClearsHistory(t *testing.T) {
	b := New(time.Second, time.Minute)
	b.RecordFailure("203.0.113.1")
	b.RecordSuccess("203.0.113.1")
	if b.Banned("203.0.113.1") {
		t.Error("Banned() = true after RecordSuccess, want false")
	}
	if b.Len() != 0 {
		t.Errorf("Len() = %d after RecordSuccess, want 0", b.Len())
	}
}

func TestSweepDropsExpiredEntries(t *testing.T) {
	b := New(100*time.Millisecond, time.Second)
	fakeNow := time.Now()
	b.now = func() time.Time { return fakeNow }

	b.RecordFailure("203.0.113.1")
	fakeNow = fakeNow.Add(200 * time.Millisecond)
	b.Sweep()

	if b.Len() != 0 {
		t.Errorf("Len() = %d after Sweep of expired entry, want 0", b.Len())
	}
}
