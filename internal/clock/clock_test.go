package clock

import (
	"testing"
	"time"
)

func TestNow_ReturnsCurrentTime(t *testing.T) {
	before := time.Now()
	result := Now()
	after := time.Now()

	if result.Before(before) || result.After(after) {
		t.Errorf("Now() returned %v, expected between %v and %v", result, before, after)
	}
}

func TestMockClock_Advance(t *testing.T) {
	mockTime := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	mock := NewMockClock(mockTime)

	mock.Advance(time.Hour)

	if want := mockTime.Add(time.Hour); !mock.Now().Equal(want) {
		t.Errorf("After Advance, Now() = %v, expected %v", mock.Now(), want)
	}
	if got := mock.Since(mockTime); got != time.Hour {
		t.Errorf("Since() = %v, expected 1h", got)
	}
}

func TestUse(t *testing.T) {
	pinned := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	restore := Use(NewMockClock(pinned))

	if !Now().Equal(pinned) {
		t.Errorf("Now() = %v, expected pinned %v", Now(), pinned)
	}

	restore()
	if Now().Equal(pinned) {
		t.Error("restore() did not reinstate the real clock")
	}
}
