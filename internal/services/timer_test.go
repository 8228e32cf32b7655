package services_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/bastago/basta/internal/logger"
	"github.com/bastago/basta/internal/services"
)

// TestTimerScheduler_FiresOnce tests that a scheduled timer fires and
// unregisters itself
func TestTimerScheduler_FiresOnce(t *testing.T) {
	s := services.NewTimerScheduler(logger.New())

	var fired atomic.Int32
	done := make(chan struct{})
	s.Schedule("g1", services.TimerRound, 10*time.Millisecond, func() {
		fired.Add(1)
		close(done)
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}

	if s.Active("g1", services.TimerRound) {
		t.Error("expected fired timer to be unregistered")
	}
	if fired.Load() != 1 {
		t.Errorf("expected one firing, got %d", fired.Load())
	}
}

// TestTimerScheduler_ScheduleReplacesSameKind tests that re-scheduling the
// same kind cancels the previous timer
func TestTimerScheduler_ScheduleReplacesSameKind(t *testing.T) {
	s := services.NewTimerScheduler(logger.New())

	var first atomic.Bool
	s.Schedule("g1", services.TimerLetter, 50*time.Millisecond, func() {
		first.Store(true)
	})

	done := make(chan struct{})
	s.Schedule("g1", services.TimerLetter, 10*time.Millisecond, func() {
		close(done)
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("replacement timer did not fire")
	}

	time.Sleep(80 * time.Millisecond)
	if first.Load() {
		t.Error("expected the replaced timer never to fire")
	}
}

// TestTimerScheduler_CancelStopsTimer tests explicit cancellation
func TestTimerScheduler_CancelStopsTimer(t *testing.T) {
	s := services.NewTimerScheduler(logger.New())

	var fired atomic.Bool
	s.Schedule("g1", services.TimerRound, 20*time.Millisecond, func() {
		fired.Store(true)
	})

	if !s.Cancel("g1", services.TimerRound) {
		t.Fatal("expected Cancel to report a stopped timer")
	}

	time.Sleep(50 * time.Millisecond)
	if fired.Load() {
		t.Error("expected cancelled timer never to fire")
	}
	if s.Cancel("g1", services.TimerRound) {
		t.Error("expected second Cancel to find nothing")
	}
}

// TestTimerScheduler_CancelAll tests that all kinds for one game stop while
// other games are untouched
func TestTimerScheduler_CancelAll(t *testing.T) {
	s := services.NewTimerScheduler(logger.New())

	var g1Fired atomic.Int32
	done := make(chan struct{})
	s.Schedule("g1", services.TimerRound, 20*time.Millisecond, func() { g1Fired.Add(1) })
	s.Schedule("g1", services.TimerNextRound, 20*time.Millisecond, func() { g1Fired.Add(1) })
	s.Schedule("g2", services.TimerRound, 20*time.Millisecond, func() { close(done) })

	s.CancelAll("g1")

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("unrelated game's timer did not fire")
	}
	if g1Fired.Load() != 0 {
		t.Errorf("expected no g1 firings after CancelAll, got %d", g1Fired.Load())
	}
	if s.Active("g1", services.TimerRound) || s.Active("g1", services.TimerNextRound) {
		t.Error("expected g1 timers to be unregistered")
	}
}
