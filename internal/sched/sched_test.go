package sched

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestArm_FiresAndClearsEntry(t *testing.T) {
	s := NewTimerScheduler()
	defer s.Close()

	done := make(chan struct{})
	s.Arm("k", 5*time.Millisecond, func() { close(done) })

	_, armed := s.FireAt("k")
	require.True(t, armed)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timer did not fire")
	}

	require.Eventually(t, func() bool { return s.Len() == 0 }, time.Second, time.Millisecond)
}

func TestArm_ReplacesExistingTimer(t *testing.T) {
	s := NewTimerScheduler()
	defer s.Close()

	var first, second atomic.Int32
	done := make(chan struct{})

	s.Arm("k", 10*time.Millisecond, func() { first.Add(1) })
	s.Arm("k", 20*time.Millisecond, func() { second.Add(1); close(done) })
	require.Equal(t, 1, s.Len())

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("replacement timer did not fire")
	}

	// Give the first timer a chance to misfire if it were still alive.
	time.Sleep(30 * time.Millisecond)
	require.Equal(t, int32(0), first.Load())
	require.Equal(t, int32(1), second.Load())
}

func TestCancel(t *testing.T) {
	s := NewTimerScheduler()
	defer s.Close()

	var fired atomic.Int32
	s.Arm("k", 10*time.Millisecond, func() { fired.Add(1) })

	require.True(t, s.Cancel("k"))
	require.False(t, s.Cancel("k"))
	require.Equal(t, 0, s.Len())

	time.Sleep(30 * time.Millisecond)
	require.Equal(t, int32(0), fired.Load())
}

func TestFireAt_Unarmed(t *testing.T) {
	s := NewTimerScheduler()
	if _, ok := s.FireAt("missing"); ok {
		t.Fatal("unarmed key should not report a fire time")
	}
}
