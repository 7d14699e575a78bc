package main

import (
	"bytes"
	"testing"
)

// TestSendThenReceiveInOrder mirrors the "IPC delivery in order" scenario:
// three sends land in a mailbox and Receive drains them FIFO. The mailbox
// is never empty at call time here, so Receive's blocking loop body never
// runs and no real Yield/SwitchContext is exercised.
func TestSendThenReceiveInOrder(t *testing.T) {
	resetTaskTableForTest()
	a := newFakeTask(0, TaskRunning)
	b := newFakeTask(1, TaskRunning)
	currentTask = b.id

	for _, payload := range []string{"x", "y", "z"} {
		if err := Send(b.id, a.id, 1, []byte(payload)); err != nil {
			t.Fatalf("Send(%q) failed: %v", payload, err)
		}
	}

	for _, want := range []string{"x", "y", "z"} {
		sender, _, payload := Receive()
		if sender != a.id {
			t.Fatalf("Receive() sender = %d, want %d", sender, a.id)
		}
		if !bytes.Equal(payload, []byte(want)) {
			t.Fatalf("Receive() payload = %q, want %q", payload, want)
		}
	}
}

func TestSendRejectsMissingDestination(t *testing.T) {
	resetTaskTableForTest()
	a := newFakeTask(0, TaskRunning)
	if err := Send(99, a.id, 1, []byte("x")); err != ErrDestMissing {
		t.Fatalf("Send to missing task = %v, want ErrDestMissing", err)
	}
}

func TestSendRejectsZombieDestination(t *testing.T) {
	resetTaskTableForTest()
	a := newFakeTask(0, TaskRunning)
	z := newFakeTask(1, TaskZombie)
	if err := Send(z.id, a.id, 1, []byte("x")); err != ErrDestMissing {
		t.Fatalf("Send to zombie task = %v, want ErrDestMissing", err)
	}
}

func TestSendRejectsFullMailbox(t *testing.T) {
	resetTaskTableForTest()
	a := newFakeTask(0, TaskRunning)
	b := newFakeTask(1, TaskRunning)

	for i := 0; i < mailboxCapacity; i++ {
		if err := Send(b.id, a.id, 1, []byte("x")); err != nil {
			t.Fatalf("Send #%d failed unexpectedly: %v", i, err)
		}
	}
	if err := Send(b.id, a.id, 1, []byte("x")); err != ErrMailboxFull {
		t.Fatalf("Send into a full mailbox = %v, want ErrMailboxFull", err)
	}
}

// TestSendWakesBlockedReceiver exercises the wake-up half of "Receive
// blocks and wakes": a task parked in TaskBlocked with blockedOnReceive
// set must transition back to Ready and land in the ready queue the
// moment a message arrives. The actual blocking loop inside Receive
// (which calls Yield, and so asm.SwitchContext) is not invoked here —
// see sched_test.go's Schedule test for why that can't run hosted.
func TestSendWakesBlockedReceiver(t *testing.T) {
	resetTaskTableForTest()
	a := newFakeTask(0, TaskRunning)
	b := newFakeTask(1, TaskBlocked)
	b.blockedOnReceive = true

	if err := Send(b.id, a.id, 1, []byte("hello")); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	if b.state != TaskReady {
		t.Fatalf("state = %v, want TaskReady after a message arrives for a blocked receiver", b.state)
	}
	if b.blockedOnReceive {
		t.Fatal("blockedOnReceive should be cleared once the task is woken")
	}
	if readyHead != b.id {
		t.Fatalf("readyHead = %d, want %d enqueued after waking", readyHead, b.id)
	}
}

func TestSendDoesNotWakeMailboxNotBlockedOnReceive(t *testing.T) {
	resetTaskTableForTest()
	a := newFakeTask(0, TaskRunning)
	b := newFakeTask(1, TaskBlocked) // blocked, but not specifically on receive

	if err := Send(b.id, a.id, 1, []byte("hello")); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if b.state != TaskBlocked {
		t.Fatalf("state = %v, want unchanged TaskBlocked", b.state)
	}
	if readyHead != invalidTaskID {
		t.Fatal("task should not be enqueued when it wasn't blocked specifically on receive")
	}
}

func TestMailboxFullEmptyTransitions(t *testing.T) {
	var m Mailbox
	m.reset()
	if !m.empty() || m.full() {
		t.Fatal("a freshly reset mailbox must report empty and not full")
	}

	for i := 0; i < mailboxCapacity; i++ {
		m.slots[m.tail] = Message{}
		m.tail = (m.tail + 1) % mailboxCapacity
		m.count++
	}
	if m.empty() || !m.full() {
		t.Fatal("a mailbox filled to capacity must report full and not empty")
	}
}
