package room

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

// fakeSender records delivered payloads and can be made to fail writes,
// standing in for a live WebSocket connection.
type fakeSender struct {
	mu     sync.Mutex
	frames [][]byte
	fail   bool
	closed bool
}

func (f *fakeSender) WriteMessage(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("write failed")
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	f.frames = append(f.frames, cp)
	return nil
}

func (f *fakeSender) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeSender) received() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.frames)
}

func (f *fakeSender) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func TestJoinLeave_NoLeak(t *testing.T) {
	r := NewRegistry()
	key := Derive(3, 7)
	sender := &fakeSender{}

	r.Join(key, 3, sender)
	if got := r.Rooms(); got != 1 {
		t.Fatalf("Rooms() = %d after join, want 1", got)
	}
	if got := r.Connections(); got != 1 {
		t.Fatalf("Connections() = %d after join, want 1", got)
	}

	r.Leave(key, 3, sender)
	if got := r.Rooms(); got != 0 {
		t.Errorf("Rooms() = %d after leave, want 0", got)
	}
	if got := r.Connections(); got != 0 {
		t.Errorf("Connections() = %d after leave, want 0", got)
	}
}

func TestLeave_Idempotent(t *testing.T) {
	r := NewRegistry()
	key := Derive(3, 7)
	sender := &fakeSender{}

	r.Join(key, 3, sender)
	r.Leave(key, 3, sender)
	r.Leave(key, 3, sender)
	r.Leave(Derive(1, 2), 1, sender)

	if got := r.Rooms(); got != 0 {
		t.Errorf("Rooms() = %d, want 0", got)
	}
}

func TestLeave_RemovesExactPairOnly(t *testing.T) {
	r := NewRegistry()
	key := Derive(3, 7)
	phone := &fakeSender{}
	laptop := &fakeSender{}

	// Same user on two devices.
	r.Join(key, 3, phone)
	r.Join(key, 3, laptop)

	r.Leave(key, 3, phone)
	if got := r.Connections(); got != 1 {
		t.Fatalf("Connections() = %d, want 1", got)
	}

	r.Broadcast(key, []byte(`{"content":"hi"}`), 0)
	if phone.received() != 0 {
		t.Errorf("removed sender received %d frames, want 0", phone.received())
	}
	if laptop.received() != 1 {
		t.Errorf("remaining sender received %d frames, want 1", laptop.received())
	}
}

func TestBroadcast_DeliversToAll(t *testing.T) {
	r := NewRegistry()
	key := Derive(3, 7)
	alice := &fakeSender{}
	bob := &fakeSender{}
	r.Join(key, 3, alice)
	r.Join(key, 7, bob)

	r.Broadcast(key, []byte(`{"content":"hello"}`), 0)

	if alice.received() != 1 {
		t.Errorf("alice received %d frames, want 1", alice.received())
	}
	if bob.received() != 1 {
		t.Errorf("bob received %d frames, want 1", bob.received())
	}
}

func TestBroadcast_ExcludesUser(t *testing.T) {
	r := NewRegistry()
	key := Derive(3, 7)
	alicePhone := &fakeSender{}
	aliceLaptop := &fakeSender{}
	bob := &fakeSender{}
	r.Join(key, 3, alicePhone)
	r.Join(key, 3, aliceLaptop)
	r.Join(key, 7, bob)

	r.Broadcast(key, []byte(`{"type":"ice-candidate"}`), 3)

	// Exclusion is by user, so every connection of user 3 is skipped.
	if alicePhone.received() != 0 || aliceLaptop.received() != 0 {
		t.Errorf("excluded user received frames: phone=%d laptop=%d",
			alicePhone.received(), aliceLaptop.received())
	}
	if bob.received() != 1 {
		t.Errorf("bob received %d frames, want 1", bob.received())
	}
}

func TestBroadcast_UnknownRoom(t *testing.T) {
	r := NewRegistry()
	r.Broadcast(Derive(1, 2), []byte(`{}`), 0)
}

func TestBroadcast_EvictsFailedSenderOnly(t *testing.T) {
	r := NewRegistry()
	key := Derive(3, 7)
	broken := &fakeSender{fail: true}
	bob := &fakeSender{}
	r.Join(key, 3, broken)
	r.Join(key, 7, bob)

	r.Broadcast(key, []byte(`{"content":"hello"}`), 0)

	if bob.received() != 1 {
		t.Errorf("bob received %d frames, want 1", bob.received())
	}
	if !broken.isClosed() {
		t.Error("failed sender was not closed")
	}
	if got := r.Connections(); got != 1 {
		t.Errorf("Connections() = %d after eviction, want 1", got)
	}

	// The survivor keeps receiving.
	r.Broadcast(key, []byte(`{"content":"again"}`), 0)
	if bob.received() != 2 {
		t.Errorf("bob received %d frames, want 2", bob.received())
	}
}

func TestWithSendLock_RunsWhenRoomMissing(t *testing.T) {
	r := NewRegistry()
	ran := false
	r.WithSendLock(Derive(1, 2), func() { ran = true })
	if !ran {
		t.Error("fn did not run for unknown room")
	}
}

func TestWithSendLock_Serializes(t *testing.T) {
	r := NewRegistry()
	key := Derive(3, 7)
	r.Join(key, 3, &fakeSender{})

	var order []int
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			r.WithSendLock(key, func() {
				order = append(order, n)
			})
		}(i)
	}
	wg.Wait()

	if len(order) != 10 {
		t.Errorf("ran %d times, want 10", len(order))
	}
}

func TestWithSendLock_RoomRecreatedWhileWaiting(t *testing.T) {
	r := NewRegistry()
	key := Derive(3, 7)
	first := &fakeSender{}
	r.Join(key, 3, first)

	r.mu.Lock()
	stale := r.rooms[key]
	r.mu.Unlock()

	// Simulate an in-flight publish holding the room's ordering lock.
	stale.sendMu.Lock()

	done := make(chan struct{})
	go func() {
		r.WithSendLock(key, func() {
			// fn must hold the lock of whatever entry the room maps to
			// now, not the one that existed when the wait began.
			r.mu.Lock()
			current := r.rooms[key]
			r.mu.Unlock()
			if current != nil && current.sendMu.TryLock() {
				current.sendMu.Unlock()
				t.Error("publish ran without the current room entry's lock")
			}
		})
		close(done)
	}()

	// While the publisher waits, the room empties out and is recreated
	// by a rejoin, swapping the entry behind the key.
	time.Sleep(50 * time.Millisecond)
	r.Leave(key, 3, first)
	second := &fakeSender{}
	r.Join(key, 3, second)
	stale.sendMu.Unlock()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("WithSendLock did not complete")
	}
}

func TestRegistry_Concurrent(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			userID := int64(n%4 + 1)
			partnerID := int64((n+1)%4 + 1)
			if partnerID == userID {
				partnerID++
			}
			key := Derive(userID, partnerID)
			sender := &fakeSender{}
			r.Join(key, userID, sender)
			r.Broadcast(key, []byte(fmt.Sprintf(`{"n":%d}`, n)), 0)
			r.Leave(key, userID, sender)
		}(i)
	}
	wg.Wait()

	if got := r.Connections(); got != 0 {
		t.Errorf("Connections() = %d after all leaves, want 0", got)
	}
	if got := r.Rooms(); got != 0 {
		t.Errorf("Rooms() = %d after all leaves, want 0", got)
	}
}
