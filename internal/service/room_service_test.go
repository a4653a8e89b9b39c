package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"handraise/internal/kv"
	"handraise/internal/model"
	"handraise/internal/roomcode"
	"handraise/internal/service"
)

func newRoomService(t *testing.T) (*service.RoomService, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(base)
	return service.NewRoomService(kv.NewMemory(), nil, clock), clock
}

func mustCreateRoom(t *testing.T, svc *service.RoomService) string {
	t.Helper()
	code, err := svc.CreateRoom(context.Background(), "Alice")
	require.NoError(t, err)
	return code
}

func mustJoin(t *testing.T, svc *service.RoomService, code, name string) string {
	t.Helper()
	id, err := svc.JoinRoom(context.Background(), code, name)
	require.NoError(t, err)
	return id
}

func snapshot(t *testing.T, svc *service.RoomService, code string) model.RoomSnapshot {
	t.Helper()
	snap, err := svc.Snapshot(context.Background(), code)
	require.NoError(t, err)
	return snap
}

func receiveSnapshot(t *testing.T, sub *service.RoomSubscription) model.RoomSnapshot {
	t.Helper()
	select {
	case snap, ok := <-sub.Snapshots():
		require.True(t, ok, "snapshot channel closed unexpectedly")
		return snap
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for snapshot")
		return model.RoomSnapshot{}
	}
}

func TestCreateRoom(t *testing.T) {
	svc, _ := newRoomService(t)
	ctx := context.Background()

	code := mustCreateRoom(t, svc)
	require.Len(t, code, roomcode.Length)

	exists, err := svc.RoomExists(ctx, code)
	require.NoError(t, err)
	assert.True(t, exists)

	snap := snapshot(t, svc, code)
	assert.Equal(t, "Alice", snap.Room.AdminName)
	assert.Empty(t, snap.Room.Participants)
	assert.Empty(t, snap.Queue)
}

func TestCreateRoomRequiresAdminName(t *testing.T) {
	svc, _ := newRoomService(t)
	_, err := svc.CreateRoom(context.Background(), "  ")
	assert.ErrorIs(t, err, service.ErrValidation)
}

func TestRoomExistsIsCaseInsensitive(t *testing.T) {
	svc, _ := newRoomService(t)
	code := mustCreateRoom(t, svc)

	exists, err := svc.RoomExists(context.Background(), roomcode.Normalize(code))
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = svc.RoomExists(context.Background(), "QQQQ")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestJoinRoom(t *testing.T) {
	svc, _ := newRoomService(t)
	code := mustCreateRoom(t, svc)

	id := mustJoin(t, svc, code, "Bob")
	snap := snapshot(t, svc, code)
	p, ok := snap.Room.Participants[id]
	require.True(t, ok)
	assert.Equal(t, "Bob", p.Name)
	assert.False(t, p.HandRaised)
}

func TestJoinRoomValidation(t *testing.T) {
	svc, _ := newRoomService(t)
	ctx := context.Background()

	_, err := svc.JoinRoom(ctx, "a3f", "Bob")
	assert.ErrorIs(t, err, service.ErrValidation)

	_, err = svc.JoinRoom(ctx, "a3f!", "Bob")
	assert.ErrorIs(t, err, service.ErrValidation)

	_, err = svc.JoinRoom(ctx, "A3F7", "")
	assert.ErrorIs(t, err, service.ErrValidation)
}

func TestJoinGoneRoomSurfacesNotFound(t *testing.T) {
	svc, _ := newRoomService(t)
	_, err := svc.JoinRoom(context.Background(), "A3F7", "Bob")
	assert.ErrorIs(t, err, service.ErrRoomNotFound)
}

func TestRaiseHandCreatesSingleEntry(t *testing.T) {
	svc, clock := newRoomService(t)
	ctx := context.Background()
	code := mustCreateRoom(t, svc)
	id := mustJoin(t, svc, code, "Bob")

	require.NoError(t, svc.SetHandRaised(ctx, code, id, true))

	snap := snapshot(t, svc, code)
	require.Len(t, snap.Room.Queue, 1)
	assert.True(t, snap.Room.Participants[id].HandRaised)
	firstRaise := snap.Queue[0].RaisedAt

	// Raising again later must not duplicate the entry or move its
	// timestamp: the double-click case.
	clock.Advance(3 * time.Second)
	require.NoError(t, svc.SetHandRaised(ctx, code, id, true))

	snap = snapshot(t, svc, code)
	require.Len(t, snap.Room.Queue, 1)
	assert.Equal(t, firstRaise, snap.Queue[0].RaisedAt)
}

func TestLowerHandRemovesEntry(t *testing.T) {
	svc, _ := newRoomService(t)
	ctx := context.Background()
	code := mustCreateRoom(t, svc)
	id := mustJoin(t, svc, code, "Bob")

	require.NoError(t, svc.SetHandRaised(ctx, code, id, true))
	require.NoError(t, svc.SetHandRaised(ctx, code, id, false))

	snap := snapshot(t, svc, code)
	assert.Empty(t, snap.Room.Queue)
	assert.False(t, snap.Room.Participants[id].HandRaised)

	// Lowering an already-lowered hand is a no-op.
	require.NoError(t, svc.SetHandRaised(ctx, code, id, false))
}

func TestRaiseLowerSequencesKeepAtMostOneEntry(t *testing.T) {
	svc, clock := newRoomService(t)
	ctx := context.Background()
	code := mustCreateRoom(t, svc)
	id := mustJoin(t, svc, code, "Bob")

	toggles := []bool{true, true, false, true, false, false, true, true}
	for _, raised := range toggles {
		require.NoError(t, svc.SetHandRaised(ctx, code, id, raised))
		snap := snapshot(t, svc, code)
		assert.LessOrEqual(t, len(snap.Room.Queue), 1)
		clock.Advance(time.Millisecond)
	}
}

func TestHandToggleForUnknownParticipant(t *testing.T) {
	svc, _ := newRoomService(t)
	code := mustCreateRoom(t, svc)

	err := svc.SetHandRaised(context.Background(), code, "nobody", true)
	assert.ErrorIs(t, err, service.ErrParticipantNotFound)
}

func TestQueueOrdersByRaiseTime(t *testing.T) {
	svc, clock := newRoomService(t)
	ctx := context.Background()
	code := mustCreateRoom(t, svc)
	a := mustJoin(t, svc, code, "A")
	b := mustJoin(t, svc, code, "B")

	require.NoError(t, svc.SetHandRaised(ctx, code, a, true))
	clock.Advance(time.Second)
	require.NoError(t, svc.SetHandRaised(ctx, code, b, true))

	snap := snapshot(t, svc, code)
	require.Len(t, snap.Queue, 2)
	assert.Equal(t, a, snap.Queue[0].ParticipantID)
	assert.Equal(t, b, snap.Queue[1].ParticipantID)
}

func TestTiedRaiseTimesOrderByAllocation(t *testing.T) {
	// The fake clock never moves, so both raises carry the same timestamp
	// and only the allocation sequence separates them.
	svc, _ := newRoomService(t)
	ctx := context.Background()
	code := mustCreateRoom(t, svc)
	a := mustJoin(t, svc, code, "A")
	b := mustJoin(t, svc, code, "B")

	require.NoError(t, svc.SetHandRaised(ctx, code, a, true))
	require.NoError(t, svc.SetHandRaised(ctx, code, b, true))

	snap := snapshot(t, svc, code)
	require.Len(t, snap.Queue, 2)
	assert.Equal(t, a, snap.Queue[0].ParticipantID)
	assert.Equal(t, b, snap.Queue[1].ParticipantID)
}

func TestRemoveFromQueueForcesHandDown(t *testing.T) {
	svc, _ := newRoomService(t)
	ctx := context.Background()
	code := mustCreateRoom(t, svc)
	id := mustJoin(t, svc, code, "Bob")
	require.NoError(t, svc.SetHandRaised(ctx, code, id, true))

	require.NoError(t, svc.RemoveFromQueue(ctx, code, id))

	snap := snapshot(t, svc, code)
	assert.Empty(t, snap.Room.Queue)
	assert.False(t, snap.Room.Participants[id].HandRaised)

	// The admin override is not conditional on the flag: removing again,
	// hand already down, still succeeds. This is how it wins the race
	// against a concurrent self-lower.
	require.NoError(t, svc.RemoveFromQueue(ctx, code, id))
	snap = snapshot(t, svc, code)
	assert.False(t, snap.Room.Participants[id].HandRaised)
}

func TestRemoveFromQueueSwallowsAbsence(t *testing.T) {
	svc, _ := newRoomService(t)
	ctx := context.Background()

	// Gone room.
	assert.NoError(t, svc.RemoveFromQueue(ctx, "A3F7", "nobody"))

	// Gone participant.
	code := mustCreateRoom(t, svc)
	assert.NoError(t, svc.RemoveFromQueue(ctx, code, "nobody"))
}

func TestLeaveRoomRemovesParticipantAndEntry(t *testing.T) {
	svc, _ := newRoomService(t)
	ctx := context.Background()
	code := mustCreateRoom(t, svc)
	id := mustJoin(t, svc, code, "Bob")
	require.NoError(t, svc.SetHandRaised(ctx, code, id, true))

	require.NoError(t, svc.LeaveRoom(ctx, code, id))

	snap := snapshot(t, svc, code)
	assert.Empty(t, snap.Room.Participants)
	assert.Empty(t, snap.Room.Queue)

	// Idempotent, both for the participant and for a gone room.
	assert.NoError(t, svc.LeaveRoom(ctx, code, id))
	assert.NoError(t, svc.LeaveRoom(ctx, "QQQQ", id))
}

func TestDeleteRoom(t *testing.T) {
	svc, _ := newRoomService(t)
	ctx := context.Background()
	code := mustCreateRoom(t, svc)

	require.NoError(t, svc.DeleteRoom(ctx, code))

	exists, err := svc.RoomExists(ctx, code)
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = svc.Snapshot(ctx, code)
	assert.ErrorIs(t, err, service.ErrRoomNotFound)

	// Deleting again is a no-op.
	assert.NoError(t, svc.DeleteRoom(ctx, code))
}

func TestSubscribeDeliversInitialSnapshotAndChanges(t *testing.T) {
	svc, _ := newRoomService(t)
	ctx := context.Background()
	code := mustCreateRoom(t, svc)

	sub, err := svc.Subscribe(ctx, code)
	require.NoError(t, err)
	defer sub.Close()

	snap := receiveSnapshot(t, sub)
	assert.True(t, snap.Exists)
	assert.Empty(t, snap.Room.Participants)

	id := mustJoin(t, svc, code, "Bob")
	snap = receiveSnapshot(t, sub)
	assert.Contains(t, snap.Room.Participants, id)

	require.NoError(t, svc.SetHandRaised(ctx, code, id, true))
	snap = receiveSnapshot(t, sub)
	require.Len(t, snap.Queue, 1)
	assert.Equal(t, id, snap.Queue[0].ParticipantID)
}

func TestSubscribeToAbsentRoom(t *testing.T) {
	svc, _ := newRoomService(t)

	sub, err := svc.Subscribe(context.Background(), "A3F7")
	require.NoError(t, err)
	defer sub.Close()

	snap := receiveSnapshot(t, sub)
	assert.False(t, snap.Exists)
}

func TestSubscriptionCloseIsIdempotent(t *testing.T) {
	svc, _ := newRoomService(t)
	code := mustCreateRoom(t, svc)

	sub, err := svc.Subscribe(context.Background(), code)
	require.NoError(t, err)

	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())
}

// TestMeetingLifecycle walks the whole flow: create, two joins, two raises,
// admin calls on the first speaker, then ends the meeting while a
// subscriber watches.
func TestMeetingLifecycle(t *testing.T) {
	svc, clock := newRoomService(t)
	ctx := context.Background()

	code := mustCreateRoom(t, svc)
	a := mustJoin(t, svc, code, "A")
	b := mustJoin(t, svc, code, "B")

	sub, err := svc.Subscribe(ctx, code)
	require.NoError(t, err)
	defer sub.Close()

	snap := receiveSnapshot(t, sub)
	require.Len(t, snap.Room.Participants, 2)
	assert.False(t, snap.Room.Participants[a].HandRaised)
	assert.False(t, snap.Room.Participants[b].HandRaised)

	require.NoError(t, svc.SetHandRaised(ctx, code, a, true))
	snap = receiveSnapshot(t, sub)
	require.Len(t, snap.Queue, 1)
	assert.Equal(t, a, snap.Queue[0].ParticipantID)

	clock.Advance(time.Second)
	require.NoError(t, svc.SetHandRaised(ctx, code, b, true))
	snap = receiveSnapshot(t, sub)
	require.Len(t, snap.Queue, 2)
	assert.Equal(t, a, snap.Queue[0].ParticipantID)
	assert.Equal(t, b, snap.Queue[1].ParticipantID)

	require.NoError(t, svc.RemoveFromQueue(ctx, code, a))
	snap = receiveSnapshot(t, sub)
	require.Len(t, snap.Queue, 1)
	assert.Equal(t, b, snap.Queue[0].ParticipantID)
	assert.False(t, snap.Room.Participants[a].HandRaised)

	pos, ok := service.QueuePositionOf(b, snap.Queue)
	require.True(t, ok)
	assert.Equal(t, 1, pos)

	require.NoError(t, svc.DeleteRoom(ctx, code))
	snap = receiveSnapshot(t, sub)
	assert.False(t, snap.Exists)

	exists, err := svc.RoomExists(ctx, code)
	require.NoError(t, err)
	assert.False(t, exists)
}
