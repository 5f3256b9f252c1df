package usecase

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qrave1/TalkRooms/internal/domain/events"
	"github.com/qrave1/TalkRooms/internal/domain/runtime"
)

func TestHandleSignalRelaysOpaquePayload(t *testing.T) {
	h := newHarness(t, testRoom("r1", 4), testRoom("r2", 4))
	ctx := context.Background()

	alice := h.connect("c-alice")
	bob := h.connect("c-bob")
	carol := h.connect("c-carol")
	dave := h.connect("c-dave")

	h.join(t, alice, "r1", "alice")
	h.join(t, bob, "r1", "bob")
	h.join(t, carol, "r1", "carol")
	h.join(t, dave, "r2", "dave")

	carol.collect(t, 3*testDebounce)
	dave.collect(t, 3*testDebounce)

	payload := json.RawMessage(`{"sdp":"v=0\r\n","type":"offer"}`)

	require.NoError(t, h.signaling.HandleSignal(ctx, alice.id, events.SendSignalEvent{
		ToUserID: "bob",
		RoomID:   "r1",
		Kind:     runtime.SignalOffer,
		Payload:  payload,
	}))

	signal := decodeData[events.SignalEvent](t, bob.waitFor(t, events.TypeSignal))
	assert.Equal(t, "alice", signal.FromUserID)
	assert.Equal(t, runtime.SignalOffer, signal.Kind)
	assert.JSONEq(t, string(payload), string(signal.Payload))

	assert.Zero(t, countType(carol.collect(t, 50*time.Millisecond), events.TypeSignal))
	assert.Zero(t, countType(dave.collect(t, 50*time.Millisecond), events.TypeSignal))
}

func TestHandleSignalErrors(t *testing.T) {
	for name, tc := range map[string]struct {
		ev   events.SendSignalEvent
		want error
	}{
		"TargetInAnotherRoom": {
			ev:   events.SendSignalEvent{ToUserID: "dave", RoomID: "r1", Kind: runtime.SignalCandidate},
			want: ErrTargetNotInRoom,
		},
		"TargetAbsent": {
			ev:   events.SendSignalEvent{ToUserID: "ghost", RoomID: "r1", Kind: runtime.SignalAnswer},
			want: ErrTargetNotInRoom,
		},
		"SenderNotInRoom": {
			ev:   events.SendSignalEvent{ToUserID: "dave", RoomID: "r2", Kind: runtime.SignalOffer},
			want: ErrNotInARoom,
		},
		"SelfTarget": {
			ev:   events.SendSignalEvent{ToUserID: "alice", RoomID: "r1", Kind: runtime.SignalOffer},
			want: ErrBadRequest,
		},
		"UnknownKind": {
			ev:   events.SendSignalEvent{ToUserID: "bob", RoomID: "r1", Kind: "renegotiate"},
			want: ErrBadRequest,
		},
	} {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t, testRoom("r1", 4), testRoom("r2", 4))

			alice := h.connect("c-alice")
			h.join(t, alice, "r1", "alice")
			h.join(t, h.connect("c-bob"), "r1", "bob")
			h.join(t, h.connect("c-dave"), "r2", "dave")

			err := h.signaling.HandleSignal(context.Background(), alice.id, tc.ev)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestRelayToDisconnectedTarget(t *testing.T) {
	h := newHarness(t, testRoom("r1", 4))

	h.join(t, h.connect("c-alice"), "r1", "alice")
	h.join(t, h.connect("c-bob"), "r1", "bob")

	// bob ещё в комнате (grace period), но соединения нет
	h.room.HandleDisconnect(context.Background(), "c-bob")

	err := h.signaling.Relay(context.Background(), runtime.SignalingEnvelope{
		FromUserID: "alice",
		ToUserID:   "bob",
		RoomID:     "r1",
		Kind:       runtime.SignalCandidate,
		Payload:    json.RawMessage(`{}`),
	})
	assert.ErrorIs(t, err, ErrTargetNotInRoom)
}

func TestHandlePing(t *testing.T) {
	h := newHarness(t)

	c := h.connect("c-anon")
	h.signaling.HandlePing(context.Background(), c.id)

	c.waitFor(t, events.TypePong)
}
