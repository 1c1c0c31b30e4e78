package peer

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/rtcpeer/internal/core"
	"github.com/dkeye/rtcpeer/internal/core/mock"
	"github.com/dkeye/rtcpeer/internal/domain"
)

// ─── helpers ──────────────────────────────────────────────────────────────────

func newTestConnection(t *testing.T) (*Connection, *mock.Driver, *Queue) {
	t.Helper()
	drv := mock.New()
	q := NewQueue(16, zerolog.Nop())
	c := New(drv, q, WithLogger(zerolog.Nop()))
	require.NoError(t, c.Initialize(domain.Configuration{}))
	t.Cleanup(c.Destroy)
	return c, drv, q
}

func nextEvent(t *testing.T, q *Queue) Event {
	t.Helper()
	select {
	case ev := <-q.Events():
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func assertNoEvent(t *testing.T, q *Queue) {
	t.Helper()
	select {
	case ev := <-q.Events():
		t.Fatalf("unexpected event %s", ev.Name())
	default:
	}
}

// ─── Initialize ───────────────────────────────────────────────────────────────

func TestConnection_InitializePassesConfig(t *testing.T) {
	t.Parallel()

	drv := mock.New()
	c := New(drv, nil, WithLogger(zerolog.Nop()))
	cfg := domain.Configuration{
		ICEServers:         []domain.ICEServer{{URLs: []string{"stun:stun.example.org:3478"}}},
		ICETransportPolicy: "relay",
	}
	require.NoError(t, c.Initialize(cfg))

	calls := drv.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "Create", calls[0].Method)
	assert.JSONEq(t,
		`{"iceServers":[{"urls":["stun:stun.example.org:3478"]}],"iceTransportPolicy":"relay"}`,
		string(calls[0].Config))
	assert.NotZero(t, c.Handle())
	assert.Equal(t, core.ConnectionNew, c.ConnectionState())
	assert.Equal(t, core.GatheringNew, c.GatheringState())
	assert.Equal(t, core.SignalingStable, c.SignalingState())
}

func TestConnection_InitializeRefused(t *testing.T) {
	t.Parallel()

	drv := mock.New()
	drv.RefuseCreate = true
	c := New(drv, nil, WithLogger(zerolog.Nop()))

	err := c.Initialize(domain.Configuration{})
	require.ErrorIs(t, err, ErrDriverRefused)
	assert.Zero(t, c.Handle())
	assert.ErrorIs(t, c.CreateOffer(), ErrNotInitialized)
	assert.Equal(t, 0, drv.CallCount("CreateOffer"))
}

func TestConnection_ReinitializeDestroysPriorHandle(t *testing.T) {
	t.Parallel()

	c, drv, q := newTestConnection(t)
	first := c.Handle()
	require.NoError(t, c.CreateOffer())
	oldCallbacks := drv.Callbacks(first)

	require.NoError(t, c.Initialize(domain.Configuration{}))
	second := c.Handle()

	assert.NotEqual(t, first, second)
	assert.Equal(t, 1, drv.DestroyCount(first))
	assert.Equal(t, core.ConnectionNew, c.ConnectionState())

	// Callbacks bound to the old handle no longer reach the connection.
	oldCallbacks.OnConnectionState(core.ConnectionFailed)
	oldCallbacks.OnICECandidate("0", 0, "candidate:stale")
	drv.Session(first, core.SDPOffer, "v=0 stale")
	assert.Equal(t, core.ConnectionNew, c.ConnectionState())
	assertNoEvent(t, q)
}

// ─── offer / answer ───────────────────────────────────────────────────────────

func TestConnection_CreateOfferScenario(t *testing.T) {
	t.Parallel()

	c, drv, q := newTestConnection(t)
	h := c.Handle()

	require.NoError(t, c.CreateOffer())
	assert.Equal(t, core.ConnectionConnecting, c.ConnectionState())
	assert.Equal(t, 1, drv.CallCount("CreateOffer"))

	drv.Session(h, core.SDPOffer, "v=0...")
	ev := nextEvent(t, q)
	sd, ok := ev.(SessionDescriptionCreated)
	require.True(t, ok, "got %T", ev)
	assert.Equal(t, core.SDPOffer, sd.Type)
	assert.Equal(t, "v=0...", sd.SDP)
	assert.Equal(t, EventSessionDescriptionCreated, ev.Name())

	// Still provisional until the driver says otherwise.
	assert.Equal(t, core.ConnectionConnecting, c.ConnectionState())
	drv.Callbacks(h).OnConnectionState(core.ConnectionConnected)
	assert.Equal(t, core.ConnectionConnected, c.ConnectionState())
}

func TestConnection_CreateOfferOutsideNew(t *testing.T) {
	t.Parallel()

	c, drv, _ := newTestConnection(t)
	require.NoError(t, c.CreateOffer())

	err := c.CreateOffer()
	require.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, 1, drv.CallCount("CreateOffer"))
	assert.Equal(t, core.ConnectionConnecting, c.ConnectionState())

	drv.Callbacks(c.Handle()).OnConnectionState(core.ConnectionConnected)
	require.ErrorIs(t, c.CreateOffer(), ErrInvalidState)
	assert.Equal(t, 1, drv.CallCount("CreateOffer"))
	assert.Equal(t, core.ConnectionConnected, c.ConnectionState())
}

func TestConnection_SetRemoteDescription(t *testing.T) {
	t.Parallel()

	t.Run("offer_in_new", func(t *testing.T) {
		t.Parallel()
		c, drv, q := newTestConnection(t)
		require.NoError(t, c.SetRemoteDescription(core.SDPOffer, "v=0 remote"))
		assert.Equal(t, core.ConnectionConnecting, c.ConnectionState())
		assert.Equal(t, 1, drv.CallCount("SetRemoteDescription"))

		drv.Session(c.Handle(), core.SDPAnswer, "v=0 answer")
		sd := nextEvent(t, q).(SessionDescriptionCreated)
		assert.Equal(t, core.SDPAnswer, sd.Type)
	})

	t.Run("offer_when_connected", func(t *testing.T) {
		t.Parallel()
		c, drv, _ := newTestConnection(t)
		drv.Callbacks(c.Handle()).OnConnectionState(core.ConnectionConnected)

		err := c.SetRemoteDescription(core.SDPOffer, "v=0 remote")
		require.ErrorIs(t, err, ErrInvalidState)
		assert.Equal(t, 0, drv.CallCount("SetRemoteDescription"))
		assert.Equal(t, core.ConnectionConnected, c.ConnectionState())
	})

	t.Run("non_offer_any_live_state", func(t *testing.T) {
		t.Parallel()
		states := []core.ConnectionState{
			core.ConnectionNew,
			core.ConnectionConnecting,
			core.ConnectionConnected,
			core.ConnectionDisconnected,
			core.ConnectionFailed,
		}
		for _, st := range states {
			c, drv, _ := newTestConnection(t)
			drv.Callbacks(c.Handle()).OnConnectionState(st)
			require.NoError(t, c.SetRemoteDescription(core.SDPAnswer, "v=0"), "state %s", st)
			require.NoError(t, c.SetRemoteDescription(core.SDPPranswer, "v=0"), "state %s", st)
			assert.Equal(t, 2, drv.CallCount("SetRemoteDescription"))
			assert.Equal(t, st, c.ConnectionState())
		}
	})

	t.Run("after_close", func(t *testing.T) {
		t.Parallel()
		c, drv, _ := newTestConnection(t)
		c.Close()
		require.ErrorIs(t, c.SetRemoteDescription(core.SDPAnswer, "v=0"), ErrClosed)
		require.ErrorIs(t, c.SetRemoteDescription(core.SDPOffer, "v=0"), ErrClosed)
		assert.Equal(t, 0, drv.CallCount("SetRemoteDescription"))
	})
}

func TestConnection_SetLocalDescriptionAlwaysForwards(t *testing.T) {
	t.Parallel()

	c, drv, q := newTestConnection(t)
	require.NoError(t, c.CreateOffer())
	require.NoError(t, c.SetLocalDescription(core.SDPOffer, "v=0 local"))

	calls := drv.Calls()
	last := calls[len(calls)-1]
	assert.Equal(t, "SetLocalDescription", last.Method)
	assert.Equal(t, core.SDPOffer, last.Type)
	assert.Equal(t, "v=0 local", last.SDP)

	// A driver failure surfaces as an event, not as a return value.
	boom := errors.New("malformed sdp")
	drv.Fail(c.Handle(), boom)
	ev := nextEvent(t, q).(ErrorEvent)
	assert.ErrorIs(t, ev.Err, boom)
	assert.Equal(t, "set_local_description", ev.Op)
}

func TestConnection_AddICECandidate(t *testing.T) {
	t.Parallel()

	c, drv, _ := newTestConnection(t)
	require.NoError(t, c.AddICECandidate("audio", 0, "candidate:1 1 udp 1 10.0.0.1 5000 typ host"))
	require.NoError(t, c.CreateOffer())
	require.NoError(t, c.AddICECandidate("audio", 1, "candidate:2"))

	var got []mock.Call
	for _, call := range drv.Calls() {
		if call.Method == "AddICECandidate" {
			got = append(got, call)
		}
	}
	require.Len(t, got, 2)
	assert.Equal(t, "audio", got[1].Mid)
	assert.Equal(t, 1, got[1].MLineIndex)
	assert.Equal(t, "candidate:2", got[1].Candidate)

	c.Close()
	require.ErrorIs(t, c.AddICECandidate("audio", 0, "candidate:3"), ErrClosed)
}

// ─── driver callbacks ─────────────────────────────────────────────────────────

func TestConnection_LastWriteWins(t *testing.T) {
	t.Parallel()

	c, drv, _ := newTestConnection(t)
	cb := drv.Callbacks(c.Handle())

	conn := []core.ConnectionState{
		core.ConnectionConnecting, core.ConnectionConnected, core.ConnectionDisconnected,
		core.ConnectionConnected, core.ConnectionFailed,
	}
	for _, s := range conn {
		cb.OnConnectionState(s)
		assert.Equal(t, s, c.ConnectionState())
	}

	gathering := []core.GatheringState{core.GatheringGathering, core.GatheringComplete, core.GatheringGathering}
	for _, s := range gathering {
		cb.OnGatheringState(s)
		assert.Equal(t, s, c.GatheringState())
	}

	signaling := []core.SignalingState{
		core.SignalingHaveLocalOffer, core.SignalingStable, core.SignalingHaveRemoteOffer,
		core.SignalingHaveLocalPranswer, core.SignalingHaveRemotePranswer, core.SignalingClosed,
	}
	for _, s := range signaling {
		cb.OnSignalingState(s)
		assert.Equal(t, s, c.SignalingState())
	}
}

func TestConnection_CallbackEvents(t *testing.T) {
	t.Parallel()

	c, drv, q := newTestConnection(t)
	cb := drv.Callbacks(c.Handle())

	cb.OnICECandidate("0", 2, "candidate:abc")
	ice := nextEvent(t, q).(ICECandidateCreated)
	assert.Equal(t, ICECandidateCreated{Mid: "0", MLineIndex: 2, Candidate: "candidate:abc"}, ice)

	id := drv.AddChannel("chat")
	cb.OnDataChannel(id)
	dc := nextEvent(t, q).(DataChannelReceived)
	require.NotNil(t, dc.Channel)
	assert.Equal(t, id, dc.Channel.ID())
	assert.Equal(t, "chat", dc.Channel.Label())

	cb.OnTrack(7)
	tr := nextEvent(t, q).(TrackReceived)
	assert.Equal(t, core.TrackID(7), tr.Track)
}

// ─── Close / Destroy ──────────────────────────────────────────────────────────

func TestConnection_CloseIdempotent(t *testing.T) {
	t.Parallel()

	c, drv, _ := newTestConnection(t)
	h := c.Handle()
	require.NoError(t, c.CreateOffer())

	c.Close()
	c.Close()
	assert.Equal(t, core.ConnectionClosed, c.ConnectionState())
	assert.Equal(t, 1, drv.CloseCount(h))

	// A late driver report cannot reopen a closed connection.
	drv.Callbacks(h).OnConnectionState(core.ConnectionConnected)
	assert.Equal(t, core.ConnectionClosed, c.ConnectionState())

	c.Destroy()
	c.Destroy()
	assert.Equal(t, 1, drv.CloseCount(h))
	assert.Equal(t, 1, drv.DestroyCount(h))
	assert.Zero(t, c.Handle())
}

func TestConnection_InitializeAfterClose(t *testing.T) {
	t.Parallel()

	c, drv, _ := newTestConnection(t)
	first := c.Handle()
	c.Close()
	require.ErrorIs(t, c.CreateOffer(), ErrInvalidState)

	require.NoError(t, c.Initialize(domain.Configuration{}))
	assert.Equal(t, core.ConnectionNew, c.ConnectionState())
	assert.Equal(t, 1, drv.DestroyCount(first))
	assert.Equal(t, 1, drv.CloseCount(first))
	require.NoError(t, c.CreateOffer())
}

func TestConnection_Poll(t *testing.T) {
	t.Parallel()
	c, _, _ := newTestConnection(t)
	assert.NoError(t, c.Poll())
}
