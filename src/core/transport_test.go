package core

import (
	"sync"
	"testing"
	"time"

	"github.com/Arceliar/phony"
	"github.com/stretchr/testify/require"

	"github.com/yggdrasil-network/rnsmesh/src/address"
	"github.com/yggdrasil-network/rnsmesh/src/identity"
	"github.com/yggdrasil-network/rnsmesh/src/packet"
)

// line builds A <-> B <-> C where only B forwards for others.
func line(t *testing.T, clock *testClock) (a, b, c *Core) {
	a = newTestCore(t, "A: ", Clock(clock.Now))
	b = newTestCore(t, "B: ", Clock(clock.Now), EnableTransport(true))
	c = newTestCore(t, "C: ", Clock(clock.Now))
	connect(t, a, b, "ab")
	connect(t, b, c, "bc")
	return a, b, c
}

// rebroadcast runs B's announce queue past the retransmit jitter.
func rebroadcast(clock *testClock, b *Core, nodes ...*Core) {
	clock.Advance(PathfinderRW + time.Millisecond)
	b.Tick()
	settle(nodes...)
}

func TestTransportNodeRebroadcastsAnnounces(t *testing.T) {
	clock := newTestClock()
	a, b, c := line(t, clock)
	d := announceAndLearn(t, c, nil, b)
	require.False(t, a.Transport().HasPath(d.Hash()))

	rebroadcast(clock, b, a, b, c)
	require.True(t, a.Transport().HasPath(d.Hash()))
	require.Equal(t, uint8(2), a.Transport().HopsTo(d.Hash()))
	next, ok := a.Transport().NextHop(d.Hash())
	require.True(t, ok)
	require.Equal(t, b.Identity().Hash(), next)

	require.Equal(t, 1, a.Transport().DropAllVia(b.Identity().Hash()))
	require.False(t, a.Transport().HasPath(d.Hash()))
	require.Equal(t, PathfinderM, int(a.Transport().HopsTo(d.Hash())))
}

func TestNonTransportNodeDoesNotRebroadcast(t *testing.T) {
	clock := newTestClock()
	a := newTestCore(t, "A: ", Clock(clock.Now))
	b := newTestCore(t, "B: ", Clock(clock.Now))
	c := newTestCore(t, "C: ", Clock(clock.Now))
	connect(t, a, b, "ab")
	connect(t, b, c, "bc")
	d := announceAndLearn(t, c, nil, b)
	rebroadcast(clock, b, a, b, c)
	require.False(t, a.Transport().HasPath(d.Hash()))
}

func TestMultiHopDataAndProof(t *testing.T) {
	clock := newTestClock()
	a, b, c := line(t, clock)
	d := announceAndLearn(t, c, nil, b)
	rebroadcast(clock, b, a, b, c)
	d.SetProofStrategy(ProveAll)

	received := make(chan []byte, 1)
	d.SetPacketCallback(func(data []byte, p *packet.Packet) { received <- data })

	receipt, err := outbound(t, a, d.Hash()).Send([]byte("across"))
	require.NoError(t, err)
	settle(a, b, c)

	select {
	case data := <-received:
		require.Equal(t, []byte("across"), data)
	default:
		t.Fatal("packet was not forwarded")
	}
	require.Equal(t, ReceiptDelivered, receipt.Status())
}

func TestRelayedLink(t *testing.T) {
	clock := newTestClock()
	a, b, c := line(t, clock)
	d := announceAndLearn(t, c, nil, b)
	rebroadcast(clock, b, a, b, c)

	initiator, responder := linkPair(t, a, c, d, LinkCallbacks{})
	require.Equal(t, 1, b.Transport().RelayedLinks())
	require.Empty(t, b.Transport().Links())

	received := make(chan []byte, 1)
	responder.SetPacketCallback(func(data []byte, l *Link) { received <- data })
	require.NoError(t, initiator.Send([]byte("relayed")))
	settle(a, b, c)
	select {
	case data := <-received:
		require.Equal(t, []byte("relayed"), data)
	default:
		t.Fatal("link data was not relayed")
	}

	initiator.Teardown()
	settle(a, b, c)
	require.Equal(t, LinkClosed, responder.Status())
}

func TestPathRequestAnsweredByDestination(t *testing.T) {
	a, b := CreateAndConnectTwo(t)
	d, err := b.NewDestination(nil, DirectionIn, packet.Single, "test", "echo")
	require.NoError(t, err)

	var mutex sync.Mutex
	var plain, responses int
	require.NoError(t, a.Transport().RegisterAnnounceHandler(&AnnounceHandler{
		Received: func(address.Hash, *identity.Identity, []byte) {
			mutex.Lock()
			defer mutex.Unlock()
			plain++
		},
	}))
	require.NoError(t, a.Transport().RegisterAnnounceHandler(&AnnounceHandler{
		ReceivePathResponses: true,
		Received: func(address.Hash, *identity.Identity, []byte) {
			mutex.Lock()
			defer mutex.Unlock()
			responses++
		},
	}))

	require.NoError(t, a.Transport().RequestPath(d.Hash()))
	settle(a, b)
	require.True(t, a.Transport().HasPath(d.Hash()))
	require.NotNil(t, a.Recall(d.Hash()))

	mutex.Lock()
	defer mutex.Unlock()
	require.Equal(t, 0, plain)
	require.Equal(t, 1, responses)
}

func TestPathRequestAnsweredByTransportNode(t *testing.T) {
	clock := newTestClock()
	a, b, c := line(t, clock)
	d := announceAndLearn(t, c, nil, b)
	rebroadcast(clock, b, a, b, c)
	require.True(t, a.Transport().DropPath(d.Hash()))
	require.False(t, a.Transport().DropPath(d.Hash()))

	require.NoError(t, a.Transport().RequestPath(d.Hash()))
	settle(a, b, c)
	require.False(t, a.Transport().HasPath(d.Hash()))

	clock.Advance(PathRequestGrace + time.Millisecond)
	b.Tick()
	settle(a, b, c)
	require.True(t, a.Transport().HasPath(d.Hash()))
	require.Equal(t, uint8(2), a.Transport().HopsTo(d.Hash()))
}

func TestPathRequestsAreThrottled(t *testing.T) {
	clock := newTestClock()
	a := newTestCore(t, "A: ", Clock(clock.Now))
	b := newTestCore(t, "B: ", Clock(clock.Now))
	ia, _ := connect(t, a, b, "ab")
	dest := address.Hash{9}

	require.NoError(t, a.Transport().RequestPath(dest))
	require.NoError(t, a.Transport().RequestPath(dest))
	settle(a, b)
	require.Equal(t, uint64(1), ia.Stats().TXPackets)

	clock.Advance(PathRequestMinInterval)
	require.NoError(t, a.Transport().RequestPath(dest))
	settle(a, b)
	require.Equal(t, uint64(2), ia.Stats().TXPackets)
}

func TestRateLimiter(t *testing.T) {
	c := newTestCore(t, "A: ", AnnounceRate{Target: time.Minute, Grace: 1, Penalty: time.Hour})
	tr := c.Transport()
	dest := address.Hash{1}
	start := time.Unix(1700000000, 0)
	steps := []struct {
		at      time.Duration
		blocked bool
	}{
		{0, false},
		{time.Second, false},
		{2 * time.Second, true},
		{10 * time.Minute, true},
		{2 * time.Hour, false},
	}
	for _, step := range steps {
		var blocked bool
		phony.Block(tr, func() { blocked = tr._rateLimited(dest, start.Add(step.at)) })
		require.Equal(t, step.blocked, blocked, "at %s", step.at)
	}
	rates := tr.RateTable()
	require.Contains(t, rates, dest)
	require.Len(t, rates[dest].Timestamps, len(steps))
}

func TestRateLimitDisabledByDefault(t *testing.T) {
	c := newTestCore(t, "A: ")
	tr := c.Transport()
	phony.Block(tr, func() {
		for i := 0; i < 10; i++ {
			require.False(t, tr._rateLimited(address.Hash{1}, time.Unix(int64(i), 0)))
		}
	})
}

type memoryPathStore struct {
	mutex   sync.Mutex
	records []PathRecord
}

func (s *memoryPathStore) SavePaths(records []PathRecord) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.records = append([]PathRecord(nil), records...)
	return nil
}

func (s *memoryPathStore) LoadPaths() ([]PathRecord, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return append([]PathRecord(nil), s.records...), nil
}

func TestPathsSurviveRestart(t *testing.T) {
	store := &memoryPathStore{}
	a := newTestCore(t, "A: ", PersistPaths{store})
	b := newTestCore(t, "B: ")
	connect(t, a, b, "ab")
	d := announceAndLearn(t, b, nil, a)
	a.Stop()
	require.Len(t, store.records, 1)
	require.Equal(t, "ab-a", store.records[0].Interface)
	require.NotEmpty(t, store.records[0].Announce)

	restarted := newTestCore(t, "A: ", PersistPaths{store})
	require.True(t, restarted.Transport().HasPath(d.Hash()))
	require.Nil(t, restarted.Transport().NextHopInterface(d.Hash()))

	iface, _ := newTestPair("ab-a", "unused")
	require.NoError(t, restarted.Transport().RegisterInterface(iface))
	require.Equal(t, Interface(iface), restarted.Transport().NextHopInterface(d.Hash()))
}

func TestDeregisterInterfaceDropsPaths(t *testing.T) {
	a, b := CreateAndConnectTwo(t)
	d := announceAndLearn(t, b, nil, a)
	require.ErrorIs(t, a.Transport().DeregisterInterface("missing"), ErrNoSuchInterface)
	require.NoError(t, a.Transport().DeregisterInterface("ab-a"))
	require.False(t, a.Transport().HasPath(d.Hash()))
	require.Empty(t, a.Transport().Interfaces())

	iface, _ := newTestPair("dup", "other")
	require.NoError(t, a.Transport().RegisterInterface(iface))
	require.ErrorIs(t, a.Transport().RegisterInterface(iface), ErrInterfaceExists)
}

func TestExpiredPathsAreCulled(t *testing.T) {
	clock := newTestClock()
	a := newTestCore(t, "A: ", Clock(clock.Now))
	b := newTestCore(t, "B: ", Clock(clock.Now))
	connect(t, a, b, "ab")
	d := announceAndLearn(t, b, nil, a)

	clock.Advance(PathfinderE - time.Minute)
	a.Tick()
	require.True(t, a.Transport().HasPath(d.Hash()))
	clock.Advance(2 * time.Minute)
	a.Tick()
	require.False(t, a.Transport().HasPath(d.Hash()))
}

func TestReceiptsAreCulled(t *testing.T) {
	c := newTestCore(t, "A: ")
	tr := c.Transport()
	p := packet.New(address.Hash{1}, packet.Single, packet.TypeData, packet.ContextNone, []byte("x"))
	require.NoError(t, p.Pack())
	first := newReceipt(c, p, nil, time.Hour)
	phony.Block(tr, func() {
		tr._addReceipt(first)
		for i := 0; i < MaxReceipts; i++ {
			tr._addReceipt(newReceipt(c, p, nil, time.Hour))
		}
	})
	require.Equal(t, ReceiptCulled, first.Status())
}

func TestHashlistRotates(t *testing.T) {
	h := newHashlist(4)
	h.add([]byte("a"))
	require.True(t, h.has([]byte("a")))
	require.False(t, h.has([]byte("b")))
	for i := 0; i < 4; i++ {
		h.add([]byte{byte(i)})
	}
	require.True(t, h.has([]byte("a")), "previous generation is still consulted")
	for i := 4; i < 8; i++ {
		h.add([]byte{byte(i)})
	}
	require.False(t, h.has([]byte("a")))
}

func TestInterfaceModes(t *testing.T) {
	for in, want := range map[string]InterfaceMode{
		"":               ModeFull,
		"full":           ModeFull,
		"ptp":            ModePointToPoint,
		"Point_To_Point": ModePointToPoint,
		"ap":             ModeAccessPoint,
		"roaming":        ModeRoaming,
		"boundary":       ModeBoundary,
		"gw":             ModeGateway,
	} {
		got, err := ParseInterfaceMode(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}
	_, err := ParseInterfaceMode("bogus")
	require.Error(t, err)

	require.Equal(t, PathfinderE, ModeFull.pathExpiry())
	require.Equal(t, APPathTime, ModeAccessPoint.pathExpiry())
	require.Equal(t, RoamingPathTime, ModeRoaming.pathExpiry())
	require.True(t, ModeGateway.discoversPaths())
	require.False(t, ModeBoundary.discoversPaths())

	require.True(t, DirectionBoth.In())
	require.True(t, DirectionBoth.Out())
	require.False(t, DirectionIn.Out())
}

func TestHopLimit(t *testing.T) {
	a := newTestCore(t, "A: ")
	b := newTestCore(t, "B: ")

	// Capture B's announce on a carrier that A does not listen on.
	tap, ib := newTestPair("tap", "b")
	frames := make(chan []byte, 4)
	tap.SetIncomingHandler(func(frame []byte) { frames <- frame })
	require.NoError(t, b.Transport().RegisterInterface(ib))
	d, err := b.NewDestination(nil, DirectionIn, packet.Single, "test", "hops")
	require.NoError(t, err)
	require.NoError(t, d.Announce(nil, false))
	settle(b)
	var announce []byte
	select {
	case announce = <-frames:
	default:
		t.Fatal("announce was not sent")
	}

	ia, inject := newTestPair("a", "inject")
	require.NoError(t, a.Transport().RegisterInterface(ia))
	withHops := func(hops uint8) []byte {
		raw := append([]byte(nil), announce...)
		raw[1] = hops
		return raw
	}

	for _, hops := range []uint8{255, PathfinderM} {
		require.NoError(t, inject.Send(withHops(hops)))
		settle(a)
		require.False(t, a.Transport().HasPath(d.Hash()), "accepted announce with %d hops", hops)
	}

	require.NoError(t, inject.Send(withHops(PathfinderM-1)))
	settle(a)
	require.True(t, a.Transport().HasPath(d.Hash()))
	require.Equal(t, uint8(PathfinderM), a.Transport().HopsTo(d.Hash()))
}
