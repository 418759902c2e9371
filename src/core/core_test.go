package core

import (
	"os"
	"sync"
	"testing"
	"time"

	"github.com/Arceliar/phony"
	"github.com/gologme/log"
	"github.com/stretchr/testify/require"

	"github.com/yggdrasil-network/rnsmesh/src/address"
	"github.com/yggdrasil-network/rnsmesh/src/identity"
	"github.com/yggdrasil-network/rnsmesh/src/packet"
)

// GetLoggerWithPrefix creates a new logger instance with prefix.
// If verbose is set to true, four log levels are enabled: "info", "warn",
// "error" and "debug".
func GetLoggerWithPrefix(prefix string, verbose bool) *log.Logger {
	l := log.New(os.Stderr, prefix, log.Flags())
	if !verbose {
		return l
	}
	l.EnableLevel("info")
	l.EnableLevel("warn")
	l.EnableLevel("error")
	l.EnableLevel("debug")
	return l
}

// testClock is a manually advanced clock shared by the nodes of a test.
type testClock struct {
	mutex sync.Mutex
	now   time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Unix(1700000000, 0)}
}

func (c *testClock) Now() time.Time {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.now = c.now.Add(d)
}

// testInterface is one end of an in-memory point to point carrier.
type testInterface struct {
	name    string
	mode    InterfaceMode
	mutex   sync.Mutex
	handler func([]byte)
	peer    *testInterface
	stats   InterfaceStats
	cut     bool
	started bool
}

func newTestPair(a, b string) (*testInterface, *testInterface) {
	ia := &testInterface{name: a}
	ib := &testInterface{name: b}
	ia.peer, ib.peer = ib, ia
	return ia, ib
}

func (i *testInterface) Name() string         { return i.name }
func (i *testInterface) Direction() Direction { return DirectionBoth }
func (i *testInterface) Mode() InterfaceMode  { return i.mode }
func (i *testInterface) Stop() error          { return nil }

func (i *testInterface) Start() error {
	i.mutex.Lock()
	defer i.mutex.Unlock()
	i.started = true
	i.stats.Online = true
	return nil
}

func (i *testInterface) Stats() InterfaceStats {
	i.mutex.Lock()
	defer i.mutex.Unlock()
	return i.stats
}

func (i *testInterface) SetIncomingHandler(fn func([]byte)) {
	i.mutex.Lock()
	defer i.mutex.Unlock()
	i.handler = fn
}

// setCut drops everything sent in either direction while true.
func (i *testInterface) setCut(cut bool) {
	i.mutex.Lock()
	defer i.mutex.Unlock()
	i.cut = cut
}

func (i *testInterface) Send(frame []byte) error {
	i.mutex.Lock()
	cut := i.cut
	i.stats.TXPackets++
	i.stats.TXBytes += uint64(len(frame))
	i.mutex.Unlock()
	if cut {
		return nil
	}
	i.peer.deliver(append([]byte(nil), frame...))
	return nil
}

func (i *testInterface) deliver(frame []byte) {
	i.mutex.Lock()
	handler := i.handler
	cut := i.cut
	i.stats.RXPackets++
	i.stats.RXBytes += uint64(len(frame))
	i.mutex.Unlock()
	if handler != nil && !cut {
		handler(frame)
	}
}

func newTestCore(t testing.TB, prefix string, opts ...SetupOption) *Core {
	t.Helper()
	opts = append([]SetupOption{JobInterval(0)}, opts...)
	c, err := New(identity.New(), GetLoggerWithPrefix(prefix, false), opts...)
	require.NoError(t, err)
	t.Cleanup(c.Stop)
	return c
}

// connect joins two nodes with a fresh in-memory carrier.
func connect(t testing.TB, a, b *Core, name string) (*testInterface, *testInterface) {
	t.Helper()
	ia, ib := newTestPair(name+"-a", name+"-b")
	require.NoError(t, a.Transport().RegisterInterface(ia))
	require.NoError(t, b.Transport().RegisterInterface(ib))
	return ia, ib
}

// CreateAndConnectTwo creates two nodes joined by an in-memory carrier.
func CreateAndConnectTwo(t testing.TB, opts ...SetupOption) (nodeA *Core, nodeB *Core) {
	nodeA = newTestCore(t, "A: ", opts...)
	nodeB = newTestCore(t, "B: ", opts...)
	connect(t, nodeA, nodeB, "ab")
	return nodeA, nodeB
}

// settle lets every queued actor message of the given nodes run to
// completion, including the messages those produce.
func settle(nodes ...*Core) {
	for round := 0; round < 8; round++ {
		for _, c := range nodes {
			phony.Block(c.transport, func() {})
			phony.Block(&c.callbacks, func() {})
		}
	}
}

// announceAndLearn registers an inbound destination on owner, announces it
// and waits until every learner has a path to it.
func announceAndLearn(t testing.TB, owner *Core, appData []byte, learners ...*Core) *Destination {
	t.Helper()
	d, err := owner.NewDestination(nil, DirectionIn, packet.Single, "test", "echo")
	require.NoError(t, err)
	require.NoError(t, d.Announce(appData, false))
	settle(append([]*Core{owner}, learners...)...)
	for _, c := range learners {
		require.True(t, c.Transport().HasPath(d.Hash()), "no path to announced destination")
	}
	return d
}

// outbound builds the outbound view of a remote destination on c.
func outbound(t testing.TB, c *Core, dest address.Hash) *Destination {
	t.Helper()
	id := c.Recall(dest)
	require.NotNil(t, id, "destination not recalled")
	d, err := c.NewDestination(id, DirectionOut, packet.Single, "test", "echo")
	require.NoError(t, err)
	require.Equal(t, dest, d.Hash())
	return d
}

func TestNewRequiresPrivateKeys(t *testing.T) {
	if _, err := New(nil, nil); err != ErrNoIdentity {
		t.Fatalf("expected ErrNoIdentity, got %v", err)
	}
	public, err := identity.FromPublicKey(identity.New().PublicKey())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := New(public, nil); err != ErrNoIdentity {
		t.Fatalf("expected ErrNoIdentity for public-only identity, got %v", err)
	}
}

func TestStopIsIdempotent(t *testing.T) {
	c, err := New(identity.New(), nil, JobInterval(10*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	c.Stop()
	c.Stop()
}

func TestRecallFallsBackToLocalDestinations(t *testing.T) {
	c := newTestCore(t, "A: ")
	d, err := c.NewDestination(nil, DirectionIn, packet.Single, "test", "local")
	require.NoError(t, err)
	id := c.Recall(d.Hash())
	require.NotNil(t, id)
	require.Equal(t, d.Identity().Hash(), id.Hash())
	require.Nil(t, c.Recall(address.Hash{1, 2, 3}))
}

func TestAnnounceBuildsPathAndNotifiesHandlers(t *testing.T) {
	a, b := CreateAndConnectTwo(t)

	var mutex sync.Mutex
	var seen [][]byte
	matching := &AnnounceHandler{
		AspectFilter: "test.echo",
		Received: func(dest address.Hash, id *identity.Identity, appData []byte) {
			mutex.Lock()
			defer mutex.Unlock()
			seen = append(seen, appData)
		},
	}
	other := &AnnounceHandler{
		AspectFilter: "other.app",
		Received: func(address.Hash, *identity.Identity, []byte) {
			t.Error("handler with a different filter was called")
		},
	}
	require.NoError(t, a.Transport().RegisterAnnounceHandler(matching))
	require.NoError(t, a.Transport().RegisterAnnounceHandler(other))

	d := announceAndLearn(t, b, []byte("hello"), a)
	require.Equal(t, uint8(1), a.Transport().HopsTo(d.Hash()))
	next, ok := a.Transport().NextHop(d.Hash())
	require.True(t, ok)
	require.Equal(t, d.Hash(), next)

	id := a.Recall(d.Hash())
	require.NotNil(t, id)
	require.Equal(t, d.Identity().Hash(), id.Hash())
	appData, ok := a.Known().RecallAppData(d.Hash())
	require.True(t, ok)
	require.Equal(t, []byte("hello"), appData)

	mutex.Lock()
	require.Equal(t, [][]byte{[]byte("hello")}, seen)
	mutex.Unlock()

	// A fresh announce replaces the app data and notifies again.
	a.Transport().DeregisterAnnounceHandler(other)
	require.NoError(t, d.Announce([]byte("again"), false))
	settle(a, b)
	mutex.Lock()
	require.Len(t, seen, 2)
	mutex.Unlock()
	appData, _ = a.Known().RecallAppData(d.Hash())
	require.Equal(t, []byte("again"), appData)
}

func TestSendIsProvenAndDelivered(t *testing.T) {
	a, b := CreateAndConnectTwo(t)
	d := announceAndLearn(t, b, nil, a)
	d.SetProofStrategy(ProveAll)

	received := make(chan []byte, 1)
	d.SetPacketCallback(func(data []byte, p *packet.Packet) {
		received <- data
	})

	out := outbound(t, a, d.Hash())
	receipt, err := out.Send([]byte("ping"))
	require.NoError(t, err)
	require.NotNil(t, receipt)
	settle(a, b)

	select {
	case data := <-received:
		require.Equal(t, []byte("ping"), data)
	default:
		t.Fatal("packet was not delivered")
	}
	require.Equal(t, ReceiptDelivered, receipt.Status())

	delivered := make(chan struct{})
	receipt.SetDeliveryCallback(func(*Receipt) { close(delivered) })
	settle(a)
	select {
	case <-delivered:
	default:
		t.Fatal("late delivery callback was not run")
	}
}

func TestReceiptTimesOut(t *testing.T) {
	clock := newTestClock()
	a, b := CreateAndConnectTwo(t, Clock(clock.Now))
	d := announceAndLearn(t, b, nil, a)

	out := outbound(t, a, d.Hash())
	receipt, err := out.Send([]byte("unproven"))
	require.NoError(t, err)
	settle(a, b)
	require.Equal(t, ReceiptSent, receipt.Status())

	failed := make(chan struct{})
	receipt.SetTimeoutCallback(func(*Receipt) { close(failed) })
	clock.Advance(FirstHopTimeout + TimeoutPerHop + time.Second)
	a.Tick()
	settle(a)
	require.Equal(t, ReceiptFailed, receipt.Status())
	select {
	case <-failed:
	default:
		t.Fatal("timeout callback was not run")
	}
}

func TestDuplicatePacketsAreDropped(t *testing.T) {
	a, b := CreateAndConnectTwo(t)
	d := announceAndLearn(t, b, nil, a)

	var mutex sync.Mutex
	count := 0
	d.SetPacketCallback(func([]byte, *packet.Packet) {
		mutex.Lock()
		defer mutex.Unlock()
		count++
	})

	out := outbound(t, a, d.Hash())
	ciphertext, err := out.Encrypt([]byte("once"))
	require.NoError(t, err)
	p := packet.New(d.Hash(), packet.Single, packet.TypeData, packet.ContextNone, ciphertext)
	require.NoError(t, p.Pack())

	var ib *testInterface
	for _, iface := range b.Transport().Interfaces() {
		ib = iface.(*testInterface)
	}
	ib.deliver(p.Raw.Clone())
	ib.deliver(p.Raw.Clone())
	settle(b)

	mutex.Lock()
	defer mutex.Unlock()
	require.Equal(t, 1, count)
}

func TestCollisionHandlerIsCalled(t *testing.T) {
	collisions := make(chan address.Hash, 1)
	handler := CollisionHandler(func(dest address.Hash, announced *identity.Identity) {
		collisions <- dest
	})
	a := newTestCore(t, "A: ", handler)
	b := newTestCore(t, "B: ")
	connect(t, a, b, "ab")

	d, err := b.NewDestination(nil, DirectionIn, packet.Single, "test", "echo")
	require.NoError(t, err)
	impostor := identity.New()
	require.NoError(t, a.Known().Remember(d.Hash(), nil, impostor.PublicKey(), nil))

	require.NoError(t, d.Announce(nil, false))
	settle(a, b)
	require.False(t, a.Transport().HasPath(d.Hash()))
	select {
	case dest := <-collisions:
		require.Equal(t, d.Hash(), dest)
	default:
		t.Fatal("collision handler was not called")
	}
	id := a.Recall(d.Hash())
	require.Equal(t, impostor.Hash(), id.Hash())
}

func TestGetters(t *testing.T) {
	a, b := CreateAndConnectTwo(t, EnableTransport(true))
	d := announceAndLearn(t, b, []byte{0xAB}, a)

	self := a.GetSelf()
	require.Equal(t, a.Identity().Hash(), self.IdentityHash)
	require.True(t, self.TransportEnabled)

	paths := a.GetPaths()
	require.Len(t, paths, 1)
	require.Equal(t, d.Hash(), paths[0].Destination)
	require.Equal(t, "ab-a", paths[0].Interface)

	ifaces := a.GetInterfaces()
	require.Len(t, ifaces, 1)
	require.Equal(t, "full", ifaces[0].Mode)
	require.True(t, ifaces[0].Online)

	known := a.GetKnownDestinations()
	require.Len(t, known, 1)
	require.Equal(t, "ab", known[0].AppData)
	require.Equal(t, d.Identity().Hash(), known[0].IdentityHash)
}
