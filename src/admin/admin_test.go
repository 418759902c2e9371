package admin

import (
	"encoding/json"
	"net"
	"os"
	"testing"
	"time"

	"github.com/gologme/log"
	"github.com/stretchr/testify/require"

	"github.com/yggdrasil-network/rnsmesh/src/address"
	"github.com/yggdrasil-network/rnsmesh/src/core"
	"github.com/yggdrasil-network/rnsmesh/src/identity"
	"github.com/yggdrasil-network/rnsmesh/src/interfaces"
	"github.com/yggdrasil-network/rnsmesh/src/multicast"
	"github.com/yggdrasil-network/rnsmesh/src/packet"
	"github.com/yggdrasil-network/rnsmesh/src/storage"
)

// GetLoggerWithPrefix creates a new logger instance with prefix.
// If verbose is set to true, three log levels are enabled: "info", "warn", "error".
func GetLoggerWithPrefix(prefix string, verbose bool) *log.Logger {
	l := log.New(os.Stderr, prefix, log.Flags())
	if !verbose {
		return l
	}
	l.EnableLevel("info")
	l.EnableLevel("warn")
	l.EnableLevel("error")
	return l
}

func newTestNode(t *testing.T, opts ...core.SetupOption) *core.Core {
	t.Helper()
	c, err := core.New(identity.New(), GetLoggerWithPrefix("", false), opts...)
	require.NoError(t, err)
	t.Cleanup(c.Stop)
	return c
}

func newTestSocket(t *testing.T, c *core.Core, opts ...SetupOption) *AdminSocket {
	t.Helper()
	opts = append([]SetupOption{ListenAddress("tcp://127.0.0.1:0")}, opts...)
	a, err := New(c, GetLoggerWithPrefix("admin: ", false), opts...)
	require.NoError(t, err)
	require.NotNil(t, a)
	a.SetupAdminHandlers()
	t.Cleanup(func() { _ = a.Stop() })
	return a
}

// call sends one request over the socket and decodes the response into out
// when the request succeeds.
func call(t *testing.T, a *AdminSocket, name string, args map[string]string, out interface{}) AdminSocketResponse {
	t.Helper()
	conn, err := net.Dial("tcp", a.Addr().String())
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))

	req := AdminSocketRequest{Name: name}
	if args != nil {
		req.Arguments, err = json.Marshal(args)
		require.NoError(t, err)
	}
	require.NoError(t, json.NewEncoder(conn).Encode(&req))
	var resp AdminSocketResponse
	require.NoError(t, json.NewDecoder(conn).Decode(&resp))
	if resp.Status == "success" && out != nil {
		require.NoError(t, json.Unmarshal(resp.Response, out))
	}
	return resp
}

// connectPair joins two nodes with an in-memory pipe and waits until a
// learns a path to an announced destination on b.
func connectPair(t *testing.T, a, b *core.Core) *core.Destination {
	t.Helper()
	ia, ib := interfaces.NewPipe("pipe-a", "pipe-b")
	require.NoError(t, a.Transport().RegisterInterface(ia))
	require.NoError(t, b.Transport().RegisterInterface(ib))
	dest, err := b.NewDestination(nil, core.DirectionIn, packet.Single, "admin", "test")
	require.NoError(t, err)
	require.NoError(t, dest.Announce([]byte("hello"), false))
	require.Eventually(t, func() bool { return a.Transport().HasPath(dest.Hash()) }, 5*time.Second, 10*time.Millisecond)
	return dest
}

func TestDisabledSocket(t *testing.T) {
	c := newTestNode(t)
	for _, listen := range []string{"", "none"} {
		a, err := New(c, nil, ListenAddress(listen))
		require.NoError(t, err)
		require.Nil(t, a)
		require.NoError(t, a.Stop())
		require.Nil(t, a.Addr())
	}
}

func TestListAndErrors(t *testing.T) {
	a := newTestSocket(t, newTestNode(t))
	require.True(t, a.IsStarted())

	var list ListResponse
	resp := call(t, a, "list", nil, &list)
	require.Equal(t, "success", resp.Status)
	commands := map[string][]string{}
	for _, entry := range list.List {
		commands[entry.Command] = entry.Fields
	}
	for _, name := range []string{
		"list", "getself", "getpaths", "droppath", "dropallvia", "dropannouncequeues",
		"getinterfaces", "getlinks", "getknowndestinations", "requestpath", "saveknowndestinations",
	} {
		require.Contains(t, commands, name)
	}
	require.Equal(t, []string{"destination"}, commands["droppath"])

	resp = call(t, a, "carrierPigeon", nil, nil)
	require.Equal(t, "error", resp.Status)
	require.Contains(t, resp.Error, "unknown action")

	resp = call(t, a, "dropPath", nil, nil)
	require.Equal(t, "error", resp.Status)
	require.Contains(t, resp.Error, "expected field missing: destination")

	resp = call(t, a, "dropPath", map[string]string{"destination": "not hex"}, nil)
	require.Equal(t, "error", resp.Status)

	resp = call(t, a, "", nil, nil)
	require.Equal(t, "error", resp.Status)

	require.Error(t, a.AddHandler("GETSELF", "", nil, nil))
	require.NoError(t, a.Stop())
	require.NoError(t, a.Stop())
	require.False(t, a.IsStarted())
}

func TestGetSelf(t *testing.T) {
	c := newTestNode(t, core.EnableTransport(true))
	a := newTestSocket(t, c)
	var self GetSelfResponse
	resp := call(t, a, "getSelf", nil, &self)
	require.Equal(t, "success", resp.Status)
	require.Equal(t, c.Identity().Hash().String(), self.IdentityHash)
	require.True(t, self.TransportEnabled)
	require.Len(t, self.PublicKey, 128)
}

func TestPathHandlers(t *testing.T) {
	nodeA, nodeB := newTestNode(t), newTestNode(t)
	dest := connectPair(t, nodeA, nodeB)
	a := newTestSocket(t, nodeA)

	var paths GetPathsResponse
	call(t, a, "getPaths", nil, &paths)
	require.Len(t, paths.Paths, 1)
	require.Equal(t, dest.Hash().String(), paths.Paths[0].Destination)
	require.Equal(t, "pipe-a", paths.Paths[0].Interface)
	require.Equal(t, uint8(1), paths.Paths[0].Hops)

	call(t, a, "getPaths", map[string]string{"interface": "elsewhere"}, &paths)
	require.Empty(t, paths.Paths)

	var ifaces GetInterfacesResponse
	call(t, a, "getInterfaces", nil, &ifaces)
	require.Len(t, ifaces.Interfaces, 1)
	require.Equal(t, "pipe-a", ifaces.Interfaces[0].Name)
	require.True(t, ifaces.Interfaces[0].Online)
	require.NotZero(t, ifaces.Interfaces[0].RXPackets)

	var requested RequestPathResponse
	call(t, a, "requestPath", map[string]string{"destination": dest.Hash().String()}, &requested)
	require.True(t, requested.Requested)
	require.True(t, requested.Known)
	require.Equal(t, uint8(1), requested.Hops)

	var dropped DropPathResponse
	call(t, a, "dropPath", map[string]string{"destination": dest.Hash().String()}, &dropped)
	require.True(t, dropped.Dropped)
	call(t, a, "dropPath", map[string]string{"destination": dest.Hash().String()}, &dropped)
	require.False(t, dropped.Dropped)
	require.False(t, nodeA.Transport().HasPath(dest.Hash()))

	var via DropAllViaResponse
	call(t, a, "dropAllVia", map[string]string{"transport_id": address.Hash{}.String()}, &via)
	require.Zero(t, via.Dropped)

	var queues DropAnnounceQueuesResponse
	resp := call(t, a, "dropAnnounceQueues", nil, &queues)
	require.Equal(t, "success", resp.Status)
}

func TestKnownDestinationHandlers(t *testing.T) {
	c := newTestNode(t, core.Storage{Filesystem: storage.NewMemoryFS(0)})
	a := newTestSocket(t, c)

	remote := identity.New()
	var dest address.Hash
	dest[0] = 0xAB
	require.NoError(t, c.Known().Remember(dest, []byte{1}, remote.PublicKey(), []byte("app")))

	var known GetKnownDestinationsResponse
	call(t, a, "getKnownDestinations", nil, &known)
	require.Len(t, known.Destinations, 1)
	require.Equal(t, dest.String(), known.Destinations[0].Destination)
	require.Equal(t, remote.Hash().String(), known.Destinations[0].Identity)
	require.Equal(t, "617070", known.Destinations[0].AppData)

	call(t, a, "getKnownDestinations", map[string]string{"filter": "ab"}, &known)
	require.Len(t, known.Destinations, 1)
	call(t, a, "getKnownDestinations", map[string]string{"filter": "ff"}, &known)
	require.Empty(t, known.Destinations)

	var saved SaveKnownDestinationsResponse
	resp := call(t, a, "saveKnownDestinations", nil, &saved)
	require.Equal(t, "success", resp.Status)
	require.Equal(t, 1, saved.Saved)
}

func TestKeepAlive(t *testing.T) {
	a := newTestSocket(t, newTestNode(t))
	conn, err := net.Dial("tcp", a.Addr().String())
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))
	encoder, decoder := json.NewEncoder(conn), json.NewDecoder(conn)
	for i := 0; i < 3; i++ {
		require.NoError(t, encoder.Encode(&AdminSocketRequest{Name: "getLinks", KeepAlive: true}))
		var resp AdminSocketResponse
		require.NoError(t, decoder.Decode(&resp))
		require.Equal(t, "success", resp.Status)
		var links GetLinksResponse
		require.NoError(t, json.Unmarshal(resp.Response, &links))
		require.Empty(t, links.Links)
	}
}

func TestLogAnnounces(t *testing.T) {
	nodeA, nodeB := newTestNode(t), newTestNode(t)
	a := newTestSocket(t, nodeA, LogAnnounces{})
	dest := connectPair(t, nodeA, nodeB)

	var announces struct {
		Infos []struct {
			Destination string `json:"destination"`
			Identity    string `json:"identity"`
		} `json:"infos"`
	}
	require.Eventually(t, func() bool {
		res, err := a.CallHandler("announces", nil)
		if err != nil {
			return false
		}
		out, _ := json.Marshal(res)
		_ = json.Unmarshal(out, &announces)
		return len(announces.Infos) == 1
	}, 5*time.Second, 10*time.Millisecond)
	require.Equal(t, dest.Hash().String(), announces.Infos[0].Destination)
	require.Equal(t, nodeB.Identity().Hash().String(), announces.Infos[0].Identity)
}

func TestDataUnit(t *testing.T) {
	for in, want := range map[DataUnit]string{
		100:             " 0KB",
		4096:            " 4KB",
		3 * 1024 * 1024: " 3MB",
	} {
		require.Equal(t, want, in.String())
	}
}

func TestMulticastHandlers(t *testing.T) {
	a := newTestSocket(t, newTestNode(t))
	a.SetupMulticastHandlers(nil)
	resp := call(t, a, "getMulticastPeers", nil, nil)
	require.Equal(t, "error", resp.Status)

	a.SetupMulticastHandlers([]*multicast.Multicast{multicast.New(nil)})
	var ifaces GetMulticastInterfacesResponse
	resp = call(t, a, "getMulticastInterfaces", nil, &ifaces)
	require.Equal(t, "success", resp.Status)
	require.NotNil(t, ifaces.Interfaces)

	var peers GetMulticastPeersResponse
	resp = call(t, a, "getMulticastPeers", map[string]string{"interface": "eth0"}, &peers)
	require.Equal(t, "success", resp.Status)
	require.Empty(t, peers.Peers)
}
