package core

import (
	"time"

	"github.com/yggdrasil-network/rnsmesh/src/address"
	"github.com/yggdrasil-network/rnsmesh/src/crypto"
	"github.com/yggdrasil-network/rnsmesh/src/packet"
)

// pathRequestTagLength is the length of the random tag that makes each path
// request unique.
const pathRequestTagLength = address.Length

// RequestPath asks the network for a path to dest. Requests for the same
// destination are sent at most once per PathRequestMinInterval.
func (t *Transport) RequestPath(dest address.Hash) error {
	tag := crypto.RandomBytes(pathRequestTagLength)
	p, err := t.pathRequestPacket(dest, tag)
	if err != nil {
		return err
	}
	t.Act(nil, func() {
		now := t.core.now()
		if last, ok := t.requested[dest]; ok && now.Sub(last) < PathRequestMinInterval {
			t.log.Debugf("Not requesting path to %s again yet", dest.Pretty())
			return
		}
		t.requested[dest] = now
		t.requestTags[string(dest[:])+string(tag)] = now
		t._outbound(p)
		t.log.Debugf("Requested path to %s", dest.Pretty())
	})
	return nil
}

// pathRequestPacket builds dest‖[transport id]‖tag for the path request
// destination. Transport nodes include their id so that answering nodes can
// tell them apart from the next hop.
func (t *Transport) pathRequestPacket(dest address.Hash, tag []byte) (*packet.Packet, error) {
	data := make([]byte, 0, 2*address.Length+len(tag))
	data = append(data, dest[:]...)
	if t.enabled {
		data = append(data, t.id[:]...)
	}
	data = append(data, tag...)
	p := packet.New(t.pathRequestTo, packet.Plain, packet.TypeData, packet.ContextNone, data)
	if err := p.Pack(); err != nil {
		return nil, err
	}
	return p, nil
}

// _pathRequest answers a path request heard on iface, from a local
// destination or, for transport nodes, from the path table. Requests that
// cannot be answered are passed on from discovery interfaces.
func (t *Transport) _pathRequest(p *packet.Packet, iface Interface, now time.Time) {
	data := p.Data.Bytes()
	if len(data) <= address.Length {
		t.log.Debugln("Dropped path request without tag")
		return
	}
	var dest address.Hash
	copy(dest[:], data[:address.Length])
	var requestor *address.Hash
	var tag []byte
	if len(data) > 2*address.Length {
		var r address.Hash
		copy(r[:], data[address.Length:2*address.Length])
		requestor = &r
		tag = data[2*address.Length:]
	} else {
		tag = data[address.Length:]
	}
	if len(tag) > pathRequestTagLength {
		tag = tag[:pathRequestTagLength]
	}
	key := string(dest[:]) + string(tag)
	if _, seen := t.requestTags[key]; seen {
		return
	}
	t.requestTags[key] = now

	if d := t.localDestination(dest); d != nil {
		if d.typ != packet.Single {
			return
		}
		response, err := d.announcePacket(nil, true)
		if err != nil {
			t.log.Debugf("Could not answer path request for %s: %v", d, err)
			return
		}
		response.AttachedInterface = iface
		t._outbound(response)
		t.log.Debugf("Answered path request for %s", d)
		return
	}
	if !t.enabled {
		return
	}
	if e := t.paths[dest]; e != nil {
		if requestor != nil && *requestor == e.NextHop {
			t.log.Debugf("Not answering path request for %s from its next hop", dest.Pretty())
			return
		}
		if e.announce == nil {
			return
		}
		t.announces[dest] = &announceEntry{
			timestamp:     now,
			retransmitAt:  now.Add(PathRequestGrace),
			receivedFrom:  e.NextHop,
			hops:          e.Hops,
			packet:        e.announce,
			blockRebroads: true,
			attached:      iface,
		}
		return
	}
	if iface == nil || !iface.Mode().discoversPaths() {
		return
	}
	t.discovery[dest] = &pathRequestEntry{
		requestedOn: iface,
		timeout:     now.Add(PathRequestTimeout),
	}
	forward, err := t.pathRequestPacket(dest, tag)
	if err != nil {
		return
	}
	t._broadcast(forward.Raw.Bytes(), iface)
	t.log.Debugf("Passed on path request for %s", dest.Pretty())
}
