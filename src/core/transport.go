package core

import (
	"errors"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/Arceliar/phony"

	"github.com/yggdrasil-network/rnsmesh/src/address"
	"github.com/yggdrasil-network/rnsmesh/src/identity"
	"github.com/yggdrasil-network/rnsmesh/src/packet"
)

type transportError string

func (e transportError) Error() string { return string(e) }

const ErrInterfaceExists = transportError("an interface with this name is already registered")
const ErrNoSuchInterface = transportError("no interface with this name is registered")

// pathRequestTagTimeout is how long a seen path request tag is remembered.
const pathRequestTagTimeout = 10 * time.Minute

// AnnounceHandler is told about every valid announce whose name matches
// the aspect filter, written as "app.aspect1.aspect2". An empty filter
// matches every announce.
type AnnounceHandler struct {
	AspectFilter         string
	ReceivePathResponses bool
	Received             func(dest address.Hash, id *identity.Identity, appData []byte)

	nameHash *address.NameHash
}

func (h *AnnounceHandler) matches(name address.NameHash) bool {
	return h.nameHash == nil || *h.nameHash == name
}

// Transport routes packets between interfaces and local destinations. All
// of its tables are only touched by its actor.
type Transport struct {
	phony.Inbox
	core          *Core
	log           Logger
	id            address.Hash // our transport id
	enabled       bool
	interfaces    []Interface
	handlers      []*AnnounceHandler
	paths         map[address.Hash]*PathEntry
	rates         map[address.Hash]*RateEntry
	announces     map[address.Hash]*announceEntry
	reverse       map[address.Hash]*reverseEntry
	linkTable     map[address.Hash]*linkEntry
	links         map[address.Hash]*Link
	receipts      []*Receipt
	hashes        *hashlist
	requested     map[address.Hash]time.Time
	discovery     map[address.Hash]*pathRequestEntry
	requestTags   map[string]time.Time
	pathRequestTo address.Hash
	destMutex     sync.RWMutex
	destinations  map[address.Hash]*Destination
}

func newTransport(c *Core) *Transport {
	t := &Transport{
		core:         c,
		log:          c.log,
		id:           c.identity.Hash(),
		enabled:      c.config.transport,
		paths:        make(map[address.Hash]*PathEntry),
		rates:        make(map[address.Hash]*RateEntry),
		announces:    make(map[address.Hash]*announceEntry),
		reverse:      make(map[address.Hash]*reverseEntry),
		linkTable:    make(map[address.Hash]*linkEntry),
		links:        make(map[address.Hash]*Link),
		hashes:       newHashlist(hashlistGeneration),
		requested:    make(map[address.Hash]time.Time),
		discovery:    make(map[address.Hash]*pathRequestEntry),
		requestTags:  make(map[string]time.Time),
		destinations: make(map[address.Hash]*Destination),
	}
	nameHash, _ := address.NameHashFor("rnstransport", "path", "request")
	t.pathRequestTo = address.DestinationHash(nameHash, nil)
	return t
}

// Enabled reports whether this node forwards traffic for others.
func (t *Transport) Enabled() bool { return t.enabled }

// PathRequestDestination is the plain destination path requests go to.
func (t *Transport) PathRequestDestination() address.Hash { return t.pathRequestTo }

func (t *Transport) registerDestination(d *Destination) error {
	t.destMutex.Lock()
	defer t.destMutex.Unlock()
	if _, ok := t.destinations[d.hash]; ok {
		return ErrDestinationRegistered
	}
	t.destinations[d.hash] = d
	return nil
}

func (t *Transport) deregisterDestination(d *Destination) {
	t.destMutex.Lock()
	defer t.destMutex.Unlock()
	if t.destinations[d.hash] == d {
		delete(t.destinations, d.hash)
	}
}

func (t *Transport) localDestination(hash address.Hash) *Destination {
	t.destMutex.RLock()
	defer t.destMutex.RUnlock()
	return t.destinations[hash]
}

// Destinations returns the registered inbound destinations.
func (t *Transport) Destinations() []*Destination {
	t.destMutex.RLock()
	defer t.destMutex.RUnlock()
	out := make([]*Destination, 0, len(t.destinations))
	for _, d := range t.destinations {
		out = append(out, d)
	}
	return out
}

// RegisterInterface adds an interface, hooks its incoming frames into the
// transport and starts it.
func (t *Transport) RegisterInterface(iface Interface) error {
	var err error
	phony.Block(t, func() {
		for _, existing := range t.interfaces {
			if existing.Name() == iface.Name() {
				err = ErrInterfaceExists
				return
			}
		}
		t.interfaces = append(t.interfaces, iface)
		for _, e := range t.paths {
			if e.Interface == nil && e.ifname == iface.Name() {
				e.Interface = iface
			}
		}
	})
	if err != nil {
		return err
	}
	iface.SetIncomingHandler(func(frame []byte) {
		t.Act(nil, func() { t._inbound(frame, iface) })
	})
	if err := iface.Start(); err != nil {
		_ = t.DeregisterInterface(iface.Name())
		return err
	}
	t.log.Infof("Interface %s is registered (%s, %s)", iface.Name(), iface.Mode(), iface.Direction())
	return nil
}

// DeregisterInterface stops an interface and forgets every path through it.
func (t *Transport) DeregisterInterface(name string) error {
	var iface Interface
	phony.Block(t, func() {
		for i, existing := range t.interfaces {
			if existing.Name() == name {
				iface = existing
				t.interfaces = append(t.interfaces[:i], t.interfaces[i+1:]...)
				break
			}
		}
		if iface == nil {
			return
		}
		for dest, e := range t.paths {
			if e.Interface == iface {
				delete(t.paths, dest)
			}
		}
		for dest, e := range t.announces {
			if e.attached == iface {
				delete(t.announces, dest)
			}
		}
	})
	if iface == nil {
		return ErrNoSuchInterface
	}
	iface.SetIncomingHandler(nil)
	return iface.Stop()
}

// Interfaces returns the registered interfaces in registration order.
func (t *Transport) Interfaces() []Interface {
	var out []Interface
	phony.Block(t, func() {
		out = append(out, t.interfaces...)
	})
	return out
}

func (t *Transport) _stopInterfaces() {
	for _, iface := range t.interfaces {
		if err := iface.Stop(); err != nil {
			t.log.Debugf("Stopping interface %s: %v", iface.Name(), err)
		}
	}
	t.interfaces = nil
}

// RegisterAnnounceHandler adds an announce observer.
func (t *Transport) RegisterAnnounceHandler(h *AnnounceHandler) error {
	if h.AspectFilter != "" {
		parts := strings.Split(h.AspectFilter, ".")
		nameHash, err := address.NameHashFor(parts[0], parts[1:]...)
		if err != nil {
			return err
		}
		h.nameHash = &nameHash
	}
	phony.Block(t, func() {
		t.handlers = append(t.handlers, h)
	})
	return nil
}

// DeregisterAnnounceHandler removes an announce observer.
func (t *Transport) DeregisterAnnounceHandler(h *AnnounceHandler) {
	phony.Block(t, func() {
		for i, existing := range t.handlers {
			if existing == h {
				t.handlers = append(t.handlers[:i], t.handlers[i+1:]...)
				return
			}
		}
	})
}

// _inbound is the receive pipeline for one frame from an interface.
func (t *Transport) _inbound(raw []byte, iface Interface) {
	if iface != nil && !iface.Direction().In() {
		return
	}
	p, err := packet.Unpack(raw)
	if err != nil {
		t.log.Debugf("Dropped malformed frame: %v", err)
		return
	}
	if p.IFAC {
		t.log.Debugln("Dropped packet with an interface access code")
		return
	}
	if iface != nil {
		p.ReceivingInterface = iface
	}
	if p.Hops >= PathfinderM {
		t.log.Debugf("Dropped packet for %s after %d hops", p.DestinationHash, p.Hops)
		return
	}
	p.Hops++
	if !t._filter(p) {
		return
	}
	now := t.core.now()

	remember := true
	if _, ok := t.linkTable[p.DestinationHash]; ok {
		remember = false
	}
	if p.Type == packet.TypeProof && p.Context == packet.ContextLRProof {
		remember = false
	}
	if remember {
		t.hashes.add(p.Hash())
	}

	if t.enabled {
		if p.TransportID != nil && p.Type != packet.TypeAnnounce && *p.TransportID == t.id {
			if t._forward(p, iface, now) {
				return
			}
		}
		if e, ok := t.linkTable[p.DestinationHash]; ok && p.Type != packet.TypeAnnounce && p.Type != packet.TypeLinkRequest {
			if p.Context == packet.ContextLRProof {
				t._forwardLinkProof(p, e, iface, now)
				return
			}
			if t._forwardLink(p, e, iface, now) {
				return
			}
		}
	}

	switch p.Type {
	case packet.TypeAnnounce:
		t._inboundAnnounce(p, iface, now)
	case packet.TypeLinkRequest:
		if d := t.localDestination(p.DestinationHash); d != nil && d.typ == packet.Single {
			l, proof, err := validateRequest(t.core, d, p)
			if err != nil {
				t.log.Debugf("Dropped link request for %s: %v", d, err)
				return
			}
			if _, ok := t.links[l.id]; ok {
				return
			}
			t.links[l.id] = l
			t._outbound(proof)
			t.log.Debugf("Accepted link %s for %s", l.id, d)
		}
	case packet.TypeData:
		switch {
		case p.DestinationType == packet.Link:
			if l := t.links[p.DestinationHash]; l != nil {
				l._receive(p)
			}
		case p.DestinationHash == t.pathRequestTo:
			t._pathRequest(p, iface, now)
		default:
			if d := t.localDestination(p.DestinationHash); d != nil && d.typ == p.DestinationType {
				d._receive(p)
			}
		}
	case packet.TypeProof:
		t._inboundProof(p, iface, now)
	}
}

// _filter drops packets that are not for this node or were already seen.
func (t *Transport) _filter(p *packet.Packet) bool {
	if p.TransportID != nil && p.Type != packet.TypeAnnounce && *p.TransportID != t.id {
		return false
	}
	switch p.Context {
	case packet.ContextKeepalive, packet.ContextResourceReq, packet.ContextResourcePRF,
		packet.ContextResource, packet.ContextCacheRequest, packet.ContextChannel:
		return true
	}
	if p.DestinationType == packet.Plain || p.DestinationType == packet.Group {
		if p.Type == packet.TypeAnnounce {
			t.log.Debugf("Dropped announce for %s destination", p.DestinationType)
			return false
		}
		return p.Hops <= 1
	}
	if !t.hashes.has(p.Hash()) {
		return true
	}
	if p.Type == packet.TypeAnnounce && p.DestinationType == packet.Single {
		return true
	}
	return false
}

// _forward passes on a packet that names us as its transport hop.
func (t *Transport) _forward(p *packet.Packet, iface Interface, now time.Time) bool {
	e := t.paths[p.DestinationHash]
	if e == nil || e.Interface == nil {
		t.log.Debugf("No path to forward %s", p)
		return false
	}
	q := *p
	if e.Hops > 1 {
		nextHop := e.NextHop
		q.TransportID = &nextHop
	} else {
		q.HeaderType = packet.Header1
		q.TransportType = packet.Broadcast
		q.TransportID = nil
	}
	if err := q.Pack(); err != nil {
		t.log.Debugf("Could not forward %s: %v", p, err)
		return true
	}
	if p.Type == packet.TypeLinkRequest {
		t.linkTable[p.TruncatedHash()] = &linkEntry{
			timestamp:     now,
			nextHop:       e.NextHop,
			outbound:      e.Interface,
			remainingHops: e.Hops,
			receivedOn:    iface,
			takenHops:     p.Hops,
			destination:   p.DestinationHash,
			proofTimeout:  now.Add(EstablishmentTimeoutPerHop * time.Duration(max(e.Hops, 1))),
		}
	} else {
		t.reverse[p.TruncatedHash()] = &reverseEntry{
			receivedOn: iface,
			sentOn:     e.Interface,
			timestamp:  now,
		}
	}
	e.Timestamp = now
	t._transmit(e.Interface, q.Raw.Bytes())
	return true
}

// _forwardLink passes traffic of a relayed link to the other side.
func (t *Transport) _forwardLink(p *packet.Packet, e *linkEntry, iface Interface, now time.Time) bool {
	var out Interface
	switch {
	case iface == e.outbound && p.Hops == e.remainingHops:
		out = e.receivedOn
	case iface == e.receivedOn && p.Hops == e.takenHops:
		out = e.outbound
	}
	if out == nil {
		return false
	}
	q := *p
	if err := q.Pack(); err != nil {
		return true
	}
	t.hashes.add(p.Hash())
	e.timestamp = now
	t._transmit(out, q.Raw.Bytes())
	return true
}

// _forwardLinkProof validates a link proof travelling back through us and
// passes it towards the initiator.
func (t *Transport) _forwardLinkProof(p *packet.Packet, e *linkEntry, iface Interface, now time.Time) {
	if iface != e.outbound || p.Hops != e.remainingHops {
		return
	}
	id := t.core.Recall(e.destination)
	data := p.Data.Bytes()
	if id == nil || len(data) != lrProofLength {
		t.log.Debugf("Dropped link proof for relayed link %s", p.DestinationHash)
		return
	}
	signed := make([]byte, 0, address.Length+len(data))
	signed = append(signed, p.DestinationHash[:]...)
	signed = append(signed, data[len(data)-32:]...)
	signed = append(signed, id.SigningPublicKey().Bytes()...)
	if !id.Validate(data[:len(data)-32], signed) {
		t.log.Debugf("Dropped invalid link proof for relayed link %s", p.DestinationHash)
		return
	}
	e.validated = true
	e.timestamp = now
	q := *p
	if err := q.Pack(); err == nil {
		t._transmit(e.receivedOn, q.Raw.Bytes())
	}
}

func (t *Transport) _inboundProof(p *packet.Packet, iface Interface, now time.Time) {
	if p.Context == packet.ContextLRProof {
		if l := t.links[p.DestinationHash]; l != nil && l.initiator {
			l._validateProof(p)
		}
		return
	}
	if p.DestinationType == packet.Link {
		return
	}
	if e := t.reverse[p.DestinationHash]; e != nil && t.enabled {
		delete(t.reverse, p.DestinationHash)
		if iface == e.sentOn && e.receivedOn != nil {
			q := *p
			if err := q.Pack(); err == nil {
				t._transmit(e.receivedOn, q.Raw.Bytes())
			}
		}
	}
	data := p.Data.Bytes()
	for i, r := range t.receipts {
		if r.proofDest == p.DestinationHash && r.validateProof(data, now) {
			t.receipts = append(t.receipts[:i], t.receipts[i+1:]...)
			return
		}
	}
}

// _inboundAnnounce updates the path table from a valid announce and queues
// its rebroadcast.
func (t *Transport) _inboundAnnounce(p *packet.Packet, iface Interface, now time.Time) {
	dest := p.DestinationHash
	if t.localDestination(dest) != nil {
		return
	}
	a, err := identity.CheckAnnounce(p, t.core.known)
	switch {
	case errors.Is(err, identity.ErrKeyCollision):
		t.log.Warnf("Rejected announce for %s: %v", dest.Pretty(), err)
		if fn := t.core.config.collision; fn != nil && a != nil {
			announced := a.Identity
			t.core.callback(func() { fn(dest, announced) })
		}
		return
	case err != nil:
		t.log.Debugf("Rejected announce for %s: %v", dest.Pretty(), err)
		return
	}

	if e := t.announces[dest]; e != nil && p.TransportID != nil {
		switch p.Hops - 1 {
		case e.hops:
			e.localRebroads++
			if e.retries > 0 && e.localRebroads >= LocalRebroadcastsMax {
				delete(t.announces, dest)
			}
		case e.hops + 1:
			if e.retries > 0 && now.Before(e.retransmitAt) {
				delete(t.announces, dest)
			}
		}
	}
	if p.Hops > PathfinderM {
		return
	}

	random := a.RandomHash
	emitted := identity.AnnounceEmitted(random)
	receivedFrom := dest
	if p.TransportID != nil {
		receivedFrom = *p.TransportID
	}
	existing := t.paths[dest]
	should := existing == nil
	if existing != nil && !existing.hasBlob(random) {
		switch {
		case p.Hops <= existing.Hops:
			should = !emitted.Before(existing.latestEmitted())
		case now.After(existing.Expires):
			should = true
		default:
			should = emitted.After(existing.latestEmitted())
		}
	}
	if !should {
		return
	}

	rateBlocked := p.Context != packet.ContextPathResponse && t._rateLimited(dest, now)
	var blobs []identity.RandomHash
	if existing != nil {
		blobs = existing.RandomBlobs
	}
	blobs = append(blobs, random)
	if len(blobs) > maxRandomBlobs {
		blobs = blobs[len(blobs)-maxRandomBlobs:]
	}
	mode := ModeFull
	ifname := ""
	if iface != nil {
		mode = iface.Mode()
		ifname = iface.Name()
	}
	t.paths[dest] = &PathEntry{
		Timestamp:   now,
		NextHop:     receivedFrom,
		Hops:        p.Hops,
		Expires:     now.Add(mode.pathExpiry()),
		RandomBlobs: blobs,
		Interface:   iface,
		PacketHash:  p.Hash(),
		ifname:      ifname,
		announce:    p,
	}
	t.log.Debugf("Path to %s is now %d hops away via %s on %s", dest.Pretty(), p.Hops, receivedFrom.Pretty(), ifname)

	if t.enabled && !rateBlocked && p.Context != packet.ContextPathResponse {
		t.announces[dest] = &announceEntry{
			timestamp:    now,
			retransmitAt: now.Add(jitter(PathfinderRW)),
			receivedFrom: receivedFrom,
			hops:         p.Hops,
			packet:       p,
			receivedOn:   iface,
		}
	}
	if pending := t.discovery[dest]; pending != nil && t.enabled {
		delete(t.discovery, dest)
		t.announces[dest] = &announceEntry{
			timestamp:     now,
			retransmitAt:  now,
			receivedFrom:  receivedFrom,
			hops:          p.Hops,
			packet:        p,
			blockRebroads: true,
			attached:      pending.requestedOn,
		}
	}

	for _, h := range t.handlers {
		if !h.matches(a.NameHash) || h.Received == nil {
			continue
		}
		if p.Context == packet.ContextPathResponse && !h.ReceivePathResponses {
			continue
		}
		fn := h.Received
		t.core.callback(func() { fn(dest, a.Identity, a.AppData) })
	}
}

// _rateLimited applies the announce rate table. Blocked announces still
// update the path table but are not rebroadcast.
func (t *Transport) _rateLimited(dest address.Hash, now time.Time) bool {
	cfg := t.core.config.announceRate
	if cfg.Target <= 0 {
		return false
	}
	e := t.rates[dest]
	if e == nil {
		t.rates[dest] = &RateEntry{Last: now, Timestamps: []time.Time{now}}
		return false
	}
	e.Timestamps = append(e.Timestamps, now)
	if len(e.Timestamps) > maxRateTimestamps {
		e.Timestamps = e.Timestamps[len(e.Timestamps)-maxRateTimestamps:]
	}
	if now.Before(e.BlockedUntil) {
		return true
	}
	if now.Sub(e.Last) < cfg.Target {
		e.Violations++
	} else if e.Violations > 0 {
		e.Violations--
	}
	if e.Violations > cfg.Grace {
		e.BlockedUntil = e.Last.Add(cfg.Target + cfg.Penalty)
		return true
	}
	e.Last = now
	return false
}

func jitter(window time.Duration) time.Duration {
	return time.Duration(rand.Int63n(int64(window) + 1))
}

// _outbound routes a locally originated packet.
func (t *Transport) _outbound(p *packet.Packet) bool {
	if p.Raw.Len() == 0 {
		if err := p.Pack(); err != nil {
			t.log.Warnf("Could not send %s: %v", p, err)
			return false
		}
	}
	sent := false
	attached, _ := p.AttachedInterface.(Interface)
	switch {
	case attached != nil:
		sent = t._transmit(attached, p.Raw.Bytes())
	case p.Type != packet.TypeAnnounce && p.DestinationType != packet.Plain && p.DestinationType != packet.Group && t.paths[p.DestinationHash] != nil && t.paths[p.DestinationHash].Interface != nil:
		e := t.paths[p.DestinationHash]
		raw := p.Raw.Bytes()
		if e.Hops > 1 && p.HeaderType == packet.Header1 {
			q := *p
			nextHop := e.NextHop
			q.HeaderType = packet.Header2
			q.TransportType = packet.Transport
			q.TransportID = &nextHop
			if err := q.Pack(); err != nil {
				t.log.Warnf("Could not route %s: %v", p, err)
				return false
			}
			raw = q.Raw.Bytes()
		}
		sent = t._transmit(e.Interface, raw)
		e.Timestamp = t.core.now()
	default:
		sent = t._broadcast(p.Raw.Bytes(), nil)
	}
	if sent {
		t.hashes.add(p.Hash())
		p.Sent = true
		p.SentAt = t.core.now()
	}
	return sent
}

func (t *Transport) _transmit(iface Interface, raw []byte) bool {
	if iface == nil || !iface.Direction().Out() {
		return false
	}
	if err := iface.Send(raw); err != nil {
		t.log.Debugf("Send on %s failed: %v", iface.Name(), err)
		return false
	}
	return true
}

func (t *Transport) _broadcast(raw []byte, except Interface) bool {
	sent := false
	for _, iface := range t.interfaces {
		if iface == except {
			continue
		}
		if t._transmit(iface, raw) {
			sent = true
		}
	}
	return sent
}

func (t *Transport) _addReceipt(r *Receipt) {
	t.receipts = append(t.receipts, r)
	if len(t.receipts) > MaxReceipts {
		culled := t.receipts[0]
		t.receipts = t.receipts[1:]
		culled.fail(ReceiptCulled, t.core.now())
	}
}

// _jobs runs the periodic maintenance: receipts, link watchdogs, announce
// retransmission and table expiry.
func (t *Transport) _jobs(now time.Time) {
	kept := t.receipts[:0]
	for _, r := range t.receipts {
		switch {
		case r.concluded():
		case r.expired(now):
			r.fail(ReceiptFailed, now)
		default:
			kept = append(kept, r)
		}
	}
	t.receipts = kept

	for _, l := range t.links {
		l._watchdog(now)
	}

	for dest, e := range t.announces {
		if e.retries > PathfinderR || (e.blockRebroads && e.retries > 0) {
			delete(t.announces, dest)
			continue
		}
		if now.Before(e.retransmitAt) {
			continue
		}
		e.retransmitAt = now.Add(PathfinderG + jitter(PathfinderRW))
		e.retries++
		t._rebroadcast(dest, e)
	}

	for dest, e := range t.paths {
		if now.After(e.Expires) {
			delete(t.paths, dest)
			t.log.Debugf("Path to %s expired", dest.Pretty())
		}
	}
	for dest := range t.rates {
		if _, ok := t.paths[dest]; !ok {
			delete(t.rates, dest)
		}
	}
	for hash, e := range t.reverse {
		if now.Sub(e.timestamp) > ReverseTimeout {
			delete(t.reverse, hash)
		}
	}
	for id, e := range t.linkTable {
		if (!e.validated && now.After(e.proofTimeout)) || now.Sub(e.timestamp) > LinkTableTimeout {
			delete(t.linkTable, id)
		}
	}
	for dest, e := range t.discovery {
		if now.After(e.timeout) {
			delete(t.discovery, dest)
		}
	}
	for tag, seen := range t.requestTags {
		if now.Sub(seen) > pathRequestTagTimeout {
			delete(t.requestTags, tag)
		}
	}
}

// _rebroadcast sends a queued announce as a transport packet from us.
func (t *Transport) _rebroadcast(dest address.Hash, e *announceEntry) {
	context := packet.ContextNone
	if e.blockRebroads {
		context = packet.ContextPathResponse
	}
	id := t.id
	q := &packet.Packet{
		Type:            packet.TypeAnnounce,
		HeaderType:      packet.Header2,
		TransportType:   packet.Transport,
		DestinationType: e.packet.DestinationType,
		Context:         context,
		ContextFlag:     e.packet.ContextFlag,
		Hops:            e.hops,
		TransportID:     &id,
		DestinationHash: dest,
		Data:            e.packet.Data,
	}
	if err := q.Pack(); err != nil {
		t.log.Debugf("Could not rebroadcast announce for %s: %v", dest.Pretty(), err)
		return
	}
	if e.attached != nil {
		t._transmit(e.attached, q.Raw.Bytes())
	} else {
		t._broadcast(q.Raw.Bytes(), e.receivedOn)
	}
	t.hashes.add(q.Hash())
}

// HasPath reports whether a path to dest is known.
func (t *Transport) HasPath(dest address.Hash) bool {
	var ok bool
	phony.Block(t, func() { _, ok = t.paths[dest] })
	return ok
}

// HopsTo returns the hop count to dest, or PathfinderM if no path is known.
func (t *Transport) HopsTo(dest address.Hash) uint8 {
	var hops uint8
	phony.Block(t, func() { hops = t._hopsTo(dest) })
	return hops
}

func (t *Transport) _hopsTo(dest address.Hash) uint8 {
	if e, ok := t.paths[dest]; ok {
		return e.Hops
	}
	return PathfinderM
}

// NextHop returns the transport id of the next hop towards dest.
func (t *Transport) NextHop(dest address.Hash) (address.Hash, bool) {
	var next address.Hash
	var ok bool
	phony.Block(t, func() {
		var e *PathEntry
		if e, ok = t.paths[dest]; ok {
			next = e.NextHop
		}
	})
	return next, ok
}

// NextHopInterface returns the interface the path to dest leaves on.
func (t *Transport) NextHopInterface(dest address.Hash) Interface {
	var iface Interface
	phony.Block(t, func() {
		if e, ok := t.paths[dest]; ok {
			iface = e.Interface
		}
	})
	return iface
}

// Paths returns a copy of the path table.
func (t *Transport) Paths() map[address.Hash]PathEntry {
	out := make(map[address.Hash]PathEntry)
	phony.Block(t, func() {
		for dest, e := range t.paths {
			c := *e
			c.RandomBlobs = append([]identity.RandomHash(nil), e.RandomBlobs...)
			c.PacketHash = append([]byte(nil), e.PacketHash...)
			c.announce = nil
			out[dest] = c
		}
	})
	return out
}

// RateTable returns a copy of the announce rate table.
func (t *Transport) RateTable() map[address.Hash]RateEntry {
	out := make(map[address.Hash]RateEntry)
	phony.Block(t, func() {
		for dest, e := range t.rates {
			c := *e
			c.Timestamps = append([]time.Time(nil), e.Timestamps...)
			out[dest] = c
		}
	})
	return out
}

// DropPath removes the path to dest. It reports whether there was one.
func (t *Transport) DropPath(dest address.Hash) bool {
	var ok bool
	phony.Block(t, func() {
		if _, ok = t.paths[dest]; ok {
			delete(t.paths, dest)
		}
	})
	return ok
}

// DropAllVia removes every path whose next hop is the given transport id and
// returns how many were removed.
func (t *Transport) DropAllVia(nextHop address.Hash) int {
	var n int
	phony.Block(t, func() {
		for dest, e := range t.paths {
			if e.NextHop == nextHop {
				delete(t.paths, dest)
				n++
			}
		}
	})
	return n
}

// DropAnnounceQueues discards every queued announce rebroadcast and returns
// how many were dropped.
func (t *Transport) DropAnnounceQueues() int {
	var n int
	phony.Block(t, func() {
		n = len(t.announces)
		t.announces = make(map[address.Hash]*announceEntry)
	})
	return n
}

// Links returns the links this node is an endpoint of.
func (t *Transport) Links() []*Link {
	var out []*Link
	phony.Block(t, func() {
		for _, l := range t.links {
			out = append(out, l)
		}
	})
	return out
}

// RelayedLinks is the number of links passing through this node.
func (t *Transport) RelayedLinks() int {
	var n int
	phony.Block(t, func() { n = len(t.linkTable) })
	return n
}

func (t *Transport) _pathRecords() []PathRecord {
	out := make([]PathRecord, 0, len(t.paths))
	for dest, e := range t.paths {
		out = append(out, e.record(dest))
	}
	return out
}

// _loadPaths restores persisted paths. Their interfaces attach when an
// interface of the same name registers.
func (t *Transport) _loadPaths(records []PathRecord) {
	now := t.core.now()
	for _, r := range records {
		if now.After(r.Expires) {
			continue
		}
		e := &PathEntry{
			Timestamp:   r.Timestamp,
			NextHop:     r.NextHop,
			Hops:        r.Hops,
			Expires:     r.Expires,
			RandomBlobs: append([]identity.RandomHash(nil), r.RandomBlobs...),
			PacketHash:  append([]byte(nil), r.PacketHash...),
			ifname:      r.Interface,
		}
		if len(r.Announce) > 0 {
			if p, err := packet.Unpack(r.Announce); err == nil && p.Type == packet.TypeAnnounce {
				p.Hops = r.Hops
				e.announce = p
			}
		}
		for _, iface := range t.interfaces {
			if iface.Name() == r.Interface {
				e.Interface = iface
			}
		}
		t.paths[r.Destination] = e
	}
	if len(records) > 0 {
		t.log.Infof("Loaded %d paths", len(t.paths))
	}
}
