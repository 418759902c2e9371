package core

import (
	"time"

	"github.com/bits-and-blooms/bloom/v3"

	"github.com/yggdrasil-network/rnsmesh/src/address"
	"github.com/yggdrasil-network/rnsmesh/src/identity"
	"github.com/yggdrasil-network/rnsmesh/src/packet"
)

const (
	// PathfinderM is the largest hop count a path may have. HopsTo reports
	// it for destinations without a path.
	PathfinderM = 128
	// PathfinderR is how many times an announce is retransmitted after the
	// first rebroadcast.
	PathfinderR = 1
	// PathfinderG is the grace period between announce retransmissions.
	PathfinderG = 5 * time.Second
	// PathfinderRW is the random window added to announce rebroadcasts.
	PathfinderRW = 500 * time.Millisecond
	// PathfinderE is how long a path stays valid on a full interface.
	PathfinderE = 7 * 24 * time.Hour
	// APPathTime is the path lifetime on access point interfaces.
	APPathTime = 24 * time.Hour
	// RoamingPathTime is the path lifetime on roaming interfaces.
	RoamingPathTime = 6 * time.Hour

	// LocalRebroadcastsMax is how many times hearing a neighbour repeat an
	// announce suppresses our own retransmission.
	LocalRebroadcastsMax = 2

	// PathRequestGrace delays answers to path requests so that nodes
	// closer to the destination answer first.
	PathRequestGrace = 400 * time.Millisecond
	// PathRequestMinInterval throttles repeated requests for one path.
	PathRequestMinInterval = 20 * time.Second
	// PathRequestTimeout is how long a relayed path request is remembered.
	PathRequestTimeout = 15 * time.Second

	// ReverseTimeout is how long a forwarded packet can be proven.
	ReverseTimeout = 8 * time.Minute
	// LinkTableTimeout drops relayed links that carried no traffic.
	LinkTableTimeout = StaleTime * 5 / 4

	// MaxReceipts bounds the outstanding receipts; the oldest are culled.
	MaxReceipts = 1024
	// maxRateTimestamps bounds the history kept per rate table entry.
	maxRateTimestamps = 16
	// maxRandomBlobs bounds the announce random blobs kept per path.
	maxRandomBlobs = 64
	// hashlistGeneration is the number of packet hashes a single bloom
	// filter generation holds before it is rotated out.
	hashlistGeneration = 500000
	// hashlistFalsePositive is the target false positive rate per
	// generation.
	hashlistFalsePositive = 1e-6
)

// PathRecord is the persistent form of a path table entry.
type PathRecord struct {
	Destination address.Hash
	NextHop     address.Hash
	Hops        uint8
	Timestamp   time.Time
	Expires     time.Time
	RandomBlobs []identity.RandomHash
	PacketHash  []byte
	Interface   string
	Announce    []byte
}

// PathStore persists the path table for warm restarts.
type PathStore interface {
	SavePaths([]PathRecord) error
	LoadPaths() ([]PathRecord, error)
}

// PathEntry is one row of the path table.
type PathEntry struct {
	Timestamp   time.Time
	NextHop     address.Hash
	Hops        uint8
	Expires     time.Time
	RandomBlobs []identity.RandomHash
	Interface   Interface
	PacketHash  []byte

	ifname   string         // survives while the interface is not registered
	announce *packet.Packet // cached for answering path requests
}

func (e *PathEntry) hasBlob(r identity.RandomHash) bool {
	for _, b := range e.RandomBlobs {
		if b == r {
			return true
		}
	}
	return false
}

// latestEmitted is the emission time of the newest announce seen for the
// path.
func (e *PathEntry) latestEmitted() time.Time {
	var t time.Time
	for _, b := range e.RandomBlobs {
		if emitted := identity.AnnounceEmitted(b); emitted.After(t) {
			t = emitted
		}
	}
	return t
}

func (e *PathEntry) record(dest address.Hash) PathRecord {
	r := PathRecord{
		Destination: dest,
		NextHop:     e.NextHop,
		Hops:        e.Hops,
		Timestamp:   e.Timestamp,
		Expires:     e.Expires,
		RandomBlobs: append([]identity.RandomHash(nil), e.RandomBlobs...),
		PacketHash:  append([]byte(nil), e.PacketHash...),
		Interface:   e.ifname,
	}
	if e.announce != nil {
		r.Announce = e.announce.Raw.Clone()
	}
	return r
}

// RateEntry tracks announce frequency for one destination.
type RateEntry struct {
	Last         time.Time
	Violations   int
	BlockedUntil time.Time
	Timestamps   []time.Time
}

// announceEntry is a queued rebroadcast.
type announceEntry struct {
	timestamp     time.Time
	retransmitAt  time.Time
	retries       int
	receivedFrom  address.Hash
	hops          uint8
	packet        *packet.Packet
	localRebroads int
	blockRebroads bool
	attached      Interface
	receivedOn    Interface
}

// reverseEntry remembers where a forwarded packet came from so that its
// proof can travel back.
type reverseEntry struct {
	receivedOn Interface
	sentOn     Interface
	timestamp  time.Time
}

// linkEntry is a link relayed through this node.
type linkEntry struct {
	timestamp     time.Time
	nextHop       address.Hash
	outbound      Interface
	remainingHops uint8
	receivedOn    Interface
	takenHops     uint8
	destination   address.Hash
	validated     bool
	proofTimeout  time.Time
}

// pathRequestEntry is a path request we could not answer yet.
type pathRequestEntry struct {
	requestedOn Interface
	timeout     time.Time
}

// hashlist remembers packet hashes in two bloom filter generations. When the
// current generation fills up, it replaces the previous one, so a hash is
// remembered for at least one full generation.
type hashlist struct {
	current  *bloom.BloomFilter
	previous *bloom.BloomFilter
	count    uint
	size     uint
}

func newHashlist(size uint) *hashlist {
	return &hashlist{
		current:  bloom.NewWithEstimates(size, hashlistFalsePositive),
		previous: bloom.NewWithEstimates(size, hashlistFalsePositive),
		size:     size,
	}
}

func (h *hashlist) add(hash []byte) {
	h.current.Add(hash)
	h.count++
	if h.count >= h.size {
		h.previous = h.current
		h.current = bloom.NewWithEstimates(h.size, hashlistFalsePositive)
		h.count = 0
	}
}

func (h *hashlist) has(hash []byte) bool {
	return h.current.Test(hash) || h.previous.Test(hash)
}
