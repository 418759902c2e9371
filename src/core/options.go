package core

import (
	"time"

	"github.com/yggdrasil-network/rnsmesh/src/address"
	"github.com/yggdrasil-network/rnsmesh/src/identity"
	"github.com/yggdrasil-network/rnsmesh/src/storage"
)

func (c *Core) _applyOption(opt SetupOption) {
	switch v := opt.(type) {
	case EnableTransport:
		c.config.transport = bool(v)
	case Storage:
		c.config.storage = v.Filesystem
	case KnownStore:
		c.config.knownStore = v.KnownStore
	case PersistPaths:
		c.config.pathStore = v.PathStore
	case AnnounceRate:
		c.config.announceRate = v
	case PersistInterval:
		c.config.persistInterval = time.Duration(v)
	case Clock:
		if v != nil {
			c.config.clock = v
		}
	case JobInterval:
		c.config.jobInterval = time.Duration(v)
	case CollisionHandler:
		c.config.collision = v
	case ExplicitProofs:
		c.config.explicitProofs = bool(v)
	}
}

type SetupOption interface {
	isSetupOption()
}

// EnableTransport makes the node forward packets and rebroadcast announces
// for others.
type EnableTransport bool

// Storage is where the node keeps its known destinations file when no other
// KnownStore is given.
type Storage struct{ storage.Filesystem }

// KnownStore replaces the backing store of the known destinations cache.
type KnownStore struct{ identity.KnownStore }

// PersistPaths keeps the path table across restarts.
type PersistPaths struct{ PathStore }

// AnnounceRate limits how often announces for one destination are
// rebroadcast. A zero Target disables rate limiting.
type AnnounceRate struct {
	Target  time.Duration
	Grace   int
	Penalty time.Duration
}

// PersistInterval is how often known destinations and paths are written to
// their stores. Zero means only on Stop.
type PersistInterval time.Duration

// Clock replaces time.Now for everything the node times.
type Clock func() time.Time

// JobInterval is the period of the background job loop. Zero disables the
// loop, in which case the owner must call Tick.
type JobInterval time.Duration

// CollisionHandler is told about announces whose key differs from the key
// already known for the destination. Such announces are always dropped.
type CollisionHandler func(dest address.Hash, announced *identity.Identity)

// ExplicitProofs makes destinations include the packet hash in proofs.
type ExplicitProofs bool

func (a EnableTransport) isSetupOption()  {}
func (a Storage) isSetupOption()          {}
func (a KnownStore) isSetupOption()       {}
func (a PersistPaths) isSetupOption()     {}
func (a AnnounceRate) isSetupOption()     {}
func (a PersistInterval) isSetupOption()  {}
func (a Clock) isSetupOption()            {}
func (a JobInterval) isSetupOption()      {}
func (a CollisionHandler) isSetupOption() {}
func (a ExplicitProofs) isSetupOption()   {}
