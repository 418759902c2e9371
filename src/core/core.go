package core

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/Arceliar/phony"
	"github.com/gologme/log"

	"github.com/yggdrasil-network/rnsmesh/src/address"
	"github.com/yggdrasil-network/rnsmesh/src/identity"
	"github.com/yggdrasil-network/rnsmesh/src/storage"
	"github.com/yggdrasil-network/rnsmesh/src/version"
)

// DefaultJobInterval is the period of the background job loop.
const DefaultJobInterval = 250 * time.Millisecond

type coreError string

func (e coreError) Error() string { return string(e) }

const ErrNoIdentity = coreError("node identity must hold private keys")
const ErrStopped = coreError("node is stopped")

// The Core object represents one node. It owns the known destinations
// cache, the transport and everything registered with it.
type Core struct {
	phony.Inbox
	ctx       context.Context
	cancel    context.CancelFunc
	identity  *identity.Identity
	known     *identity.Known
	transport *Transport
	callbacks phony.Inbox // user callbacks run here, in order, off the transport
	log       Logger
	started   time.Time
	jobTimer  *time.Timer
	persisted time.Time
	stopOnce  sync.Once
	config    struct {
		transport       bool
		storage         storage.Filesystem
		knownStore      identity.KnownStore
		pathStore       PathStore
		announceRate    AnnounceRate
		persistInterval time.Duration
		clock           func() time.Time
		jobInterval     time.Duration
		collision       CollisionHandler
		explicitProofs  bool
	}
}

func New(id *identity.Identity, logger Logger, opts ...SetupOption) (*Core, error) {
	if id == nil || !id.HasPrivate() {
		return nil, ErrNoIdentity
	}
	c := &Core{
		identity: id,
		log:      logger,
	}
	c.config.clock = time.Now
	c.config.jobInterval = DefaultJobInterval
	for _, opt := range opts {
		c._applyOption(opt)
	}
	if c.log == nil {
		c.log = log.New(io.Discard, "", 0)
	}
	c.log.Infoln("Build name:", version.BuildName())
	if version := version.BuildVersion(); version != "unknown" {
		c.log.Infoln("Build version:", version)
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.started = c.now()
	c.persisted = c.started

	store := c.config.knownStore
	if store == nil && c.config.storage != nil {
		store = identity.NewFileStore(c.config.storage, "")
	}
	c.known = identity.NewKnown(store)
	c.known.SetClock(c.config.clock)
	if err := c.known.Load(); err != nil && !errors.Is(err, storage.ErrNotFound) {
		c.log.Warnln("Failed to load known destinations:", err)
	}

	c.transport = newTransport(c)
	if ps := c.config.pathStore; ps != nil {
		records, err := ps.LoadPaths()
		if err != nil {
			c.log.Warnln("Failed to load path table:", err)
		} else {
			phony.Block(c.transport, func() { c.transport._loadPaths(records) })
		}
	}
	c.log.Infof("Node identity: %s", id)
	if c.config.transport {
		c.log.Infoln("Transport is enabled")
	}
	if c.config.jobInterval > 0 {
		c.Act(nil, c._jobLoop)
	}
	return c, nil
}

func (c *Core) now() time.Time { return c.config.clock() }

// callback schedules fn on the callback actor.
func (c *Core) callback(fn func()) {
	c.callbacks.Act(nil, fn)
}

// The job loop drives link watchdogs, announce retransmission, table
// culling and periodic persistence.
func (c *Core) _jobLoop() {
	select {
	case <-c.ctx.Done():
		return
	default:
	}
	c._tick()
	c.jobTimer = time.AfterFunc(c.config.jobInterval, func() {
		c.Act(nil, c._jobLoop)
	})
}

func (c *Core) _tick() {
	now := c.now()
	phony.Block(c.transport, func() { c.transport._jobs(now) })
	if c.config.persistInterval > 0 && now.Sub(c.persisted) >= c.config.persistInterval {
		c.persisted = now
		go func() {
			if err := c.Persist(c.ctx); err != nil {
				c.log.Warnln("Failed to persist tables:", err)
			}
		}()
	}
}

// Tick runs the periodic jobs once, synchronously. Owners that disabled the
// job loop with JobInterval(0) call it from their own loop.
func (c *Core) Tick() {
	phony.Block(c, c._tick)
}

// Persist writes the known destinations and the path table to their
// stores, if any.
func (c *Core) Persist(ctx context.Context) error {
	var errs []error
	if err := c.known.Save(ctx); err != nil {
		errs = append(errs, err)
	}
	if ps := c.config.pathStore; ps != nil {
		var records []PathRecord
		phony.Block(c.transport, func() { records = c.transport._pathRecords() })
		if err := ps.SavePaths(records); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Stop persists state, stops every interface and shuts down the job loop.
// It is safe to call more than once.
func (c *Core) Stop() {
	c.stopOnce.Do(func() {
		phony.Block(c, func() {
			c.log.Infoln("Stopping...")
			c._close()
		})
		if err := c.Persist(context.Background()); err != nil {
			c.log.Errorln("Failed to persist tables:", err)
		}
		phony.Block(c.transport, c.transport._stopInterfaces)
		phony.Block(&c.callbacks, func() {})
		c.log.Infoln("Stopped")
	})
}

// This function is unsafe and should only be ran by the core actor.
func (c *Core) _close() {
	c.cancel()
	if c.jobTimer != nil {
		c.jobTimer.Stop()
		c.jobTimer = nil
	}
}

// Identity is the node's own identity. Its hash is the transport id.
func (c *Core) Identity() *identity.Identity { return c.identity }

// Known is the known destinations cache.
func (c *Core) Known() *identity.Known { return c.known }

func (c *Core) Transport() *Transport { return c.transport }

// Uptime is the time since New returned, on the node clock.
func (c *Core) Uptime() time.Duration { return c.now().Sub(c.started) }

// Since is the time elapsed since t by the node clock.
func (c *Core) Since(t time.Time) time.Duration { return c.now().Sub(t) }

// Recall returns the identity behind a destination hash, looking first at
// announced destinations and then at the destinations registered locally.
// It returns nil for unknown hashes.
func (c *Core) Recall(dest address.Hash) *identity.Identity {
	if id, ok := c.known.Recall(dest); ok {
		return id
	}
	if d := c.transport.localDestination(dest); d != nil {
		return d.Identity()
	}
	return nil
}

type Logger interface {
	Printf(string, ...interface{})
	Println(...interface{})
	Infof(string, ...interface{})
	Infoln(...interface{})
	Warnf(string, ...interface{})
	Warnln(...interface{})
	Errorf(string, ...interface{})
	Errorln(...interface{})
	Debugf(string, ...interface{})
	Debugln(...interface{})
}
