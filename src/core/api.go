package core

import (
	"context"
	"encoding/hex"
	"sort"
	"time"

	"github.com/Arceliar/phony"

	"github.com/yggdrasil-network/rnsmesh/src/address"
	"github.com/yggdrasil-network/rnsmesh/src/identity"
)

type Self struct {
	IdentityHash     address.Hash
	PublicKey        []byte
	TransportEnabled bool
	Uptime           time.Duration
	Destinations     int
}

type PathInfo struct {
	Destination address.Hash
	NextHop     address.Hash
	Hops        uint8
	Interface   string
	Timestamp   time.Time
	Expires     time.Time
}

type InterfaceInfo struct {
	Name      string
	Mode      string
	Direction string
	InterfaceStats
}

type LinkInfo struct {
	ID          address.Hash
	Destination address.Hash
	Status      string
	Initiator   bool
	RTT         time.Duration
	ActivatedAt time.Time
	LastInbound time.Time
}

type KnownInfo struct {
	Destination  address.Hash
	IdentityHash address.Hash
	Seen         time.Time
	AppData      string
}

func (c *Core) GetSelf() Self {
	return Self{
		IdentityHash:     c.identity.Hash(),
		PublicKey:        c.identity.PublicKey(),
		TransportEnabled: c.transport.enabled,
		Uptime:           c.Uptime(),
		Destinations:     len(c.transport.Destinations()),
	}
}

// GetPaths returns the path table sorted by destination.
func (c *Core) GetPaths() []PathInfo {
	var out []PathInfo
	phony.Block(c.transport, func() {
		for dest, e := range c.transport.paths {
			info := PathInfo{
				Destination: dest,
				NextHop:     e.NextHop,
				Hops:        e.Hops,
				Interface:   e.ifname,
				Timestamp:   e.Timestamp,
				Expires:     e.Expires,
			}
			out = append(out, info)
		}
	})
	sort.Slice(out, func(i, j int) bool {
		return string(out[i].Destination[:]) < string(out[j].Destination[:])
	})
	return out
}

func (c *Core) GetInterfaces() []InterfaceInfo {
	var out []InterfaceInfo
	for _, iface := range c.transport.Interfaces() {
		out = append(out, InterfaceInfo{
			Name:           iface.Name(),
			Mode:           iface.Mode().String(),
			Direction:      iface.Direction().String(),
			InterfaceStats: iface.Stats(),
		})
	}
	return out
}

func (c *Core) GetLinks() []LinkInfo {
	var out []LinkInfo
	for _, l := range c.transport.Links() {
		out = append(out, LinkInfo{
			ID:          l.ID(),
			Destination: l.Destination().Hash(),
			Status:      l.Status().String(),
			Initiator:   l.Initiator(),
			RTT:         l.RTT(),
			ActivatedAt: l.ActivatedAt(),
			LastInbound: l.LastInbound(),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return string(out[i].ID[:]) < string(out[j].ID[:])
	})
	return out
}

// GetKnownDestinations returns the known destinations cache, newest first.
func (c *Core) GetKnownDestinations() []KnownInfo {
	var out []KnownInfo
	c.known.Each(func(dest address.Hash, e identity.KnownEntry) {
		info := KnownInfo{
			Destination: dest,
			Seen:        e.Seen,
			AppData:     hex.EncodeToString(e.AppData),
		}
		if id, err := identity.FromPublicKey(e.PublicKey); err == nil {
			info.IdentityHash = id.Hash()
		}
		out = append(out, info)
	})
	sort.Slice(out, func(i, j int) bool {
		return out[i].Seen.After(out[j].Seen)
	})
	return out
}

// SaveKnownDestinations writes the known destinations cache to its store.
func (c *Core) SaveKnownDestinations(ctx context.Context) error {
	return c.known.Save(ctx)
}
