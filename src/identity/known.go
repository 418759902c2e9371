package identity

import (
	"context"
	"sync"
	"time"

	"github.com/yggdrasil-network/rnsmesh/src/address"
)

const ErrSaveBusy = identityError("known destinations are already being saved")
const ErrKeyCollision = identityError("announced key differs from the known key")

// DefaultSaveTimeout bounds how long Save waits for a concurrent save.
const DefaultSaveTimeout = 5 * time.Second

// KnownEntry is what is remembered about a destination from its last
// accepted announce.
type KnownEntry struct {
	Seen       time.Time
	PacketHash []byte
	PublicKey  []byte
	AppData    []byte
}

// KnownStore persists the known-destinations cache.
type KnownStore interface {
	SaveKnown(entries map[address.Hash]KnownEntry) error
	LoadKnown() (map[address.Hash]KnownEntry, error)
}

// Known is the known-destinations cache. Lookups and updates may come from
// any goroutine; only one Save runs at a time. Entries are added or
// replaced but never removed, and Save merges the store back in, so the
// cache and its store only grow.
type Known struct {
	mutex       sync.RWMutex
	entries     map[address.Hash]KnownEntry
	store       KnownStore
	saving      chan struct{}
	saveTimeout time.Duration
	now         func() time.Time
}

// NewKnown returns an empty cache persisted to store, which may be nil for a
// purely in-memory cache.
func NewKnown(store KnownStore) *Known {
	return &Known{
		entries:     make(map[address.Hash]KnownEntry),
		store:       store,
		saving:      make(chan struct{}, 1),
		saveTimeout: DefaultSaveTimeout,
		now:         time.Now,
	}
}

// SetClock replaces the time source used to stamp entries.
func (k *Known) SetClock(now func() time.Time) {
	k.mutex.Lock()
	defer k.mutex.Unlock()
	k.now = now
}

// SetSaveTimeout changes how long Save waits for a concurrent save.
func (k *Known) SetSaveTimeout(d time.Duration) {
	k.mutex.Lock()
	defer k.mutex.Unlock()
	k.saveTimeout = d
}

func copyEntry(e KnownEntry) KnownEntry {
	return KnownEntry{
		Seen:       e.Seen,
		PacketHash: append([]byte(nil), e.PacketHash...),
		PublicKey:  append([]byte(nil), e.PublicKey...),
		AppData:    append([]byte(nil), e.AppData...),
	}
}

// Remember records the public key and app data of a destination,
// replacing any previous entry.
func (k *Known) Remember(dest address.Hash, packetHash, publicKey, appData []byte) error {
	if len(publicKey) != KeySize/8 {
		return ErrInvalidKey
	}
	k.mutex.Lock()
	defer k.mutex.Unlock()
	k._set(dest, packetHash, publicKey, appData)
	return nil
}

// rememberChecked is Remember, except that it refuses to replace a known
// key with a different one. The check and the update happen under one lock.
func (k *Known) rememberChecked(dest address.Hash, packetHash, publicKey, appData []byte) error {
	if len(publicKey) != KeySize/8 {
		return ErrInvalidKey
	}
	k.mutex.Lock()
	defer k.mutex.Unlock()
	if old, ok := k.entries[dest]; ok && string(old.PublicKey) != string(publicKey) {
		return ErrKeyCollision
	}
	k._set(dest, packetHash, publicKey, appData)
	return nil
}

func (k *Known) _set(dest address.Hash, packetHash, publicKey, appData []byte) {
	k.entries[dest] = copyEntry(KnownEntry{
		Seen:       k.now(),
		PacketHash: packetHash,
		PublicKey:  publicKey,
		AppData:    appData,
	})
}

// Entry returns a copy of the entry for dest.
func (k *Known) Entry(dest address.Hash) (KnownEntry, bool) {
	k.mutex.RLock()
	defer k.mutex.RUnlock()
	e, ok := k.entries[dest]
	if !ok {
		return KnownEntry{}, false
	}
	return copyEntry(e), true
}

// Recall returns the public-only identity that announced dest.
func (k *Known) Recall(dest address.Hash) (*Identity, bool) {
	e, ok := k.Entry(dest)
	if !ok {
		return nil, false
	}
	id, err := FromPublicKey(e.PublicKey)
	if err != nil {
		return nil, false
	}
	return id, true
}

// RecallAppData returns the app data last announced for dest.
func (k *Known) RecallAppData(dest address.Hash) ([]byte, bool) {
	e, ok := k.Entry(dest)
	if !ok {
		return nil, false
	}
	return e.AppData, true
}

// Len returns the number of known destinations.
func (k *Known) Len() int {
	k.mutex.RLock()
	defer k.mutex.RUnlock()
	return len(k.entries)
}

// Each calls fn for every entry. The cache is not locked while fn runs.
func (k *Known) Each(fn func(address.Hash, KnownEntry)) {
	for dest, e := range k.snapshot() {
		fn(dest, e)
	}
}

func (k *Known) snapshot() map[address.Hash]KnownEntry {
	k.mutex.RLock()
	defer k.mutex.RUnlock()
	out := make(map[address.Hash]KnownEntry, len(k.entries))
	for dest, e := range k.entries {
		out[dest] = copyEntry(e)
	}
	return out
}

// merge adds stored entries for destinations not already in memory.
func (k *Known) merge(stored map[address.Hash]KnownEntry) {
	k.mutex.Lock()
	defer k.mutex.Unlock()
	for dest, e := range stored {
		if len(e.PublicKey) != KeySize/8 {
			continue
		}
		if _, ok := k.entries[dest]; !ok {
			k.entries[dest] = copyEntry(e)
		}
	}
}

// Save writes the cache to its store. Entries present in the store but not
// in memory are kept. If another save is still running after the save
// timeout, Save gives up with ErrSaveBusy and nothing is written.
func (k *Known) Save(ctx context.Context) error {
	if k.store == nil {
		return nil
	}
	k.mutex.RLock()
	timeout := k.saveTimeout
	k.mutex.RUnlock()
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case k.saving <- struct{}{}:
	case <-timer.C:
		return ErrSaveBusy
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-k.saving }()

	if stored, err := k.store.LoadKnown(); err == nil {
		k.merge(stored)
	}
	return k.store.SaveKnown(k.snapshot())
}

// Load reads the store into the cache. Entries already in memory win.
func (k *Known) Load() error {
	if k.store == nil {
		return nil
	}
	stored, err := k.store.LoadKnown()
	if err != nil {
		return err
	}
	k.merge(stored)
	return nil
}
