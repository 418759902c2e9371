package identity

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/yggdrasil-network/rnsmesh/src/address"
	"github.com/yggdrasil-network/rnsmesh/src/storage"
)

// KnownDestinationsFile is the default file name inside a node's storage.
const KnownDestinationsFile = "known_destinations"

// Field numbers of the on-disk record. The file is a sequence of
// length-delimited entry records, each tagged fileEntry.
const (
	fileEntry protowire.Number = 1

	entryDestination protowire.Number = 1
	entrySeen        protowire.Number = 2
	entryPacketHash  protowire.Number = 3
	entryPublicKey   protowire.Number = 4
	entryAppData     protowire.Number = 5
)

const errCorruptFile = identityError("known destinations file is corrupt")

// FileStore keeps the known-destinations cache in a single file on a
// storage.Filesystem. Writes go to a temporary file that is then renamed
// over the old one.
type FileStore struct {
	fs   storage.Filesystem
	name string
}

// NewFileStore returns a store writing to name inside fs. An empty name
// selects KnownDestinationsFile.
func NewFileStore(fs storage.Filesystem, name string) *FileStore {
	if name == "" {
		name = KnownDestinationsFile
	}
	return &FileStore{fs: fs, name: name}
}

func (s *FileStore) SaveKnown(entries map[address.Hash]KnownEntry) error {
	data := MarshalKnown(entries)
	tmp := s.name + ".tmp"
	if _, err := s.fs.WriteFile(tmp, data); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := s.fs.RenameFile(tmp, s.name); err != nil {
		_ = s.fs.RemoveFile(tmp)
		return fmt.Errorf("rename %s: %w", tmp, err)
	}
	return nil
}

func (s *FileStore) LoadKnown() (map[address.Hash]KnownEntry, error) {
	data, err := s.fs.ReadFile(s.name)
	if err != nil {
		return nil, err
	}
	return UnmarshalKnown(data)
}

// MarshalKnown encodes entries in the file format.
func MarshalKnown(entries map[address.Hash]KnownEntry) []byte {
	var out []byte
	for dest, e := range entries {
		var rec []byte
		rec = protowire.AppendTag(rec, entryDestination, protowire.BytesType)
		rec = protowire.AppendBytes(rec, dest[:])
		rec = protowire.AppendTag(rec, entrySeen, protowire.VarintType)
		rec = protowire.AppendVarint(rec, uint64(e.Seen.UnixNano()))
		rec = protowire.AppendTag(rec, entryPacketHash, protowire.BytesType)
		rec = protowire.AppendBytes(rec, e.PacketHash)
		rec = protowire.AppendTag(rec, entryPublicKey, protowire.BytesType)
		rec = protowire.AppendBytes(rec, e.PublicKey)
		if len(e.AppData) > 0 {
			rec = protowire.AppendTag(rec, entryAppData, protowire.BytesType)
			rec = protowire.AppendBytes(rec, e.AppData)
		}
		out = protowire.AppendTag(out, fileEntry, protowire.BytesType)
		out = protowire.AppendBytes(out, rec)
	}
	return out
}

// UnmarshalKnown decodes the file format. Records with a malformed
// destination hash are skipped; a structurally broken file is an error.
func UnmarshalKnown(data []byte) (map[address.Hash]KnownEntry, error) {
	entries := make(map[address.Hash]KnownEntry)
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, errCorruptFile
		}
		data = data[n:]
		if num != fileEntry || typ != protowire.BytesType {
			n = protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, errCorruptFile
			}
			data = data[n:]
			continue
		}
		rec, n := protowire.ConsumeBytes(data)
		if n < 0 {
			return nil, errCorruptFile
		}
		data = data[n:]
		dest, e, err := unmarshalEntry(rec)
		if err != nil {
			return nil, err
		}
		if dest != nil {
			entries[*dest] = e
		}
	}
	return entries, nil
}

func unmarshalEntry(rec []byte) (*address.Hash, KnownEntry, error) {
	var e KnownEntry
	var dest *address.Hash
	for len(rec) > 0 {
		num, typ, n := protowire.ConsumeTag(rec)
		if n < 0 {
			return nil, e, errCorruptFile
		}
		rec = rec[n:]
		switch {
		case num == entrySeen && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(rec)
			if n < 0 {
				return nil, e, errCorruptFile
			}
			e.Seen = time.Unix(0, int64(v))
			rec = rec[n:]
		case typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(rec)
			if n < 0 {
				return nil, e, errCorruptFile
			}
			rec = rec[n:]
			switch num {
			case entryDestination:
				if h, err := address.HashFromBytes(v); err == nil {
					dest = &h
				}
			case entryPacketHash:
				e.PacketHash = append([]byte(nil), v...)
			case entryPublicKey:
				e.PublicKey = append([]byte(nil), v...)
			case entryAppData:
				e.AppData = append([]byte(nil), v...)
			}
		default:
			n := protowire.ConsumeFieldValue(num, typ, rec)
			if n < 0 {
				return nil, e, errCorruptFile
			}
			rec = rec[n:]
		}
	}
	return dest, e, nil
}
