package packet

import (
	"bytes"
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/yggdrasil-network/rnsmesh/src/address"
)

func randomHash() address.Hash {
	var h address.Hash
	rand.Read(h[:])
	return h
}

func TestPacketRoundTrip(t *testing.T) {
	tid := randomHash()
	tests := []struct {
		name string
		p    *Packet
	}{
		{"data", New(randomHash(), Single, TypeData, ContextNone, []byte("hello"))},
		{"announce", &Packet{Type: TypeAnnounce, DestinationType: Single, ContextFlag: true, DestinationHash: randomHash(), Hops: 3}},
		{"link proof", New(randomHash(), Link, TypeProof, ContextLRProof, bytes.Repeat([]byte{9}, 96))},
		{"transported", &Packet{
			Type: TypeLinkRequest, HeaderType: Header2, TransportType: Transport,
			DestinationType: Plain, Context: ContextPathResponse, TransportID: &tid,
			DestinationHash: randomHash(), Hops: 7,
		}},
		{"max data", New(randomHash(), Group, TypeData, ContextNone, make([]byte, MTU-HeaderMinSize))},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			require.NoError(t, test.p.Pack())
			q, err := Unpack(test.p.Raw.Bytes())
			require.NoError(t, err)
			require.Equal(t, test.p.Type, q.Type)
			require.Equal(t, test.p.HeaderType, q.HeaderType)
			require.Equal(t, test.p.TransportType, q.TransportType)
			require.Equal(t, test.p.DestinationType, q.DestinationType)
			require.Equal(t, test.p.Context, q.Context)
			require.Equal(t, test.p.ContextFlag, q.ContextFlag)
			require.Equal(t, test.p.Hops, q.Hops)
			require.Equal(t, test.p.DestinationHash, q.DestinationHash)
			require.Equal(t, test.p.TransportID, q.TransportID)
			require.True(t, test.p.Data.Equal(q.Data))
			require.Equal(t, test.p.Hash(), q.Hash())
		})
	}
}

func TestPacketErrors(t *testing.T) {
	_, err := Unpack(make([]byte, HeaderMinSize-1))
	require.ErrorIs(t, err, ErrTruncated)

	short := make([]byte, HeaderMinSize+4)
	short[0] = flagHeader2
	_, err = Unpack(short)
	require.ErrorIs(t, err, ErrTruncated)

	p := New(randomHash(), Single, TypeData, ContextNone, make([]byte, MTU))
	require.True(t, errors.Is(p.Pack(), ErrTooLarge))

	p = New(randomHash(), Single, TypeData, ContextNone, nil)
	p.HeaderType = Header2
	require.ErrorIs(t, p.Pack(), ErrMissingTransportID)

	p = New(randomHash(), Single, TypeData, ContextNone, nil)
	p.TransportType = Relay
	require.ErrorIs(t, p.Pack(), ErrInvalidHeader)
}

func TestPacketHashIgnoresRouting(t *testing.T) {
	p := New(randomHash(), Single, TypeData, ContextNone, []byte("payload"))
	require.NoError(t, p.Pack())
	before := p.Hash()

	tid := randomHash()
	p.HeaderType = Header2
	p.TransportType = Transport
	p.TransportID = &tid
	p.Hops = 4
	require.NoError(t, p.Pack())
	require.Equal(t, before, p.Hash())

	// The hashable part of a header 2 packet starts after the transport id.
	raw := p.Raw.Bytes()
	want := append([]byte{raw[0] & 0x0F}, raw[2+address.Length:]...)
	require.Equal(t, want, p.HashablePart())

	p.Context = ContextKeepalive
	require.NotEqual(t, before, p.Hash())
}

func TestPacketProofDestination(t *testing.T) {
	p := New(randomHash(), Single, TypeData, ContextNone, []byte("x"))
	dest := p.ProofDestination()
	require.Equal(t, p.Hash()[:address.Length], dest[:])
	require.Equal(t, p.TruncatedHash(), dest)
}

func TestPacketConstants(t *testing.T) {
	require.Equal(t, 19, HeaderMinSize)
	require.Equal(t, 35, HeaderMaxSize)
	require.Equal(t, 464, MDU)
	require.Equal(t, 383, EncryptedMDU)
}
