package identity

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yggdrasil-network/rnsmesh/src/address"
	"github.com/yggdrasil-network/rnsmesh/src/crypto"
	"github.com/yggdrasil-network/rnsmesh/src/packet"
	"github.com/yggdrasil-network/rnsmesh/src/storage"
)

func TestIdentityDeterministicHash(t *testing.T) {
	a := New()
	b, err := FromPrivateKey(a.PrivateKey())
	require.NoError(t, err)
	require.Equal(t, a.Hash(), b.Hash())
	aHash := a.Hash()
	require.Equal(t, crypto.TruncatedHash(a.PublicKey()), aHash[:])

	sig, err := a.Sign([]byte("msg"))
	require.NoError(t, err)
	require.True(t, b.Validate(sig, []byte("msg")))

	pub, err := FromPublicKey(a.PublicKey())
	require.NoError(t, err)
	require.Equal(t, a.Hash(), pub.Hash())
	require.Equal(t, a.HexHash(), pub.HexHash())

	// Replacing keys changes the hash.
	before := b.Hash()
	b.CreateKeys()
	require.NotEqual(t, before, b.Hash())
}

func TestIdentityEncryptSignScenario(t *testing.T) {
	a, b := New(), New()
	bPublic, err := FromPublicKey(b.PublicKey())
	require.NoError(t, err)

	token, err := bPublic.Encrypt([]byte("hello"))
	require.NoError(t, err)
	plain, err := b.Decrypt(token)
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), plain)

	_, err = a.Decrypt(token)
	require.ErrorIs(t, err, crypto.ErrDecryptFailed)

	sig, err := a.Sign([]byte("hello"))
	require.NoError(t, err)
	aPublic, err := FromPublicKey(a.PublicKey())
	require.NoError(t, err)
	require.True(t, aPublic.Validate(sig, []byte("hello")))
	sig[10] ^= 0x04
	require.False(t, aPublic.Validate(sig, []byte("hello")))
}

func TestIdentityPublicOnly(t *testing.T) {
	pub, err := FromPublicKey(New().PublicKey())
	require.NoError(t, err)
	require.True(t, pub.HasPublic())
	require.False(t, pub.HasPrivate())
	require.Nil(t, pub.PrivateKey())

	_, err = pub.Sign([]byte("x"))
	require.ErrorIs(t, err, ErrNoPrivateKey)
	_, err = pub.Decrypt(make([]byte, 100))
	require.ErrorIs(t, err, ErrNoPrivateKey)

	var empty Identity
	_, err = empty.Encrypt([]byte("x"))
	require.ErrorIs(t, err, ErrNoPublicKey)
	require.Panics(t, func() { empty.Validate(nil, nil) })

	_, err = FromPrivateKey(make([]byte, 63))
	require.ErrorIs(t, err, ErrInvalidKey)
	_, err = FromPublicKey(make([]byte, 65))
	require.ErrorIs(t, err, ErrInvalidKey)
}

func TestIdentityDecryptRejects(t *testing.T) {
	id := New()
	_, err := id.Decrypt(make([]byte, 32))
	require.ErrorIs(t, err, crypto.ErrTokenTooShort)
	_, err = id.Decrypt(make([]byte, 32+crypto.TokenOverhead))
	require.ErrorIs(t, err, crypto.ErrDecryptFailed)

	token, err := id.Encrypt([]byte("payload"))
	require.NoError(t, err)
	token[len(token)-1] ^= 1
	_, err = id.Decrypt(token)
	require.ErrorIs(t, err, crypto.ErrDecryptFailed)
}

func TestIdentityProve(t *testing.T) {
	id := New()
	var dest address.Hash
	dest[0] = 1
	p := packet.New(dest, packet.Single, packet.TypeData, packet.ContextNone, []byte("data"))
	p.ReceivingInterface = "if0"

	proof, err := id.Prove(p, nil, true)
	require.NoError(t, err)
	require.Equal(t, packet.TypeProof, proof.Type)
	require.Equal(t, p.ProofDestination(), proof.DestinationHash)
	require.Equal(t, "if0", proof.AttachedInterface)
	require.Equal(t, packet.ImplicitProofLength, proof.Data.Len())
	require.True(t, id.ValidateProof(proof.Data.Bytes(), p.Hash()))

	var other address.Hash
	other[1] = 2
	proof, err = id.Prove(p, &other, false)
	require.NoError(t, err)
	require.Equal(t, other, proof.DestinationHash)
	require.Equal(t, packet.ExplicitProofLength, proof.Data.Len())
	require.True(t, id.ValidateProof(proof.Data.Bytes(), p.Hash()))
	require.False(t, New().ValidateProof(proof.Data.Bytes(), p.Hash()))
	require.False(t, id.ValidateProof(proof.Data.Bytes()[:10], p.Hash()))

	_, err = publicOnly(t, id).Prove(p, nil, true)
	require.ErrorIs(t, err, ErrNoPrivateKey)
}

func publicOnly(t *testing.T, id *Identity) *Identity {
	pub, err := FromPublicKey(id.PublicKey())
	require.NoError(t, err)
	return pub
}

func TestIdentityFile(t *testing.T) {
	fs := storage.NewMemoryFS(0)
	id := New()
	require.NoError(t, id.ToFile(fs, "identity"))
	loaded, err := FromFile(fs, "identity")
	require.NoError(t, err)
	require.Equal(t, id.Hash(), loaded.Hash())
	require.True(t, bytes.Equal(id.PrivateKey(), loaded.PrivateKey()))
	_, err = FromFile(fs, "missing")
	require.True(t, errors.Is(err, storage.ErrNotFound))
}
