// Package identity implements the long-term keypair of a network principal,
// the known-destinations cache filled from validated announces, and the
// announce and proof formats that bind destinations to identities.
package identity

import (
	"encoding/hex"

	"github.com/yggdrasil-network/rnsmesh/src/address"
	"github.com/yggdrasil-network/rnsmesh/src/crypto"
	"github.com/yggdrasil-network/rnsmesh/src/packet"
)

// Sizes in bits unless noted, as they are usually quoted on the wire.
const (
	KeySize             = 512 // X25519 half followed by Ed25519 half
	HashLength          = 256
	SigLength           = 512
	NameHashLength      = 80
	RandomHashLength    = 80
	TruncatedHashLength = 128

	// DerivedKeyLength is the token key size, in bytes, derived for
	// messages encrypted to an identity.
	DerivedKeyLength = 32
)

type identityError string

func (e identityError) Error() string { return string(e) }

const ErrNoPrivateKey = identityError("identity does not hold a private key")
const ErrNoPublicKey = identityError("identity does not hold a public key")
const ErrInvalidKey = identityError("invalid key material")

// Logger is the subset of the node logger used here.
type Logger interface {
	Debugf(string, ...interface{})
	Warnf(string, ...interface{})
}

// Identity holds an encryption keypair and a signing keypair. An identity
// loaded from public keys only can encrypt to and verify, but not decrypt
// or sign.
type Identity struct {
	prvX   *crypto.X25519PrivateKey
	prvSig *crypto.Ed25519PrivateKey
	pubX   *crypto.X25519PublicKey
	pubSig *crypto.Ed25519PublicKey
	hash   address.Hash
}

// New returns an identity with freshly generated keys.
func New() *Identity {
	id := new(Identity)
	id.CreateKeys()
	return id
}

// FromPrivateKey loads an identity from the 64 byte private key form.
func FromPrivateKey(b []byte) (*Identity, error) {
	id := new(Identity)
	if err := id.LoadPrivateKey(b); err != nil {
		return nil, err
	}
	return id, nil
}

// FromPublicKey loads a public-only identity from the 64 byte public key
// form.
func FromPublicKey(b []byte) (*Identity, error) {
	id := new(Identity)
	if err := id.LoadPublicKey(b); err != nil {
		return nil, err
	}
	return id, nil
}

// CreateKeys replaces all key material with new random keys.
func (id *Identity) CreateKeys() {
	id.prvX = crypto.GenerateX25519()
	id.prvSig = crypto.GenerateEd25519()
	id.pubX = id.prvX.Public()
	id.pubSig = id.prvSig.Public()
	id.updateHash()
}

// LoadPrivateKey splits b into the X25519 private key and the Ed25519 seed
// and derives both public keys.
func (id *Identity) LoadPrivateKey(b []byte) error {
	if len(b) != KeySize/8 {
		return ErrInvalidKey
	}
	half := KeySize / 16
	prvX, err := crypto.X25519PrivateKeyFromBytes(b[:half])
	if err != nil {
		return ErrInvalidKey
	}
	prvSig, err := crypto.Ed25519PrivateKeyFromSeed(b[half:])
	if err != nil {
		return ErrInvalidKey
	}
	id.prvX, id.prvSig = prvX, prvSig
	id.pubX, id.pubSig = prvX.Public(), prvSig.Public()
	id.updateHash()
	return nil
}

// LoadPublicKey replaces the key material with public keys only.
func (id *Identity) LoadPublicKey(b []byte) error {
	if len(b) != KeySize/8 {
		return ErrInvalidKey
	}
	half := KeySize / 16
	pubX, err := crypto.X25519PublicKeyFromBytes(b[:half])
	if err != nil {
		return ErrInvalidKey
	}
	pubSig, err := crypto.Ed25519PublicKeyFromBytes(b[half:])
	if err != nil {
		return ErrInvalidKey
	}
	id.prvX, id.prvSig = nil, nil
	id.pubX, id.pubSig = pubX, pubSig
	id.updateHash()
	return nil
}

func (id *Identity) updateHash() {
	copy(id.hash[:], crypto.TruncatedHash(id.PublicKey()))
}

// HasPrivate is true if the identity can sign and decrypt.
func (id *Identity) HasPrivate() bool { return id.prvX != nil && id.prvSig != nil }

// HasPublic is true if the identity can verify and be encrypted to.
func (id *Identity) HasPublic() bool { return id.pubX != nil && id.pubSig != nil }

// PrivateKey returns the 64 byte private key, or nil.
func (id *Identity) PrivateKey() []byte {
	if !id.HasPrivate() {
		return nil
	}
	return append(id.prvX.Bytes(), id.prvSig.Seed()...)
}

// PublicKey returns the 64 byte public key, or nil.
func (id *Identity) PublicKey() []byte {
	if !id.HasPublic() {
		return nil
	}
	return append(id.pubX.Bytes(), id.pubSig.Bytes()...)
}

// SigningPublicKey returns the Ed25519 half of the public key.
func (id *Identity) SigningPublicKey() *crypto.Ed25519PublicKey { return id.pubSig }

// Hash returns the identity hash, the truncated hash of the public key.
func (id *Identity) Hash() address.Hash { return id.hash }

// HexHash returns the identity hash in hex.
func (id *Identity) HexHash() string { return hex.EncodeToString(id.hash[:]) }

func (id *Identity) String() string { return id.hash.Pretty() }

func (id *Identity) tokenFor(shared []byte) (*crypto.Token, error) {
	key, err := crypto.HKDF(DerivedKeyLength, shared, id.hash[:], nil)
	if err != nil {
		return nil, err
	}
	return crypto.NewToken(key)
}

// Encrypt encrypts plaintext so that only the holder of this identity's
// private key can read it. The result is an ephemeral X25519 public key
// followed by a token.
func (id *Identity) Encrypt(plaintext []byte) ([]byte, error) {
	if !id.HasPublic() {
		return nil, ErrNoPublicKey
	}
	ephemeral := crypto.GenerateX25519()
	shared, err := ephemeral.Exchange(id.pubX)
	if err != nil {
		return nil, err
	}
	token, err := id.tokenFor(shared)
	if err != nil {
		return nil, err
	}
	return append(ephemeral.Public().Bytes(), token.Encrypt(plaintext)...), nil
}

// Decrypt reverses Encrypt. No plaintext is returned unless authentication
// succeeds.
func (id *Identity) Decrypt(ciphertext []byte) ([]byte, error) {
	if !id.HasPrivate() {
		return nil, ErrNoPrivateKey
	}
	if len(ciphertext) <= crypto.X25519KeySize {
		return nil, crypto.ErrTokenTooShort
	}
	peer, err := crypto.X25519PublicKeyFromBytes(ciphertext[:crypto.X25519KeySize])
	if err != nil {
		return nil, crypto.ErrDecryptFailed
	}
	shared, err := id.prvX.Exchange(peer)
	if err != nil {
		return nil, crypto.ErrDecryptFailed
	}
	token, err := id.tokenFor(shared)
	if err != nil {
		return nil, crypto.ErrDecryptFailed
	}
	return token.Decrypt(ciphertext[crypto.X25519KeySize:])
}

// Sign signs message with the identity's signing key.
func (id *Identity) Sign(message []byte) ([]byte, error) {
	if id.prvSig == nil {
		return nil, ErrNoPrivateKey
	}
	return id.prvSig.Sign(message), nil
}

// Validate checks a signature against the identity's signing key. Calling
// it on an identity without keys is a programming error and panics.
func (id *Identity) Validate(signature, message []byte) bool {
	if id.pubSig == nil {
		panic(ErrNoPublicKey)
	}
	return id.pubSig.Verify(message, signature)
}

// Prove builds the proof of receipt for p. The proof is addressed to dest if
// given, otherwise to the packet's own proof destination. Implicit proofs
// carry only the signature, explicit ones the packet hash as well. The
// returned packet is attached to the interface p arrived on and is not yet
// packed or sent.
func (id *Identity) Prove(p *packet.Packet, dest *address.Hash, implicit bool) (*packet.Packet, error) {
	hash := p.Hash()
	sig, err := id.Sign(hash)
	if err != nil {
		return nil, err
	}
	var data []byte
	if implicit {
		data = sig
	} else {
		data = append(hash, sig...)
	}
	target := p.ProofDestination()
	if dest != nil {
		target = *dest
	}
	proof := packet.New(target, packet.Single, packet.TypeProof, packet.ContextNone, data)
	proof.AttachedInterface = p.ReceivingInterface
	return proof, nil
}

// ValidateProof checks a proof received for a packet with the given hash.
// Both explicit and implicit proofs are accepted.
func (id *Identity) ValidateProof(proof []byte, packetHash []byte) bool {
	switch len(proof) {
	case packet.ExplicitProofLength:
		if !crypto.HMACEqual(proof[:crypto.HashLength], packetHash) {
			return false
		}
		return id.Validate(proof[crypto.HashLength:], packetHash)
	case packet.ImplicitProofLength:
		return id.Validate(proof, packetHash)
	}
	return false
}
