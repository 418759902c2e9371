package identity

import "github.com/yggdrasil-network/rnsmesh/src/storage"

// ToFile writes the private key to name in fs.
func (id *Identity) ToFile(fs storage.Filesystem, name string) error {
	prv := id.PrivateKey()
	if prv == nil {
		return ErrNoPrivateKey
	}
	_, err := fs.WriteFile(name, prv)
	return err
}

// FromFile loads an identity written by ToFile.
func FromFile(fs storage.Filesystem, name string) (*Identity, error) {
	prv, err := fs.ReadFile(name)
	if err != nil {
		return nil, err
	}
	return FromPrivateKey(prv)
}
