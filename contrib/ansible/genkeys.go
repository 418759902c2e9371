/*

This file generates identities for rnsd hosts deployed with ansible.
It writes host_vars/<n>/vars with the identity hash and host_vars/<n>/vault
with the private key, keeping the identities with the lowest hashes out of
the number tried.

*/
package main

import (
	"bytes"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/cheggaaa/pb/v3"

	"github.com/yggdrasil-network/rnsmesh/src/identity"
)

var numHosts = flag.Int("hosts", 1, "number of host vars to generate")
var keyTries = flag.Int("tries", 1000, "number of tries before taking the best keys")
var outDir = flag.String("dir", "host_vars", "directory to write host vars to")

type keySet struct {
	priv []byte
	hash []byte
}

func main() {
	flag.Parse()

	if *numHosts > *keyTries {
		fmt.Println("Can't generate less keys than hosts.")
		os.Exit(1)
	}

	bar := pb.StartNew(*keyTries + *numHosts)
	keys := bestKeys(*numHosts, *keyTries, bar.Increment)

	for i, key := range keys {
		if err := writeHost(*outDir, i+1, key); err != nil {
			bar.Finish()
			fmt.Println("Failed to write host vars:", err)
			os.Exit(1)
		}
		bar.Increment()
	}
	bar.Finish()
}

// bestKeys generates tries identities and keeps the n with the lowest
// identity hashes.
func bestKeys(n, tries int, progress func() *pb.ProgressBar) []keySet {
	keys := make([]keySet, 0, n+1)
	for i := 0; i < tries; i++ {
		keys = append(keys, newKey())
		sort.Slice(keys, func(a, b int) bool { return isBetter(keys[b].hash, keys[a].hash) })
		if len(keys) > n {
			keys = keys[:n]
		}
		if progress != nil {
			progress()
		}
	}
	return keys
}

func writeHost(dir string, n int, key keySet) error {
	host := filepath.Join(dir, fmt.Sprintf("%x", n))
	if err := os.MkdirAll(host, 0755); err != nil {
		return err
	}
	vars := fmt.Sprintf("rnsd_identity_hash: %s\n", hex.EncodeToString(key.hash))
	vars += "rnsd_private_key: \"{{ vault_rnsd_private_key }}\"\n"
	if err := os.WriteFile(filepath.Join(host, "vars"), []byte(vars), 0644); err != nil {
		return err
	}
	vault := fmt.Sprintf("vault_rnsd_private_key: %s\n", hex.EncodeToString(key.priv))
	return os.WriteFile(filepath.Join(host, "vault"), []byte(vault), 0600)
}

func newKey() keySet {
	id := identity.New()
	hash := id.Hash()
	return keySet{id.PrivateKey(), hash[:]}
}

func isBetter(oldID, newID []byte) bool {
	return bytes.Compare(newID, oldID) < 0
}
