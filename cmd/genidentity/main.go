/*

This file generates identities.
It prints out a new identity each time it finds a "better" one.
"Better" means a lower hash, so the hex form starts with more zeros.

If run with the "-dest" flag, the hash compared is the destination hash for
the given dotted name (for example "chat.inbox") instead of the identity hash.
If run with the "-prefix" flag, it stops at the first hash with that hex prefix.

*/
package main

import (
	"bytes"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/yggdrasil-network/rnsmesh/src/address"
	"github.com/yggdrasil-network/rnsmesh/src/identity"
)

var destName = flag.String("dest", "", "compare destination hashes for this dotted app name")
var prefix = flag.String("prefix", "", "stop at the first hash starting with this hex prefix")

type keySet struct {
	priv []byte
	id   address.Hash
	hash address.Hash
}

func main() {
	flag.Parse()

	var nameHash *address.NameHash
	if *destName != "" {
		parts := strings.Split(*destName, ".")
		nh, err := address.NameHashFor(parts[0], parts[1:]...)
		if err != nil {
			fmt.Fprintln(os.Stderr, "Invalid destination name:", err)
			os.Exit(1)
		}
		nameHash = &nh
	}
	want := strings.ToLower(*prefix)
	if _, err := hex.DecodeString(want + strings.Repeat("0", len(want)%2)); err != nil {
		fmt.Fprintln(os.Stderr, "Invalid prefix:", err)
		os.Exit(1)
	}

	threads := runtime.GOMAXPROCS(0)
	var threadChannels []chan address.Hash
	var currentBest *address.Hash
	newKeys := make(chan keySet, threads)

	for i := 0; i < threads; i++ {
		threadChannels = append(threadChannels, make(chan address.Hash, threads))
		go doKeys(nameHash, newKeys, threadChannels[i])
	}

	for {
		newKey := <-newKeys
		if currentBest != nil && !isBetter(*currentBest, newKey.hash) {
			continue
		}
		currentBest = &newKey.hash
		for _, channel := range threadChannels {
			select {
			case channel <- newKey.hash:
			default:
			}
		}
		fmt.Println("--------------------------------------------------------------------------------")
		fmt.Println("PrivateKey:", hex.EncodeToString(newKey.priv))
		fmt.Println("Identity:", newKey.id.String())
		if nameHash != nil {
			fmt.Println("Destination:", newKey.hash.String())
		}
		if want != "" && strings.HasPrefix(newKey.hash.String(), want) {
			return
		}
	}
}

func isBetter(oldHash, newHash address.Hash) bool {
	return bytes.Compare(newHash[:], oldHash[:]) < 0
}

func doKeys(nameHash *address.NameHash, out chan<- keySet, in <-chan address.Hash) {
	bestHash := address.Hash{}
	for idx := range bestHash {
		bestHash[idx] = 0xff
	}
	for {
		select {
		case newBestHash := <-in:
			if isBetter(bestHash, newBestHash) {
				bestHash = newBestHash
			}
		default:
		}
		id := identity.New()
		idHash := id.Hash()
		hash := idHash
		if nameHash != nil {
			hash = address.DestinationHash(*nameHash, &idHash)
		}
		if !isBetter(bestHash, hash) {
			continue
		}
		bestHash = hash
		out <- keySet{id.PrivateKey(), idHash, hash}
	}
}
