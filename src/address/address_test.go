package address

import (
	"crypto/sha256"
	"math/rand"
	"testing"
)

func TestAddress_Hash_Hex(t *testing.T) {
	var h Hash
	rand.Read(h[:])

	parsed, err := HashFromHex(h.String())
	if err != nil {
		t.Fatal(err)
	}
	if parsed != h {
		t.Fatal("hex round trip changed the hash")
	}
	if _, err := HashFromHex("abcd"); err != ErrInvalidLength {
		t.Fatalf("short hash accepted: %v", err)
	}
	if _, err := HashFromBytes(make([]byte, 17)); err != ErrInvalidLength {
		t.Fatalf("long hash accepted: %v", err)
	}
	if !(Hash{}).IsZero() {
		t.Fatal("IsZero is wrong")
	}
}

func TestAddress_ExpandName(t *testing.T) {
	name, err := ExpandName(nil, "app", "a", "b")
	if err != nil || name != "app.a.b" {
		t.Fatalf("got %q, %v", name, err)
	}
	var id Hash
	id[0] = 0xff
	name, err = ExpandName(&id, "app", "a")
	if err != nil || name != "app.a.ff000000000000000000000000000000" {
		t.Fatalf("got %q, %v", name, err)
	}
	if _, err := ExpandName(nil, "app.x"); err != ErrInvalidName {
		t.Fatal("dotted app name accepted")
	}
	if _, err := ExpandName(nil, "app", "a.b"); err != ErrInvalidName {
		t.Fatal("dotted aspect accepted")
	}
}

func TestAddress_DestinationHash(t *testing.T) {
	nh, err := NameHashFor("app", "a", "b")
	if err != nil {
		t.Fatal(err)
	}
	sum := sha256.Sum256([]byte("app.a.b"))
	if string(nh[:]) != string(sum[:NameHashLength]) {
		t.Fatal("name hash is not the truncated hash of the dotted name")
	}

	var id Hash
	rand.Read(id[:])
	material := append(append([]byte{}, nh[:]...), id[:]...)
	want := sha256.Sum256(material)
	got := DestinationHash(nh, &id)
	if string(got[:]) != string(want[:Length]) {
		t.Fatal("destination hash mismatch")
	}

	plain := DestinationHash(nh, nil)
	wantPlain := sha256.Sum256(nh[:])
	if string(plain[:]) != string(wantPlain[:Length]) {
		t.Fatal("plain destination hash mismatch")
	}
	if plain == got {
		t.Fatal("identity did not change the destination hash")
	}
}
