package buffer

import (
	"bytes"
	"sort"
	"sync"
	"testing"
)

func TestBytes_CopyOnWrite(t *testing.T) {
	b1 := FromString("hello")
	b2 := b1
	b2.AppendString(" world")
	if b1.String() != "hello" {
		t.Fatalf("original changed after append to copy: %q", b1.String())
	}
	if b2.String() != "hello world" {
		t.Fatalf("unexpected copy contents: %q", b2.String())
	}

	// The original can still append after the copy took the tail.
	b1.AppendString("!")
	if b1.String() != "hello!" || b2.String() != "hello world" {
		t.Fatalf("views interfered: %q %q", b1.String(), b2.String())
	}
}

func TestBytes_ShrinkThenGrowDoesNotLeak(t *testing.T) {
	b1 := New([]byte{1, 2, 3, 4, 5, 6, 7, 8})
	b2 := b1
	b1.Resize(2)
	b1.Resize(8)
	if !b2.EqualBytes([]byte{1, 2, 3, 4, 5, 6, 7, 8}) {
		t.Fatalf("copy observed resize: %v", b2.Bytes())
	}
	if !b1.EqualBytes([]byte{1, 2, 0, 0, 0, 0, 0, 0}) {
		t.Fatalf("resize did not zero pad: %v", b1.Bytes())
	}
}

func TestBytes_AssignShares(t *testing.T) {
	src := FromString("abc")
	var dst Bytes
	dst.Assign(src)
	dst.AppendString("d")
	if src.String() != "abc" || dst.String() != "abcd" {
		t.Fatalf("assign did not copy on write: %q %q", src.String(), dst.String())
	}
	dst.AssignBytes([]byte("xyz"))
	if dst.String() != "xyz" || src.String() != "abc" {
		t.Fatalf("unexpected after AssignBytes: %q %q", src.String(), dst.String())
	}
}

func TestBytes_Slicing(t *testing.T) {
	b := FromString("0123456789")
	tests := []struct {
		name string
		got  Bytes
		want string
	}{
		{"left", b.Left(3), "012"},
		{"left clamped", b.Left(50), "0123456789"},
		{"right", b.Right(4), "6789"},
		{"right clamped", b.Right(50), "0123456789"},
		{"mid", b.Mid(2, 3), "234"},
		{"mid to end", b.Mid(7), "789"},
		{"mid clamped", b.Mid(8, 10), "89"},
		{"mid past end", b.Mid(20), ""},
	}
	for _, test := range tests {
		if test.got.String() != test.want {
			t.Errorf("%s: got %q, want %q", test.name, test.got.String(), test.want)
		}
	}

	// Appending to a slice must not change the parent.
	left := b.Left(3)
	left.AppendString("x")
	if b.String() != "0123456789" || left.String() != "012x" {
		t.Fatalf("slice append leaked: %q %q", b.String(), left.String())
	}
	right := b.Right(2)
	right.AppendString("y")
	b.AppendString("z")
	if b.String() != "0123456789z" || right.String() != "89y" {
		t.Fatalf("tail views interfered: %q %q", b.String(), right.String())
	}
}

func TestBytes_HexAndBool(t *testing.T) {
	var empty Bytes
	if empty.Bool() {
		t.Fatal("empty buffer is true")
	}
	b, err := FromHex("deadbeef")
	if err != nil {
		t.Fatal(err)
	}
	if !b.Bool() || b.Hex() != "deadbeef" || b.Len() != 4 {
		t.Fatalf("hex round trip failed: %s", b.Hex())
	}
	if _, err := FromHex("zz"); err == nil {
		t.Fatal("invalid hex accepted")
	}
}

func TestBytes_Ordering(t *testing.T) {
	values := []Bytes{
		FromString("b"),
		FromString("ab"),
		{},
		FromString("a"),
		FromString("abc"),
	}
	sort.Slice(values, func(i, j int) bool { return values[i].Compare(values[j]) < 0 })
	want := []string{"", "a", "ab", "abc", "b"}
	for i := range want {
		if values[i].String() != want[i] {
			t.Fatalf("position %d: got %q, want %q", i, values[i].String(), want[i])
		}
	}
	if !FromString("x").Equal(New([]byte("x"))) {
		t.Fatal("equal content compared unequal")
	}
	if FromString("x").Compare(FromString("x")) != 0 {
		t.Fatal("compare not consistent with equal")
	}
	m := map[string]int{FromString("k").Key(): 1}
	if m[New([]byte("k")).Key()] != 1 {
		t.Fatal("key lookup failed")
	}
}

func TestBytes_ReadOnlyViewCannotGrowStore(t *testing.T) {
	b := FromString("abc")
	view := b.Bytes()
	view = append(view, 'd')
	b.AppendString("e")
	if b.String() != "abce" || string(view) != "abcd" {
		t.Fatalf("view append wrote into store: %q %q", b.String(), view)
	}
}

func TestBytes_ConcurrentCopies(t *testing.T) {
	base := FromString("base")
	base.Grow(1024)
	var wg sync.WaitGroup
	results := make([]Bytes, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c := base
			c.AppendByte(byte(i))
			results[i] = c
		}(i)
	}
	wg.Wait()
	for i, r := range results {
		if !bytes.Equal(r.Bytes(), append([]byte("base"), byte(i))) {
			t.Fatalf("copy %d corrupted: %v", i, r.Bytes())
		}
	}
	if base.String() != "base" {
		t.Fatalf("base changed: %q", base.String())
	}
}
