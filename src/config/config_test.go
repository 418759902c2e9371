package config

import (
	"bytes"
	"encoding/hex"
	"strings"
	"testing"
	"time"

	"github.com/hjson/hjson-go/v4"
	"golang.org/x/text/encoding/unicode"

	"github.com/yggdrasil-network/rnsmesh/src/core"
)

func TestConfig_Keys(t *testing.T) {
	var nodeConfig NodeConfig
	nodeConfig.NewKeys()

	privateKey1, err := hex.DecodeString(nodeConfig.PrivateKey)
	if err != nil {
		t.Fatal("can not decode generated private key")
	}
	if len(privateKey1) != 64 {
		t.Fatalf("generated private key has length %d", len(privateKey1))
	}

	id1, err := nodeConfig.Identity()
	if err != nil {
		t.Fatal(err)
	}

	nodeConfig.NewKeys()

	privateKey2, err := hex.DecodeString(nodeConfig.PrivateKey)
	if err != nil {
		t.Fatal("can not decode generated private key")
	}
	if bytes.Equal(privateKey2, privateKey1) {
		t.Fatal("same private key generated")
	}

	id2, err := nodeConfig.Identity()
	if err != nil {
		t.Fatal(err)
	}
	if id1.Hash() == id2.Hash() {
		t.Fatal("same identity hash generated")
	}
}

func TestConfig_IdentityErrors(t *testing.T) {
	var cfg NodeConfig
	if _, err := cfg.Identity(); err != ErrNoPrivateKey {
		t.Fatalf("expected ErrNoPrivateKey, got %v", err)
	}
	cfg.PrivateKey = "zz"
	if _, err := cfg.Identity(); err == nil {
		t.Fatal("non-hex key accepted")
	}
	cfg.PrivateKey = "0011"
	if _, err := cfg.Identity(); err == nil {
		t.Fatal("short key accepted")
	}
}

func TestConfig_GenerateRoundTrip(t *testing.T) {
	generated := GenerateConfig()
	bs, err := hjson.Marshal(generated)
	if err != nil {
		t.Fatal(err)
	}

	cfg := new(NodeConfig)
	if _, err := cfg.ReadFrom(bytes.NewReader(bs)); err != nil {
		t.Fatal(err)
	}
	if cfg.PrivateKey != generated.PrivateKey {
		t.Fatal("private key changed")
	}
	if cfg.AdminListen != generated.AdminListen || cfg.StoragePath != generated.StoragePath {
		t.Fatalf("paths changed: %+v", cfg)
	}
	if len(cfg.Interfaces) != 1 || cfg.Interfaces[0]["Type"] != "TCPServerInterface" {
		t.Fatalf("unexpected interfaces %v", cfg.Interfaces)
	}
}

func TestConfig_ReadFrom(t *testing.T) {
	key := hex.EncodeToString(bytes.Repeat([]byte{1}, 64))
	conf := `{
  # comments are allowed
  PrivateKey: "` + key + `"
  EnableTransport: true
  KnownDestinationsBackend: sqlite
  AnnounceRateTarget: "3600"
  AnnounceRateGrace: 2
  Interfaces: [
    {
      Type: UDPInterface
      ForwardIP: "255.255.255.255"
      ForwardPort: 4242
    }
  ]
}`
	cfg := GenerateConfig()
	if _, err := cfg.ReadFrom(strings.NewReader(conf)); err != nil {
		t.Fatal(err)
	}
	if cfg.PrivateKey != key {
		t.Fatal("private key not read")
	}
	if !cfg.EnableTransport || cfg.KnownDestinationsBackend != BackendSQLite {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.AnnounceRateTarget != 3600 || cfg.AnnounceRateGrace != 2 {
		t.Fatalf("announce rate not read: %+v", cfg)
	}
	// The configured list replaces the generated one entirely.
	if len(cfg.Interfaces) != 1 {
		t.Fatalf("expected one interface, got %d", len(cfg.Interfaces))
	}
	if _, ok := cfg.Interfaces[0]["ListenIP"]; ok {
		t.Fatal("generated interface keys leaked into the configured one")
	}
	if cfg.Interfaces[0]["Type"] != "UDPInterface" {
		t.Fatalf("unexpected interface %v", cfg.Interfaces[0])
	}
	// Values not present in the file keep their defaults.
	if cfg.AdminListen == "" {
		t.Fatal("default admin listen address lost")
	}
}

func TestConfig_ReadFromUTF16(t *testing.T) {
	key := hex.EncodeToString(bytes.Repeat([]byte{2}, 64))
	conf := `{ "PrivateKey": "` + key + `", "EnableTransport": true }`
	encoder := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewEncoder()
	encoded, err := encoder.Bytes([]byte(conf))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(encoded, []byte{0xFF, 0xFE}) {
		t.Fatal("encoder did not write a byte order mark")
	}
	cfg := new(NodeConfig)
	if _, err := cfg.ReadFrom(bytes.NewReader(encoded)); err != nil {
		t.Fatal(err)
	}
	if cfg.PrivateKey != key || !cfg.EnableTransport {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestConfig_ReadFromErrors(t *testing.T) {
	cfg := GenerateConfig()
	if _, err := cfg.ReadFrom(strings.NewReader("{ unterminated")); err == nil {
		t.Fatal("broken config accepted")
	}
	cfg = GenerateConfig()
	if _, err := cfg.ReadFrom(strings.NewReader("{\n  KnownDestinationsBackend: tape\n}")); err == nil {
		t.Fatal("unknown backend accepted")
	}
}

func TestConfig_CoreOptions(t *testing.T) {
	cfg := &NodeConfig{
		EnableTransport:     true,
		AnnounceRateTarget:  60,
		AnnounceRateGrace:   3,
		AnnounceRatePenalty: 10,
		PersistInterval:     30,
	}
	var transport, rate, persist bool
	for _, opt := range cfg.CoreOptions() {
		switch v := opt.(type) {
		case core.EnableTransport:
			transport = bool(v)
		case core.AnnounceRate:
			rate = v.Target == time.Minute && v.Grace == 3 && v.Penalty == 10*time.Second
		case core.PersistInterval:
			persist = time.Duration(v) == 30*time.Second
		}
	}
	if !transport || !rate || !persist {
		t.Fatalf("options not translated: transport=%v rate=%v persist=%v", transport, rate, persist)
	}

	for _, opt := range new(NodeConfig).CoreOptions() {
		if _, ok := opt.(core.AnnounceRate); ok {
			t.Fatal("rate limiting enabled without a target")
		}
	}
}
