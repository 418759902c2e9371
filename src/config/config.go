/*
The config package contains structures related to the configuration of an
rnsmesh node.

The configuration contains, amongst other things, the node identity, the
transport and announce rate settings, the admin socket address and the list
of interfaces the node should bring up.

In order for a node to maintain the same identity across restarts, you
should persist the configuration onto the filesystem or into some
configuration store so that the previous configuration can be loaded.
*/
package config

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"github.com/hjson/hjson-go/v4"
	"github.com/mitchellh/mapstructure"
	"golang.org/x/text/encoding/unicode"

	"github.com/yggdrasil-network/rnsmesh/src/core"
	"github.com/yggdrasil-network/rnsmesh/src/defaults"
	"github.com/yggdrasil-network/rnsmesh/src/identity"
)

// Backends for the known destinations cache.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// NodeConfig is the main configuration structure, containing configuration
// options that are necessary for an rnsmesh node to run. You will need to
// supply one of these structs to the rnsmesh core when starting a node.
type NodeConfig struct {
	PrivateKey               string                   `comment:"Your private key, an X25519 key followed by an Ed25519 seed, in hex.\nDO NOT share this with anyone! Your identity hash and every\ndestination you announce are derived from it."`
	EnableTransport          bool                     `comment:"Forward packets, rebroadcast announces and answer path requests\nfor other nodes. Leave this off unless the node is a stable part of\nthe network infrastructure."`
	StoragePath              string                   `comment:"Directory where known destinations and the path table are kept."`
	KnownDestinationsBackend string                   `comment:"Where known destinations are stored, either \"file\" or \"sqlite\"."`
	AdminListen              string                   `comment:"Listen address for admin connections. Default is to listen for local\nconnections either on TCP/9001 or a UNIX socket depending on your\nplatform. Use this value for rnsctl -endpoint=X. To disable\nthe admin socket, use the value \"none\" instead."`
	AnnounceRateTarget       int                      `comment:"Minimum number of seconds between rebroadcast announces for the\nsame destination. Zero disables announce rate limiting."`
	AnnounceRateGrace        int                      `comment:"Number of announces above the rate target tolerated before the\ndestination is blocked."`
	AnnounceRatePenalty      int                      `comment:"Extra seconds a rate-violating destination stays blocked."`
	PersistInterval          int                      `comment:"How often, in seconds, the known destinations and path table are\nwritten to storage. They are always written on shutdown."`
	Interfaces               []map[string]interface{} `comment:"Interfaces to bring up. Each one needs a Type (TCPServerInterface,\nTCPClientInterface, UDPInterface, WebSocketInterface or AutoInterface)\nand the keys for that type, e.g. { Type: TCPClientInterface,\nTargetHost: a.b.c.d, TargetPort: 4242 }. Common keys are Name, Enabled, Mode, Direction\nand Framing (hdlc or kiss)."`
}

type configError string

func (e configError) Error() string { return string(e) }

const ErrNoPrivateKey = configError("no private key in configuration")
const ErrBadBackend = configError("unknown known destinations backend")

// Generates default configuration and returns a pointer to the resulting
// NodeConfig. This is used when outputting the -genconf parameter and also
// when using -autoconf.
func GenerateConfig() *NodeConfig {
	cfg := new(NodeConfig)
	cfg.NewKeys()
	cfg.EnableTransport = false
	cfg.StoragePath = defaults.GetDefaults().DefaultStoragePath
	cfg.KnownDestinationsBackend = BackendFile
	cfg.AdminListen = defaults.GetDefaults().DefaultAdminListen
	cfg.PersistInterval = 12 * 60 * 60
	cfg.Interfaces = []map[string]interface{}{
		{
			"Type":       "TCPServerInterface",
			"Name":       "Default TCP server",
			"Enabled":    false,
			"ListenIP":   "0.0.0.0",
			"ListenPort": 4242,
		},
	}
	return cfg
}

// NewKeys replaces the private key with a freshly generated one.
func (cfg *NodeConfig) NewKeys() {
	cfg.PrivateKey = hex.EncodeToString(identity.New().PrivateKey())
}

// Identity loads the node identity from the private key.
func (cfg *NodeConfig) Identity() (*identity.Identity, error) {
	if cfg.PrivateKey == "" {
		return nil, ErrNoPrivateKey
	}
	key, err := hex.DecodeString(cfg.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("private key: %w", err)
	}
	return identity.FromPrivateKey(key)
}

// ReadFrom reads HJSON or JSON configuration from r and applies it on top
// of whatever is already in cfg. UTF-16 input with a byte order mark is
// transcoded first.
func (cfg *NodeConfig) ReadFrom(r io.Reader) (int64, error) {
	conf, err := io.ReadAll(r)
	if err != nil {
		return 0, err
	}
	n := int64(len(conf))
	// If there's a byte order mark - which Windows 10 is now incredibly fond of
	// throwing everywhere when it's converting things into UTF-16 for the hell
	// of it - remove it and decode back down into UTF-8. This is necessary
	// because hjson doesn't know what to do with UTF-16 and will panic
	if bytes.HasPrefix(conf, []byte{0xFF, 0xFE}) ||
		bytes.HasPrefix(conf, []byte{0xFE, 0xFF}) {
		utf := unicode.UTF16(unicode.BigEndian, unicode.UseBOM)
		decoder := utf.NewDecoder()
		conf, err = decoder.Bytes(conf)
		if err != nil {
			return n, err
		}
	}
	conf = bytes.TrimPrefix(conf, []byte{0xEF, 0xBB, 0xBF})

	var dat map[string]interface{}
	if err := hjson.Unmarshal(conf, &dat); err != nil {
		return n, err
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		ZeroFields:       true,
		Result:           cfg,
	})
	if err != nil {
		return n, err
	}
	if err := decoder.Decode(dat); err != nil {
		return n, err
	}
	return n, cfg.Validate()
}

// Validate checks the values that cannot be checked by decoding alone.
func (cfg *NodeConfig) Validate() error {
	if _, err := cfg.Identity(); err != nil {
		return err
	}
	switch cfg.KnownDestinationsBackend {
	case "", BackendFile, BackendSQLite:
	default:
		return fmt.Errorf("%w: %q", ErrBadBackend, cfg.KnownDestinationsBackend)
	}
	return nil
}

// CoreOptions translates the transport settings into options for core.New.
// Storage options are left to the caller, which owns the filesystem and
// database handles.
func (cfg *NodeConfig) CoreOptions() []core.SetupOption {
	opts := []core.SetupOption{
		core.EnableTransport(cfg.EnableTransport),
	}
	if cfg.AnnounceRateTarget > 0 {
		opts = append(opts, core.AnnounceRate{
			Target:  time.Duration(cfg.AnnounceRateTarget) * time.Second,
			Grace:   cfg.AnnounceRateGrace,
			Penalty: time.Duration(cfg.AnnounceRatePenalty) * time.Second,
		})
	}
	if cfg.PersistInterval > 0 {
		opts = append(opts, core.PersistInterval(time.Duration(cfg.PersistInterval)*time.Second))
	}
	return opts
}
