package mobile

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"runtime/debug"
	"strings"
	"sync"

	"github.com/gologme/log"

	"github.com/yggdrasil-network/rnsmesh/src/address"
	"github.com/yggdrasil-network/rnsmesh/src/config"
	"github.com/yggdrasil-network/rnsmesh/src/core"
	"github.com/yggdrasil-network/rnsmesh/src/interfaces"
	"github.com/yggdrasil-network/rnsmesh/src/packet"
	"github.com/yggdrasil-network/rnsmesh/src/storage"
	"github.com/yggdrasil-network/rnsmesh/src/version"
)

// The mobile package is meant to "plug the gap" for mobile support, as
// Gomobile will not create headers for Swift/Obj-C etc if they have complex
// (non-native) types. Therefore we expose some nice simple functions that
// only take and return strings, byte slices and errors.
type Mesh struct {
	core         *core.Core
	config       *config.NodeConfig
	log          MobileLogger
	logger       *log.Logger
	mutex        sync.Mutex
	destinations map[string]*core.Destination
}

var errNotStarted = errors.New("node is not running")

// StartAutoconfigure starts a node with a randomly generated config
func (m *Mesh) StartAutoconfigure() error {
	return m.StartJSON([]byte("{}"))
}

// StartJSON starts a node with the given JSON config. You can get JSON config
// (rather than HJSON) by using the GenerateConfigJSON() function. Without a
// StoragePath nothing is written to disk.
func (m *Mesh) StartJSON(configjson []byte) error {
	setMemLimitIfPossible()
	if m.logger == nil {
		m.logger = log.New(m.log, "", 0)
		m.logger.EnableLevel("error")
		m.logger.EnableLevel("warn")
		m.logger.EnableLevel("info")
	}
	m.config = config.GenerateConfig()
	m.config.StoragePath = ""
	m.config.AdminListen = "none"
	if _, err := m.config.ReadFrom(bytes.NewReader(configjson)); err != nil {
		return err
	}
	id, err := m.config.Identity()
	if err != nil {
		return err
	}
	options := m.config.CoreOptions()
	if m.config.StoragePath != "" {
		fs, err := storage.NewOSFS(m.config.StoragePath)
		if err != nil {
			return err
		}
		options = append(options, core.Storage{Filesystem: fs})
	} else {
		options = append(options, core.Storage{Filesystem: storage.NewMemoryFS(0)})
	}
	if m.core, err = core.New(id, m.logger, options...); err != nil {
		m.logger.Errorln("An error occurred starting the node:", err)
		return err
	}
	for _, section := range m.config.Interfaces {
		iface, err := interfaces.FromConfig(section, m.logger)
		if errors.Is(err, interfaces.ErrDisabled) {
			continue
		}
		if err == nil {
			err = m.core.Transport().RegisterInterface(iface)
		}
		if err != nil {
			m.logger.Errorln("An error occurred starting an interface:", err)
			m.core.Stop()
			m.core = nil
			return err
		}
	}
	m.destinations = make(map[string]*core.Destination)
	return nil
}

// Stop the mobile node
func (m *Mesh) Stop() error {
	if m.core == nil {
		return nil
	}
	m.logger.Infoln("Stopping the mobile node")
	m.core.Stop()
	m.core = nil
	return nil
}

// Announce makes a destination of this node's identity known to the
// network and returns its hash in hex. The name is dotted, for example
// "chat.inbox".
func (m *Mesh) Announce(name string, appData []byte) (string, error) {
	if m.core == nil {
		return "", errNotStarted
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()
	dest, ok := m.destinations[name]
	if !ok {
		parts := strings.Split(name, ".")
		var err error
		dest, err = m.core.NewDestination(m.core.Identity(), core.DirectionIn, packet.Single, parts[0], parts[1:]...)
		if err != nil {
			return "", err
		}
		m.destinations[name] = dest
	}
	if err := dest.Announce(appData, false); err != nil {
		return "", err
	}
	return dest.Hash().String(), nil
}

// RequestPath asks the network for a path to the destination in hex.
func (m *Mesh) RequestPath(destination string) error {
	if m.core == nil {
		return errNotStarted
	}
	dest, err := address.HashFromHex(destination)
	if err != nil {
		return err
	}
	return m.core.Transport().RequestPath(dest)
}

// HasPath reports whether a path to the destination in hex is known.
func (m *Mesh) HasPath(destination string) bool {
	if m.core == nil {
		return false
	}
	dest, err := address.HashFromHex(destination)
	if err != nil {
		return false
	}
	return m.core.Transport().HasPath(dest)
}

// GenerateConfigJSON generates mobile-friendly configuration in JSON format
func GenerateConfigJSON() []byte {
	nc := config.GenerateConfig()
	nc.StoragePath = ""
	nc.AdminListen = "none"
	if json, err := json.Marshal(nc); err == nil {
		return json
	}
	return nil
}

// GetIdentityHashString gets the node's identity hash in hex form
func (m *Mesh) GetIdentityHashString() string {
	if m.core == nil {
		return ""
	}
	return m.core.Identity().HexHash()
}

// GetPublicKeyString gets the node's public key in hex form
func (m *Mesh) GetPublicKeyString() string {
	if m.core == nil {
		return ""
	}
	return hex.EncodeToString(m.core.Identity().PublicKey())
}

func (m *Mesh) GetPathsJSON() (result string) {
	if m.core == nil {
		return "[]"
	}
	return toJSON(m.core.GetPaths())
}

func (m *Mesh) GetInterfacesJSON() (result string) {
	if m.core == nil {
		return "[]"
	}
	return toJSON(m.core.GetInterfaces())
}

func (m *Mesh) GetLinksJSON() (result string) {
	if m.core == nil {
		return "[]"
	}
	return toJSON(m.core.GetLinks())
}

func toJSON(v interface{}) string {
	if res, err := json.Marshal(v); err == nil {
		return string(res)
	}
	return "{}"
}

func GetVersion() string {
	return version.BuildVersion()
}

func setMemLimitIfPossible() {
	debug.SetMemoryLimit(1024 * 1024 * 40)
}
