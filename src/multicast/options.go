package multicast

import (
	"regexp"
	"time"
)

func (m *Multicast) _applyOption(opt SetupOption) {
	switch v := opt.(type) {
	case GroupID:
		m.config.groupID = []byte(v)
	case MulticastInterface:
		if v.Ignore {
			m.config.ignored = append(m.config.ignored, v.Regex)
		} else {
			m.config.devices = append(m.config.devices, v.Regex)
		}
	case DiscoveryPort:
		m.config.port = int(v)
	case AnnounceInterval:
		m.config.interval = time.Duration(v)
	case PeerTimeout:
		m.config.timeout = time.Duration(v)
	}
}

type SetupOption interface {
	isSetupOption()
}

// GroupID separates independent networks sharing a segment.
type GroupID string

// MulticastInterface selects system interfaces by name. With none given,
// every suitable interface is used.
type MulticastInterface struct {
	Regex  *regexp.Regexp
	Ignore bool
}

type DiscoveryPort uint16
type AnnounceInterval time.Duration
type PeerTimeout time.Duration

func (a GroupID) isSetupOption()            {}
func (a MulticastInterface) isSetupOption() {}
func (a DiscoveryPort) isSetupOption()      {}
func (a AnnounceInterval) isSetupOption()   {}
func (a PeerTimeout) isSetupOption()        {}
