package core

import (
	"fmt"
	"strings"
	"time"
)

// Direction says whether an interface may receive, transmit or both.
type Direction uint8

const (
	DirectionIn Direction = 1 << iota
	DirectionOut

	DirectionBoth = DirectionIn | DirectionOut
)

func (d Direction) In() bool  { return d&DirectionIn != 0 }
func (d Direction) Out() bool { return d&DirectionOut != 0 }

func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "in"
	case DirectionOut:
		return "out"
	case DirectionBoth:
		return "in/out"
	}
	return "none"
}

// InterfaceMode changes how paths learned on an interface age and whether
// path requests heard on it are passed on.
type InterfaceMode uint8

const (
	ModeFull InterfaceMode = iota
	ModePointToPoint
	ModeAccessPoint
	ModeRoaming
	ModeBoundary
	ModeGateway
)

var modeNames = map[InterfaceMode]string{
	ModeFull:         "full",
	ModePointToPoint: "pointtopoint",
	ModeAccessPoint:  "accesspoint",
	ModeRoaming:      "roaming",
	ModeBoundary:     "boundary",
	ModeGateway:      "gateway",
}

func (m InterfaceMode) String() string {
	if s, ok := modeNames[m]; ok {
		return s
	}
	return fmt.Sprintf("mode(%d)", uint8(m))
}

// ParseInterfaceMode accepts the mode names used in configuration files.
// The empty string selects ModeFull.
func ParseInterfaceMode(s string) (InterfaceMode, error) {
	switch strings.ToLower(strings.ReplaceAll(s, "_", "")) {
	case "", "full":
		return ModeFull, nil
	case "pointtopoint", "ptp":
		return ModePointToPoint, nil
	case "accesspoint", "ap":
		return ModeAccessPoint, nil
	case "roaming":
		return ModeRoaming, nil
	case "boundary":
		return ModeBoundary, nil
	case "gateway", "gw":
		return ModeGateway, nil
	}
	return ModeFull, fmt.Errorf("unknown interface mode %q", s)
}

// pathExpiry is how long a path learned on an interface of this mode stays
// valid without a fresh announce.
func (m InterfaceMode) pathExpiry() time.Duration {
	switch m {
	case ModeAccessPoint:
		return APPathTime
	case ModeRoaming:
		return RoamingPathTime
	}
	return PathfinderE
}

// discoversPaths is true for modes on which unanswerable path requests are
// passed on to the rest of the network.
func (m InterfaceMode) discoversPaths() bool {
	return m == ModeAccessPoint || m == ModeGateway || m == ModeRoaming
}

// InterfaceStats are the traffic counters of one interface.
type InterfaceStats struct {
	RXBytes   uint64
	TXBytes   uint64
	RXPackets uint64
	TXPackets uint64
	Online    bool
}

// Interface is a carrier for packets. Implementations run their own
// goroutines and hand every complete received frame to the incoming
// handler. Send must not block for long: the transport calls it from its
// actor.
type Interface interface {
	Name() string
	Start() error
	Stop() error
	Send(frame []byte) error
	SetIncomingHandler(func(frame []byte))
	Direction() Direction
	Mode() InterfaceMode
	Stats() InterfaceStats
}
