package packet

import "fmt"

// Type is the packet type carried in the two low bits of the header byte.
type Type uint8

const (
	TypeData Type = iota
	TypeAnnounce
	TypeLinkRequest
	TypeProof
)

func (t Type) String() string {
	switch t {
	case TypeData:
		return "DATA"
	case TypeAnnounce:
		return "ANNOUNCE"
	case TypeLinkRequest:
		return "LINKREQUEST"
	case TypeProof:
		return "PROOF"
	}
	return fmt.Sprintf("Type(%d)", uint8(t))
}

// HeaderType selects between the short header and the header carrying a
// transport id.
type HeaderType uint8

const (
	Header1 HeaderType = iota // destination only
	Header2                   // transport id and destination
)

// TransportType is how the packet travels. Only Broadcast and Transport fit
// in the header; Relay and Tunnel are used locally by the router.
type TransportType uint8

const (
	Broadcast TransportType = iota
	Transport
	Relay
	Tunnel
)

func (t TransportType) String() string {
	switch t {
	case Broadcast:
		return "BROADCAST"
	case Transport:
		return "TRANSPORT"
	case Relay:
		return "RELAY"
	case Tunnel:
		return "TUNNEL"
	}
	return fmt.Sprintf("TransportType(%d)", uint8(t))
}

// DestinationType is the kind of destination a packet is addressed to.
type DestinationType uint8

const (
	Single DestinationType = iota
	Group
	Plain
	Link
)

func (t DestinationType) String() string {
	switch t {
	case Single:
		return "SINGLE"
	case Group:
		return "GROUP"
	case Plain:
		return "PLAIN"
	case Link:
		return "LINK"
	}
	return fmt.Sprintf("DestinationType(%d)", uint8(t))
}

// Context tells the receiver how to interpret the payload.
type Context uint8

const (
	ContextNone          Context = 0x00
	ContextResource      Context = 0x01
	ContextResourceAdv   Context = 0x02
	ContextResourceReq   Context = 0x03
	ContextResourceHMU   Context = 0x04
	ContextResourcePRF   Context = 0x05
	ContextResourceICL   Context = 0x06
	ContextResourceRCL   Context = 0x07
	ContextCacheRequest  Context = 0x08
	ContextRequest       Context = 0x09
	ContextResponse      Context = 0x0A
	ContextPathResponse  Context = 0x0B
	ContextCommand       Context = 0x0C
	ContextCommandStatus Context = 0x0D
	ContextChannel       Context = 0x0E
	ContextKeepalive     Context = 0xFA
	ContextLinkIdentify  Context = 0xFB
	ContextLinkClose     Context = 0xFC
	ContextLinkProof     Context = 0xFD
	ContextLRRTT         Context = 0xFE
	ContextLRProof       Context = 0xFF
)

var contextNames = map[Context]string{
	ContextNone:          "NONE",
	ContextResource:      "RESOURCE",
	ContextResourceAdv:   "RESOURCE_ADV",
	ContextResourceReq:   "RESOURCE_REQ",
	ContextResourceHMU:   "RESOURCE_HMU",
	ContextResourcePRF:   "RESOURCE_PRF",
	ContextResourceICL:   "RESOURCE_ICL",
	ContextResourceRCL:   "RESOURCE_RCL",
	ContextCacheRequest:  "CACHE_REQUEST",
	ContextRequest:       "REQUEST",
	ContextResponse:      "RESPONSE",
	ContextPathResponse:  "PATH_RESPONSE",
	ContextCommand:       "COMMAND",
	ContextCommandStatus: "COMMAND_STATUS",
	ContextChannel:       "CHANNEL",
	ContextKeepalive:     "KEEPALIVE",
	ContextLinkIdentify:  "LINKIDENTIFY",
	ContextLinkClose:     "LINKCLOSE",
	ContextLinkProof:     "LINKPROOF",
	ContextLRRTT:         "LRRTT",
	ContextLRProof:       "LRPROOF",
}

func (c Context) String() string {
	if name, ok := contextNames[c]; ok {
		return name
	}
	return fmt.Sprintf("Context(0x%02x)", uint8(c))
}
