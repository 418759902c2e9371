package multicast

import (
	"crypto/subtle"
	"net"

	"github.com/yggdrasil-network/rnsmesh/src/crypto"
)

// GroupAddress derives the link-local multicast group for a group ID:
// ff12:0 followed by six words of the group ID's hash.
func GroupAddress(groupID []byte) net.IP {
	g := crypto.FullHash(groupID)
	ip := make(net.IP, net.IPv6len)
	ip[0], ip[1] = 0xff, 0x12
	copy(ip[4:], g[2:14])
	return ip
}

// Token is the beacon a node sends from its link-local address ip.
func Token(groupID []byte, ip net.IP) []byte {
	material := make([]byte, 0, len(groupID)+40)
	material = append(material, groupID...)
	material = append(material, ip.String()...)
	return crypto.FullHash(material)
}

// ValidToken reports whether token was made for ip in this group.
func ValidToken(groupID []byte, ip net.IP, token []byte) bool {
	return subtle.ConstantTimeCompare(Token(groupID, ip), token) == 1
}
