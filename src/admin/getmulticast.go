package admin

import (
	"sort"

	"github.com/yggdrasil-network/rnsmesh/src/multicast"
)

type GetMulticastInterfacesRequest struct{}
type GetMulticastInterfacesResponse struct {
	Interfaces []MulticastInterfaceEntry `json:"multicast_interfaces"`
}

type MulticastInterfaceEntry struct {
	Name  string `json:"name"`
	Group string `json:"group"`
	Peers int    `json:"peers"`
}

type GetMulticastPeersRequest struct {
	Interface string `json:"interface,omitempty"`
}
type GetMulticastPeersResponse struct {
	Peers []MulticastPeerEntry `json:"peers"`
}

type MulticastPeerEntry struct {
	Address   string  `json:"address"`
	Interface string  `json:"interface"`
	LastHeard float64 `json:"last_heard"`
}

func (a *AdminSocket) getMulticastInterfacesHandler(discovery []*multicast.Multicast, _ *GetMulticastInterfacesRequest, res *GetMulticastInterfacesResponse) error {
	res.Interfaces = []MulticastInterfaceEntry{}
	for _, d := range discovery {
		count := map[string]int{}
		for _, p := range d.Peers() {
			count[p.Interface]++
		}
		for _, name := range d.Interfaces() {
			res.Interfaces = append(res.Interfaces, MulticastInterfaceEntry{
				Name:  name,
				Group: d.GroupAddr().IP.String(),
				Peers: count[name],
			})
		}
	}
	return nil
}

func (a *AdminSocket) getMulticastPeersHandler(discovery []*multicast.Multicast, req *GetMulticastPeersRequest, res *GetMulticastPeersResponse) error {
	res.Peers = []MulticastPeerEntry{}
	for _, d := range discovery {
		for _, p := range d.Peers() {
			if req.Interface != "" && req.Interface != p.Interface {
				continue
			}
			res.Peers = append(res.Peers, MulticastPeerEntry{
				Address:   p.IP.String(),
				Interface: p.Interface,
				LastHeard: a.core.Since(p.LastHeard).Seconds(),
			})
		}
	}
	sort.SliceStable(res.Peers, func(i, j int) bool {
		return res.Peers[i].LastHeard < res.Peers[j].LastHeard
	})
	return nil
}

// SetupMulticastHandlers adds the handlers that inspect multicast discovery.
func (a *AdminSocket) SetupMulticastHandlers(discovery []*multicast.Multicast) {
	if a == nil || len(discovery) == 0 {
		return
	}
	_ = a.AddHandler("getMulticastInterfaces", "Show which system interfaces multicast discovery uses", []string{}, func(in Info) (interface{}, error) {
		req := &GetMulticastInterfacesRequest{}
		res := &GetMulticastInterfacesResponse{}
		if err := decodeArgs(in, req); err != nil {
			return nil, err
		}
		if err := a.getMulticastInterfacesHandler(discovery, req, res); err != nil {
			return nil, err
		}
		return res, nil
	})
	_ = a.AddHandler("getMulticastPeers", "Show neighbours found by multicast discovery", []string{"[interface]"}, func(in Info) (interface{}, error) {
		req := &GetMulticastPeersRequest{}
		res := &GetMulticastPeersResponse{}
		if err := decodeArgs(in, req); err != nil {
			return nil, err
		}
		if err := a.getMulticastPeersHandler(discovery, req, res); err != nil {
			return nil, err
		}
		return res, nil
	})
}
