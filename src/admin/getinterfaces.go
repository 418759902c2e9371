package admin

import (
	"slices"
	"strings"
)

type GetInterfacesRequest struct{}

type GetInterfacesResponse struct {
	Interfaces []InterfaceEntry `json:"interfaces"`
}

type InterfaceEntry struct {
	Name      string   `json:"name"`
	Mode      string   `json:"mode"`
	Direction string   `json:"direction"`
	Online    bool     `json:"online"`
	RXBytes   DataUnit `json:"bytes_recvd"`
	TXBytes   DataUnit `json:"bytes_sent"`
	RXPackets uint64   `json:"packets_recvd"`
	TXPackets uint64   `json:"packets_sent"`
}

func (a *AdminSocket) getInterfacesHandler(_ *GetInterfacesRequest, res *GetInterfacesResponse) error {
	ifaces := a.core.GetInterfaces()
	res.Interfaces = make([]InterfaceEntry, 0, len(ifaces))
	for _, i := range ifaces {
		res.Interfaces = append(res.Interfaces, InterfaceEntry{
			Name:      i.Name,
			Mode:      i.Mode,
			Direction: i.Direction,
			Online:    i.Online,
			RXBytes:   DataUnit(i.RXBytes),
			TXBytes:   DataUnit(i.TXBytes),
			RXPackets: i.RXPackets,
			TXPackets: i.TXPackets,
		})
	}
	slices.SortStableFunc(res.Interfaces, func(a, b InterfaceEntry) int {
		return strings.Compare(a.Name, b.Name)
	})
	return nil
}
