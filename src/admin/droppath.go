package admin

import (
	"fmt"

	"github.com/yggdrasil-network/rnsmesh/src/address"
)

type DropPathRequest struct {
	Destination string `json:"destination"`
}

type DropPathResponse struct {
	Dropped bool `json:"dropped"`
}

func (a *AdminSocket) dropPathHandler(req *DropPathRequest, res *DropPathResponse) error {
	dest, err := address.HashFromHex(req.Destination)
	if err != nil {
		return fmt.Errorf("destination: %w", err)
	}
	res.Dropped = a.core.Transport().DropPath(dest)
	return nil
}

type DropAllViaRequest struct {
	TransportID string `json:"transport_id"`
}

type DropAllViaResponse struct {
	Dropped int `json:"dropped"`
}

func (a *AdminSocket) dropAllViaHandler(req *DropAllViaRequest, res *DropAllViaResponse) error {
	via, err := address.HashFromHex(req.TransportID)
	if err != nil {
		return fmt.Errorf("transport_id: %w", err)
	}
	res.Dropped = a.core.Transport().DropAllVia(via)
	return nil
}

type DropAnnounceQueuesRequest struct{}

type DropAnnounceQueuesResponse struct {
	Dropped int `json:"dropped"`
}

func (a *AdminSocket) dropAnnounceQueuesHandler(_ *DropAnnounceQueuesRequest, res *DropAnnounceQueuesResponse) error {
	res.Dropped = a.core.Transport().DropAnnounceQueues()
	return nil
}
