package admin

import (
	"fmt"

	"github.com/yggdrasil-network/rnsmesh/src/address"
)

type RequestPathRequest struct {
	Destination string `json:"destination"`
}

type RequestPathResponse struct {
	Requested bool  `json:"requested"`
	Known     bool  `json:"known"`
	Hops      uint8 `json:"hops,omitempty"`
}

// requestPathHandler sends a path request, even when a path is already
// known, and reports what the path table currently holds.
func (a *AdminSocket) requestPathHandler(req *RequestPathRequest, res *RequestPathResponse) error {
	dest, err := address.HashFromHex(req.Destination)
	if err != nil {
		return fmt.Errorf("destination: %w", err)
	}
	t := a.core.Transport()
	if err := t.RequestPath(dest); err != nil {
		return err
	}
	res.Requested = true
	if res.Known = t.HasPath(dest); res.Known {
		res.Hops = t.HopsTo(dest)
	}
	return nil
}
