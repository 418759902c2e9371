package admin

import (
	"encoding/hex"

	"github.com/yggdrasil-network/rnsmesh/src/version"
)

type GetSelfRequest struct{}

type GetSelfResponse struct {
	BuildName        string  `json:"build_name"`
	BuildVersion     string  `json:"build_version"`
	IdentityHash     string  `json:"identity"`
	PublicKey        string  `json:"key"`
	TransportEnabled bool    `json:"transport"`
	Destinations     int     `json:"destinations"`
	Uptime           float64 `json:"uptime"`
}

func (a *AdminSocket) getSelfHandler(_ *GetSelfRequest, res *GetSelfResponse) error {
	self := a.core.GetSelf()
	res.BuildName = version.BuildName()
	res.BuildVersion = version.BuildVersion()
	res.IdentityHash = self.IdentityHash.String()
	res.PublicKey = hex.EncodeToString(self.PublicKey)
	res.TransportEnabled = self.TransportEnabled
	res.Destinations = self.Destinations
	res.Uptime = self.Uptime.Seconds()
	return nil
}
