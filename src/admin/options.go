package admin

import (
	"encoding/hex"
	"sort"
	"sync"
	"time"

	"github.com/yggdrasil-network/rnsmesh/src/address"
	"github.com/yggdrasil-network/rnsmesh/src/core"
	"github.com/yggdrasil-network/rnsmesh/src/identity"
)

func (c *AdminSocket) _applyOption(opt SetupOption) {
	switch v := opt.(type) {
	case ListenAddress:
		c.config.listenaddr = v
	case LogAnnounces:
		c.logAnnounces()
	}
}

type SetupOption interface {
	isSetupOption()
}

type ListenAddress string

func (a ListenAddress) isSetupOption() {}

type LogAnnounces struct{}

func (l LogAnnounces) isSetupOption() {}

func (a *AdminSocket) logAnnounces() {
	type resi struct {
		Destination string `json:"destination"`
		Identity    string `json:"identity"`
		AppData     string `json:"app_data,omitempty"`
		Time        int64  `json:"time"`
	}
	type res struct {
		Infos []resi `json:"infos"`
	}
	type info struct {
		identity address.Hash
		appData  []byte
		time     time.Time
	}
	infos := make(map[address.Hash]info)
	var m sync.Mutex
	err := a.core.Transport().RegisterAnnounceHandler(&core.AnnounceHandler{
		ReceivePathResponses: true,
		Received: func(dest address.Hash, id *identity.Identity, appData []byte) {
			m.Lock()
			infos[dest] = info{identity: id.Hash(), appData: appData, time: time.Now()}
			m.Unlock()
		},
	})
	if err != nil {
		a.log.Warnln("Failed to log announces:", err)
		return
	}
	_ = a.AddHandler(
		"announces", "Dump a record of announces received in the past hour", []string{},
		func(_ Info) (interface{}, error) {
			m.Lock()
			rs := make([]resi, 0, len(infos))
			for k, v := range infos {
				if time.Since(v.time) > time.Hour {
					delete(infos, k)
					continue
				}
				rs = append(rs, resi{
					Destination: k.String(),
					Identity:    v.identity.String(),
					AppData:     hex.EncodeToString(v.appData),
					Time:        v.time.Unix(),
				})
			}
			m.Unlock()
			sort.Slice(rs, func(i, j int) bool { return rs[i].Time > rs[j].Time })
			return &res{Infos: rs}, nil
		},
	)
}
