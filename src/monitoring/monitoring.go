// Package monitoring watches a running node and reports interfaces that go
// up or down and links that appear or change state.
package monitoring

import (
	"io"
	"sync"
	"time"

	"github.com/gologme/log"

	"github.com/yggdrasil-network/rnsmesh/src/address"
	"github.com/yggdrasil-network/rnsmesh/src/core"
)

const defaultInterval = time.Second

type InterfaceMonitoring func(iface core.InterfaceInfo)
type LinkMonitoring func(link core.LinkInfo)

// Source is the part of a node the monitor polls.
type Source interface {
	GetInterfaces() []core.InterfaceInfo
	GetLinks() []core.LinkInfo
}

type Monitoring struct {
	source   Source
	log      core.Logger
	interval time.Duration
	done     chan struct{}
	stopped  chan struct{}
	once     sync.Once
}

// New starts a monitor that logs every change it sees.
func New(s Source, logger core.Logger) *Monitoring {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return NewWithCallbacks(s, logger, defaultInterval, func(iface core.InterfaceInfo) {
		if iface.Online {
			logger.Infof("Interface %s is up (%s, %s)", iface.Name, iface.Mode, iface.Direction)
		} else {
			logger.Infof("Interface %s is down", iface.Name)
		}
	}, func(link core.LinkInfo) {
		logger.Infof("Link %s to %s is %s", link.ID, link.Destination, link.Status)
	})
}

// NewWithCallbacks starts a monitor that polls s every interval.
func NewWithCallbacks(s Source, logger core.Logger, interval time.Duration, ifaceCB InterfaceMonitoring, linkCB LinkMonitoring) *Monitoring {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	m := &Monitoring{
		source:   s,
		log:      logger,
		interval: interval,
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	go m.Monitoring(ifaceCB, linkCB)
	return m
}

func (m *Monitoring) Stop() error {
	if m == nil {
		return nil
	}
	m.once.Do(func() {
		close(m.done)
	})
	<-m.stopped
	m.log.Debugln("Stopped monitoring")
	return nil
}

func (m *Monitoring) Monitoring(ifaceCB InterfaceMonitoring, linkCB LinkMonitoring) {
	defer close(m.stopped)
	ifaces := make(map[string]bool)
	links := make(map[address.Hash]string)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		for _, iface := range m.source.GetInterfaces() {
			if online, exist := ifaces[iface.Name]; !exist || online != iface.Online {
				ifaceCB(iface)
				ifaces[iface.Name] = iface.Online
			}
		}
		seen := make(map[address.Hash]struct{}, len(links))
		for _, link := range m.source.GetLinks() {
			seen[link.ID] = struct{}{}
			if status, exist := links[link.ID]; !exist || status != link.Status {
				linkCB(link)
				links[link.ID] = link.Status
			}
		}
		for id := range links {
			if _, ok := seen[id]; !ok {
				delete(links, id)
			}
		}
		select {
		case <-m.done:
			return
		case <-ticker.C:
		}
	}
}
