package admin

import (
	"slices"
	"strings"
)

type GetPathsRequest struct {
	Interface string `json:"interface,omitempty"`
}

type GetPathsResponse struct {
	Paths []PathEntry `json:"paths"`
}

type PathEntry struct {
	Destination string `json:"destination"`
	NextHop     string `json:"via"`
	Hops        uint8  `json:"hops"`
	Interface   string `json:"interface"`
	Timestamp   int64  `json:"timestamp"`
	Expires     int64  `json:"expires"`
}

func (a *AdminSocket) getPathsHandler(req *GetPathsRequest, res *GetPathsResponse) error {
	paths := a.core.GetPaths()
	res.Paths = make([]PathEntry, 0, len(paths))
	for _, p := range paths {
		if req.Interface != "" && req.Interface != p.Interface {
			continue
		}
		res.Paths = append(res.Paths, PathEntry{
			Destination: p.Destination.String(),
			NextHop:     p.NextHop.String(),
			Hops:        p.Hops,
			Interface:   p.Interface,
			Timestamp:   p.Timestamp.Unix(),
			Expires:     p.Expires.Unix(),
		})
	}
	slices.SortStableFunc(res.Paths, func(a, b PathEntry) int {
		if a.Hops != b.Hops {
			return int(a.Hops) - int(b.Hops)
		}
		return strings.Compare(a.Destination, b.Destination)
	})
	return nil
}
