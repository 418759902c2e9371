package admin

import (
	"context"
	"strings"
	"time"
)

// saveTimeout bounds how long saveKnownDestinations waits for a save that
// is already running.
const saveTimeout = 10 * time.Second

type GetKnownDestinationsRequest struct {
	Filter string `json:"filter,omitempty"`
}

type GetKnownDestinationsResponse struct {
	Destinations []KnownEntry `json:"destinations"`
}

type KnownEntry struct {
	Destination string `json:"destination"`
	Identity    string `json:"identity"`
	AppData     string `json:"app_data,omitempty"`
	LastSeen    int64  `json:"last_seen"`
}

// getKnownDestinationsHandler lists known destinations, newest first. The
// optional filter matches a prefix of the destination or identity hash.
func (a *AdminSocket) getKnownDestinationsHandler(req *GetKnownDestinationsRequest, res *GetKnownDestinationsResponse) error {
	known := a.core.GetKnownDestinations()
	filter := strings.ToLower(req.Filter)
	res.Destinations = make([]KnownEntry, 0, len(known))
	for _, k := range known {
		dest, id := k.Destination.String(), k.IdentityHash.String()
		if filter != "" && !strings.HasPrefix(dest, filter) && !strings.HasPrefix(id, filter) {
			continue
		}
		res.Destinations = append(res.Destinations, KnownEntry{
			Destination: dest,
			Identity:    id,
			AppData:     k.AppData,
			LastSeen:    k.Seen.Unix(),
		})
	}
	return nil
}

type SaveKnownDestinationsRequest struct{}

type SaveKnownDestinationsResponse struct {
	Saved int `json:"saved"`
}

func (a *AdminSocket) saveKnownDestinationsHandler(_ *SaveKnownDestinationsRequest, res *SaveKnownDestinationsResponse) error {
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	if err := a.core.SaveKnownDestinations(ctx); err != nil {
		return err
	}
	res.Saved = a.core.Known().Len()
	return nil
}
