package admin

type GetLinksRequest struct{}

type GetLinksResponse struct {
	Links []LinkEntry `json:"links"`
}

type LinkEntry struct {
	ID          string  `json:"id"`
	Destination string  `json:"destination"`
	Status      string  `json:"status"`
	Initiator   bool    `json:"initiator"`
	RTT         float64 `json:"rtt"`
	Uptime      float64 `json:"uptime,omitempty"`
	LastInbound float64 `json:"last_inbound,omitempty"`
}

func (a *AdminSocket) getLinksHandler(_ *GetLinksRequest, res *GetLinksResponse) error {
	links := a.core.GetLinks()
	res.Links = make([]LinkEntry, 0, len(links))
	for _, l := range links {
		entry := LinkEntry{
			ID:          l.ID.String(),
			Destination: l.Destination.String(),
			Status:      l.Status,
			Initiator:   l.Initiator,
			RTT:         l.RTT.Seconds(),
		}
		if !l.ActivatedAt.IsZero() {
			entry.Uptime = a.core.Since(l.ActivatedAt).Seconds()
		}
		if !l.LastInbound.IsZero() {
			entry.LastInbound = a.core.Since(l.LastInbound).Seconds()
		}
		res.Links = append(res.Links, entry)
	}
	return nil
}
