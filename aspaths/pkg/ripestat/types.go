package ripestat

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/malbeclabs/compare-aspaths/aspaths/pkg/aspath"
)

// bgpStateResponse is the envelope RIPEstat wraps the bgp-state payload in.
type bgpStateResponse struct {
	Status         string     `json:"status"`
	StatusCode     int        `json:"status_code"`
	DataCallName   string     `json:"data_call_name"`
	DataCallStatus string     `json:"data_call_status"`
	Messages       [][]string `json:"messages"`
	Data           BGPState   `json:"data"`
}

// BGPState is the payload of the bgp-state data call.
type BGPState struct {
	Resource  string  `json:"resource"`
	QueryTime string  `json:"query_time"`
	NrRoutes  int     `json:"nr_routes"`
	Routes    []Route `json:"bgp_state"`
}

// Route is one RIB entry as seen by a RIS peer.
type Route struct {
	TargetPrefix string      `json:"target_prefix"`
	SourceID     SourceID    `json:"source_id"`
	Path         aspath.Path `json:"path"`
	Community    []string    `json:"community"`
}

// SourceID identifies the collector peer that reported a route. RIPEstat
// sends it as a string such as "00-195.66.224.175"; bare numbers are
// accepted too.
type SourceID string

func (s *SourceID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*s = SourceID(str)
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(data, &num); err != nil {
		return fmt.Errorf("source_id must be a string or number: %w", err)
	}
	*s = SourceID(num.String())
	return nil
}

// Snapshot indexes the routes by source ID. A nil state yields an empty
// snapshot.
func (b *BGPState) Snapshot() *aspath.Snapshot {
	s := aspath.NewSnapshot()
	if b == nil {
		return s
	}
	for _, r := range b.Routes {
		s.Add(string(r.SourceID), r.Path)
	}
	return s
}
