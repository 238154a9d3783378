// Package presence answers PRESENCE queries by filtering live registered
// connections on domain, capabilities, and great-circle proximity (spec
// §4.10).
package presence

import (
	"math"
	"strings"

	"github.com/systemx-switch/systemx/internal/address"
	"github.com/systemx-switch/systemx/internal/registry"
	"github.com/systemx-switch/systemx/internal/transport"
)

// earthRadiusKm is the mean Earth radius used by the haversine distance
// calculation below.
const earthRadiusKm = 6371.0

// Result is one entry of a PRESENCE_RESULT reply.
type Result struct {
	Address  string
	Status   registry.Status
	Metadata map[string]any
}

// Query mirrors transport.PresenceQuery for matching purposes.
type Query = transport.PresenceQuery

// Match reports whether conn satisfies q. requester is excluded by the
// caller, not here.
func Match(conn *registry.Connection, q *Query) bool {
	if q == nil {
		return true
	}
	if q.Domain != "" {
		domain, ok := address.Domain(conn.Address)
		if !ok || !strings.EqualFold(domain, q.Domain) {
			return false
		}
	}
	if len(q.Capabilities) > 0 && !hasAllCapabilities(conn.Metadata, q.Capabilities) {
		return false
	}
	if q.Near != nil && !withinRadius(conn.Metadata, q.Near) {
		return false
	}
	return true
}

func hasAllCapabilities(metadata map[string]any, required []string) bool {
	raw, ok := metadata["capabilities"]
	if !ok {
		return false
	}
	list, ok := raw.([]any)
	if !ok {
		return false
	}
	have := make(map[string]struct{}, len(list))
	for _, v := range list {
		if s, ok := v.(string); ok {
			have[s] = struct{}{}
		}
	}
	for _, req := range required {
		if _, ok := have[req]; !ok {
			return false
		}
	}
	return true
}

func withinRadius(metadata map[string]any, near *transport.NearQuery) bool {
	loc, ok := metadata["location"].(map[string]any)
	if !ok {
		return false
	}
	lat, latOK := toFloat(loc["lat"])
	lon, lonOK := toFloat(loc["lon"])
	if !latOK || !lonOK {
		return false
	}
	return haversineKm(lat, lon, near.Lat, near.Lon) <= near.RadiusKm
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}

// haversineKm returns the great-circle distance in kilometres between two
// latitude/longitude points given in degrees.
func haversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c
}

// Query result ordering is unspecified but must be stable within a single
// reply (spec §4.10); Collect preserves registry iteration order, which for
// a single call through Registry.Each is stable for the duration of that
// call.
func Collect(reg *registry.Registry, requester *registry.Connection, q *Query) []Result {
	var out []Result
	reg.Each(func(c *registry.Connection) {
		if c == requester {
			return
		}
		if !Match(c, q) {
			return
		}
		out = append(out, Result{Address: c.Address, Status: c.Status, Metadata: c.Metadata})
	})
	return out
}
