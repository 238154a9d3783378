package presence

import (
	"testing"

	"github.com/systemx-switch/systemx/internal/registry"
	"github.com/systemx-switch/systemx/internal/transport"
)

func TestMatchDomain(t *testing.T) {
	conn := &registry.Connection{Address: "a@Sub.Example.com"}
	if !Match(conn, &transport.PresenceQuery{Domain: "sub.example.com"}) {
		t.Fatalf("expected case-insensitive domain match")
	}
	if Match(conn, &transport.PresenceQuery{Domain: "other.com"}) {
		t.Fatalf("expected domain mismatch to fail")
	}
}

func TestMatchCapabilities(t *testing.T) {
	conn := &registry.Connection{
		Address:  "a@x",
		Metadata: map[string]any{"capabilities": []any{"voice", "video"}},
	}
	if !Match(conn, &transport.PresenceQuery{Capabilities: []string{"voice"}}) {
		t.Fatalf("expected capability subset match")
	}
	if Match(conn, &transport.PresenceQuery{Capabilities: []string{"voice", "sms"}}) {
		t.Fatalf("expected missing capability to fail match")
	}
}

func TestMatchNear(t *testing.T) {
	conn := &registry.Connection{
		Address: "a@x",
		Metadata: map[string]any{
			"location": map[string]any{"lat": 40.7128, "lon": -74.0060}, // NYC
		},
	}
	// Boston is roughly 300km from NYC.
	near := &transport.NearQuery{Lat: 42.3601, Lon: -71.0589, RadiusKm: 350}
	if !Match(conn, &transport.PresenceQuery{Near: near}) {
		t.Fatalf("expected NYC within 350km of Boston")
	}

	tight := &transport.NearQuery{Lat: 42.3601, Lon: -71.0589, RadiusKm: 10}
	if Match(conn, &transport.PresenceQuery{Near: tight}) {
		t.Fatalf("expected NYC outside 10km of Boston")
	}
}

func TestMatchNearMissingLocation(t *testing.T) {
	conn := &registry.Connection{Address: "a@x"}
	near := &transport.NearQuery{Lat: 0, Lon: 0, RadiusKm: 100000}
	if Match(conn, &transport.PresenceQuery{Near: near}) {
		t.Fatalf("connection without a location should never match a near filter")
	}
}

func TestMatchNilQuery(t *testing.T) {
	conn := &registry.Connection{Address: "a@x"}
	if !Match(conn, nil) {
		t.Fatalf("nil query should match everything")
	}
}
