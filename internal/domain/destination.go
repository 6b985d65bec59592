package domain

import "time"

// LocalNetworkID is the numeric identifier of the issuing network.
// Redemptions to a destination resolving here use the local transfer path;
// every other network id routes through the bridge.
const LocalNetworkID uint64 = 0

// Destination maps a human-readable destination name to a numeric network
// identifier. The registry is append-only and administrator-controlled.
type Destination struct {
	Name         string    `json:"name"`
	NetworkID    uint64    `json:"network_id"`
	RegisteredAt time.Time `json:"registered_at"`
}

// Local reports whether delivery to this destination stays on the issuing
// network.
func (d Destination) Local() bool {
	return d.NetworkID == LocalNetworkID
}
