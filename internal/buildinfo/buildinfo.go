// Package buildinfo holds the single source of truth for this program's
// protocol version. The version string appears in three places that must
// never drift apart: the QUIC ALPN identifier, the CLI --version output, and
// the ConnRequest.Version field of the wire protocol.
package buildinfo

import "fmt"

const (
	Major = 0
	Minor = 4
	Patch = 0
)

// Version is "major.minor.patch", the value carried in ConnRequest and
// compared against by the receiver's version-compatibility policy.
var Version = fmt.Sprintf("%d.%d.%d", Major, Minor, Patch)

// ALPN is the QUIC application-layer protocol negotiation identifier for
// this protocol version.
var ALPN = fmt.Sprintf("quicsend/%s", Version)

// CompatibleMajor reports whether a peer-reported version is compatible
// with this build under the major-version-equality policy (the "more
// recent intent" per the design notes; see rendezvous/server and
// receiver for where this is applied).
func CompatibleMajor(peerVersion string) bool {
	var major, minor, patch int
	if _, err := fmt.Sscanf(peerVersion, "%d.%d.%d", &major, &minor, &patch); err != nil {
		return false
	}
	return major == Major
}
