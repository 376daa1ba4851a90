package protocol

// Protocol revisions accepted from the MCP-Protocol-Version header and
// during initialize negotiation.
const (
	ProtocolVersion20241105 = "2024-11-05"
	ProtocolVersion20250326 = "2025-03-26"
	ProtocolVersion20250618 = "2025-06-18"
)

// DefaultProtocolVersion is assumed when a client omits the
// MCP-Protocol-Version header, for compatibility with clients that
// predate the header.
const DefaultProtocolVersion = ProtocolVersion20250326

// LatestProtocolVersion is offered when a client asks for a revision the
// server does not support.
const LatestProtocolVersion = ProtocolVersion20250618

// SupportedProtocolVersions lists accepted revisions, newest first.
var SupportedProtocolVersions = []string{
	ProtocolVersion20250618,
	ProtocolVersion20250326,
	ProtocolVersion20241105,
}

// IsSupportedProtocolVersion reports whether the given revision is one
// the transport accepts.
func IsSupportedProtocolVersion(version string) bool {
	for _, v := range SupportedProtocolVersions {
		if v == version {
			return true
		}
	}
	return false
}

// NegotiateProtocolVersion returns the revision the server settles on
// during initialize: the requested one when supported, otherwise the
// latest the server knows.
func NegotiateProtocolVersion(requested string) string {
	if IsSupportedProtocolVersion(requested) {
		return requested
	}
	return LatestProtocolVersion
}
