package protocol

import "testing"

func TestIsSupportedProtocolVersion(t *testing.T) {
	for _, v := range SupportedProtocolVersions {
		if !IsSupportedProtocolVersion(v) {
			t.Errorf("expected %q to be supported", v)
		}
	}
	for _, v := range []string{"", "2024-01-01", "1.0", "2025-03-26 "} {
		if IsSupportedProtocolVersion(v) {
			t.Errorf("expected %q to be unsupported", v)
		}
	}
}

func TestNegotiateProtocolVersion(t *testing.T) {
	if got := NegotiateProtocolVersion(ProtocolVersion20241105); got != ProtocolVersion20241105 {
		t.Errorf("supported revision must be echoed, got %q", got)
	}
	if got := NegotiateProtocolVersion("9999-01-01"); got != LatestProtocolVersion {
		t.Errorf("unsupported revision must fall back to latest, got %q", got)
	}
}

func TestDefaultProtocolVersion(t *testing.T) {
	if DefaultProtocolVersion != ProtocolVersion20250326 {
		t.Errorf("header-absent default must be %q", ProtocolVersion20250326)
	}
	if !IsSupportedProtocolVersion(DefaultProtocolVersion) {
		t.Error("default revision must be in the supported set")
	}
}
