package sale

import "testing"

func TestResolveCodeAcceptsCanonicalShape(t *testing.T) {
	code, ok := ResolveCode("SS-2601-MLK-00001")
	if !ok {
		t.Fatalf("expected canonical code to resolve")
	}
	if code != "SS-2601-MLK-00001" {
		t.Fatalf("unexpected code %q", code)
	}
}

func TestResolveCodeUppercasesBareInput(t *testing.T) {
	code, ok := ResolveCode("  ss-2601-mlk-00001 ")
	if !ok {
		t.Fatalf("expected lowercase canonical code to resolve")
	}
	if code != "SS-2601-MLK-00001" {
		t.Fatalf("expected uppercased code, got %q", code)
	}
}

func TestResolveCodeExtractsLegacyURI(t *testing.T) {
	cases := []struct {
		payload string
		want    string
	}{
		{"stocksnap://item/SS-2601-MLK-00001", "SS-2601-MLK-00001"},
		{"legacy-app://item/SGR1KG", "SGR1KG"},
		{"x+y.z://item/ABC123", "ABC123"},
	}
	for _, tc := range cases {
		code, ok := ResolveCode(tc.payload)
		if !ok {
			t.Fatalf("expected %q to resolve", tc.payload)
		}
		if code != tc.want {
			t.Fatalf("payload %q: got %q, want %q", tc.payload, code, tc.want)
		}
	}
}

func TestResolveCodeKeepsLegacyValueVerbatim(t *testing.T) {
	// Legacy codes predate the canonical format; case must not be touched.
	code, ok := ResolveCode("oldpos://item/abc123")
	if !ok {
		t.Fatalf("expected legacy URI to resolve")
	}
	if code != "abc123" {
		t.Fatalf("expected verbatim legacy code, got %q", code)
	}
}

func TestResolveCodeRejectsNonCodes(t *testing.T) {
	payloads := []string{
		"",
		"   ",
		"https://example.com/promo",
		"WIFI:T:WPA;S:shop;P:pass;;",
		"hello world",
		"SS-26-MLK-00001",
		"stocksnap://item/",
	}
	for _, payload := range payloads {
		if code, ok := ResolveCode(payload); ok {
			t.Fatalf("expected %q to be rejected, resolved to %q", payload, code)
		}
	}
}
