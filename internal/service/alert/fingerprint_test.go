package alert

import "testing"

func TestFingerprintIsDeterministic(t *testing.T) {
	a := Fingerprint("price_deviation", "chainlink", "ethereum", "ETH/USD", "ci-eth-main")
	b := Fingerprint("price_deviation", "chainlink", "ethereum", "ETH/USD", "ci-eth-main")
	if a != b {
		t.Fatalf("expected deterministic fingerprint, got %s != %s", a, b)
	}
}

func TestFingerprintDistinguishesInputs(t *testing.T) {
	base := Fingerprint("price_deviation", "chainlink", "ethereum", "ETH/USD", "ci-eth-main")
	other := Fingerprint("price_deviation", "chainlink", "polygon", "ETH/USD", "ci-eth-main")
	if base == other {
		t.Fatalf("expected distinct fingerprints for distinct chains")
	}
}
