package scan

import "testing"

func TestParseAddresses(t *testing.T) {
	got, err := ParseAddresses([]string{" 0x1F98431c8aD98523631AE4a59f267346ea31F984", "", "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d", len(got))
	}
	if got[1].Hex() != "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2" {
		t.Fatalf("checksum mismatch: %s", got[1].Hex())
	}
}

func TestParseAddressInvalid(t *testing.T) {
	for _, input := range []string{"", "0x123", "not-an-address"} {
		if _, err := ParseAddress(input); err == nil {
			t.Fatalf("expected error for %q", input)
		}
	}
	if _, err := ParseAddresses([]string{"0x1F98431c8aD98523631AE4a59f267346ea31F984", "bad"}); err == nil {
		t.Fatalf("expected error for list with invalid entry")
	}
}
