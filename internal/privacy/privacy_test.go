package privacy

import (
	"encoding/hex"
	"strings"
	"testing"

	"golang.org/x/crypto/blake2b"
)

func TestAnonymizeIP(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"ipv4 standard address", "192.168.1.47", "192.168.1.0"},
		{"ipv4 localhost", "127.0.0.1", "127.0.0.0"},
		{"ipv4 with port", "203.0.113.9:51234", "203.0.113.0"},
		{"ipv6 compressed address", "2001:db8:85a3::8a2e:370:7334", "2001:0db8:85a3::"},
		{"ipv6 with port", "[2001:db8::1]:443", "2001:0db8:0000::"},
		{"ipv6 loopback", "::1", "0000:0000:0000::"},
		{"empty string", "", "unknown"},
		{"garbage", "not-an-ip", "invalid"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := AnonymizeIP(tt.input); got != tt.expected {
				t.Errorf("AnonymizeIP(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestHasher_Pseudonym(t *testing.T) {
	h, err := NewHasher("test-key")
	if err != nil {
		t.Fatalf("NewHasher() error = %v", err)
	}

	a := h.Pseudonym("Ada@Example.com")
	b := h.Pseudonym("  ada@example.com ")
	if a != b {
		t.Errorf("pseudonyms differ after normalisation: %q vs %q", a, b)
	}
	if len(a) != 2*pseudonymBytes {
		t.Errorf("len(pseudonym) = %d, want %d", len(a), 2*pseudonymBytes)
	}
	if strings.Contains(a, "ada") {
		t.Errorf("pseudonym %q leaks input", a)
	}
	if got := h.Pseudonym(""); got != "" {
		t.Errorf("Pseudonym(\"\") = %q, want empty", got)
	}

	other, _ := NewHasher("other-key")
	if other.Pseudonym("ada@example.com") == a {
		t.Error("different keys produced the same pseudonym")
	}
}

func TestNewHasher_EmptyKeyIsRandom(t *testing.T) {
	h, err := NewHasher("")
	if err != nil {
		t.Fatalf("NewHasher(\"\") error = %v", err)
	}
	if !h.Ephemeral() {
		t.Error("Ephemeral() = false for an empty key")
	}

	unkeyed, _ := blake2b.New(pseudonymBytes, nil)
	unkeyed.Write([]byte("ada@example.com"))
	if got := h.Pseudonym("ada@example.com"); got == hex.EncodeToString(unkeyed.Sum(nil)) {
		t.Error("empty key produced the unkeyed digest")
	}

	other, _ := NewHasher("")
	if other.Pseudonym("ada@example.com") == h.Pseudonym("ada@example.com") {
		t.Error("two processes share a generated key")
	}

	keyed, _ := NewHasher("test-key")
	if keyed.Ephemeral() {
		t.Error("Ephemeral() = true for a configured key")
	}
}

func TestNewHasher_KeyTooLong(t *testing.T) {
	if _, err := NewHasher(strings.Repeat("k", 65)); err == nil {
		t.Error("NewHasher() with 65-byte key: expected error")
	}
}

func TestParseUserAgent(t *testing.T) {
	chrome := "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	c := ParseUserAgent(chrome)
	if c.Browser != "Chrome" || c.Bot || c.Mobile {
		t.Errorf("ParseUserAgent(chrome) = %+v", c)
	}

	bot := "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)"
	if !ParseUserAgent(bot).Bot || !IsBot(bot) {
		t.Error("Googlebot not detected as a bot")
	}

	if got := ParseUserAgent(""); got.Browser != "unknown" {
		t.Errorf("ParseUserAgent(\"\") = %+v", got)
	}
	if IsBot("") {
		t.Error("IsBot(\"\") = true")
	}
}
