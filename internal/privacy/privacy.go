// Package privacy keeps personal data out of logs and metrics.
//
// Registration logs need to correlate repeat submissions without storing
// who submitted them, so e-mail addresses are replaced by a keyed BLAKE2b
// pseudonym and client IPs are truncated to their network prefix.
package privacy

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net"
	"strings"

	"github.com/mssola/useragent"
	"golang.org/x/crypto/blake2b"
)

// pseudonymBytes is the digest length; 8 bytes is plenty to correlate
// log lines for a small community site.
const pseudonymBytes = 8

// Hasher derives stable pseudonyms from personal identifiers.
type Hasher struct {
	key       []byte
	ephemeral bool
}

// NewHasher returns a Hasher keyed with key. An empty key is replaced by a
// random per-process key: pseudonyms then only correlate within one run,
// but an unkeyed digest of a known e-mail address is never written.
// Keys longer than 64 bytes are rejected by BLAKE2b.
func NewHasher(key string) (*Hasher, error) {
	if len(key) > blake2b.Size {
		return nil, fmt.Errorf("privacy: hash key must be %d bytes or fewer", blake2b.Size)
	}
	if key == "" {
		k := make([]byte, 32)
		if _, err := rand.Read(k); err != nil {
			return nil, fmt.Errorf("privacy: generating hash key: %w", err)
		}
		return &Hasher{key: k, ephemeral: true}, nil
	}
	return &Hasher{key: []byte(key)}, nil
}

// Ephemeral reports whether the key was generated for this process.
func (h *Hasher) Ephemeral() bool {
	return h.ephemeral
}

// Pseudonym returns a short hex digest of the normalised (trimmed,
// lower-cased) value, or "" for an empty value.
func (h *Hasher) Pseudonym(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return ""
	}
	mac, err := blake2b.New(pseudonymBytes, h.key)
	if err != nil {
		// Only reachable with an oversize key, which NewHasher rejects.
		panic(fmt.Sprintf("privacy: blake2b: %v", err))
	}
	mac.Write([]byte(value))
	return hex.EncodeToString(mac.Sum(nil))
}

// AnonymizeIP truncates an address for logging: IPv4 keeps the /24
// ("192.168.1.47" -> "192.168.1.0"), IPv6 keeps the /48.
// Returns "unknown" for an empty input and "invalid" when it does not parse.
func AnonymizeIP(ip string) string {
	if ip == "" || ip == "unknown" {
		return "unknown"
	}
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}

	parsed := net.ParseIP(ip)
	if parsed == nil {
		return "invalid"
	}
	if v4 := parsed.To4(); v4 != nil {
		return fmt.Sprintf("%d.%d.%d.0", v4[0], v4[1], v4[2])
	}
	return fmt.Sprintf("%02x%02x:%02x%02x:%02x%02x::",
		parsed[0], parsed[1],
		parsed[2], parsed[3],
		parsed[4], parsed[5])
}

// Client is a coarse, non-identifying summary of a user agent.
type Client struct {
	Browser string
	OS      string
	Mobile  bool
	Bot     bool
}

// ParseUserAgent summarises a User-Agent header.
func ParseUserAgent(header string) Client {
	if header == "" {
		return Client{Browser: "unknown", OS: "unknown"}
	}
	ua := useragent.New(header)
	name, _ := ua.Browser()
	if name == "" {
		name = "unknown"
	}
	os := ua.OS()
	if os == "" {
		os = "unknown"
	}
	return Client{
		Browser: name,
		OS:      os,
		Mobile:  ua.Mobile(),
		Bot:     ua.Bot(),
	}
}

// IsBot reports whether the header belongs to a crawler.
func IsBot(header string) bool {
	if header == "" {
		return false
	}
	return useragent.New(header).Bot()
}
