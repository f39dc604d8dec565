package journal

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// DomainEntry prefixes journal entry hashes. The version suffix allows the
// identity scheme to change without colliding with old ids.
const DomainEntry = "tableorder/event/v1"

// hashWithDomain computes SHA256(domain + 0x00 + data) as hex.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// EntryID computes the content-addressed id of an entry from everything
// except its id and sequence number.
func EntryID(e Entry) (string, error) {
	canonical, err := MarshalCanonical(map[string]any{
		"event_id":     e.EventID,
		"tenant_id":    e.Tenant,
		"event_type":   e.Type,
		"payload":      e.Payload,
		"published_at": e.PublishedAt,
	})
	if err != nil {
		return "", fmt.Errorf("entry id: %w", err)
	}
	return hashWithDomain(DomainEntry, canonical), nil
}
