package identity

import "strings"

// gmail and its legacy domain ignore dots in the local part; both resolve to
// the same mailbox, so both fold to gmail.com.
var dotInsensitiveDomains = map[string]string{
	"gmail.com":      "gmail.com",
	"googlemail.com": "gmail.com",
}

// Normalize collapses alias variants of an email address into the canonical
// identity key used for dedup, abuse counting, and blacklist lookups.
//
// Rules: trim and lowercase; strip a "+tag" suffix from the local part for
// every domain; for Gmail addresses additionally remove dots and fold
// googlemail.com onto gmail.com. Inputs without exactly one "@" are returned
// trimmed and lowercased as-is rather than rejected, since identity keys are
// derived from already-validated addresses.
func Normalize(email string) string {
	normalized := strings.ToLower(strings.TrimSpace(email))

	at := strings.LastIndex(normalized, "@")
	if at <= 0 || at == len(normalized)-1 {
		return normalized
	}

	local := normalized[:at]
	domain := normalized[at+1:]

	if plus := strings.Index(local, "+"); plus >= 0 {
		local = local[:plus]
	}

	if canonical, ok := dotInsensitiveDomains[domain]; ok {
		local = strings.ReplaceAll(local, ".", "")
		domain = canonical
	}

	return local + "@" + domain
}

// Same reports whether two raw addresses resolve to one identity.
func Same(a, b string) bool {
	return Normalize(a) == Normalize(b)
}
