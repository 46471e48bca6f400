package audit

// redactionMarker is appended to every masked identifier that is persisted.
const redactionMarker = "***"

// MaskID reduces a PII-bearing identifier to a fixed-length prefix plus a
// redaction marker. Only the masked form is ever persisted or logged.
func MaskID(id string, prefixLen int) string {
	if prefixLen <= 0 {
		prefixLen = 8
	}
	if len(id) <= prefixLen {
		return id + redactionMarker
	}
	return id[:prefixLen] + redactionMarker
}
