// Package eventkey derives the deterministic identity under which events
// from both source systems are matched. A vendor-assigned key wins when the
// feed carries one; otherwise the key is a digest over the identity tuple
// (ISIN, ex-date, pay-date, quote currency), so two runs over the same
// inputs always align the same rows.
package eventkey

import (
	"crypto/sha1"
	"encoding/hex"
	"strings"

	"divrecon/models"
)

// Build returns the event key for a canonical event. The vendor key is used
// verbatim after trimming when present. The synthesized fallback requires
// the full identity tuple; any missing component is a MappingError, which
// callers must treat as fatal.
func Build(e *models.CanonicalEvent) (string, error) {
	if vendor := strings.TrimSpace(e.Source.VendorEventKey); vendor != "" {
		return vendor, nil
	}
	return Synthesize(e.Instrument.ISIN, e.Dates.ExDate, e.Dates.PayDate, e.Currencies.QuoteCcy)
}

// Synthesize digests the identity tuple into a hex key. Components are
// trimmed and uppercased so formatting noise never splits an event.
func Synthesize(isin, exDate, payDate, quoteCcy string) (string, error) {
	parts := []struct {
		name  string
		value string
	}{
		{"instrument.isin", isin},
		{"dates.ex_date", exDate},
		{"dates.pay_date", payDate},
		{"currencies.quote_ccy", quoteCcy},
	}

	canonical := make([]string, len(parts))
	for i, p := range parts {
		v := strings.ToUpper(strings.TrimSpace(p.value))
		if v == "" {
			return "", &models.MappingError{
				Path:   p.name,
				Reason: "identity component missing, cannot synthesize event key",
			}
		}
		canonical[i] = v
	}

	sum := sha1.Sum([]byte(strings.Join(canonical, "|")))
	return hex.EncodeToString(sum[:]), nil
}
