package payorder

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// ContentPrefix is the fixed textual marker embedded in a bank transfer's
// free-text field to correlate the transfer with its payment order.
const ContentPrefix = "TLPAY"

// Banks mangle free-text fields in transit: case folding, stripped or
// inserted separators, surrounding noise. The pattern therefore accepts any
// non-hex characters between the prefix and the 32-char hex token.
var contentPattern = regexp.MustCompile(`(?i)` + ContentPrefix + `[^0-9a-f]*([0-9a-f]{32})`)

// BuildTransferContent derives the transfer-content tag for an order: the
// prefix followed by the order id's hex form with separators stripped.
func BuildTransferContent(orderID uuid.UUID) string {
	return ContentPrefix + strings.ReplaceAll(orderID.String(), "-", "")
}

// ParseTransferContent extracts the order identifier from arbitrary transfer
// free text. It reports false when no tag is present.
func ParseTransferContent(content string) (uuid.UUID, bool) {
	m := contentPattern.FindStringSubmatch(content)
	if m == nil {
		return uuid.Nil, false
	}

	token := strings.ToLower(m[1])
	canonical := strings.Join([]string{
		token[0:8], token[8:12], token[12:16], token[16:20], token[20:32],
	}, "-")

	id, err := uuid.Parse(canonical)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}
