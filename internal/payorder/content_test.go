package payorder

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildTransferContentRoundTrip(t *testing.T) {
	id := uuid.New()
	content := BuildTransferContent(id)

	require.True(t, strings.HasPrefix(content, ContentPrefix))
	assert.NotContains(t, content, "-")

	parsed, ok := ParseTransferContent(content)
	require.True(t, ok)
	assert.Equal(t, id, parsed)
}

func TestParseTransferContent(t *testing.T) {
	id := uuid.MustParse("a1b2c3d4-e5f6-4a8b-9c0d-112233445566")
	hex := strings.ReplaceAll(id.String(), "-", "")

	cases := []struct {
		name    string
		content string
		wantOK  bool
	}{
		{"exact tag", "TLPAY" + hex, true},
		{"lowercase", strings.ToLower("TLPAY" + hex), true},
		{"mixed case", "TlPaY" + strings.ToUpper(hex), true},
		{"space after prefix", "TLPAY " + hex, true},
		{"dashes inside prefix gap", "TLPAY--" + hex, true},
		{"surrounded by bank noise", "CT DEN:512 TLPAY" + hex + " GD 123-456", true},
		{"tag mid sentence", "thanh toan don hang TLPAY" + hex + " cam on", true},
		{"empty", "", false},
		{"no tag", "chuyen tien an trua", false},
		{"prefix only", "TLPAY", false},
		{"token too short", "TLPAY" + hex[:31], false},
		{"token not hex", "TLPAY" + strings.Repeat("z", 32), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			parsed, ok := ParseTransferContent(tc.content)
			require.Equal(t, tc.wantOK, ok)
			if tc.wantOK {
				assert.Equal(t, id, parsed)
			} else {
				assert.Equal(t, uuid.Nil, parsed)
			}
		})
	}
}

func TestParseTransferContentUsesFirstMatch(t *testing.T) {
	first := uuid.New()
	second := uuid.New()
	content := BuildTransferContent(first) + " " + BuildTransferContent(second)

	parsed, ok := ParseTransferContent(content)
	require.True(t, ok)
	assert.Equal(t, first, parsed)
}
