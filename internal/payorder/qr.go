package payorder

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
)

// bankDisplayNames maps bank codes to the display names the QR image host
// expects. Unmapped codes fall back to the configured default bank.
var bankDisplayNames = map[string]string{
	"VCB":  "Vietcombank",
	"TCB":  "Techcombank",
	"MB":   "MBBank",
	"ACB":  "ACB",
	"VPB":  "VPBank",
	"BIDV": "BIDV",
	"VTB":  "VietinBank",
}

// DisplayBankName resolves a bank code to the gateway's display name.
func DisplayBankName(code, fallback string) string {
	if name, ok := bankDisplayNames[strings.ToUpper(code)]; ok {
		return name
	}
	return fallback
}

// BuildQRCodeURL renders the deterministic QR image reference for a transfer.
// The amount is truncated to an integer, matching the image host's contract.
func BuildQRCodeURL(host, account, bankName string, amount decimal.Decimal, content string) string {
	return fmt.Sprintf("%s/img?acc=%s&bank=%s&amount=%d&des=%s",
		strings.TrimRight(host, "/"),
		account,
		url.QueryEscape(bankName),
		amount.IntPart(),
		url.QueryEscape(content))
}
