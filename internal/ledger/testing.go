package ledger

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SeedBalance is a test helper that sets a wallet balance directly when using
// the in-memory store. It bypasses the transaction log on purpose: invariant
// tests seed through Credit instead.
func SeedBalance(s Store, walletID uuid.UUID, amount decimal.Decimal) {
	if mem, ok := s.(*MemoryStore); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		if w, exists := mem.wallets[walletID]; exists {
			w.Balance = amount
			mem.wallets[walletID] = w
		}
	}
}
