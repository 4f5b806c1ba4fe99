package messaging

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryInboxClaimOnce(t *testing.T) {
	inbox := NewMemoryInbox()
	ctx := context.Background()

	claimed, err := inbox.ClaimTx(ctx, nil, "payments.billing", "evt-1")
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = inbox.ClaimTx(ctx, nil, "payments.billing", "evt-1")
	require.NoError(t, err)
	assert.False(t, claimed)
}

func TestMemoryInboxScopesClaimsPerConsumer(t *testing.T) {
	inbox := NewMemoryInbox()
	ctx := context.Background()

	claimed, err := inbox.ClaimTx(ctx, nil, "payments.billing", "evt-1")
	require.NoError(t, err)
	require.True(t, claimed)

	claimed, err = inbox.ClaimTx(ctx, nil, "payments.notifications", "evt-1")
	require.NoError(t, err)
	assert.True(t, claimed)
}

func TestMemoryInboxConcurrentClaimsHaveOneWinner(t *testing.T) {
	inbox := NewMemoryInbox()
	ctx := context.Background()

	const workers = 16
	var wg sync.WaitGroup
	wins := make([]bool, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			claimed, err := inbox.ClaimTx(ctx, nil, "payments.billing", "evt-contended")
			assert.NoError(t, err)
			wins[i] = claimed
		}(i)
	}
	wg.Wait()

	var winners int
	for _, won := range wins {
		if won {
			winners++
		}
	}
	assert.Equal(t, 1, winners)
}
