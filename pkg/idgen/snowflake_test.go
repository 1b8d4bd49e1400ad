package idgen

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateUniqueAcrossGoroutines(t *testing.T) {
	g, err := NewSnowflake(3)
	require.NoError(t, err)

	const workers, perWorker = 8, 2000
	ids := make(chan int64, workers*perWorker)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				ids <- g.Generate()
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[int64]bool, workers*perWorker)
	for id := range ids {
		require.False(t, seen[id])
		seen[id] = true
	}
}

func TestNumberPrefixes(t *testing.T) {
	require.True(t, strings.HasPrefix(OrderNo(), PrefixOrder))
	require.True(t, strings.HasPrefix(LedgerNo(), PrefixLedger))
	require.True(t, strings.HasPrefix(RefundNo(), PrefixRefund))
	require.NotEqual(t, OrderNo(), OrderNo())
}

func TestInvalidWorkerID(t *testing.T) {
	_, err := NewSnowflake(maxWorkerID + 1)
	require.Error(t, err)
	require.Error(t, Init(-1))
}
