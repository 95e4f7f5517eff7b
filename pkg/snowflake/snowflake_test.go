package snowflake

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewIDGenerator(t *testing.T) {
	tests := []struct {
		name    string
		nodeID  int64
		wantErr bool
	}{
		{"valid node", 1, false},
		{"zero node", 0, false},
		{"max node", nodeMask, false},
		{"negative node", -1, true},
		{"node too large", nodeMask + 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := NewIDGenerator(tt.nodeID)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, g)
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, g)
			}
		})
	}
}

func TestNextID_Unique(t *testing.T) {
	g, err := NewIDGenerator(1)
	assert.NoError(t, err)

	seen := make(map[int64]struct{})
	for i := 0; i < 10000; i++ {
		id := g.NextID()
		_, dup := seen[id]
		assert.False(t, dup, "duplicate id %d", id)
		seen[id] = struct{}{}
	}
}

func TestNextID_Monotonic(t *testing.T) {
	g, _ := NewIDGenerator(2)

	prev := g.NextID()
	for i := 0; i < 1000; i++ {
		id := g.NextID()
		assert.Greater(t, id, prev)
		prev = id
	}
}

func TestNextID_Concurrent(t *testing.T) {
	g, _ := NewIDGenerator(3)

	const workers = 8
	const perWorker = 1000

	var mu sync.Mutex
	seen := make(map[int64]struct{}, workers*perWorker)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := make([]int64, 0, perWorker)
			for i := 0; i < perWorker; i++ {
				local = append(local, g.NextID())
			}
			mu.Lock()
			for _, id := range local {
				seen[id] = struct{}{}
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, seen, workers*perWorker)
}

func TestParseID(t *testing.T) {
	g, _ := NewIDGenerator(42)
	id := g.NextID()

	_, nodeID, _ := ParseID(id)
	assert.Equal(t, int64(42), nodeID)
}
