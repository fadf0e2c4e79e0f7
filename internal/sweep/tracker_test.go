package sweep

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type closeCounter struct {
	name   string
	closed int
}

func (c *closeCounter) Close() error {
	c.closed++
	return nil
}

func TestTracker_StrictGreaterFirstSeenWins(t *testing.T) {
	tr := NewTracker(0)
	assert.False(t, tr.Holding())

	a, b, c := &closeCounter{name: "a"}, &closeCounter{name: "b"}, &closeCounter{name: "c"}
	assert.True(t, tr.Offer("a", 0, 0.9, a))
	assert.True(t, tr.Offer("b", 1, 0.95, b))
	assert.False(t, tr.Offer("c", 2, 0.95, c))

	assert.True(t, tr.Holding())
	assert.Equal(t, "b", tr.RunID())
	assert.Equal(t, 1, tr.Index())
	assert.Equal(t, 0.95, tr.Metric())

	// 被替换和未晋升的模型都已释放，最佳模型没有
	assert.Equal(t, 1, a.closed)
	assert.Equal(t, 0, b.closed)
	assert.Equal(t, 1, c.closed)

	m := tr.Take()
	assert.Same(t, b, m)
	assert.Nil(t, tr.Take())
}

func TestTracker_SentinelNotPromoted(t *testing.T) {
	tr := NewTracker(0)
	m := &closeCounter{}
	assert.False(t, tr.Offer("zero", 0, 0, m))
	assert.False(t, tr.Holding())
	assert.Equal(t, 1, m.closed)
}

func TestTracker_NonCloserModels(t *testing.T) {
	tr := NewTracker(0)
	require.True(t, tr.Offer("x", 0, 0.5, "plain model"))
	require.True(t, tr.Offer("y", 1, 0.6, 42))
	assert.Equal(t, 42, tr.Take())
}

func TestRunIDs_DistinctWithinSameInstant(t *testing.T) {
	fixed := time.Date(2024, 5, 1, 14, 5, 12, 31337000, time.UTC)
	g := &RunIDs{Prefix: "demo_run", Now: func() time.Time { return fixed }}

	ids := map[string]bool{}
	for i := 0; i < 100; i++ {
		ids[g.Next()] = true
	}
	assert.Len(t, ids, 100)

	g2 := &RunIDs{Now: func() time.Time { return fixed }}
	assert.Equal(t, "run_1_140512_031337", g2.Next())
	assert.Equal(t, "run_2_140512_031337", g2.Next())

	g3 := &RunIDs{Scope: "1a2b3c", Now: func() time.Time { return fixed }}
	assert.Equal(t, "run_1_140512_031337_1a2b3c", g3.Next())
}
