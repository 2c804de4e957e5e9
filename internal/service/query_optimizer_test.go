package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOptimizeRewritesInSubqueryToExists(t *testing.T) {
	o := NewQueryOptimizer(nil)

	out, changed := o.Optimize("SELECT o.id FROM orders o WHERE o.customer_id IN (SELECT id FROM customers)")
	assert.True(t, changed)
	assert.Contains(t, out, "EXISTS (SELECT 1 FROM customers WHERE customers.id = o.customer_id)")
	assert.NotContains(t, out, " IN (")
}

func TestOptimizeRewritesImplicitJoin(t *testing.T) {
	o := NewQueryOptimizer(nil)

	out, changed := o.Optimize("SELECT u.name FROM users, orders WHERE users.id = orders.user_id")
	assert.True(t, changed)
	assert.Contains(t, out, "FROM users INNER JOIN orders ON users.id = orders.user_id")
}

func TestOptimizeAddsParallelHintForGroupBy(t *testing.T) {
	o := NewQueryOptimizer(nil)

	out, changed := o.Optimize("SELECT region, COUNT(1) FROM orders GROUP BY region")
	assert.True(t, changed)
	assert.True(t, len(out) > 0 && out[0] == '/', "hint should be prepended")
	assert.Contains(t, out, "/*+ PARALLEL(4) */ SELECT")
}

func TestOptimizeAddsIndexHints(t *testing.T) {
	o := NewQueryOptimizer(map[string][]string{"orders": {"idx_user_id"}})

	out, changed := o.Optimize("SELECT id FROM orders WHERE user_id = 1")
	assert.True(t, changed)
	assert.Contains(t, out, "FROM /*+ INDEX(orders idx_user_id) */ orders")
}

func TestOptimizeLeavesPlainQueryUnchanged(t *testing.T) {
	o := NewQueryOptimizer(nil)

	query := "SELECT id, name FROM users WHERE id = 1"
	out, changed := o.Optimize(query)
	assert.False(t, changed)
	assert.Equal(t, query, out)
}

func TestOptimizePushesDownDerivedPredicates(t *testing.T) {
	o := NewQueryOptimizer(nil)

	out, changed := o.Optimize("SELECT t.region FROM (SELECT region, COUNT(1) cnt FROM orders GROUP BY region) t WHERE t.region = 'west'")
	assert.True(t, changed)
	assert.Contains(t, out, "WHERE t.region = 'west' GROUP BY")
}
