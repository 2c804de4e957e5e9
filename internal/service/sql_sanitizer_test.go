package service

import (
	"errors"
	"testing"

	"ai-assist-go/pkg/errs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeRejectsDangerousKeywords(t *testing.T) {
	s := NewSQLSanitizer(1000)

	cases := []string{
		"DROP TABLE users",
		"SELECT * FROM users; DELETE FROM users",
		"select id from users where name = 'x' -- comment",
		"SELECT * FROM users WHERE id = 1; exec xp_cmdshell 'dir'",
		"UPDATE users SET role = 'admin'",
		"INSERT INTO users VALUES (1)",
		"TRUNCATE TABLE orders",
	}
	for _, query := range cases {
		_, err := s.Sanitize(query)
		require.Error(t, err, "query should be rejected: %s", query)
		assert.True(t, errors.Is(err, errs.ErrValidation))
	}
}

func TestSanitizeRejectsNonSelect(t *testing.T) {
	s := NewSQLSanitizer(1000)

	_, err := s.Sanitize("SHOW TABLES")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrValidation))
}

func TestSanitizeAppendsLimit(t *testing.T) {
	s := NewSQLSanitizer(500)

	out, err := s.Sanitize("SELECT id, name FROM users;")
	require.NoError(t, err)
	assert.Equal(t, "SELECT id, name FROM users LIMIT 500", out)
}

func TestSanitizeKeepsExistingLimit(t *testing.T) {
	s := NewSQLSanitizer(500)

	out, err := s.Sanitize("SELECT id FROM users LIMIT 10")
	require.NoError(t, err)
	assert.Equal(t, "SELECT id FROM users LIMIT 10", out)
}

func TestSanitizeAllowsOptimizerHintPrefix(t *testing.T) {
	s := NewSQLSanitizer(1000)

	out, err := s.Sanitize("/*+ PARALLEL(4) */ SELECT region, COUNT(1) FROM orders GROUP BY region LIMIT 10")
	require.NoError(t, err)
	assert.Contains(t, out, "PARALLEL(4)")
}

func TestCheckDangerousSQLKeywordIsWholeWord(t *testing.T) {
	// "created_at" 包含 "create" 子串但不是独立关键字
	assert.NoError(t, CheckDangerousSQL("SELECT created_at FROM users"))
	assert.Error(t, CheckDangerousSQL("CREATE TABLE x (id int)"))
}

func TestExtractParams(t *testing.T) {
	s := NewSQLSanitizer(1000)

	query, params := s.ExtractParams("SELECT id FROM users WHERE name = 'alice' AND age = '30' AND score = '1.5'")
	assert.Equal(t, "SELECT id FROM users WHERE name = ? AND age = ? AND score = ?", query)
	require.Len(t, params, 3)
	assert.Equal(t, "alice", params[0])
	assert.Equal(t, int64(30), params[1])
	assert.Equal(t, 1.5, params[2])
}

func TestExtractParamsNoLiterals(t *testing.T) {
	s := NewSQLSanitizer(1000)

	query, params := s.ExtractParams("SELECT id FROM users")
	assert.Equal(t, "SELECT id FROM users", query)
	assert.Empty(t, params)
}
