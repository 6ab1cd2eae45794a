package db

import (
	"testing"

	"github.com/smallbiznis/creditgate/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDialectByType(t *testing.T) {
	for _, typ := range []string{TypePostgres, TypeMySQL, TypeSQLite, " SQLite "} {
		d, err := Dialect(config.Config{DBType: typ})
		require.NoError(t, err, typ)
		assert.NotNil(t, d)
	}

	_, err := Dialect(config.Config{DBType: "oracle"})
	assert.Error(t, err)
}

func TestSqliteDSN(t *testing.T) {
	assert.Equal(t, "file:creditgate.db?"+sqliteParams, sqliteDSN(""))
	assert.Equal(t, "file:/var/lib/ledger.db?"+sqliteParams, sqliteDSN("/var/lib/ledger.db"))
	assert.Equal(t, "file::memory:?cache=shared", sqliteDSN("file::memory:?cache=shared"))
}
