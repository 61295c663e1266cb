package db

import (
	"database/sql"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSyncSchema(t *testing.T) {
	rand.Seed(time.Now().UnixNano())
	schema := Schema{
		1: `CREATE TABLE IF NOT EXISTS schema_test (
				zkey INTEGER NOT NULL,
				value INTEGER NOT NULL
		);`,
	}
	config := SQLiteConfig{
		DBname: fmt.Sprintf("schema_test_%d.db", rand.Uint32()),
		Schema: schema,
	}
	resource, err := config.Materialize()
	assert.NoError(t, err)
	conn := resource.(Connection)
	defer conn.Teardown()

	version, err := schemaVersion(conn.DB)
	assert.NoError(t, err)
	assert.Equal(t, uint32(1), version)

	// syncing again is a no-op, not an error
	assert.NoError(t, SyncSchema(conn, schema))
	version, err = schemaVersion(conn.DB)
	assert.NoError(t, err)
	assert.Equal(t, uint32(1), version)

	// a new version gets applied incrementally
	schema[2] = `CREATE TABLE IF NOT EXISTS schema_test_2 (
			zkey INTEGER NOT NULL
	);`
	assert.NoError(t, SyncSchema(conn, schema))
	version, err = schemaVersion(conn.DB)
	assert.NoError(t, err)
	assert.Equal(t, uint32(2), version)

	// and the synced tables are usable
	_, err = conn.Exec("insert into schema_test values (?, ?);", 1, 2)
	assert.NoError(t, err)
	_, err = conn.Exec("insert into schema_test values (?, ?);", 3, 4)
	assert.NoError(t, err)
	row := conn.QueryRow("select zkey + value as total from schema_test where zkey = 3;")
	var total sql.NullInt32
	assert.NoError(t, row.Scan(&total))
	assert.True(t, total.Valid)
	assert.Equal(t, int32(7), total.Int32)
}
