package db

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingCloser struct{ closed int }

func (c *countingCloser) Close() error {
	c.closed++
	return nil
}

func TestMigrationFailureClosesPool(t *testing.T) {
	pool := &countingCloser{}
	err := migrateOrClose(pool, func() error { return errors.New("permission denied for schema public") })

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to migrate database")
	assert.Equal(t, 1, pool.closed)
}

func TestSuccessfulMigrationKeepsPoolOpen(t *testing.T) {
	pool := &countingCloser{}
	require.NoError(t, migrateOrClose(pool, func() error { return nil }))
	assert.Zero(t, pool.closed)
}

func TestConnectRequiresURL(t *testing.T) {
	_, err := Connect("")
	assert.Error(t, err)
}
