package utils

import (
	"errors"
	"fmt"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMultiError(t *testing.T) {
	t.Parallel()

	var m MultiError
	require.NoError(t, m.ErrorOrNil())

	m.Add(nil)
	assert.False(t, m.HasErrors())

	m.Add(errors.New("remove site link"))
	assert.Equal(t, "remove site link", m.Error())

	m.Add(fmt.Errorf("remove project directory /var/www/shop: %w", fs.ErrPermission))
	err := m.ErrorOrNil()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1. remove site link")
	assert.Contains(t, err.Error(), "2. remove project directory /var/www/shop: permission denied")
	assert.ErrorIs(t, err, fs.ErrPermission)
}
