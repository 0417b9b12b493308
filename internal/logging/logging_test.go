package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	for _, env := range []string{"production", "development", "dev", ""} {
		t.Run(env, func(t *testing.T) {
			l, err := New(env)
			require.NoError(t, err)
			assert.NotNil(t, l)
		})
	}
}

func TestNewNamed(t *testing.T) {
	l, err := NewNamed("development", "route-tracker")
	require.NoError(t, err)
	assert.Equal(t, "route-tracker", l.Name())
}
