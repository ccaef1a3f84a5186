package random_test

import (
	"testing"

	"github.com/myrjola/taleweaver/internal/random"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLetters(t *testing.T) {
	s, err := random.Letters(20)
	require.NoError(t, err)
	assert.Len(t, s, 20)

	s2, err := random.Letters(20)
	require.NoError(t, err)
	assert.NotEqual(t, s, s2, "two random ids should not collide")

	empty, err := random.Letters(0)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
