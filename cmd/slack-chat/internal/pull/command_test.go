package pull

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPullCommand(t *testing.T) {
	cmd := NewPullCommand()

	require.NotNil(t, cmd)

	assert.Equal(t, "pull", cmd.Use)
	assert.True(t, cmd.HasExample())

	assert.Nil(t, cmd.Run)
	assert.NotNil(t, cmd.RunE)

	assert.NotNil(t, cmd.Flags().Lookup("since"))
	assert.NotNil(t, cmd.Flags().Lookup("limit"))
	assert.NotNil(t, cmd.Flags().Lookup("type"))
	assert.NotNil(t, cmd.Flags().Lookup("channel"))

	since := cmd.Flags().Lookup("since")
	assert.Equal(t, "yesterday", since.DefValue)
}
