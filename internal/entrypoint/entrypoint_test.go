package entrypoint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSRFSecretFrom(t *testing.T) {
	secret, err := csrfSecretFrom("00ff10")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0xff, 0x10}, secret)

	secret, err = csrfSecretFrom("not hex at all")
	require.NoError(t, err)
	assert.Equal(t, []byte("not hex at all"), secret)

	first, err := csrfSecretFrom("")
	require.NoError(t, err)
	second, err := csrfSecretFrom("")
	require.NoError(t, err)
	assert.Len(t, first, 32)
	assert.NotEqual(t, first, second)
}
