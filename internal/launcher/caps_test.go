package launcher

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateCapabilities_Known(t *testing.T) {
	require.NoError(t, ValidateCapabilities([]string{"CAP_NET_BIND_SERVICE", "CAP_CHOWN"}))
}

func TestValidateCapabilities_Unknown(t *testing.T) {
	err := ValidateCapabilities([]string{"CAP_MADE_UP"})
	require.Error(t, err)
}

func TestCapBitOf(t *testing.T) {
	bit, ok := CapBitOf("CAP_SETUID")
	require.True(t, ok)
	require.EqualValues(t, 7, bit)

	_, ok = CapBitOf("CAP_NOT_REAL")
	require.False(t, ok)
}
