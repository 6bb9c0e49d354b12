package xerror

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewFatalWrapsAndUnwraps(t *testing.T) {
	err := NewFatal(ProtocolViolation, "%w: offset %d", ErrRingOverflow, 5)

	require.True(t, IsFatal(err))
	require.ErrorIs(t, err, ErrRingOverflow)
	require.Contains(t, err.Error(), "protocol-violation")
}

func TestIsFatalFalseForPlainError(t *testing.T) {
	require.False(t, IsFatal(errors.New("boring error")))
}

func TestCategoryString(t *testing.T) {
	require.Equal(t, "configuration", Configuration.String())
	require.Equal(t, "transient", Transient.String())
	require.Equal(t, "transport-fatal", TransportFatal.String())
	require.Equal(t, "protocol-violation", ProtocolViolation.String())
	require.Equal(t, "resource-exhaustion", ResourceExhaustion.String())
}
