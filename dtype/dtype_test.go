package dtype

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPromoteSameType(t *testing.T) {
	require.Equal(t, F32, Promote(F32, F32, DefaultCaps()))
}

func TestPromoteBoolYieldsOther(t *testing.T) {
	require.Equal(t, I32, Promote(B8, I32, DefaultCaps()))
	require.Equal(t, I32, Promote(I32, B8, DefaultCaps()))
}

func TestPromoteFloatBeatsInt(t *testing.T) {
	require.Equal(t, F32, Promote(F32, I64, DefaultCaps()))
}

func TestPromoteWidensToLarger(t *testing.T) {
	require.Equal(t, I64, Promote(I32, I64, DefaultCaps()))
}

func TestPromoteClipsToCaps(t *testing.T) {
	caps := Caps{MaxFloat: F32, MaxInt: I32}
	require.Equal(t, F32, Promote(F32, F64, caps))
	require.Equal(t, I32, Promote(I32, I64, caps))
}
