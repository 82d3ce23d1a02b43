package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestScale(t *testing.T) {
	require.EqualValues(t, 2, Scale("MYR"))
	require.EqualValues(t, 2, Scale("USD"))
	require.EqualValues(t, 0, Scale("JPY"))
	require.EqualValues(t, 3, Scale("KWD"))
	require.EqualValues(t, 2, Scale("???"))
}

func TestRound(t *testing.T) {
	d := decimal.RequireFromString("10.005")
	require.True(t, Round("MYR", d).Equal(decimal.RequireFromString("10.01")))
	require.True(t, Round("JPY", d).Equal(decimal.RequireFromString("10")))
}

func TestWithinTolerance(t *testing.T) {
	a := decimal.RequireFromString("100.00")
	require.True(t, WithinTolerance("MYR", a, decimal.RequireFromString("100.01")))
	require.False(t, WithinTolerance("MYR", a, decimal.RequireFromString("100.02")))
	require.True(t, WithinTolerance("MYR", a, a))
}

func TestEqual(t *testing.T) {
	require.True(t, Equal("MYR", decimal.RequireFromString("1.005"), decimal.RequireFromString("1.0051")))
	require.False(t, Equal("MYR", decimal.RequireFromString("1.00"), decimal.RequireFromString("1.01")))
}
