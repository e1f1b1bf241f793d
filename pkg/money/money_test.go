package money

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToMinorUnits(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "0.05", want: "50000000000000000"},
		{in: "1", want: "1000000000000000000"},
		{in: " 2.5 ", want: "2500000000000000000"},
		{in: "0.0000000000000000019", want: "1"},
		{in: "0.00000000000000000099", want: "0"},
		{in: "-0.0000000000000000019", want: "-1"},
	}
	for _, tt := range tests {
		got, err := ToMinorUnits(tt.in, LedgerDecimals)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got.String(), tt.in)
	}
}

func TestToMinorUnitsRejectsGarbage(t *testing.T) {
	_, err := ToMinorUnits("", LedgerDecimals)
	require.Error(t, err)

	_, err = ToMinorUnits("abc", LedgerDecimals)
	require.Error(t, err)
}

func TestFormatRoundTrip(t *testing.T) {
	units, ok := new(big.Int).SetString("50000000000000000", 10)
	require.True(t, ok)
	assert.Equal(t, "0.05", Format(units, LedgerDecimals))
	assert.Equal(t, "0", Format(nil, LedgerDecimals))
}

func TestPercentOf(t *testing.T) {
	total := big.NewInt(1001)
	assert.Equal(t, "1001", PercentOf(total, 100).String())
	assert.Equal(t, "250", PercentOf(total, 25).String())
	assert.Equal(t, "0", PercentOf(total, 0).String())
}

func TestUnixSecondsFloors(t *testing.T) {
	ts := time.UnixMilli(1_700_000_000_999)
	assert.Equal(t, int64(1_700_000_000), UnixSeconds(ts))

	before := time.UnixMilli(-1)
	assert.Equal(t, int64(-1), UnixSeconds(before))
}
