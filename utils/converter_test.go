package utils

import (
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{name: "integer", in: "100", want: "100"},
		{name: "six decimals", in: "0.000001", want: "0.000001"},
		{name: "trailing zeros", in: "12.500000000", want: "12.5"},
		{name: "whitespace", in: " 7.25 ", want: "7.25"},
		{name: "too precise", in: "0.0000001", wantErr: true},
		{name: "zero", in: "0", wantErr: true},
		{name: "negative", in: "-1", wantErr: true},
		{name: "garbage", in: "1e", wantErr: true},
		{name: "empty", in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAmount(tt.in, 6)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, got.Equal(decimal.RequireFromString(tt.want)), "got %s", got)
		})
	}
}

func TestToSmallestUnit(t *testing.T) {
	v, err := ToSmallestUnit(decimal.RequireFromString("12.5"), 6)
	require.NoError(t, err)
	assert.Equal(t, "12500000", v.String())

	v, err = ToSmallestUnit(decimal.RequireFromString("1"), 18)
	require.NoError(t, err)
	assert.Equal(t, "1000000000000000000", v.String())

	_, err = ToSmallestUnit(decimal.RequireFromString("0.0000001"), 6)
	require.Error(t, err)
}

func TestFromSmallestUnit(t *testing.T) {
	got := FromSmallestUnit(big.NewInt(100_250_000), 6)
	assert.Equal(t, "100.25", got.String())

	wei, ok := new(big.Int).SetString("1500000000000000000", 10)
	require.True(t, ok)
	assert.Equal(t, "1.5", FromSmallestUnit(wei, 18).String())

	assert.True(t, FromSmallestUnit(nil, 6).IsZero())
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "10.500000000000000000", FormatAmount(decimal.RequireFromString("10.5")))
	assert.Equal(t, "0.000000000000000000", FormatAmount(decimal.Zero))
}
