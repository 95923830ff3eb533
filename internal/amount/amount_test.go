package amount

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/marketfund/internal/domain"
)

func mustBig(t *testing.T, s string) *big.Int {
	t.Helper()
	v, ok := new(big.Int).SetString(s, 10)
	require.True(t, ok, s)
	return v
}

// maxUint256 is 2^256-1.
const maxUint256 = "115792089237316195423570985008687907853269984665640564039457584007913129639935"

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		decimals uint8
		want     string
		wantErr  bool
	}{
		{name: "empty is zero", in: "", decimals: 18, want: "0"},
		{name: "integer", in: "3", decimals: 6, want: "3000000"},
		{name: "fraction", in: "1.5", decimals: 18, want: "1500000000000000000"},
		{name: "trailing zeros beyond decimals", in: "1.50", decimals: 1, want: "15"},
		{name: "surrounding spaces", in: " 2.25 ", decimals: 2, want: "225"},
		{name: "too many decimals", in: "0.001", decimals: 2, wantErr: true},
		{name: "negative", in: "-1", decimals: 18, wantErr: true},
		{name: "garbage", in: "abc", decimals: 18, wantErr: true},
		{name: "huge exponent", in: "1e100000000", decimals: 18, wantErr: true},
		{name: "unit exponent", in: "1.5e0", decimals: 18, wantErr: true},
		{name: "upper case exponent", in: "2E3", decimals: 0, wantErr: true},
		{name: "largest uint256", in: maxUint256, decimals: 0, want: maxUint256},
		{name: "overflows uint256", in: maxUint256, decimals: 1, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.in, tt.decimals)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, domain.ErrInvalidAmount)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestParseExponentIsFast(t *testing.T) {
	start := time.Now()
	_, err := Parse("1e100000000", 18)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
	assert.Less(t, time.Since(start), time.Second)
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "1.50", Format(mustBig(t, "1500000000000000000"), 18))
	assert.Equal(t, "0.00", Format(nil, 18))
	assert.Equal(t, "12.35", Format(mustBig(t, "12345"), 3))
	assert.Equal(t, "1.5", FormatInput(mustBig(t, "1500000"), 6))
}

func TestPercentage(t *testing.T) {
	assert.Nil(t, Percentage(big.NewInt(5), big.NewInt(0)))
	assert.Nil(t, Percentage(big.NewInt(5), nil))

	p := Percentage(big.NewInt(1), big.NewInt(4))
	require.NotNil(t, p)
	assert.InDelta(t, 25.0, *p, 1e-9)
	assert.Equal(t, "25.00", FormatPercentage(p))
	assert.Equal(t, "", FormatPercentage(nil))
}

func TestDivZeroDivisor(t *testing.T) {
	assert.Equal(t, 0.0, Div(big.NewInt(3), big.NewInt(0)))
	assert.InDelta(t, 0.5, Div(big.NewInt(1), big.NewInt(2)), 1e-12)
}
