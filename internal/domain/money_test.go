package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestToMinorUnits(t *testing.T) {
	tests := []struct {
		amount   string
		expected int64
	}{
		{"20", 2000},
		{"20.00", 2000},
		{"0.01", 1},
		{"10.005", 1001},
		{"10.004", 1000},
		{"19.999", 2000},
		{"1234.56", 123456},
		{"0", 0},
	}

	for _, tt := range tests {
		t.Run(tt.amount, func(t *testing.T) {
			assert.Equal(t, tt.expected, ToMinorUnits(decimal.RequireFromString(tt.amount)))
		})
	}
}

func TestFromMinorUnits(t *testing.T) {
	assert.True(t, decimal.RequireFromString("20").Equal(FromMinorUnits(2000)))
	assert.True(t, decimal.RequireFromString("0.05").Equal(FromMinorUnits(5)))
	assert.Equal(t, int64(123456), ToMinorUnits(FromMinorUnits(123456)))
}
