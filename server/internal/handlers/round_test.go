package handlers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRound(t *testing.T) {
	tests := []struct {
		in     float64
		places int32
		want   float64
	}{
		{0.159387, 2, 0.16},
		{0.159387, 4, 0.1594},
		{0.125, 2, 0.13},
		{2.5, 0, 3},
		{0, 2, 0},
		{1.0 / 3, 10, 0.3333333333},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, round(tt.in, tt.places), "%v@%d", tt.in, tt.places)
	}
}

func TestParsePrecision(t *testing.T) {
	n, err := parsePrecision("")
	assert.NoError(t, err)
	assert.Equal(t, -1, n)

	n, err = parsePrecision("0")
	assert.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = parsePrecision("10")
	assert.NoError(t, err)
	assert.Equal(t, 10, n)

	_, err = parsePrecision("1.5")
	assert.Error(t, err)
}
