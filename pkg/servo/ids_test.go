package servo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIDRange(t *testing.T) {
	assert.Equal(t, 29, DefaultScanRange.Len())
	assert.Equal(t, 254, FullScanRange.Len())
	assert.Equal(t, []int{3, 4, 5}, IDRange{First: 3, Last: 5}.IDs())
	assert.Equal(t, "1-29", DefaultScanRange.String())

	assert.NoError(t, FullScanRange.Validate())
	assert.ErrorIs(t, IDRange{First: 5, Last: 4}.Validate(), ErrInvalidID)
	assert.ErrorIs(t, IDRange{First: 1, Last: 254}.Validate(), ErrInvalidID)
	assert.ErrorIs(t, IDRange{First: -1, Last: 3}.Validate(), ErrInvalidID)
	assert.Zero(t, IDRange{First: 5, Last: 4}.Len())
}

func TestParseIDs(t *testing.T) {
	tests := []struct {
		in   string
		want []int
	}{
		{"1", []int{1}},
		{"3,7,12", []int{3, 7, 12}},
		{"1-4", []int{1, 2, 3, 4}},
		{"12, 1-3 ,2", []int{1, 2, 3, 12}},
		{"", nil},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseIDs(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseIDs_Invalid(t *testing.T) {
	for _, in := range []string{"x", "1-y", "254", "9-3"} {
		_, err := ParseIDs(in)
		assert.Error(t, err, in)
	}
}

func TestValidateID(t *testing.T) {
	assert.NoError(t, ValidateID(0))
	assert.NoError(t, ValidateID(253))
	assert.ErrorIs(t, ValidateID(254), ErrInvalidID)
	assert.ErrorIs(t, ValidateID(-1), ErrInvalidID)
}
