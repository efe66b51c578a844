package parser

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeCode(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"plain", "ABC123", "ABC123", false},
		{"scanner suffix", "ABC123\r\n", "ABC123", false},
		{"keeps case", "abC-12.x", "abC-12.x", false},
		{"url like", "https://qr.example/p/42", "https://qr.example/p/42", false},
		{"gs1 style", "01:0950110153001#17+2501", "01:0950110153001#17+2501", false},
		{"exactly min", "ABCDE", "ABCDE", false},
		{"too short", "AB12", "", true},
		{"empty", "   ", "", true},
		{"inner space", "ABC 123", "", true},
		{"unsupported char", "ABC$123", "", true},
		{"unicode", "ÄBC123", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeCode(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeCodeLengthBounds(t *testing.T) {
	_, err := NormalizeCode(strings.Repeat("A", MaxCodeLength))
	assert.NoError(t, err)

	_, err = NormalizeCode(strings.Repeat("A", MaxCodeLength+1))
	assert.Error(t, err)
}

func TestIsValidCode(t *testing.T) {
	assert.True(t, IsValidCode("X1-0001"))
	assert.False(t, IsValidCode("X1"))
}
