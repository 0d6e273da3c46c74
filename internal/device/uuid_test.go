package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeUUID(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"16-bit", "2902", "2902"},
		{"16-bit uppercase", "2A19", "2a19"},
		{"16-bit with 0x prefix", "0x2902", "2902"},
		{"16-bit with 0X prefix", "0X180F", "180f"},
		{"32-bit", "0000180F", "0000180f"},
		{"SIG base UUID with dashes", "0000180F-0000-1000-8000-00805F9B34FB", "180f"},
		{"SIG base UUID without dashes", "0000180f00001000800000805f9b34fb", "180f"},
		{"sensor service", "90D3D000-C950-4DD6-9410-2B7AEB1DD7D8", "90d3d000c9504dd694102b7aeb1dd7d8"},
		{"surrounding whitespace", "  90d3d002-c950-4dd6-9410-2b7aeb1dd7d8 ", "90d3d002c9504dd694102b7aeb1dd7d8"},
		{"non base 128-bit", "1000180d-0000-1000-8000-00805f9b34fb", "1000180d00001000800000805f9b34fb"},
		{"invalid characters", "90D3D00G", ""},
		{"wrong length", "12345", ""},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeUUID(tt.input), "NormalizeUUID(%q) MUST match", tt.input)
		})
	}
}

func TestValidateUUID(t *testing.T) {
	// GOAL: Verify UUID validation normalizes good input and points at the bad one
	//
	// TEST SCENARIO: Valid list → normalized; empty or malformed entry → error naming its index

	got, err := ValidateUUID("180F", "90D3D002-C950-4DD6-9410-2B7AEB1DD7D8")
	require.NoError(t, err, "valid UUIDs MUST pass")
	assert.Equal(t, []string{"180f", "90d3d002c9504dd694102b7aeb1dd7d8"}, got, "UUIDs MUST be normalized")

	_, err = ValidateUUID()
	assert.EqualError(t, err, "at least one UUID is required")

	_, err = ValidateUUID("180F", "")
	assert.EqualError(t, err, "UUID at index 1 cannot be empty")

	_, err = ValidateUUID("xyz")
	assert.EqualError(t, err, "invalid UUID format at index 0: xyz")
}

func TestShortenUUID(t *testing.T) {
	assert.Equal(t, "90d3d002", ShortenUUID("90d3d002c9504dd694102b7aeb1dd7d8"))
	assert.Equal(t, "2a19", ShortenUUID("2a19"))
}
