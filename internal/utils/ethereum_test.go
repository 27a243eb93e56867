package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsValidEthereumAddress(t *testing.T) {
	t.Run("ValidAddresses", func(t *testing.T) {
		validAddresses := []string{
			"0x1234567890123456789012345678901234567890",
			"0xd8dA6BF26964aF9D7eEd9e03E53415D37aA96045", // example address
			"0x0000000000000000000000000000000000000000", // zero address
		}

		for _, addr := range validAddresses {
			assert.True(t, IsValidEthereumAddress(addr), "Address should be valid: %s", addr)
		}
	})

	t.Run("InvalidAddresses", func(t *testing.T) {
		invalidAddresses := []string{
			"",      // empty
			"0x123", // too short
			"0x12345678901234567890123456789012345678901", // too long
			"0xGGGGGGGGGGGGGGGGGGGGGGGGGGGGGGGGGGGGGGGG",  // invalid hex chars
			"not-an-address", // completely invalid
		}

		for _, addr := range invalidAddresses {
			assert.False(t, IsValidEthereumAddress(addr), "Address should be invalid: %s", addr)
		}
	})
}

func TestChecksumAddress(t *testing.T) {
	lower := "0xd8da6bf26964af9d7eed9e03e53415d37aa96045"
	upper := "0xD8DA6BF26964AF9D7EED9E03E53415D37AA96045"

	assert.Equal(t, "0xd8dA6BF26964aF9D7eEd9e03E53415D37aA96045", ChecksumAddress(lower))
	assert.Equal(t, ChecksumAddress(lower), ChecksumAddress(upper))
}
