package utils

import "github.com/ethereum/go-ethereum/common"

func IsValidEthereumAddress(address string) bool {
	return common.IsHexAddress(address)
}

// ChecksumAddress returns the EIP-55 form of address so the same account always
// compares equal regardless of the casing it was submitted with.
func ChecksumAddress(address string) string {
	return common.HexToAddress(address).Hex()
}
