package core

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// NormalizeAddress validates a 0x-prefixed 20-byte hex address and returns it lower-cased.
// Mixed-case (EIP-55) input is accepted; the checksum is treated as cosmetic.
func NormalizeAddress(address string) (string, error) {
	address = strings.TrimSpace(address)
	if len(address) != 2+2*common.AddressLength || !strings.HasPrefix(address, "0x") {
		return "", ErrInvalidAddressFormat
	}
	if !common.IsHexAddress(address) {
		return "", ErrInvalidAddressFormat
	}
	return strings.ToLower(address), nil
}

// ChecksumAddress returns the EIP-55 display form of a valid address
func ChecksumAddress(address string) string {
	return common.HexToAddress(address).Hex()
}
