package cryptopay

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
)

// Tron addresses are base58check: a 0x41 version byte, 20 address bytes and a 4-byte checksum
const (
	tronAddressVersion = 0x41
	tronPayloadLen     = 21
	tronChecksumLen    = 4
)

func isTronAddress(address string) bool {
	decoded, err := base58.Decode(address)
	if err != nil || len(decoded) != tronPayloadLen+tronChecksumLen || decoded[0] != tronAddressVersion {
		return false
	}
	first := sha256.Sum256(decoded[:tronPayloadLen])
	second := sha256.Sum256(first[:])
	return bytes.Equal(second[:tronChecksumLen], decoded[tronPayloadLen:])
}

// ValidateAddress checks that address is well-formed for chain
func ValidateAddress(chain Chain, address string) error {
	address = strings.TrimSpace(address)
	if address == "" {
		return newValidationError("address", "address is required", nil)
	}

	invalid := func(format string) error {
		return newValidationError("address", fmt.Sprintf("address is not a valid %s address", format), map[string]interface{}{
			"chain":    string(chain),
			"received": address,
		})
	}

	switch chain.Family() {
	case FamilyEVM:
		if !common.IsHexAddress(address) {
			return invalid("EVM")
		}
		if address == (common.Address{}).Hex() {
			return invalid("non-zero EVM")
		}
	case FamilySolana:
		if _, err := solana.PublicKeyFromBase58(address); err != nil {
			return invalid("Solana")
		}
	case FamilyTron:
		if !isTronAddress(address) {
			return invalid("Tron")
		}
	default:
		return newValidationError("chain", fmt.Sprintf("unsupported chain %q", chain), nil)
	}
	return nil
}
