package cryptopay

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateAddress(t *testing.T) {
	tests := []struct {
		name    string
		chain   Chain
		address string
		valid   bool
	}{
		{"evm checksummed", ChainEthereum, "0x52908400098527886E0F7030069857D2E4169EE7", true},
		{"evm lowercase on polygon", ChainPolygon, "0x52908400098527886e0f7030069857d2e4169ee7", true},
		{"evm zero address", ChainBase, "0x0000000000000000000000000000000000000000", false},
		{"evm short", ChainBSC, "0x5290840009852788", false},
		{"evm not hex", ChainArbitrum, "0xZZ908400098527886E0F7030069857D2E4169EE7", false},
		{"solana", ChainSolana, "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA", true},
		{"solana evm address", ChainSolana, "0x52908400098527886E0F7030069857D2E4169EE7", false},
		{"tron", ChainTron, "TLa2f6VPqDgRE67v1736s7bJ8Ray5wYjU7", true},
		{"tron wrong prefix", ChainTron, "ALa2f6VPqDgRE67v1736s7bJ8Ray5wYjU7", false},
		{"tron invalid char", ChainTron, "TLa2f6VPqDgRE67v1736s7bJ8Ray5wYjU0", false},
		{"tron usdt contract", ChainTron, "TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t", true},
		{"tron bad checksum", ChainTron, "TLa2f6VPqDgRE67v1736s7bJ8Ray5wYjU8", false},
		{"tron typo", ChainTron, "TLa2f6VPqDgRE67v1736s7bJ8Ray5wYjV7", false},
		{"tron wrong version byte", ChainTron, "TjudeCngYQ9J3XG12XNRMEs5kvquoa9rb6", false},
		{"tron truncated", ChainTron, "TLa2f6VPqDgRE67v1736s7bJ8Ray5wYj", false},
		{"empty", ChainEthereum, " ", false},
		{"unknown chain", Chain("bitcoin"), "bc1qar0srrr7xfkvy5l643lydnw9re59gtzzwf5mdq", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAddress(tt.chain, tt.address)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrValidation)
			}
		})
	}
}
