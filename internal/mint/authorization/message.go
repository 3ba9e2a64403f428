package authorization

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// packedLen is bytes32 + address + uint256 + uint256 under abi.encodePacked.
const packedLen = 32 + common.AddressLength + 32 + 32

// PackMessage encodes the authorization tuple exactly as the contract's
// abi.encodePacked(nonce, owner, tokenId, timestamp) does.
func PackMessage(nonce [32]byte, owner common.Address, tokenID int64, timestamp int64) []byte {
	out := make([]byte, 0, packedLen)
	out = append(out, nonce[:]...)
	out = append(out, owner.Bytes()...)
	out = append(out, math.U256Bytes(big.NewInt(tokenID))...)
	out = append(out, math.U256Bytes(big.NewInt(timestamp))...)
	return out
}

// MessageHash is keccak256 of the packed tuple. The server signs these 32
// bytes as a personal message.
func MessageHash(nonce [32]byte, owner common.Address, tokenID int64, timestamp int64) []byte {
	return ethcrypto.Keccak256(PackMessage(nonce, owner, tokenID, timestamp))
}

// ParseNonce decodes a 0x-prefixed bytes32.
func ParseNonce(s string) ([32]byte, error) {
	var nonce [32]byte
	raw, err := hexutil.Decode(s)
	if err != nil {
		return nonce, fmt.Errorf("decode nonce: %w", err)
	}
	if len(raw) != len(nonce) {
		return nonce, fmt.Errorf("nonce must be 32 bytes, got %d", len(raw))
	}
	copy(nonce[:], raw)
	return nonce, nil
}
