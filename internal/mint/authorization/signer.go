// Package authorization signs mint permissions with the dedicated
// authorization key and verifies the wallet signatures clients send in.
package authorization

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Signer holds the authorization key. It never signs transactions.
type Signer struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// NewSigner loads a hex secp256k1 key, with or without 0x.
func NewSigner(privKeyHex string) (*Signer, error) {
	pkHex := strings.TrimPrefix(strings.TrimSpace(privKeyHex), "0x")
	if pkHex == "" {
		return nil, fmt.Errorf("empty private key")
	}
	key, err := ethcrypto.HexToECDSA(pkHex)
	if err != nil {
		return nil, fmt.Errorf("load private key: %w", err)
	}
	return &Signer{key: key, address: ethcrypto.PubkeyToAddress(key.PublicKey)}, nil
}

// Address is the account the minting contract trusts.
func (s *Signer) Address() common.Address {
	return s.address
}

// SignPersonal signs data as an EIP-191 personal message and returns the
// 65-byte signature with V in {27, 28}.
func (s *Signer) SignPersonal(data []byte) ([]byte, error) {
	sig, err := ethcrypto.Sign(accounts.TextHash(data), s.key)
	if err != nil {
		return nil, fmt.Errorf("sign message: %w", err)
	}
	sig[ethcrypto.RecoveryIDOffset] += 27
	return sig, nil
}
