package authorization

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"mintgate/internal/mint/models"
)

// RecoverPersonalSigner returns the wallet that produced signatureHex over the
// personal message text. Failures wrap ErrSignatureInvalid.
func RecoverPersonalSigner(message, signatureHex string) (common.Address, error) {
	sig, err := hexutil.Decode(signatureHex)
	if err != nil {
		return common.Address{}, invalid(fmt.Errorf("decode signature: %w", err))
	}
	if len(sig) != ethcrypto.SignatureLength {
		return common.Address{}, invalid(fmt.Errorf("signature must be %d bytes, got %d", ethcrypto.SignatureLength, len(sig)))
	}
	sig = append([]byte(nil), sig...)
	switch v := sig[ethcrypto.RecoveryIDOffset]; v {
	case 0, 1:
	case 27, 28:
		sig[ethcrypto.RecoveryIDOffset] = v - 27
	default:
		return common.Address{}, invalid(fmt.Errorf("invalid recovery id %d", v))
	}

	pub, err := ethcrypto.SigToPub(accounts.TextHash([]byte(message)), sig)
	if err != nil {
		return common.Address{}, invalid(fmt.Errorf("recover pubkey: %w", err))
	}
	return ethcrypto.PubkeyToAddress(*pub), nil
}

func invalid(err error) error {
	return errors.Join(models.ErrSignatureInvalid, err)
}
