// Package eth implements the Ethereum personal_sign (EIP-191 version 0x45) scheme used by
// browser wallets: hashing, signing and signer recovery over secp256k1.
package eth

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/layer-3/walletauth/core"
)

// SignatureLength is the size of an r || s || v signature
const SignatureLength = crypto.SignatureLength

// TextHash returns keccak256("\x19Ethereum Signed Message:\n" + len(message) + message)
func TextHash(message string) []byte {
	return accounts.TextHash([]byte(message))
}

// SignText signs message the way a wallet answers personal_sign, returning 0x-hex with v in {27, 28}
func SignText(key *ecdsa.PrivateKey, message string) (string, error) {
	sig, err := crypto.Sign(TextHash(message), key)
	if err != nil {
		return "", fmt.Errorf("failed to sign message: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	return hexutil.Encode(sig), nil
}

// Recover returns the address that produced signature over message.
// Any decoding or recovery problem is reported as core.ErrMalformedSignature.
func Recover(message, signature string) (common.Address, error) {
	sig, err := hexutil.Decode(signature)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to decode signature: %w", core.ErrMalformedSignature)
	}
	if len(sig) != SignatureLength {
		return common.Address{}, fmt.Errorf("signature must be %d bytes: %w", SignatureLength, core.ErrMalformedSignature)
	}

	v := sig[crypto.RecoveryIDOffset]
	if v >= 27 {
		v -= 27
	}
	r := new(big.Int).SetBytes(sig[:32])
	s := new(big.Int).SetBytes(sig[32:64])
	if !crypto.ValidateSignatureValues(v, r, s, true) {
		return common.Address{}, fmt.Errorf("signature values out of range: %w", core.ErrMalformedSignature)
	}

	// sig is a fresh slice from Decode, safe to normalize in place
	sig[crypto.RecoveryIDOffset] = v
	pub, err := crypto.SigToPub(TextHash(message), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to recover public key: %w", core.ErrMalformedSignature)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// Verify recovers the signer of message and compares it with the claimed address, ignoring case
func Verify(claimed, message, signature string) core.VerificationResult {
	recovered, err := Recover(message, signature)
	if err != nil {
		return core.VerificationResult{FailureReason: core.ReasonMalformedSignature}
	}

	result := core.VerificationResult{RecoveredAddress: recovered.Hex()}
	if strings.EqualFold(recovered.Hex(), strings.TrimSpace(claimed)) {
		result.MatchesClaim = true
	} else {
		result.FailureReason = core.ReasonSignatureMismatch
	}
	return result
}

// AddressOf derives the wallet address for a private key
func AddressOf(key *ecdsa.PrivateKey) common.Address {
	return crypto.PubkeyToAddress(key.PublicKey)
}
