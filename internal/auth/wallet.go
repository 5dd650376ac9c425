package auth

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// LoginMessage is the EIP-191 personal message a wallet signs to prove
// ownership of its address. The nonce is single use.
func LoginMessage(address, nonce string) string {
	return fmt.Sprintf("chainlance login\naddress: %s\nnonce: %s", strings.ToLower(address), nonce)
}

// VerifySignature recovers the signer of an EIP-191 personal-sign signature
// and checks it against the claimed address.
func VerifySignature(address, message, sigHex string) error {
	sig, err := hex.DecodeString(strings.TrimPrefix(sigHex, "0x"))
	if err != nil {
		return fmt.Errorf("decode signature: %w", err)
	}
	if len(sig) != 65 {
		return fmt.Errorf("signature must be 65 bytes, got %d", len(sig))
	}

	// Wallets emit V as 27/28, crypto.SigToPub wants 0/1.
	if sig[64] >= 27 {
		sig = append([]byte(nil), sig...)
		sig[64] -= 27
	}

	pub, err := crypto.SigToPub(accounts.TextHash([]byte(message)), sig)
	if err != nil {
		return fmt.Errorf("recover signer: %w", err)
	}

	recovered := crypto.PubkeyToAddress(*pub)
	if recovered != common.HexToAddress(address) {
		return fmt.Errorf("signature does not match address %s", address)
	}
	return nil
}
