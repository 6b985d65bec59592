package crypto

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// maxClaimMessageAge bounds replay of a captured claim signature.
const maxClaimMessageAge = 5 * time.Minute

// ClaimMessage returns the canonical text a holder signs to prove control
// of a position before claiming it back.
func ClaimMessage(positionID uint64, issuedAt time.Time) string {
	return fmt.Sprintf("gasvault:claim:%d:%d", positionID, issuedAt.Unix())
}

// RecoverClaimSigner verifies a personal-message signature over the claim
// text for positionID and returns the signing address in lowercase hex.
// Signatures older than maxClaimMessageAge (or timestamped in the future)
// are rejected.
func RecoverClaimSigner(positionID uint64, issuedAt time.Time, signatureHex string, now time.Time) (string, error) {
	age := now.Sub(issuedAt)
	if age > maxClaimMessageAge || age < -time.Minute {
		return "", fmt.Errorf("crypto: claim signature for position %d issued at %d is outside the validity window", positionID, issuedAt.Unix())
	}

	sig, err := hex.DecodeString(strings.TrimPrefix(signatureHex, "0x"))
	if err != nil {
		return "", fmt.Errorf("crypto: invalid signature hex: %w", err)
	}
	if len(sig) != 65 {
		return "", fmt.Errorf("crypto: expected 65-byte signature, got %d bytes", len(sig))
	}

	// Wallets return v in {27,28}; SigToPub wants {0,1}.
	recovery := make([]byte, 65)
	copy(recovery, sig)
	if recovery[64] >= 27 {
		recovery[64] -= 27
	}

	digest := personalMessageDigest(ClaimMessage(positionID, issuedAt))
	pub, err := ethcrypto.SigToPub(digest, recovery)
	if err != nil {
		return "", fmt.Errorf("crypto: recover signer: %w", err)
	}

	return strings.ToLower(ethcrypto.PubkeyToAddress(*pub).Hex()), nil
}

// SignClaim produces the 65-byte hex signature for a claim message, used
// by tests and tooling.
func SignClaim(privateKeyHex string, positionID uint64, issuedAt time.Time) (string, error) {
	key, err := ethcrypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return "", fmt.Errorf("crypto: invalid private key: %w", err)
	}
	sig, err := ethcrypto.Sign(personalMessageDigest(ClaimMessage(positionID, issuedAt)), key)
	if err != nil {
		return "", fmt.Errorf("crypto: signing claim: %w", err)
	}
	if sig[64] < 27 {
		sig[64] += 27
	}
	return "0x" + hex.EncodeToString(sig), nil
}

// personalMessageDigest hashes msg with the Ethereum signed-message
// prefix, matching what wallet personal_sign produces.
func personalMessageDigest(msg string) []byte {
	prefixed := fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(msg), msg)
	return ethcrypto.Keccak256([]byte(prefixed))
}
