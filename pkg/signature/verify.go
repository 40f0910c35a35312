package signature

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/sha256"
	"encoding/asn1"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"chainproof/pkg/evidencehash"
)

var (
	ErrUnsupportedKey        = errors.New("unsupported key")
	ErrInvalidSignature      = errors.New("invalid signature")
	ErrInvalidEncoding       = errors.New("invalid encoding")
	ErrPublicKeyHashMismatch = errors.New("public key hash mismatch")
)

// PublicKeyHash is the pseudonymous identifier of a whistleblower: the sha256
// of the JWK exactly as the browser serialized it.
func PublicKeyHash(jwkJSON string) string {
	return evidencehash.HashStringSHA256Hex(jwkJSON)
}

func ParseJWK(jwkJSON string) (*ecdsa.PublicKey, error) {
	var k JWK
	if err := json.Unmarshal([]byte(strings.TrimSpace(jwkJSON)), &k); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEncoding, err)
	}
	if k.Kty != "EC" || k.Crv != "P-256" {
		return nil, ErrUnsupportedKey
	}
	xb, err := decodeBase64URLNoPaddingStrict(k.X)
	if err != nil || len(xb) != 32 {
		return nil, ErrInvalidEncoding
	}
	yb, err := decodeBase64URLNoPaddingStrict(k.Y)
	if err != nil || len(yb) != 32 {
		return nil, ErrInvalidEncoding
	}
	curve := elliptic.P256()
	x := new(big.Int).SetBytes(xb)
	y := new(big.Int).SetBytes(yb)
	if !curve.IsOnCurve(x, y) {
		return nil, ErrInvalidEncoding
	}
	return &ecdsa.PublicKey{Curve: curve, X: x, Y: y}, nil
}

// VerifyWebCrypto checks an ECDSA P-256/SHA-256 signature produced by
// SubtleCrypto.sign over data.
func VerifyWebCrypto(data []byte, jwkJSON, signature string) error {
	pub, err := ParseJWK(jwkJSON)
	if err != nil {
		return err
	}
	sigBytes, err := decodeSignatureBytesCompat(signature)
	if err != nil {
		return ErrInvalidEncoding
	}
	r, s, err := parseES256Signature(sigBytes)
	if err != nil {
		return ErrInvalidEncoding
	}
	digest := sha256.Sum256(data)
	if !ecdsa.Verify(pub, digest[:], r, s) {
		return ErrInvalidSignature
	}
	return nil
}

// VerifyOwnership binds the submitted key to publicKeyHash and then checks
// that the key signed the original file hash.
func VerifyOwnership(publicKeyHash, jwkJSON, fileHash, signature string) error {
	if !evidencehash.HashesMatch(PublicKeyHash(jwkJSON), publicKeyHash) {
		return ErrPublicKeyHashMismatch
	}
	return VerifyWebCrypto([]byte(fileHash), jwkJSON, signature)
}

func decodeSignatureBytesCompat(in string) ([]byte, error) {
	s := strings.TrimSpace(in)
	if s == "" {
		return nil, ErrInvalidEncoding
	}
	// btoa output from the browser is std base64 with padding.
	if std, err := base64.StdEncoding.DecodeString(s); err == nil {
		return std, nil
	}
	if rawStd, err := base64.RawStdEncoding.DecodeString(s); err == nil {
		return rawStd, nil
	}
	if b, err := decodeBase64URLNoPaddingStrict(s); err == nil {
		return b, nil
	}
	return nil, ErrInvalidEncoding
}

func decodeBase64URLNoPaddingStrict(in string) ([]byte, error) {
	s := strings.TrimSpace(in)
	if s == "" || strings.Contains(s, "=") {
		return nil, ErrInvalidEncoding
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !((c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') || c == '-' || c == '_') {
			return nil, ErrInvalidEncoding
		}
	}
	out, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, ErrInvalidEncoding
	}
	if base64.RawURLEncoding.EncodeToString(out) != s {
		return nil, ErrInvalidEncoding
	}
	return out, nil
}

func parseES256Signature(sig []byte) (*big.Int, *big.Int, error) {
	if len(sig) == 64 {
		r := new(big.Int).SetBytes(sig[:32])
		s := new(big.Int).SetBytes(sig[32:])
		if r.Sign() <= 0 || s.Sign() <= 0 {
			return nil, nil, ErrInvalidEncoding
		}
		return r, s, nil
	}
	var der struct {
		R *big.Int
		S *big.Int
	}
	rest, err := asn1.Unmarshal(sig, &der)
	if err != nil || len(rest) != 0 || der.R == nil || der.S == nil {
		return nil, nil, ErrInvalidEncoding
	}
	if der.R.Sign() <= 0 || der.S.Sign() <= 0 {
		return nil, nil, ErrInvalidEncoding
	}
	return der.R, der.S, nil
}
