package solana

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
)

const signatureLength = 64

// SignTransaction decodes a base64 wire transaction, fills the signature
// slots belonging to the given signers and re-encodes it. Signature slots of
// signers not provided are left untouched, matching partial-sign semantics.
func SignTransaction(txBase64 string, signers ...Keypair) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(txBase64)
	if err != nil {
		return "", fmt.Errorf("decode transaction: %w", err)
	}
	numSigs, offset, err := decodeCompactU16(raw)
	if err != nil {
		return "", fmt.Errorf("parse signature count: %w", err)
	}
	sigEnd := offset + numSigs*signatureLength
	if sigEnd > len(raw) {
		return "", errors.New("transaction shorter than declared signatures")
	}
	message := raw[sigEnd:]
	signerKeys, err := requiredSigners(message)
	if err != nil {
		return "", err
	}
	if len(signerKeys) != numSigs {
		return "", fmt.Errorf("message requires %d signatures, transaction has %d slots", len(signerKeys), numSigs)
	}
	signed := append([]byte(nil), raw...)
	for _, signer := range signers {
		index := -1
		for i, key := range signerKeys {
			if bytes.Equal(key, signer.PublicKeyBytes()) {
				index = i
				break
			}
		}
		if index < 0 {
			return "", fmt.Errorf("signer %s is not a required signer", signer.PublicKey())
		}
		sig := signer.Sign(message)
		copy(signed[offset+index*signatureLength:], sig)
	}
	return base64.StdEncoding.EncodeToString(signed), nil
}

// requiredSigners returns the leading account keys of the message, which are
// the accounts whose signatures the transaction requires. Handles both legacy
// and versioned message formats (version prefix has the high bit set).
func requiredSigners(message []byte) ([][]byte, error) {
	if len(message) == 0 {
		return nil, errors.New("empty transaction message")
	}
	offset := 0
	if message[0]&0x80 != 0 {
		offset = 1
	}
	if len(message) < offset+3 {
		return nil, errors.New("transaction message header truncated")
	}
	numRequired := int(message[offset])
	offset += 3
	numKeys, n, err := decodeCompactU16(message[offset:])
	if err != nil {
		return nil, fmt.Errorf("parse account keys: %w", err)
	}
	offset += n
	if numRequired > numKeys {
		return nil, errors.New("required signers exceed account keys")
	}
	if len(message) < offset+numKeys*32 {
		return nil, errors.New("account keys truncated")
	}
	keys := make([][]byte, numRequired)
	for i := 0; i < numRequired; i++ {
		keys[i] = message[offset+i*32 : offset+(i+1)*32]
	}
	return keys, nil
}

func decodeCompactU16(data []byte) (value int, read int, err error) {
	for i := 0; i < 3; i++ {
		if i >= len(data) {
			return 0, 0, errors.New("compact-u16 truncated")
		}
		b := int(data[i])
		value |= (b & 0x7f) << (7 * i)
		if b&0x80 == 0 {
			return value, i + 1, nil
		}
	}
	return 0, 0, errors.New("compact-u16 too long")
}
