package tron

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/fbsobreira/gotron-sdk/pkg/proto/core"
	"google.golang.org/protobuf/proto"
)

// signTransaction signs the transaction raw data with the hot wallet key.
func signTransaction(tx *core.Transaction, privateKeyHex string) (*core.Transaction, error) {
	privateKey, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}

	rawData, err := proto.Marshal(tx.RawData)
	if err != nil {
		return nil, fmt.Errorf("marshal raw data: %w", err)
	}
	hash := sha256.Sum256(rawData)

	signature, err := crypto.Sign(hash[:], privateKey)
	if err != nil {
		return nil, fmt.Errorf("sign hash: %w", err)
	}
	tx.Signature = [][]byte{signature}
	return tx, nil
}

// transactionHash is the sha256 of the serialized raw data, hex encoded. It
// doubles as the transaction id on TRON.
func transactionHash(tx *core.Transaction) (string, error) {
	rawData, err := proto.Marshal(tx.RawData)
	if err != nil {
		return "", fmt.Errorf("marshal raw data: %w", err)
	}
	hash := sha256.Sum256(rawData)
	return hex.EncodeToString(hash[:]), nil
}
