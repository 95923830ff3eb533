package crypto

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Wallet holds the secp256k1 key of the funding account.
type Wallet struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// NewWallet parses a hex private key (0x prefix optional).
func NewWallet(privateKeyHex string) (*Wallet, error) {
	pk, err := ethcrypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("crypto/wallet: invalid private key: %w", err)
	}
	return &Wallet{key: pk, address: ethcrypto.PubkeyToAddress(pk.PublicKey)}, nil
}

// LoadWallet resolves the key from src and builds the wallet.
func LoadWallet(src KeySource) (*Wallet, error) {
	k, err := LoadKey(src)
	if err != nil {
		return nil, err
	}
	return NewWallet(k)
}

// Address returns the checksummed account address.
func (w *Wallet) Address() string { return w.address.Hex() }

// CommonAddress returns the account address.
func (w *Wallet) CommonAddress() common.Address { return w.address }

// SignTx signs tx for chainID with the latest signer the chain supports.
func (w *Wallet) SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), w.key)
	if err != nil {
		return nil, fmt.Errorf("crypto/wallet: sign tx: %w", err)
	}
	return signed, nil
}

// Sender recovers the signer address of a signed tx.
func Sender(tx *types.Transaction) (string, error) {
	from, err := types.Sender(types.LatestSignerForChainID(tx.ChainId()), tx)
	if err != nil {
		return "", fmt.Errorf("crypto/wallet: recover sender: %w", err)
	}
	return from.Hex(), nil
}
