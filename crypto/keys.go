package crypto

import (
	"crypto/ecdsa"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcutil/bech32"
	"github.com/ethereum/go-ethereum/crypto"
)

// AddressPrefix defines the human-readable part of a bech32 address.
type AddressPrefix string

const (
	// AccountPrefix identifies user accounts (investors, donors, borrowers).
	AccountPrefix AddressPrefix = "tfi"
	// ContractPrefix identifies collaborator contracts (router, pool, tokens)
	// and the fund custody account.
	ContractPrefix AddressPrefix = "tfic"
)

// AddressLength is the size of the raw account identifier.
const AddressLength = 20

var errAddressLength = errors.New("crypto: address must be 20 bytes long")

// Address is a 20-byte account identifier with a human-readable prefix.
// Addresses are comparable and can be used as map keys.
type Address struct {
	prefix AddressPrefix
	raw    [AddressLength]byte
}

// NewAddress builds an address from a 20-byte slice. It panics on any other
// length; use AddressFromBytes for untrusted input.
func NewAddress(prefix AddressPrefix, b []byte) Address {
	addr, err := AddressFromBytes(prefix, b)
	if err != nil {
		panic(err)
	}
	return addr
}

// AddressFromBytes builds an address from a byte slice, validating its length.
func AddressFromBytes(prefix AddressPrefix, b []byte) (Address, error) {
	if len(b) != AddressLength {
		return Address{}, errAddressLength
	}
	var addr Address
	addr.prefix = prefix
	copy(addr.raw[:], b)
	return addr, nil
}

func (a Address) String() string {
	if a.IsZero() {
		return ""
	}
	conv, err := bech32.ConvertBits(a.raw[:], 8, 5, true)
	if err != nil {
		panic(err)
	}
	encoded, err := bech32.Encode(string(a.prefix), conv)
	if err != nil {
		panic(err)
	}
	return encoded
}

// Bytes returns a copy of the raw identifier.
func (a Address) Bytes() []byte {
	out := make([]byte, AddressLength)
	copy(out, a.raw[:])
	return out
}

// Prefix returns the human-readable prefix associated with the address.
func (a Address) Prefix() AddressPrefix {
	return a.prefix
}

// IsZero reports whether the address is the unset value.
func (a Address) IsZero() bool {
	return a == Address{}
}

// Equal reports whether both addresses carry the same prefix and identifier.
func (a Address) Equal(other Address) bool {
	return a == other
}

// MarshalText encodes the address in its bech32 form.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText decodes a bech32 address. Empty input yields the zero address.
func (a *Address) UnmarshalText(text []byte) error {
	trimmed := strings.TrimSpace(string(text))
	if trimmed == "" {
		*a = Address{}
		return nil
	}
	decoded, err := DecodeAddress(trimmed)
	if err != nil {
		return err
	}
	*a = decoded
	return nil
}

func DecodeAddress(addrStr string) (Address, error) {
	prefix, decoded, err := bech32.Decode(strings.TrimSpace(addrStr))
	if err != nil {
		return Address{}, fmt.Errorf("invalid bech32 string: %w", err)
	}
	conv, err := bech32.ConvertBits(decoded, 5, 8, false)
	if err != nil {
		return Address{}, fmt.Errorf("error converting bits: %w", err)
	}
	return AddressFromBytes(AddressPrefix(prefix), conv)
}

// MustDecodeAddress is DecodeAddress for fixtures and constants.
func MustDecodeAddress(addrStr string) Address {
	addr, err := DecodeAddress(addrStr)
	if err != nil {
		panic(err)
	}
	return addr
}

// --- Key Management ---

type PrivateKey struct {
	*ecdsa.PrivateKey
}

type PublicKey struct {
	*ecdsa.PublicKey
}

func GeneratePrivateKey() (*PrivateKey, error) {
	key, err := ecdsa.GenerateKey(crypto.S256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

// Bytes returns the byte representation of the private key.
func (k *PrivateKey) Bytes() []byte {
	return crypto.FromECDSA(k.PrivateKey)
}

func (k *PrivateKey) PubKey() *PublicKey {
	return &PublicKey{&k.PrivateKey.PublicKey}
}

// Address derives the account address controlled by the key.
func (k *PublicKey) Address() Address {
	addrBytes := crypto.PubkeyToAddress(*k.PublicKey).Bytes()
	return NewAddress(AccountPrefix, addrBytes)
}

func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	key, err := crypto.ToECDSA(b)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}
