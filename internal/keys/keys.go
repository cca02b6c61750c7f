// Package keys derives secp256k1 identities from BIP-39 mnemonics and keeps
// their secret scalars inside scoped, zero-on-release containers. Only public
// keys, Base58 identifiers and signatures ever leave this package.
package keys

import (
	"encoding/hex"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/pkg/errors"
	"github.com/tyler-smith/go-bip39"
)

// DigestSize is the only message digest length this package signs.
const DigestSize = 32

// addrVersion is the Base58Check version byte for identity addresses, the
// same 0x00 prefix used by P2PKH addresses.
const addrVersion = 0x00

// ErrInvalidMnemonic is returned when a mnemonic fails the BIP-39 word count
// or checksum validation.
var ErrInvalidMnemonic = errors.New("invalid mnemonic")

// KeyMaterial is one derived identity: a compressed public key, its Base58
// identifier, and the secret scalar held in a release-once container.
type KeyMaterial struct {
	pub    *btcec.PublicKey
	secret *Secret
	addr   string
	index  uint32
}

// DeriveIdentity validates the mnemonic and derives the hardened BIP-32
// child at index from the BIP-39 seed. Deterministic: the same mnemonic,
// passphrase and index always produce the same keypair.
func DeriveIdentity(mnemonic, passphrase string, index uint32) (*KeyMaterial, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, ErrInvalidMnemonic
	}
	seed := bip39.NewSeed(mnemonic, passphrase)
	master, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, errors.Wrap(err, "derive master key")
	}
	defer master.Zero()

	child, err := master.Derive(hdkeychain.HardenedKeyStart + index)
	if err != nil {
		return nil, errors.Wrapf(err, "derive child key %d", index)
	}
	defer child.Zero()

	priv, err := child.ECPrivKey()
	if err != nil {
		return nil, errors.Wrap(err, "extract private key")
	}
	km := &KeyMaterial{
		pub:    priv.PubKey(),
		secret: newSecret(priv.Serialize()),
		index:  index,
	}
	priv.Zero()
	km.addr = Identifier(km.pub)
	return km, nil
}

// PublicKey returns the 33-byte compressed encoding of the public key.
func (k *KeyMaterial) PublicKey() []byte { return k.pub.SerializeCompressed() }

// PublicKeyHex returns the compressed public key as lowercase hex.
func (k *KeyMaterial) PublicKeyHex() string { return hex.EncodeToString(k.PublicKey()) }

// Address returns the Base58Check identifier of the public key.
func (k *KeyMaterial) Address() string { return k.addr }

// Index returns the derivation index the identity was created with.
func (k *KeyMaterial) Index() uint32 { return k.index }

// Release zeroizes the secret scalar. Further Sign calls fail with
// ErrSigningUnavailable.
func (k *KeyMaterial) Release() { k.secret.Release() }

// Sign produces a deterministic (RFC 6979) ECDSA signature over a 32-byte
// digest. The nonce is derived internally; callers can never supply one.
func (k *KeyMaterial) Sign(digest []byte) (r, s [32]byte, err error) {
	if len(digest) != DigestSize {
		return r, s, errors.Errorf("digest must be %d bytes, got %d", DigestSize, len(digest))
	}
	err = k.secret.Use(func(raw []byte) error {
		priv, _ := btcec.PrivKeyFromBytes(raw)
		defer priv.Zero()
		sig := ecdsa.Sign(priv, digest)
		rs := sig.R()
		ss := sig.S()
		r = rs.Bytes()
		s = ss.Bytes()
		return nil
	})
	return r, s, err
}

// Identifier derives the Base58Check address for a public key: the 0x00
// version byte over the Hash160 of the compressed point.
func Identifier(pub *btcec.PublicKey) string {
	return base58.CheckEncode(btcutil.Hash160(pub.SerializeCompressed()), addrVersion)
}

// DecodeIdentifier verifies the encoding, version and checksum of an address
// and returns the 20-byte public key hash it wraps.
func DecodeIdentifier(addr string) ([]byte, error) {
	payload, version, err := base58.CheckDecode(addr)
	if err != nil {
		return nil, errors.Wrap(err, "invalid address encoding")
	}
	if version != addrVersion {
		return nil, errors.Errorf("unexpected address version 0x%02x", version)
	}
	if len(payload) != 20 {
		return nil, errors.Errorf("unexpected address payload length %d", len(payload))
	}
	return payload, nil
}
