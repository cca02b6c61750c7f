package keys

import (
	"sort"
	"sync"

	"github.com/pkg/errors"
	"github.com/tyler-smith/go-bip39"
)

// ErrUnknownIdentity is returned when an address does not match any
// provisioned identity.
var ErrUnknownIdentity = errors.New("unknown identity")

// IdentityInfo is the public view of a provisioned identity.
type IdentityInfo struct {
	Address   string
	PublicKey string
	Index     uint32
}

// Keyring holds the identities provisioned from a single mnemonic, keyed by
// their Base58 address. Secret containers stay inside the ring; callers only
// ever see addresses, public keys and signatures.
type Keyring struct {
	mnemonic   string
	passphrase string

	mu     sync.RWMutex
	byAddr map[string]*KeyMaterial
}

// NewKeyring validates the mnemonic once up front so a misconfigured signer
// fails at startup rather than on first use.
func NewKeyring(mnemonic, passphrase string) (*Keyring, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, ErrInvalidMnemonic
	}
	return &Keyring{
		mnemonic:   mnemonic,
		passphrase: passphrase,
		byAddr:     make(map[string]*KeyMaterial),
	}, nil
}

// Provision derives the identity at index and registers it. Re-provisioning
// an index that is already held returns the existing identity.
func (r *Keyring) Provision(index uint32) (IdentityInfo, error) {
	km, err := DeriveIdentity(r.mnemonic, r.passphrase, index)
	if err != nil {
		return IdentityInfo{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.byAddr[km.Address()]; ok {
		km.Release()
		return info(existing), nil
	}
	r.byAddr[km.Address()] = km
	return info(km), nil
}

// Sign produces a signature share over digest with the identity at addr.
func (r *Keyring) Sign(addr string, digest []byte) (id IdentityInfo, rSig, sSig [32]byte, err error) {
	r.mu.RLock()
	km, ok := r.byAddr[addr]
	r.mu.RUnlock()
	if !ok {
		err = ErrUnknownIdentity
		return
	}
	rSig, sSig, err = km.Sign(digest)
	if err != nil {
		return
	}
	return info(km), rSig, sSig, nil
}

// List returns the provisioned identities ordered by derivation index.
func (r *Keyring) List() []IdentityInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]IdentityInfo, 0, len(r.byAddr))
	for _, km := range r.byAddr {
		out = append(out, info(km))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

// Revoke zeroizes and removes the identity at addr.
func (r *Keyring) Revoke(addr string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	km, ok := r.byAddr[addr]
	if !ok {
		return ErrUnknownIdentity
	}
	km.Release()
	delete(r.byAddr, addr)
	return nil
}

// Close releases every secret container. Used on process shutdown.
func (r *Keyring) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for addr, km := range r.byAddr {
		km.Release()
		delete(r.byAddr, addr)
	}
}

func info(km *KeyMaterial) IdentityInfo {
	return IdentityInfo{Address: km.Address(), PublicKey: km.PublicKeyHex(), Index: km.Index()}
}
