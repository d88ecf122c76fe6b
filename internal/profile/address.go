package profile

import (
	"errors"
	"fmt"
	"tigertrust/internal/domain"

	"filippo.io/edwards25519"
	"github.com/minio/sha256-simd"
)

// ProfileLabel is the namespace seed for user profile records.
const ProfileLabel = "user_profile"

const (
	maxSeedLength = 32
	maxProof      = 255
	derivedMarker = "ProgramDerivedAddress"
)

var errOnCurve = errors.New("derived address lies on the ed25519 curve")

// IsOnCurve reports whether b decodes to a valid ed25519 point. Derived record
// addresses must not, so that no private key can exist for them.
func IsOnCurve(b domain.Pubkey) bool {
	_, err := new(edwards25519.Point).SetBytes(b[:])
	return err == nil
}

// Deriver maps (label, owner) to record addresses inside one namespace.
type Deriver struct {
	namespace domain.Pubkey
}

func NewDeriver(namespace domain.Pubkey) Deriver {
	return Deriver{namespace: namespace}
}

func (d Deriver) Namespace() domain.Pubkey {
	return d.namespace
}

// CreateAddress computes the address for an explicit proof value.
func (d Deriver) CreateAddress(label string, owner domain.Pubkey, proof uint8) (domain.Address, error) {
	if len(label) > maxSeedLength {
		return domain.Address{}, fmt.Errorf("label %q exceeds %d bytes", label, maxSeedLength)
	}
	h := sha256.New()
	h.Write([]byte(label))
	h.Write(owner[:])
	h.Write([]byte{proof})
	h.Write(d.namespace[:])
	h.Write([]byte(derivedMarker))

	var addr domain.Address
	copy(addr[:], h.Sum(nil))
	if IsOnCurve(addr) {
		return domain.Address{}, errOnCurve
	}
	return addr, nil
}

// FindAddress searches proofs downward from 255 and returns the first one whose
// address is off the curve.
func (d Deriver) FindAddress(label string, owner domain.Pubkey) (domain.Address, uint8, error) {
	for proof := maxProof; proof >= 0; proof-- {
		addr, err := d.CreateAddress(label, owner, uint8(proof))
		if errors.Is(err, errOnCurve) {
			continue
		}
		if err != nil {
			return domain.Address{}, 0, err
		}
		return addr, uint8(proof), nil
	}
	return domain.Address{}, 0, fmt.Errorf("no valid proof for owner %s", owner)
}

// Verify checks that addr is the derivation of (label, owner) under proof.
func (d Deriver) Verify(label string, owner domain.Pubkey, addr domain.Address, proof uint8) error {
	expected, err := d.CreateAddress(label, owner, proof)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAddressMismatch, err)
	}
	if expected != addr {
		return fmt.Errorf("%w: %s is not derived from owner %s with proof %d", ErrAddressMismatch, addr, owner, proof)
	}
	return nil
}
