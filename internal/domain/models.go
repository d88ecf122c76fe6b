package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/mr-tron/base58"
)

const PubkeyLength = 32

// Pubkey is an opaque 32-byte identity key. Record addresses share the same shape.
type Pubkey [PubkeyLength]byte

type Address = Pubkey

func ParsePubkey(s string) (Pubkey, error) {
	var pk Pubkey
	raw, err := base58.Decode(s)
	if err != nil {
		return pk, fmt.Errorf("invalid base58 key %q: %w", s, err)
	}
	if len(raw) != PubkeyLength {
		return pk, fmt.Errorf("invalid key length %d for %q, want %d", len(raw), s, PubkeyLength)
	}
	copy(pk[:], raw)
	return pk, nil
}

func (p Pubkey) String() string {
	return base58.Encode(p[:])
}

func (p Pubkey) IsZero() bool {
	return p == Pubkey{}
}

func (p Pubkey) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Pubkey) UnmarshalText(text []byte) error {
	pk, err := ParsePubkey(string(text))
	if err != nil {
		return err
	}
	*p = pk
	return nil
}

type Tier uint8

const (
	TierBronze Tier = iota
	TierSilver
	TierGold
	TierPlatinum
	TierDiamond
)

var tierNames = [...]string{"Bronze", "Silver", "Gold", "Platinum", "Diamond"}

func (t Tier) Valid() bool {
	return t <= TierDiamond
}

func (t Tier) String() string {
	if !t.Valid() {
		return fmt.Sprintf("Tier(%d)", uint8(t))
	}
	return tierNames[t]
}

// ParseTier accepts tier names case-insensitively.
func ParseTier(s string) (Tier, error) {
	for i, name := range tierNames {
		if strings.EqualFold(name, s) {
			return Tier(i), nil
		}
	}
	return 0, fmt.Errorf("unknown tier %q", s)
}

func (t Tier) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("invalid tier ordinal %d", uint8(t))
	}
	return []byte(t.String()), nil
}

func (t *Tier) UnmarshalText(text []byte) error {
	parsed, err := ParseTier(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

const MaxScore = 1000

// TierForScore returns the band a score falls into. Stored tiers are assigned by the
// score authority and are not required to agree with this banding.
func TierForScore(score uint16) Tier {
	switch {
	case score >= 850:
		return TierDiamond
	case score >= 700:
		return TierPlatinum
	case score >= 500:
		return TierGold
	case score >= 300:
		return TierSilver
	default:
		return TierBronze
	}
}

type Profile struct {
	Owner           Pubkey
	Score           uint16
	Tier            Tier
	Verified        bool
	LoanCount       uint32
	RepaymentCount  uint32
	DefaultCount    uint32
	TotalBorrowed   uint64
	TotalRepaid     uint64
	OutstandingDebt uint64
	CreatedAt       int64
	LastScoreUpdate int64
	Proof           uint8
}

type ProfileEvent struct {
	ID        string // nanoid
	Address   Address
	Operation string
	Caller    Pubkey
	Amount    uint64
	IsDefault bool
	Verified  bool
	OldScore  uint16
	NewScore  uint16
	OldTier   Tier
	NewTier   Tier
	CreatedAt time.Time
}
