package profile

import (
	"testing"
	"tigertrust/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleProfile() domain.Profile {
	return domain.Profile{
		Owner:           domain.Pubkey{0xaa, 0xbb, 31: 0xcc},
		Score:           742,
		Tier:            domain.TierPlatinum,
		Verified:        true,
		LoanCount:       3,
		RepaymentCount:  2,
		DefaultCount:    1,
		TotalBorrowed:   5_000_000,
		TotalRepaid:     4_250_000,
		OutstandingDebt: 750_000,
		CreatedAt:       1_700_000_000,
		LastScoreUpdate: 1_700_086_400,
		Proof:           254,
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	p := sampleProfile()

	data := Encode(p)
	require.Len(t, data, RecordSize)
	assert.Equal(t, 97, RecordSize)

	decoded, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, p, decoded)
	assert.Equal(t, data, Encode(decoded))
}

func TestDecodeRejectsWrongLength(t *testing.T) {
	data := Encode(sampleProfile())

	_, err := Decode(data[:RecordSize-1])
	assert.ErrorIs(t, err, ErrCorruptRecord)

	_, err = Decode(append(data, 0))
	assert.ErrorIs(t, err, ErrCorruptRecord)

	_, err = Decode(nil)
	assert.ErrorIs(t, err, ErrCorruptRecord)
}

func TestDecodeRejectsUnknownDiscriminator(t *testing.T) {
	data := Encode(sampleProfile())
	data[0] ^= 0xff

	_, err := Decode(data)
	assert.ErrorIs(t, err, ErrCorruptRecord)
}

func TestDecodeRejectsTierOrdinal(t *testing.T) {
	data := Encode(sampleProfile())
	tierOffset := DiscriminatorSize + domain.PubkeyLength + 2
	data[tierOffset] = 5

	_, err := Decode(data)
	assert.ErrorIs(t, err, ErrInvalidTier)
	assert.NotErrorIs(t, err, ErrCorruptRecord)
}

func TestDecodeRejectsBadFlagsAndScore(t *testing.T) {
	t.Run("verified flag", func(t *testing.T) {
		data := Encode(sampleProfile())
		data[DiscriminatorSize+domain.PubkeyLength+3] = 2
		_, err := Decode(data)
		assert.ErrorIs(t, err, ErrCorruptRecord)
	})

	t.Run("score above range", func(t *testing.T) {
		p := sampleProfile()
		p.Score = 1001
		_, err := Decode(Encode(p))
		assert.ErrorIs(t, err, ErrCorruptRecord)
	})
}

func TestDiscriminatorIsStable(t *testing.T) {
	assert.Equal(t, recordDiscriminator, discriminator("account:UserProfile"))
	assert.NotEqual(t, recordDiscriminator, discriminator("account:Counter"))
}
