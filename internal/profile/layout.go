package profile

import (
	"encoding/binary"
	"fmt"
	"tigertrust/internal/domain"

	"github.com/minio/sha256-simd"
)

const (
	DiscriminatorSize = 8

	// RecordSize is the fixed serialized size of a profile record.
	RecordSize = DiscriminatorSize +
		domain.PubkeyLength + // owner
		2 + // score
		1 + // tier
		1 + // verified
		4*3 + // loan, repayment, default counts
		8*3 + // borrowed, repaid, outstanding
		8*2 + // created_at, last_score_update
		1 // proof
)

var recordDiscriminator = discriminator("account:UserProfile")

func discriminator(name string) [DiscriminatorSize]byte {
	var d [DiscriminatorSize]byte
	sum := sha256.Sum256([]byte(name))
	copy(d[:], sum[:DiscriminatorSize])
	return d
}

func Encode(p domain.Profile) []byte {
	buf := make([]byte, 0, RecordSize)
	buf = append(buf, recordDiscriminator[:]...)
	buf = append(buf, p.Owner[:]...)
	buf = binary.LittleEndian.AppendUint16(buf, p.Score)
	buf = append(buf, byte(p.Tier))
	if p.Verified {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	buf = binary.LittleEndian.AppendUint32(buf, p.LoanCount)
	buf = binary.LittleEndian.AppendUint32(buf, p.RepaymentCount)
	buf = binary.LittleEndian.AppendUint32(buf, p.DefaultCount)
	buf = binary.LittleEndian.AppendUint64(buf, p.TotalBorrowed)
	buf = binary.LittleEndian.AppendUint64(buf, p.TotalRepaid)
	buf = binary.LittleEndian.AppendUint64(buf, p.OutstandingDebt)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(p.CreatedAt))
	buf = binary.LittleEndian.AppendUint64(buf, uint64(p.LastScoreUpdate))
	buf = append(buf, p.Proof)
	return buf
}

func Decode(data []byte) (domain.Profile, error) {
	var p domain.Profile
	if len(data) != RecordSize {
		return p, fmt.Errorf("%w: size %d, want %d", ErrCorruptRecord, len(data), RecordSize)
	}
	if [DiscriminatorSize]byte(data[:DiscriminatorSize]) != recordDiscriminator {
		return p, fmt.Errorf("%w: unrecognized discriminator %x", ErrCorruptRecord, data[:DiscriminatorSize])
	}

	r := reader{buf: data[DiscriminatorSize:]}
	copy(p.Owner[:], r.next(domain.PubkeyLength))
	p.Score = binary.LittleEndian.Uint16(r.next(2))
	p.Tier = domain.Tier(r.next(1)[0])
	verified := r.next(1)[0]
	p.LoanCount = binary.LittleEndian.Uint32(r.next(4))
	p.RepaymentCount = binary.LittleEndian.Uint32(r.next(4))
	p.DefaultCount = binary.LittleEndian.Uint32(r.next(4))
	p.TotalBorrowed = binary.LittleEndian.Uint64(r.next(8))
	p.TotalRepaid = binary.LittleEndian.Uint64(r.next(8))
	p.OutstandingDebt = binary.LittleEndian.Uint64(r.next(8))
	p.CreatedAt = int64(binary.LittleEndian.Uint64(r.next(8)))
	p.LastScoreUpdate = int64(binary.LittleEndian.Uint64(r.next(8)))
	p.Proof = r.next(1)[0]

	if !p.Tier.Valid() {
		return domain.Profile{}, fmt.Errorf("%w: ordinal %d", ErrInvalidTier, uint8(p.Tier))
	}
	switch verified {
	case 0:
	case 1:
		p.Verified = true
	default:
		return domain.Profile{}, fmt.Errorf("%w: verified flag %d", ErrCorruptRecord, verified)
	}
	if p.Score > domain.MaxScore {
		return domain.Profile{}, fmt.Errorf("%w: score %d out of range", ErrCorruptRecord, p.Score)
	}
	return p, nil
}

type reader struct {
	buf []byte
	off int
}

func (r *reader) next(n int) []byte {
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}
