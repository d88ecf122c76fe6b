package profile

import (
	"fmt"
	"tigertrust/internal/domain"
)

const (
	InitialScore = 300
	InitialTier  = domain.TierSilver
)

type Instruction interface {
	Operation() Operation
}

type Initialize struct {
	HumanVerified bool
}

type UpdateScore struct {
	Score uint16
	Tier  domain.Tier
}

type RecordLoan struct {
	Amount uint64
}

type RecordRepayment struct {
	Amount    uint64
	IsDefault bool
}

type UpdateVerification struct {
	Verified bool
}

func (Initialize) Operation() Operation         { return OpInitialize }
func (UpdateScore) Operation() Operation        { return OpUpdateScore }
func (RecordLoan) Operation() Operation         { return OpRecordLoan }
func (RecordRepayment) Operation() Operation    { return OpRecordRepayment }
func (UpdateVerification) Operation() Operation { return OpUpdateVerification }

// Call is one operation submitted by Caller against the record at Target.
type Call struct {
	Caller      domain.Pubkey
	Target      domain.Address
	Proof       *uint8
	Instruction Instruction
}

type Policy struct {
	// EnforceTierBand rejects score updates whose tier is not the band of the score.
	EnforceTierBand bool
}

type Outcome struct {
	Before  *domain.Profile
	Profile domain.Profile
	Data    []byte
}

// Processor is the profile state machine. It is pure: the host supplies the current
// record bytes (nil when the address is empty) and the wall-clock time, and persists
// Outcome.Data atomically. Concurrent calls against one address must be serialized by
// the host.
type Processor struct {
	deriver Deriver
	guard   *Guard
	policy  Policy
}

func NewProcessor(deriver Deriver, guard *Guard, policy Policy) *Processor {
	return &Processor{deriver: deriver, guard: guard, policy: policy}
}

func (p *Processor) Deriver() Deriver {
	return p.deriver
}

func (p *Processor) Guard() *Guard {
	return p.guard
}

func (p *Processor) Process(call Call, account []byte, now int64) (Outcome, error) {
	if call.Instruction == nil {
		return Outcome{}, fmt.Errorf("missing instruction")
	}
	op := call.Instruction.Operation()
	if call.Caller.IsZero() {
		return Outcome{}, fmt.Errorf("%w: missing caller identity", ErrUnauthorized)
	}

	if err := CheckExistence(op, account != nil); err != nil {
		return Outcome{}, err
	}

	if in, ok := call.Instruction.(Initialize); ok {
		return p.initialize(call, in, now)
	}

	current, err := Decode(account)
	if err != nil {
		return Outcome{}, err
	}
	if err := p.guard.Authorize(op, call.Caller, current.Owner); err != nil {
		return Outcome{}, err
	}
	if call.Proof != nil && *call.Proof != current.Proof {
		return Outcome{}, fmt.Errorf("%w: supplied proof %d, stored %d", ErrAddressMismatch, *call.Proof, current.Proof)
	}
	if err := p.deriver.Verify(ProfileLabel, current.Owner, call.Target, current.Proof); err != nil {
		return Outcome{}, err
	}

	next, err := p.apply(current, call.Instruction, now)
	if err != nil {
		return Outcome{}, err
	}
	before := current
	return Outcome{Before: &before, Profile: next, Data: Encode(next)}, nil
}

func (p *Processor) initialize(call Call, in Initialize, now int64) (Outcome, error) {
	// The owner co-signs initialize, so the owner is the caller.
	if err := p.guard.Authorize(OpInitialize, call.Caller, call.Caller); err != nil {
		return Outcome{}, err
	}
	addr, proof, err := p.deriver.FindAddress(ProfileLabel, call.Caller)
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: %v", ErrAddressMismatch, err)
	}
	if addr != call.Target {
		return Outcome{}, fmt.Errorf("%w: %s is not the profile address of %s", ErrAddressMismatch, call.Target, call.Caller)
	}
	if call.Proof != nil && *call.Proof != proof {
		return Outcome{}, fmt.Errorf("%w: supplied proof %d, canonical %d", ErrAddressMismatch, *call.Proof, proof)
	}

	created := domain.Profile{
		Owner:           call.Caller,
		Score:           InitialScore,
		Tier:            InitialTier,
		Verified:        in.HumanVerified,
		CreatedAt:       now,
		LastScoreUpdate: now,
		Proof:           proof,
	}
	return Outcome{Profile: created, Data: Encode(created)}, nil
}

// apply works on a copy; current is never modified.
func (p *Processor) apply(current domain.Profile, ins Instruction, now int64) (domain.Profile, error) {
	switch in := ins.(type) {
	case UpdateScore:
		return p.updateScore(current, in, now)
	case RecordLoan:
		return recordLoan(current, in)
	case RecordRepayment:
		return recordRepayment(current, in)
	case UpdateVerification:
		next := current
		next.Verified = in.Verified
		return next, nil
	default:
		return current, fmt.Errorf("unsupported instruction %T", ins)
	}
}

func (p *Processor) updateScore(current domain.Profile, in UpdateScore, now int64) (domain.Profile, error) {
	if in.Score > domain.MaxScore {
		return current, fmt.Errorf("%w: got %d", ErrInvalidScore, in.Score)
	}
	if !in.Tier.Valid() {
		return current, fmt.Errorf("%w: ordinal %d", ErrInvalidTier, uint8(in.Tier))
	}
	if p.policy.EnforceTierBand {
		if band := domain.TierForScore(in.Score); band != in.Tier {
			return current, fmt.Errorf("%w: score %d is %s, got %s", ErrTierScoreMismatch, in.Score, band, in.Tier)
		}
	}

	next := current
	next.Score = in.Score
	next.Tier = in.Tier
	next.LastScoreUpdate = max(current.LastScoreUpdate, now)
	return next, nil
}

func recordLoan(current domain.Profile, in RecordLoan) (domain.Profile, error) {
	next := current
	var err error
	if next.LoanCount, err = checkedAddU32("loan_count", current.LoanCount, 1); err != nil {
		return current, err
	}
	if next.TotalBorrowed, err = checkedAddU64("total_borrowed", current.TotalBorrowed, in.Amount); err != nil {
		return current, err
	}
	if next.OutstandingDebt, err = checkedAddU64("outstanding_debt", current.OutstandingDebt, in.Amount); err != nil {
		return current, err
	}
	return next, nil
}

func recordRepayment(current domain.Profile, in RecordRepayment) (domain.Profile, error) {
	next := current
	var err error
	if in.IsDefault {
		next.DefaultCount, err = checkedAddU32("default_count", current.DefaultCount, 1)
	} else {
		next.RepaymentCount, err = checkedAddU32("repayment_count", current.RepaymentCount, 1)
	}
	if err != nil {
		return current, err
	}
	if next.TotalRepaid, err = checkedAddU64("total_repaid", current.TotalRepaid, in.Amount); err != nil {
		return current, err
	}
	next.OutstandingDebt = saturatingSubU64(current.OutstandingDebt, in.Amount)
	return next, nil
}
