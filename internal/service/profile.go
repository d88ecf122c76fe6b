package service

import (
	"context"
	"errors"
	"fmt"
	"tigertrust/internal/api"
	"tigertrust/internal/constants"
	"tigertrust/internal/domain"
	"tigertrust/internal/profile"
	"tigertrust/internal/repository"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

var ErrInvalidAssessment = errors.New("risk engine returned an invalid assessment")

type AccountStore interface {
	GetAccount(ctx context.Context, addr domain.Address) ([]byte, bool, error)
	Commit(ctx context.Context, w repository.AccountWrite) error
	ListEvents(ctx context.Context, addr domain.Address, limit int) ([]domain.ProfileEvent, error)
}

type ScoreSource interface {
	Recalculate(ctx context.Context, wallet domain.Pubkey) (*api.RiskAssessment, error)
}

// ProfileService hosts the profile state machine: it serializes operations per address,
// supplies wall-clock time and commits each accepted record together with its journal
// entry.
type ProfileService struct {
	store     AccountStore
	proc      *profile.Processor
	risk      ScoreSource
	clock     clock.Clock
	authority domain.Pubkey
	locks     *addressLocker
	logger    zerolog.Logger
}

func NewProfileService(store AccountStore, proc *profile.Processor, risk ScoreSource, clk clock.Clock, authority domain.Pubkey, logger zerolog.Logger) *ProfileService {
	return &ProfileService{
		store:     store,
		proc:      proc,
		risk:      risk,
		clock:     clk,
		authority: authority,
		locks:     newAddressLocker(),
		logger:    logger,
	}
}

type ProfileView struct {
	Address domain.Address
	Profile domain.Profile
	Events  []domain.ProfileEvent
}

func (s *ProfileService) DeriveAddress(owner domain.Pubkey) (domain.Address, uint8, error) {
	return s.proc.Deriver().FindAddress(profile.ProfileLabel, owner)
}

func (s *ProfileService) Initialize(ctx context.Context, caller domain.Pubkey, target domain.Address, humanVerified bool) (*domain.Profile, error) {
	return s.Execute(ctx, profile.Call{
		Caller:      caller,
		Target:      target,
		Instruction: profile.Initialize{HumanVerified: humanVerified},
	})
}

func (s *ProfileService) UpdateScore(ctx context.Context, caller domain.Pubkey, target domain.Address, proof *uint8, score uint16, tier domain.Tier) (*domain.Profile, error) {
	return s.Execute(ctx, profile.Call{
		Caller:      caller,
		Target:      target,
		Proof:       proof,
		Instruction: profile.UpdateScore{Score: score, Tier: tier},
	})
}

func (s *ProfileService) RecordLoan(ctx context.Context, caller domain.Pubkey, target domain.Address, proof *uint8, amount uint64) (*domain.Profile, error) {
	return s.Execute(ctx, profile.Call{
		Caller:      caller,
		Target:      target,
		Proof:       proof,
		Instruction: profile.RecordLoan{Amount: amount},
	})
}

func (s *ProfileService) RecordRepayment(ctx context.Context, caller domain.Pubkey, target domain.Address, proof *uint8, amount uint64, isDefault bool) (*domain.Profile, error) {
	return s.Execute(ctx, profile.Call{
		Caller:      caller,
		Target:      target,
		Proof:       proof,
		Instruction: profile.RecordRepayment{Amount: amount, IsDefault: isDefault},
	})
}

func (s *ProfileService) UpdateVerification(ctx context.Context, caller domain.Pubkey, target domain.Address, proof *uint8, verified bool) (*domain.Profile, error) {
	return s.Execute(ctx, profile.Call{
		Caller:      caller,
		Target:      target,
		Proof:       proof,
		Instruction: profile.UpdateVerification{Verified: verified},
	})
}

// Execute runs one operation under the address lock. Rejected operations write nothing.
func (s *ProfileService) Execute(ctx context.Context, call profile.Call) (*domain.Profile, error) {
	if call.Instruction == nil {
		return nil, errors.New("missing instruction")
	}

	ctx, cancel := context.WithTimeout(ctx, constants.RequestTimeout)
	defer cancel()

	op := call.Instruction.Operation()
	log := s.logger.With().
		Str("operation", op.String()).
		Str("address", call.Target.String()).
		Str("caller", call.Caller.String()).
		Logger()

	unlock := s.locks.Lock(call.Target)
	defer unlock()

	current, found, err := s.store.GetAccount(ctx, call.Target)
	if err != nil {
		log.Error().Err(err).Msg("failed to load profile account")
		return nil, err
	}
	if !found {
		current = nil
	}

	now := s.clock.Now()
	out, err := s.proc.Process(call, current, now.Unix())
	if err != nil {
		log.Warn().Err(err).Msg("operation rejected")
		return nil, err
	}

	err = s.store.Commit(ctx, repository.AccountWrite{
		Address:  call.Target,
		Owner:    out.Profile.Owner,
		Data:     out.Data,
		Previous: current,
		Event:    newEvent(call, out, now),
		At:       now,
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to commit profile account")
		return nil, fmt.Errorf("failed to commit %s: %w", op, err)
	}

	s.logOutcome(log, call, out)
	return &out.Profile, nil
}

func (s *ProfileService) logOutcome(log zerolog.Logger, call profile.Call, out profile.Outcome) {
	p := out.Profile
	switch in := call.Instruction.(type) {
	case profile.Initialize:
		log.Info().Str("owner", p.Owner.String()).Uint16("score", p.Score).Uint8("proof", p.Proof).Msg("user profile initialized")
	case profile.UpdateScore:
		log.Info().
			Uint16("old_score", out.Before.Score).
			Uint16("new_score", p.Score).
			Str("old_tier", out.Before.Tier.String()).
			Str("new_tier", p.Tier.String()).
			Msg("score updated")
	case profile.RecordLoan:
		log.Info().Uint64("amount", in.Amount).Uint64("outstanding_debt", p.OutstandingDebt).Msg("loan recorded")
	case profile.RecordRepayment:
		log.Info().
			Uint64("amount", in.Amount).
			Bool("is_default", in.IsDefault).
			Uint64("outstanding_debt", p.OutstandingDebt).
			Msg("repayment recorded")
	case profile.UpdateVerification:
		log.Info().Bool("verified", p.Verified).Msg("human verification updated")
	}
}

func newEvent(call profile.Call, out profile.Outcome, now time.Time) domain.ProfileEvent {
	e := domain.ProfileEvent{
		Address:   call.Target,
		Operation: call.Instruction.Operation().String(),
		Caller:    call.Caller,
		Verified:  out.Profile.Verified,
		NewScore:  out.Profile.Score,
		NewTier:   out.Profile.Tier,
		CreatedAt: now,
	}
	if out.Before != nil {
		e.OldScore = out.Before.Score
		e.OldTier = out.Before.Tier
	}
	switch in := call.Instruction.(type) {
	case profile.RecordLoan:
		e.Amount = in.Amount
	case profile.RecordRepayment:
		e.Amount = in.Amount
		e.IsDefault = in.IsDefault
	}
	return e
}

func (s *ProfileService) GetProfile(ctx context.Context, addr domain.Address, eventLimit int) (*ProfileView, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	defer cancel()

	eventLimit = clampLimit(eventLimit)

	var (
		data   []byte
		found  bool
		events []domain.ProfileEvent
	)
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		data, found, err = s.store.GetAccount(gCtx, addr)
		return err
	})
	g.Go(func() error {
		var err error
		events, err = s.store.ListEvents(gCtx, addr, eventLimit)
		return err
	})
	if err := g.Wait(); err != nil {
		s.logger.Error().Err(err).Str("address", addr.String()).Msg("failed to load profile")
		return nil, err
	}
	if !found {
		return nil, profile.ErrProfileNotFound
	}

	p, err := profile.Decode(data)
	if err != nil {
		s.logger.Error().Err(err).Str("address", addr.String()).Msg("stored profile is unreadable")
		return nil, err
	}
	return &ProfileView{Address: addr, Profile: p, Events: events}, nil
}

func (s *ProfileService) GetProfileByOwner(ctx context.Context, owner domain.Pubkey, eventLimit int) (*ProfileView, error) {
	addr, _, err := s.DeriveAddress(owner)
	if err != nil {
		return nil, err
	}
	return s.GetProfile(ctx, addr, eventLimit)
}

func (s *ProfileService) ListEvents(ctx context.Context, addr domain.Address, limit int) ([]domain.ProfileEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	defer cancel()

	events, err := s.store.ListEvents(ctx, addr, clampLimit(limit))
	if err != nil {
		s.logger.Error().Err(err).Str("address", addr.String()).Msg("failed to list profile events")
		return nil, err
	}
	return events, nil
}

// RefreshScore asks the risk engine for the owner's current score and applies it as the
// service's score authority. Only the owner or an authority may trigger it.
func (s *ProfileService) RefreshScore(ctx context.Context, caller, owner domain.Pubkey) (*domain.Profile, error) {
	if caller.IsZero() || (caller != owner && !s.proc.Guard().IsAuthority(caller)) {
		return nil, fmt.Errorf("%w: refresh for %s requested by %s", profile.ErrUnauthorized, owner, caller)
	}

	addr, _, err := s.DeriveAddress(owner)
	if err != nil {
		return nil, err
	}

	apiCtx, apiCancel := context.WithTimeout(ctx, constants.ExternalAPITimeout)
	defer apiCancel()

	assessment, err := s.risk.Recalculate(apiCtx, owner)
	if err != nil {
		s.logger.Error().Err(err).Str("owner", owner.String()).Msg("failed to fetch risk assessment")
		return nil, fmt.Errorf("failed to fetch risk assessment: %w", err)
	}
	if assessment.Score < 0 || assessment.Score > domain.MaxScore {
		return nil, fmt.Errorf("%w: score %d: %w", ErrInvalidAssessment, assessment.Score, profile.ErrInvalidScore)
	}
	tier, err := domain.ParseTier(assessment.Tier)
	if err != nil {
		return nil, fmt.Errorf("%w: %v: %w", ErrInvalidAssessment, err, profile.ErrInvalidTier)
	}

	s.logger.Debug().
		Str("owner", owner.String()).
		Int("score", assessment.Score).
		Str("tier", tier.String()).
		Msg("risk assessment received")

	return s.UpdateScore(ctx, s.authority, addr, nil, uint16(assessment.Score), tier)
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return constants.DefaultEventLimit
	}
	return min(limit, constants.MaxEventLimit)
}
