package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"tigertrust/internal/api"
	"tigertrust/internal/domain"
	"tigertrust/internal/profile"
	"tigertrust/internal/repository"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

var (
	namespace = domain.Pubkey{0x5e, 31: 0x5e}
	owner     = domain.Pubkey{0x01, 31: 0x10}
	authority = domain.Pubkey{0x02, 31: 0x20}
	stranger  = domain.Pubkey{0x03, 31: 0x30}
)

type fakeRisk struct {
	assessment *api.RiskAssessment
	err        error
	calls      []domain.Pubkey
}

func (f *fakeRisk) Recalculate(_ context.Context, wallet domain.Pubkey) (*api.RiskAssessment, error) {
	f.calls = append(f.calls, wallet)
	return f.assessment, f.err
}

type fixture struct {
	svc   *ProfileService
	store *repository.MemoryStore
	clock *clock.Mock
	risk  *fakeRisk
	addr  domain.Address
	proof uint8
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := repository.NewMemoryStore()
	clk := clock.NewMock()
	clk.Set(time.Unix(1_700_000_000, 0))
	risk := &fakeRisk{}

	proc := profile.NewProcessor(profile.NewDeriver(namespace), profile.NewGuard(authority), profile.Policy{})
	svc := NewProfileService(store, proc, risk, clk, authority, zerolog.Nop())

	addr, proof, err := svc.DeriveAddress(owner)
	require.NoError(t, err)
	return &fixture{svc: svc, store: store, clock: clk, risk: risk, addr: addr, proof: proof}
}

func (f *fixture) initialize(t *testing.T) {
	t.Helper()
	_, err := f.svc.Initialize(context.Background(), owner, f.addr, true)
	require.NoError(t, err)
}

func TestInitializeUsesClockAndJournals(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.svc.Initialize(ctx, owner, f.addr, true)
	require.NoError(t, err)
	assert.Equal(t, int64(1_700_000_000), p.CreatedAt)
	assert.Equal(t, f.proof, p.Proof)
	assert.True(t, p.Verified)

	events, err := f.svc.ListEvents(ctx, f.addr, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "initialize", events[0].Operation)
	assert.Equal(t, owner, events[0].Caller)
	assert.Equal(t, uint16(300), events[0].NewScore)

	_, err = f.svc.Initialize(ctx, owner, f.addr, false)
	assert.ErrorIs(t, err, profile.ErrProfileAlreadyExists)
	assert.Equal(t, 1, f.store.Commits())
}

func TestScenarioThroughService(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.initialize(t)

	_, err := f.svc.RecordLoan(ctx, owner, f.addr, &f.proof, 1000)
	require.NoError(t, err)
	_, err = f.svc.RecordRepayment(ctx, owner, f.addr, nil, 400, false)
	require.NoError(t, err)
	p, err := f.svc.RecordRepayment(ctx, owner, f.addr, nil, 1000, true)
	require.NoError(t, err)

	assert.Equal(t, uint64(1000), p.TotalBorrowed)
	assert.Equal(t, uint64(1400), p.TotalRepaid)
	assert.Zero(t, p.OutstandingDebt)
	assert.Equal(t, uint32(1), p.DefaultCount)
	assert.Equal(t, uint32(1), p.RepaymentCount)

	view, err := f.svc.GetProfile(ctx, f.addr, 10)
	require.NoError(t, err)
	assert.Equal(t, *p, view.Profile)
	require.Len(t, view.Events, 4)
	assert.Equal(t, "record_repayment", view.Events[0].Operation)
	assert.True(t, view.Events[0].IsDefault)
	assert.Equal(t, uint64(1000), view.Events[0].Amount)
}

func TestRejectedOperationWritesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.initialize(t)
	before, _, err := f.store.GetAccount(ctx, f.addr)
	require.NoError(t, err)

	_, err = f.svc.UpdateScore(ctx, authority, f.addr, nil, 1001, domain.TierDiamond)
	assert.ErrorIs(t, err, profile.ErrInvalidScore)
	_, err = f.svc.RecordLoan(ctx, stranger, f.addr, nil, 5)
	assert.ErrorIs(t, err, profile.ErrUnauthorized)
	_, err = f.svc.UpdateScore(ctx, owner, f.addr, nil, 500, domain.TierGold)
	assert.ErrorIs(t, err, profile.ErrUnauthorized)

	after, _, err := f.store.GetAccount(ctx, f.addr)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, 1, f.store.Commits())
}

func TestUpdateScoreStampsClock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.initialize(t)

	f.clock.Add(90 * time.Minute)
	p, err := f.svc.UpdateScore(ctx, authority, f.addr, &f.proof, 870, domain.TierGold)
	require.NoError(t, err)
	assert.Equal(t, int64(1_700_000_000+90*60), p.LastScoreUpdate)
	assert.Equal(t, domain.TierGold, p.Tier)

	events, err := f.svc.ListEvents(ctx, f.addr, 1)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, uint16(300), events[0].OldScore)
	assert.Equal(t, uint16(870), events[0].NewScore)
	assert.Equal(t, domain.TierSilver, events[0].OldTier)
}

func TestGetProfileNotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.GetProfile(context.Background(), f.addr, 5)
	assert.ErrorIs(t, err, profile.ErrProfileNotFound)

	_, err = f.svc.GetProfileByOwner(context.Background(), stranger, 5)
	assert.ErrorIs(t, err, profile.ErrProfileNotFound)
}

func TestGetProfileByOwner(t *testing.T) {
	f := newFixture(t)
	f.initialize(t)

	view, err := f.svc.GetProfileByOwner(context.Background(), owner, 5)
	require.NoError(t, err)
	assert.Equal(t, f.addr, view.Address)
	assert.Equal(t, owner, view.Profile.Owner)
}

func TestStorageErrorsAreSurfaced(t *testing.T) {
	f := newFixture(t)
	f.store.WithError(assert.AnError)

	_, err := f.svc.Initialize(context.Background(), owner, f.addr, false)
	assert.ErrorIs(t, err, assert.AnError)
	_, err = f.svc.GetProfile(context.Background(), f.addr, 5)
	assert.ErrorIs(t, err, assert.AnError)
}

func TestRefreshScore(t *testing.T) {
	f := newFixture(t)
	f.initialize(t)
	f.risk.assessment = &api.RiskAssessment{Wallet: owner.String(), Score: 720, Tier: "Platinum"}

	p, err := f.svc.RefreshScore(context.Background(), owner, owner)
	require.NoError(t, err)
	assert.Equal(t, uint16(720), p.Score)
	assert.Equal(t, domain.TierPlatinum, p.Tier)
	assert.Equal(t, []domain.Pubkey{owner}, f.risk.calls)

	events, err := f.svc.ListEvents(context.Background(), f.addr, 1)
	require.NoError(t, err)
	assert.Equal(t, authority, events[0].Caller)
}

func TestRefreshScoreRejectsBadAssessments(t *testing.T) {
	f := newFixture(t)
	f.initialize(t)
	ctx := context.Background()

	f.risk.assessment = &api.RiskAssessment{Score: 1200, Tier: "Diamond"}
	_, err := f.svc.RefreshScore(ctx, authority, owner)
	assert.ErrorIs(t, err, ErrInvalidAssessment)
	assert.ErrorIs(t, err, profile.ErrInvalidScore)

	f.risk.assessment = &api.RiskAssessment{Score: -1, Tier: "Bronze"}
	_, err = f.svc.RefreshScore(ctx, authority, owner)
	assert.ErrorIs(t, err, profile.ErrInvalidScore)

	f.risk.assessment = &api.RiskAssessment{Score: 500, Tier: "Mythic"}
	_, err = f.svc.RefreshScore(ctx, authority, owner)
	assert.ErrorIs(t, err, profile.ErrInvalidTier)

	f.risk.err = errors.New("engine down")
	_, err = f.svc.RefreshScore(ctx, authority, owner)
	assert.ErrorContains(t, err, "engine down")

	_, err = f.svc.RefreshScore(ctx, stranger, owner)
	assert.ErrorIs(t, err, profile.ErrUnauthorized)

	assert.Equal(t, 1, f.store.Commits())
}

func TestConcurrentLoansAreSerialized(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := newFixture(t)
	f.initialize(t)
	ctx := context.Background()

	const workers, perWorker = 16, 25
	var wg sync.WaitGroup
	errs := make(chan error, workers*perWorker)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(amount uint64) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				if _, err := f.svc.RecordLoan(ctx, owner, f.addr, nil, amount); err != nil {
					errs <- err
				}
			}
		}(uint64(w + 1))
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("unexpected error: %v", err)
	}

	view, err := f.svc.GetProfile(ctx, f.addr, 1)
	require.NoError(t, err)
	// sum of 1..16, each repeated perWorker times
	assert.Equal(t, uint64(136*perWorker), view.Profile.TotalBorrowed)
	assert.Equal(t, uint32(workers*perWorker), view.Profile.LoanCount)
	assert.Zero(t, f.svc.locks.size())
}
