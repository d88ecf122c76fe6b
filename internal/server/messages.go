package server

import (
	"tigertrust/internal/domain"
	"tigertrust/internal/service"
	"time"
)

type Profile struct {
	Address         domain.Address `json:"address"`
	Owner           domain.Pubkey  `json:"owner"`
	Score           uint16         `json:"score"`
	Tier            domain.Tier    `json:"tier"`
	Verified        bool           `json:"verified"`
	LoanCount       uint32         `json:"loan_count"`
	RepaymentCount  uint32         `json:"repayment_count"`
	DefaultCount    uint32         `json:"default_count"`
	TotalBorrowed   uint64         `json:"total_borrowed"`
	TotalRepaid     uint64         `json:"total_repaid"`
	OutstandingDebt uint64         `json:"outstanding_debt"`
	CreatedAt       int64          `json:"created_at"`
	LastScoreUpdate int64          `json:"last_score_update"`
	Proof           uint8          `json:"proof"`
}

type Event struct {
	ID        string      `json:"id"`
	Operation string      `json:"operation"`
	Caller    string      `json:"caller"`
	Amount    uint64      `json:"amount,omitempty"`
	IsDefault bool        `json:"is_default,omitempty"`
	Verified  bool        `json:"verified"`
	OldScore  uint16      `json:"old_score"`
	NewScore  uint16      `json:"new_score"`
	OldTier   domain.Tier `json:"old_tier"`
	NewTier   domain.Tier `json:"new_tier"`
	CreatedAt string      `json:"created_at"`
}

// Target names a record. Proof is optional; when present it must equal the stored proof.
type Target struct {
	Address string `json:"address"`
	Proof   *uint8 `json:"proof,omitempty"`
}

type InitializeRequest struct {
	// Address defaults to the caller's derived profile address.
	Address       string `json:"address,omitempty"`
	HumanVerified bool   `json:"human_verified"`
}

type InitializeResponse struct {
	Address domain.Address `json:"address"`
	Proof   uint8          `json:"proof"`
	Profile Profile        `json:"profile"`
}

type UpdateScoreRequest struct {
	Target
	Score int64       `json:"score"`
	Tier  domain.Tier `json:"tier"`
}

type RecordLoanRequest struct {
	Target
	Amount uint64 `json:"amount"`
}

type RecordRepaymentRequest struct {
	Target
	Amount    uint64 `json:"amount"`
	IsDefault bool   `json:"is_default"`
}

type UpdateVerificationRequest struct {
	Target
	Verified bool `json:"verified"`
}

type ProfileResponse struct {
	Profile Profile `json:"profile"`
}

type GetProfileRequest struct {
	Address    string `json:"address"`
	EventLimit int    `json:"event_limit,omitempty"`
}

type GetProfileByOwnerRequest struct {
	Owner      string `json:"owner"`
	EventLimit int    `json:"event_limit,omitempty"`
}

type GetProfileResponse struct {
	Profile Profile `json:"profile"`
	Events  []Event `json:"events"`
}

type DeriveAddressRequest struct {
	Owner string `json:"owner"`
}

type DeriveAddressResponse struct {
	Address domain.Address `json:"address"`
	Proof   uint8          `json:"proof"`
}

type ListEventsRequest struct {
	Address string `json:"address"`
	Limit   int    `json:"limit,omitempty"`
}

type ListEventsResponse struct {
	Events []Event `json:"events"`
}

type RefreshScoreRequest struct {
	Owner string `json:"owner"`
}

func toProfile(addr domain.Address, p *domain.Profile) Profile {
	return Profile{
		Address:         addr,
		Owner:           p.Owner,
		Score:           p.Score,
		Tier:            p.Tier,
		Verified:        p.Verified,
		LoanCount:       p.LoanCount,
		RepaymentCount:  p.RepaymentCount,
		DefaultCount:    p.DefaultCount,
		TotalBorrowed:   p.TotalBorrowed,
		TotalRepaid:     p.TotalRepaid,
		OutstandingDebt: p.OutstandingDebt,
		CreatedAt:       p.CreatedAt,
		LastScoreUpdate: p.LastScoreUpdate,
		Proof:           p.Proof,
	}
}

func toEvents(events []domain.ProfileEvent) []Event {
	result := make([]Event, 0, len(events))
	for _, e := range events {
		result = append(result, Event{
			ID:        e.ID,
			Operation: e.Operation,
			Caller:    e.Caller.String(),
			Amount:    e.Amount,
			IsDefault: e.IsDefault,
			Verified:  e.Verified,
			OldScore:  e.OldScore,
			NewScore:  e.NewScore,
			OldTier:   e.OldTier,
			NewTier:   e.NewTier,
			CreatedAt: e.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return result
}

func toProfileView(v *service.ProfileView) *GetProfileResponse {
	return &GetProfileResponse{
		Profile: toProfile(v.Address, &v.Profile),
		Events:  toEvents(v.Events),
	}
}
