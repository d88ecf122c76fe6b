package server

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"tigertrust/internal/domain"
	"tigertrust/internal/middleware"
	"tigertrust/internal/profile"
	"tigertrust/internal/repository"
	"tigertrust/internal/service"

	"connectrpc.com/connect"
)

const ProfileServicePath = "/tigertrust.v1.ProfileService/"

const (
	InitializeProcedure         = ProfileServicePath + "Initialize"
	UpdateScoreProcedure        = ProfileServicePath + "UpdateScore"
	RecordLoanProcedure         = ProfileServicePath + "RecordLoan"
	RecordRepaymentProcedure    = ProfileServicePath + "RecordRepayment"
	UpdateVerificationProcedure = ProfileServicePath + "UpdateVerification"
	GetProfileProcedure         = ProfileServicePath + "GetProfile"
	GetProfileByOwnerProcedure  = ProfileServicePath + "GetProfileByOwner"
	DeriveAddressProcedure      = ProfileServicePath + "DeriveAddress"
	ListEventsProcedure         = ProfileServicePath + "ListEvents"
	RefreshScoreProcedure       = ProfileServicePath + "RefreshScore"
)

type ProfileServer struct {
	profileSvc *service.ProfileService
}

func NewProfileServer(profileSvc *service.ProfileService) *ProfileServer {
	return &ProfileServer{profileSvc: profileSvc}
}

// NewProfileServiceHandler mounts every procedure under ProfileServicePath.
func NewProfileServiceHandler(s *ProfileServer, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(JSONCodec{})}, opts...)

	mux := http.NewServeMux()
	mux.Handle(InitializeProcedure, connect.NewUnaryHandler(InitializeProcedure, s.Initialize, opts...))
	mux.Handle(UpdateScoreProcedure, connect.NewUnaryHandler(UpdateScoreProcedure, s.UpdateScore, opts...))
	mux.Handle(RecordLoanProcedure, connect.NewUnaryHandler(RecordLoanProcedure, s.RecordLoan, opts...))
	mux.Handle(RecordRepaymentProcedure, connect.NewUnaryHandler(RecordRepaymentProcedure, s.RecordRepayment, opts...))
	mux.Handle(UpdateVerificationProcedure, connect.NewUnaryHandler(UpdateVerificationProcedure, s.UpdateVerification, opts...))
	mux.Handle(GetProfileProcedure, connect.NewUnaryHandler(GetProfileProcedure, s.GetProfile, opts...))
	mux.Handle(GetProfileByOwnerProcedure, connect.NewUnaryHandler(GetProfileByOwnerProcedure, s.GetProfileByOwner, opts...))
	mux.Handle(DeriveAddressProcedure, connect.NewUnaryHandler(DeriveAddressProcedure, s.DeriveAddress, opts...))
	mux.Handle(ListEventsProcedure, connect.NewUnaryHandler(ListEventsProcedure, s.ListEvents, opts...))
	mux.Handle(RefreshScoreProcedure, connect.NewUnaryHandler(RefreshScoreProcedure, s.RefreshScore, opts...))
	return ProfileServicePath, mux
}

func (s *ProfileServer) Initialize(ctx context.Context, req *connect.Request[InitializeRequest]) (*connect.Response[InitializeResponse], error) {
	caller := callerFrom(ctx)

	derived, proof, err := s.profileSvc.DeriveAddress(caller)
	if err != nil {
		return nil, toConnectError(err)
	}
	target := derived
	if req.Msg.Address != "" {
		if target, err = parseKey("address", req.Msg.Address); err != nil {
			return nil, err
		}
	}

	p, err := s.profileSvc.Initialize(ctx, caller, target, req.Msg.HumanVerified)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&InitializeResponse{
		Address: target,
		Proof:   proof,
		Profile: toProfile(target, p),
	}), nil
}

func (s *ProfileServer) UpdateScore(ctx context.Context, req *connect.Request[UpdateScoreRequest]) (*connect.Response[ProfileResponse], error) {
	target, err := parseKey("address", req.Msg.Address)
	if err != nil {
		return nil, err
	}
	if req.Msg.Score < 0 || req.Msg.Score > math.MaxUint16 {
		return nil, toConnectError(fmt.Errorf("%w: got %d", profile.ErrInvalidScore, req.Msg.Score))
	}

	p, err := s.profileSvc.UpdateScore(ctx, callerFrom(ctx), target, req.Msg.Proof, uint16(req.Msg.Score), req.Msg.Tier)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&ProfileResponse{Profile: toProfile(target, p)}), nil
}

func (s *ProfileServer) RecordLoan(ctx context.Context, req *connect.Request[RecordLoanRequest]) (*connect.Response[ProfileResponse], error) {
	target, err := parseKey("address", req.Msg.Address)
	if err != nil {
		return nil, err
	}

	p, err := s.profileSvc.RecordLoan(ctx, callerFrom(ctx), target, req.Msg.Proof, req.Msg.Amount)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&ProfileResponse{Profile: toProfile(target, p)}), nil
}

func (s *ProfileServer) RecordRepayment(ctx context.Context, req *connect.Request[RecordRepaymentRequest]) (*connect.Response[ProfileResponse], error) {
	target, err := parseKey("address", req.Msg.Address)
	if err != nil {
		return nil, err
	}

	p, err := s.profileSvc.RecordRepayment(ctx, callerFrom(ctx), target, req.Msg.Proof, req.Msg.Amount, req.Msg.IsDefault)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&ProfileResponse{Profile: toProfile(target, p)}), nil
}

func (s *ProfileServer) UpdateVerification(ctx context.Context, req *connect.Request[UpdateVerificationRequest]) (*connect.Response[ProfileResponse], error) {
	target, err := parseKey("address", req.Msg.Address)
	if err != nil {
		return nil, err
	}

	p, err := s.profileSvc.UpdateVerification(ctx, callerFrom(ctx), target, req.Msg.Proof, req.Msg.Verified)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&ProfileResponse{Profile: toProfile(target, p)}), nil
}

func (s *ProfileServer) GetProfile(ctx context.Context, req *connect.Request[GetProfileRequest]) (*connect.Response[GetProfileResponse], error) {
	addr, err := parseKey("address", req.Msg.Address)
	if err != nil {
		return nil, err
	}

	view, err := s.profileSvc.GetProfile(ctx, addr, req.Msg.EventLimit)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(toProfileView(view)), nil
}

func (s *ProfileServer) GetProfileByOwner(ctx context.Context, req *connect.Request[GetProfileByOwnerRequest]) (*connect.Response[GetProfileResponse], error) {
	owner, err := parseKey("owner", req.Msg.Owner)
	if err != nil {
		return nil, err
	}

	view, err := s.profileSvc.GetProfileByOwner(ctx, owner, req.Msg.EventLimit)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(toProfileView(view)), nil
}

func (s *ProfileServer) DeriveAddress(ctx context.Context, req *connect.Request[DeriveAddressRequest]) (*connect.Response[DeriveAddressResponse], error) {
	owner, err := parseKey("owner", req.Msg.Owner)
	if err != nil {
		return nil, err
	}

	addr, proof, err := s.profileSvc.DeriveAddress(owner)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&DeriveAddressResponse{Address: addr, Proof: proof}), nil
}

func (s *ProfileServer) ListEvents(ctx context.Context, req *connect.Request[ListEventsRequest]) (*connect.Response[ListEventsResponse], error) {
	addr, err := parseKey("address", req.Msg.Address)
	if err != nil {
		return nil, err
	}

	events, err := s.profileSvc.ListEvents(ctx, addr, req.Msg.Limit)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&ListEventsResponse{Events: toEvents(events)}), nil
}

func (s *ProfileServer) RefreshScore(ctx context.Context, req *connect.Request[RefreshScoreRequest]) (*connect.Response[ProfileResponse], error) {
	owner, err := parseKey("owner", req.Msg.Owner)
	if err != nil {
		return nil, err
	}
	addr, _, err := s.profileSvc.DeriveAddress(owner)
	if err != nil {
		return nil, toConnectError(err)
	}

	p, err := s.profileSvc.RefreshScore(ctx, callerFrom(ctx), owner)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&ProfileResponse{Profile: toProfile(addr, p)}), nil
}

func callerFrom(ctx context.Context) domain.Pubkey {
	caller, _ := middleware.GetCaller(ctx)
	return caller
}

func parseKey(field, raw string) (domain.Pubkey, error) {
	key, err := domain.ParsePubkey(raw)
	if err != nil {
		return key, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("%s: %w", field, err))
	}
	return key, nil
}

func toConnectError(err error) error {
	var code connect.Code
	switch {
	case errors.Is(err, service.ErrInvalidAssessment):
		// The risk engine answered with something unusable; not the caller's fault.
		code = connect.CodeInternal
	case errors.Is(err, profile.ErrInvalidScore),
		errors.Is(err, profile.ErrTierScoreMismatch):
		code = connect.CodeInvalidArgument
	case errors.Is(err, profile.ErrUnauthorized):
		code = connect.CodePermissionDenied
	case errors.Is(err, profile.ErrProfileAlreadyExists):
		code = connect.CodeAlreadyExists
	case errors.Is(err, profile.ErrProfileNotFound):
		code = connect.CodeNotFound
	case errors.Is(err, profile.ErrAddressMismatch):
		code = connect.CodeFailedPrecondition
	case errors.Is(err, profile.ErrCorruptRecord),
		errors.Is(err, profile.ErrInvalidTier):
		code = connect.CodeDataLoss
	case errors.Is(err, profile.ErrOverflow):
		code = connect.CodeOutOfRange
	case errors.Is(err, repository.ErrStaleWrite):
		code = connect.CodeAborted
	case errors.Is(err, context.DeadlineExceeded):
		code = connect.CodeDeadlineExceeded
	default:
		code = connect.CodeInternal
	}
	return connect.NewError(code, err)
}
