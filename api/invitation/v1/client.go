package invitationv1

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// InvitationServiceClient calls InvitationService over cc.
type InvitationServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewInvitationServiceClient(cc grpc.ClientConnInterface) *InvitationServiceClient {
	return &InvitationServiceClient{cc: cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts ...grpc.CallOption) (*Resp, error) {
	req, err := Encode(in)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "encode request: %v", err)
	}
	out := &structpb.Struct{}
	if err := cc.Invoke(ctx, method, req, out, opts...); err != nil {
		return nil, err
	}
	resp := new(Resp)
	if err := Decode(out, resp); err != nil {
		return nil, status.Errorf(codes.Internal, "decode response: %v", err)
	}
	return resp, nil
}

func (c *InvitationServiceClient) CreateInvitation(ctx context.Context, in *CreateInvitationRequest, opts ...grpc.CallOption) (*CreateInvitationResponse, error) {
	return invoke[CreateInvitationResponse](ctx, c.cc, InvitationService_CreateInvitation_FullMethodName, in, opts...)
}

func (c *InvitationServiceClient) GetInvitation(ctx context.Context, in *GetInvitationRequest, opts ...grpc.CallOption) (*GetInvitationResponse, error) {
	return invoke[GetInvitationResponse](ctx, c.cc, InvitationService_GetInvitation_FullMethodName, in, opts...)
}

func (c *InvitationServiceClient) ListInvitations(ctx context.Context, in *ListInvitationsRequest, opts ...grpc.CallOption) (*ListInvitationsResponse, error) {
	return invoke[ListInvitationsResponse](ctx, c.cc, InvitationService_ListInvitations_FullMethodName, in, opts...)
}

func (c *InvitationServiceClient) CancelInvitation(ctx context.Context, in *CancelInvitationRequest, opts ...grpc.CallOption) (*CancelInvitationResponse, error) {
	return invoke[CancelInvitationResponse](ctx, c.cc, InvitationService_CancelInvitation_FullMethodName, in, opts...)
}

func (c *InvitationServiceClient) ResendInvitation(ctx context.Context, in *ResendInvitationRequest, opts ...grpc.CallOption) (*ResendInvitationResponse, error) {
	return invoke[ResendInvitationResponse](ctx, c.cc, InvitationService_ResendInvitation_FullMethodName, in, opts...)
}

func (c *InvitationServiceClient) ValidateInvitation(ctx context.Context, in *ValidateInvitationRequest, opts ...grpc.CallOption) (*ValidateInvitationResponse, error) {
	return invoke[ValidateInvitationResponse](ctx, c.cc, InvitationService_ValidateInvitation_FullMethodName, in, opts...)
}

func (c *InvitationServiceClient) AcceptInvitation(ctx context.Context, in *AcceptInvitationRequest, opts ...grpc.CallOption) (*AcceptInvitationResponse, error) {
	return invoke[AcceptInvitationResponse](ctx, c.cc, InvitationService_AcceptInvitation_FullMethodName, in, opts...)
}
