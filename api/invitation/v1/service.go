package invitationv1

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const ServiceName = "travelcms.invitation.v1.InvitationService"

// Full method names, as seen by interceptors.
const (
	InvitationService_CreateInvitation_FullMethodName   = "/" + ServiceName + "/CreateInvitation"
	InvitationService_GetInvitation_FullMethodName      = "/" + ServiceName + "/GetInvitation"
	InvitationService_ListInvitations_FullMethodName    = "/" + ServiceName + "/ListInvitations"
	InvitationService_CancelInvitation_FullMethodName   = "/" + ServiceName + "/CancelInvitation"
	InvitationService_ResendInvitation_FullMethodName   = "/" + ServiceName + "/ResendInvitation"
	InvitationService_ValidateInvitation_FullMethodName = "/" + ServiceName + "/ValidateInvitation"
	InvitationService_AcceptInvitation_FullMethodName   = "/" + ServiceName + "/AcceptInvitation"
)

// InvitationServiceServer is the server API for InvitationService.
type InvitationServiceServer interface {
	CreateInvitation(context.Context, *CreateInvitationRequest) (*CreateInvitationResponse, error)
	GetInvitation(context.Context, *GetInvitationRequest) (*GetInvitationResponse, error)
	ListInvitations(context.Context, *ListInvitationsRequest) (*ListInvitationsResponse, error)
	CancelInvitation(context.Context, *CancelInvitationRequest) (*CancelInvitationResponse, error)
	ResendInvitation(context.Context, *ResendInvitationRequest) (*ResendInvitationResponse, error)
	ValidateInvitation(context.Context, *ValidateInvitationRequest) (*ValidateInvitationResponse, error)
	AcceptInvitation(context.Context, *AcceptInvitationRequest) (*AcceptInvitationResponse, error)
}

// RegisterInvitationServiceServer registers srv with s.
func RegisterInvitationServiceServer(s grpc.ServiceRegistrar, srv InvitationServiceServer) {
	s.RegisterService(&InvitationService_ServiceDesc, srv)
}

// InvitationService_ServiceDesc describes InvitationService for grpc.ServiceRegistrar.
var InvitationService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*InvitationServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CreateInvitation", Handler: unaryHandler(InvitationService_CreateInvitation_FullMethodName, InvitationServiceServer.CreateInvitation)},
		{MethodName: "GetInvitation", Handler: unaryHandler(InvitationService_GetInvitation_FullMethodName, InvitationServiceServer.GetInvitation)},
		{MethodName: "ListInvitations", Handler: unaryHandler(InvitationService_ListInvitations_FullMethodName, InvitationServiceServer.ListInvitations)},
		{MethodName: "CancelInvitation", Handler: unaryHandler(InvitationService_CancelInvitation_FullMethodName, InvitationServiceServer.CancelInvitation)},
		{MethodName: "ResendInvitation", Handler: unaryHandler(InvitationService_ResendInvitation_FullMethodName, InvitationServiceServer.ResendInvitation)},
		{MethodName: "ValidateInvitation", Handler: unaryHandler(InvitationService_ValidateInvitation_FullMethodName, InvitationServiceServer.ValidateInvitation)},
		{MethodName: "AcceptInvitation", Handler: unaryHandler(InvitationService_AcceptInvitation_FullMethodName, InvitationServiceServer.AcceptInvitation)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "travelcms/invitation/v1/invitation.proto",
}

type methodHandler = func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error)

// unaryHandler decodes the Struct request into Req, runs call through the interceptor chain and
// encodes the typed response. Interceptors see the typed request and response.
func unaryHandler[Req, Resp any](fullMethod string, call func(InvitationServiceServer, context.Context, *Req) (*Resp, error)) methodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := &structpb.Struct{}
		if err := dec(in); err != nil {
			return nil, err
		}
		req := new(Req)
		if err := Decode(in, req); err != nil {
			return nil, status.Error(codes.InvalidArgument, "malformed request")
		}
		handler := func(ctx context.Context, req any) (any, error) {
			typed, ok := req.(*Req)
			if !ok {
				return nil, status.Error(codes.InvalidArgument, "invalid request type")
			}
			return call(srv.(InvitationServiceServer), ctx, typed)
		}
		var (
			resp any
			err  error
		)
		if interceptor == nil {
			resp, err = handler(ctx, req)
		} else {
			resp, err = interceptor(ctx, req, &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}, handler)
		}
		if err != nil {
			return nil, err
		}
		out, err := Encode(resp)
		if err != nil {
			return nil, status.Errorf(codes.Internal, "build response: %v", err)
		}
		return out, nil
	}
}
