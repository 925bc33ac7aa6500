package rpc

import (
	"context"

	"google.golang.org/grpc"
)

// serviceName is the gRPC service path prefix every method below is
// registered under, playing the role protoc normally derives from the
// .proto package+service declaration.
const serviceName = "nymvpn.Daemon"

// Handlers is implemented by the daemon-side adapter over C11's
// dispatcher.Dispatcher. It is the HandlerType a hand-authored
// grpc.ServiceDesc dispatches into, standing in for the interface
// protoc-gen-go-grpc would otherwise generate from a .proto file.
type Handlers interface {
	Connect(ctx context.Context, req *ConnectRequest) (*ConnectReply, error)
	Disconnect(ctx context.Context, req *DisconnectRequest) (*DisconnectReply, error)
	Status(ctx context.Context, req *StatusRequest) (*StatusReply, error)
	Info(ctx context.Context, req *InfoRequest) (*InfoReply, error)
	ImportCredential(ctx context.Context, req *ImportCredentialRequest) (*ImportCredentialReply, error)
	ListEntryGateways(ctx context.Context, req *ListGatewaysRequest) (*ListGatewaysReply, error)
	ListExitGateways(ctx context.Context, req *ListGatewaysRequest) (*ListGatewaysReply, error)
	StoreAccountMnemonic(ctx context.Context, req *StoreAccountMnemonicRequest) (*StoreAccountMnemonicReply, error)
	IsAccountMnemonicStored(ctx context.Context, req *IsAccountMnemonicStoredRequest) (*IsAccountMnemonicStoredReply, error)
	RemoveAccountMnemonic(ctx context.Context, req *RemoveAccountMnemonicRequest) (*RemoveAccountMnemonicReply, error)
	GetAccountSummary(ctx context.Context, req *GetAccountSummaryRequest) (*GetAccountSummaryReply, error)
	WaitForAccountReadyToConnect(ctx context.Context, req *WaitForAccountReadyToConnectRequest) (*WaitForAccountReadyToConnectReply, error)
	FetchNetworkEnvironment(ctx context.Context, req *FetchNetworkEnvironmentRequest) (*FetchNetworkEnvironmentReply, error)
	FetchSystemMessages(ctx context.Context, req *FetchSystemMessagesRequest) (*FetchSystemMessagesReply, error)
	FetchAccountLinks(ctx context.Context, req *FetchAccountLinksRequest) (*FetchAccountLinksReply, error)
	ListenToStatus(req *ListenToStatusRequest, stream StatusStream) error
	ListenToStateChanges(req *ListenToStateChangesRequest, stream StateChangeStream) error
}

// StatusStream is the server-side handle for the ListenToStatus
// subscription, one Send per broadcast.StatusUpdate (§4.11).
type StatusStream interface {
	Send(*StatusUpdateWire) error
	grpc.ServerStream
}

type statusStreamServer struct{ grpc.ServerStream }

func (x *statusStreamServer) Send(m *StatusUpdateWire) error { return x.ServerStream.SendMsg(m) }

// StateChangeStream is the server-side handle for the
// ListenToStateChanges subscription.
type StateChangeStream interface {
	Send(*StateChangeWire) error
	grpc.ServerStream
}

type stateChangeStreamServer struct{ grpc.ServerStream }

func (x *stateChangeStreamServer) Send(m *StateChangeWire) error { return x.ServerStream.SendMsg(m) }

func unaryHandler[Req, Resp any](method string, call func(Handlers, context.Context, *Req) (*Resp, error)) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(Handlers), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/" + method}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(Handlers), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// ServiceDesc is the hand-authored equivalent of protoc-gen-go-grpc's
// generated _ServiceDesc: it binds each §6 RPC name to its handler, the
// same structure grpc.Server.RegisterService and grpc.ClientConn.Invoke/
// NewStream both key off.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*Handlers)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Connect", Handler: unaryHandler("Connect", Handlers.Connect)},
		{MethodName: "Disconnect", Handler: unaryHandler("Disconnect", Handlers.Disconnect)},
		{MethodName: "Status", Handler: unaryHandler("Status", Handlers.Status)},
		{MethodName: "Info", Handler: unaryHandler("Info", Handlers.Info)},
		{MethodName: "ImportCredential", Handler: unaryHandler("ImportCredential", Handlers.ImportCredential)},
		{MethodName: "ListEntryGateways", Handler: unaryHandler("ListEntryGateways", Handlers.ListEntryGateways)},
		{MethodName: "ListExitGateways", Handler: unaryHandler("ListExitGateways", Handlers.ListExitGateways)},
		{MethodName: "StoreAccountMnemonic", Handler: unaryHandler("StoreAccountMnemonic", Handlers.StoreAccountMnemonic)},
		{MethodName: "IsAccountMnemonicStored", Handler: unaryHandler("IsAccountMnemonicStored", Handlers.IsAccountMnemonicStored)},
		{MethodName: "RemoveAccountMnemonic", Handler: unaryHandler("RemoveAccountMnemonic", Handlers.RemoveAccountMnemonic)},
		{MethodName: "GetAccountSummary", Handler: unaryHandler("GetAccountSummary", Handlers.GetAccountSummary)},
		{MethodName: "WaitForAccountReadyToConnect", Handler: unaryHandler("WaitForAccountReadyToConnect", Handlers.WaitForAccountReadyToConnect)},
		{MethodName: "FetchNetworkEnvironment", Handler: unaryHandler("FetchNetworkEnvironment", Handlers.FetchNetworkEnvironment)},
		{MethodName: "FetchSystemMessages", Handler: unaryHandler("FetchSystemMessages", Handlers.FetchSystemMessages)},
		{MethodName: "FetchAccountLinks", Handler: unaryHandler("FetchAccountLinks", Handlers.FetchAccountLinks)},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName: "ListenToStatus",
			Handler: func(srv any, stream grpc.ServerStream) error {
				m := new(ListenToStatusRequest)
				if err := stream.RecvMsg(m); err != nil {
					return err
				}
				return srv.(Handlers).ListenToStatus(m, &statusStreamServer{stream})
			},
			ServerStreams: true,
		},
		{
			StreamName: "ListenToStateChanges",
			Handler: func(srv any, stream grpc.ServerStream) error {
				m := new(ListenToStateChangesRequest)
				if err := stream.RecvMsg(m); err != nil {
					return err
				}
				return srv.(Handlers).ListenToStateChanges(m, &stateChangeStreamServer{stream})
			},
			ServerStreams: true,
		},
	},
	Metadata: "internal/dispatcher/rpc/service.go",
}
