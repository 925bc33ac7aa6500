package rpc

import (
	"context"

	"google.golang.org/grpc"
)

// Client is a thin typed wrapper over a grpc.ClientConn implementing the
// §6 RPC surface, the hand-rolled equivalent of a protoc-gen-go-grpc
// client stub.
type Client struct {
	cc *grpc.ClientConn
}

// NewClient wraps an already-dialled connection (over the platform's IPC
// transport, see transport_*.go).
func NewClient(cc *grpc.ClientConn) *Client {
	return &Client{cc: cc}
}

func (c *Client) invoke(ctx context.Context, method string, req, reply any) error {
	return c.cc.Invoke(ctx, "/"+serviceName+"/"+method, req, reply, grpc.CallContentSubtype(callContentSubtype()))
}

func (c *Client) Connect(ctx context.Context, req *ConnectRequest) (*ConnectReply, error) {
	out := new(ConnectReply)
	return out, c.invoke(ctx, "Connect", req, out)
}

func (c *Client) Disconnect(ctx context.Context, req *DisconnectRequest) (*DisconnectReply, error) {
	out := new(DisconnectReply)
	return out, c.invoke(ctx, "Disconnect", req, out)
}

func (c *Client) Status(ctx context.Context, req *StatusRequest) (*StatusReply, error) {
	out := new(StatusReply)
	return out, c.invoke(ctx, "Status", req, out)
}

func (c *Client) Info(ctx context.Context, req *InfoRequest) (*InfoReply, error) {
	out := new(InfoReply)
	return out, c.invoke(ctx, "Info", req, out)
}

func (c *Client) ImportCredential(ctx context.Context, req *ImportCredentialRequest) (*ImportCredentialReply, error) {
	out := new(ImportCredentialReply)
	return out, c.invoke(ctx, "ImportCredential", req, out)
}

func (c *Client) ListEntryGateways(ctx context.Context, req *ListGatewaysRequest) (*ListGatewaysReply, error) {
	out := new(ListGatewaysReply)
	return out, c.invoke(ctx, "ListEntryGateways", req, out)
}

func (c *Client) ListExitGateways(ctx context.Context, req *ListGatewaysRequest) (*ListGatewaysReply, error) {
	out := new(ListGatewaysReply)
	return out, c.invoke(ctx, "ListExitGateways", req, out)
}

func (c *Client) StoreAccountMnemonic(ctx context.Context, req *StoreAccountMnemonicRequest) (*StoreAccountMnemonicReply, error) {
	out := new(StoreAccountMnemonicReply)
	return out, c.invoke(ctx, "StoreAccountMnemonic", req, out)
}

func (c *Client) IsAccountMnemonicStored(ctx context.Context, req *IsAccountMnemonicStoredRequest) (*IsAccountMnemonicStoredReply, error) {
	out := new(IsAccountMnemonicStoredReply)
	return out, c.invoke(ctx, "IsAccountMnemonicStored", req, out)
}

func (c *Client) RemoveAccountMnemonic(ctx context.Context, req *RemoveAccountMnemonicRequest) (*RemoveAccountMnemonicReply, error) {
	out := new(RemoveAccountMnemonicReply)
	return out, c.invoke(ctx, "RemoveAccountMnemonic", req, out)
}

func (c *Client) GetAccountSummary(ctx context.Context, req *GetAccountSummaryRequest) (*GetAccountSummaryReply, error) {
	out := new(GetAccountSummaryReply)
	return out, c.invoke(ctx, "GetAccountSummary", req, out)
}

func (c *Client) WaitForAccountReadyToConnect(ctx context.Context, req *WaitForAccountReadyToConnectRequest) (*WaitForAccountReadyToConnectReply, error) {
	out := new(WaitForAccountReadyToConnectReply)
	return out, c.invoke(ctx, "WaitForAccountReadyToConnect", req, out)
}

func (c *Client) FetchNetworkEnvironment(ctx context.Context, req *FetchNetworkEnvironmentRequest) (*FetchNetworkEnvironmentReply, error) {
	out := new(FetchNetworkEnvironmentReply)
	return out, c.invoke(ctx, "FetchNetworkEnvironment", req, out)
}

func (c *Client) FetchSystemMessages(ctx context.Context, req *FetchSystemMessagesRequest) (*FetchSystemMessagesReply, error) {
	out := new(FetchSystemMessagesReply)
	return out, c.invoke(ctx, "FetchSystemMessages", req, out)
}

func (c *Client) FetchAccountLinks(ctx context.Context, req *FetchAccountLinksRequest) (*FetchAccountLinksReply, error) {
	out := new(FetchAccountLinksReply)
	return out, c.invoke(ctx, "FetchAccountLinks", req, out)
}

// StatusUpdateClientStream is the client-side handle for ListenToStatus.
type StatusUpdateClientStream interface {
	Recv() (*StatusUpdateWire, error)
	grpc.ClientStream
}

type statusUpdateClientStream struct{ grpc.ClientStream }

func (x *statusUpdateClientStream) Recv() (*StatusUpdateWire, error) {
	m := new(StatusUpdateWire)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

// ListenToStatus opens the ListenToStatus server-streaming RPC.
func (c *Client) ListenToStatus(ctx context.Context, req *ListenToStatusRequest) (StatusUpdateClientStream, error) {
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], "/"+serviceName+"/ListenToStatus", grpc.CallContentSubtype(callContentSubtype()))
	if err != nil {
		return nil, err
	}
	x := &statusUpdateClientStream{stream}
	if err := x.ClientStream.SendMsg(req); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

// StateChangeClientStream is the client-side handle for
// ListenToStateChanges.
type StateChangeClientStream interface {
	Recv() (*StateChangeWire, error)
	grpc.ClientStream
}

type stateChangeClientStream struct{ grpc.ClientStream }

func (x *stateChangeClientStream) Recv() (*StateChangeWire, error) {
	m := new(StateChangeWire)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

// ListenToStateChanges opens the ListenToStateChanges server-streaming RPC.
func (c *Client) ListenToStateChanges(ctx context.Context, req *ListenToStateChangesRequest) (StateChangeClientStream, error) {
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[1], "/"+serviceName+"/ListenToStateChanges", grpc.CallContentSubtype(callContentSubtype()))
	if err != nil {
		return nil, err
	}
	x := &stateChangeClientStream{stream}
	if err := x.ClientStream.SendMsg(req); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}
