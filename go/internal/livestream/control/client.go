package control

import (
	"context"
	"encoding/json"
	"fmt"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/mcdev12/liveshop/go/internal/livestream/events"
	"github.com/mcdev12/liveshop/go/internal/livestream/orchestrator"
)

// Client calls the control service.
type Client struct {
	send  *connect.Client[structpb.Struct, emptypb.Empty]
	state *connect.Client[emptypb.Empty, structpb.Struct]
	user  string
}

// NewClient creates a client for the service at baseURL. user, if set, is sent as the publisher id.
func NewClient(httpClient connect.HTTPClient, baseURL, user string, opts ...connect.ClientOption) *Client {
	return &Client{
		send:  connect.NewClient[structpb.Struct, emptypb.Empty](httpClient, baseURL+SendProcedure, opts...),
		state: connect.NewClient[emptypb.Empty, structpb.Struct](httpClient, baseURL+StateProcedure, opts...),
		user:  user,
	}
}

func (c *Client) Send(ctx context.Context, cmd events.ControlCommand) error {
	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("unmarshal command: %w", err)
	}
	msg, err := structpb.NewStruct(fields)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	req := connect.NewRequest(msg)
	if c.user != "" {
		req.Header().Set(UserHeader, c.user)
	}
	_, err = c.send.CallUnary(ctx, req)
	return err
}

func (c *Client) State(ctx context.Context) (orchestrator.Snapshot, error) {
	resp, err := c.state.CallUnary(ctx, connect.NewRequest(&emptypb.Empty{}))
	if err != nil {
		return orchestrator.Snapshot{}, err
	}
	data, err := resp.Msg.MarshalJSON()
	if err != nil {
		return orchestrator.Snapshot{}, fmt.Errorf("marshal state: %w", err)
	}
	var snap orchestrator.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return orchestrator.Snapshot{}, fmt.Errorf("decode state: %w", err)
	}
	return snap, nil
}
