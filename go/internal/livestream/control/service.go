package control

import (
	"context"
	"errors"
	"net/http"

	"connectrpc.com/connect"
	"github.com/rs/zerolog/log"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/mcdev12/liveshop/go/internal/bus"
	"github.com/mcdev12/liveshop/go/internal/livestream/events"
	"github.com/mcdev12/liveshop/go/internal/livestream/orchestrator"
)

const (
	ServiceName = "livestream.v1.ControlService"

	SendProcedure  = "/" + ServiceName + "/Send"
	StateProcedure = "/" + ServiceName + "/State"

	// UserHeader carries the operator id attached to published commands.
	UserHeader = "X-User-Id"
)

// Publisher is the subset of the bus the service writes to.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload any, persist bool) error
}

// StateProvider exposes the playback snapshot.
type StateProvider interface {
	Snapshot() orchestrator.Snapshot
}

// Service lets operators drive the timeline. Commands are validated here and
// published on the control channel, so the orchestrator sees them exactly as
// it sees commands from the UI.
type Service struct {
	publisher Publisher
	state     StateProvider
}

func NewService(p Publisher, state StateProvider) *Service {
	return &Service{publisher: p, state: state}
}

// Send validates and publishes a control command.
func (s *Service) Send(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[emptypb.Empty], error) {
	data, err := protojson.Marshal(req.Msg)
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}

	in, err := events.Decode(events.ChannelControl, data)
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	cmd := in.(events.ControlCommand)

	if user := req.Header().Get(UserHeader); user != "" {
		ctx = bus.WithPublisher(ctx, user)
	}
	if err := s.publisher.Publish(ctx, string(events.ChannelControl), cmd, false); err != nil {
		log.Error().Err(err).Str("control_type", string(cmd.Type)).Msg("failed to publish control command")
		if errors.Is(err, bus.ErrClosed) {
			return nil, connect.NewError(connect.CodeUnavailable, err)
		}
		return nil, connect.NewError(connect.CodeInternal, err)
	}

	log.Info().Str("control_type", string(cmd.Type)).Msg("control command published")
	return connect.NewResponse(&emptypb.Empty{}), nil
}

// State returns the current playback snapshot.
func (s *Service) State(ctx context.Context, req *connect.Request[emptypb.Empty]) (*connect.Response[structpb.Struct], error) {
	snap := s.state.Snapshot()
	st, err := structpb.NewStruct(map[string]any{
		"currentTimeMs":   snap.CurrentTimeMs,
		"scriptCursor":    snap.ScriptCursor,
		"loopCount":       snap.LoopCount,
		"chatEnabled":     snap.ChatEnabled,
		"running":         snap.Running,
		"lastEventTimeMs": snap.LastEventTimeMs,
		"scriptLength":    snap.ScriptLength,
		"openPolls":       snap.OpenPolls,
	})
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(st), nil
}

// NewHandler returns the mount path and handler serving both procedures.
func NewHandler(svc *Service, opts ...connect.HandlerOption) (string, http.Handler) {
	mux := http.NewServeMux()
	mux.Handle(SendProcedure, connect.NewUnaryHandler(SendProcedure, svc.Send, opts...))
	mux.Handle(StateProcedure, connect.NewUnaryHandler(StateProcedure, svc.State, opts...))
	return "/" + ServiceName + "/", mux
}
