package receiver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"google.golang.org/grpc"

	"github.com/sc2cc/sc2cc/server/internal/ingest"
)

const (
	serviceName  = "sc2cc.ingest.v1.Ingest"
	framesMethod = "/" + serviceName + "/Frames"
)

// IngestServer is the server API of the ingestion service.
type IngestServer interface {
	Frames(grpc.ServerStream) error
}

// ServiceDesc describes the ingestion service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*IngestServer)(nil),
	Streams: []grpc.StreamDesc{{
		StreamName:    "Frames",
		Handler:       framesHandler,
		ServerStreams: true,
		ClientStreams: true,
	}},
	Metadata: "sc2cc/ingest/v1/ingest.proto",
}

func framesHandler(srv interface{}, stream grpc.ServerStream) error {
	return srv.(IngestServer).Frames(stream)
}

// Receiver implements IngestServer on top of an ingest.Dispatcher.
type Receiver struct {
	dispatch *ingest.Dispatcher
}

// New creates a Receiver that routes frames through d.
func New(d *ingest.Dispatcher) *Receiver {
	return &Receiver{dispatch: d}
}

// Register adds the ingestion service to s.
func Register(s *grpc.Server, r *Receiver) {
	s.RegisterService(&ServiceDesc, r)
}

// Frames reads frames until the client closes its send side. Rejected frames
// are answered on the same stream and do not end it.
func (r *Receiver) Frames(stream grpc.ServerStream) error {
	for {
		var msg []byte
		if err := stream.RecvMsg(&msg); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		f, err := r.dispatch.Dispatch(msg)
		if err == nil {
			continue
		}
		reply := ingest.ErrorReply(f, err)
		if err := stream.SendMsg(&reply); err != nil {
			slog.Warn("receiver: reply failed", "stream_id", f.StreamID, "err", err)
			return err
		}
	}
}

// FrameStream is the client side of Frames.
type FrameStream struct {
	cs grpc.ClientStream
}

// OpenFrames starts a Frames call on conn.
func OpenFrames(ctx context.Context, conn grpc.ClientConnInterface, opts ...grpc.CallOption) (*FrameStream, error) {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(codecName)}, opts...)
	cs, err := conn.NewStream(ctx, &ServiceDesc.Streams[0], framesMethod, opts...)
	if err != nil {
		return nil, fmt.Errorf("open frames stream: %w", err)
	}
	return &FrameStream{cs: cs}, nil
}

// Send sends one encoded ingestion frame.
func (s *FrameStream) Send(frame []byte) error {
	return s.cs.SendMsg(&frame)
}

// Recv blocks for the next error reply. It returns io.EOF once the server
// has finished the call.
func (s *FrameStream) Recv() (ingest.Reply, error) {
	var msg []byte
	if err := s.cs.RecvMsg(&msg); err != nil {
		return ingest.Reply{}, err
	}
	var r ingest.Reply
	if err := json.Unmarshal(msg, &r); err != nil {
		return ingest.Reply{}, fmt.Errorf("decode reply: %w", err)
	}
	return r, nil
}

// CloseSend ends the client side of the call.
func (s *FrameStream) CloseSend() error { return s.cs.CloseSend() }
