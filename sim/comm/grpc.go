package comm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	deliverMethod = "/parsim.Comm/Deliver"

	mdTag    = "parsim-tag"
	mdSource = "parsim-src"
	mdDest   = "parsim-dst"
)

// deliverServer is the server side of the parsim.Comm service.
type deliverServer interface {
	Deliver(ctx context.Context, in *wrapperspb.BytesValue) (*emptypb.Empty, error)
}

func deliverHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(deliverServer).Deliver(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: deliverMethod,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(deliverServer).Deliver(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

var commServiceDesc = grpc.ServiceDesc{
	ServiceName: "parsim.Comm",
	HandlerType: (*deliverServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Deliver",
			Handler:    deliverHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "parsim/comm.proto",
}

// GRPCComm is a Comm where every partition runs a gRPC server and delivers
// packets to its peers with a unary call. Tag, source and destination travel
// in request metadata; the payload is a BytesValue.
type GRPCComm struct {
	id    int
	addrs []string
	in    *inbox

	srv      *grpc.Server
	dialOpts []grpc.DialOption

	mu     sync.Mutex
	conns  map[int]*grpc.ClientConn
	closed bool
}

var _ Comm = (*GRPCComm)(nil)

// GRPCOption configures a GRPCComm.
type GRPCOption func(*grpcOptions)

type grpcOptions struct {
	dialOpts []grpc.DialOption
	srvOpts  []grpc.ServerOption
}

// WithDialOptions replaces the default dial options (insecure transport).
func WithDialOptions(opts ...grpc.DialOption) GRPCOption {
	return func(o *grpcOptions) { o.dialOpts = opts }
}

// WithServerOptions sets options of the inbound gRPC server.
func WithServerOptions(opts ...grpc.ServerOption) GRPCOption {
	return func(o *grpcOptions) { o.srvOpts = opts }
}

// NewGRPCComm creates the endpoint of partition id. addrs[i] is the address
// partition i listens on; the partition count is len(addrs).
func NewGRPCComm(id int, addrs []string, opts ...GRPCOption) (*GRPCComm, error) {
	if id < 0 || id >= len(addrs) {
		return nil, fmt.Errorf("partition %d out of range [0,%d)", id, len(addrs))
	}
	o := &grpcOptions{
		dialOpts: []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())},
	}
	for _, opt := range opts {
		opt(o)
	}
	c := &GRPCComm{
		id:       id,
		addrs:    append([]string(nil), addrs...),
		in:       newInbox(),
		srv:      grpc.NewServer(o.srvOpts...),
		dialOpts: o.dialOpts,
		conns:    make(map[int]*grpc.ClientConn),
	}
	c.srv.RegisterService(&commServiceDesc, c)
	return c, nil
}

// Serve accepts peer connections on lis until Close. It blocks.
func (c *GRPCComm) Serve(lis net.Listener) error {
	return c.srv.Serve(lis)
}

// ListenAndServe listens on this partition's address and serves in the background.
func (c *GRPCComm) ListenAndServe() (net.Addr, error) {
	lis, err := net.Listen("tcp", c.addrs[c.id])
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", c.addrs[c.id], err)
	}
	go func() {
		if err := c.srv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			logrus.Errorf("partition %d: gRPC server stopped: %v", c.id, err)
		}
	}()
	return lis.Addr(), nil
}

func (c *GRPCComm) PartitionID() int   { return c.id }
func (c *GRPCComm) NumPartitions() int { return len(c.addrs) }

// Deliver implements the server side: it queues the packet for the owning partition.
func (c *GRPCComm) Deliver(ctx context.Context, in *wrapperspb.BytesValue) (*emptypb.Empty, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return nil, status.Error(codes.InvalidArgument, "no metadata to retrieve")
	}
	tag, err := mdInt(md, mdTag)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	src, err := mdInt(md, mdSource)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	dst, err := mdInt(md, mdDest)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if dst != c.id {
		return nil, status.Errorf(codes.FailedPrecondition, "packet for partition %d delivered to partition %d", dst, c.id)
	}
	if err := c.in.put(Packet{Tag: Tag(tag), Source: src, Data: in.GetValue()}); err != nil {
		return nil, status.Error(codes.Unavailable, err.Error())
	}
	return &emptypb.Empty{}, nil
}

// Send delivers pkt to partition dest and returns once the peer queued it.
func (c *GRPCComm) Send(ctx context.Context, pkt Packet, dest int) error {
	if err := checkDest(c.id, len(c.addrs), dest); err != nil {
		return err
	}
	conn, err := c.conn(dest)
	if err != nil {
		return err
	}
	ctx = metadata.AppendToOutgoingContext(ctx,
		mdTag, strconv.Itoa(int(pkt.Tag)),
		mdSource, strconv.Itoa(c.id),
		mdDest, strconv.Itoa(dest),
	)
	req := &wrapperspb.BytesValue{Value: pkt.Data}
	if err := conn.Invoke(ctx, deliverMethod, req, new(emptypb.Empty), grpc.WaitForReady(true)); err != nil {
		if status.Code(err) == codes.Unavailable {
			return fmt.Errorf("send to partition %d: %v: %w", dest, err, ErrInterrupted)
		}
		return fmt.Errorf("send to partition %d: %w", dest, err)
	}
	return nil
}

func (c *GRPCComm) conn(dest int) (*grpc.ClientConn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, fmt.Errorf("send to partition %d: %w", dest, ErrInterrupted)
	}
	if conn, ok := c.conns[dest]; ok {
		return conn, nil
	}
	conn, err := grpc.Dial(c.addrs[dest], c.dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("dialing partition %d at %s: %w", dest, c.addrs[dest], err)
	}
	c.conns[dest] = conn
	return conn, nil
}

func (c *GRPCComm) Receive(timeout time.Duration) (Packet, error) {
	return c.in.take(timeout)
}

func (c *GRPCComm) TryReceive() (Packet, bool, error) {
	return c.in.tryTake()
}

// Close interrupts the receiver, stops the server and drops peer connections.
// Later sends fail with ErrInterrupted.
func (c *GRPCComm) Close() error {
	c.in.close()
	c.srv.Stop()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	var errs []error
	for id, conn := range c.conns {
		if err := conn.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(c.conns, id)
	}
	return errors.Join(errs...)
}

func mdInt(md metadata.MD, key string) (int, error) {
	vals := md.Get(key)
	if len(vals) != 1 {
		return 0, fmt.Errorf("expected exactly one %q in metadata, got %d", key, len(vals))
	}
	return strconv.Atoi(vals[0])
}
