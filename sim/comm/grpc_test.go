package comm

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"
)

var bufSize = 1024 * 1024

// newBufconnComms starts n GRPCComm endpoints connected through in-memory listeners.
func newBufconnComms(t *testing.T, n int) []*GRPCComm {
	t.Helper()
	addrs := make([]string, n)
	lisMap := map[string]*bufconn.Listener{}
	for i := range addrs {
		addrs[i] = fmt.Sprintf("partition-%d", i)
		lisMap[addrs[i]] = bufconn.Listen(bufSize)
	}
	dialer := grpc.WithContextDialer(func(ctx context.Context, s string) (net.Conn, error) {
		return lisMap[s].DialContext(ctx)
	})

	comms := make([]*GRPCComm, n)
	for i := range comms {
		c, err := NewGRPCComm(i, addrs, WithDialOptions(dialer, grpc.WithTransportCredentials(insecure.NewCredentials())))
		require.NoError(t, err)
		lis := lisMap[addrs[i]]
		go func() { _ = c.Serve(lis) }()
		comms[i] = c
	}
	t.Cleanup(func() {
		for _, c := range comms {
			_ = c.Close()
		}
	})
	return comms
}

func TestGRPCComm_SendReceive(t *testing.T) {
	comms := newBufconnComms(t, 3)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, comms[2].Send(ctx, Packet{Tag: 3, Data: []byte{1, 2, 3}}, 0))

	pkt, err := comms[0].Receive(5 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, Tag(3), pkt.Tag)
	assert.Equal(t, 2, pkt.Source)
	assert.Equal(t, []byte{1, 2, 3}, pkt.Data)
	assert.Equal(t, 3, comms[0].NumPartitions())
}

func TestGRPCComm_FIFOPerPair(t *testing.T) {
	comms := newBufconnComms(t, 2)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for i := 0; i < 20; i++ {
		require.NoError(t, comms[0].Send(ctx, Packet{Tag: Tag(i)}, 1))
	}
	for i := 0; i < 20; i++ {
		pkt, err := comms[1].Receive(5 * time.Second)
		require.NoError(t, err)
		require.Equal(t, Tag(i), pkt.Tag)
	}
}

func TestGRPCComm_Close_InterruptsReceive(t *testing.T) {
	comms := newBufconnComms(t, 2)
	require.NoError(t, comms[1].Close())

	_, err := comms[1].Receive(0)
	assert.ErrorIs(t, err, ErrInterrupted)
}

func TestGRPCComm_Receive_Timeout(t *testing.T) {
	comms := newBufconnComms(t, 2)
	_, err := comms[0].Receive(10 * time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestNewGRPCComm_InvalidID(t *testing.T) {
	_, err := NewGRPCComm(2, []string{"a", "b"})
	assert.Error(t, err)
}

func TestGRPCComm_SendAfterClose(t *testing.T) {
	comms := newBufconnComms(t, 2)
	require.NoError(t, comms[0].Close())

	err := comms[0].Send(context.Background(), Packet{Tag: 1}, 1)
	assert.ErrorIs(t, err, ErrInterrupted)
	assert.NoError(t, comms[0].Close(), "closing twice is harmless")
}
