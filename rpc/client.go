package rpc

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/vitalvas/canonsig/canonical"
	"github.com/vitalvas/canonsig/envelope"
)

// Client calls a remote Signing service.
type Client struct {
	cc     *grpc.ClientConn
	client SigningClient

	// Timeout applies per RPC when non-zero.
	Timeout time.Duration
}

// DialOptions configures Dial.
type DialOptions struct {
	// Timeout applies per RPC when non-zero.
	Timeout time.Duration

	// MaxMsgBytes sets both send and receive limits when non-zero.
	MaxMsgBytes int

	// Extra options appended after the defaults.
	Options []grpc.DialOption
}

// Dial creates a client for target. The connection is established lazily
// on the first call.
func Dial(target string, opts DialOptions) (*Client, error) {
	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}

	if opts.MaxMsgBytes > 0 {
		dialOpts = append(dialOpts, grpc.WithDefaultCallOptions(
			grpc.MaxCallRecvMsgSize(opts.MaxMsgBytes),
			grpc.MaxCallSendMsgSize(opts.MaxMsgBytes),
		))
	}

	dialOpts = append(dialOpts, opts.Options...)

	cc, err := grpc.NewClient(target, dialOpts...)
	if err != nil {
		return nil, err
	}

	return &Client{cc: cc, client: NewSigningClient(cc), Timeout: opts.Timeout}, nil
}

// Close releases the connection.
func (c *Client) Close() error {
	if c == nil || c.cc == nil {
		return nil
	}

	return c.cc.Close()
}

// Sign sends r to the server and returns the parsed envelope. The envelope
// must carry exactly the record that was sent.
func (c *Client) Sign(ctx context.Context, r canonical.Record) (*envelope.Envelope, error) {
	data, err := canonical.Canonicalize(r)
	if err != nil {
		return nil, err
	}

	ctx, cancel := c.callContext(ctx)
	defer cancel()

	reply, err := c.client.Sign(ctx, wrapperspb.Bytes(data))
	if err != nil {
		return nil, mapRPC(err)
	}

	env, err := envelope.Parse(reply.GetValue())
	if err != nil {
		return nil, err
	}

	got, err := canonical.Canonicalize(env.Record)
	if err != nil || !bytes.Equal(got, data) {
		return nil, ErrRecordMismatch
	}

	return env, nil
}

// Verify asks the server to verify the envelope JSON in data.
func (c *Client) Verify(ctx context.Context, data []byte) (envelope.Result, error) {
	ctx, cancel := c.callContext(ctx)
	defer cancel()

	reply, err := c.client.Verify(ctx, wrapperspb.Bytes(data))
	if err != nil {
		return 0, mapRPC(err)
	}

	var result envelope.Result
	if err := result.UnmarshalText([]byte(reply.GetValue())); err != nil {
		return 0, fmt.Errorf("rpc: %w", err)
	}

	return result, nil
}

// PublicKey fetches the server's active public key as DER, or PEM when pem
// is true.
func (c *Client) PublicKey(ctx context.Context, pem bool) ([]byte, error) {
	format := FormatDER
	if pem {
		format = FormatPEM
	}

	ctx, cancel := c.callContext(ctx)
	defer cancel()

	reply, err := c.client.PublicKey(ctx, wrapperspb.String(format))
	if err != nil {
		return nil, mapRPC(err)
	}

	return reply.GetValue(), nil
}

func (c *Client) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.Timeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, c.Timeout)
}
