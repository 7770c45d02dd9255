package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/vitalvas/canonsig/canonical"
	"github.com/vitalvas/canonsig/envelope"
	"github.com/vitalvas/canonsig/keys"
	"github.com/vitalvas/canonsig/signature"
)

var (
	managerOnce sync.Once
	manager     *keys.Manager
	managerErr  error
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sharedManager(t *testing.T) *keys.Manager {
	t.Helper()

	managerOnce.Do(func() {
		manager, managerErr = keys.NewManager(keys.ManagerConfig{Logger: discardLogger()})
		if managerErr != nil {
			return
		}

		managerErr = manager.Init(context.Background())
	})

	require.NoError(t, managerErr)

	return manager
}

func newServer(t *testing.T, m *keys.Manager) *Server {
	t.Helper()

	signer, err := envelope.NewSigner(envelope.SignerConfig{Keys: m, Logger: discardLogger()})
	require.NoError(t, err)

	srv, err := NewServer(ServerConfig{Signer: signer, Keys: m, Logger: discardLogger()})
	require.NoError(t, err)

	return srv
}

// startBufconn serves srv over an in-memory listener and returns a client
// connected to it.
func startBufconn(t *testing.T, srv SigningServer) *Client {
	t.Helper()

	lis := bufconn.Listen(1024 * 1024)

	gs := grpc.NewServer(grpc.ChainUnaryInterceptor(LoggingInterceptor(discardLogger())))
	RegisterSigningServer(gs, srv)

	go func() {
		_ = gs.Serve(lis)
	}()

	t.Cleanup(gs.Stop)

	client, err := Dial("passthrough:///bufnet", DialOptions{
		Timeout: 5 * time.Second,
		Options: []grpc.DialOption{
			grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) {
				return lis.Dial()
			}),
		},
	})
	require.NoError(t, err)

	t.Cleanup(func() { _ = client.Close() })

	return client
}

func TestNewServer(t *testing.T) {
	_, err := NewServer(ServerConfig{})
	assert.ErrorIs(t, err, ErrMissingDependency)

	m := sharedManager(t)

	_, err = NewServer(ServerConfig{Keys: m})
	assert.ErrorIs(t, err, ErrMissingDependency)

	srv := newServer(t, m)
	assert.Equal(t, DefaultMaxMsgBytes, srv.maxMsgBytes)

	_, err = NewServer(ServerConfig{Signer: srv.signer, Keys: m, MaxMsgBytes: -1})
	assert.ErrorIs(t, err, ErrInvalidMaxMsgBytes)
}

func TestSignVerifyRoundTrip(t *testing.T) {
	m := sharedManager(t)
	client := startBufconn(t, newServer(t, m))
	ctx := context.Background()

	record := canonical.Record{"message": "Hello, World!", "id": 123}

	env, err := client.Sign(ctx, record)
	require.NoError(t, err)

	assert.Equal(t, signature.Default, env.SignatureScheme)

	der, err := m.ExportPublicKey()
	require.NoError(t, err)
	assert.Equal(t, der, env.PublicKey)

	assert.True(t, envelope.Verify(env).Valid())

	data, err := json.Marshal(env)
	require.NoError(t, err)

	result, err := client.Verify(ctx, data)
	require.NoError(t, err)
	assert.Equal(t, envelope.Valid, result)

	t.Run("tampered record", func(t *testing.T) {
		tampered := bytes.Replace(data, []byte(`"id":123`), []byte(`"id":124`), 1)
		require.NotEqual(t, data, tampered)

		result, err := client.Verify(ctx, tampered)
		require.NoError(t, err)
		assert.Equal(t, envelope.InvalidSignature, result)
	})

	t.Run("unsupported hash", func(t *testing.T) {
		unsupported := bytes.Replace(data, []byte(`"sha256"`), []byte(`"md5-legacy"`), 1)

		result, err := client.Verify(ctx, unsupported)
		require.NoError(t, err)
		assert.Equal(t, envelope.UnsupportedAlgorithm, result)
	})

	t.Run("malformed", func(t *testing.T) {
		result, err := client.Verify(ctx, []byte(`{"record":{}}`))
		require.NoError(t, err)
		assert.Equal(t, envelope.MalformedEnvelope, result)
	})
}

func TestSignErrors(t *testing.T) {
	client := startBufconn(t, newServer(t, sharedManager(t)))
	ctx := context.Background()

	t.Run("local encoding error", func(t *testing.T) {
		_, err := client.Sign(ctx, canonical.Record{"n": math.NaN()})
		assert.ErrorIs(t, err, canonical.ErrEncoding)
	})

	t.Run("server rejects non-object", func(t *testing.T) {
		_, err := client.client.Sign(ctx, wrapperspb.Bytes([]byte(`[1,2]`)))
		assert.Equal(t, codes.InvalidArgument, status.Code(err))
	})

	t.Run("server rejects unsafe integer", func(t *testing.T) {
		_, err := client.client.Sign(ctx, wrapperspb.Bytes([]byte(`{"n":9007199254740993}`)))
		assert.Equal(t, codes.InvalidArgument, status.Code(err))
		assert.ErrorIs(t, mapRPC(err), canonical.ErrEncoding)
	})

	t.Run("no key loaded", func(t *testing.T) {
		empty, err := keys.NewManager(keys.ManagerConfig{Logger: discardLogger()})
		require.NoError(t, err)

		client := startBufconn(t, newServer(t, empty))

		_, err = client.Sign(ctx, canonical.Record{"a": 1})
		assert.ErrorIs(t, err, keys.ErrNoKey)

		_, err = client.PublicKey(ctx, false)
		assert.ErrorIs(t, err, keys.ErrNoKey)
	})
}

func TestPublicKey(t *testing.T) {
	m := sharedManager(t)
	client := startBufconn(t, newServer(t, m))
	ctx := context.Background()

	der, err := m.ExportPublicKey()
	require.NoError(t, err)

	got, err := client.PublicKey(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, der, got)

	pemData, err := client.PublicKey(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, keys.EncodePublicKeyPEM(der), pemData)

	pub, err := keys.ParsePublicKey(pemData)
	require.NoError(t, err)

	current, err := m.PublicKey()
	require.NoError(t, err)
	assert.True(t, pub.Equal(current))

	t.Run("empty format means der", func(t *testing.T) {
		reply, err := client.client.PublicKey(ctx, wrapperspb.String(""))
		require.NoError(t, err)
		assert.Equal(t, der, reply.GetValue())
	})

	t.Run("unknown format", func(t *testing.T) {
		_, err := client.client.PublicKey(ctx, wrapperspb.String("jwk"))
		assert.Equal(t, codes.InvalidArgument, status.Code(err))
	})
}

func TestUnimplemented(t *testing.T) {
	client := startBufconn(t, UnimplementedSigningServer{})
	ctx := context.Background()

	_, err := client.client.Sign(ctx, wrapperspb.Bytes(nil))
	assert.Equal(t, codes.Unimplemented, status.Code(err))

	_, err = client.client.Verify(ctx, wrapperspb.Bytes(nil))
	assert.Equal(t, codes.Unimplemented, status.Code(err))

	_, err = client.client.PublicKey(ctx, wrapperspb.String(FormatDER))
	assert.Equal(t, codes.Unimplemented, status.Code(err))
}

// recordSwapServer returns a valid envelope for a different record.
type recordSwapServer struct {
	*Server
}

func (s recordSwapServer) Sign(ctx context.Context, _ *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	return s.Server.Sign(ctx, wrapperspb.Bytes([]byte(`{"other":true}`)))
}

func TestClientRejectsSwappedRecord(t *testing.T) {
	client := startBufconn(t, recordSwapServer{newServer(t, sharedManager(t))})

	_, err := client.Sign(context.Background(), canonical.Record{"a": 1})
	assert.ErrorIs(t, err, ErrRecordMismatch)
}

func TestMapRPC(t *testing.T) {
	assert.NoError(t, mapRPC(nil))

	plain := errors.New("plain")
	assert.Equal(t, plain, mapRPC(plain))

	assert.ErrorIs(t, mapRPC(status.Error(codes.InvalidArgument, "x")), canonical.ErrEncoding)
	assert.ErrorIs(t, mapRPC(status.Error(codes.FailedPrecondition, "x")), keys.ErrNoKey)
	assert.ErrorIs(t, mapRPC(status.Error(codes.Internal, "x")), signature.ErrSigning)

	unavailable := status.Error(codes.Unavailable, "down")
	assert.Equal(t, unavailable, mapRPC(unavailable))
}

func TestMapErr(t *testing.T) {
	assert.NoError(t, mapErr(nil))
	assert.Equal(t, codes.InvalidArgument, status.Code(mapErr(canonical.ErrEncoding)))
	assert.Equal(t, codes.FailedPrecondition, status.Code(mapErr(keys.ErrNoKey)))
	assert.Equal(t, codes.Internal, status.Code(mapErr(signature.ErrSigning)))
}

func TestServe(t *testing.T) {
	srv := newServer(t, sharedManager(t))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)

	go func() {
		done <- srv.Serve(ctx, ln)
	}()

	client, err := Dial(ln.Addr().String(), DialOptions{Timeout: 5 * time.Second})
	require.NoError(t, err)

	defer client.Close()

	_, err = client.PublicKey(context.Background(), false)
	require.NoError(t, err)

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not stop")
	}
}
