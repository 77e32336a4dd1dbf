package gateway_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/gridgate/internal/gateway"
	"github.com/dropDatabas3/gridgate/internal/rate"
	"github.com/dropDatabas3/gridgate/internal/token"
	"github.com/dropDatabas3/gridgate/internal/transport"
)

const secret = "test-secret"

type fakeCaller struct {
	payload json.RawMessage
	err     error
	calls   int
	topics  []string
	ops     []string
}

func (f *fakeCaller) Call(_ context.Context, topic, op string, _ transport.Envelope) (json.RawMessage, error) {
	f.calls++
	f.topics = append(f.topics, topic)
	f.ops = append(f.ops, op)
	if f.err != nil {
		return nil, f.err
	}
	return f.payload, nil
}

// spyStore cuenta accesos al store del limiter.
type spyStore struct {
	inner  *rate.MemoryStore
	reads  int
	writes int
}

func (s *spyStore) Get(ctx context.Context, key string) (*rate.Record, error) {
	s.reads++
	return s.inner.Get(ctx, key)
}
func (s *spyStore) Put(ctx context.Context, key string, rec *rate.Record) error {
	s.writes++
	return s.inner.Put(ctx, key, rec)
}

func setup(caller *fakeCaller) (*gateway.Orchestrator, *spyStore) {
	store := &spyStore{inner: rate.NewMemoryStore()}
	limiter := rate.New(store, 10, time.Minute)
	return gateway.New(caller, limiter, token.NewValidator(secret)), store
}

func mint(t *testing.T, subject string) string {
	t.Helper()
	signed, _, err := token.NewIssuer(secret, time.Hour).Issue(subject, "user")
	require.NoError(t, err)
	return signed
}

func env(data map[string]any, key string) transport.Envelope {
	e := transport.Envelope{Data: data}
	if key != "" {
		e.Meta = &transport.Meta{Key: key}
	}
	return e
}

func TestProtectedOpWithoutCredential(t *testing.T) {
	caller := &fakeCaller{}
	gw, store := setup(caller)

	out, status := gw.Handle(context.Background(), gateway.OpProcessPrompt,
		env(map[string]any{"prompt": "hi"}, ""))

	require.Equal(t, 401, status)
	require.Equal(t, false, out["success"])
	require.NotEmpty(t, out["correlationId"])
	require.Equal(t, 0, caller.calls, "must not contact downstream")
	require.Equal(t, 0, store.reads, "must not contact the rate limiter")
}

func TestMalformedEnvelope(t *testing.T) {
	caller := &fakeCaller{}
	gw, _ := setup(caller)

	out, status := gw.Handle(context.Background(), gateway.OpProcessPrompt,
		transport.Envelope{Data: nil})
	require.Equal(t, 400, status)
	require.Equal(t, false, out["success"])
}

func TestPromptHappyPathAttachesQuota(t *testing.T) {
	caller := &fakeCaller{payload: json.RawMessage(`{"response":"hello"}`)}
	gw, _ := setup(caller)

	out, status := gw.Handle(context.Background(), gateway.OpProcessPrompt,
		env(map[string]any{"prompt": "hi"}, mint(t, "alice")))

	require.Equal(t, 200, status)
	require.Equal(t, "hello", out["response"])
	require.Equal(t, []string{gateway.TopicProcessing}, caller.topics)
	require.Equal(t, []string{"processRequest"}, caller.ops)

	info, ok := out["rateLimitInfo"].(map[string]any)
	require.True(t, ok, "success must carry quota metadata")
	require.Equal(t, 9, info["remaining"])
	require.Equal(t, 60, info["windowDurationSeconds"])
}

func TestQuotaExhaustedBlocksBeforeForward(t *testing.T) {
	caller := &fakeCaller{payload: json.RawMessage(`{"response":"x"}`)}
	store := &spyStore{inner: rate.NewMemoryStore()}
	limiter := rate.New(store, 1, time.Minute)
	gw := gateway.New(caller, limiter, token.NewValidator(secret))

	key := mint(t, "bob")
	_, status := gw.Handle(context.Background(), gateway.OpProcessPrompt,
		env(map[string]any{"prompt": "hi"}, key))
	require.Equal(t, 200, status)

	out, status := gw.Handle(context.Background(), gateway.OpProcessPrompt,
		env(map[string]any{"prompt": "hi"}, key))
	require.Equal(t, 429, status)
	require.Equal(t, false, out["success"])
	require.NotNil(t, out["retryAfterSeconds"])
	require.LessOrEqual(t, out["retryAfterSeconds"].(int), 60)
	require.Equal(t, 1, caller.calls, "blocked request must not reach downstream")
}

func TestPayloadShapeRejected(t *testing.T) {
	caller := &fakeCaller{}
	gw, _ := setup(caller)

	out, status := gw.Handle(context.Background(), gateway.OpProcessPrompt,
		env(map[string]any{"prompt": 42}, mint(t, "carol")))
	require.Equal(t, 400, status)
	require.Equal(t, false, out["success"])
	require.Equal(t, 0, caller.calls)
}

func TestExemptOpsSkipAuthAndQuota(t *testing.T) {
	caller := &fakeCaller{payload: json.RawMessage(`{"success":true,"identity":"dora"}`)}
	gw, store := setup(caller)

	out, status := gw.Handle(context.Background(), gateway.OpRegister,
		env(map[string]any{"identity": "dora", "password": "pw"}, ""))

	require.Equal(t, 200, status)
	require.Equal(t, true, out["success"])
	require.Equal(t, []string{gateway.TopicAccount}, caller.topics)
	require.Equal(t, 0, store.reads, "exempt ops must not consume quota")
	require.Nil(t, out["rateLimitInfo"])
}

func TestErrorClassificationTable(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"service not found", transport.Failf(transport.FailLookupEmpty, "no peers"), 503},
		{"timeout", transport.Failf(transport.FailTimeout, "timed out"), 504},
		{"refused", transport.Failf(transport.FailConnectionRefused, "refused"), 503},
		{"closed", transport.Failf(transport.FailConnectionClosed, "closed"), 503},
		{"remote auth", &transport.Failure{Kind: transport.FailFatal, Code: transport.CodeAuthFailed, Message: "nope"}, 401},
		{"remote validation", &transport.Failure{Kind: transport.FailFatal, Code: transport.CodeValidation, Message: "bad"}, 400},
		{"remote internal", &transport.Failure{Kind: transport.FailFatal, Code: transport.CodeInternal, Message: "boom"}, 500},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			caller := &fakeCaller{err: tc.err}
			gw, _ := setup(caller)
			out, status := gw.Handle(context.Background(), gateway.OpProcessPrompt,
				env(map[string]any{"prompt": "hi"}, mint(t, "erin")))
			require.Equal(t, tc.wantStatus, status)
			require.Equal(t, false, out["success"])
			require.NotEmpty(t, out["message"])
		})
	}
}

func TestVerifySessionIsLocalAndReadOnly(t *testing.T) {
	caller := &fakeCaller{}
	gw, store := setup(caller)

	out, status := gw.Handle(context.Background(), gateway.OpVerifySession,
		env(map[string]any{}, mint(t, "frank")))

	require.Equal(t, 200, status)
	require.Equal(t, true, out["success"])
	require.Equal(t, "frank", out["identity"])
	require.Equal(t, 0, caller.calls, "verifySession must not forward anywhere")
	require.Equal(t, 0, store.writes, "verifySession must not consume quota")

	info, ok := out["rateLimitInfo"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, 10, info["remaining"], "read-only status reports full quota")

	_, status = gw.Handle(context.Background(), gateway.OpVerifySession,
		env(map[string]any{}, ""))
	require.Equal(t, 401, status)
}
