package rpc_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	peer "github.com/libp2p/go-libp2p/core/peer"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/gridgate/internal/rpc"
	"github.com/dropDatabas3/gridgate/internal/transport"
)

func cand(id string) transport.Candidate {
	return transport.Candidate{Info: peer.AddrInfo{ID: peer.ID(id)}}
}

type fakeResolver struct {
	candidates []transport.Candidate
	calls      int
	freshCalls int
}

func (f *fakeResolver) Lookup(_ context.Context, _ string, fresh bool) ([]transport.Candidate, error) {
	f.calls++
	if fresh {
		f.freshCalls++
	}
	return f.candidates, nil
}

type fakeInvoker struct {
	// results por id de candidato; nil error = éxito
	results map[string]error
	payload json.RawMessage
	invoked []string
}

func (f *fakeInvoker) Invoke(_ context.Context, c transport.Candidate, _, _ string, _ transport.Envelope, _ time.Duration) (json.RawMessage, error) {
	f.invoked = append(f.invoked, string(c.Info.ID))
	if err := f.results[string(c.Info.ID)]; err != nil {
		return nil, err
	}
	return f.payload, nil
}

func fastOpts() rpc.Options {
	return rpc.Options{
		Timeout:     time.Second,
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		MaxDelay:    2 * time.Millisecond,
	}
}

func TestCall_FailsOverToNextCandidate(t *testing.T) {
	resolver := &fakeResolver{candidates: []transport.Candidate{cand("a"), cand("b"), cand("c")}}
	invoker := &fakeInvoker{
		results: map[string]error{
			"a": transport.Failf(transport.FailConnectionRefused, "refused"),
			"b": transport.Failf(transport.FailConnectionClosed, "closed"),
		},
		payload: json.RawMessage(`{"ok":true}`),
	}
	c := rpc.New(resolver, invoker, fastOpts())

	payload, err := c.Call(context.Background(), "processing", "processRequest", transport.Envelope{Data: map[string]any{}})
	require.NoError(t, err)
	require.JSONEq(t, `{"ok":true}`, string(payload))
	require.Equal(t, []string{"a", "b", "c"}, invoker.invoked)
	require.Equal(t, 1, resolver.calls, "success on first attempt must not burn the attempt budget")
}

func TestCall_FatalShortCircuits(t *testing.T) {
	resolver := &fakeResolver{candidates: []transport.Candidate{cand("a"), cand("b")}}
	invoker := &fakeInvoker{
		results: map[string]error{
			"a": &transport.Failure{Kind: transport.FailFatal, Code: transport.CodeValidation, Message: "bad payload"},
		},
	}
	c := rpc.New(resolver, invoker, fastOpts())

	_, err := c.Call(context.Background(), "account", "register", transport.Envelope{Data: map[string]any{}})
	require.Error(t, err)
	require.Equal(t, transport.FailFatal, transport.KindOf(err))
	require.Equal(t, []string{"a"}, invoker.invoked, "semantic failure must not try further candidates")
	require.Equal(t, 1, resolver.calls, "semantic failure must not trigger more attempts")
}

func TestCall_EmptyLookupIsServiceNotFound(t *testing.T) {
	resolver := &fakeResolver{}
	invoker := &fakeInvoker{}
	c := rpc.New(resolver, invoker, fastOpts())

	_, err := c.Call(context.Background(), "processing", "processRequest", transport.Envelope{Data: map[string]any{}})
	require.Error(t, err)

	f, ok := transport.AsFailure(err)
	require.True(t, ok)
	require.Equal(t, transport.FailLookupEmpty, f.Kind)
	require.Equal(t, 3, f.Attempts, "exhaustion must annotate the attempt count")
	require.Empty(t, invoker.invoked, "no network attempt without candidates")
	require.Equal(t, 3, resolver.calls)
	require.Equal(t, 2, resolver.freshCalls, "retries must bypass the lookup cache")
}

func TestCall_ExhaustionKeepsLastFailure(t *testing.T) {
	resolver := &fakeResolver{candidates: []transport.Candidate{cand("a")}}
	invoker := &fakeInvoker{
		results: map[string]error{
			"a": transport.Failf(transport.FailTimeout, "timed out"),
		},
	}
	c := rpc.New(resolver, invoker, fastOpts())

	_, err := c.Call(context.Background(), "processing", "processRequest", transport.Envelope{Data: map[string]any{}})
	f, ok := transport.AsFailure(err)
	require.True(t, ok)
	require.Equal(t, transport.FailTimeout, f.Kind)
	require.Equal(t, 3, f.Attempts)
	require.Len(t, invoker.invoked, 3)
}

func TestCall_FreshOptionForcesFreshLookups(t *testing.T) {
	resolver := &fakeResolver{candidates: []transport.Candidate{cand("a")}}
	invoker := &fakeInvoker{payload: json.RawMessage(`{}`)}
	opts := fastOpts()
	opts.MaxAttempts = 1
	opts.Fresh = true
	c := rpc.New(resolver, invoker, opts)

	_, err := c.Call(context.Background(), "gateway", "login", transport.Envelope{Data: map[string]any{}})
	require.NoError(t, err)
	require.Equal(t, 1, resolver.freshCalls)
}
