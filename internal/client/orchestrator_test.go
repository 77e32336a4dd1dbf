package client_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/gridgate/internal/client"
	"github.com/dropDatabas3/gridgate/internal/gateway"
	"github.com/dropDatabas3/gridgate/internal/transport"
)

type call struct {
	op  string
	key string
}

// scriptedCaller devuelve los resultados en orden y registra cada llamada.
type scriptedCaller struct {
	payloads []json.RawMessage
	errs     []error
	calls    []call
}

func (s *scriptedCaller) Call(_ context.Context, _, op string, env transport.Envelope) (json.RawMessage, error) {
	s.calls = append(s.calls, call{op: op, key: env.Key()})
	i := len(s.calls) - 1
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	if i < len(s.payloads) {
		return s.payloads[i], nil
	}
	return json.RawMessage(`{}`), nil
}

func fastOpts() client.Options {
	return client.Options{
		MaxAttempts:   3,
		BaseDelay:     time.Millisecond,
		MaxDelay:      2 * time.Millisecond,
		StaleMaxDelay: time.Millisecond,
	}
}

func TestLoginStoresCredential(t *testing.T) {
	caller := &scriptedCaller{payloads: []json.RawMessage{
		[]byte(`{"success":true,"identity":"alice","key":"tok-123"}`),
	}}
	o := client.New(caller, fastOpts())

	out, err := o.Login(context.Background(), "alice", "pw")
	require.NoError(t, err)
	require.Equal(t, true, out["success"])
	require.Equal(t, "tok-123", o.Token())

	// login es exenta: no debe viajar credencial
	require.Equal(t, "", caller.calls[0].key)
}

func TestProtectedOpAttachesCredential(t *testing.T) {
	caller := &scriptedCaller{payloads: []json.RawMessage{
		[]byte(`{"response":"hola"}`),
	}}
	o := client.New(caller, fastOpts())
	o.SetToken("tok-abc")

	out, err := o.Prompt(context.Background(), "hi")
	require.NoError(t, err)
	require.Equal(t, "hola", out["response"])
	require.Equal(t, gateway.OpProcessPrompt, caller.calls[0].op)
	require.Equal(t, "tok-abc", caller.calls[0].key)
}

func TestRegisterNeverAttachesCredential(t *testing.T) {
	caller := &scriptedCaller{}
	o := client.New(caller, fastOpts())
	o.SetToken("tok-abc")

	_, err := o.Register(context.Background(), "bob", "pw")
	require.NoError(t, err)
	require.Equal(t, "", caller.calls[0].key)
}

func TestRetriesUntilSuccess(t *testing.T) {
	caller := &scriptedCaller{
		errs: []error{
			transport.Failf(transport.FailConnectionRefused, "refused"),
			transport.Failf(transport.FailTimeout, "timed out"),
			nil,
		},
		payloads: []json.RawMessage{nil, nil, []byte(`{"response":"ok"}`)},
	}
	o := client.New(caller, fastOpts())
	o.SetToken("tok")

	out, err := o.Prompt(context.Background(), "hi")
	require.NoError(t, err)
	require.Equal(t, "ok", out["response"])
	require.Len(t, caller.calls, 3)
}

func TestFatalFailureStopsImmediately(t *testing.T) {
	caller := &scriptedCaller{
		errs: []error{&transport.Failure{
			Kind: transport.FailFatal, Code: transport.CodeAuthFailed, Message: "nope",
		}},
	}
	o := client.New(caller, fastOpts())
	o.SetToken("tok")

	_, err := o.Prompt(context.Background(), "hi")
	require.Error(t, err)
	require.Len(t, caller.calls, 1)
	f, ok := transport.AsFailure(err)
	require.True(t, ok)
	require.Equal(t, transport.CodeAuthFailed, f.Code)
}

func TestExhaustionReturnsLastFailure(t *testing.T) {
	caller := &scriptedCaller{errs: []error{
		transport.Failf(transport.FailConnectionClosed, "closed"),
		transport.Failf(transport.FailConnectionClosed, "closed"),
		transport.Failf(transport.FailTimeout, "timed out"),
	}}
	o := client.New(caller, fastOpts())

	_, err := o.Register(context.Background(), "carol", "pw")
	require.Error(t, err)
	require.Len(t, caller.calls, 3)
	require.Equal(t, transport.FailTimeout, transport.KindOf(err))
}

func TestStaleFastPathCapsBackoff(t *testing.T) {
	// Primero una llamada exitosa (gateway alcanzado), después refused:
	// el backoff se acota a StaleMaxDelay en vez de MaxDelay.
	caller := &scriptedCaller{
		errs: []error{
			nil,
			transport.Failf(transport.FailConnectionRefused, "refused"),
			nil,
		},
		payloads: []json.RawMessage{
			[]byte(`{"response":"a"}`),
			nil,
			[]byte(`{"response":"b"}`),
		},
	}
	o := client.New(caller, client.Options{
		MaxAttempts:   3,
		BaseDelay:     200 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		StaleMaxDelay: 5 * time.Millisecond,
	})
	o.SetToken("tok")

	_, err := o.Prompt(context.Background(), "uno")
	require.NoError(t, err)

	start := time.Now()
	out, err := o.Prompt(context.Background(), "dos")
	require.NoError(t, err)
	require.Equal(t, "b", out["response"])
	require.Less(t, time.Since(start), 150*time.Millisecond,
		"retry after stale-looking failure must use the short cap")
}

func TestLogoutClearsCredential(t *testing.T) {
	o := client.New(&scriptedCaller{}, fastOpts())
	o.SetToken("tok")
	o.Logout()
	require.Equal(t, "", o.Token())
}

func TestContextCancelDuringBackoff(t *testing.T) {
	caller := &scriptedCaller{errs: []error{
		transport.Failf(transport.FailTimeout, "timed out"),
	}}
	o := client.New(caller, client.Options{
		MaxAttempts: 3,
		BaseDelay:   time.Hour,
		MaxDelay:    time.Hour,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := o.Register(ctx, "dave", "pw")
		done <- err
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("call did not abort on context cancel")
	}
}
