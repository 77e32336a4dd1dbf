package processor

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/gridgate/internal/transport"
)

type engineFunc func(ctx context.Context, prompt string) (string, error)

func (f engineFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

func TestProcessRequest(t *testing.T) {
	svc := NewService(engineFunc(func(_ context.Context, prompt string) (string, error) {
		return "echo: " + prompt, nil
	}))

	out, err := svc.ProcessRequest(context.Background(), transport.Envelope{
		Data: map[string]any{"prompt": "hola"},
	})
	require.NoError(t, err)
	res := out.(map[string]any)
	require.Equal(t, "echo: hola", res["response"])
	require.Nil(t, res["degraded"])
}

func TestEmptyPromptRejected(t *testing.T) {
	svc := NewService(engineFunc(func(context.Context, string) (string, error) {
		t.Fatal("engine must not be reached")
		return "", nil
	}))

	for _, data := range []map[string]any{
		{},
		{"prompt": ""},
		{"prompt": 7},
	} {
		_, err := svc.ProcessRequest(context.Background(), transport.Envelope{Data: data})
		var rerr *transport.RemoteError
		require.ErrorAs(t, err, &rerr)
		require.Equal(t, transport.CodeValidation, rerr.Code)
	}
}

func TestEngineFailureDegrades(t *testing.T) {
	svc := NewService(engineFunc(func(context.Context, string) (string, error) {
		return "", errors.New("connection refused")
	}))

	out, err := svc.ProcessRequest(context.Background(), transport.Envelope{
		Data: map[string]any{"prompt": "hola"},
	})
	require.NoError(t, err, "engine failure degrades, never errors")
	res := out.(map[string]any)
	require.Equal(t, degradedResponse, res["response"])
	require.Equal(t, true, res["degraded"])
}

func TestHTTPEngine(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "hola", req["prompt"])
		require.Equal(t, false, req["stream"])
		json.NewEncoder(w).Encode(map[string]any{"response": "mundo"})
	}))
	defer srv.Close()

	eng := NewHTTPEngine(srv.URL, 2*time.Second)
	text, err := eng.Generate(context.Background(), "hola")
	require.NoError(t, err)
	require.Equal(t, "mundo", text)
}

func TestHTTPEngineDownstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	eng := NewHTTPEngine(srv.URL, 2*time.Second)
	_, err := eng.Generate(context.Background(), "hola")
	require.Error(t, err)
}
