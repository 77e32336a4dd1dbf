package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/dropDatabas3/gridgate/internal/client"
	"github.com/dropDatabas3/gridgate/internal/directory"
	"github.com/dropDatabas3/gridgate/internal/observability/logger"
	"github.com/dropDatabas3/gridgate/internal/rpc"
	"github.com/dropDatabas3/gridgate/internal/transport"
)

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func sessionPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".gridgate-session"
	}
	return filepath.Join(home, ".gridgate", "session")
}

func loadSession() string {
	b, err := os.ReadFile(sessionPath())
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}

func saveSession(key string) error {
	p := sessionPath()
	if err := os.MkdirAll(filepath.Dir(p), 0o700); err != nil {
		return err
	}
	return os.WriteFile(p, []byte(key), 0o600)
}

func clearSession() { _ = os.Remove(sessionPath()) }

// connect levanta un host efímero (puerto random, sin announce) y arma el
// orquestador cliente encima.
func connect(ctx context.Context, bootstrap []string) (*client.Orchestrator, func(), error) {
	dir, err := directory.New(ctx, directory.Options{
		ListenPort:     0,
		BootstrapPeers: bootstrap,
		CacheTTL:       5 * time.Second,
	})
	if err != nil {
		return nil, nil, err
	}

	// el loop de retry vive en el orquestador cliente; esta instancia de
	// rpc hace un intento por llamada, siempre con lookup fresco
	calls := rpc.New(dir, transport.NewDialer(dir.Host()), rpc.Options{
		Timeout:     30 * time.Second,
		MaxAttempts: 1,
		Fresh:       true,
	})
	orch := client.New(calls, client.DefaultOptions())
	orch.SetToken(loadSession())
	return orch, func() { _ = dir.Close() }, nil
}

func printJSON(v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
}

func main() {
	_ = godotenv.Load()
	logger.Init(logger.Config{Env: "dev", Level: envOr("LOG_LEVEL", "warn")})

	var bootstrap []string

	root := &cobra.Command{
		Use:   "gridgate",
		Short: "CLI cliente del mesh gridgate",
	}
	root.PersistentFlags().StringSliceVar(&bootstrap, "bootstrap",
		splitCSV(envOr("MESH_BOOTSTRAP_PEERS", "")), "bootstrap peers del overlay (multiaddrs)")

	withOrch := func(fn func(ctx context.Context, orch *client.Orchestrator) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
			defer cancel()
			orch, done, err := connect(ctx, bootstrap)
			if err != nil {
				return err
			}
			defer done()
			return fn(ctx, orch)
		}
	}

	var identity, password string

	register := &cobra.Command{
		Use:   "register",
		Short: "Crea una cuenta nueva",
		RunE: withOrch(func(ctx context.Context, orch *client.Orchestrator) error {
			out, err := orch.Register(ctx, identity, password)
			if err != nil {
				return err
			}
			printJSON(out)
			return nil
		}),
	}
	register.Flags().StringVar(&identity, "identity", "", "identidad a registrar")
	register.Flags().StringVar(&password, "password", "", "password")
	_ = register.MarkFlagRequired("identity")
	_ = register.MarkFlagRequired("password")

	login := &cobra.Command{
		Use:   "login",
		Short: "Inicia sesión y guarda la credencial",
		RunE: withOrch(func(ctx context.Context, orch *client.Orchestrator) error {
			out, err := orch.Login(ctx, identity, password)
			if err != nil {
				return err
			}
			if key := orch.Token(); key != "" {
				if err := saveSession(key); err != nil {
					return err
				}
			}
			printJSON(out)
			return nil
		}),
	}
	login.Flags().StringVar(&identity, "identity", "", "identidad")
	login.Flags().StringVar(&password, "password", "", "password")
	_ = login.MarkFlagRequired("identity")
	_ = login.MarkFlagRequired("password")

	prompt := &cobra.Command{
		Use:   "prompt [texto]",
		Short: "Manda un prompt de inferencia",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			return withOrch(func(ctx context.Context, orch *client.Orchestrator) error {
				out, err := orch.Prompt(ctx, text)
				if err != nil {
					return err
				}
				printJSON(out)
				return nil
			})(cmd, args)
		},
	}

	verify := &cobra.Command{
		Use:   "verify",
		Short: "Verifica la sesión actual",
		RunE: withOrch(func(ctx context.Context, orch *client.Orchestrator) error {
			out, err := orch.VerifySession(ctx)
			if err != nil {
				return err
			}
			printJSON(out)
			return nil
		}),
	}

	logout := &cobra.Command{
		Use:   "logout",
		Short: "Descarta la sesión guardada",
		RunE: func(cmd *cobra.Command, args []string) error {
			clearSession()
			fmt.Println("session cleared")
			return nil
		},
	}

	root.AddCommand(register, login, prompt, verify, logout)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func splitCSV(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
