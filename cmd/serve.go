package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/rollcall/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server",
	Long: `Start the rollcall HTTP API.
Owners log in by name, manage course rosters and students, and submit
group pictures to take attendance for a session label.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 8080, "Port to listen on")
	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
	serveCmd.Flags().String("session-secret", "", "Secret for signing session cookies (defaults to random)")
	serveCmd.Flags().String("allowed-origins", "", "Comma-separated origins allowed by CORS besides localhost")
}

// resolveServeOptions resolves listener and session settings from flags and environment variables.
func resolveServeOptions(cmd *cobra.Command) (port int, host, sessionSecret, allowedOrigins string) {
	port = mustGetInt(cmd, "port")
	host = mustGetString(cmd, "host")
	sessionSecret = mustGetString(cmd, "session-secret")
	allowedOrigins = mustGetString(cmd, "allowed-origins")

	if sessionSecret == "" {
		sessionSecret = os.Getenv("WEB_SESSION_SECRET")
	}
	if envPort := os.Getenv("WEB_PORT"); envPort != "" {
		fmt.Sscanf(envPort, "%d", &port)
	}
	if envHost := os.Getenv("WEB_HOST"); envHost != "" {
		host = envHost
	}
	if allowedOrigins == "" {
		allowedOrigins = os.Getenv("WEB_ALLOWED_ORIGINS")
	}
	return port, host, sessionSecret, allowedOrigins
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	port, host, sessionSecret, allowedOrigins := resolveServeOptions(cmd)
	server := web.NewServer(a.service, web.Options{
		Host:           host,
		Port:           port,
		SessionSecret:  sessionSecret,
		AllowedOrigins: allowedOrigins,
		MaxUploadBytes: a.cfg.Upload.MaxBytes,
		SessionStore:   a.sessions,
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	fmt.Printf("Starting rollcall on http://%s:%d\n", host, port)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
