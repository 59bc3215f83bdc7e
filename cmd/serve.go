package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/veriface/attendance/internal/attendance"
	"github.com/veriface/attendance/internal/catalog"
	"github.com/veriface/attendance/internal/config"
	"github.com/veriface/attendance/internal/database"
	"github.com/veriface/attendance/internal/database/postgres"
	"github.com/veriface/attendance/internal/face"
	"github.com/veriface/attendance/internal/geocode"
	"github.com/veriface/attendance/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the attendance web server",
	Long: `Start the attendance web server.
The server exposes face detection and comparison endpoints, enrollment,
attendance marking with face verification, class session management,
and a Prometheus metrics endpoint.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 8080, "Port to listen on")
	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
}

// resolveServeHostPort resolves port and host from flags and environment variables.
func resolveServeHostPort(cmd *cobra.Command) (int, string) {
	port := mustGetInt(cmd, "port")
	host := mustGetString(cmd, "host")

	if envPort := os.Getenv("WEB_PORT"); envPort != "" {
		fmt.Sscanf(envPort, "%d", &port)
	}
	if envHost := os.Getenv("WEB_HOST"); envHost != "" {
		host = envHost
	}
	return port, host
}

// warmReferenceIndex builds the in-memory HNSW index over the newest
// reference image of every enrolled user. Duplicate-enrollment checks fall
// back to an empty index if the warm-up fails.
func warmReferenceIndex(ctx context.Context, users database.UserStore) *database.ReferenceIndex {
	index := database.NewReferenceIndex()

	fmt.Printf("Building in-memory HNSW index for enrolled faces...\n")
	refs, err := users.CurrentReferences(ctx)
	if err != nil {
		fmt.Printf("Warning: failed to load reference images: %v\n", err)
		fmt.Printf("Duplicate-enrollment detection starts from an empty index\n")
		return index
	}
	if err := index.Build(refs); err != nil {
		fmt.Printf("Warning: failed to build HNSW index: %v\n", err)
		return index
	}

	fmt.Printf("HNSW index built with %d reference faces (in-memory only)\n", index.Count())
	return index
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL environment variable is required")
	}

	fmt.Printf("Connecting to PostgreSQL database...\n")
	pool, err := postgres.Initialize(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	defer pool.Close()

	records := postgres.NewRecordStore(pool)
	users := postgres.NewUserStore(pool)
	classes := postgres.NewClassStore(pool)

	client := face.NewClient(cfg.FaceService.URL, cfg.FaceService.Timeout)
	detector := face.NewServiceDetector(client)
	matcher := face.NewServiceMatcher(client)
	geocoder := geocode.NewClient(cfg.Geocode.URL, cfg.Geocode.Timeout)

	engine := attendance.NewEngine(matcher, records, users,
		cfg.Attendance.MatchThreshold, cfg.Attendance.GracePeriod)

	index := warmReferenceIndex(context.Background(), users)

	port, host := resolveServeHostPort(cmd)

	server := web.NewServer(cfg, port, host,
		web.Stores{
			Records: records,
			Users:   users,
			Classes: classes,
		},
		web.Deps{
			Engine:   engine,
			Counter:  detector,
			Matcher:  matcher,
			Embedder: client,
			Geocoder: geocoder,
			Index:    index,
			Catalog:  catalog.New(cfg.Subjects),
		})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

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

	fmt.Printf("Starting attendance server on http://%s:%d\n", host, port)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
