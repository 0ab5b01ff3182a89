package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wh0th3h3llam1/agent-aid/internal/archive"
	"github.com/wh0th3h3llam1/agent-aid/internal/completeness"
	"github.com/wh0th3h3llam1/agent-aid/internal/config"
	"github.com/wh0th3h3llam1/agent-aid/internal/extract"
	"github.com/wh0th3h3llam1/agent-aid/internal/geo"
	"github.com/wh0th3h3llam1/agent-aid/internal/httpapi"
	"github.com/wh0th3h3llam1/agent-aid/internal/intake"
	"github.com/wh0th3h3llam1/agent-aid/internal/mcpserver"
	"github.com/wh0th3h3llam1/agent-aid/internal/models"
	"github.com/wh0th3h3llam1/agent-aid/internal/requeststore"
	"github.com/wh0th3h3llam1/agent-aid/internal/session"
	"github.com/wh0th3h3llam1/agent-aid/internal/similarity"
)

var version = "0.1.0-dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "agentaid",
		Short: "Disaster relief intake and matching server",
		Long: `agentaid turns free-text disaster reports into structured, searchable
relief requests.

Incomplete reports get a clarification follow-up; complete ones are
committed, geocoded, and indexed so field agents can claim the nearest
unserved need.`,
	}

	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON (for agent consumption)")
	rootCmd.PersistentFlags().String("config", "", "Path to config file (YAML)")

	rootCmd.AddCommand(
		newVersionCmd(),
		newServeCmd(),
		newMCPServerCmd(),
		newCheckCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				json.NewEncoder(os.Stdout).Encode(map[string]string{"version": version})
			} else {
				fmt.Printf("agentaid version %s\n", version)
			}
		},
	}
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP intake server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}

			log, err := zap.NewProduction()
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			defer log.Sync()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			engine, cleanup, err := buildEngine(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer cleanup()

			srv := httpapi.New(cfg.Server.ListenAddr, engine, log)
			errCh := make(chan error, 1)
			go func() { errCh <- srv.ListenAndServe() }()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
				log.Info("shutting down")
				return srv.Shutdown(context.Background())
			}
		},
	}
}

func newMCPServerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp-server",
		Short: "Run agentaid as an MCP (Model Context Protocol) server",
		Long: `Start an MCP server that exposes intake over stdio.

Tools:

  • aid_submit          - Submit a report or follow-up answer
  • aid_search_similar  - Find similar committed requests
  • aid_nearby          - Find requests near a coordinate
  • aid_pending         - List unclaimed requests

The server communicates via JSON-RPC 2.0 over stdin/stdout, following the
Model Context Protocol specification.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}

			// Stdout carries the protocol; logs must go to stderr only.
			log, err := stderrLogger()
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			defer log.Sync()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			engine, cleanup, err := buildEngine(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer cleanup()

			srv := mcpserver.NewServer(mcpserver.Config{Name: "agentaid", Version: version}, engine, log)
			if err := srv.Run(ctx); err != nil {
				return fmt.Errorf("mcp server: %w", err)
			}
			return nil
		},
	}
}

func newCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check [file]",
		Short: "Run the completeness check on a structured request",
		Long: `Read a structured request as JSON from a file (or stdin when no file
is given) and report its completeness issues and score without
committing anything.

Example:
  echo '{"items":["medicine"],"location":"downtown"}' | agentaid check`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var data []byte
			var err error
			if len(args) == 1 {
				data, err = os.ReadFile(args[0])
			} else {
				data, err = io.ReadAll(os.Stdin)
			}
			if err != nil {
				return fmt.Errorf("read input: %w", err)
			}

			var rec models.DisasterRequest
			if err := json.Unmarshal(data, &rec); err != nil {
				return fmt.Errorf("parse request: %w", err)
			}

			result := completeness.Check(&rec)

			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				return json.NewEncoder(os.Stdout).Encode(result)
			}

			if result.IsComplete {
				fmt.Printf("complete (score %d)\n", result.Score)
				return nil
			}
			fmt.Printf("incomplete (score %d, %d issues)\n", result.Score, len(result.Issues))
			for _, iss := range result.Issues {
				fmt.Printf("  - [%s] %s\n", iss.Type, iss.Question)
			}
			return nil
		},
	}
	return cmd
}

// buildEngine assembles the pipeline from config. The returned cleanup
// closes whatever was opened.
func buildEngine(ctx context.Context, cfg *config.Config, log *zap.Logger) (*intake.Engine, func(), error) {
	client := extract.NewHTTPClient(extract.Config{
		BaseURL: cfg.Extraction.BaseURL,
		APIKey:  cfg.Extraction.APIKey,
		Model:   cfg.Extraction.Model,
		Timeout: cfg.Extraction.Timeout.Std(),
	})

	var index similarity.Index
	switch cfg.Similarity.Backend {
	case "hnsw":
		index = similarity.NewHNSWIndex(similarity.HNSWConfig{
			Dims:     cfg.Similarity.Dims,
			M:        cfg.Similarity.M,
			EfSearch: cfg.Similarity.EfSearch,
		})
	case "keyword":
		index = similarity.NewKeywordIndex()
	default:
		index = similarity.NewBruteForceIndex(cfg.Similarity.Dims)
	}

	geocoder := geo.NewNominatimGeocoder(geo.NominatimConfig{
		BaseURL:   cfg.Geo.NominatimURL,
		UserAgent: cfg.Geo.UserAgent,
		RateDelay: cfg.Geo.RateDelay.Std(),
	})

	cleanup := func() {}
	var arch *archive.Archive
	if cfg.Archive.Path != "" {
		var err error
		arch, err = archive.Open(cfg.Archive.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("open archive: %w", err)
		}
		cleanup = func() { arch.Close() }
	}

	sessions := session.NewStore(cfg.Session.TTL.Std())
	sessions.StartSweeper(ctx, cfg.Session.SweepInterval.Std())

	engine := intake.NewEngine(intake.Options{
		Log:      log,
		Client:   client,
		Sessions: sessions,
		Requests: requeststore.NewStore(),
		Index:    index,
		Matcher:  geo.NewMatcher(),
		Geocoder: geocoder,
		Archive:  arch,
		RadiusKm: cfg.Geo.RadiusKm,
	})
	return engine, cleanup, nil
}

// stderrLogger builds a production logger that writes to stderr.
func stderrLogger() (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	zcfg.OutputPaths = []string{"stderr"}
	zcfg.ErrorOutputPaths = []string{"stderr"}
	return zcfg.Build()
}
