package main

import (
	"context"
	"log/slog"
	"net"
	"time"

	"github.com/spf13/cobra"

	"github.com/vango-dev/trialstream/internal/config"
	"github.com/vango-dev/trialstream/internal/errors"
	"github.com/vango-dev/trialstream/pkg/server"
	"github.com/vango-dev/trialstream/pkg/store"
)

func serveCmd() *cobra.Command {
	var (
		configPath string
		addr       string
		dataDir    string
		route      string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the recording server",
		Long: `Run the WebSocket server that records trial events and arrays.

Settings come from trialstream.json or trialstream.toml in the working
directory (or --config), then TRIALSTREAM_* variables, then flags.

Examples:
  trialstream serve
  trialstream serve --addr 127.0.0.1:8765 --data-dir ./session-07
  trialstream serve --config rig.toml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			defer logger.Close()

			if addr != "" {
				cfg.Server.Address = addr
			}
			if dataDir != "" {
				cfg.Storage.DataDir = dataDir
			}
			if route != "" {
				cfg.Server.Route = route
			}
			return runServe(cmd.Context(), cfg, logger.Logger)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Config file (.json or .toml)")
	cmd.Flags().StringVarP(&addr, "addr", "a", "", "Listen address (default :8765)")
	cmd.Flags().StringVarP(&dataDir, "data-dir", "d", "", "Directory for record logs and arrays")
	cmd.Flags().StringVarP(&route, "route", "r", "", "WebSocket path (default /trials)")

	return cmd
}

func runServe(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}
	recorder, err := newRecorder(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer recorder.Close()

	srv, err := server.New(cfg.ServerConfig(), recorder)
	if err != nil {
		return errors.New(errors.CodeServerSetup).Wrap(err)
	}
	srv.SetLogger(logger)

	ln, err := net.Listen("tcp", cfg.Server.Address)
	if err != nil {
		return errors.New(errors.CodeListen).
			WithKey("server.address").
			WithSuggestion("Pick a free port with --addr").
			Wrap(err)
	}

	info("listening on ws://%s%s", ln.Addr(), cfg.Server.Route)
	info("saving to %s", recorder.DataDir())
	return srv.RunListener(ln)
}

// newRecorder builds the artifact backend and optional Redis mirror the
// config asks for.
func newRecorder(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*store.Recorder, error) {
	rc := store.RecorderConfig{
		DataDir:     cfg.Storage.DataDir,
		EventsFile:  cfg.Storage.EventsFile,
		HeadersFile: cfg.Storage.HeadersFile,
		Logger:      logger,
	}

	if cfg.Storage.Backend == config.BackendS3 {
		s3cfg := cfg.Storage.S3
		client := store.NewS3Client(s3cfg.Region, s3cfg.Endpoint, s3cfg.PathStyle)
		rc.Artifacts = store.NewS3Store(client, s3cfg.Bucket, s3cfg.Prefix)
		logger.Info("storing arrays in s3", "bucket", s3cfg.Bucket, "prefix", s3cfg.Prefix)
	}

	if cfg.Redis.Enabled() {
		dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		client, err := store.DialRedis(dialCtx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		cancel()
		if err != nil {
			return nil, errors.New(errors.CodeRedisConnect).WithKey("redis.addr").Wrap(err)
		}
		rc.Mirror = store.NewRedisMirror(client, cfg.Redis.Stream, cfg.Redis.MaxLen)
		logger.Info("mirroring records to redis", "addr", cfg.Redis.Addr, "stream", rc.Mirror.Stream())
	}

	recorder, err := store.NewRecorder(rc)
	if err != nil {
		return nil, errors.New(errors.CodeStorageOpen).WithKey("storage.data_dir").Wrap(err)
	}
	return recorder, nil
}
