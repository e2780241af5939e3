// stratafs is the file-management backend daemon.
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/stratafs/stratafs/internal/logger"
	"github.com/stratafs/stratafs/pkg/auth"
	"github.com/stratafs/stratafs/pkg/config"
	"github.com/stratafs/stratafs/pkg/identity"
	"github.com/stratafs/stratafs/pkg/metrics"
	"github.com/stratafs/stratafs/pkg/server"
	"github.com/stratafs/stratafs/pkg/vfs"
)

var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to config file (default: "+config.GetDefaultConfigPath()+")")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("stratafs %s (%s)\n", Version, Commit)
		return
	}

	if err := run(*configPath); err != nil {
		log.Fatal().Err(err).Msg("fatal error")
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := logger.Setup(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output); err != nil {
		return fmt.Errorf("setup logger: %w", err)
	}

	log.Info().
		Str("version", Version).
		Str("listen_addr", cfg.Server.ListenAddr).
		Str("storage", cfg.Storage.Type).
		Str("identity", cfg.Identity.Type).
		Msg("starting stratafs")

	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := config.CreateObjectStore(ctx, &cfg.Storage)
	if err != nil {
		return fmt.Errorf("create object store: %w", err)
	}

	identities, err := config.CreateIdentityStore(ctx, &cfg.Identity)
	if err != nil {
		return fmt.Errorf("create identity store: %w", err)
	}
	defer func() {
		if err := identities.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close identity store")
		}
	}()

	emitter, sink, err := config.CreateAuditTrail(ctx, &cfg.Audit)
	if err != nil {
		return fmt.Errorf("create audit trail: %w", err)
	}
	if emitter != nil {
		// Emitter first so queued events drain into the sink before it closes.
		defer func() {
			emitter.Close()
			if err := sink.Close(); err != nil {
				log.Error().Err(err).Msg("failed to close audit sink")
			}
		}()
	}

	tokens, err := auth.NewManager(auth.Config{
		Secret:     cfg.Auth.Secret,
		Issuer:     cfg.Auth.Issuer,
		AccessTTL:  cfg.Auth.AccessTTL,
		RefreshTTL: cfg.Auth.RefreshTTL,
	})
	if err != nil {
		return fmt.Errorf("create token manager: %w", err)
	}

	if err := ensureAdmin(ctx, identities); err != nil {
		return fmt.Errorf("ensure admin user: %w", err)
	}

	srv, err := server.New(server.Options{
		Config:     cfg,
		Store:      store,
		Identities: identities,
		Tokens:     tokens,
		Emitter:    emitter,
		Sink:       sink,
	})
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}

	return srv.Serve(ctx)
}

// ensureAdmin creates the initial admin account when the identity store is
// empty. The password comes from STRATAFS_ADMIN_PASSWORD, or is generated
// and logged once; without this there is no way to reach the user-creation
// endpoint on a fresh install.
func ensureAdmin(ctx context.Context, identities identity.Store) error {
	_, total, err := identities.ListUsers(ctx, identity.ListOptions{Limit: 1})
	if err != nil {
		return err
	}
	if total > 0 {
		return nil
	}

	password := os.Getenv("STRATAFS_ADMIN_PASSWORD")
	generated := password == ""
	if generated {
		buf := make([]byte, 16)
		if _, err := rand.Read(buf); err != nil {
			return fmt.Errorf("generate admin password: %w", err)
		}
		password = hex.EncodeToString(buf)
	}

	hash, err := identity.HashPassword(password)
	if err != nil {
		return err
	}

	admin := &identity.User{
		Username:     "admin",
		PasswordHash: hash,
		Role:         vfs.RoleAdmin,
		HomePath:     "/admin",
		Active:       true,
	}
	if err := identities.CreateUser(ctx, admin); err != nil {
		return err
	}

	if generated {
		log.Warn().
			Str("username", "admin").
			Str("password", password).
			Msg("created initial admin with a generated password, change it immediately")
	} else {
		log.Info().Str("username", "admin").Msg("created initial admin")
	}
	return nil
}
