package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/dkeye/VoiceHub/internal/adapters/auth"
	"github.com/dkeye/VoiceHub/internal/adapters/storage"
	"github.com/dkeye/VoiceHub/internal/config"
	"github.com/dkeye/VoiceHub/internal/domain"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func main() {
	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

const shutdownTimeout = 5 * time.Second

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "voicehub",
	Short: "Realtime presence and signaling coordinator",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			zerolog.SetGlobalLevel(zerolog.DebugLevel)
		}
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if cfg.Database.Type == "memory" {
			return fmt.Errorf("database.type is memory, nothing to migrate")
		}
		// opening a SQL store runs the migrations
		backend, err := storage.NewFromConfig(cmd.Context(), cfg.Database, config.RedisConfig{})
		if err != nil {
			return err
		}
		defer backend.Close()

		if seed, _ := cmd.Flags().GetBool("seed"); seed {
			users, _ := cmd.Flags().GetStringSlice("users")
			sid, err := seedDemo(cmd.Context(), backend, users)
			if err != nil {
				return err
			}
			fmt.Printf("Demo server: %s\n", sid)
		}
		log.Info().Str("module", "cmd").Str("database", cfg.Database.Type).Msg("schema up to date")
		return nil
	},
}

var tokenCmd = &cobra.Command{
	Use:   "token <user-id>",
	Short: "Issue a session token, creating the identity if needed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if cfg.Auth.Secret == "" {
			return fmt.Errorf("auth.secret is not set")
		}
		uid := domain.UserID(args[0])
		name, _ := cmd.Flags().GetString("name")
		if name == "" {
			name = args[0]
		}

		if cfg.Database.Type != "memory" {
			backend, err := storage.NewFromConfig(cmd.Context(), cfg.Database, config.RedisConfig{})
			if err != nil {
				return err
			}
			defer backend.Close()
			if err := ensureIdentity(cmd.Context(), backend, uid, name); err != nil {
				return err
			}
		}

		ttl, _ := cmd.Flags().GetDuration("ttl")
		if ttl <= 0 {
			ttl = cfg.Auth.TTL
		}
		tok, err := auth.NewJWTAuthenticator(cfg.Auth.Secret, cfg.Auth.Issuer, ttl).Issue(uid, name)
		if err != nil {
			return err
		}
		fmt.Println(tok)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	serveCmd.Flags().Bool("demo", false, "seed a demo server and identities at startup")
	serveCmd.Flags().StringSlice("users", []string{"alice", "bob"}, "identities created with --demo")
	rootCmd.AddCommand(serveCmd)

	migrateCmd.Flags().Bool("seed", false, "also create a demo server")
	migrateCmd.Flags().StringSlice("users", []string{"alice", "bob"}, "identities created with --seed")
	rootCmd.AddCommand(migrateCmd)

	tokenCmd.Flags().String("name", "", "display name for a new identity")
	tokenCmd.Flags().Duration("ttl", 0, "token lifetime (default auth.ttl)")
	rootCmd.AddCommand(tokenCmd)
}
