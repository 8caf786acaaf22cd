package main

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/syncforge/syncforge/internal/auditlog"
	"github.com/syncforge/syncforge/internal/quorum"
	"github.com/syncforge/syncforge/internal/verifier"
	"go.uber.org/zap"
)

// version is overridden via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "forge-verify",
	Short: "SyncForge audit chain verifier",
	Long: `forge-verify replays every registry's audit chain from the durable
ledger, re-certifies each one, and emits per-registry attestations that
gate future write admissions.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		viper.SetEnvPrefix("")
		viper.AutomaticEnv()
	},
}

var (
	runDatabaseURL string
	runOutputPath  string
	runSignedPath  string
	runSigningKeys string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a full batch verification over the ledger",
	Long: `run replays the entire audit ledger ordered by (registry, audit_seq),
validates every hash linkage, and writes the attestation map to the output
path. When signing keys are configured the canonicalized map is also signed
and written as a bundle for the engine's attestation fetcher.

A fatal error (such as an unreachable database) aborts the whole run with a
non-zero exit; no partial results are emitted.`,
	RunE: runVerify,
}

func init() {
	runCmd.Flags().StringVar(&runDatabaseURL, "database-url", "", "Postgres connection string (default $DATABASE_URL)")
	runCmd.Flags().StringVar(&runOutputPath, "output", "", "Plain attestation output path (default $OUTPUT_PATH or assets/attestations.json)")
	runCmd.Flags().StringVar(&runSignedPath, "signed-output", "", "Signed bundle output path (default $OUTPUT_SIGNED_PATH or assets/attestations.signed.json)")
	runCmd.Flags().StringVar(&runSigningKeys, "signing-keys", "", "Comma-separated hex ed25519 secrets (default $SIGNING_KEYS_HEX); empty skips signing")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(keygenCmd)
	rootCmd.AddCommand(versionCmd)
}

func runVerify(cmd *cobra.Command, args []string) error {
	logger, _ := zap.NewProduction()
	defer logger.Sync() //nolint:errcheck

	dbURL := firstNonEmpty(runDatabaseURL, viper.GetString("DATABASE_URL"))
	if dbURL == "" {
		return fmt.Errorf("no database URL configured (--database-url or DATABASE_URL)")
	}
	outputPath := firstNonEmpty(runOutputPath, viper.GetString("OUTPUT_PATH"), "assets/attestations.json")
	signedPath := firstNonEmpty(runSignedPath, viper.GetString("OUTPUT_SIGNED_PATH"), "assets/attestations.signed.json")
	signingKeys := firstNonEmpty(runSigningKeys, viper.GetString("SIGNING_KEYS_HEX"))

	keys, err := quorum.ParseSecretKeys(signingKeys)
	if err != nil {
		return fmt.Errorf("parse signing keys: %w", err)
	}

	ctx := context.Background()
	db, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer db.Close()

	if err := db.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}

	ledger := auditlog.NewPostgres(db, logger)
	atts, err := verifier.Run(ctx, ledger, outputPath, signedPath, keys, logger)
	if err != nil {
		return err
	}

	fmt.Printf("attestations emitted for %d registries → %s\n", len(atts), outputPath)
	if len(keys) > 0 {
		fmt.Printf("signed bundle written to %s with %d signatures\n", signedPath, len(keys))
	}
	return nil
}

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a fresh ed25519 keypair for signing attestations",
	RunE: func(cmd *cobra.Command, args []string) error {
		pub, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return fmt.Errorf("generate key: %w", err)
		}
		fmt.Printf("public:  %s\n", hex.EncodeToString(pub))
		fmt.Printf("secret:  %s\n", hex.EncodeToString(priv.Seed()))
		fmt.Println("\nAdd the public key to ATTESTATION_PUBKEYS_HEX on the engine and")
		fmt.Println("the secret to SIGNING_KEYS_HEX on the verifier. Keep the secret offline.")
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the forge-verify version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("forge-verify %s\n", version)
	},
}

// firstNonEmpty returns the first non-empty string.
func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
