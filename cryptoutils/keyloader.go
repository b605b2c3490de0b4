package cryptoutils

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"

	"github.com/agmanagement/kyc-intake/interfaces"
	vaultapi "github.com/hashicorp/vault/api"
	"golang.org/x/crypto/argon2"
)

// passphraseSalt is the fixed Argon2id salt context for passphrase-derived
// keys. Changing it changes every derived key, so it is versioned.
const passphraseSalt = "kyc-intake-artifact-key-v1"

// KeyConfig selects where the process-wide cipher key comes from. Exactly
// one of Hex, Passphrase, or the Vault fields should be populated; if none
// is, AllowEphemeral decides between a loud volatile-key fallback and a
// startup refusal.
type KeyConfig struct {
	// Hex is 64 hex characters of literal key material.
	Hex string

	// Passphrase derives the key with Argon2id when no literal key is
	// provided.
	Passphrase string

	// Vault KV v2 source for the key material (stored hex-encoded).
	VaultAddr  string
	VaultToken string
	VaultMount string
	VaultPath  string
	VaultField string

	// AllowEphemeral opts into a random process-lifetime key. Everything
	// encrypted under it is unrecoverable after restart, so it is never
	// the silent default.
	AllowEphemeral bool
}

// LoadKey resolves 32 bytes of key material from cfg. Without any configured
// source and without the ephemeral opt-in it fails with ErrConfiguration so
// the process refuses to start rather than encrypting durable data under a
// key that disappears.
func LoadKey(ctx context.Context, cfg KeyConfig, log *slog.Logger) ([]byte, error) {
	switch {
	case cfg.Hex != "":
		key, err := hex.DecodeString(cfg.Hex)
		if err != nil {
			return nil, fmt.Errorf("%w: secret key is not valid hex: %v", interfaces.ErrConfiguration, err)
		}
		if len(key) != KeySize {
			return nil, fmt.Errorf("%w: secret key must be %d hex chars, got %d", interfaces.ErrConfiguration, KeySize*2, len(cfg.Hex))
		}
		return key, nil

	case cfg.Passphrase != "":
		log.Info("Deriving artifact key from passphrase")
		// Argon2id, same parameters as the disk-key derivation we use
		// elsewhere: time=1, memory=64MiB, threads=4.
		return argon2.IDKey([]byte(cfg.Passphrase), []byte(passphraseSalt), 1, 64*1024, 4, KeySize), nil

	case cfg.VaultAddr != "":
		return loadVaultKey(ctx, cfg, log)

	case cfg.AllowEphemeral:
		log.Warn("No secret key configured - using a VOLATILE key; every stored artifact becomes unrecoverable when this process exits")
		key := make([]byte, KeySize)
		if _, err := io.ReadFull(rand.Reader, key); err != nil {
			return nil, fmt.Errorf("failed to generate ephemeral key: %w", err)
		}
		return key, nil

	default:
		return nil, fmt.Errorf("%w: no secret key configured and ephemeral mode not enabled", interfaces.ErrConfiguration)
	}
}

func loadVaultKey(ctx context.Context, cfg KeyConfig, log *slog.Logger) ([]byte, error) {
	if cfg.VaultToken == "" || cfg.VaultMount == "" || cfg.VaultPath == "" {
		return nil, fmt.Errorf("%w: vault key source requires token, mount, and path", interfaces.ErrConfiguration)
	}

	field := cfg.VaultField
	if field == "" {
		field = "key"
	}

	vaultConfig := vaultapi.DefaultConfig()
	vaultConfig.Address = cfg.VaultAddr
	client, err := vaultapi.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	client.SetToken(cfg.VaultToken)

	secret, err := client.KVv2(cfg.VaultMount).Get(ctx, cfg.VaultPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read key from vault: %w", err)
	}

	raw, ok := secret.Data[field].(string)
	if !ok {
		return nil, fmt.Errorf("%w: vault secret %s/%s has no string field %q", interfaces.ErrConfiguration, cfg.VaultMount, cfg.VaultPath, field)
	}

	key, err := hex.DecodeString(raw)
	if err != nil || len(key) != KeySize {
		return nil, fmt.Errorf("%w: vault key material must be %d hex chars", interfaces.ErrConfiguration, KeySize*2)
	}

	log.Info("Loaded artifact key from vault", "mount", cfg.VaultMount, "path", cfg.VaultPath)
	return key, nil
}
