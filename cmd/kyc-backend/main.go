// Command kyc-backend serves the KYC intake API: transaction records,
// encrypted evidence uploads, remote signing, quoting, and receipts.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/agmanagement/kyc-intake/common"
	"github.com/agmanagement/kyc-intake/cryptoutils"
	"github.com/agmanagement/kyc-intake/httpserver"
	"github.com/agmanagement/kyc-intake/providers"
	"github.com/agmanagement/kyc-intake/storage"
	"github.com/agmanagement/kyc-intake/txstore"
	"github.com/urfave/cli/v2"
)

var flags []cli.Flag = []cli.Flag{
	&cli.StringFlag{
		Name:  "listen-addr",
		Value: "127.0.0.1:8080",
		Usage: "address to listen on for API",
	},
	&cli.StringFlag{
		Name:  "metrics-addr",
		Value: "127.0.0.1:8090",
		Usage: "address to listen on for Prometheus metrics",
	},
	&cli.StringFlag{
		Name:  "cors-origins",
		Value: "",
		Usage: "comma-separated allowed CORS origins (entries may carry one * wildcard); empty uses the deployment defaults",
	},
	&cli.StringFlag{
		Name:  "sqlite-path",
		Value: "kyc.db",
		Usage: "path to the SQLite transaction database",
	},

	// artifact key material, in priority order
	&cli.StringFlag{
		Name:    "secret-key-hex",
		Value:   "",
		Usage:   "64 hex chars of artifact encryption key material",
		EnvVars: []string{"KYC_SECRET_KEY"},
	},
	&cli.StringFlag{
		Name:    "secret-passphrase",
		Value:   "",
		Usage:   "passphrase to derive the artifact key from (Argon2id)",
		EnvVars: []string{"KYC_SECRET_PASSPHRASE"},
	},
	&cli.StringFlag{
		Name:    "vault-addr",
		Value:   "",
		Usage:   "Vault address to read the artifact key from (KV v2)",
		EnvVars: []string{"VAULT_ADDR"},
	},
	&cli.StringFlag{
		Name:    "vault-token",
		Value:   "",
		Usage:   "Vault token",
		EnvVars: []string{"VAULT_TOKEN"},
	},
	&cli.StringFlag{
		Name:  "vault-mount",
		Value: "secret",
		Usage: "Vault KV v2 mount",
	},
	&cli.StringFlag{
		Name:  "vault-path",
		Value: "kyc-intake/artifact-key",
		Usage: "Vault secret path holding the hex key",
	},
	&cli.BoolFlag{
		Name:  "ephemeral-key",
		Value: false,
		Usage: "allow a random process-lifetime key; stored artifacts become unrecoverable on restart",
	},

	// artifact storage backend
	&cli.StringFlag{
		Name:  "storage-driver",
		Value: storage.DriverLocal,
		Usage: "artifact storage backend: 'local' or 's3'",
	},
	&cli.StringFlag{
		Name:  "storage-dir",
		Value: "uploads",
		Usage: "base directory for the local artifact backend",
	},
	&cli.StringFlag{
		Name:  "s3-bucket",
		Value: "",
		Usage: "bucket for the s3 artifact backend",
	},
	&cli.StringFlag{
		Name:  "s3-prefix",
		Value: "",
		Usage: "key prefix for the s3 artifact backend",
	},
	&cli.StringFlag{
		Name:  "s3-region",
		Value: "us-east-1",
		Usage: "region for the s3 artifact backend",
	},
	&cli.StringFlag{
		Name:  "s3-endpoint",
		Value: "",
		Usage: "custom endpoint for S3-compatible object stores",
	},
	&cli.StringFlag{
		Name:    "s3-access-key",
		Value:   "",
		Usage:   "access key for the s3 artifact backend",
		EnvVars: []string{"S3_ACCESS_KEY"},
	},
	&cli.StringFlag{
		Name:    "s3-secret-key",
		Value:   "",
		Usage:   "secret key for the s3 artifact backend",
		EnvVars: []string{"S3_SECRET_KEY"},
	},

	// receipt channels
	&cli.StringFlag{
		Name:    "sendgrid-key",
		Value:   "",
		Usage:   "SendGrid API key for email receipts",
		EnvVars: []string{"SENDGRID_API_KEY"},
	},
	&cli.StringFlag{
		Name:    "email-from",
		Value:   "",
		Usage:   "sender address for email receipts",
		EnvVars: []string{"EMAIL_FROM"},
	},
	&cli.StringFlag{
		Name:    "twilio-sid",
		Value:   "",
		Usage:   "Twilio account SID",
		EnvVars: []string{"TWILIO_ACCOUNT_SID"},
	},
	&cli.StringFlag{
		Name:    "twilio-token",
		Value:   "",
		Usage:   "Twilio auth token",
		EnvVars: []string{"TWILIO_AUTH_TOKEN"},
	},
	&cli.StringFlag{
		Name:  "sms-from",
		Value: "",
		Usage: "Twilio sender number for SMS receipts",
	},
	&cli.StringFlag{
		Name:  "whatsapp-from",
		Value: "",
		Usage: "Twilio sender number for WhatsApp receipts",
	},

	&cli.BoolFlag{
		Name:  "log-json",
		Value: false,
		Usage: "log in JSON format",
	},
	&cli.BoolFlag{
		Name:  "log-debug",
		Value: false,
		Usage: "log debug messages",
	},
	&cli.BoolFlag{
		Name:  "pprof",
		Value: false,
		Usage: "enable pprof debug endpoint",
	},
	&cli.Int64Flag{
		Name:  "drain-seconds",
		Value: 45,
		Usage: "seconds to wait in drain HTTP request",
	},
}

func main() {
	app := &cli.App{
		Name:  "kyc-backend",
		Usage: "Serve the KYC intake API",
		Flags: flags,
		Action: func(cCtx *cli.Context) error {
			logger := common.SetupLogger(&common.LoggingOpts{
				Debug:   cCtx.Bool("log-debug"),
				JSON:    cCtx.Bool("log-json"),
				Service: common.PackageName,
				Version: common.Version,
			})

			ctx := context.Background()

			// Artifact encryption key
			key, err := cryptoutils.LoadKey(ctx, cryptoutils.KeyConfig{
				Hex:            cCtx.String("secret-key-hex"),
				Passphrase:     cCtx.String("secret-passphrase"),
				VaultAddr:      cCtx.String("vault-addr"),
				VaultToken:     cCtx.String("vault-token"),
				VaultMount:     cCtx.String("vault-mount"),
				VaultPath:      cCtx.String("vault-path"),
				AllowEphemeral: cCtx.Bool("ephemeral-key"),
			}, logger)
			if err != nil {
				logger.Error("Failed to load artifact key", "err", err)
				return err
			}
			cipher, err := cryptoutils.NewCipher(key)
			if err != nil {
				logger.Error("Failed to initialize cipher", "err", err)
				return err
			}

			// Artifact storage backend
			backend, err := storage.NewBackend(storage.Config{
				Driver:      cCtx.String("storage-driver"),
				LocalDir:    cCtx.String("storage-dir"),
				S3Bucket:    cCtx.String("s3-bucket"),
				S3Prefix:    cCtx.String("s3-prefix"),
				S3Region:    cCtx.String("s3-region"),
				S3Endpoint:  cCtx.String("s3-endpoint"),
				S3AccessKey: cCtx.String("s3-access-key"),
				S3SecretKey: cCtx.String("s3-secret-key"),
			}, logger)
			if err != nil {
				logger.Error("Failed to initialize artifact backend", "err", err)
				return err
			}
			artifacts := storage.NewEncryptedStore(cipher, backend, logger)

			// Transaction repository
			repo, err := txstore.Open(txstore.Config{
				Path:   cCtx.String("sqlite-path"),
				Logger: logger,
			})
			if err != nil {
				logger.Error("Failed to open transaction store", "err", err)
				return err
			}
			defer repo.Close()

			notifier := providers.NewNotifier(providers.NotifierConfig{
				SendGridKey:  cCtx.String("sendgrid-key"),
				EmailFrom:    cCtx.String("email-from"),
				TwilioSID:    cCtx.String("twilio-sid"),
				TwilioToken:  cCtx.String("twilio-token"),
				SMSFrom:      cCtx.String("sms-from"),
				WhatsAppFrom: cCtx.String("whatsapp-from"),
			}, logger)

			handler := httpserver.NewHandler(
				repo,
				artifacts,
				&providers.StubScreening{Log: logger},
				providers.NewCoinGecko(logger),
				notifier,
				logger,
			)

			server, err := httpserver.New(&httpserver.HTTPServerConfig{
				ListenAddr:               cCtx.String("listen-addr"),
				MetricsAddr:              cCtx.String("metrics-addr"),
				Log:                      logger,
				EnablePprof:              cCtx.Bool("pprof"),
				CORSOrigins:              splitOrigins(cCtx.String("cors-origins")),
				DrainDuration:            time.Duration(cCtx.Int64("drain-seconds")) * time.Second,
				GracefulShutdownDuration: 30 * time.Second,
				ReadTimeout:              60 * time.Second,
				WriteTimeout:             30 * time.Second,
			}, handler)
			if err != nil {
				logger.Error("Failed to create server", "err", err)
				return err
			}

			logger.Info("Starting server", "storageBackend", backend.Name())
			server.RunInBackground()

			exit := make(chan os.Signal, 1)
			signal.Notify(exit, os.Interrupt, syscall.SIGTERM)
			<-exit
			logger.Info("Shutdown signal received")

			server.Shutdown()
			logger.Info("Server shutdown complete")

			return nil
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func splitOrigins(s string) []string {
	var origins []string
	for _, o := range strings.Split(s, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}
