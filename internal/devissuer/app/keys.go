package app

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/aussiebroadwan/dealerdesk/pkg/cryptox"
	"github.com/aussiebroadwan/dealerdesk/pkg/jwtx"
)

// initSigner loads the Ed25519 key from cfg.KeyFile, or generates an
// ephemeral one. Ephemeral keys invalidate every token on restart.
func initSigner(cfg Config, logger *slog.Logger) (*jwtx.EdDSASigner, error) {
	var (
		pemKey []byte
		err    error
	)

	if cfg.KeyFile != "" {
		pemKey, err = os.ReadFile(cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("read signing key: %w", err)
		}
		logger.Info("signing key loaded", "path", cfg.KeyFile, "kid", cfg.KeyID)
	} else {
		pemKey, err = cryptox.NewSigningKeyPEM()
		if err != nil {
			return nil, fmt.Errorf("generate signing key: %w", err)
		}
		logger.Info("ephemeral signing key generated", "kid", cfg.KeyID)
	}

	signer, err := jwtx.NewSignerEdDSA(cfg.KeyID, pemKey)
	if err != nil {
		return nil, err
	}
	if err := signer.Validate(); err != nil {
		return nil, err
	}
	return signer, nil
}

// loadPepper sets the password pepper from cfg.PepperFile when configured.
func loadPepper(cfg Config, logger *slog.Logger) error {
	if cfg.PepperFile == "" {
		logger.Warn("no pepper configured, password hashes are unpeppered")
		return nil
	}

	b, err := os.ReadFile(cfg.PepperFile)
	if err != nil {
		return fmt.Errorf("read pepper: %w", err)
	}
	cryptox.SetPepper(strings.TrimSpace(string(b)))
	return nil
}
