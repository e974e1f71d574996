package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/alanyoungcy/sniperbot/internal/crypto"
)

// encryptKeyCmd writes an encrypted wallet key file.
var encryptKeyCmd = &cobra.Command{
	Use:   "encrypt-key",
	Short: "Encrypt a wallet private key for wallet.encrypted_key_path",
	Long: `Encrypt a base58 wallet private key with a password (PBKDF2-SHA256 + AES-256-GCM)
and write it to a file readable by wallet.encrypted_key_path.

The key and password default to SNIPERBOT_WALLET_PRIVATE_KEY and
SNIPERBOT_WALLET_KEY_PASSWORD so they stay out of shell history.

Examples:
  sniperbot encrypt-key --out wallet.enc.json
  sniperbot encrypt-key --key <base58> --password <pw> --out wallet.enc.json`,
	RunE: runEncryptKey,
}

var (
	encryptKey      string
	encryptPassword string
	encryptOut      string
)

func init() {
	rootCmd.AddCommand(encryptKeyCmd)

	encryptKeyCmd.Flags().StringVar(&encryptKey, "key", "", "base58 private key (default $SNIPERBOT_WALLET_PRIVATE_KEY)")
	encryptKeyCmd.Flags().StringVar(&encryptPassword, "password", "", "encryption password (default $SNIPERBOT_WALLET_KEY_PASSWORD)")
	encryptKeyCmd.Flags().StringVar(&encryptOut, "out", "wallet.enc.json", "output file")
}

func runEncryptKey(cmd *cobra.Command, args []string) error {
	key := encryptKey
	if key == "" {
		key = os.Getenv("SNIPERBOT_WALLET_PRIVATE_KEY")
	}
	password := encryptPassword
	if password == "" {
		password = os.Getenv("SNIPERBOT_WALLET_KEY_PASSWORD")
	}
	if key == "" || password == "" {
		return errors.New("both a private key and a password are required")
	}

	data, err := crypto.EncryptKey(key, password)
	if err != nil {
		return err
	}
	if err := os.WriteFile(encryptOut, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", encryptOut, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "encrypted key written to %s\n", encryptOut)
	return nil
}
