package main

import (
	"fmt"
	"os"

	"github.com/MrEthical07/shopauth/jwt"
	"github.com/spf13/cobra"
)

var genkeyOpts struct {
	bits   int
	out    string
	pubOut string
}

var genkeyCmd = &cobra.Command{
	Use:   "genkey",
	Short: "Generate an RS256 signing key",
	Long: `genkey writes a PKCS#8 PEM private key suitable for SHOPAUTH_JWT_PRIVATE_KEY_FILE.
Without --out the key is printed to stdout.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		key, err := jwt.GenerateKeyPEM(genkeyOpts.bits)
		if err != nil {
			return err
		}
		if genkeyOpts.out == "" {
			_, err = cmd.OutOrStdout().Write(key)
			return err
		}
		if err := os.WriteFile(genkeyOpts.out, key, 0o600); err != nil {
			return fmt.Errorf("write private key: %w", err)
		}
		if genkeyOpts.pubOut != "" {
			pub, err := jwt.PublicKeyPEM(key)
			if err != nil {
				return err
			}
			if err := os.WriteFile(genkeyOpts.pubOut, pub, 0o644); err != nil {
				return fmt.Errorf("write public key: %w", err)
			}
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "wrote %d-bit key to %s\n", genkeyOpts.bits, genkeyOpts.out)
		return nil
	},
}

func init() {
	genkeyCmd.Flags().IntVar(&genkeyOpts.bits, "bits", 2048, "RSA key size")
	genkeyCmd.Flags().StringVarP(&genkeyOpts.out, "out", "o", "", "private key path (mode 0600)")
	genkeyCmd.Flags().StringVar(&genkeyOpts.pubOut, "public-out", "", "also write the public key here; requires --out")
	rootCmd.AddCommand(genkeyCmd)
}
