package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/MrEthical07/shopauth/password"
	"github.com/spf13/cobra"
)

var errWeakPassword = errors.New("password rejected by policy")

var checkPasswordCmd = &cobra.Command{
	Use:   "check-password",
	Short: "Check a password from stdin against the configured policy",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		pw, err := readPassword(cmd.InOrStdin())
		if err != nil {
			return err
		}

		policy := password.NewPolicy(cfg.Password.MinLength, cfg.Password.Blacklist...)
		violations := policy.Validate(pw)
		if len(violations) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		}
		for _, v := range violations {
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", v.Rule, v.Message)
		}
		return errWeakPassword
	},
}

var hashPasswordCmd = &cobra.Command{
	Use:   "hash-password",
	Short: "Hash a password from stdin with the configured argon2id parameters",
	Long: `hash-password prints the PHC-encoded argon2id hash of the first line of
stdin. Useful for seeding accounts directly in the credential store.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		pw, err := readPassword(cmd.InOrStdin())
		if err != nil {
			return err
		}

		hasher, err := password.NewArgon2(password.Config{
			Memory:      cfg.Password.Memory,
			Time:        cfg.Password.Time,
			Parallelism: cfg.Password.Parallelism,
			SaltLength:  cfg.Password.SaltLength,
			KeyLength:   cfg.Password.KeyLength,
		})
		if err != nil {
			return err
		}
		encoded, err := hasher.Hash(pw)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), encoded)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkPasswordCmd, hashPasswordCmd)
}

// readPassword returns the first line of r without its line ending.
func readPassword(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errors.New("no password on stdin")
	}
	return line, nil
}
