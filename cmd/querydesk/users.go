package main

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/mdp/qrterminal/v3"
	"github.com/pquerna/otp/totp"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"pkt.systems/pslog"
	"pkt.systems/querydesk/internal/appconfig"
	"pkt.systems/querydesk/internal/auth"
	"pkt.systems/querydesk/schema"
)

const (
	defaultPasswordLength = 20
	totpIssuer            = "querydesk"
)

func newUsersCmd() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Inspect users and prepare credentials",
	}
	cmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to config file")

	cmd.AddCommand(newUsersListCmd(&cfgPath))
	cmd.AddCommand(newUsersHashPasswordCmd())
	cmd.AddCommand(newUsersTOTPCmd())

	return cmd
}

func newUsersListCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured users",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := appconfig.Load(*cfgPath)
			if err != nil {
				return err
			}
			dir, err := auth.NewDirectoryWithLogger(cfg.UserRecords(), pslog.Ctx(cmd.Context()))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, user := range dir.List() {
				login := "no-login"
				if user.PasswordHash != "" {
					login = "password"
					if user.TOTPSecret != "" {
						login = "password+totp"
					}
				}
				_, _ = fmt.Fprintf(out, "%s\t%s\t%s\t%s\n", user.Username, user.Role, user.Email, login)
			}
			return nil
		},
	}
}

func newUsersHashPasswordCmd() *cobra.Command {
	var passwordFromStdin bool
	var autoPassword bool
	var cost int
	cmd := &cobra.Command{
		Use:   "hash-password",
		Short: "Print a bcrypt hash for users[].password_hash",
		RunE: func(cmd *cobra.Command, args []string) error {
			password, generated, err := resolvePassword(cmd, passwordFromStdin, autoPassword)
			if err != nil {
				return err
			}
			hash, err := auth.HashPassword(password, cost)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if generated {
				_, _ = fmt.Fprintf(out, "password: %s\n", password)
			}
			_, _ = fmt.Fprintf(out, "password_hash: %s\n", hash)
			return nil
		},
	}
	cmd.Flags().BoolVar(&passwordFromStdin, "password-from-stdin", false, "read password from stdin")
	cmd.Flags().BoolVar(&autoPassword, "auto-password", false, "generate a random password")
	cmd.Flags().IntVar(&cost, "cost", bcrypt.DefaultCost, "bcrypt cost")
	return cmd
}

func newUsersTOTPCmd() *cobra.Command {
	var noQR bool
	cmd := &cobra.Command{
		Use:   "totp <username>",
		Short: "Generate a TOTP secret for users[].totp_secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			username := args[0]
			if err := validateUsername(username); err != nil {
				return err
			}
			secret, url, err := generateTOTP(username)
			if err != nil {
				return err
			}
			printEnrollment(cmd.OutOrStdout(), username, secret, url, !noQR)
			return nil
		},
	}
	cmd.Flags().BoolVar(&noQR, "no-qr", false, "skip the terminal QR code")
	return cmd
}

func resolvePassword(cmd *cobra.Command, fromStdin, auto bool) (string, bool, error) {
	if fromStdin && auto {
		return "", false, errors.New("choose one of --password-from-stdin or --auto-password")
	}
	if auto {
		pass, err := generatePassword(defaultPasswordLength)
		if err != nil {
			return "", false, err
		}
		return pass, true, nil
	}
	if !fromStdin {
		_, _ = fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
	}
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", false, err
	}
	pass := strings.TrimSpace(string(data))
	if pass == "" {
		return "", false, errors.New("password is empty")
	}
	return pass, false, nil
}

func generatePassword(length int) (string, error) {
	if length <= 0 {
		length = defaultPasswordLength
	}
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	for i, b := range bytes {
		bytes[i] = charset[int(b)%len(charset)]
	}
	return string(bytes), nil
}

func generateTOTP(username string) (string, string, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      totpIssuer,
		AccountName: username,
	})
	if err != nil {
		return "", "", err
	}
	return key.Secret(), key.URL(), nil
}

func printEnrollment(w io.Writer, username, secret, url string, qr bool) {
	_, _ = fmt.Fprintf(w, "username: %s\n", username)
	_, _ = fmt.Fprintf(w, "totp_secret: %s\n", secret)
	_, _ = fmt.Fprintf(w, "otpauth_url: %s\n", url)
	if qr {
		_, _ = fmt.Fprintln(w, "totp_qr:")
		qrterminal.GenerateHalfBlock(url, qrterminal.L, w)
	}
}

func validateUsername(username string) error {
	if err := schema.ValidateUserID(schema.UserID(username)); err != nil {
		return errors.New("invalid username: must match [a-z0-9._-]")
	}
	return nil
}
