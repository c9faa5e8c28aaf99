package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/schoolms/portal-client/internal/client"
	"github.com/schoolms/portal-client/internal/core/domain"
	"github.com/schoolms/portal-client/internal/core/ports"
)

var (
	loginEmail    string
	loginPassword string
	rememberMe    bool
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in and persist the session",
	Long: `Sign in with email and password. The password is read from stdin
when --password is not given.

Examples:
  schoolctl login --email teacher@school.com
  echo "$PASSWORD" | schoolctl login --email teacher@school.com`,
	RunE: func(cmd *cobra.Command, args []string) error {
		password := loginPassword
		if password == "" {
			p, err := readPassword(cmd.InOrStdin(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			password = p
		}
		return withClient(cmd, func(ctx context.Context, c *client.Client) error {
			s, err := c.Session.Login(ctx, ports.Credentials{
				Email:      loginEmail,
				Password:   password,
				RememberMe: rememberMe,
			})
			if errors.Is(err, domain.ErrTwoFactorRequired) {
				return fmt.Errorf("%w: complete the second factor in the web portal", err)
			}
			if err != nil {
				return err
			}
			if s.User == nil {
				fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s\n", loginEmail)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s (%s)\n", s.User.DisplayName(), strings.Join(s.User.RoleNames(), ", "))
			return nil
		})
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and clear the stored session",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c *client.Client) error {
			if !c.Session.IsAuthenticated() {
				fmt.Fprintln(cmd.OutOrStdout(), "Not signed in.")
				return nil
			}
			c.Session.Logout(ctx)
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out.")
			return nil
		})
	},
}

var (
	whoamiRemote bool
	whoamiJSON   bool
)

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in user",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c *client.Client) error {
			if !c.Session.IsAuthenticated() {
				return domain.ErrNotAuthenticated
			}
			u := c.Session.CurrentUser()
			if whoamiRemote {
				fresh, err := c.Dashboard.Me(ctx)
				if err != nil {
					return err
				}
				u = fresh
			}
			if whoamiJSON {
				return printJSON(cmd.OutOrStdout(), u)
			}

			out := cmd.OutOrStdout()
			if u == nil {
				fmt.Fprintln(out, "Signed in, but no profile is cached; use --remote to fetch it.")
				printExpiry(out, c)
				return nil
			}
			fmt.Fprintf(out, "%s <%s>\n", u.DisplayName(), u.Email)
			for _, r := range u.Roles {
				codes := make([]string, 0, len(r.Permissions))
				for _, p := range r.Permissions {
					codes = append(codes, p.Code)
				}
				fmt.Fprintf(out, "  %-14s %s\n", r.Name, strings.Join(codes, ", "))
			}
			printExpiry(out, c)
			return nil
		})
	},
}

func init() {
	loginCmd.Flags().StringVar(&loginEmail, "email", "", "account email")
	loginCmd.Flags().StringVar(&loginPassword, "password", "", "account password (read from stdin when empty)")
	loginCmd.Flags().BoolVar(&rememberMe, "remember", false, "ask the API for a long-lived session")
	_ = loginCmd.MarkFlagRequired("email")

	whoamiCmd.Flags().BoolVar(&whoamiRemote, "remote", false, "fetch the profile from the API instead of the stored snapshot")
	whoamiCmd.Flags().BoolVar(&whoamiJSON, "json", false, "print the profile as JSON")

	rootCmd.AddCommand(loginCmd, logoutCmd, whoamiCmd)
}

func printExpiry(out io.Writer, c *client.Client) {
	if exp, ok := c.Session.Session().AccessExpiry(); ok {
		fmt.Fprintf(out, "Access token expires %s (in %s)\n", exp.Format(time.RFC3339), time.Until(exp).Round(time.Second))
	}
}

// readPassword reads without echo from a terminal and one line otherwise.
func readPassword(in io.Reader, prompt io.Writer) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(prompt, "Password: ")
		raw, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(prompt)
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(raw), nil
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
