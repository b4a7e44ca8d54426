package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"
	"mediakeeper/pkg/auth"
	"mediakeeper/pkg/config"
	"mediakeeper/pkg/ui"
)

// authCmd represents the auth command
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage site sessions used by link search",
	Long: `Manage the logged-in sessions that link search uses to save works
from pixiv, nijie and skeb.

Sessions are stored using:
  - System keychain (when available)
  - Encrypted file with PBKDF2 key derivation
  - Environment variables (MEDIAKEEPER_<SITE>_COOKIE / _TOKEN)

Never share your sessions or config files!`,
}

// loginCmd represents the auth login command
var loginCmd = &cobra.Command{
	Use:   "login <site>",
	Short: "Store a site session securely",
	Long: `Store a session for one site. You will be prompted for the cookie
header, a bearer token where the site uses one, and an optional user agent.`,
	Example: `  mediakeeper auth login pixiv
  mediakeeper auth login skeb`,
	Args: cobra.ExactArgs(1),
	RunE: runLogin,
}

// logoutCmd represents the auth logout command
var logoutCmd = &cobra.Command{
	Use:   "logout <site>",
	Short: "Remove a stored site session",
	Args:  cobra.ExactArgs(1),
	RunE:  runLogout,
}

// listCmd represents the auth list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored site sessions",
	Long:  `List stored sessions with their secrets masked.`,
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(loginCmd)
	authCmd.AddCommand(logoutCmd)
	authCmd.AddCommand(listCmd)
}

// sessionManager opens the session stores selected by the configuration
func sessionManager() (*auth.Manager, error) {
	cfg, err := config.LoadUnvalidated(configFile, nil)
	if err != nil {
		return nil, err
	}
	manager, err := auth.NewManager(cfg.LinkSearch.SessionSource)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize session manager: %w", err)
	}
	return manager, nil
}

func runLogin(cmd *cobra.Command, args []string) error {
	site := strings.ToLower(args[0])
	if !auth.IsKnownSite(site) {
		return fmt.Errorf("unknown site %q (known: %s)", site, strings.Join(auth.KnownSites, ", "))
	}
	manager, err := sessionManager()
	if err != nil {
		return err
	}

	reader := bufio.NewReader(os.Stdin)
	auth.ShowSessionGuide(site)

	if existing, _ := manager.Session(site); existing != nil {
		fmt.Printf("\nA %s session already exists. Replace it? (y/N): ", site)
		input, _ := reader.ReadString('\n')
		if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(input)), "y") {
			return nil
		}
	}

	fmt.Println("\nValues are hidden as you type. Press Enter to skip a field.")

	fmt.Print("\nCookie header: ")
	cookie, err := readPassword(reader)
	if err != nil {
		return fmt.Errorf("failed to read cookie: %w", err)
	}

	fmt.Print("Bearer token: ")
	token, err := readPassword(reader)
	if err != nil {
		return fmt.Errorf("failed to read token: %w", err)
	}

	fmt.Print("User Agent (press Enter to use default): ")
	userAgent, _ := reader.ReadString('\n')

	session := &auth.Session{
		Site:      site,
		Cookie:    cookie,
		Token:     token,
		UserAgent: strings.TrimSpace(userAgent),
	}
	if err := manager.Store(session); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}

	ui.PrintSuccess(fmt.Sprintf("Session saved: %s", site))
	printSession(auth.Masked(session))
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	site := strings.ToLower(args[0])
	manager, err := sessionManager()
	if err != nil {
		return err
	}
	if err := manager.Delete(site); err != nil {
		return err
	}
	ui.PrintSuccess(fmt.Sprintf("Session removed: %s", site))
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	manager, err := sessionManager()
	if err != nil {
		return err
	}
	sessions, err := manager.List()
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}
	if len(sessions) == 0 {
		ui.PrintInfo("No stored sessions", "Use 'mediakeeper auth login <site>' to add one")
		for _, site := range auth.KnownSites {
			auth.ShowQuickGuide(site)
		}
		return nil
	}

	ui.PrintHighlight("Stored Sessions")
	fmt.Println()
	for _, s := range sessions {
		printSession(auth.Masked(s))
	}
	return nil
}

func printSession(s *auth.Session) {
	fmt.Printf("%s\n", ui.Cyan(s.Site))
	if s.Cookie != "" {
		fmt.Printf("   Cookie: %s\n", s.Cookie)
	}
	if s.Token != "" {
		fmt.Printf("   Token: %s\n", s.Token)
	}
	if s.UserAgent != "" {
		fmt.Printf("   User Agent: %s\n", s.UserAgent)
	}
	if !s.LastModified.IsZero() {
		fmt.Printf("   Last Modified: %s\n", s.LastModified.Format("2006-01-02 15:04:05"))
	}
	fmt.Println()
}

func readPassword(reader *bufio.Reader) (string, error) {
	if term.IsTerminal(int(syscall.Stdin)) {
		password, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err == nil {
			return strings.TrimSpace(string(password)), nil
		}
	}

	input, err := reader.ReadString('\n')
	if err != nil && input == "" {
		return "", err
	}
	return strings.TrimSpace(input), nil
}
