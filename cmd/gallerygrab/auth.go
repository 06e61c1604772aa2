package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"gallerygrab/pkg/auth"
	"gallerygrab/pkg/ui"
)

// authCmd represents the auth command
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage gallery session credentials",
	Long: `Manage stored gallery session cookies securely.

Credentials are stored using:
  - System keychain (when available)
  - Environment variable (GALLERYGRAB_SESSION_COOKIE, read-only fallback)

Never share your session cookie or config files!`,
}

// loginCmd represents the auth login command
var loginCmd = &cobra.Command{
	Use:   "login [gallery]",
	Short: "Store a gallery session cookie securely",
	Long: `Store a gallery session cookie in the system keychain.

To get the cookie value:
1. Log into the gallery site in your browser
2. Open Developer Tools (F12)
3. Go to Application/Storage > Cookies
4. Copy the session cookie value`,
	Example: `  # Interactive login
  gallerygrab auth login

  # Login for a named gallery
  gallerygrab auth login dreambench`,
	Args: cobra.MaximumNArgs(1),
	Run:  runLogin,
}

// logoutCmd represents the auth logout command
var logoutCmd = &cobra.Command{
	Use:     "logout <gallery>",
	Short:   "Remove stored credentials",
	Example: `  gallerygrab auth logout dreambench`,
	Args:    cobra.ExactArgs(1),
	Run:     runLogout,
}

// statusCmd represents the auth status command
var statusCmd = &cobra.Command{
	Use:   "status <gallery>",
	Short: "Show whether credentials are stored for a gallery",
	Args:  cobra.ExactArgs(1),
	Run:   runStatus,
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(loginCmd)
	authCmd.AddCommand(logoutCmd)
	authCmd.AddCommand(statusCmd)
}

func runLogin(cmd *cobra.Command, args []string) {
	manager, err := auth.NewManager()
	if err != nil {
		ui.PrintError("Failed to initialize credential manager", err.Error())
		os.Exit(1)
	}

	var gallery string
	if len(args) > 0 {
		gallery = args[0]
	}

	reader := bufio.NewReader(os.Stdin)
	if gallery == "" {
		fmt.Print("Gallery name: ")
		line, err := reader.ReadString('\n')
		if err != nil {
			ui.PrintError("Failed to read gallery name", err.Error())
			os.Exit(1)
		}
		gallery = strings.TrimSpace(line)
	}
	if gallery == "" {
		ui.PrintError("Gallery name is required")
		os.Exit(1)
	}

	fmt.Print("Session cookie (input hidden): ")
	cookieBytes, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		ui.PrintError("Failed to read session cookie", err.Error())
		os.Exit(1)
	}
	cookie := strings.TrimSpace(string(cookieBytes))
	if cookie == "" {
		ui.PrintError("Session cookie is required")
		os.Exit(1)
	}

	account := &auth.Account{
		Gallery:       gallery,
		SessionCookie: cookie,
		LastModified:  time.Now(),
	}
	if err := manager.Store(account); err != nil {
		ui.PrintError("Failed to store credentials", err.Error())
		os.Exit(1)
	}

	ui.PrintSuccess("Credentials stored for " + gallery)
}

func runLogout(cmd *cobra.Command, args []string) {
	manager, err := auth.NewManager()
	if err != nil {
		ui.PrintError("Failed to initialize credential manager", err.Error())
		os.Exit(1)
	}

	gallery := args[0]
	if err := manager.Delete(gallery); err != nil {
		ui.PrintError("Failed to remove credentials", err.Error())
		os.Exit(1)
	}
	ui.PrintSuccess("Credentials removed for " + gallery)
}

func runStatus(cmd *cobra.Command, args []string) {
	manager, err := auth.NewManager()
	if err != nil {
		ui.PrintError("Failed to initialize credential manager", err.Error())
		os.Exit(1)
	}

	gallery := args[0]
	if !manager.Exists(gallery) {
		ui.PrintWarning("No stored credentials for " + gallery)
		return
	}

	account, err := manager.Retrieve(gallery)
	if err != nil {
		ui.PrintError("Failed to read credentials", err.Error())
		os.Exit(1)
	}

	ui.PrintInfo("Gallery", account.Gallery)
	ui.PrintInfo("Session cookie", maskSecret(account.SessionCookie))
	if !account.LastModified.IsZero() {
		ui.PrintInfo("Stored", account.LastModified.Format(time.RFC1123))
	}
}

// maskSecret keeps just enough of a secret to recognize it.
func maskSecret(s string) string {
	if len(s) <= 8 {
		return "********"
	}
	return s[:4] + "..." + s[len(s)-4:]
}
