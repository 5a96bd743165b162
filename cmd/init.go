package cmd

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/halvar/credkeeper/config"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const sampleConfig = `# credkeeper configuration

# state_dir = "state"
# backup_dir = "backups"
# screenshot_dir = "screenshots"
# history_db = "history.db"
# notify_file = "events.jsonl"
# retention_days = 30
# concurrency = 1

[services.northline]
enabled = false
strategy = "northline"
auth_url = "https://portal.northline.example.com/login"
expiration_days = 30
warning_days = 7
critical_days = 3
priority = 1
headless = true
`

// initCmd prepares credkeeper for first-time use: it scaffolds the config
// file and optionally stores credentials for an automated-login service in
// the .env file next to it.
func initCmd() *cobra.Command {
	var service, account string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize credkeeper for first-time use",
		Run: func(cmd *cobra.Command, args []string) {
			runInit(cmd, service, account)
		},
	}
	cmd.Flags().StringVarP(&service, "service", "s", "", "Also prompt for this service's credentials")
	cmd.Flags().StringVarP(&account, "account", "a", "", "Account the credentials belong to")
	return cmd
}

func runInit(cmd *cobra.Command, service, account string) {
	path := configPath(cmd)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		cmd.PrintErrln("Error: Failed to create the configuration directory.")
		return
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.WriteFile(path, []byte(sampleConfig), 0o600); err != nil {
			cmd.PrintErrln("Error: Failed to write the configuration file.")
			return
		}
		cmd.Printf("Wrote a starter configuration to %s. Edit it to add your services.\n", path)
	} else {
		cmd.Printf("Configuration already exists at %s, leaving it untouched.\n", path)
	}

	if service == "" {
		return
	}

	cmd.Printf("Please enter the credentials for %s.\n", targetLabel(service, account))
	username := promptForInput("Username: ")
	password := promptForPassword("Password: ")
	if username == "" || password == "" {
		cmd.PrintErrln("Error: Username and password cannot be empty.")
		return
	}

	if err := appendEnvCredentials(filepath.Join(dir, ".env"), service, account, username, password); err != nil {
		cmd.PrintErrln("Error: Failed to save the credentials.")
		return
	}
	cmd.Println("Credentials saved successfully.")
}

// appendEnvCredentials appends the CREDKEEPER_* entries for a target to the
// .env file, which is loaded into the environment whenever the config loads.
func appendEnvCredentials(envPath, service, account, username, password string) error {
	prefix := config.EnvPrefix(service, account)
	f, err := os.OpenFile(envPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = fmt.Fprintf(f, "%s_USERNAME=%s\n%s_PASSWORD=%s\n", prefix, username, prefix, password)
	return err
}

// promptForInput prompts the user for input and returns the trimmed string.
func promptForInput(prompt string) string {
	reader := bufio.NewReader(os.Stdin)
	fmt.Print(prompt)
	input, err := reader.ReadString('\n')
	if err != nil {
		fmt.Println("Error: Failed to read input.")
		os.Exit(1)
	}
	return strings.TrimSpace(input)
}

// promptForPassword prompts the user for a password securely and returns the
// trimmed string.
func promptForPassword(prompt string) string {
	fmt.Print(prompt)
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	if err != nil {
		fmt.Println("Error: Failed to read password.")
		os.Exit(1)
	}
	fmt.Println()
	return strings.TrimSpace(string(password))
}
