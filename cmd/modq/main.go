package main

import (
	"bufio"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"modq-go/internal/app"
	"modq-go/internal/config"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and creates an App. The caller must defer a.Close().
// operation identifies the CLI command being run (e.g. "run", "scan").
func newApp(operation string) (*app.App, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	a, err := app.New(cfg, operation)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, nil
}

// unlockIfNeeded prompts for the session passphrase when a saved session
// exists, so the app can restore it on browser start.
func unlockIfNeeded(a *app.App) error {
	if !a.HasSession() {
		return nil
	}
	pass, err := readPassword("Session passphrase: ")
	if err != nil {
		return err
	}
	return a.Unlock(pass)
}

func readPassword(prompt string) (string, error) {
	fmt.Print(prompt)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return string(b), nil
}

func readLine(prompt string) (string, error) {
	fmt.Print(prompt)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("reading input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

var rootCmd = &cobra.Command{
	Use:   "modq",
	Short: "Group membership moderation bot",
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		groupURL, _ := cmd.Flags().GetString("group-url")

		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := config.NewConfig(groupURL, defaults["base_dir"])

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Group URL: %s\n", cfg.GroupURL)
		fmt.Printf("Base Dir:  %s\n", cfg.BaseDir)
		fmt.Println("Edit the file to add the Telegram token and chat id, then run: modq keys init")
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Group URL:     %s\n", cfg.GroupURL)
		fmt.Printf("Base Dir:      %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:       %s\n", cfg.LogDir)
		fmt.Printf("Poll interval: %dm (jitter %.0f%%)\n", cfg.PollIntervalMinutes, cfg.JitterFraction*100)
		fmt.Printf("Working hours: %02d:00-%02d:00\n", cfg.WorkingHoursStart, cfg.WorkingHoursEnd)
		fmt.Printf("Store:         %s\n", orDefault(cfg.Store.Type, "json"))
		fmt.Printf("Artifacts:     %s\n", orDefault(cfg.Artifacts.Type, "filesystem"))
		return nil
	},
}

// keys command
var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage session encryption keys",
}

var keysInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate the session key pair",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("keys-init")
		if err != nil {
			return err
		}
		defer a.Close()

		if a.Encryptor().IsConfigured() {
			return fmt.Errorf("session keys already exist")
		}

		pass, err := readPassword("New passphrase: ")
		if err != nil {
			return err
		}
		confirm, err := readPassword("Confirm passphrase: ")
		if err != nil {
			return err
		}
		if pass != confirm {
			return fmt.Errorf("passphrases do not match")
		}

		if err := a.Encryptor().Setup(pass); err != nil {
			return fmt.Errorf("generating keys: %w", err)
		}
		fmt.Println("Session keys generated. Next: modq login")
		return nil
	},
}

// login command
var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in and save an encrypted browser session",
	Long: "Opens a visible browser, performs the credential login, waits for any\n" +
		"manual challenge (2FA, checkpoint) to be answered, and saves the cookie\n" +
		"jar encrypted at rest.",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("login")
		if err != nil {
			return err
		}
		defer a.Close()

		email, err := readLine("Email: ")
		if err != nil {
			return err
		}
		password, err := readPassword("Password: ")
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := a.Login(ctx, email, password); err != nil {
			return fmt.Errorf("login failed: %w", err)
		}
		fmt.Println("Login complete, session saved.")
		return nil
	},
}

// run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the moderation daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("run")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := unlockIfNeeded(a); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return a.Run(ctx)
	},
}

// scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run a single scan pass and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("scan")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := unlockIfNeeded(a); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		res, err := a.Scan(ctx)
		if err != nil {
			return fmt.Errorf("scan failed: %w", err)
		}

		fmt.Printf("Cards: %d  Notified: %d  Clicked: %d\n",
			len(res.Outcomes), res.Notified, len(res.Clicked))
		for _, identity := range res.Clicked {
			fmt.Printf("Executed decision for %s\n", identity)
		}
		return nil
	},
}

// cache command
var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the decision cache",
}

var cacheListCmd = &cobra.Command{
	Use:   "list",
	Short: "List queued decisions",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("cache-list")
		if err != nil {
			return err
		}
		defer a.Close()

		total, err := a.Store().Count()
		if err != nil {
			return err
		}
		reqs, err := a.Store().ListPending()
		if err != nil {
			return err
		}

		fmt.Printf("%d record(s), %d with a queued decision\n", total, len(reqs))
		for _, r := range reqs {
			fmt.Printf("%-10s %s  (notified %s)\n",
				r.Decision, r.Name, r.NotifiedAt.Format("2006-01-02 15:04"))
		}
		return nil
	},
}

var cacheCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Drop stale cache records now",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("cache-cleanup")
		if err != nil {
			return err
		}
		defer a.Close()

		a.Cleanup(time.Now())
		fmt.Println("Cleanup complete.")
		return nil
	},
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)
	configInitCmd.Flags().String("group-url", "", "Member requests page URL")
	configInitCmd.MarkFlagRequired("group-url")

	keysCmd.AddCommand(keysInitCmd)

	cacheCmd.AddCommand(cacheListCmd)
	cacheCmd.AddCommand(cacheCleanupCmd)

	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(keysCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(cacheCmd)
}
