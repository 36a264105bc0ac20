package main

import (
	"bufio"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kalambet/feedbackdesk/internal/app"
	"github.com/kalambet/feedbackdesk/internal/auth"
	"github.com/kalambet/feedbackdesk/internal/config"
	"github.com/kalambet/feedbackdesk/internal/feedback"
	"github.com/kalambet/feedbackdesk/internal/form"
)

// --- session ---

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in as the feedback admin",
	Long: `Log in as the feedback admin. The credentials are checked against the API
before they are stored.

Examples:
  feedbackdesk login --username admin
  echo "$ADMIN_PASSWORD" | feedbackdesk login --username admin`,
	RunE: func(cmd *cobra.Command, args []string) error {
		username, _ := cmd.Flags().GetString("username")
		password, _ := cmd.Flags().GetString("password")

		if password == "" {
			fmt.Fprint(stderr, "Password: ")
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("reading password: %w", err)
			}
			password = strings.TrimRight(line, "\r\n")
		}

		d, err := loadDesk(cmd)
		if err != nil {
			return err
		}

		if err := d.auth.Login(cmd.Context(), username, password); err != nil {
			if msg := d.auth.LoginError(); msg != "" {
				printError("%s", msg)
				return errReported
			}
			return err
		}

		printSuccess("Logged in as %s", username)
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored admin session",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := loadDesk(cmd)
		if err != nil {
			return err
		}
		if err := d.auth.Restore(); err != nil {
			return err
		}
		if err := d.auth.Logout(cmd.Context()); err != nil {
			return err
		}
		printSuccess("Logged out")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show API and session status",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := loadDesk(cmd)
		if err != nil {
			return err
		}

		printStatus("API", "%s", d.client.BaseURL())
		if err := d.app.Init(cmd.Context()); err != nil {
			printStatus("Session", "unreadable (%v)", err)
			return nil
		}

		if d.auth.IsAdmin() {
			printStatus("Session", "admin (%s)", d.auth.Username())
			printStatus("Trust", "%s", d.auth.Trust())
			printStatus("Feedback", "%d entries", len(d.app.Feedback()))
		} else {
			printStatus("Session", "visitor")
			if d.auth.Trust() == auth.TrustRejected {
				printWarning("The stored admin session was rejected; log in again.")
			}
		}

		avg, ok := d.app.Average()
		if ok {
			printStatus("Average", "%.1f", avg)
		} else {
			printStatus("Average", "unavailable")
		}
		return nil
	},
}

func init() {
	loginCmd.Flags().String("username", "admin", "admin username")
	loginCmd.Flags().String("password", "", "admin password (read from stdin when omitted)")
}

// --- feedback ---

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit new feedback",
	Long: `Submit new feedback.

Examples:
  feedbackdesk submit --rating 5 --comments "Quick and friendly support"
  feedbackdesk submit --name Ann --email ann@example.com --rating 3 --comments "Okay, but slow"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := loadDesk(cmd)
		if err != nil {
			return err
		}

		var f form.Fields
		f.Name, _ = cmd.Flags().GetString("name")
		f.Email, _ = cmd.Flags().GetString("email")
		f.Rating, _ = cmd.Flags().GetInt("rating")
		f.Comments, _ = cmd.Flags().GetString("comments")
		d.form.Fill(f)

		rec, err := submitForm(cmd, d)
		if err != nil {
			return err
		}
		printStatus("ID", "%d", rec.ID)
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List feedback and the average rating",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := loadDesk(cmd)
		if err != nil {
			return err
		}
		if err := d.app.Init(cmd.Context()); err != nil {
			return err
		}
		if !d.app.IsAdmin() {
			printWarning("Individual feedback is only visible to admins. Run `feedbackdesk login`.")
		}

		r := d.renderer(cmd)
		avg, ok := d.app.Average()
		r.Aggregate(avg, ok)
		fmt.Fprintln(cmd.OutOrStdout())
		r.List(d.app.Feedback(), d.app.IsAdmin())
		return nil
	},
}

var averageCmd = &cobra.Command{
	Use:   "average",
	Short: "Show the average rating",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := loadDesk(cmd)
		if err != nil {
			return err
		}
		if err := d.app.Init(cmd.Context()); err != nil {
			return err
		}
		avg, ok := d.app.Average()
		d.renderer(cmd).Aggregate(avg, ok)
		return nil
	},
}

var editCmd = &cobra.Command{
	Use:   "edit <id>",
	Short: "Edit existing feedback (admin)",
	Long: `Edit existing feedback. Fields not given as flags keep their current value.

Examples:
  feedbackdesk edit 3 --rating 4
  feedbackdesk edit 3 --comments "Updated after follow-up call"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		d, err := loadDesk(cmd)
		if err != nil {
			return err
		}
		if err := d.app.Init(cmd.Context()); err != nil {
			return err
		}

		if _, err := d.app.RequestEdit(cmd.Context(), id); err != nil {
			return errReported
		}

		f := d.form.Fields()
		flags := cmd.Flags()
		if flags.Changed("name") {
			f.Name, _ = flags.GetString("name")
		}
		if flags.Changed("email") {
			f.Email, _ = flags.GetString("email")
		}
		if flags.Changed("rating") {
			f.Rating, _ = flags.GetInt("rating")
		}
		if flags.Changed("comments") {
			f.Comments, _ = flags.GetString("comments")
		}
		d.form.Fill(f)

		_, err = submitForm(cmd, d)
		return err
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete feedback (admin)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		d, err := loadDesk(cmd)
		if err != nil {
			return err
		}
		if err := d.app.Init(cmd.Context()); err != nil {
			return err
		}

		err = d.app.RequestDelete(cmd.Context(), id)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, app.ErrDeclined):
			printWarning("Delete cancelled")
			return nil
		default:
			return errReported
		}
	},
}

func init() {
	for _, c := range []*cobra.Command{submitCmd, editCmd} {
		c.Flags().String("name", "", "customer name")
		c.Flags().String("email", "", "customer email")
		c.Flags().Int("rating", 0, "rating from 1 to 5")
		c.Flags().String("comments", "", "comments (10 to 1000 characters)")
	}
	deleteCmd.Flags().BoolP("yes", "y", false, "delete without asking")
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid feedback id %q", s)
	}
	return id, nil
}

// submitForm runs the form and reports its messages.
func submitForm(cmd *cobra.Command, d *desk) (feedback.Record, error) {
	rec, err := d.form.Submit(cmd.Context())
	if errors.Is(err, form.ErrInvalid) {
		printError("%s", d.form.Error())
		errs := d.form.FieldErrors()
		fields := make([]string, 0, len(errs))
		for k := range errs {
			fields = append(fields, k)
		}
		sort.Strings(fields)
		for _, k := range fields {
			printStatus(k, "%s", errs[k])
		}
		return feedback.Record{}, errReported
	}
	if err != nil {
		if msg := d.form.Error(); msg != "" {
			printError("%s", msg)
			return feedback.Record{}, errReported
		}
		return feedback.Record{}, err
	}
	printSuccess("%s", d.form.Success())
	return rec, nil
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s = %s  %s\n", colorize(colorBold, k.Key), k.Value, colorize(colorCyan, "$"+k.EnvVar))
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

var configSetSecretCmd = &cobra.Command{
	Use:   "set-secret <key>",
	Short: "Store a secret value (read from stdin) in the platform secret store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprintf(stderr, "%s: ", args[0])
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("reading secret: %w", err)
		}
		value := strings.TrimRight(line, "\r\n")
		if value == "" {
			return fmt.Errorf("empty value for %s", args[0])
		}

		if err := config.SetSecret(args[0], value); err != nil {
			return err
		}

		printSuccess("Stored %s", args[0])
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configSetSecretCmd)
}
