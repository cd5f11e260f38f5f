package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"lex_dossier_app_go/config"
	"lex_dossier_app_go/db"
	"lex_dossier_app_go/logger"
	"lex_dossier_app_go/models"
	"lex_dossier_app_go/services"
	"lex_dossier_app_go/services/jobs"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// app holds what every subcommand needs once the database is open.
type app struct {
	cfg *config.Config
}

func newRootCommand() *cobra.Command {
	a := &app{}
	cmd := &cobra.Command{
		Use:           "lexctl",
		Short:         "Administration tasks for the dossier API",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger.Configure(cfg.Environment)
			if err := db.Initialize(cfg); err != nil {
				return fmt.Errorf("failed to initialize database: %w", err)
			}
			if err := db.AutoMigrate(models.All()...); err != nil {
				return fmt.Errorf("failed to run migrations: %w", err)
			}
			a.cfg = cfg
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return db.Close()
		},
	}

	cmd.AddCommand(a.newCreateUserCommand())
	cmd.AddCommand(a.newBackfillNumerosCommand())
	cmd.AddCommand(a.newExportLogsCommand())
	cmd.AddCommand(a.newOutboxCommand())
	cmd.AddCommand(a.newRemindersCommand())
	return cmd
}

func (a *app) newCreateUserCommand() *cobra.Command {
	var in services.CreateUserInput

	cmd := &cobra.Command{
		Use:   "create-user",
		Short: "Create an account, prompting for anything not given as a flag",
		RunE: func(cmd *cobra.Command, args []string) error {
			reader := bufio.NewReader(cmd.InOrStdin())
			out := cmd.OutOrStdout()
			for _, field := range []struct {
				label string
				dst   *string
			}{
				{"Name", &in.Name},
				{"Surname", &in.Surname},
				{"Email", &in.Email},
			} {
				if *field.dst != "" {
					continue
				}
				value, err := prompt(reader, out, field.label)
				if err != nil {
					return err
				}
				*field.dst = value
			}

			password, err := readPassword(out)
			if err != nil {
				return err
			}
			in.Password = password

			user, err := services.CreateUser(db.DB, in)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Created %s %s <%s> with role %s (id %s)\n", user.Name, user.Surname, user.Email, user.Role, user.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&in.Name, "name", "", "First name")
	cmd.Flags().StringVar(&in.Surname, "surname", "", "Last name")
	cmd.Flags().StringVar(&in.Email, "email", "", "Login email")
	cmd.Flags().StringVar(&in.Role, "role", models.RoleSuperadmin, "Role of the new account")
	return cmd
}

func prompt(r *bufio.Reader, out io.Writer, label string) (string, error) {
	fmt.Fprintf(out, "%s: ", label)
	line, err := r.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// readPassword reads without echo on a terminal; LEXCTL_PASSWORD is used
// when stdin is not one.
func readPassword(out io.Writer) (string, error) {
	if !term.IsTerminal(int(syscall.Stdin)) {
		if p := os.Getenv("LEXCTL_PASSWORD"); p != "" {
			return p, nil
		}
		return "", fmt.Errorf("stdin is not a terminal; set LEXCTL_PASSWORD")
	}
	fmt.Fprint(out, "Password: ")
	raw, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(out)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(raw), nil
}

func (a *app) newBackfillNumerosCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "backfill-numeros",
		Short: "Assign a numero to every dossier that has none",
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := services.BackfillNumeros(db.DB)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Assigned %d numeros\n", n)
			return nil
		},
	}
}

func (a *app) newExportLogsCommand() *cobra.Command {
	var (
		date   string
		output string
	)

	cmd := &cobra.Command{
		Use:   "export-logs",
		Short: "Render the activity log of one day to PDF",
		RunE: func(cmd *cobra.Command, args []string) error {
			day, err := services.ParseDate("date", date)
			if err != nil {
				return err
			}
			if output == "" {
				output = "dlog-" + date + ".pdf"
			}
			ctx, cancel := context.WithTimeout(commandContext(cmd), 2*time.Minute)
			defer cancel()

			pdf, err := services.GenerateDailyLogPDF(ctx, db.DB, services.NewChromePDFRenderer(a.cfg.ChromePath), day)
			if err != nil {
				return err
			}
			if err := os.WriteFile(output, pdf, 0o644); err != nil {
				return fmt.Errorf("failed to write %s: %w", output, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%d bytes)\n", output, len(pdf))
			return nil
		},
	}

	cmd.Flags().StringVar(&date, "date", time.Now().Format(services.DateLayout), "Day to export (YYYY-MM-DD)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Destination file (default dlog-DATE.pdf)")
	return cmd
}

func (a *app) newOutboxCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "outbox",
		Short: "Notification outbox operations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	var withEmail bool
	drain := &cobra.Command{
		Use:   "drain",
		Short: "Deliver every due outbox entry once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := services.DefaultOutboxOptions()
			if withEmail {
				opts.Mailer = services.NewResendMailer(a.cfg)
			}
			n, err := services.NewOutboxDispatcher(db.DB, opts).DrainOnce(commandContext(cmd))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Delivered %d notifications\n", n)
			return nil
		},
	}
	drain.Flags().BoolVar(&withEmail, "email", false, "Also send notification emails")

	retry := &cobra.Command{
		Use:   "retry",
		Short: "Requeue failed outbox entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := services.RetryFailedOutbox(db.DB)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Requeued %d entries\n", n)
			return nil
		},
	}

	stats := &cobra.Command{
		Use:   "stats",
		Short: "Count outbox entries per status",
		RunE: func(cmd *cobra.Command, args []string) error {
			counts, err := services.OutboxStats(db.DB)
			if err != nil {
				return err
			}
			for _, status := range []string{models.OutboxPending, models.OutboxDelivered, models.OutboxFailed} {
				fmt.Fprintf(cmd.OutOrStdout(), "%-10s %d\n", status, counts[status])
			}
			return nil
		},
	}

	cmd.AddCommand(drain, retry, stats)
	return cmd
}

func (a *app) newRemindersCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reminders",
		Short: "Appointment reminder operations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "send",
		Short: "Remind requesters of tomorrow's confirmed appointments",
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := jobs.SendAppointmentReminders(db.DB, a.cfg, time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Notified %d, emailed %d, failed %d\n", result.Notified, result.Emailed, result.Failed)
			return nil
		},
	})
	return cmd
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
