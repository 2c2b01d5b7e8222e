package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/DukeRupert/quotaledger/internal"
	"github.com/DukeRupert/quotaledger/internal/domain"
	"github.com/DukeRupert/quotaledger/internal/service"
)

// =============================================================================
// migrate
// =============================================================================

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	Args:  cobra.NoArgs,
	RunE: withEnvironment(func(cmd *cobra.Command, env *environment, _ []string) error {
		if err := internal.RunMigrations(cmd.Context(), env.db, env.logger); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		version, err := internal.MigrationVersion(cmd.Context(), env.db)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "schema at version %d\n", version)
		return nil
	}),
}

// =============================================================================
// plans
// =============================================================================

var plansCmd = &cobra.Command{
	Use:   "plans",
	Short: "Manage subscription plans",
}

var plansSeedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Insert catalog plans missing from the database",
	Args:  cobra.NoArgs,
	RunE: withEnvironment(func(cmd *cobra.Command, env *environment, _ []string) error {
		plans, err := env.planService()
		if err != nil {
			return err
		}
		if err := plans.EnsureDefaultPlans(cmd.Context()); err != nil {
			return err
		}
		all, err := plans.ListAll(cmd.Context())
		if err != nil {
			return err
		}
		return printPlans(cmd.OutOrStdout(), all)
	}),
}

var plansListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every plan, active or not",
	Args:  cobra.NoArgs,
	RunE: withEnvironment(func(cmd *cobra.Command, env *environment, _ []string) error {
		plans, err := env.planService()
		if err != nil {
			return err
		}
		all, err := plans.ListAll(cmd.Context())
		if err != nil {
			return err
		}
		return printPlans(cmd.OutOrStdout(), all)
	}),
}

// =============================================================================
// users
// =============================================================================

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage API users",
}

var usersCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a user and print its API token",
	Long:  `Create a user and print its API token. The token is shown once; only its hash is stored.`,
	Args:  cobra.NoArgs,
	RunE: withEnvironment(func(cmd *cobra.Command, env *environment, _ []string) error {
		email, _ := cmd.Flags().GetString("email")
		users := service.NewUserService(env.store, env.logger)

		user, token, err := users.Create(cmd.Context(), email)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "id:    %s\n", user.ID)
		fmt.Fprintf(out, "email: %s\n", user.Email)
		fmt.Fprintf(out, "token: %s\n", token)
		return nil
	}),
}

// =============================================================================
// usage
// =============================================================================

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Inspect monthly usage",
}

var usageShowCmd = &cobra.Command{
	Use:   "show <user-id>",
	Short: "Show a user's usage against their limits for the current month",
	Long:  `Show a user's usage against their limits for the current month. Read-only: a month with no usage yet is reported as zero without creating its counter row.`,
	Args:  cobra.ExactArgs(1),
	RunE: withEnvironment(func(cmd *cobra.Command, env *environment, args []string) error {
		userID, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid user id %q: %w", args[0], err)
		}
		plans, err := env.planService()
		if err != nil {
			return err
		}
		ledger := service.NewLedgerService(env.store, plans, env.logger, nil)

		summary, err := ledger.Summary(cmd.Context(), userID)
		if err != nil {
			return err
		}
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(summary)
		}
		return printSummary(cmd.OutOrStdout(), summary)
	}),
}

func init() {
	plansCmd.AddCommand(plansSeedCmd, plansListCmd)

	usersCreateCmd.Flags().String("email", "", "email address of the new user")
	_ = usersCreateCmd.MarkFlagRequired("email")
	usersCmd.AddCommand(usersCreateCmd)

	usageShowCmd.Flags().Bool("json", false, "print the summary as JSON")
	usageCmd.AddCommand(usageShowCmd)
}

// =============================================================================
// Output
// =============================================================================

func printPlans(w io.Writer, plans []domain.Plan) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tPRICE\tDAYS\tACTIVE")
	for _, p := range plans {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%t\n", p.ID, p.Name, formatPrice(p.PriceCents, p.Currency), p.DurationDays, p.IsActive)
	}
	return tw.Flush()
}

func printSummary(w io.Writer, s *domain.UsageSummary) error {
	fmt.Fprintf(w, "user:  %s\n", s.UserID)
	fmt.Fprintf(w, "plan:  %s\n", s.PlanName)
	fmt.Fprintf(w, "month: %s\n", s.MonthYear)
	if s.SubscriptionEndDate != nil {
		fmt.Fprintf(w, "ends:  %s\n", s.SubscriptionEndDate.UTC().Format("2006-01-02"))
	}
	if sub := s.Subscription; sub != nil {
		fmt.Fprintf(w, "subscription: %s (%s, payment %s)\n", sub.ID, sub.Status, sub.PaymentStatus)
	}
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RESOURCE\tUSED\tLIMIT\tREMAINING")
	for _, c := range s.Resources {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\n", c.Resource, c.Used, c.Limit, c.Remaining)
	}
	return tw.Flush()
}

func formatPrice(cents int64, currency string) string {
	return fmt.Sprintf("%d.%02d %s", cents/100, cents%100, currency)
}
