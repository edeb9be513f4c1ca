package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"text/tabwriter"
	"time"

	"flowboard/board"
	"flowboard/config"
	"flowboard/connection"
	"flowboard/report"
	"flowboard/services"
	"flowboard/session"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "flowboard",
	Short: "flowboard - project board with time tracking and billing reports",
	RunE:  runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP gateway",
	RunE:  runServe,
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print a billing report for one user's board",
	RunE:  runReport,
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a development access token",
	RunE:  runToken,
}

var (
	memoryFlag  bool
	userFlag    string
	windowFlag  string
	filterFlag  string
	projectFlag string
	rateFlag    float64
	ttlFlag     time.Duration
)

func init() {
	for _, cmd := range []*cobra.Command{rootCmd, serveCmd, reportCmd, tokenCmd} {
		cmd.Flags().BoolVar(&memoryFlag, "memory", false, "Use an in-memory demo store instead of Firestore")
	}
	reportCmd.Flags().StringVarP(&userFlag, "user", "u", "", "User whose board is reported (required)")
	reportCmd.Flags().StringVarP(&windowFlag, "window", "w", "", "YYYY-MM, YYYY-MM-DD/YYYY-MM-DD or RFC3339 start/end; empty is all time")
	reportCmd.Flags().StringVarP(&filterFlag, "filter", "f", "", "all, unassigned or a member id")
	reportCmd.Flags().StringVarP(&projectFlag, "project", "p", "", "Limit to one project")
	reportCmd.Flags().Float64Var(&rateFlag, "rate", -1, "Hourly rate overriding every member rate")
	_ = reportCmd.MarkFlagRequired("user")
	tokenCmd.Flags().StringVarP(&userFlag, "user", "u", "", "User id to put in the token (required)")
	tokenCmd.Flags().DurationVar(&ttlFlag, "ttl", time.Hour, "Token lifetime")
	_ = tokenCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(serveCmd, reportCmd, tokenCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// backends returns the collaborator factory: Firestore, or the in-memory demo
// store seeded for demoOwner.
func backends(ctx context.Context, cfg *config.Config, demoOwner string) (session.BackendFactory, func(), error) {
	if memoryFlag {
		mem := services.NewMemory()
		services.SeedDemo(mem, demoOwner)
		return mem.For, func() {}, nil
	}
	client, err := connection.FBConnection(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	factory := func(userID string) board.Backend {
		return services.NewFirestoreBackend(client, userID)
	}
	return factory, func() { client.Close() }, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if memoryFlag {
		if len(cfg.JWTSecret) == 0 {
			return fmt.Errorf("JWT_SECRET_KEY is not set")
		}
	} else if err := cfg.Validate(); err != nil {
		return err
	}
	gin.SetMode(gin.ReleaseMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	factory, closeBackend, err := backends(ctx, cfg, "demo-owner")
	if err != nil {
		return err
	}
	defer closeBackend()

	sessions := session.NewManager(factory, cfg.TimerTick)
	return connection.StartServer(ctx, cfg, sessions)
}

func runReport(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	factory, closeBackend, err := backends(ctx, cfg, userFlag)
	if err != nil {
		return err
	}
	defer closeBackend()

	backend := factory(userFlag)
	store := board.NewStore(backend, userFlag)
	if err := store.LoadAll(ctx, projectFlag); err != nil {
		return fmt.Errorf("load board: %w", err)
	}

	rates := report.Rates{Default: cfg.DefaultHourlyRate, Override: cfg.RateOverride}
	if rateFlag >= 0 {
		rates.Override = &rateFlag
	}
	rep, err := report.NewBuilder(backend).Build(ctx, report.Request{
		Projects:  store.Snapshot().Projects,
		ProjectID: projectFlag,
		Window:    windowFlag,
		Filter:    filterFlag,
		Rates:     rates,
		Viewer:    userFlag,
	})
	if err != nil {
		return err
	}
	return writeReport(cmd.OutOrStdout(), rep)
}

func runToken(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if len(cfg.JWTSecret) == 0 {
		return fmt.Errorf("JWT_SECRET_KEY is not set")
	}
	email := ""
	if !memoryFlag && cfg.CredentialsFile != "" {
		email = lookupEmail(cmd, cfg, userFlag)
	}
	token, err := services.CreateAccessToken(cfg.JWTSecret, userFlag, email, ttlFlag)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}

// lookupEmail reads the user's directory email for the token claims. A miss is
// not fatal since only the userId claim is relied on.
func lookupEmail(cmd *cobra.Command, cfg *config.Config, userID string) string {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	client, err := connection.FBConnection(ctx, cfg)
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "directory lookup skipped: %v\n", err)
		return ""
	}
	defer client.Close()
	user, err := services.GetUserDataByUserid(ctx, client, userID)
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "directory lookup skipped: %v\n", err)
		return ""
	}
	return user.Email
}

func writeReport(w io.Writer, rep report.Report) error {
	fmt.Fprintf(w, "Window: %s\nFilter: %s\n", rep.Window, rep.Filter)
	if rep.Degraded {
		fmt.Fprintf(w, "Warning: %s\n", rep.DegradedReason)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, p := range rep.Projects {
		fmt.Fprintf(tw, "\n%s\t%d tasks\t%.2fh\t%s\n", p.ProjectName, p.TaskCount, p.TotalHours, money(p.TotalCost, rep.CostHidden))
		members := append([]report.MemberTotal(nil), p.Members...)
		sort.SliceStable(members, func(i, j int) bool { return members[i].Seconds > members[j].Seconds })
		for _, m := range members {
			fmt.Fprintf(tw, "  %s\t\t%.2fh\t%s\n", m.Label, m.Hours, money(m.Cost, rep.CostHidden))
		}
	}
	fmt.Fprintf(tw, "\nTotal\t\t%.2fh\t%s\n", rep.TotalHours, money(rep.TotalCost, rep.CostHidden))
	return tw.Flush()
}

func money(v float64, hidden bool) string {
	if hidden {
		return "-"
	}
	return fmt.Sprintf("%.2f", v)
}
