package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"syscall"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/kurihiro0119/repo-access-provisioner/internal/app"
	"github.com/kurihiro0119/repo-access-provisioner/internal/config"
	"github.com/kurihiro0119/repo-access-provisioner/internal/domain"
	"github.com/kurihiro0119/repo-access-provisioner/internal/logging"
	"github.com/kurihiro0119/repo-access-provisioner/internal/naming"
	"github.com/kurihiro0119/repo-access-provisioner/internal/provisioner"
	"github.com/kurihiro0119/repo-access-provisioner/pkg/client"
)

var (
	cfgFile    string
	outputJSON bool
	remote     bool

	orgName        string
	username       string
	packageManager string
	appID          string
	shared         bool
	batchFile      string
	failFast       bool
	limit          int
)

var rootCmd = &cobra.Command{
	Use:   "repo-access",
	Short: "Repository access provisioning tool",
	Long: `A CLI tool for provisioning and removing repository access.

For each request it manages a proxy repository, a repository-view privilege
and a role in Nexus Repository Manager, assigns the role to the user, and
grants the user the Owner role of the organization in IQ Server.`,
	SilenceUsage: true,
}

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Provision repository access",
	Long: `Provision repository access for a single request given by flags, or for
every request in a batch file (-f).`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBatch(cmd, domain.ActionCreate)
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Remove repository access",
	Long: `Remove repository access for a single request given by flags, or for
every request in a batch file (-f). Shared repositories are never deleted;
only the privilege is detached from the shared role.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBatch(cmd, domain.ActionDelete)
	},
}

var namesCmd = &cobra.Command{
	Use:   "names",
	Short: "Show the names a request maps to",
	Long:  `Display the repository, privilege and role names derived from a request without contacting any server.`,
	Args:  cobra.NoArgs,
	RunE:  runNames,
}

var historyCmd = &cobra.Command{
	Use:   "history [repository]",
	Short: "Show processed batches",
	Long:  `List the most recent batches, or the recorded outcomes for one repository.`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  runHistory,
}

var showCmd = &cobra.Command{
	Use:   "show [batch-id]",
	Short: "Show a processed batch",
	Long:  `Display the full result of a recorded batch.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check the API server",
	Long:  `Check that the API server at API_ENDPOINT is healthy.`,
	Args:  cobra.NoArgs,
	RunE:  runHealth,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .env)")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().BoolVar(&remote, "remote", false, "send requests to the API server at API_ENDPOINT")

	for _, cmd := range []*cobra.Command{createCmd, deleteCmd} {
		addRequestFlags(cmd)
		cmd.Flags().StringVarP(&batchFile, "file", "f", "", "JSON batch file ({\"requests\": [...], \"fail_fast\": true})")
		cmd.Flags().BoolVar(&failFast, "fail-fast", true, "stop at the first failed request")
	}
	addRequestFlags(namesCmd)
	historyCmd.Flags().IntVar(&limit, "limit", 20, "maximum number of entries")

	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(namesCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(healthCmd)
}

func addRequestFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&orgName, "org", "", "organization name")
	cmd.Flags().StringVar(&username, "user", "", "username")
	cmd.Flags().StringVar(&packageManager, "package-manager", "", "package manager (npm, maven2, pypi, ...)")
	cmd.Flags().StringVar(&appID, "app-id", "", "application id (required unless --shared)")
	cmd.Flags().BoolVar(&shared, "shared", false, "use the shared repository and role")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	var files []string
	if cfgFile != "" {
		files = append(files, cfgFile)
	}
	cfg, err := config.Load(files...)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func newClient(cfg *config.Config) *client.Client {
	return client.NewClient(cfg.APIEndpoint, cfg.APIToken)
}

// signalContext is cancelled on SIGINT or SIGTERM; a running batch stops
// before its next request.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// buildBatch reads the batch file, or builds a one-item batch from the flags
func buildBatch(cmd *cobra.Command) (*domain.BatchRequest, error) {
	var req domain.BatchRequest
	if batchFile != "" {
		data, err := os.ReadFile(batchFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read batch file: %w", err)
		}
		if err := json.Unmarshal(data, &req); err != nil {
			return nil, fmt.Errorf("failed to parse batch file: %w", err)
		}
	} else {
		req.Requests = []domain.ProvisioningRequest{{
			OrganizationName: orgName,
			Username:         username,
			PackageManager:   packageManager,
			Shared:           shared,
			AppID:            appID,
		}}
	}

	if req.FailFast == nil || cmd.Flags().Changed("fail-fast") {
		ff := failFast
		req.FailFast = &ff
	}
	return &req, nil
}

func runBatch(cmd *cobra.Command, action domain.Action) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	req, err := buildBatch(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	var result *domain.BatchResult
	if remote {
		c := newClient(cfg)
		if action == domain.ActionCreate {
			result, err = c.CreateRepositories(ctx, req)
		} else {
			result, err = c.DeleteRepositories(ctx, req)
		}
	} else {
		log := logging.Setup(cfg.LogLevel, cfg.LogFile)
		application, initErr := app.New(cfg, log)
		if initErr != nil {
			return fmt.Errorf("failed to initialize: %w", initErr)
		}
		defer application.Close()
		result, err = application.Service.Submit(ctx, provisioner.SourceCLI, action, req)
	}
	if err != nil {
		return err
	}

	if err := printResult(result); err != nil {
		return err
	}
	if !result.Success {
		return fmt.Errorf("batch %s: %s", result.BatchID, result.Message)
	}
	return nil
}

func runNames(cmd *cobra.Command, args []string) error {
	if packageManager == "" {
		return fmt.Errorf("--package-manager is required")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	names := naming.NewNamer(cfg.SharedRole).Names(packageManager, shared, appID, username)

	if outputJSON {
		return printJSON(names)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Object", "Name"})
	table.Append([]string{"Repository", names.Repository})
	table.Append([]string{"Privilege", names.Privilege})
	table.Append([]string{"Role", names.Role})
	table.Render()
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := context.Background()

	if len(args) == 1 {
		var outcomes []*domain.OutcomeRecord
		if remote {
			outcomes, err = newClient(cfg).RepositoryHistory(ctx, args[0], limit)
		} else {
			err = withStorage(cfg, func(svc provisioner.Service) error {
				var e error
				outcomes, e = svc.RepositoryHistory(ctx, args[0], limit)
				return e
			})
		}
		if err != nil {
			return fmt.Errorf("failed to get history: %w", err)
		}
		return printOutcomes(args[0], outcomes)
	}

	var records []*domain.BatchRecord
	if remote {
		records, err = newClient(cfg).ListBatches(ctx, limit)
	} else {
		err = withStorage(cfg, func(svc provisioner.Service) error {
			var e error
			records, e = svc.ListBatches(ctx, limit)
			return e
		})
	}
	if err != nil {
		return fmt.Errorf("failed to list batches: %w", err)
	}

	if outputJSON {
		return printJSON(records)
	}

	fmt.Printf("\nRecent batches (%d)\n\n", len(records))
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Batch", "Created", "Source", "Action", "Fail Fast", "Processed", "Total", "Status"})
	for _, r := range records {
		table.Append([]string{
			r.ID,
			r.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			r.Source,
			string(r.Action),
			strconv.FormatBool(r.FailFast),
			strconv.Itoa(r.ProcessedCount),
			strconv.Itoa(r.TotalRequests),
			status(r.Success),
		})
	}
	table.Render()
	return nil
}

func runShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := context.Background()

	var record *domain.BatchRecord
	if remote {
		record, err = newClient(cfg).GetBatch(ctx, args[0])
	} else {
		err = withStorage(cfg, func(svc provisioner.Service) error {
			var e error
			record, e = svc.GetBatch(ctx, args[0])
			return e
		})
	}
	if err != nil {
		return fmt.Errorf("failed to get batch: %w", err)
	}

	if outputJSON {
		return printJSON(record)
	}

	fmt.Printf("\nBatch %s (%s, %s, %s)\n", record.ID, record.Action, record.Source,
		record.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	if record.Result == nil {
		return nil
	}
	return printResult(record.Result)
}

func runHealth(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := newClient(cfg).HealthCheck(context.Background()); err != nil {
		return err
	}
	fmt.Printf("API at %s is healthy\n", cfg.APIEndpoint)
	return nil
}

// withStorage runs fn against a history-only service
func withStorage(cfg *config.Config, fn func(provisioner.Service) error) error {
	if err := cfg.ValidateStorage(); err != nil {
		return err
	}
	store, err := app.OpenStorage(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	svc := provisioner.NewService(nil, naming.NewNamer(cfg.SharedRole), store, cfg.MaxBatchSize, nil)
	return fn(svc)
}

func printResult(result *domain.BatchResult) error {
	if outputJSON {
		return printJSON(result)
	}

	fmt.Printf("\nBatch %s: %s\n\n", result.BatchID, result.Message)

	items := make([]domain.ItemOutcome, 0, len(result.Results)+len(result.Errors))
	items = append(items, result.Results...)
	items = append(items, result.Errors...)
	sort.Slice(items, func(i, j int) bool { return items[i].Index < items[j].Index })

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"#", "Status", "Action", "Repository", "User", "Organization", "Detail"})
	for _, item := range items {
		detail := item.Message
		if !item.Success {
			detail = item.Error
		}
		table.Append([]string{
			strconv.Itoa(item.Index),
			status(item.Success),
			string(item.Action),
			item.RepositoryName,
			item.Username,
			item.OrganizationID,
			detail,
		})
	}
	table.Render()

	if skipped := result.TotalRequests - result.ProcessedCount; skipped > 0 {
		fmt.Printf("%d requests not attempted (fail fast)\n", skipped)
	}
	return nil
}

func printOutcomes(repository string, outcomes []*domain.OutcomeRecord) error {
	if outputJSON {
		return printJSON(outcomes)
	}

	fmt.Printf("\nHistory of %s (%d)\n\n", repository, len(outcomes))
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Batch", "#", "Created", "Action", "User", "Status", "Detail"})
	for _, o := range outcomes {
		detail := o.Message
		if !o.Success {
			detail = o.Error
		}
		table.Append([]string{
			o.BatchID,
			strconv.Itoa(o.Index),
			o.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			string(o.Action),
			o.Username,
			status(o.Success),
			detail,
		})
	}
	table.Render()
	return nil
}

func status(ok bool) string {
	if ok {
		return "OK"
	}
	return "FAILED"
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
