// Package main provides the querypilot command line interface.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/manideep395/QueryPilot-AI/cmd/querypilot/config"
	"github.com/manideep395/QueryPilot-AI/pkg/access"
	"github.com/manideep395/QueryPilot-AI/pkg/audit"
	"github.com/manideep395/QueryPilot-AI/pkg/backend"
	"github.com/manideep395/QueryPilot-AI/pkg/backend/duckdb"
	"github.com/manideep395/QueryPilot-AI/pkg/backend/postgres"
	"github.com/manideep395/QueryPilot-AI/pkg/backend/sqlite"
	"github.com/manideep395/QueryPilot-AI/pkg/cache"
	"github.com/manideep395/QueryPilot-AI/pkg/catalog"
	"github.com/manideep395/QueryPilot-AI/pkg/executor"
	"github.com/manideep395/QueryPilot-AI/pkg/explain"
	"github.com/manideep395/QueryPilot-AI/pkg/intent"
	"github.com/manideep395/QueryPilot-AI/pkg/metrics"
	"github.com/manideep395/QueryPilot-AI/pkg/models"
	"github.com/manideep395/QueryPilot-AI/pkg/orchestrator"
	"github.com/manideep395/QueryPilot-AI/pkg/planner"
	"github.com/manideep395/QueryPilot-AI/pkg/pool"
	"github.com/manideep395/QueryPilot-AI/pkg/validator"
)

var (
	// Version information (set by build flags)
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "querypilot",
	Short: "Natural language to SQL pipeline",
	Long: `querypilot answers natural-language questions against relational
databases. Questions are planned into SQL, statically validated, executed
on a pooled backend, and corrected within a bounded retry budget.`,
}

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer one question and exit",
	Long: `Run the pipeline once for a single question.

Example:
  querypilot ask "how many orders were placed last month" --backend duckdb
  querypilot ask "list customers" --token $QUERYPILOT_TOKEN`,
	Args: cobra.ExactArgs(1),
	RunE: runAsk,
}

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Interactive question loop",
	Long: `Start an interactive loop. Besides questions, the loop answers
"show tables" and "describe <table>" directly from the schema catalog.`,
	RunE: runREPL,
}

func init() {
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(replCmd)

	rootCmd.PersistentFlags().StringP("config", "c", "", "config file path")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("backend", "", "backend ID to query")
	rootCmd.PersistentFlags().String("role", "", "caller role (ignored when --token is set)")
	rootCmd.PersistentFlags().String("token", "", "caller token")
	rootCmd.PersistentFlags().String("locale", "", "question locale hint")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		panic(fmt.Errorf("failed to bind flags: %w", err))
	}
	viper.SetEnvPrefix("QUERYPILOT")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("querypilot\n")
			fmt.Printf("Version:    %s\n", version)
			fmt.Printf("Commit:     %s\n", commit)
			fmt.Printf("Build Date: %s\n", buildDate)
		},
	})
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// app holds the wired pipeline for one CLI invocation.
type app struct {
	cfg       *config.Config
	logger    zerolog.Logger
	registry  *backend.Registry
	catalog   *catalog.Catalog
	gate      *access.Gate
	orch      *orchestrator.Orchestrator
	backendID string
}

func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if path := viper.GetString("config"); path != "" {
		viper.SetConfigFile(path)
		if err := viper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		cfg = &config.Config{}
		if err := viper.Unmarshal(cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}
	if lvl := viper.GetString("log-level"); lvl != "" {
		cfg.LogLevel = lvl
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func buildApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().Timestamp().Logger()

	registry := backend.NewRegistry()
	for _, b := range cfg.Backends {
		poolCfg := pool.Config{
			DSN:                b.DSN,
			MaxOpenConnections: b.Pool.MaxOpenConnections,
			MaxIdleConnections: b.Pool.MaxIdleConnections,
			ConnMaxLifetime:    b.Pool.ConnMaxLifetime,
			ConnMaxIdleTime:    b.Pool.ConnMaxIdleTime,
			AcquireTimeout:     b.Pool.AcquireTimeout,
			HealthCheckPeriod:  b.Pool.HealthCheckPeriod,
		}
		var conn backend.Connector
		switch b.Kind {
		case "duckdb":
			conn, err = duckdb.New(b.ID, poolCfg, logger)
		case "sqlite":
			conn, err = sqlite.New(b.ID, poolCfg, logger)
		case "postgres":
			conn, err = postgres.New(b.ID, poolCfg, logger)
		}
		if err != nil {
			registry.Close()
			return nil, fmt.Errorf("backend %q: %w", b.ID, err)
		}
		registry.Register(conn)
	}

	backendID := viper.GetString("backend")
	if backendID == "" {
		backendID = cfg.DefaultBackend
	}
	conn, err := registry.Get(backendID)
	if err != nil {
		registry.Close()
		return nil, err
	}

	collector := metrics.Collector(metrics.NewNoOpCollector())
	if cfg.Metrics.Enabled {
		collector = metrics.NewPrometheusCollector()
		srv := metrics.NewServer(cfg.Metrics.Address)
		go func() {
			if err := srv.Start(); err != nil {
				logger.Warn().Err(err).Msg("Metrics server stopped")
			}
		}()
	}

	cat := catalog.New(conn, collector, logger)
	gate := access.New(access.Config{
		Roles:         cfg.Access.Roles,
		AnonymousRole: cfg.Access.AnonymousRole,
		JWTSecret:     cfg.Access.JWTSecret,
	}, logger)

	hint := func() map[string][]string {
		schema, err := cat.GetSchema(context.Background())
		if err != nil {
			return nil
		}
		out := make(map[string][]string, len(schema.Tables))
		for name, t := range schema.Tables {
			cols := make([]string, len(t.Columns))
			for i, c := range t.Columns {
				cols[i] = c.Name
			}
			out[name] = cols
		}
		return out
	}

	provider := intent.Select(intent.Config{
		Provider:    cfg.Intent.Provider,
		OpenAIKey:   cfg.Intent.OpenAIKey,
		OpenAIModel: cfg.Intent.OpenAIModel,
	}, hint, logger)

	orch := orchestrator.New(orchestrator.Config{
		MaxAttempts:             cfg.Pipeline.MaxAttempts,
		ConfidenceFloor:         cfg.Pipeline.ConfidenceFloor,
		PredicateDropThreshold:  cfg.Pipeline.PredicateDropThreshold,
		CorrectionFuzzyDistance: cfg.Pipeline.CorrectionFuzzyDistance,
		CacheTTL:                cfg.Pipeline.CacheTTL,
	}, orchestrator.Deps{
		Provider:  provider,
		Catalog:   cat,
		Gate:      gate,
		Planner:   planner.New(planner.Config{FuzzyMaxDistance: cfg.Pipeline.FuzzyMaxDistance}, logger),
		Validator: validator.New(logger),
		Executor:  executor.New(registry, executor.Config{MaxRows: cfg.Pipeline.MaxRows}, collector, logger),
		Cache:     cache.New(cfg.Pipeline.CacheTTL),
		Sink:      audit.NewLogSink(logger),
		Collector: collector,
		Logger:    logger,
	})

	return &app{
		cfg:       cfg,
		logger:    logger,
		registry:  registry,
		catalog:   cat,
		gate:      gate,
		orch:      orch,
		backendID: backendID,
	}, nil
}

func (a *app) resolveRole() (string, error) {
	if token := viper.GetString("token"); token != "" {
		return a.gate.ResolveCaller(token)
	}
	if role := viper.GetString("role"); role != "" {
		return role, nil
	}
	return a.cfg.Access.AnonymousRole, nil
}

func runAsk(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.registry.Close()

	role, err := a.resolveRole()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), a.cfg.Pipeline.RequestTimeout)
	defer cancel()

	outcome := a.orch.Ask(ctx, orchestrator.Request{
		Question:  args[0],
		Locale:    viper.GetString("locale"),
		Role:      role,
		BackendID: a.backendID,
	})
	printOutcome(outcome)
	if outcome.Status != models.StatusSucceeded {
		os.Exit(1)
	}
	return nil
}

func runREPL(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.registry.Close()

	role, err := a.resolveRole()
	if err != nil {
		return err
	}

	fmt.Printf("querypilot %s on backend %q (role %q). Type a question, or exit.\n", version, a.backendID, role)
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		switch lower := strings.ToLower(line); {
		case lower == "exit" || lower == "quit":
			return nil
		case lower == "show tables":
			a.showTables(cmd.Context(), role)
			continue
		case strings.HasPrefix(lower, "describe "):
			a.describe(cmd.Context(), role, strings.TrimSpace(line[len("describe "):]))
			continue
		case lower == "refresh schema":
			a.catalog.Invalidate()
			fmt.Println("Schema will be re-read on the next question.")
			continue
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), a.cfg.Pipeline.RequestTimeout)
		outcome := a.orch.Ask(ctx, orchestrator.Request{
			Question:  line,
			Locale:    viper.GetString("locale"),
			Role:      role,
			BackendID: a.backendID,
		})
		cancel()
		printOutcome(outcome)
	}
	return scanner.Err()
}

// showTables answers the catalog passthrough without invoking the pipeline.
func (a *app) showTables(ctx context.Context, role string) {
	schema, err := a.catalog.GetSchema(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return
	}
	visible := a.gate.VisibleTables(role, schema)
	if len(visible) == 0 {
		fmt.Println("No tables visible.")
		return
	}
	for _, t := range visible {
		fmt.Println(t)
	}
}

func (a *app) describe(ctx context.Context, role, table string) {
	schema, err := a.catalog.GetSchema(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return
	}
	visible := a.gate.VisibleTables(role, schema)
	found := ""
	for _, t := range visible {
		if strings.EqualFold(t, table) {
			found = t
			break
		}
	}
	if found == "" {
		fmt.Printf("Table %q is not visible.\n", table)
		return
	}

	t := schema.Tables[found]
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "COLUMN\tTYPE\tNULLABLE")
	for _, c := range t.Columns {
		fmt.Fprintf(w, "%s\t%s\t%v\n", c.Name, c.Type, c.Nullable)
	}
	w.Flush()
	if len(t.PrimaryKey) > 0 {
		fmt.Printf("Primary key: %s\n", strings.Join(t.PrimaryKey, ", "))
	}
	if len(t.ForeignKeys) > 0 {
		refs := make([]string, len(t.ForeignKeys))
		for i, fk := range t.ForeignKeys {
			refs[i] = fmt.Sprintf("%s -> %s.%s", fk.Column, fk.RefTable, fk.RefColumn)
		}
		sort.Strings(refs)
		fmt.Printf("Foreign keys: %s\n", strings.Join(refs, "; "))
	}
}

func printOutcome(outcome *models.Outcome) {
	if outcome.Status == models.StatusSucceeded && outcome.Result != nil {
		printResult(outcome.Result)
	}
	if text := explain.Render(outcome); text != "" {
		fmt.Print(text)
	}
}

func printResult(result *models.ExecutionResult) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, strings.Join(result.Columns, "\t"))
	for _, row := range result.Rows {
		cells := make([]string, len(row))
		for i, v := range row {
			if v == nil {
				cells[i] = "NULL"
				continue
			}
			cells[i] = fmt.Sprint(v)
		}
		fmt.Fprintln(w, strings.Join(cells, "\t"))
	}
	w.Flush()
}
