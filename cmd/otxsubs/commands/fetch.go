package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/bl4ck0w1/otxsubs/internal/dispatch"
	"github.com/bl4ck0w1/otxsubs/internal/fetcher"
	"github.com/bl4ck0w1/otxsubs/internal/passive"
	"github.com/bl4ck0w1/otxsubs/internal/report"
	"github.com/bl4ck0w1/otxsubs/internal/resolve"
	"github.com/bl4ck0w1/otxsubs/internal/storage"
	"github.com/bl4ck0w1/otxsubs/pkg/models"
	"github.com/bl4ck0w1/otxsubs/pkg/utils"
)

// AddFetchFlags registers the query flags on cmd and binds them to config keys.
func AddFetchFlags(cmd *cobra.Command) {
	d := models.DefaultConfig()
	f := cmd.Flags()

	f.StringP("domain", "d", "", "Query a single domain (never read as a file)")
	f.StringP("list", "L", "", "Read domains from a newline-delimited file")
	f.StringP("output-dir", "o", d.OutputDir, "Directory for alienvault_subs_<domain>.txt files")
	f.Int("max-retries", d.Retry.MaxAttempts, "Retries after a 429 before giving up (0 = never give up)")
	f.Duration("retry-delay", d.Retry.Delay, "Wait before retrying a rate-limited request")
	f.Duration("timeout", d.OTX.Timeout, "HTTP timeout for one OTX request")
	f.String("api-key", "", "OTX API key sent as X-OTX-API-KEY")
	f.Bool("resolve", d.Resolve.Enabled, "Drop matches that no longer resolve (A/AAAA/CNAME)")

	_ = viper.BindPFlag("output_dir", f.Lookup("output-dir"))
	_ = viper.BindPFlag("retry.max_attempts", f.Lookup("max-retries"))
	_ = viper.BindPFlag("retry.delay", f.Lookup("retry-delay"))
	_ = viper.BindPFlag("otx.timeout", f.Lookup("timeout"))
	_ = viper.BindPFlag("otx.api_key", f.Lookup("api-key"))
	_ = viper.BindPFlag("resolve.enabled", f.Lookup("resolve"))
}

// SetDefaults seeds viper with every configuration key.
func SetDefaults() {
	d := models.DefaultConfig()
	viper.SetDefault("log_level", d.LogLevel)
	viper.SetDefault("log_format", d.LogFormat)
	viper.SetDefault("log_file", d.LogFile)
	viper.SetDefault("quiet", d.Quiet)
	viper.SetDefault("output_dir", d.OutputDir)
	viper.SetDefault("metrics_file", d.MetricsFile)

	viper.SetDefault("otx.base_url", d.OTX.BaseURL)
	viper.SetDefault("otx.user_agent", d.OTX.UserAgent)
	viper.SetDefault("otx.api_key", d.OTX.APIKey)
	viper.SetDefault("otx.timeout", d.OTX.Timeout)
	viper.SetDefault("otx.requests_per_second", d.OTX.RequestsPerSecond)

	viper.SetDefault("retry.max_attempts", d.Retry.MaxAttempts)
	viper.SetDefault("retry.delay", d.Retry.Delay)
	viper.SetDefault("retry.multiplier", d.Retry.Multiplier)
	viper.SetDefault("retry.max_delay", d.Retry.MaxDelay)

	viper.SetDefault("resolve.enabled", d.Resolve.Enabled)
	viper.SetDefault("resolve.servers", d.Resolve.Servers)
	viper.SetDefault("resolve.timeout", d.Resolve.Timeout)
	viper.SetDefault("resolve.concurrency", d.Resolve.Concurrency)
	viper.SetDefault("resolve.retries", d.Resolve.Retries)
}

func LoadConfig() (*models.Config, error) {
	cfg := models.DefaultConfig()
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func RunFetch(cmd *cobra.Command, args []string) error {
	cfg, err := LoadConfig()
	if err != nil {
		return err
	}
	in, err := inputFromFlags(cmd, args)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	_, err = Execute(ctx, cfg, in, logrus.StandardLogger(), cmd.InOrStdin(), cmd.OutOrStdout())
	return err
}

// Execute wires the pipeline from cfg and runs one batch. Per-domain
// failures and interruption are logged, not returned.
func Execute(ctx context.Context, cfg *models.Config, in dispatch.Input, logger *logrus.Logger, stdin io.Reader, stdout io.Writer) (*models.BatchSummary, error) {
	metrics, err := utils.NewFetchMetrics()
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	store, err := storage.NewLocalStorage(cfg.OutputDir, logger)
	if err != nil {
		return nil, err
	}

	reporter := report.NewLogReporter(logger)
	opts := []fetcher.Option{fetcher.WithLogger(logger), fetcher.WithMetrics(metrics)}
	if cfg.Resolve.Enabled {
		opts = append(opts, fetcher.WithResolver(resolve.NewResolver(cfg.Resolve, logger)))
	}
	f := fetcher.New(passive.NewOTXClient(cfg.OTX, logger), store, reporter, fetcher.PolicyFromConfig(cfg.Retry), opts...)

	d := dispatch.New(f, reporter,
		dispatch.WithLogger(logger),
		dispatch.WithMetrics(metrics),
		dispatch.WithPromptIO(stdin, stdout),
	)

	summary, err := d.Run(ctx, in)
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled) && summary != nil:
		logger.Warnf("Interrupted after %d domains", summary.Domains)
	default:
		return summary, err
	}

	if cfg.MetricsFile != "" {
		if err := metrics.WriteTextfile(cfg.MetricsFile); err != nil {
			logger.Warnf("Failed to write metrics: %v", err)
		}
	}
	return summary, nil
}

func inputFromFlags(cmd *cobra.Command, args []string) (dispatch.Input, error) {
	domain, _ := cmd.Flags().GetString("domain")
	list, _ := cmd.Flags().GetString("list")
	domain, list = strings.TrimSpace(domain), strings.TrimSpace(list)

	set := 0
	for _, v := range []string{domain, list} {
		if v != "" {
			set++
		}
	}
	if len(args) > 0 {
		set++
	}
	if set > 1 {
		return dispatch.Input{}, fmt.Errorf("use only one of a positional argument, --domain or --list")
	}

	switch {
	case domain != "":
		return dispatch.Input{Mode: dispatch.ModeDomain, Value: domain}, nil
	case list != "":
		return dispatch.Input{Mode: dispatch.ModeList, Value: list}, nil
	case len(args) > 0:
		return dispatch.Input{Mode: dispatch.ModeAuto, Value: args[0]}, nil
	default:
		return dispatch.Input{Mode: dispatch.ModeAuto}, nil
	}
}
