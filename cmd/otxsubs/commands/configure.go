package commands

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/bl4ck0w1/otxsubs/pkg/models"
	"github.com/bl4ck0w1/otxsubs/pkg/utils"
)

const defaultProfile = "config"

func NewConfigureCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "configure",
		Short: "Manage otxsubs configuration",
		Long: `Manage configuration profiles stored as YAML in $HOME/.otxsubs.
The "config" profile is loaded automatically; others can be used with --config.`,
	}

	cmd.AddCommand(newConfigureInitCommand())
	cmd.AddCommand(newConfigureShowCommand())
	cmd.AddCommand(newConfigureListCommand())
	cmd.AddCommand(newConfigureSetCommand())
	cmd.AddCommand(newConfigureGetCommand())
	cmd.AddCommand(newConfigureValidateCommand())
	return cmd
}

func newConfigureInitCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init [profile]",
		Short: "Initialize a new configuration profile",
		Long:  `Write a configuration profile with default values (YAML).`,
		Args:  cobra.MaximumNArgs(1),
		RunE:  runConfigureInit,
	}
	cmd.Flags().BoolP("force", "f", false, "Overwrite without asking")
	return cmd
}

func newConfigureShowCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show [profile]",
		Short: "Show a configuration profile",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runConfigureShow,
	}
	cmd.Flags().StringP("profile", "p", defaultProfile, "Configuration profile")
	return cmd
}

func newConfigureListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List available configuration profiles",
		RunE:  runConfigureList,
	}
}

func newConfigureSetCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Long: `Set a configuration value for the selected profile.
Supports dotted keys (e.g. "retry.max_attempts") and basic type parsing:
- booleans: true/false
- integers/floats: 10, 1.5
- durations (for keys containing timeout|delay): "30s", "2m"
- string lists: "a,b,c" -> ["a","b","c"]`,
		Args: cobra.ExactArgs(2),
		RunE: runConfigureSet,
	}
	cmd.Flags().StringP("profile", "p", defaultProfile, "Configuration profile")
	return cmd
}

func newConfigureGetCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <key>",
		Short: "Get a configuration value",
		Args:  cobra.ExactArgs(1),
		RunE:  runConfigureGet,
	}
	cmd.Flags().StringP("profile", "p", defaultProfile, "Configuration profile")
	return cmd
}

func newConfigureValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [profile]",
		Short: "Check a configuration profile for errors",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := profilePath(profileArg(cmd, args))
			if err != nil {
				return err
			}
			cfg := models.DefaultConfig()
			if err := cfg.Load(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is valid\n", path)
			return nil
		},
	}
}

func configDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(home, ".otxsubs"), nil
}

func profilePath(profile string) (string, error) {
	dir, err := configDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, profile+".yaml"), nil
}

func profileArg(cmd *cobra.Command, args []string) string {
	if len(args) > 0 && strings.TrimSpace(args[0]) != "" {
		return strings.TrimSpace(args[0])
	}
	if f := cmd.Flags().Lookup("profile"); f != nil && f.Value.String() != "" {
		return f.Value.String()
	}
	return defaultProfile
}

func runConfigureInit(cmd *cobra.Command, args []string) error {
	configFile, err := profilePath(profileArg(cmd, args))
	if err != nil {
		return err
	}

	if _, err := os.Stat(configFile); err == nil {
		force, _ := cmd.Flags().GetBool("force")
		if !force {
			logrus.Warnf("Configuration file already exists: %s", configFile)
			ok, ierr := confirmOverwrite(cmd.InOrStdin(), cmd.OutOrStdout())
			if ierr != nil {
				return ierr
			}
			if !ok {
				logrus.Info("Configuration initialization cancelled")
				return nil
			}
		}
	}

	if err := models.DefaultConfig().Save(configFile); err != nil {
		return fmt.Errorf("failed to write configuration file: %w", err)
	}

	logrus.Infof("Configuration initialized: %s", configFile)
	return nil
}

func runConfigureShow(cmd *cobra.Command, args []string) error {
	profile := profileArg(cmd, args)
	v, err := readProfile(profile)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Configuration for profile: %s (%s)\n", profile, v.ConfigFileUsed())
	fmt.Fprintln(out, strings.Repeat("=", 60))

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	keys := v.AllKeys()
	sort.Strings(keys)
	for _, k := range keys {
		val := fmt.Sprintf("%v", v.Get(k))
		if strings.HasSuffix(k, "api_key") && val != "" {
			val = utils.MaskSecret(val)
		}
		fmt.Fprintf(w, "  %s:\t%s\n", k, val)
	}
	return w.Flush()
}

func runConfigureList(cmd *cobra.Command, args []string) error {
	dir, err := configDir()
	if err != nil {
		return err
	}

	files, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return fmt.Errorf("failed to list configuration files: %w", err)
	}
	if len(files) == 0 {
		logrus.Info("No configuration profiles found. Run 'otxsubs configure init' to create one.")
		return nil
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Available configuration profiles:")
	for _, file := range files {
		fmt.Fprintf(out, "  - %s\n", strings.TrimSuffix(filepath.Base(file), ".yaml"))
	}
	return nil
}

func runConfigureSet(cmd *cobra.Command, args []string) error {
	key := strings.TrimSpace(args[0])
	profile := profileArg(cmd, nil)

	cfg, cfgPath, err := loadConfigFile(profile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	val := parseValueForKey(key, args[1])
	setNested(cfg, strings.Split(key, "."), val)

	if err := checkConfigMap(cfg); err != nil {
		return fmt.Errorf("refusing to write %s: %w", key, err)
	}
	if err := writeYAMLFile(cfgPath, cfg); err != nil {
		return fmt.Errorf("failed to write configuration file: %w", err)
	}

	logrus.Infof("Set %s = %v in profile %s", key, val, profile)
	return nil
}

func runConfigureGet(cmd *cobra.Command, args []string) error {
	key := strings.TrimSpace(args[0])
	v, err := readProfile(profileArg(cmd, nil))
	if err != nil {
		return err
	}

	val := v.Get(key)
	if val == nil {
		fmt.Fprintf(cmd.OutOrStdout(), "%s = <nil>\n", key)
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s = %v\n", key, val)
	return nil
}

// readProfile loads one profile into a private viper instance so the
// process-wide configuration is left alone.
func readProfile(profile string) (*viper.Viper, error) {
	path, err := profilePath(profile)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("profile %s does not exist", profile)
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to load profile %s: %w", profile, err)
	}
	return v, nil
}

func loadConfigFile(profile string) (map[string]interface{}, string, error) {
	configFile, err := profilePath(profile)
	if err != nil {
		return nil, "", err
	}
	if err := os.MkdirAll(filepath.Dir(configFile), 0o755); err != nil {
		return nil, "", fmt.Errorf("failed to create config directory: %w", err)
	}

	cfg := map[string]interface{}{}
	if _, err := os.Stat(configFile); err == nil {
		b, rerr := os.ReadFile(configFile)
		if rerr != nil {
			return nil, "", fmt.Errorf("failed to read configuration: %w", rerr)
		}
		if uerr := yaml.Unmarshal(b, &cfg); uerr != nil {
			return nil, "", fmt.Errorf("failed to parse YAML: %w", uerr)
		}
	}
	return cfg, configFile, nil
}

// checkConfigMap decodes m over the defaults and validates the result.
func checkConfigMap(m map[string]interface{}) error {
	b, err := yaml.Marshal(m)
	if err != nil {
		return err
	}
	cfg := models.DefaultConfig()
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return cfg.Validate()
}

func writeYAMLFile(path string, v interface{}) error {
	out, err := yaml.Marshal(v)
	if err != nil {
		return err
	}
	return utils.SafeWriteFile(path, out, 0o600)
}

func setNested(dst map[string]interface{}, keys []string, val interface{}) {
	if len(keys) == 0 {
		return
	}
	if len(keys) == 1 {
		dst[keys[0]] = val
		return
	}
	k := keys[0]
	child, ok := dst[k].(map[string]interface{})
	if !ok {
		child = map[string]interface{}{}
	}
	setNested(child, keys[1:], val)
	dst[k] = child
}

func parseValueForKey(key, s string) interface{} {
	trim := strings.TrimSpace(s)
	lower := strings.ToLower(key)

	// free-form strings; a user agent often contains commas
	for _, suffix := range []string{"api_key", "base_url", "user_agent", "output_dir", "log_file", "metrics_file"} {
		if strings.HasSuffix(lower, suffix) {
			return trim
		}
	}

	if strings.Contains(trim, ",") || strings.HasSuffix(lower, "servers") {
		parts := strings.Split(trim, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if t := strings.TrimSpace(p); t != "" {
				out = append(out, t)
			}
		}
		return out
	}

	// bare numbers on duration keys are seconds
	if strings.Contains(lower, "timeout") || strings.Contains(lower, "delay") {
		if i, err := strconv.Atoi(trim); err == nil {
			return (time.Duration(i) * time.Second).String()
		}
		if d, err := time.ParseDuration(trim); err == nil {
			return d.String()
		}
	}

	if b, err := strconv.ParseBool(trim); err == nil {
		return b
	}

	if i, err := strconv.Atoi(trim); err == nil {
		return i
	}

	if f, err := strconv.ParseFloat(trim, 64); err == nil {
		return f
	}
	return trim
}

func confirmOverwrite(in io.Reader, out io.Writer) (bool, error) {
	fmt.Fprint(out, "Configuration file already exists. Overwrite? (y/N): ")
	resp, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return false, err
	}
	resp = strings.TrimSpace(resp)
	return resp == "y" || resp == "Y", nil
}
