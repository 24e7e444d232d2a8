package commands

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/bl4ck0w1/otxsubs/internal/dispatch"
	"github.com/bl4ck0w1/otxsubs/pkg/models"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func newFetchCmd() *cobra.Command {
	viper.Reset()
	SetDefaults()
	cmd := &cobra.Command{Use: "otxsubs", Args: cobra.MaximumNArgs(1), RunE: RunFetch}
	AddFetchFlags(cmd)
	return cmd
}

func otxServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.Contains(r.URL.Path, "/hostname/example.com/"):
			_, _ = w.Write([]byte(`{"passive_dns":[{"hostname":"www.example.com"},{"hostname":"api.example.com"},{"hostname":"example.com"}]}`))
		case strings.Contains(r.URL.Path, "/hostname/broken.com/"):
			_, _ = w.Write([]byte(`{{`))
		default:
			_, _ = w.Write([]byte(`{"passive_dns":[]}`))
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestExecuteBatchEndToEnd(t *testing.T) {
	srv := otxServer(t)
	dir := t.TempDir()
	list := filepath.Join(dir, "domains.txt")
	require.NoError(t, os.WriteFile(list, []byte("example.com\nbroken.com\nempty.org\n"), 0o644))

	cfg := models.DefaultConfig()
	cfg.OTX.BaseURL = srv.URL
	cfg.OutputDir = filepath.Join(dir, "out")
	cfg.MetricsFile = filepath.Join(dir, "metrics", "otxsubs.prom")

	summary, err := Execute(context.Background(), cfg, dispatch.Input{Mode: dispatch.ModeList, Value: list},
		quietLogger(), strings.NewReader(""), &bytes.Buffer{})
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Domains)
	assert.Equal(t, 1, summary.ByStatus[models.StatusSaved])
	assert.Equal(t, 1, summary.ByStatus[models.StatusDecodeError])
	assert.Equal(t, 1, summary.ByStatus[models.StatusNoMatches])

	b, err := os.ReadFile(filepath.Join(cfg.OutputDir, "alienvault_subs_example.com.txt"))
	require.NoError(t, err)
	assert.Equal(t, "api.example.com\nwww.example.com", string(b))
	assert.NoFileExists(t, filepath.Join(cfg.OutputDir, "alienvault_subs_broken.com.txt"))
	assert.NoFileExists(t, filepath.Join(cfg.OutputDir, "alienvault_subs_empty.org.txt"))

	metrics, err := os.ReadFile(cfg.MetricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(metrics), `otxsubs_fetch_total{status="saved"} 1`)
	assert.Contains(t, string(metrics), `otxsubs_batch_domains{source="`+list+`"} 3`)
}

func TestRunFetchUsesFlagsAndConfig(t *testing.T) {
	srv := otxServer(t)
	out := t.TempDir()

	cmd := newFetchCmd()
	viper.Set("otx.base_url", srv.URL)
	cmd.SetArgs([]string{"-d", "example.com", "-o", out, "--max-retries", "2", "--retry-delay", "5s"})
	cmd.SetContext(context.Background())
	logrus.SetLevel(logrus.PanicLevel)
	t.Cleanup(func() { logrus.SetLevel(logrus.InfoLevel) })

	require.NoError(t, cmd.Execute())
	assert.FileExists(t, filepath.Join(out, "alienvault_subs_example.com.txt"))

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, out, cfg.OutputDir)
	assert.Equal(t, 2, cfg.Retry.MaxAttempts)
	assert.Equal(t, 5*time.Second, cfg.Retry.Delay)
	assert.Equal(t, srv.URL, cfg.OTX.BaseURL)
}

func TestLoadConfigFromEnv(t *testing.T) {
	newFetchCmd()
	viper.SetEnvPrefix("OTXSUBS")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	t.Setenv("OTXSUBS_RETRY_MULTIPLIER", "2.5")
	t.Setenv("OTXSUBS_RESOLVE_SERVERS", "1.1.1.1,9.9.9.9")
	t.Setenv("OTXSUBS_OTX_TIMEOUT", "3s")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 2.5, cfg.Retry.Multiplier)
	assert.Equal(t, []string{"1.1.1.1", "9.9.9.9"}, cfg.Resolve.Servers)
	assert.Equal(t, 3*time.Second, cfg.OTX.Timeout)
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	newFetchCmd()
	viper.Set("retry.multiplier", 0.5)
	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "retry.multiplier")
}

func TestInputFromFlags(t *testing.T) {
	cases := []struct {
		args    []string
		want    dispatch.Input
		wantErr bool
	}{
		{args: nil, want: dispatch.Input{Mode: dispatch.ModeAuto}},
		{args: []string{"example.com"}, want: dispatch.Input{Mode: dispatch.ModeAuto, Value: "example.com"}},
		{args: []string{"-d", " example.com "}, want: dispatch.Input{Mode: dispatch.ModeDomain, Value: "example.com"}},
		{args: []string{"--list", "d.txt"}, want: dispatch.Input{Mode: dispatch.ModeList, Value: "d.txt"}},
		{args: []string{"-d", "a.com", "-L", "d.txt"}, wantErr: true},
		{args: []string{"-d", "a.com", "b.com"}, wantErr: true},
	}
	for _, tc := range cases {
		cmd := newFetchCmd()
		require.NoError(t, cmd.ParseFlags(tc.args))
		got, err := inputFromFlags(cmd, cmd.Flags().Args())
		if tc.wantErr {
			assert.Error(t, err, tc.args)
			continue
		}
		require.NoError(t, err, tc.args)
		assert.Equal(t, tc.want, got, tc.args)
	}
}

func runConfigure(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewConfigureCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetIn(strings.NewReader("n\n"))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestConfigureInitSetGetValidate(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	logrus.SetLevel(logrus.PanicLevel)
	t.Cleanup(func() { logrus.SetLevel(logrus.InfoLevel) })

	_, err := runConfigure(t, "init")
	require.NoError(t, err)
	path := filepath.Join(home, ".otxsubs", "config.yaml")
	require.FileExists(t, path)

	_, err = runConfigure(t, "set", "retry.max_attempts", "5")
	require.NoError(t, err)
	_, err = runConfigure(t, "set", "retry.delay", "90")
	require.NoError(t, err)
	_, err = runConfigure(t, "set", "resolve.servers", "1.1.1.1")
	require.NoError(t, err)
	_, err = runConfigure(t, "set", "otx.api_key", "abcdef123456")
	require.NoError(t, err)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, yaml.Unmarshal(raw, &m))
	retry := m["retry"].(map[string]any)
	assert.Equal(t, 5, retry["max_attempts"])
	assert.Equal(t, "1m30s", retry["delay"])
	assert.Equal(t, []any{"1.1.1.1"}, m["resolve"].(map[string]any)["servers"])
	assert.NoFileExists(t, path+".tmp")

	out, err := runConfigure(t, "get", "retry.max_attempts")
	require.NoError(t, err)
	assert.Equal(t, "retry.max_attempts = 5\n", out)

	out, err = runConfigure(t, "show")
	require.NoError(t, err)
	assert.Contains(t, out, "ab********56")
	assert.NotContains(t, out, "abcdef123456")

	out, err = runConfigure(t, "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "is valid")

	out, err = runConfigure(t, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "  - config\n")

	cfg := models.DefaultConfig()
	require.NoError(t, cfg.Load(path))
	assert.Equal(t, 90*time.Second, cfg.Retry.Delay)
	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
}

func TestConfigureSetRejectsInvalidValue(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	_, err := runConfigure(t, "set", "log_format", "xml")
	require.Error(t, err)
	assert.NoFileExists(t, filepath.Join(home, ".otxsubs", "config.yaml"))
}

func TestConfigureInitDeclinedOverwrite(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	path := filepath.Join(home, ".otxsubs", "config.yaml")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("log_level: debug\n"), 0o600))

	out, err := runConfigure(t, "init")
	require.NoError(t, err)
	assert.Contains(t, out, "Overwrite?")
	b, _ := os.ReadFile(path)
	assert.Equal(t, "log_level: debug\n", string(b))

	_, err = runConfigure(t, "init", "--force")
	require.NoError(t, err)
	b, _ = os.ReadFile(path)
	assert.Contains(t, string(b), "otx.alienvault.com")
}

func TestParseValueForKey(t *testing.T) {
	assert.Equal(t, true, parseValueForKey("resolve.enabled", "true"))
	assert.Equal(t, 3, parseValueForKey("retry.max_attempts", "3"))
	assert.Equal(t, 1.5, parseValueForKey("retry.multiplier", "1.5"))
	assert.Equal(t, "30s", parseValueForKey("otx.timeout", "30"))
	assert.Equal(t, "2m0s", parseValueForKey("retry.max_delay", "2m"))
	assert.Equal(t, []string{"a", "b"}, parseValueForKey("x", "a, b,"))
	assert.Equal(t, "12345", parseValueForKey("otx.api_key", "12345"))
	assert.Equal(t, "text", parseValueForKey("log_format", "text"))

	ua := "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko)"
	assert.Equal(t, ua, parseValueForKey("otx.user_agent", ua))
	assert.Equal(t, "out,dir", parseValueForKey("output_dir", "out,dir"))
	assert.Equal(t, []string{"1.1.1.1"}, parseValueForKey("resolve.servers", "1.1.1.1"))
}

func TestConfigureSetUserAgentWithCommas(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	logrus.SetLevel(logrus.PanicLevel)
	t.Cleanup(func() { logrus.SetLevel(logrus.InfoLevel) })

	ua := "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko)"
	_, err := runConfigure(t, "set", "otx.user_agent", ua)
	require.NoError(t, err)

	cfg := models.DefaultConfig()
	require.NoError(t, cfg.Load(filepath.Join(home, ".otxsubs", "config.yaml")))
	assert.Equal(t, ua, cfg.OTX.UserAgent)
}

func TestVersionCommand(t *testing.T) {
	run := func(version string, args ...string) (string, error) {
		cmd := NewVersionCommand(version, "abc123", "2025-01-01")
		var out bytes.Buffer
		cmd.SetOut(&out)
		cmd.SetArgs(args)
		err := cmd.Execute()
		return out.String(), err
	}

	out, err := run("1.2.3")
	require.NoError(t, err)
	assert.Contains(t, out, "otxsubs Version: 1.2.3")
	assert.Contains(t, out, "Release: 1.2.3 stable")
	assert.Contains(t, out, "Git Commit: abc123")

	out, err = run("2.0.0-rc.1")
	require.NoError(t, err)
	assert.Contains(t, out, "prerelease (rc.1)")

	out, err = run("1.2.3", "--short")
	require.NoError(t, err)
	assert.Equal(t, "1.2.3\n", out)

	_, err = run("1.2.3", "--require", ">= 1.0, < 2")
	assert.NoError(t, err)
	_, err = run("1.2.3", "--require", ">= 2")
	assert.Error(t, err)
	_, err = run("dev", "--require", ">= 1")
	assert.Error(t, err)
}

func TestResultsCommand(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "alienvault_subs_example.com.txt"), []byte("a.example.com\nb.example.com"), 0o644))

	cmd := NewResultsCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--dir", dir})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "example.com")
	assert.Regexp(t, `example\.com\s+2\s+`, out.String())

	out.Reset()
	cmd = NewResultsCommand()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--dir", dir, "example.com"})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, "a.example.com\nb.example.com\n", out.String())
}

func TestCompletionCommand(t *testing.T) {
	root := &cobra.Command{Use: "otxsubs"}
	root.AddCommand(NewCompletionCommand())
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"completion", "bash"})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "otxsubs")
}
