package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

const filePrefix = "alienvault_subs_"

type LocalStorage struct {
	baseDir string
	logger  *logrus.Logger
	mu      sync.Mutex
}

func NewLocalStorage(baseDir string, logger *logrus.Logger) (*LocalStorage, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if baseDir == "" {
		baseDir = "."
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	return &LocalStorage{baseDir: baseDir, logger: logger}, nil
}

func (ls *LocalStorage) BaseDir() string { return ls.baseDir }

// PathFor returns the output file for domain. Domains that would escape the
// output directory are rejected.
func (ls *LocalStorage) PathFor(domain string) (string, error) {
	if domain == "" || strings.ContainsAny(domain, `/\`) || domain == "." || domain == ".." {
		return "", fmt.Errorf("invalid domain for file name: %q", domain)
	}
	return filepath.Join(ls.baseDir, filePrefix+domain+".txt"), nil
}

// SaveSubdomains writes hosts newline-joined with no trailing newline,
// replacing any previous file for the same domain.
func (ls *LocalStorage) SaveSubdomains(domain string, hosts []string) (string, error) {
	finalPath, err := ls.PathFor(domain)
	if err != nil {
		return "", err
	}

	ls.mu.Lock()
	defer ls.mu.Unlock()

	tmpFile, err := os.CreateTemp(ls.baseDir, "."+filePrefix+"*.tmp")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmpFile.WriteString(strings.Join(hosts, "\n")); err != nil {
		tmpFile.Close()
		_ = os.Remove(tmpFile.Name())
		return "", fmt.Errorf("write temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		_ = os.Remove(tmpFile.Name())
		return "", fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		_ = os.Remove(tmpFile.Name())
		return "", fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpFile.Name(), 0o644); err != nil {
		_ = os.Remove(tmpFile.Name())
		return "", fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpFile.Name(), finalPath); err != nil {
		_ = os.Remove(tmpFile.Name())
		return "", fmt.Errorf("atomic rename: %w", err)
	}

	ls.logger.WithFields(logrus.Fields{"domain": domain, "path": finalPath}).Debug("subdomains written")
	return finalPath, nil
}

func (ls *LocalStorage) LoadSubdomains(domain string) ([]string, error) {
	path, err := ls.PathFor(domain)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read result file: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	return strings.Split(string(data), "\n"), nil
}

// ListResults returns the domains that have an output file in the base dir.
func (ls *LocalStorage) ListResults() ([]string, error) {
	entries, err := os.ReadDir(ls.baseDir)
	if err != nil {
		return nil, fmt.Errorf("read output directory: %w", err)
	}
	var domains []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, ".txt") {
			continue
		}
		domains = append(domains, strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), ".txt"))
	}
	return domains, nil
}
