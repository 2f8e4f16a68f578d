package compose

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// ErrEngineUnavailable indicates no usable rendering-engine binary could
// be resolved.
var ErrEngineUnavailable = errors.New("rendering engine unavailable")

// Engine resolves the headless browser binary to launch. Callers of the
// compositor never learn which strategy ran.
type Engine interface {
	ExecPath(ctx context.Context) (string, error)
}

// NewEngine selects the strategy once at process start. "remote" is for
// constrained environments that ship no browser; anything else expects a
// full engine on PATH.
func NewEngine(kind, urls, cacheDir string) (Engine, error) {
	switch kind {
	case "remote":
		var list []string
		for _, u := range strings.Split(urls, ",") {
			if u = strings.TrimSpace(u); u != "" {
				list = append(list, u)
			}
		}
		if len(list) == 0 {
			return nil, fmt.Errorf("remote engine selected but no source URLs configured")
		}
		return NewRemoteEngine(list, cacheDir), nil
	default:
		return LocalEngine{}, nil
	}
}

// LocalEngine uses a chromium installed on the host.
type LocalEngine struct{}

func (LocalEngine) ExecPath(context.Context) (string, error) {
	for _, name := range []string{"chromium-browser", "chromium", "google-chrome"} {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w: chromium not installed", ErrEngineUnavailable)
}

// RemoteEngine fetches a minimal headless-shell binary from the first
// reachable of several configured source URLs and caches it on disk, so
// the download happens at most once per deployment.
type RemoteEngine struct {
	urls     []string
	cacheDir string
	client   *http.Client

	mu sync.Mutex
}

func NewRemoteEngine(urls []string, cacheDir string) *RemoteEngine {
	return &RemoteEngine{
		urls:     urls,
		cacheDir: cacheDir,
		client:   &http.Client{Timeout: 2 * time.Minute},
	}
}

func (e *RemoteEngine) binaryPath() string {
	return filepath.Join(e.cacheDir, "headless-shell")
}

func (e *RemoteEngine) ExecPath(ctx context.Context) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	path := e.binaryPath()
	if info, err := os.Stat(path); err == nil && info.Size() > 0 {
		return path, nil
	}

	if err := os.MkdirAll(e.cacheDir, 0o755); err != nil {
		return "", fmt.Errorf("create engine cache dir: %w", err)
	}

	var lastErr error
	for _, url := range e.urls {
		if err := e.fetch(ctx, url, path); err != nil {
			lastErr = err
			continue
		}
		return path, nil
	}
	return "", fmt.Errorf("%w: all sources failed: %v", ErrEngineUnavailable, lastErr)
}

func (e *RemoteEngine) fetch(ctx context.Context, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build engine request: %w", err)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch engine from %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch engine from %s: unexpected status %d", url, resp.StatusCode)
	}

	tmp, err := os.CreateTemp(e.cacheDir, "headless-shell-*")
	if err != nil {
		return fmt.Errorf("create engine temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return fmt.Errorf("write engine binary: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close engine binary: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o755); err != nil {
		return fmt.Errorf("chmod engine binary: %w", err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return fmt.Errorf("install engine binary: %w", err)
	}
	return nil
}
