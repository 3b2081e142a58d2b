package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"refinery/internal/config"
	"refinery/internal/services"
	"refinery/internal/services/llm"
)

const (
	serviceCheckTimeout = 30 * time.Second
	serviceCheckPrompt  = "Reply with the single word OK."
)

// CheckService sends one tiny request to the text service. It makes a single
// attempt with a 30-second timeout; a rate-limited reply still proves the
// credentials work.
func CheckService(ctx context.Context, name string, svc llm.Service) Result {
	if svc == nil {
		return Result{Name: name, Detail: "not configured"}
	}
	checkCtx, cancel := context.WithTimeout(ctx, serviceCheckTimeout)
	defer cancel()

	start := time.Now()
	_, err := svc.Generate(checkCtx, llm.Request{Prompt: serviceCheckPrompt, MaxTokens: 5, Temperature: 0})
	elapsed := time.Since(start).Round(time.Millisecond)
	if err == nil {
		return Result{Name: name, Passed: true, Detail: fmt.Sprintf("reachable (%s)", elapsed)}
	}
	if services.KindOf(err) == services.KindRateLimited {
		return Result{Name: name, Passed: true, Detail: "reachable but rate limited"}
	}
	return Result{Name: name, Detail: summarizeServiceError(err)}
}

// CheckCredentials reports whether an API key is available for the provider.
func CheckCredentials(cfg *config.Config) Result {
	name := "API key"
	if cfg == nil {
		return Result{Name: name, Detail: "no configuration"}
	}
	name = fmt.Sprintf("API key (%s)", cfg.LLM.Provider)
	if err := cfg.RequireAPIKey(); err != nil {
		return Result{Name: name, Detail: "missing"}
	}
	return Result{Name: name, Passed: true, Detail: "present"}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckCreatableDirectory passes when path is a usable directory or can be
// created under its nearest existing parent. Stage directories are created
// lazily, so a missing one is not an error by itself.
func CheckCreatableDirectory(name, path string) Result {
	if _, err := os.Stat(path); err == nil {
		return CheckDirectoryAccess(name, path)
	}
	parent := filepath.Dir(path)
	for {
		if _, err := os.Stat(parent); err == nil {
			break
		}
		next := filepath.Dir(parent)
		if next == parent {
			break
		}
		parent = next
	}
	check := CheckDirectoryAccess(name, parent)
	if !check.Passed {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: cannot be created: %s)", path, check.Detail)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (will be created)", path)}
}

// summarizeServiceError produces a human-readable summary for service check failures.
func summarizeServiceError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "check timed out (service unresponsive)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "check timed out (service unreachable)"
	}
	var status *llm.StatusError
	if errors.As(err, &status) && (status.StatusCode == 401 || status.StatusCode == 403) {
		return "authentication failed (invalid api key)"
	}
	return strings.TrimSpace(err.Error())
}
