// Package probes provides stock pre-flight checks and phase functions:
// reachability-level validation only. Real data/strategy validation and
// broker connectivity live outside this repository and plug in through the
// same signatures.
package probes

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/quantford/tradepilot/internal/domain"
	"github.com/quantford/tradepilot/internal/runner"
	"github.com/quantford/tradepilot/internal/scheduler"
)

// FileCheck passes when path exists and is a regular, non-empty file.
// Missing path is critical; an empty file is a warning.
func FileCheck(path string) runner.CheckFunc {
	return func() (*domain.CheckResult, error) {
		if path == "" {
			return &domain.CheckResult{
				Status:  domain.CheckStatusWarning,
				Message: "no path configured",
			}, nil
		}
		info, err := os.Stat(path)
		if err != nil {
			return &domain.CheckResult{
				Status:  domain.CheckStatusCritical,
				Message: fmt.Sprintf("artifact missing: %v", err),
				Details: map[string]interface{}{"path": path},
			}, nil
		}
		if info.IsDir() {
			return &domain.CheckResult{
				Status:  domain.CheckStatusCritical,
				Message: "artifact path is a directory",
				Details: map[string]interface{}{"path": path},
			}, nil
		}
		if info.Size() == 0 {
			return &domain.CheckResult{
				Status:  domain.CheckStatusWarning,
				Message: "artifact is empty",
				Details: map[string]interface{}{"path": path},
			}, nil
		}
		return &domain.CheckResult{
			Status:  domain.CheckStatusSuccess,
			Message: "artifact present",
			Details: map[string]interface{}{"path": path, "size_bytes": info.Size()},
		}, nil
	}
}

// HTTPCheck passes when a GET against url answers with a 2xx/3xx status
// within the timeout.
func HTTPCheck(url string, timeout time.Duration) runner.CheckFunc {
	client := &http.Client{Timeout: timeout}
	return func() (*domain.CheckResult, error) {
		if url == "" {
			return &domain.CheckResult{
				Status:  domain.CheckStatusWarning,
				Message: "no endpoint configured",
			}, nil
		}
		resp, err := client.Get(url)
		if err != nil {
			return &domain.CheckResult{
				Status:  domain.CheckStatusCritical,
				Message: fmt.Sprintf("endpoint unreachable: %v", err),
				Details: map[string]interface{}{"url": url},
			}, nil
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 400 {
			return &domain.CheckResult{
				Status:  domain.CheckStatusCritical,
				Message: fmt.Sprintf("endpoint answered %d", resp.StatusCode),
				Details: map[string]interface{}{"url": url, "status_code": resp.StatusCode},
			}, nil
		}
		return &domain.CheckResult{
			Status:  domain.CheckStatusSuccess,
			Message: "endpoint reachable",
			Details: map[string]interface{}{"url": url, "status_code": resp.StatusCode},
		}, nil
	}
}

// CheckAsPhase adapts a pre-flight check into a phase function, so the stock
// binary can run end to end with reachability-level phases.
func CheckAsPhase(check runner.CheckFunc) scheduler.PhaseFunc {
	return func() (map[string]interface{}, error) {
		res, err := check()
		if err != nil {
			return nil, err
		}
		status := "success"
		if res.Status == domain.CheckStatusCritical {
			status = "failed"
		}
		return map[string]interface{}{
			"status":  status,
			"message": res.Message,
			"details": res.Details,
		}, nil
	}
}
