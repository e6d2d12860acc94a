package internal

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/lychee-technology/dynaform"
)

// ValidateEventsConfig performs basic sanity checks on the S3 event archive settings.
func ValidateEventsConfig(cfg dynaform.EventsConfig) error {
	if !cfg.Enabled() {
		return nil
	}
	if cfg.S3Region == "" && cfg.S3Endpoint == "" {
		return fmt.Errorf("events: s3Bucket requires s3Region or s3Endpoint")
	}
	if cfg.S3AccessKey != "" && cfg.S3SecretKey == "" {
		return fmt.Errorf("s3AccessKey provided without s3SecretKey")
	}
	if cfg.S3SecretKey != "" && cfg.S3AccessKey == "" {
		return fmt.Errorf("s3SecretKey provided without s3AccessKey")
	}
	return nil
}

// S3HealthCheck attempts a best-effort HTTP ping against a custom S3 endpoint
// (MinIO, localstack). It only proves the endpoint resolves and answers; with
// no custom endpoint configured it does nothing.
func S3HealthCheck(ctx context.Context, cfg dynaform.EventsConfig, timeout time.Duration) error {
	if !cfg.Enabled() || cfg.S3Endpoint == "" {
		return nil
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client := &http.Client{Timeout: timeout}
	req, err := http.NewRequestWithContext(reqCtx, http.MethodHead, cfg.S3Endpoint, nil)
	if err != nil {
		return fmt.Errorf("s3 health request build failed: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("s3 health request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 400 {
		return nil
	}
	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("s3 endpoint reachable but returned auth error: %d", resp.StatusCode)
	}
	return fmt.Errorf("s3 endpoint returned unexpected status: %d", resp.StatusCode)
}
