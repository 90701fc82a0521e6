/**
 * @description
 * Operator tool to take a monetization config out of use. It looks the config up
 * by name through the connection service's internal API, prints it, asks for
 * confirmation and then deactivates it. Connections already created keep the
 * fee split they were priced with.
 *
 * Usage:
 *   go run ./cmd/deactivate-monetization-config <config-name>
 *
 * Example:
 *   go run ./cmd/deactivate-monetization-config DM_FEE_STANDARD
 *
 * @dependencies
 * - github.com/joho/godotenv: reads .env from the working directory or its parent.
 * - Environment variables: INTERNAL_API_KEY, CONNECTION_SERVICE_URL
 */

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// apiError is the error body the connection service returns.
type apiError struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// monetizationConfig is the subset of the config response shown to the operator.
type monetizationConfig struct {
	ConfigID              string      `json:"config_id"`
	ConfigName            string      `json:"config_name"`
	ConnectionFeeBase     json.Number `json:"connection_fee_base"`
	PlatformCutPercentage json.Number `json:"platform_cut_percentage"`
	PosterSharePercentage json.Number `json:"poster_share_percentage"`
	Currency              string      `json:"currency"`
	IsActive              bool        `json:"is_active"`
}

type adminClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func main() {
	if len(os.Args) != 2 {
		fmt.Println("Usage: go run ./cmd/deactivate-monetization-config <config-name>")
		fmt.Println("Example: go run ./cmd/deactivate-monetization-config DM_FEE_STANDARD")
		os.Exit(1)
	}
	configName := strings.TrimSpace(os.Args[1])

	// Load stops at the first missing file, so each candidate is tried alone.
	_ = godotenv.Load(".env")
	_ = godotenv.Load("../.env")

	apiKey := strings.TrimSpace(os.Getenv("INTERNAL_API_KEY"))
	if apiKey == "" {
		apiKey = strings.TrimSpace(os.Getenv("CONNECTION_SERVICE_INTERNAL_API_KEY"))
	}
	if apiKey == "" {
		log.Fatal("INTERNAL_API_KEY environment variable is required")
	}
	baseURL := strings.TrimSpace(os.Getenv("CONNECTION_SERVICE_URL"))
	if baseURL == "" {
		baseURL = "http://localhost:8080"
		fmt.Println("Using default connection service URL:", baseURL)
	}

	client := &adminClient{baseURL: strings.TrimSuffix(baseURL, "/"), apiKey: apiKey, http: &http.Client{Timeout: 15 * time.Second}}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	fmt.Printf("Fetching monetization config %s\n", configName)
	cfg, err := client.findConfig(ctx, configName)
	if err != nil {
		log.Fatalf("Failed to fetch monetization config: %v", err)
	}

	fmt.Printf("Config Details:\n")
	fmt.Printf("  ID: %s\n", cfg.ConfigID)
	fmt.Printf("  Name: %s\n", cfg.ConfigName)
	fmt.Printf("  Fee: %s %s\n", cfg.ConnectionFeeBase, cfg.Currency)
	fmt.Printf("  Split: platform %s / poster %s\n", cfg.PlatformCutPercentage, cfg.PosterSharePercentage)
	fmt.Printf("  Active: %t\n", cfg.IsActive)

	if !cfg.IsActive {
		fmt.Println("Config is already inactive. Nothing to do.")
		return
	}

	fmt.Printf("\nNew connection requests priced with this config will fail until another is activated. Continue? (yes/no): ")
	var confirmation string
	fmt.Scanln(&confirmation)
	if confirmation != "yes" {
		fmt.Println("Deactivation cancelled.")
		os.Exit(0)
	}

	if _, err := client.deactivate(ctx, cfg.ConfigID); err != nil {
		log.Fatalf("Failed to deactivate config: %v", err)
	}
	fmt.Printf("Deactivated monetization config %s\n", cfg.ConfigName)
}

// findConfig returns the config with exactly the given name.
func (c *adminClient) findConfig(ctx context.Context, name string) (*monetizationConfig, error) {
	endpoint := fmt.Sprintf("%s/internal/monetization-configs?config_name=%s", c.baseURL, url.QueryEscape(name))
	var cfgs []monetizationConfig
	if err := c.do(ctx, http.MethodGet, endpoint, &cfgs); err != nil {
		return nil, err
	}
	for i := range cfgs {
		if cfgs[i].ConfigName == name {
			return &cfgs[i], nil
		}
	}
	return nil, fmt.Errorf("no monetization config named %q", name)
}

func (c *adminClient) deactivate(ctx context.Context, configID string) (*monetizationConfig, error) {
	endpoint := fmt.Sprintf("%s/internal/monetization-configs/%s/deactivate", c.baseURL, url.PathEscape(configID))
	var cfg monetizationConfig
	if err := c.do(ctx, http.MethodPost, endpoint, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *adminClient) do(ctx context.Context, method, endpoint string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Internal-API-Key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		var apiErr apiError
		if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error != "" {
			return fmt.Errorf("connection service error: %s (%s)", apiErr.Error, apiErr.Code)
		}
		return fmt.Errorf("connection service error with status %d: %s", resp.StatusCode, string(body))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
