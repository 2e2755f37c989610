package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"sensormux/pkg/sensormux"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	var err error

	switch cmd {
	case "run":
		err = runCommand(os.Args[2:])
	case "validate":
		err = validateCommand(os.Args[2:])
	case "stats":
		err = statsCommand(os.Args[2:])
	case "dump":
		err = dumpCommand(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		printUsage()
		err = fmt.Errorf("unknown command %q", cmd)
	}

	if err != nil {
		log.Fatalf("sensormuxd %s: %v", cmd, err)
	}
}

func runCommand(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	cfgPath := fs.String("config", "./data/config.yaml", "Path to service configuration file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := sensormux.LoadConfig(*cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	rt, err := sensormux.NewRuntime(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return rt.Run(ctx)
}

func validateCommand(args []string) error {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	cfgPath := fs.String("config", "./data/config.yaml", "Path to configuration file to validate")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if _, err := sensormux.LoadConfig(*cfgPath); err != nil {
		return err
	}
	fmt.Printf("config %s looks good\n", *cfgPath)
	return nil
}

func statsCommand(args []string) error {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	url := fs.String("url", "http://localhost:9100/metrics", "Prometheus metrics endpoint")
	interval := fs.Duration("interval", 2*time.Second, "Refresh interval")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	fmt.Printf("Streaming metrics from %s (Ctrl+C to stop)\n", *url)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := printMetricsSnapshot(*url); err != nil {
				fmt.Fprintf(os.Stderr, "stats error: %v\n", err)
			}
		}
	}
}

func printMetricsSnapshot(url string) error {
	resp, err := http.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	targets := map[string]float64{
		"sensormux_events_dispatched_total": 0,
		"sensormux_batches_dropped_total":   0,
		"sensormux_active_connections":      0,
		"sensormux_active_sensors":          0,
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "#") {
			continue
		}
		for key := range targets {
			if strings.HasPrefix(line, key+" ") {
				var value float64
				if _, err := fmt.Sscanf(line, key+" %f", &value); err == nil {
					targets[key] = value
				}
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	fmt.Printf("[%s] dispatched=%.0f dropped=%.0f connections=%.0f sensors=%.0f\n",
		time.Now().Format(time.RFC3339),
		targets["sensormux_events_dispatched_total"],
		targets["sensormux_batches_dropped_total"],
		targets["sensormux_active_connections"],
		targets["sensormux_active_sensors"],
	)
	return nil
}

func dumpCommand(args []string) error {
	fs := flag.NewFlagSet("dump", flag.ExitOnError)
	url := fs.String("url", "http://localhost:9100/debug/sensors", "Diagnostic dump endpoint")
	token := fs.String("token", "", "Dump access token")
	if err := fs.Parse(args); err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodGet, *url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-Dump-Token", *token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("dump denied: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	_, err = io.Copy(os.Stdout, resp.Body)
	return err
}

func printUsage() {
	fmt.Printf(`sensormuxd - sensor multiplexing daemon

Usage:
  sensormuxd <command> [flags]

Commands:
  run        Start the service using the provided config
  validate   Load and validate a config file without starting the service
  stats      Poll the Prometheus metrics endpoint and print live counters
  dump       Fetch the diagnostic sensor report (requires the dump token)

Examples:
  sensormuxd run -config ./data/config.yaml
  sensormuxd validate -config ./data/config.yaml
  sensormuxd stats -url http://localhost:9100/metrics -interval 1s
  sensormuxd dump -token secret
`)
}
