package sandbox

import (
	"context"
	"log"
	"os"
	"os/exec"
	"strings"
	"time"
)

// Mode selects the execution backend.
type Mode string

const (
	// ModeDocker uses Docker containers for isolation.
	ModeDocker Mode = "docker"
	// ModeHost runs snippets directly on the host (no isolation).
	ModeHost Mode = "host"
	// ModeAuto selects Docker when available, host otherwise.
	ModeAuto Mode = "auto"
)

// Config holds sandbox settings, read from IBIS_* environment variables.
type Config struct {
	Mode        Mode
	DockerImage string        // image override, default python:3.12-slim
	CPU         string        // CPU limit, e.g. "2"
	Memory      string        // memory limit, e.g. "512m"
	CmdTimeout  time.Duration // default execution timeout
}

// DefaultConfig reads the sandbox configuration from the environment.
func DefaultConfig() Config {
	modeStr := strings.ToLower(os.Getenv("IBIS_SANDBOX_MODE"))
	var mode Mode
	switch modeStr {
	case "docker":
		mode = ModeDocker
	case "host":
		mode = ModeHost
	case "", "auto":
		mode = ModeAuto
	default:
		log.Printf("WARNING: Unknown IBIS_SANDBOX_MODE value '%s', defaulting to 'auto'", modeStr)
		mode = ModeAuto
	}

	cmdTimeout := 60 * time.Second
	if timeoutStr := os.Getenv("IBIS_CMD_TIMEOUT"); timeoutStr != "" {
		if d, err := time.ParseDuration(timeoutStr); err == nil && d > 0 {
			cmdTimeout = d
		} else {
			log.Printf("WARNING: Invalid IBIS_CMD_TIMEOUT value '%s', using default 60s", timeoutStr)
		}
	}

	return Config{
		Mode:        mode,
		DockerImage: getEnvOrDefault("IBIS_DOCKER_IMAGE", "python:3.12-slim"),
		CPU:         getEnvOrDefault("IBIS_DOCKER_CPU", "1"),
		Memory:      getEnvOrDefault("IBIS_DOCKER_MEMORY", "512m"),
		CmdTimeout:  cmdTimeout,
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultValue
}

// IsDockerAvailable checks if Docker is available and accessible.
func IsDockerAvailable(ctx context.Context) bool {
	cmd := exec.CommandContext(ctx, "docker", "ps")
	return cmd.Run() == nil
}

// NewDefaultRunner creates a runner per the configured mode, falling
// back to the host runner when Docker cannot serve.
func NewDefaultRunner() Runner {
	config := DefaultConfig()
	ctx := context.Background()

	switch config.Mode {
	case ModeDocker, ModeAuto:
		if IsDockerAvailable(ctx) {
			runner, err := NewDockerRunner(config)
			if err == nil {
				return runner
			}
			log.Printf("WARNING: Failed to create Docker runner: %v. Falling back to host executor.", err)
		} else if config.Mode == ModeDocker {
			log.Printf("WARNING: Docker mode requested but Docker is not available. Falling back to host executor.")
		}
		log.Printf("WARNING: Using host executor (no sandboxing). Model-written code runs unconfined.")
		return &HostRunner{config: config}

	default:
		log.Printf("WARNING: Using host executor (no sandboxing). Model-written code runs unconfined.")
		return &HostRunner{config: config}
	}
}
