package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

const defaultConfigYAML = `# taskmanager configuration
# Priority: CLI flag > TASKMANAGER_* environment > this file > default.

server:
  port: 8080
  log_level: info         # debug | info | warn | error
  shutdown_timeout: 10s

scheduler:
  max_concurrent_operations: 4
  queue_size: 0           # 0 leaves the queue unbounded
  worker_count: 0         # 0 matches max_concurrent_operations
  # coalesce_types: [1]   # duplicates of these types join the queued instance
  # serialize_types: [2]  # these types run one after another

retry:
  max_attempts: 3
  initial_backoff: 100ms
  max_backoff: 5s
  multiplier: 2
  jitter: none            # none | full | equal

telemetry:
  metrics_enabled: true
  tracing_enabled: false  # spans are written to stderr
  service_name: taskmanager
`

func newInitCmd(opts *cliOptions) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		Long: `Write the default configuration.

If --config is given the file is written to that path, otherwise to
./taskmanager.yaml. Fails if the file already exists unless --force is passed.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dest := opts.cfgFile
			if dest == "" {
				dest = "taskmanager.yaml"
			}

			if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
				return fmt.Errorf("mkdir: %w", err)
			}

			if !force {
				if _, err := os.Stat(dest); err == nil {
					return fmt.Errorf("%s already exists (use --force to overwrite)", dest)
				} else if !errors.Is(err, os.ErrNotExist) {
					return fmt.Errorf("stat %s: %w", dest, err)
				}
			}

			if err := os.WriteFile(dest, []byte(defaultConfigYAML), 0o644); err != nil {
				return fmt.Errorf("write config: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "config written to %s\n", dest)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing config file")
	return cmd
}
