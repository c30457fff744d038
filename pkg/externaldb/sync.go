package externaldb

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"health-analyzer/pkg/canonical"
)

// DefaultSyncTimeout bounds the external fetch command.  The timeout covers
// the whole process tree: a wedged downloader gets killed, not waited on.
const DefaultSyncTimeout = 10 * time.Minute

// Syncer runs an external fetch command and then imports the export database
// it refreshed.  The command is optional — with an empty Command the Syncer
// just re-imports whatever is on disk.
type Syncer struct {
	Command string // shell command that refreshes the export database
	Timeout time.Duration
	DBPath  string
	Days    int
	UserID  int64
	Store   canonical.Store
}

// Run executes one sync cycle: fetch, then import.
func (s *Syncer) Run(ctx context.Context) (*canonical.ImportResult, error) {
	if s.Command != "" {
		if err := s.fetch(ctx); err != nil {
			return nil, err
		}
	}
	return Import(ctx, s.DBPath, s.UserID, s.Days, s.Store)
}

func (s *Syncer) fetch(ctx context.Context) error {
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = DefaultSyncTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "/bin/sh", "-c", s.Command)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("sync command: %w: %s", err, tailOf(out, 500))
	}
	return nil
}

// tailOf keeps the last n bytes of command output for the error message —
// the failure reason is at the end, not the start.
func tailOf(out []byte, n int) string {
	s := strings.TrimSpace(string(out))
	if len(s) > n {
		s = "..." + s[len(s)-n:]
	}
	return s
}
