// Package state keeps the history of install runs on the provisioned server.
package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/user"
	"path"
	"sort"
	"time"

	"github.com/redentordev/laravel-vps/pkg/host"
)

// MaxHistoryEntries is the maximum number of runs to keep
const MaxHistoryEntries = 50

// HistoryManager stores run records in <dir>/history.json on the host.
type HistoryManager struct {
	host host.Host
	dir  string
}

// NewHistoryManager creates a new history manager
func NewHistoryManager(h host.Host, dir string) *HistoryManager {
	return &HistoryManager{host: h, dir: dir}
}

func (s *HistoryManager) historyPath() string {
	return path.Join(s.dir, "history.json")
}

// Save adds or replaces a record and trims the history to MaxHistoryEntries.
func (s *HistoryManager) Save(ctx context.Context, rec *RunRecord) error {
	history, err := s.load(ctx)
	if err != nil {
		return err
	}

	found := false
	for i, r := range history.Runs {
		if r.ID == rec.ID {
			history.Runs[i] = rec
			found = true
			break
		}
	}
	if !found {
		history.Runs = append(history.Runs, rec)
	}
	sortNewestFirst(history.Runs)
	if len(history.Runs) > MaxHistoryEntries {
		history.Runs = history.Runs[:MaxHistoryEntries]
	}
	history.LastUpdated = time.Now()

	data, err := json.MarshalIndent(history, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize history: %w", err)
	}

	// Write then rename so a crash never leaves a truncated history.
	tmp := s.historyPath() + ".tmp"
	if err := s.host.WriteFile(ctx, tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write history: %w", err)
	}
	if err := s.host.Rename(ctx, tmp, s.historyPath()); err != nil {
		_ = s.host.Remove(ctx, tmp)
		return fmt.Errorf("failed to write history: %w", err)
	}
	return nil
}

// List returns runs newest first.
func (s *HistoryManager) List(ctx context.Context, opts *HistoryOptions) ([]*RunRecord, error) {
	if opts == nil {
		opts = &HistoryOptions{Limit: 10}
	}
	history, err := s.load(ctx)
	if err != nil {
		return nil, err
	}

	var result []*RunRecord
	for _, r := range history.Runs {
		if opts.Status != "" && r.Status != opts.Status {
			continue
		}
		if opts.Project != "" && r.Project != opts.Project {
			continue
		}
		if !opts.Since.IsZero() && r.Timestamp.Before(opts.Since) {
			continue
		}
		result = append(result, r)
	}
	sortNewestFirst(result)

	if opts.Limit > 0 && len(result) > opts.Limit {
		result = result[:opts.Limit]
	}
	return result, nil
}

// LatestSuccessful returns the most recent successful run of project.
func (s *HistoryManager) LatestSuccessful(ctx context.Context, project string) (*RunRecord, error) {
	runs, err := s.List(ctx, &HistoryOptions{Status: StatusSuccess, Project: project, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, fmt.Errorf("no successful runs found for %s", project)
	}
	return runs[0], nil
}

func (s *HistoryManager) load(ctx context.Context) (*RunHistory, error) {
	data, err := s.host.ReadFile(ctx, s.historyPath())
	if errors.Is(err, host.ErrNotExist) {
		return &RunHistory{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}
	var history RunHistory
	if err := json.Unmarshal(data, &history); err != nil {
		return nil, fmt.Errorf("failed to parse history: %w", err)
	}
	return &history, nil
}

func sortNewestFirst(runs []*RunRecord) {
	sort.SliceStable(runs, func(i, j int) bool {
		return runs[i].Timestamp.After(runs[j].Timestamp)
	})
}

// GetCurrentUser returns the current system user for run tracking
func GetCurrentUser() string {
	if u, err := user.Current(); err == nil {
		return u.Username
	}
	if hostname, err := os.Hostname(); err == nil {
		return fmt.Sprintf("user@%s", hostname)
	}
	return "unknown"
}

// FormatRunID shortens a run ID for display
func FormatRunID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// FormatDuration formats a duration for display
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%.1fm", d.Minutes())
}
