package models

import (
	"encoding/json"
	"time"
)

// Command is an operational command queued in the local ops store and picked
// up by the scheduler on its next poll.
type Command struct {
	ID          int64           `json:"id"`
	Command     string          `json:"command"`
	Params      json.RawMessage `json:"params"`
	CreatedAt   time.Time       `json:"created_at"`
	ProcessedAt *time.Time      `json:"processed_at"`
}

// CommandParams is the optional payload of a command.
type CommandParams struct {
	City         string `json:"city,omitempty"`
	PropertyType string `json:"property_type,omitempty"`
	Target       string `json:"target,omitempty"`
}

// Known commands
const (
	CmdRunScrape    = "run_scrape"
	CmdRunRematch   = "run_rematch"
	CmdRunScoring   = "run_scoring"
	CmdRefreshStats = "refresh_stats"
)

// Batch names tracked in the ops store. A batch marked running blocks a
// second invocation of itself.
const (
	BatchRematch = "rematch"
)

// Log levels for the local run log
type LogLevel string

const (
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)
