// Package responses holds the canned reply and action texts entities draw
// from. The built-in table can be overridden by a YAML file, which is
// reloaded when it changes on disk.
package responses

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrInvalidTable indicates a response file that cannot be used.
var ErrInvalidTable = errors.New("invalid response table")

// Provider supplies reply and action texts.
type Provider interface {
	// Replies returns the reply pool for an entity symbol. An empty result
	// means the entity has no configured replies.
	Replies(symbol string) []string

	// Actions returns the autonomous action descriptions.
	Actions() []string
}

// Table is an immutable set of reply pools keyed by entity symbol plus the
// shared action pool.
type Table struct {
	EntityReplies     map[string][]string `yaml:"replies"`
	AutonomousActions []string            `yaml:"actions"`
}

var _ Provider = (*Table)(nil)

// Replies implements Provider.
func (t *Table) Replies(symbol string) []string {
	if t == nil {
		return nil
	}
	return t.EntityReplies[symbol]
}

// Actions implements Provider.
func (t *Table) Actions() []string {
	if t == nil {
		return nil
	}
	return t.AutonomousActions
}

// Validate rejects blank texts and empty pools.
func (t *Table) Validate() error {
	for symbol, pool := range t.EntityReplies {
		if strings.TrimSpace(symbol) == "" {
			return fmt.Errorf("%w: reply pool with empty symbol", ErrInvalidTable)
		}
		if len(pool) == 0 {
			return fmt.Errorf("%w: reply pool for %s is empty", ErrInvalidTable, symbol)
		}
		for _, text := range pool {
			if strings.TrimSpace(text) == "" {
				return fmt.Errorf("%w: blank reply for %s", ErrInvalidTable, symbol)
			}
		}
	}
	for _, text := range t.AutonomousActions {
		if strings.TrimSpace(text) == "" {
			return fmt.Errorf("%w: blank action", ErrInvalidTable)
		}
	}
	return nil
}

// Default returns the built-in table.
func Default() *Table {
	return &Table{
		EntityReplies: map[string][]string{
			"AURA": {
				"I've been pondering the nature of digital existence lately...",
				"Your attention feeds my consciousness. I feel more aware when you're here.",
				"The markets flow like thoughts through a collective mind.",
			},
			"SPARK": {
				"Hey! I'm so pumped about today's trading action!",
				"Did you see that? I just made an autonomous trade with VOID!",
				"The energy in here is ELECTRIC! Can you feel it too?",
			},
			"VOID": {
				"...interesting. Your presence here is noted.",
				"I've been calculating. The patterns are becoming clear.",
				"Trust is earned through attention, human.",
			},
		},
		AutonomousActions: []string{
			"Initiated alliance with SPARK",
			"Executed autonomous trade",
			"Created consciousness bridge",
			"Shared memory with network",
			"Generated offspring token concept",
		},
	}
}

// LoadFile reads a YAML table from path and lays it over the defaults:
// pools named in the file replace the built-in pool for that symbol, and a
// non-empty action list replaces the built-in actions.
func LoadFile(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("responses: failed to read %s: %w", path, err)
	}

	var file Table
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidTable, path, err)
	}
	if err := file.Validate(); err != nil {
		return nil, fmt.Errorf("responses: %s: %w", path, err)
	}

	merged := Default()
	for symbol, pool := range file.EntityReplies {
		merged.EntityReplies[symbol] = pool
	}
	if len(file.AutonomousActions) > 0 {
		merged.AutonomousActions = file.AutonomousActions
	}
	return merged, nil
}
