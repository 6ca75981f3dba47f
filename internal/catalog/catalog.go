package catalog

import (
	"sort"

	"chatbridge/internal/models"
)

// defaultDescriptor is returned for any model identifier not in the table.
var defaultDescriptor = models.ModelDescriptor{
	UpstreamID: "9",
	Name:       "grok-3-reasoning",
	Provider:   "GROK",
}

// Table maps downstream model identifiers to upstream model descriptors.
// It is built once at startup and read-only afterwards.
type Table struct {
	entries  map[string]models.ModelDescriptor
	fallback models.ModelDescriptor
}

// Default returns the built-in model mapping table.
func Default() *Table {
	return &Table{
		entries: map[string]models.ModelDescriptor{
			"gpt-4o-mini":       {UpstreamID: "1", Name: "gpt-4o-mini", Provider: "OPENAI"},
			"claude-3-5-sonnet": {UpstreamID: "3", Name: "claude-3.5-sonnet", Provider: "CLAUDE"},
			"claude-3-7-sonnet": {UpstreamID: "4", Name: "claude-3.7-sonnet", Provider: "CLAUDE"},
			"grok-3":            {UpstreamID: "5", Name: "grok-3", Provider: "GROK"},
			"gpt-4o":            {UpstreamID: "7", Name: "gpt-4o", Provider: "OPENAI"},
			"deepseek-r1":       {UpstreamID: "8", Name: "deepseek-r1", Provider: "DEEPSEEK"},
			"grok-3-reasoning":  defaultDescriptor,
		},
		fallback: defaultDescriptor,
	}
}

// Resolve returns the descriptor for the given downstream model identifier.
// Unknown identifiers resolve to the default descriptor, never an error.
func (t *Table) Resolve(modelID string) models.ModelDescriptor {
	if desc, ok := t.entries[modelID]; ok {
		return desc
	}
	return t.fallback
}

// IDs lists the downstream model identifiers known to the table, sorted.
func (t *Table) IDs() []string {
	ids := make([]string, 0, len(t.entries))
	for id := range t.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
