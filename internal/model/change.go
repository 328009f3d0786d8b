package model

import "time"

// ChangeType classifies a difference between two snapshots.
type ChangeType string

const (
	ChangeTypeNew     ChangeType = "new"
	ChangeTypeUpdated ChangeType = "updated"
	ChangeTypeRemoved ChangeType = "removed"
)

// ChangedField names a server field the diff engine compares.
type ChangedField string

const (
	FieldDescription ChangedField = "description"
	FieldVersion     ChangedField = "version"
	FieldPackages    ChangedField = "packages"
	FieldRemotes     ChangedField = "remotes"
	FieldRepository  ChangedField = "repository"
)

// FieldChange records one field-level difference on an updated server.
// OldValue/NewValue hold rendered values, not raw structs, so they stay
// stable under serialization.
type FieldChange struct {
	Field    ChangedField `json:"field"`
	OldValue string       `json:"old_value,omitempty"`
	NewValue string       `json:"new_value,omitempty"`
}

// Change is one classified difference (new/updated/removed) for a named
// server between two snapshots. Created exclusively by the diff engine
// and never mutated downstream.
type Change struct {
	ID              string        `json:"id"`
	ServerName      string        `json:"server_name"`
	ChangeType      ChangeType    `json:"change_type"`
	PreviousVersion string        `json:"previous_version,omitempty"`
	NewVersion      string        `json:"new_version,omitempty"`
	FieldChanges    []FieldChange `json:"field_changes,omitempty"`
	Server          *Server       `json:"server,omitempty"`
	PreviousServer  *Server       `json:"previous_server,omitempty"`
	DetectedAt      time.Time     `json:"detected_at"`
}

// DiffResult is the classified outcome of comparing two snapshots. Each
// list is sorted lexicographically by server name so output is
// deterministic regardless of map iteration order.
type DiffResult struct {
	FromSnapshot   *Snapshot `json:"from_snapshot,omitempty"`
	ToSnapshot     *Snapshot `json:"to_snapshot,omitempty"`
	NewServers     []*Change `json:"new_servers"`
	UpdatedServers []*Change `json:"updated_servers"`
	RemovedServers []*Change `json:"removed_servers"`
	TotalChanges   int       `json:"total_changes"`
}

// AllChanges returns the three change lists concatenated in
// new, updated, removed order.
func (d *DiffResult) AllChanges() []*Change {
	out := make([]*Change, 0, d.TotalChanges)
	out = append(out, d.NewServers...)
	out = append(out, d.UpdatedServers...)
	out = append(out, d.RemovedServers...)
	return out
}
