package diff

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"regwatch/internal/model"
)

// HasChanges is the O(1) fast path: it answers whether two snapshots can
// differ without walking their servers. A nil snapshot on either side is
// conservatively treated as changed.
func HasChanges(from, to *model.Snapshot) bool {
	if from == nil || to == nil {
		return true
	}
	return from.Hash != to.Hash
}

// Compare classifies every difference between two snapshots. A nil `to`
// yields an empty result (nothing meaningful to compare against); a nil
// `from` classifies every server in `to` as new. The three result lists
// are sorted by server name for deterministic output.
func Compare(from, to *model.Snapshot) *model.DiffResult {
	result := &model.DiffResult{
		FromSnapshot:   from,
		ToSnapshot:     to,
		NewServers:     []*model.Change{},
		UpdatedServers: []*model.Change{},
		RemovedServers: []*model.Change{},
	}
	if to == nil {
		return result
	}
	now := time.Now().UTC()

	for name, cur := range to.Servers {
		var prev *model.Server
		if from != nil {
			prev = from.Servers[name]
		}
		if prev == nil {
			result.NewServers = append(result.NewServers, &model.Change{
				ID:         uuid.New().String(),
				ServerName: name,
				ChangeType: model.ChangeTypeNew,
				NewVersion: cur.Version(),
				Server:     cur,
				DetectedAt: now,
			})
			continue
		}
		fields := compareServers(prev, cur)
		if len(fields) == 0 {
			continue
		}
		result.UpdatedServers = append(result.UpdatedServers, &model.Change{
			ID:              uuid.New().String(),
			ServerName:      name,
			ChangeType:      model.ChangeTypeUpdated,
			PreviousVersion: prev.Version(),
			NewVersion:      cur.Version(),
			FieldChanges:    fields,
			Server:          cur,
			PreviousServer:  prev,
			DetectedAt:      now,
		})
	}

	if from != nil {
		for name, prev := range from.Servers {
			if _, ok := to.Servers[name]; ok {
				continue
			}
			result.RemovedServers = append(result.RemovedServers, &model.Change{
				ID:              uuid.New().String(),
				ServerName:      name,
				ChangeType:      model.ChangeTypeRemoved,
				PreviousVersion: prev.Version(),
				PreviousServer:  prev,
				DetectedAt:      now,
			})
		}
	}

	sortChanges(result.NewServers)
	sortChanges(result.UpdatedServers)
	sortChanges(result.RemovedServers)
	result.TotalChanges = len(result.NewServers) + len(result.UpdatedServers) + len(result.RemovedServers)
	return result
}

func sortChanges(changes []*model.Change) {
	sort.Slice(changes, func(i, j int) bool {
		return changes[i].ServerName < changes[j].ServerName
	})
}

// compareServers returns the field-level differences between two
// observations of the same server. Equality is structural: packages and
// remotes compare as sets, repository and version detail by value.
func compareServers(prev, cur *model.Server) []model.FieldChange {
	var fields []model.FieldChange

	if prev.Description != cur.Description {
		fields = append(fields, model.FieldChange{
			Field:    model.FieldDescription,
			OldValue: prev.Description,
			NewValue: cur.Description,
		})
	}
	if prev.Version() != cur.Version() {
		fields = append(fields, model.FieldChange{
			Field:    model.FieldVersion,
			OldValue: prev.Version(),
			NewValue: cur.Version(),
		})
	}
	if !packagesEqual(prev.Packages, cur.Packages) {
		fields = append(fields, model.FieldChange{
			Field:    model.FieldPackages,
			OldValue: renderPackages(prev.Packages),
			NewValue: renderPackages(cur.Packages),
		})
	}
	if !remotesEqual(prev.Remotes, cur.Remotes) {
		fields = append(fields, model.FieldChange{
			Field:    model.FieldRemotes,
			OldValue: renderRemotes(prev.Remotes),
			NewValue: renderRemotes(cur.Remotes),
		})
	}
	if !repositoryEqual(prev.Repository, cur.Repository) {
		fields = append(fields, model.FieldChange{
			Field:    model.FieldRepository,
			OldValue: renderRepository(prev.Repository),
			NewValue: renderRepository(cur.Repository),
		})
	}
	return fields
}

// packagesEqual compares package sets keyed by registryType:name,
// requiring matching version and URL per key.
func packagesEqual(a, b []model.Package) bool {
	if len(a) != len(b) {
		return false
	}
	idx := make(map[string]model.Package, len(a))
	for _, p := range a {
		idx[p.RegistryType+":"+p.Name] = p
	}
	for _, p := range b {
		prev, ok := idx[p.RegistryType+":"+p.Name]
		if !ok || prev.Version != p.Version || prev.URL != p.URL {
			return false
		}
	}
	return true
}

// remotesEqual compares remote sets keyed by transportType:url.
func remotesEqual(a, b []model.Remote) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]struct{}, len(a))
	for _, r := range a {
		seen[r.TransportType+":"+r.URL] = struct{}{}
	}
	for _, r := range b {
		if _, ok := seen[r.TransportType+":"+r.URL]; !ok {
			return false
		}
	}
	return true
}

func repositoryEqual(a, b *model.Repository) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.URL == b.URL && a.Source == b.Source
}

func renderPackages(pkgs []model.Package) string {
	if len(pkgs) == 0 {
		return ""
	}
	parts := make([]string, 0, len(pkgs))
	for _, p := range pkgs {
		if p.Version != "" {
			parts = append(parts, fmt.Sprintf("%s:%s@%s", p.RegistryType, p.Name, p.Version))
		} else {
			parts = append(parts, fmt.Sprintf("%s:%s", p.RegistryType, p.Name))
		}
	}
	sort.Strings(parts)
	return strings.Join(parts, ", ")
}

func renderRemotes(remotes []model.Remote) string {
	if len(remotes) == 0 {
		return ""
	}
	parts := make([]string, 0, len(remotes))
	for _, r := range remotes {
		parts = append(parts, fmt.Sprintf("%s %s", r.TransportType, r.URL))
	}
	sort.Strings(parts)
	return strings.Join(parts, ", ")
}

func renderRepository(r *model.Repository) string {
	if r == nil {
		return ""
	}
	if r.Source != "" {
		return fmt.Sprintf("%s (%s)", r.URL, r.Source)
	}
	return r.URL
}
