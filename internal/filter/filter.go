package filter

import (
	"strings"

	"regwatch/internal/model"
)

// MatchesFilter reports whether a single change satisfies every populated
// field of the filter. Populated fields are ANDed; values within a field
// are ORed; an empty field imposes no constraint, so the zero filter
// matches everything.
func MatchesFilter(change *model.Change, f *model.SubscriptionFilter) bool {
	if change == nil {
		return false
	}
	if f == nil {
		return true
	}
	if len(f.ChangeTypes) > 0 && !containsChangeType(f.ChangeTypes, change.ChangeType) {
		return false
	}
	if len(f.Servers) > 0 && !containsString(f.Servers, change.ServerName) {
		return false
	}
	if len(f.Namespaces) > 0 && !matchesAnyNamespace(f.Namespaces, change.ServerName) {
		return false
	}
	if len(f.Keywords) > 0 && !matchesAnyKeyword(f.Keywords, change) {
		return false
	}
	if len(f.PackageTypes) > 0 && !matchesAnyPackageType(f.PackageTypes, change.Server) {
		return false
	}
	return true
}

// FilterChanges applies MatchesFilter to each list of a diff result
// independently, preserving per-list order, and recomputes the total.
func FilterChanges(result *model.DiffResult, f *model.SubscriptionFilter) *model.DiffResult {
	filtered := &model.DiffResult{
		FromSnapshot:   result.FromSnapshot,
		ToSnapshot:     result.ToSnapshot,
		NewServers:     filterList(result.NewServers, f),
		UpdatedServers: filterList(result.UpdatedServers, f),
		RemovedServers: filterList(result.RemovedServers, f),
	}
	filtered.TotalChanges = len(filtered.NewServers) + len(filtered.UpdatedServers) + len(filtered.RemovedServers)
	return filtered
}

func filterList(changes []*model.Change, f *model.SubscriptionFilter) []*model.Change {
	out := []*model.Change{}
	for _, c := range changes {
		if MatchesFilter(c, f) {
			out = append(out, c)
		}
	}
	return out
}

// MatchNamespace evaluates the restricted glob grammar against a server
// name: "*" alone matches anything, "prefix/*" matches the prefix
// followed by anything, a trailing "*" without a slash matches by prefix,
// and a pattern with no wildcard is an exact match. No other glob
// metacharacters are supported.
func MatchNamespace(pattern, name string) bool {
	switch {
	case pattern == "*":
		return true
	case strings.HasSuffix(pattern, "/*"):
		return strings.HasPrefix(name, strings.TrimSuffix(pattern, "*"))
	case strings.HasSuffix(pattern, "*"):
		return strings.HasPrefix(name, strings.TrimSuffix(pattern, "*"))
	default:
		return pattern == name
	}
}

func matchesAnyNamespace(patterns []string, name string) bool {
	for _, p := range patterns {
		if MatchNamespace(p, name) {
			return true
		}
	}
	return false
}

// matchesAnyKeyword does a case-insensitive substring search over
// "name + ' ' + description". Description comes from the change's server
// reference when present.
func matchesAnyKeyword(keywords []string, change *model.Change) bool {
	desc := ""
	if change.Server != nil {
		desc = change.Server.Description
	}
	haystack := strings.ToLower(change.ServerName + " " + desc)
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(haystack, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// matchesAnyPackageType checks the server's packages for one of the
// listed registry types. A change without a server reference cannot
// satisfy a package-type constraint.
func matchesAnyPackageType(types []string, server *model.Server) bool {
	if server == nil {
		return false
	}
	for _, p := range server.Packages {
		for _, t := range types {
			if strings.EqualFold(p.RegistryType, t) {
				return true
			}
		}
	}
	return false
}

func containsChangeType(set []model.ChangeType, t model.ChangeType) bool {
	for _, v := range set {
		if v == t {
			return true
		}
	}
	return false
}

func containsString(set []string, s string) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}
