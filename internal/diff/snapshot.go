package diff

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/google/uuid"

	"regwatch/internal/model"
)

// CreateSnapshot captures the given server list as an immutable snapshot
// with a content hash. The hash is computed over each server's
// identity-relevant fields in sorted name order, so snapshots of the same
// logical set always hash identically regardless of input order.
func CreateSnapshot(servers []*model.Server) *model.Snapshot {
	byName := make(map[string]*model.Server, len(servers))
	for _, s := range servers {
		if s == nil || s.Name == "" {
			continue
		}
		byName[s.Name] = s
	}

	return &model.Snapshot{
		ID:          uuid.New().String(),
		Timestamp:   time.Now().UTC(),
		ServerCount: len(byName),
		Servers:     byName,
		Hash:        hashServers(byName),
	}
}

// hashServers digests the identity fields of every server in sorted name
// order. An empty map is valid and yields the digest of the empty input.
func hashServers(byName map[string]*model.Server) string {
	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)

	h := sha256.New()
	for _, name := range names {
		s := byName[name]
		writeField(h, s.Name)
		writeField(h, s.Description)
		writeField(h, s.Version())
		writeField(h, renderRepository(s.Repository))

		pkgs := make([]string, 0, len(s.Packages))
		for _, p := range s.Packages {
			pkgs = append(pkgs, fmt.Sprintf("%s:%s:%s:%s", p.RegistryType, p.Name, p.Version, p.URL))
		}
		sort.Strings(pkgs)
		for _, p := range pkgs {
			writeField(h, p)
		}

		remotes := make([]string, 0, len(s.Remotes))
		for _, r := range s.Remotes {
			remotes = append(remotes, fmt.Sprintf("%s:%s", r.TransportType, r.URL))
		}
		sort.Strings(remotes)
		for _, r := range remotes {
			writeField(h, r)
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

// writeField writes a length-prefixed field so adjacent values cannot
// collide ("ab"+"c" vs "a"+"bc").
func writeField(w io.Writer, v string) {
	fmt.Fprintf(w, "%d:%s\n", len(v), v)
}
