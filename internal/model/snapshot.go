package model

import "time"

// Snapshot is an immutable capture of the full registry at one point in
// time. Hash is a content digest over every server's identity-relevant
// fields, independent of input order: two snapshots with equal Hash are
// equivalent for change detection even if they are distinct objects.
type Snapshot struct {
	ID          string             `json:"id"`
	Timestamp   time.Time          `json:"timestamp"`
	ServerCount int                `json:"server_count"`
	Servers     map[string]*Server `json:"servers"`
	Hash        string             `json:"hash"`
}
