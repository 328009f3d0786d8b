package model

import "time"

// Server is a single registry entry: a named service with its published
// packages and remote endpoints. Values are immutable once captured in a
// Snapshot; a new observation produces a new value under the same name.
type Server struct {
	Name          string         `json:"name"`
	Description   string         `json:"description,omitempty"`
	Repository    *Repository    `json:"repository,omitempty"`
	VersionDetail *VersionDetail `json:"version_detail,omitempty"`
	Packages      []Package      `json:"packages,omitempty"`
	Remotes       []Remote       `json:"remotes,omitempty"`
	CreatedAt     time.Time      `json:"created_at,omitzero"`
	UpdatedAt     time.Time      `json:"updated_at,omitzero"`
}

// Repository points at the source repository backing a server.
type Repository struct {
	URL    string `json:"url"`
	Source string `json:"source,omitempty"`
}

// VersionDetail describes the published version of a server.
type VersionDetail struct {
	Version  string `json:"version"`
	IsLatest bool   `json:"is_latest,omitempty"`
}

// Package is one installable artifact of a server in some package registry.
type Package struct {
	RegistryType string `json:"registry_type"`
	Name         string `json:"name"`
	Version      string `json:"version,omitempty"`
	URL          string `json:"url,omitempty"`
}

// Remote is a network endpoint a server is reachable at.
type Remote struct {
	TransportType string `json:"transport_type"`
	URL           string `json:"url"`
}

// Version returns the server's version string, or "" when no version
// detail was published.
func (s *Server) Version() string {
	if s == nil || s.VersionDetail == nil {
		return ""
	}
	return s.VersionDetail.Version
}
