package host

import (
	"maps"
	"os"
)

// Firewall captures what ufw reports.
type Firewall struct {
	// Installed is true when the ufw binary is available.
	Installed bool `json:"installed"`

	// Active is true when ufw reports "Status: active".
	Active bool `json:"active"`

	// Rules holds the allowed application profiles and ports, e.g. "OpenSSH".
	Rules map[string]bool `json:"rules,omitempty"`
}

// State is a snapshot of everything step preconditions look at.
// Apply actions receive a private copy and return it updated.
type State struct {
	// Packages maps installed dpkg package names to their versions.
	Packages map[string]string `json:"packages,omitempty"`

	// Binaries maps command names found on PATH to their resolved paths.
	Binaries map[string]string `json:"binaries,omitempty"`

	// NodeVersion is the output of `node --version`, e.g. "v20.11.1".
	NodeVersion string `json:"node_version,omitempty"`

	// AptFresh is true when the package lists were refreshed recently.
	AptFresh bool `json:"apt_fresh"`

	// Users holds existing local account names.
	Users map[string]bool `json:"users,omitempty"`

	// Paths describes probed directories, files and links.
	Paths map[string]FileInfo `json:"paths,omitempty"`

	// Files holds the content of probed regular files.
	Files map[string]string `json:"-"`

	// Databases maps PostgreSQL database names to their owner role.
	Databases map[string]string `json:"databases,omitempty"`

	// Roles holds existing PostgreSQL role names.
	Roles map[string]bool `json:"roles,omitempty"`

	// HBAFile is the pg_hba.conf path reported by the running server.
	HBAFile string `json:"hba_file,omitempty"`

	// Firewall is the ufw state.
	Firewall Firewall `json:"firewall"`

	// Services holds systemd units reported as enabled.
	Services map[string]bool `json:"services,omitempty"`
}

// NewState returns an empty State with all maps allocated.
func NewState() State {
	return State{
		Packages:  make(map[string]string),
		Binaries:  make(map[string]string),
		Users:     make(map[string]bool),
		Paths:     make(map[string]FileInfo),
		Files:     make(map[string]string),
		Databases: make(map[string]string),
		Roles:     make(map[string]bool),
		Firewall:  Firewall{Rules: make(map[string]bool)},
		Services:  make(map[string]bool),
	}
}

// Clone returns a deep copy of s. Nil maps in s become empty maps.
func (s State) Clone() State {
	c := NewState()
	maps.Copy(c.Packages, s.Packages)
	maps.Copy(c.Binaries, s.Binaries)
	maps.Copy(c.Users, s.Users)
	maps.Copy(c.Paths, s.Paths)
	maps.Copy(c.Files, s.Files)
	maps.Copy(c.Databases, s.Databases)
	maps.Copy(c.Roles, s.Roles)
	maps.Copy(c.Services, s.Services)
	maps.Copy(c.Firewall.Rules, s.Firewall.Rules)
	c.NodeVersion = s.NodeVersion
	c.AptFresh = s.AptFresh
	c.HBAFile = s.HBAFile
	c.Firewall.Installed = s.Firewall.Installed
	c.Firewall.Active = s.Firewall.Active
	return c
}

// HasPackages reports whether every named package is installed.
func (s *State) HasPackages(names ...string) bool {
	for _, n := range names {
		if _, ok := s.Packages[n]; !ok {
			return false
		}
	}
	return true
}

// MissingPackages returns the subset of names that is not installed, in order.
func (s *State) MissingPackages(names ...string) []string {
	var missing []string
	for _, n := range names {
		if _, ok := s.Packages[n]; !ok {
			missing = append(missing, n)
		}
	}
	return missing
}

// HasBinary reports whether name resolved on PATH.
func (s *State) HasBinary(name string) bool {
	_, ok := s.Binaries[name]
	return ok
}

// FileContent returns the probed content of path.
func (s *State) FileContent(path string) (string, bool) {
	c, ok := s.Files[path]
	return c, ok
}

// FileMatches reports whether path exists with exactly content.
func (s *State) FileMatches(path, content string) bool {
	c, ok := s.Files[path]
	return ok && c == content
}

// PathExists reports whether path was found.
func (s *State) PathExists(path string) bool {
	return s.Paths[path].Exists
}

// DirOwnedBy reports whether path is a directory owned by owner.
func (s *State) DirOwnedBy(path, owner string) bool {
	fi := s.Paths[path]
	return fi.Exists && fi.IsDir && fi.Owner == owner
}

// RecordFile stores a written file in the snapshot.
func (s *State) RecordFile(path, content, owner string, mode os.FileMode) {
	if s.Files == nil {
		s.Files = make(map[string]string)
	}
	if s.Paths == nil {
		s.Paths = make(map[string]FileInfo)
	}
	s.Files[path] = content
	s.Paths[path] = FileInfo{Path: path, Exists: true, Mode: mode, Owner: owner, Group: owner}
}

// RecordRemoved marks path as absent.
func (s *State) RecordRemoved(path string) {
	delete(s.Files, path)
	if s.Paths == nil {
		s.Paths = make(map[string]FileInfo)
	}
	s.Paths[path] = FileInfo{Path: path}
}
