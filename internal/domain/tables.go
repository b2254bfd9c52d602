package domain

import (
	"sort"
	"strings"
)

// Organization is an entry of the organization lookup table
type Organization struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// APIEndpoint selects the repository manager endpoint used to create a proxy
// repository of a given format.
type APIEndpoint struct {
	Path                 string         `json:"path"`
	FormatSpecificConfig map[string]any `json:"format_specific_config,omitempty"`
}

// PackageManager describes one supported repository format
type PackageManager struct {
	Name                 string         `json:"-"`
	DefaultURL           string         `json:"default_url"`
	ProxySupported       bool           `json:"proxy_supported"`
	APIEndpoint          *APIEndpoint   `json:"api_endpoint,omitempty"`
	FormatSpecificConfig map[string]any `json:"format_specific_config,omitempty"`
	DefaultConfig        map[string]any `json:"default_config,omitempty"`
	PrivilegeFormat      string         `json:"privilege_format,omitempty"`
}

// PrivilegeFormatOrDefault returns the privilege format override, falling back
// to the package manager name.
func (p PackageManager) PrivilegeFormatOrDefault() string {
	if p.PrivilegeFormat != "" {
		return p.PrivilegeFormat
	}
	return strings.ToLower(p.Name)
}

// Tables holds the read-only lookup tables loaded at startup
type Tables struct {
	Organizations   map[string]string
	PackageManagers map[string]PackageManager
}

// OrganizationID resolves an organization name to its id
func (t Tables) OrganizationID(name string) (string, bool) {
	id, ok := t.Organizations[name]
	return id, ok
}

// PackageManager looks up a package manager, ignoring case
func (t Tables) PackageManager(name string) (PackageManager, bool) {
	pm, ok := t.PackageManagers[strings.ToLower(name)]
	return pm, ok
}

// SupportedPackageManagers returns the keys of the package manager table
func (t Tables) SupportedPackageManagers() []string {
	names := make([]string, 0, len(t.PackageManagers))
	for name := range t.PackageManagers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
