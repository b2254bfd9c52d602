package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/kurihiro0119/repo-access-provisioner/internal/domain"
	apperrors "github.com/kurihiro0119/repo-access-provisioner/internal/errors"
)

type packageManagerFile struct {
	SupportedFormats map[string]domain.PackageManager `json:"supported_formats"`
}

// LoadTables reads the organization and package manager tables named by the
// configuration.
func LoadTables(cfg *Config) (domain.Tables, error) {
	orgs, err := LoadOrganizations(cfg.OrganizationsFile)
	if err != nil {
		return domain.Tables{}, err
	}
	pms, err := LoadPackageManagers(cfg.PackageManagerFile)
	if err != nil {
		return domain.Tables{}, err
	}
	return domain.Tables{Organizations: orgs, PackageManagers: pms}, nil
}

// LoadOrganizations reads a JSON list of {id, name} into a name to id map
func LoadOrganizations(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.NewConfigurationError("failed to read organizations file", err)
	}

	var list []domain.Organization
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, apperrors.NewConfigurationError(fmt.Sprintf("malformed organizations file %s", path), err)
	}

	orgs := make(map[string]string, len(list))
	for i, org := range list {
		if org.ID == "" || org.Name == "" {
			return nil, apperrors.NewConfigurationError(
				fmt.Sprintf("organization entry %d in %s needs both id and name", i, path), nil)
		}
		orgs[org.Name] = org.ID
	}
	return orgs, nil
}

// LoadPackageManagers reads the supported_formats table. Keys are lower-cased.
func LoadPackageManagers(path string) (map[string]domain.PackageManager, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.NewConfigurationError("failed to read package manager file", err)
	}

	var file packageManagerFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, apperrors.NewConfigurationError(fmt.Sprintf("malformed package manager file %s", path), err)
	}
	if len(file.SupportedFormats) == 0 {
		return nil, apperrors.NewConfigurationError(fmt.Sprintf("no supported_formats in %s", path), nil)
	}

	pms := make(map[string]domain.PackageManager, len(file.SupportedFormats))
	for name, pm := range file.SupportedFormats {
		key := strings.ToLower(name)
		pm.Name = key
		pms[key] = pm
	}
	return pms, nil
}
