package testutil

import "github.com/kurihiro0119/repo-access-provisioner/internal/domain"

// Tables returns lookup tables with the Logistics (ORG-1) and Finance (ORG-2)
// organizations and the npm, maven2 and pypi formats. "helm" is present but
// cannot be proxied.
func Tables() domain.Tables {
	return domain.Tables{
		Organizations: map[string]string{
			"Logistics": "ORG-1",
			"Finance":   "ORG-2",
		},
		PackageManagers: map[string]domain.PackageManager{
			"npm": {
				Name:           "npm",
				DefaultURL:     "https://registry.npmjs.org",
				ProxySupported: true,
				APIEndpoint:    &domain.APIEndpoint{Path: "/v1/repositories/npm/proxy"},
			},
			"maven2": {
				Name:            "maven2",
				DefaultURL:      "https://repo1.maven.org/maven2/",
				ProxySupported:  true,
				PrivilegeFormat: "maven2",
				APIEndpoint: &domain.APIEndpoint{
					Path: "/v1/repositories/maven/proxy",
					FormatSpecificConfig: map[string]any{
						"maven": map[string]any{"versionPolicy": "RELEASE", "layoutPolicy": "STRICT"},
					},
				},
			},
			"pypi": {
				Name:           "pypi",
				DefaultURL:     "https://pypi.org",
				ProxySupported: true,
				APIEndpoint:    &domain.APIEndpoint{Path: "/v1/repositories/pypi/proxy"},
			},
			"helm": {
				Name:           "helm",
				DefaultURL:     "https://charts.example.com",
				ProxySupported: false,
			},
		},
	}
}

// Request builds a create request for the Logistics organization
func Request(username, packageManager, appID string, shared bool) domain.ProvisioningRequest {
	return domain.ProvisioningRequest{
		OrganizationName: "Logistics",
		Username:         username,
		PackageManager:   packageManager,
		Shared:           shared,
		AppID:            appID,
		Action:           domain.ActionCreate,
	}
}
