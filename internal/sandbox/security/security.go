// Package security defines sandbox isolation and security profiles.
package security

import (
	"fmt"
)

// IsolationProfile describes namespace and seccomp settings.
type IsolationProfile struct {
	RootFS         string `yaml:"rootfs"`
	SeccompProfile string `yaml:"seccompProfile"`
	DisableNetwork bool   `yaml:"disableNetwork"`
}

// ProfileConfig binds a profile name such as "python-run" to isolation settings.
type ProfileConfig struct {
	Name             string `yaml:"name"`
	IsolationProfile `yaml:",inline"`
}

// StaticResolver resolves profile names from a fixed table.
// Unknown names fall back to the default profile when one is set.
type StaticResolver struct {
	profiles map[string]IsolationProfile
	fallback *IsolationProfile
}

func NewStaticResolver(profiles []ProfileConfig, fallback *IsolationProfile) *StaticResolver {
	m := make(map[string]IsolationProfile, len(profiles))
	for _, p := range profiles {
		if p.Name == "" {
			continue
		}
		m[p.Name] = p.IsolationProfile
	}
	return &StaticResolver{profiles: m, fallback: fallback}
}

// Resolve maps a profile name to isolation settings.
func (r *StaticResolver) Resolve(name string) (IsolationProfile, error) {
	if name == "" {
		return IsolationProfile{}, fmt.Errorf("profile is required")
	}
	if p, ok := r.profiles[name]; ok {
		return p, nil
	}
	if r.fallback != nil {
		return *r.fallback, nil
	}
	return IsolationProfile{}, fmt.Errorf("profile %q not found", name)
}
