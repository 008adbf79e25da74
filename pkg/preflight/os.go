package preflight

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redentordev/laravel-vps/pkg/host"
)

// OSFamily represents different Linux distribution families
type OSFamily string

const (
	OSFamilyDebian  OSFamily = "debian"
	OSFamilyRHEL    OSFamily = "rhel"
	OSFamilySUSE    OSFamily = "suse"
	OSFamilyAlpine  OSFamily = "alpine"
	OSFamilyUnknown OSFamily = "unknown"
)

// OSInfo contains detected operating system information
type OSInfo struct {
	Family   OSFamily
	Name     string
	Version  string
	Codename string
}

func (info OSInfo) String() string {
	if info.Name == "" {
		return string(info.Family)
	}
	return fmt.Sprintf("%s %s (%s)", info.Name, info.Version, info.Family)
}

// IsUbuntu reports whether the distribution is Ubuntu, where the ondrej PPA applies.
func (info OSInfo) IsUbuntu() bool {
	return info.Name == "ubuntu"
}

// DetectOS reads /etc/os-release on h.
func DetectOS(ctx context.Context, h host.Host) (OSInfo, error) {
	data, err := h.ReadFile(ctx, "/etc/os-release")
	if errors.Is(err, host.ErrNotExist) {
		data, err = h.ReadFile(ctx, "/usr/lib/os-release")
	}
	if err != nil {
		return OSInfo{Family: OSFamilyUnknown}, fmt.Errorf("failed to read OS information: %w", err)
	}
	return parseOSRelease(string(data)), nil
}

func parseOSRelease(content string) OSInfo {
	info := OSInfo{Family: OSFamilyUnknown}
	idLike := ""

	for _, line := range strings.Split(content, "\n") {
		key, value, ok := strings.Cut(strings.TrimSpace(line), "=")
		if !ok {
			continue
		}
		value = strings.Trim(value, `"'`)
		switch key {
		case "ID":
			info.Name = strings.ToLower(value)
		case "VERSION_ID":
			info.Version = value
		case "VERSION_CODENAME":
			info.Codename = value
		case "ID_LIKE":
			idLike = strings.ToLower(value)
		}
	}

	has := func(words ...string) bool {
		for _, w := range words {
			if strings.Contains(info.Name, w) || strings.Contains(idLike, w) {
				return true
			}
		}
		return false
	}

	switch {
	case has("debian", "ubuntu"):
		info.Family = OSFamilyDebian
	case has("rhel", "centos", "fedora", "rocky"):
		info.Family = OSFamilyRHEL
	case has("suse"):
		info.Family = OSFamilySUSE
	case has("alpine"):
		info.Family = OSFamilyAlpine
	}
	return info
}
