package preflight

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/redentordev/laravel-vps/pkg/hostfake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const ubuntuRelease = `PRETTY_NAME="Ubuntu 24.04.1 LTS"
NAME="Ubuntu"
VERSION_ID="24.04"
VERSION_CODENAME=noble
ID=ubuntu
ID_LIKE=debian
`

func newChecker(t *testing.T) (*Checker, *hostfake.Host) {
	t.Helper()
	h := hostfake.New(t)
	h.Put(t, "/etc/os-release", ubuntuRelease)
	c := NewChecker(h, []string{"1.1.1.1:443", "8.8.8.8:443"}, 2*time.Second, false)
	c.RetryDelay = time.Millisecond
	return c, h
}

func TestParseOSRelease(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		family  OSFamily
		version string
	}{
		{"ubuntu", ubuntuRelease, OSFamilyDebian, "24.04"},
		{"debian", "ID=debian\nVERSION_ID=\"12\"\n", OSFamilyDebian, "12"},
		{"rocky", "ID=\"rocky\"\nID_LIKE=\"rhel centos fedora\"\nVERSION_ID=\"9.3\"\n", OSFamilyRHEL, "9.3"},
		{"alpine", "ID=alpine\nVERSION_ID=3.19.0\n", OSFamilyAlpine, "3.19.0"},
		{"empty", "", OSFamilyUnknown, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			info := parseOSRelease(tt.content)
			assert.Equal(t, tt.family, info.Family)
			assert.Equal(t, tt.version, info.Version)
		})
	}
}

func TestCheck_Passes(t *testing.T) {
	t.Parallel()

	c, h := newChecker(t)
	require.NoError(t, c.Check(context.Background()))
	assert.True(t, c.OS().IsUbuntu())
	assert.Equal(t, "noble", c.OS().Codename)
	assert.True(t, h.Ran("/dev/tcp/1.1.1.1/443"))
}

func TestCheck_InsufficientPrivilege(t *testing.T) {
	t.Parallel()

	c, h := newChecker(t)
	h.UID = 1000
	err := c.Check(context.Background())
	require.ErrorIs(t, err, ErrInsufficientPrivilege)
	assert.Contains(t, err.Error(), "uid 1000")
}

func TestCheck_NoConnectivityAfterRetries(t *testing.T) {
	t.Parallel()

	c, h := newChecker(t)
	h.Fail("/dev/tcp/", "Connection timed out")

	err := c.Check(context.Background())
	require.ErrorIs(t, err, ErrNoConnectivity)

	probes := 0
	for _, line := range h.Commands() {
		if strings.Contains(line, "/dev/tcp/1.1.1.1/443") {
			probes++
		}
	}
	assert.Equal(t, 3, probes, "one attempt plus two retries")
}

func TestCheck_FallsBackToSecondTarget(t *testing.T) {
	t.Parallel()

	c, h := newChecker(t)
	h.Fail("/dev/tcp/1.1.1.1/", "refused")
	require.NoError(t, c.CheckConnectivity(context.Background()))
	assert.True(t, h.Ran("/dev/tcp/8.8.8.8/443"))
}

func TestCheck_UnsupportedOS(t *testing.T) {
	t.Parallel()

	c, h := newChecker(t)
	h.Put(t, "/etc/os-release", "ID=alpine\nVERSION_ID=3.19.0\n")
	require.ErrorIs(t, c.Check(context.Background()), ErrUnsupportedOS)
}

func TestCheck_UnsupportedOSWithoutApt(t *testing.T) {
	t.Parallel()

	c, h := newChecker(t)
	h.Missing("apt-get")
	require.ErrorIs(t, c.Check(context.Background()), ErrUnsupportedOS)
}

func TestCheck_PrivilegeReportedBeforeOS(t *testing.T) {
	t.Parallel()

	c, h := newChecker(t)
	h.UID = 33
	h.Put(t, "/etc/os-release", "ID=alpine\n")
	require.ErrorIs(t, c.Check(context.Background()), ErrInsufficientPrivilege)
}

func TestCheck_HasNoSideEffects(t *testing.T) {
	t.Parallel()

	c, h := newChecker(t)
	require.NoError(t, c.Check(context.Background()))
	for _, line := range h.Commands() {
		assert.NotContains(t, line, "apt-get install")
		assert.NotContains(t, line, "systemctl")
	}
}

func TestReport(t *testing.T) {
	t.Parallel()

	c, h := newChecker(t)
	h.On("php -v", "PHP 8.3.6 (cli)\nCopyright", nil)
	h.Fail("certbot --version", "")

	results := c.Report(context.Background())
	require.Len(t, results, 3+len(Tools))
	assert.False(t, Failed(results))

	byName := map[string]Result{}
	for _, r := range results {
		byName[r.Name] = r
	}
	assert.Equal(t, StatusPass, byName["PHP"].Status)
	assert.Equal(t, "PHP 8.3.6 (cli)", byName["PHP"].Detail)
	assert.Equal(t, StatusWarn, byName["Certbot"].Status)
	assert.Equal(t, StatusPass, byName["Operating system"].Status)
}
