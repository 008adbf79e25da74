package formatter

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestOutputMirrorsToRunLog(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	var buf bytes.Buffer
	out := NewWriter(&buf, false, true).WithLogger(zap.New(core))

	out.Success("installed %s", "nginx")
	out.Warning("seeding failed")
	out.Advisory("admin panel has no access control")
	out.Verbose("apt-get output")

	assert.Equal(t, "✓ installed nginx\n! seeding failed\n⚑ admin panel has no access control\n", buf.String())

	entries := logs.All()
	require.Len(t, entries, 4)
	assert.Equal(t, zapcore.WarnLevel, entries[2].Level)
	assert.Equal(t, true, entries[2].ContextMap()["advisory"])
	assert.Equal(t, zapcore.DebugLevel, entries[3].Level)
}

func TestTable(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	out := NewWriter(&buf, false, true)
	out.Table([]string{"CHECK", "RESULT"}, [][]string{{"privilege", "PASS"}, {"os", "FAIL"}})

	assert.Equal(t, "CHECK      RESULT\n─────────────────\nprivilege  PASS\nos         FAIL\n", buf.String())
}
