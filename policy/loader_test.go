package policy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/c360studio/agora/governance"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePolicy(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	writePolicy(t, dir, "mango.yaml", `
dao: mango
max_auto_risk: medium
min_sentiment: 0.2
min_confidence: 0.85
treasury_threshold: 100000
`)
	writePolicy(t, dir, "pyth.yml", `
dao: pyth
max_auto_risk: low
`)
	writePolicy(t, dir, "notes.txt", "not a policy")

	policies, err := LoadDir(dir, nil)
	require.NoError(t, err)
	require.Len(t, policies, 2)

	mango := policies["mango"]
	require.NotNil(t, mango)
	assert.Equal(t, governance.RiskMedium, mango.MaxAutoRisk)
	assert.Equal(t, 0.2, mango.MinSentiment)
	assert.Equal(t, float64(100000), mango.TreasuryThreshold)

	// Unstated fields keep defaults.
	pyth := policies["pyth"]
	require.NotNil(t, pyth)
	assert.Equal(t, 0.8, pyth.MinConfidence)
	assert.NotEmpty(t, pyth.EmergencyKeywords)
}

func TestLoadDir_DuplicateDAO(t *testing.T) {
	dir := t.TempDir()
	writePolicy(t, dir, "a.yaml", "dao: mango\n")
	writePolicy(t, dir, "b.yaml", "dao: mango\n")

	_, err := LoadDir(dir, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mango")
}

func TestLoadFile_Invalid(t *testing.T) {
	dir := t.TempDir()

	writePolicy(t, dir, "bad.yaml", "dao: mango\nmax_auto_risk: critical\n")
	_, err := LoadFile(filepath.Join(dir, "bad.yaml"))
	assert.Error(t, err, "critical auto-approve ceiling must be rejected")

	writePolicy(t, dir, "anon.yaml", "min_confidence: 0.9\n")
	_, err = LoadFile(filepath.Join(dir, "anon.yaml"))
	assert.Error(t, err, "policy without dao must be rejected")

	// default.yaml may omit the dao field.
	writePolicy(t, dir, "default.yaml", "min_confidence: 0.9\n")
	p, err := LoadFile(filepath.Join(dir, "default.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "default", p.DAO)
	assert.Equal(t, 0.9, p.MinConfidence)
}

func TestStoreSnapshot(t *testing.T) {
	dir := t.TempDir()
	writePolicy(t, dir, "mango.yaml", "dao: mango\nmax_auto_risk: medium\n")
	writePolicy(t, dir, "default.yaml", "min_confidence: 0.75\n")

	store := NewStore(dir, nil, nil)
	require.NoError(t, store.Load())

	mango := store.Snapshot("mango")
	assert.Equal(t, governance.RiskMedium, mango.MaxAutoRisk)

	// Unknown DAO falls back to the loaded default policy.
	other := store.Snapshot("jupiter")
	assert.Equal(t, "default", other.DAO)
	assert.Equal(t, 0.75, other.MinConfidence)

	// Snapshots are clones: mutating one does not leak into the store.
	mango.MinConfidence = 0.1
	assert.Equal(t, 0.8, store.Snapshot("mango").MinConfidence)
}

func TestStoreSnapshot_BuiltinFallback(t *testing.T) {
	store := NewStore(t.TempDir(), nil, nil)
	require.NoError(t, store.Load())

	p := store.Snapshot("anything")
	assert.Equal(t, "default", p.DAO)
	assert.Equal(t, governance.RiskLow, p.MaxAutoRisk)
}

func TestStoreLoad_KeepsPreviousOnError(t *testing.T) {
	dir := t.TempDir()
	writePolicy(t, dir, "mango.yaml", "dao: mango\nmax_auto_risk: medium\n")

	store := NewStore(dir, nil, nil)
	require.NoError(t, store.Load())

	writePolicy(t, dir, "mango.yaml", "dao: mango\nmax_auto_risk: critical\n")
	require.Error(t, store.Load())

	// The previous good policy survives the failed reload.
	assert.Equal(t, governance.RiskMedium, store.Snapshot("mango").MaxAutoRisk)
}
