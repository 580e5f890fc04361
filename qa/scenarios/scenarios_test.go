package scenarios

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/busalloc/core/allocation"
)

func TestScenario(t *testing.T) {
	files, err := filepath.Glob("*.yaml")
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(files) == 0 {
		t.Fatal("no scenario files")
	}
	for _, f := range files {
		sc, err := Load(f)
		if err != nil {
			t.Fatalf("load %s: %v", f, err)
		}
		t.Run(sc.Name, func(t *testing.T) {
			RunScenario(t, sc)
		})
	}
}

func TestEngineDefDefaults(t *testing.T) {
	assert.Equal(t, allocation.DefaultConfig(), EngineDef{}.Config())
	cfg := EngineDef{AllocationLimitK: 3, Resolution: "ranked"}.Config()
	assert.Equal(t, 3, cfg.AllocationLimitK)
	assert.Equal(t, allocation.ResolutionRanked, cfg.Resolution)
	assert.Equal(t, allocation.DefaultProcessingThreshold, cfg.ProcessingThreshold)
}

func TestRequestDefDefaultsName(t *testing.T) {
	r := RequestDef{Stop: "F002", Buses: 1}.ToModel()
	assert.Equal(t, "Stop F002", r.StopName)
	require.NoError(t, r.Validate())
}

func TestLoadInvalid(t *testing.T) {
	if _, err := Load("no-file.yaml"); err == nil {
		t.Fatal("expected error for missing file")
	}
	dir := t.TempDir()
	cases := map[string]string{
		"bad.yaml":       ":",
		"noname.yaml":    "steps: []\n",
		"badoracle.yaml": "name: x\noracle: psychic\n",
	}
	for name, data := range cases {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
		_, err := Load(path)
		assert.Error(t, err, name)
	}
}
