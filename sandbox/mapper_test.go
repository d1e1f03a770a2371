package sandbox

import (
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for path, content := range files {
		full := filepath.Join(root, path)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestGenerateMap(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"main.py":              "import os\nfrom app.models import User\nfrom . import local\n",
		"web/index.js":         "import React from 'react';\nconst fs = require('fs');\n",
		"node_modules/x/y.js":  "require('skip-me');",
		".git/config":          "x",
		"__pycache__/a.pyc":    "x",
		"docs/readme.md":       "hello",
	})

	pm, err := NewMapper(root).Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	wantStructure := []string{"docs/readme.md", "main.py", "web/index.js"}
	if !reflect.DeepEqual(pm.Structure, wantStructure) {
		t.Errorf("structure = %v, want %v", pm.Structure, wantStructure)
	}

	py := pm.Files["main.py"]
	wantPy := []string{".", "app", "os"}
	if !reflect.DeepEqual(py.Imports, wantPy) {
		t.Errorf("python imports = %v, want %v", py.Imports, wantPy)
	}

	js := pm.Files["web/index.js"]
	wantJS := []string{"react", "fs"}
	if !reflect.DeepEqual(js.Imports, wantJS) {
		t.Errorf("js imports = %v, want %v", js.Imports, wantJS)
	}

	if pm.Stats.TotalFiles != 3 || pm.Stats.TotalWithDeps != 2 {
		t.Errorf("stats = %+v", pm.Stats)
	}

	// Artifact on disk and loadable.
	loaded := Load(root)
	if loaded == nil || loaded.Version != "1.0" {
		t.Fatal("map not written or unreadable")
	}
}

func TestMapperIdempotent(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"a.py": "import json\nimport os\n",
		"b.js": "const a = require('lodash');\n",
	})

	m := NewMapper(root)
	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return fixed }

	if _, err := m.Generate(); err != nil {
		t.Fatal(err)
	}
	first, err := os.ReadFile(filepath.Join(root, MapFileName))
	if err != nil {
		t.Fatal(err)
	}

	if _, err := m.Generate(); err != nil {
		t.Fatal(err)
	}
	second, err := os.ReadFile(filepath.Join(root, MapFileName))
	if err != nil {
		t.Fatal(err)
	}

	if string(first) != string(second) {
		t.Error("map output not byte-identical across runs")
	}
}

func TestLargeFileSkipped(t *testing.T) {
	root := t.TempDir()
	big := make([]byte, MaxMappedFileSize+1)
	for i := range big {
		big[i] = 'a'
	}
	writeTree(t, root, map[string]string{"big.py": string(big)})

	pm, err := NewMapper(root).Generate()
	if err != nil {
		t.Fatal(err)
	}
	if pm.Files["big.py"].Skipped != "large_file" {
		t.Errorf("big file deps = %+v", pm.Files["big.py"])
	}
}

func TestMapIsValidJSON(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"x.py": "import re\n"})

	if _, err := NewMapper(root).Generate(); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(filepath.Join(root, MapFileName))
	if err != nil {
		t.Fatal(err)
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	for _, key := range []string{"version", "generated_at", "root", "structure", "files", "stats"} {
		if _, ok := doc[key]; !ok {
			t.Errorf("missing key %q", key)
		}
	}
}
