package sandbox

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"
)

// MapFileName is the project-map artifact written at the sandbox root.
const MapFileName = ".yui_map.json"

// MaxMappedFileSize bounds per-file dependency analysis.
const MaxMappedFileSize = 512 * 1024

// ignoreDirs are never descended into by the mapper.
var ignoreDirs = map[string]bool{
	"__pycache__":   true,
	".git":          true,
	".venv":         true,
	"venv":          true,
	"env":           true,
	"node_modules":  true,
	".mypy_cache":   true,
	".pytest_cache": true,
	"build":         true,
	"dist":          true,
}

// ignoreNames are skipped wherever they appear.
var ignoreNames = map[string]bool{
	".DS_Store": true,
	"Thumbs.db": true,
	MapFileName: true,
}

// ProjectMap is the persisted .yui_map.json document.
type ProjectMap struct {
	Version     string              `json:"version"`
	GeneratedAt string              `json:"generated_at"`
	Root        string              `json:"root"`
	Structure   []string            `json:"structure"`
	Files       map[string]FileDeps `json:"files"`
	Stats       MapStats            `json:"stats"`
}

// FileDeps records the imports found in one file.
type FileDeps struct {
	Path    string   `json:"path"`
	Imports []string `json:"imports"`
	Skipped string   `json:"skipped,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// MapStats summarizes a mapping run.
type MapStats struct {
	TotalFiles    int `json:"total_files"`
	TotalWithDeps int `json:"total_with_deps"`
}

// Mapper walks a project one file at a time and produces its map.
// Memory bound: one file's content at a time.
type Mapper struct {
	root string
	now  func() time.Time
}

// NewMapper creates a mapper over root.
func NewMapper(root string) *Mapper {
	return &Mapper{root: root, now: time.Now}
}

var (
	jsImportRe  = regexp.MustCompile(`import\s+.*?\s+from\s+['"]([^'"]+)['"]`)
	jsRequireRe = regexp.MustCompile(`require\s*\(\s*['"]([^'"]+)['"]\s*\)`)

	pyImportRe   = regexp.MustCompile(`(?m)^\s*import\s+([\w.]+)`)
	pyFromRe     = regexp.MustCompile(`(?m)^\s*from\s+([\w.]+)\s+import\b`)
	pyFromRelRe  = regexp.MustCompile(`(?m)^\s*from\s+(\.+[\w.]*)\s+import\b`)
)

// Generate walks the tree and writes the map atomically to
// <root>/.yui_map.json. The result is deterministic apart from the
// generated_at stamp.
func (m *Mapper) Generate() (*ProjectMap, error) {
	root, err := filepath.Abs(m.root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create root: %w", err)
	}

	pm := &ProjectMap{
		Version:     "1.0",
		GeneratedAt: m.now().UTC().Format(time.RFC3339),
		Root:        root,
		Files:       make(map[string]FileDeps),
	}

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		name := d.Name()
		if d.IsDir() {
			if path != root && (ignoreDirs[name] || strings.HasPrefix(name, ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if ignoreNames[name] {
			return nil
		}
		if strings.HasPrefix(name, ".") && name != ".env" && name != ".env.example" {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		pm.Structure = append(pm.Structure, rel)
		pm.Files[rel] = m.analyzeFile(path, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk: %w", err)
	}

	sort.Strings(pm.Structure)
	pm.Stats.TotalFiles = len(pm.Structure)
	for _, f := range pm.Files {
		if len(f.Imports) > 0 {
			pm.Stats.TotalWithDeps++
		}
	}

	if err := m.writeAtomic(filepath.Join(root, MapFileName), pm); err != nil {
		return pm, err
	}
	return pm, nil
}

// analyzeFile extracts imports from one file, reading it on demand.
func (m *Mapper) analyzeFile(path, rel string) FileDeps {
	deps := FileDeps{Path: rel, Imports: []string{}}

	info, err := os.Stat(path)
	if err != nil {
		deps.Error = "read_failed"
		return deps
	}
	if info.Size() > MaxMappedFileSize {
		deps.Skipped = "large_file"
		return deps
	}

	data, err := os.ReadFile(path)
	if err != nil {
		deps.Error = "read_failed"
		return deps
	}
	content := string(data)

	switch strings.ToLower(filepath.Ext(path)) {
	case ".py":
		deps.Imports = extractPyImports(content)
	case ".js", ".ts", ".jsx", ".tsx":
		deps.Imports = extractJSImports(content)
	}
	return deps
}

// extractPyImports pulls module names from import statements line by
// line. Top-level package only for absolute imports; relative imports
// are kept whole.
func extractPyImports(content string) []string {
	seen := make(map[string]bool)

	for _, match := range pyImportRe.FindAllStringSubmatch(content, -1) {
		seen[strings.SplitN(match[1], ".", 2)[0]] = true
	}
	for _, match := range pyFromRelRe.FindAllStringSubmatch(content, -1) {
		seen[match[1]] = true
	}
	for _, match := range pyFromRe.FindAllStringSubmatch(content, -1) {
		if strings.HasPrefix(match[1], ".") {
			continue
		}
		seen[strings.SplitN(match[1], ".", 2)[0]] = true
	}

	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// extractJSImports pulls specifiers from import-from and require calls.
func extractJSImports(content string) []string {
	var out []string
	for _, match := range jsImportRe.FindAllStringSubmatch(content, -1) {
		out = append(out, match[1])
	}
	for _, match := range jsRequireRe.FindAllStringSubmatch(content, -1) {
		out = append(out, match[1])
	}
	if out == nil {
		return []string{}
	}
	return out
}

// writeAtomic marshals to a temp file and renames it into place.
func (m *Mapper) writeAtomic(path string, pm *ProjectMap) error {
	data, err := json.MarshalIndent(pm, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal map: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".yui_map-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename map: %w", err)
	}
	return nil
}

// Load reads an existing project map, or nil when absent or corrupt.
func Load(root string) *ProjectMap {
	data, err := os.ReadFile(filepath.Join(root, MapFileName))
	if err != nil {
		return nil
	}
	var pm ProjectMap
	if err := json.Unmarshal(data, &pm); err != nil {
		return nil
	}
	return &pm
}
