// Package sandbox confines all user file operations and code execution
// to a single workspace directory. It provides the file-system bridge,
// the syntax pre-lint, the subprocess executor with resource caps, the
// optional container-backed executor, and the project mapper.
package sandbox

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// Standard errors
var (
	// ErrOutsideSandbox is returned when a path escapes the workspace root.
	ErrOutsideSandbox = errors.New("path outside sandbox")

	// ErrReservedName is returned for operations targeting reserved entries.
	ErrReservedName = errors.New("reserved name")
)

// reservedDirs are never valid operation targets and are hidden from
// listings.
var reservedDirs = map[string]bool{
	"node_modules": true,
	".git":         true,
	"__pycache__":  true,
	".venv":        true,
	"venv":         true,
	"dist":         true,
	"build":        true,
}

// MultiWriteBatchSize bounds how many actions are applied per chunk to
// keep one batch's content in memory at a time.
const MultiWriteBatchSize = 15

// Bridge performs sandbox-relative file operations with a
// path-traversal guard.
type Bridge struct {
	root        string
	downloadDir string
	linter      *Linter

	// writeMu serializes multi-write batches.
	writeMu sync.Mutex

	statsMu    sync.Mutex
	diskWrites int64
}

// NewBridge creates a bridge rooted at root. ZIP artifacts go to
// downloadDir.
func NewBridge(root, downloadDir string) (*Bridge, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve sandbox root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create sandbox root: %w", err)
	}
	// Resolve symlinks in the root itself once so the prefix check below
	// compares canonical paths.
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}
	return &Bridge{root: abs, downloadDir: downloadDir, linter: NewLinter()}, nil
}

// Root returns the canonical sandbox root.
func (b *Bridge) Root() string {
	return b.root
}

// Resolve turns a sandbox-relative path into a verified absolute path.
// Rejects absolute paths, ".." segments, escapes via symlinks, and the
// root itself for mutation when mutating is true.
func (b *Bridge) Resolve(rel string) (string, error) {
	rel = strings.TrimSpace(rel)
	if filepath.IsAbs(rel) || strings.HasPrefix(rel, "/") || strings.HasPrefix(rel, "\\") {
		return "", fmt.Errorf("%w: %s", ErrOutsideSandbox, rel)
	}
	for _, seg := range strings.Split(filepath.ToSlash(rel), "/") {
		if seg == ".." {
			return "", fmt.Errorf("%w: %s", ErrOutsideSandbox, rel)
		}
	}

	abs := filepath.Clean(filepath.Join(b.root, rel))
	if abs != b.root && !strings.HasPrefix(abs, b.root+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrOutsideSandbox, rel)
	}

	// Canonicalize the deepest existing ancestor and re-check, so a
	// symlink inside the sandbox cannot point writes outside of it.
	if real, err := resolveExisting(abs); err == nil {
		if real != b.root && !strings.HasPrefix(real, b.root+string(filepath.Separator)) {
			return "", fmt.Errorf("%w: %s", ErrOutsideSandbox, rel)
		}
	}

	return abs, nil
}

// resolveExisting walks up from path to the deepest existing ancestor,
// canonicalizes it, and re-joins the missing suffix.
func resolveExisting(path string) (string, error) {
	var missing []string
	cur := path
	for {
		if _, err := os.Lstat(cur); err == nil {
			break
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			break
		}
		missing = append([]string{filepath.Base(cur)}, missing...)
		cur = parent
	}
	real, err := filepath.EvalSymlinks(cur)
	if err != nil {
		return "", err
	}
	return filepath.Join(append([]string{real}, missing...)...), nil
}

// checkTarget rejects mutation of the root and of reserved names.
func (b *Bridge) checkTarget(abs string) error {
	if abs == b.root {
		return fmt.Errorf("%w: sandbox root", ErrReservedName)
	}
	if reservedDirs[filepath.Base(abs)] {
		return fmt.Errorf("%w: %s", ErrReservedName, filepath.Base(abs))
	}
	return nil
}

// CreateFile writes content to a sandbox-relative path, creating parent
// directories as needed.
func (b *Bridge) CreateFile(rel, content string) error {
	abs, err := b.Resolve(rel)
	if err != nil {
		return err
	}
	if err := b.checkTarget(abs); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return fmt.Errorf("create parent dirs: %w", err)
	}
	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write file: %w", err)
	}
	b.bumpWrites()
	return nil
}

// CreateFolder creates a directory (and parents) under the root.
func (b *Bridge) CreateFolder(rel string) error {
	abs, err := b.Resolve(rel)
	if err != nil {
		return err
	}
	if err := b.checkTarget(abs); err != nil {
		return err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return fmt.Errorf("create folder: %w", err)
	}
	b.bumpWrites()
	return nil
}

// Delete removes a file or, recursively, a directory.
func (b *Bridge) Delete(rel string) error {
	abs, err := b.Resolve(rel)
	if err != nil {
		return err
	}
	if err := b.checkTarget(abs); err != nil {
		return err
	}
	info, err := os.Lstat(abs)
	if err != nil {
		return fmt.Errorf("stat: %w", err)
	}
	if info.IsDir() {
		err = os.RemoveAll(abs)
	} else {
		err = os.Remove(abs)
	}
	if err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	b.bumpWrites()
	return nil
}

// Read returns a file's content as UTF-8 text. Invalid bytes are
// replaced, never rejected.
func (b *Bridge) Read(rel string) (string, error) {
	abs, err := b.Resolve(rel)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	return strings.ToValidUTF8(string(data), "�"), nil
}

// Entry is one listing row.
type Entry struct {
	Name  string `json:"name"`
	IsDir bool   `json:"is_dir"`
	Size  int64  `json:"size"`
}

// List returns one directory level, hiding dotfiles and reserved names.
func (b *Bridge) List(rel string) ([]Entry, error) {
	abs, err := b.Resolve(rel)
	if err != nil {
		return nil, err
	}
	dirents, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("list: %w", err)
	}

	var entries []Entry
	for _, d := range dirents {
		name := d.Name()
		if strings.HasPrefix(name, ".") || reservedDirs[name] {
			continue
		}
		e := Entry{Name: name, IsDir: d.IsDir()}
		if info, err := d.Info(); err == nil {
			e.Size = info.Size()
		}
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

// Action is one element of a multi-write batch.
type Action struct {
	Action  string `json:"action"` // create, update, delete
	Path    string `json:"path"`
	Content string `json:"content,omitempty"`
}

// MultiWrite applies a batch of create/update/delete actions. Content
// in a linted language must pass the syntax check for the whole batch
// to proceed; on any lint failure, nothing is written and the error
// list is returned. Actions are applied in chunks of MultiWriteBatchSize.
func (b *Bridge) MultiWrite(actions []Action) ([]string, error) {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	// Validate every path and lint every payload before touching disk.
	var lintErrors []string
	for _, a := range actions {
		if _, err := b.Resolve(a.Path); err != nil {
			return nil, err
		}
		if (a.Action == "create" || a.Action == "update") && a.Content != "" {
			for _, e := range b.linter.Lint(a.Path, a.Content) {
				lintErrors = append(lintErrors, fmt.Sprintf("%s:%d - %s", a.Path, e.Line, e.Message))
			}
		}
	}
	if len(lintErrors) > 0 {
		return lintErrors, fmt.Errorf("lint failed for %d action(s)", len(lintErrors))
	}

	for start := 0; start < len(actions); start += MultiWriteBatchSize {
		end := start + MultiWriteBatchSize
		if end > len(actions) {
			end = len(actions)
		}
		for _, a := range actions[start:end] {
			var err error
			switch a.Action {
			case "create", "update":
				err = b.CreateFile(a.Path, a.Content)
			case "delete":
				err = b.Delete(a.Path)
			default:
				err = fmt.Errorf("unknown action %q", a.Action)
			}
			if err != nil {
				return nil, fmt.Errorf("apply %s %s: %w", a.Action, a.Path, err)
			}
		}
	}
	return nil, nil
}

// Zip compresses every file under the root into one deflate archive in
// the download directory and returns its download URL.
func (b *Bridge) Zip() (string, error) {
	if err := os.MkdirAll(b.downloadDir, 0o755); err != nil {
		return "", fmt.Errorf("create download dir: %w", err)
	}

	name := "sandbox_" + time.Now().Format("20060102_150405") + ".zip"
	outPath := filepath.Join(b.downloadDir, name)

	out, err := os.Create(outPath)
	if err != nil {
		return "", fmt.Errorf("create archive: %w", err)
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	defer zw.Close()

	err = filepath.Walk(b.root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			slog.Warn("zip: skipping entry", "path", path, "error", err)
			return nil
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(b.root, path)
		if err != nil {
			return err
		}
		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:   filepath.ToSlash(rel),
			Method: zip.Deflate,
		})
		if err != nil {
			return err
		}
		f, err := os.Open(path)
		if err != nil {
			slog.Warn("zip: skipping unreadable file", "path", path, "error", err)
			return nil
		}
		defer f.Close()
		_, err = io.Copy(w, f)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("build archive: %w", err)
	}

	return "/download/" + name, nil
}

func (b *Bridge) bumpWrites() {
	b.statsMu.Lock()
	b.diskWrites++
	b.statsMu.Unlock()
}

// DiskWrites returns the number of completed write operations.
func (b *Bridge) DiskWrites() int64 {
	b.statsMu.Lock()
	defer b.statsMu.Unlock()
	return b.diskWrites
}
