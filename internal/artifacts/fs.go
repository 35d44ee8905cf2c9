package artifacts

import (
	"archive/zip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// DefaultRoot is the default artifact root (per-workspace).
const DefaultRoot = ".obelus/artifacts"

// FS is the local filesystem artifact store. Each artifact is a zip file
// <root>/<name>.zip beside its sidecar record <root>/<name>.json.
type FS struct {
	Root string
}

// NewFS returns a store rooted at root, creating the directory.
func NewFS(root string) (*FS, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("create artifact root: %w", err)
	}
	return &FS{Root: root}, nil
}

// Put archives srcDir under name. The zip is hashed while it is written and
// the sidecar record is written last, so a record always describes a complete
// archive.
func (s *FS) Put(ctx context.Context, name, srcDir string) (*Record, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	zipPath := filepath.Join(s.Root, name+".zip")
	f, err := os.Create(zipPath)
	if err != nil {
		return nil, fmt.Errorf("create artifact %s: %w", name, err)
	}
	h := sha256.New()
	zw := zip.NewWriter(io.MultiWriter(f, h))
	if err := addDir(ctx, zw, srcDir); err != nil {
		zw.Close()
		f.Close()
		os.Remove(zipPath)
		return nil, fmt.Errorf("archive %s: %w", name, err)
	}
	if err := zw.Close(); err != nil {
		f.Close()
		os.Remove(zipPath)
		return nil, fmt.Errorf("finish archive %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(zipPath)
		return nil, fmt.Errorf("close archive %s: %w", name, err)
	}
	info, err := os.Stat(zipPath)
	if err != nil {
		return nil, fmt.Errorf("stat archive %s: %w", name, err)
	}
	rec := &Record{
		Name:      name,
		SizeBytes: info.Size(),
		SHA256:    hex.EncodeToString(h.Sum(nil)),
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}
	raw, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal record %s: %w", name, err)
	}
	if err := os.WriteFile(filepath.Join(s.Root, name+".json"), raw, 0644); err != nil {
		return nil, fmt.Errorf("write record %s: %w", name, err)
	}
	return rec, nil
}

// Fetch extracts the named artifact into destDir, creating it if needed.
func (s *FS) Fetch(ctx context.Context, name, destDir string) error {
	if err := checkName(name); err != nil {
		return err
	}
	zipPath := filepath.Join(s.Root, name+".zip")
	zr, err := zip.OpenReader(zipPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("artifact %q: %w", name, ErrNotFound)
		}
		return fmt.Errorf("open artifact %s: %w", name, err)
	}
	defer zr.Close()
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return fmt.Errorf("create dest dir: %w", err)
	}
	cleanDest := filepath.Clean(destDir)
	for _, entry := range zr.File {
		if err := ctx.Err(); err != nil {
			return err
		}
		target := filepath.Join(cleanDest, entry.Name)
		// Entry paths must stay inside destDir.
		if target != cleanDest && !strings.HasPrefix(target, cleanDest+string(os.PathSeparator)) {
			return fmt.Errorf("artifact %s: illegal path %q", name, entry.Name)
		}
		if entry.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				return fmt.Errorf("extract %s: %w", entry.Name, err)
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return fmt.Errorf("extract %s: %w", entry.Name, err)
		}
		if err := extractFile(entry, target); err != nil {
			return fmt.Errorf("extract %s: %w", entry.Name, err)
		}
	}
	return nil
}

// Stat returns the record for name, or ErrNotFound.
func (s *FS) Stat(_ context.Context, name string) (*Record, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(s.Root, name+".json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("artifact %q: %w", name, ErrNotFound)
		}
		return nil, fmt.Errorf("read record %s: %w", name, err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parse record %s: %w", name, err)
	}
	return &rec, nil
}

// List returns all records, sorted by name.
func (s *FS) List(ctx context.Context) ([]Record, error) {
	entries, err := os.ReadDir(s.Root)
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	var recs []Record
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		rec, err := s.Stat(ctx, strings.TrimSuffix(e.Name(), ".json"))
		if err != nil {
			return nil, err
		}
		recs = append(recs, *rec)
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].Name < recs[j].Name })
	return recs, nil
}

func addDir(ctx context.Context, zw *zip.Writer, srcDir string) error {
	return filepath.WalkDir(srcDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			_, err := zw.Create(rel + "/")
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		hdr, err := zip.FileInfoHeader(info)
		if err != nil {
			return err
		}
		hdr.Name = rel
		hdr.Method = zip.Deflate
		w, err := zw.CreateHeader(hdr)
		if err != nil {
			return err
		}
		src, err := os.Open(path)
		if err != nil {
			return err
		}
		defer src.Close()
		_, err = io.Copy(w, src)
		return err
	})
}

func extractFile(entry *zip.File, target string) error {
	src, err := entry.Open()
	if err != nil {
		return err
	}
	defer src.Close()
	mode := entry.Mode()
	if mode == 0 {
		mode = 0644
	}
	dst, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return err
	}
	return dst.Close()
}

func checkName(name string) error {
	if name == "" {
		return fmt.Errorf("artifact name is empty")
	}
	if strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return fmt.Errorf("artifact name %q contains path elements", name)
	}
	return nil
}
