package ops

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/reachravi55/myDailyRoutine/internal/model"
)

const (
	FormatName    = "mydailyroutine-export"
	FormatVersion = 1

	manifestEntry = "manifest.json"
	documentEntry = "routine.json"

	maxEntryBytes = 64 << 20
)

type Manifest struct {
	Format     string    `json:"format"`
	Version    int       `json:"version"`
	ExportedAt time.Time `json:"exported_at"`
	Lists      int       `json:"lists"`
	Tasks      int       `json:"tasks"`
	Overrides  int       `json:"overrides"`
}

type DocumentReader interface {
	Read(ctx context.Context) (model.Document, error)
}

type DocumentMutator interface {
	MutateDocument(ctx context.Context, fn func(*model.Document) error) (model.Document, error)
}

// ExportDocument writes the current document to a .tar.gz archive holding
// manifest.json and routine.json.
func ExportDocument(ctx context.Context, src DocumentReader, archivePath string, now time.Time) (Manifest, error) {
	archivePath = filepath.Clean(strings.TrimSpace(archivePath))
	if archivePath == "" || archivePath == "." {
		return Manifest{}, fmt.Errorf("archivePath is required")
	}
	doc, err := src.Read(ctx)
	if err != nil {
		return Manifest{}, err
	}

	m := Manifest{
		Format:     FormatName,
		Version:    FormatVersion,
		ExportedAt: now.UTC(),
		Lists:      len(doc.Lists),
		Tasks:      len(doc.Tasks),
		Overrides:  countOverrides(doc),
	}
	manifest, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return Manifest{}, err
	}
	body, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return Manifest{}, err
	}

	if err := os.MkdirAll(filepath.Dir(archivePath), 0o755); err != nil {
		return Manifest{}, err
	}
	f, err := os.Create(archivePath)
	if err != nil {
		return Manifest{}, err
	}
	defer f.Close()

	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)
	for _, e := range []struct {
		name string
		data []byte
	}{{manifestEntry, manifest}, {documentEntry, body}} {
		hdr := &tar.Header{
			Name:     e.name,
			Mode:     0o644,
			Size:     int64(len(e.data)),
			ModTime:  m.ExportedAt,
			Typeflag: tar.TypeReg,
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return Manifest{}, err
		}
		if _, err := tw.Write(e.data); err != nil {
			return Manifest{}, err
		}
	}
	if err := tw.Close(); err != nil {
		return Manifest{}, err
	}
	if err := gz.Close(); err != nil {
		return Manifest{}, err
	}
	return m, f.Close()
}

// ImportDocument replaces the whole document with the archive's contents in one commit.
func ImportDocument(ctx context.Context, dst DocumentMutator, archivePath string) (Manifest, error) {
	m, doc, err := ReadArchive(archivePath)
	if err != nil {
		return Manifest{}, err
	}
	_, err = dst.MutateDocument(ctx, func(cur *model.Document) error {
		*cur = doc
		return nil
	})
	if err != nil {
		return Manifest{}, err
	}
	return m, nil
}

// ReadArchive decodes and validates an export archive without applying it.
func ReadArchive(archivePath string) (Manifest, model.Document, error) {
	archivePath = filepath.Clean(strings.TrimSpace(archivePath))
	if archivePath == "" || archivePath == "." {
		return Manifest{}, model.Document{}, fmt.Errorf("archivePath is required")
	}
	f, err := os.Open(archivePath)
	if err != nil {
		return Manifest{}, model.Document{}, err
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return Manifest{}, model.Document{}, err
	}
	defer gz.Close()

	var (
		m       Manifest
		doc     model.Document
		haveM   bool
		haveDoc bool
	)
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Manifest{}, model.Document{}, err
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		name, err := sanitizeArchiveRelPath(hdr.Name)
		if err != nil {
			return Manifest{}, model.Document{}, err
		}
		data, err := io.ReadAll(io.LimitReader(tr, maxEntryBytes+1))
		if err != nil {
			return Manifest{}, model.Document{}, err
		}
		if len(data) > maxEntryBytes {
			return Manifest{}, model.Document{}, fmt.Errorf("archive entry too large: %s", name)
		}

		switch name {
		case manifestEntry:
			if err := json.Unmarshal(data, &m); err != nil {
				return Manifest{}, model.Document{}, fmt.Errorf("manifest: %w", err)
			}
			haveM = true
		case documentEntry:
			doc = model.NewDocument()
			if err := json.Unmarshal(data, &doc); err != nil {
				return Manifest{}, model.Document{}, fmt.Errorf("document: %w", err)
			}
			doc.Normalize()
			haveDoc = true
		default:
			// Ignore unknown entries.
		}
	}

	if !haveM || !haveDoc {
		return Manifest{}, model.Document{}, errors.New("archive is missing manifest.json or routine.json")
	}
	if m.Format != FormatName {
		return Manifest{}, model.Document{}, fmt.Errorf("unexpected archive format %q", m.Format)
	}
	if m.Version > FormatVersion {
		return Manifest{}, model.Document{}, fmt.Errorf("archive version %d is newer than supported %d", m.Version, FormatVersion)
	}
	return m, doc, nil
}

func countOverrides(doc model.Document) int {
	n := 0
	for _, byDate := range doc.Overrides {
		n += len(byDate)
	}
	return n
}

func sanitizeArchiveRelPath(name string) (string, error) {
	name = filepath.Clean(strings.TrimSpace(name))
	if name == "." || name == "" {
		return "", fmt.Errorf("invalid archive entry path")
	}
	if filepath.IsAbs(name) {
		return "", fmt.Errorf("invalid absolute archive entry path: %s", name)
	}
	if strings.HasPrefix(name, ".."+string(filepath.Separator)) || name == ".." {
		return "", fmt.Errorf("invalid archive entry path traversal: %s", name)
	}
	return filepath.ToSlash(name), nil
}
