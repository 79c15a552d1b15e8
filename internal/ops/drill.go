package ops

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/reachravi55/myDailyRoutine/internal/model"
)

type DrillReport struct {
	Archive        string   `json:"archive"`
	ArchiveSHA256  string   `json:"archive_sha256"`
	DocumentDigest string   `json:"document_digest"`
	Manifest       Manifest `json:"manifest"`
}

// Drill exports the current document into workDir, reads the archive back and
// fails unless the decoded document digests the same as the source.
func Drill(ctx context.Context, src DocumentReader, workDir string, now time.Time) (DrillReport, error) {
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return DrillReport{}, err
	}
	doc, err := src.Read(ctx)
	if err != nil {
		return DrillReport{}, err
	}
	want, err := DocumentDigest(doc)
	if err != nil {
		return DrillReport{}, err
	}

	ts := now.UTC().Format("20060102T150405Z")
	archive := filepath.Join(workDir, "routine-drill-"+ts+".tar.gz")
	if _, err := ExportDocument(ctx, staticReader{doc}, archive, now); err != nil {
		return DrillReport{}, err
	}
	m, restored, err := ReadArchive(archive)
	if err != nil {
		return DrillReport{}, err
	}
	got, err := DocumentDigest(restored)
	if err != nil {
		return DrillReport{}, err
	}
	if got != want {
		return DrillReport{}, fmt.Errorf("digest mismatch after restore: src=%s restored=%s", want, got)
	}
	sum, err := FileSHA256(archive)
	if err != nil {
		return DrillReport{}, err
	}
	return DrillReport{Archive: archive, ArchiveSHA256: sum, DocumentDigest: want, Manifest: m}, nil
}

// DocumentDigest hashes the canonical JSON form of doc. Map keys encode
// sorted, so equal documents digest equally.
func DocumentDigest(doc model.Document) (string, error) {
	doc.Normalize()
	b, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

func FileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// staticReader pins the document the drill digested so a concurrent edit
// cannot fail the comparison.
type staticReader struct{ doc model.Document }

func (s staticReader) Read(context.Context) (model.Document, error) { return s.doc, nil }
