// This file contains the scan job. It walks the library directory, hashes
// every supported document and indexes it in the database.

package library

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/archon-dev/archon/internal/jobs"
	"github.com/archon-dev/archon/internal/models"
	"github.com/archon-dev/archon/internal/store"
	"github.com/archon-dev/archon/internal/util"
	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("library")

// Scan phases, in order.
const (
	PhaseDetection  = "detection"
	PhaseProcessing = "processing"
	PhaseIndexing   = "indexing"
)

type candidate struct {
	path string
	name string
	kind string
}

// Scanner runs library scans. The root and unit delay are read at the start
// of each run so configuration reloads apply to the next scan.
type Scanner struct {
	st        *store.Store
	root      func() string
	unitDelay func() time.Duration
}

// NewScanner creates a Scanner for the library returned by root.
func NewScanner(st *store.Store, root func() string, unitDelay func() time.Duration) *Scanner {
	if unitDelay == nil {
		unitDelay = func() time.Duration { return 0 }
	}
	return &Scanner{st: st, root: root, unitDelay: unitDelay}
}

// Register makes the scanner available as the scan job.
func (s *Scanner) Register(jm *jobs.Manager) {
	jm.Register(jobs.KindScan, s.Run)
}

// ErrOutsideLibrary is returned for a scan path that leaves the library.
var ErrOutsideLibrary = errors.New("path is outside the library")

// ResolvePath returns the directory to scan for a requested path. An empty
// path is the library root, a relative one is taken from the root, and an
// absolute one must lie under the root.
func ResolvePath(root, path string) (string, error) {
	if path == "" {
		return root, nil
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}
	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	pathAbs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(rootAbs, pathAbs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrOutsideLibrary, path)
	}
	return pathAbs, nil
}

// Run scans params["path"] within the library, or the whole library when
// it is empty.
func (s *Scanner) Run(ctx context.Context, r *jobs.Reporter, params jobs.Params) error {
	root, err := ResolvePath(s.root(), params["path"])
	if err != nil {
		return err
	}
	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("library path: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("library path %s is not a directory", root)
	}
	delay := s.unitDelay()

	r.SetPhase(PhaseDetection)
	files, err := detect(ctx, root, r)
	if err != nil {
		return err
	}
	r.SetTotal(len(files))
	log.Infof("Job %d: found %d documents under %s", r.JobID(), len(files), root)

	r.SetPhase(PhaseProcessing)
	var hashed []*models.Document
	for _, c := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		r.Begin(c.name)
		doc, err := hashFile(c)
		if err != nil {
			log.Warnf("Job %d: could not read %s: %v", r.JobID(), c.path, err)
			r.ItemFailed(c.name, err)
		} else {
			doc.JobID = r.JobID()
			hashed = append(hashed, doc)
			r.ItemDone(c.name)
		}
		if err := sleep(ctx, delay); err != nil {
			return err
		}
	}

	r.SetPhase(PhaseIndexing)
	for _, doc := range hashed {
		if err := ctx.Err(); err != nil {
			return err
		}
		r.Begin(doc.Path)
		if _, err := s.st.UpsertDocument(doc); err != nil {
			return err
		}
	}
	return nil
}

// detect walks root and returns the supported files in natural name order.
// Everything else is reported as skipped.
func detect(ctx context.Context, root string, r *jobs.Reporter) ([]candidate, error) {
	var files []candidate
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && d.Name()[0] == '.' {
				return filepath.SkipDir
			}
			return nil
		}
		name := relName(root, path)
		kind, ok := Classify(path)
		if !ok || !d.Type().IsRegular() {
			r.Skip(name)
			return nil
		}
		files = append(files, candidate{path: path, name: name, kind: kind})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("could not walk %s: %w", root, err)
	}
	slices.SortFunc(files, func(a, b candidate) int {
		return util.NaturalCompare(a.name, b.name)
	})
	return files, nil
}

func relName(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return path
	}
	return filepath.ToSlash(rel)
}

func hashFile(c candidate) (*models.Document, error) {
	f, err := os.Open(c.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	h := sha1.New()
	size, err := io.Copy(h, f)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(c.path)
	if err != nil {
		abs = c.path
	}
	return &models.Document{
		Path: abs,
		Kind: c.kind,
		Size: size,
		SHA1: hex.EncodeToString(h.Sum(nil)),
	}, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
