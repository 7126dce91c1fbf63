// Package artifact persists validated generation output.
//
// Writes never destroy earlier content: an existing file is renamed to
// <name>.<timestamp>.bak before its replacement is renamed into place, and a
// set of artifacts is written all or nothing.
package artifact

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/exemplar/am"
	"github.com/teranos/exemplar/errors"
	"github.com/teranos/exemplar/logger"
)

// Kind labels an artifact.
type Kind string

const (
	KindImplementation Kind = "implementation"
	KindDataModel      Kind = "data_model"
	KindTests          Kind = "tests"
	KindSpecification  Kind = "specification"
)

// Artifact is one file to write. Name is relative to the output directory.
type Artifact struct {
	Name    string
	Kind    Kind
	Content []byte
}

// WriteResult lists what a Write changed.
type WriteResult struct {
	Dir     string
	Written []string
	// Backups maps each overwritten path to the path it was renamed to.
	Backups map[string]string
	// Commit is the checkpoint commit hash, empty when none was made.
	Commit string
}

// DefaultBackupTimeFormat is used when Options leave it empty.
const DefaultBackupTimeFormat = "20060102T150405"

// Options configures a Writer.
type Options struct {
	BackupTimeFormat string
	GitCheckpoint    bool
	AuthorName       string
	AuthorEmail      string
	// Clock stamps backups and commits. Defaults to time.Now.
	Clock func() time.Time
}

// Writer writes artifacts. It is safe for concurrent use on distinct directories.
type Writer struct {
	opts Options
	log  *zap.SugaredLogger
}

// NewWriter creates a writer. log may be nil.
func NewWriter(opts Options, log *zap.SugaredLogger) *Writer {
	if opts.BackupTimeFormat == "" {
		opts.BackupTimeFormat = DefaultBackupTimeFormat
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.AuthorName == "" {
		opts.AuthorName = "exemplar"
	}
	if opts.AuthorEmail == "" {
		opts.AuthorEmail = "exemplar@localhost"
	}
	return &Writer{opts: opts, log: logger.Nop(log)}
}

// Write persists arts under dir, all or nothing. Every artifact is first
// staged as a temporary file next to its target; only when all are staged
// are existing files moved to backups and the staged files renamed into
// place. Any failure undoes the whole set: new files are removed, backups
// are moved back and directories created by the call are removed.
//
// A failing git checkpoint does not undo the write; the result is returned
// with the error.
func (w *Writer) Write(ctx context.Context, dir string, arts []Artifact) (*WriteResult, error) {
	if len(arts) == 0 {
		return nil, errors.New("no artifacts to write")
	}
	for _, a := range arts {
		if err := checkName(a.Name); err != nil {
			return nil, err
		}
	}
	if err := checkOverlap(arts); err != nil {
		return nil, err
	}

	tx := &writeTx{log: w.log}
	if err := tx.mkdirAll(dir); err != nil {
		return nil, tx.rollback(errors.Wrapf(err, "create output directory %s", dir))
	}

	for _, a := range arts {
		if err := ctx.Err(); err != nil {
			return nil, tx.rollback(errors.Wrap(err, "write cancelled"))
		}
		path := filepath.Join(dir, a.Name)
		if err := tx.mkdirAll(filepath.Dir(path)); err != nil {
			return nil, tx.rollback(errors.Wrapf(err, "create directory for %s", a.Name))
		}
		tmp, err := stage(path, a.Content)
		if err != nil {
			return nil, tx.rollback(errors.Wrapf(err, "write %s", a.Name))
		}
		tx.staged = append(tx.staged, stagedFile{path: path, tmp: tmp, kind: a.Kind, size: len(a.Content)})
	}
	if err := ctx.Err(); err != nil {
		return nil, tx.rollback(errors.Wrap(err, "write cancelled"))
	}

	stamp := w.opts.Clock().Format(w.opts.BackupTimeFormat)
	for i := range tx.staged {
		f := &tx.staged[i]
		backup, err := w.backup(f.path, stamp)
		if err != nil {
			return nil, tx.rollback(err)
		}
		f.backup = backup
		if err := os.Rename(f.tmp, f.path); err != nil {
			return nil, tx.rollback(errors.Wrapf(err, "rename %s into place", f.path))
		}
		f.tmp = ""
		f.placed = true
	}

	res := &WriteResult{Dir: dir, Backups: make(map[string]string)}
	for _, f := range tx.staged {
		if f.backup != "" {
			res.Backups[f.path] = f.backup
			w.log.Infow("previous artifact preserved", logger.FieldFile, f.path, logger.FieldBackup, f.backup)
		}
		res.Written = append(res.Written, f.path)
		w.log.Debugw("artifact written", logger.FieldFile, f.path, logger.FieldKind, f.kind, "bytes", f.size)
	}

	if w.opts.GitCheckpoint {
		hash, err := w.checkpoint(dir, res.Written)
		if err != nil {
			return res, err
		}
		res.Commit = hash
	}
	return res, nil
}

type stagedFile struct {
	path   string
	tmp    string
	backup string
	placed bool
	kind   Kind
	size   int
}

// writeTx tracks what one Write changed so it can be undone.
type writeTx struct {
	staged  []stagedFile
	created []string // directories, outermost first
	log     *zap.SugaredLogger
}

// mkdirAll creates dir and records every directory it had to create.
func (tx *writeTx) mkdirAll(dir string) error {
	var missing []string
	for d := filepath.Clean(dir); ; d = filepath.Dir(d) {
		if _, err := os.Lstat(d); err == nil {
			break
		}
		missing = append(missing, d)
		if parent := filepath.Dir(d); parent == d {
			break
		}
	}
	err := os.MkdirAll(dir, am.DefaultDirPermissions)
	for i := len(missing) - 1; i >= 0; i-- {
		tx.created = append(tx.created, missing[i])
	}
	return err
}

// rollback undoes the transaction and returns cause, with any cleanup
// failure attached as a secondary error.
func (tx *writeTx) rollback(cause error) error {
	for i := len(tx.staged) - 1; i >= 0; i-- {
		f := tx.staged[i]
		if f.tmp != "" {
			os.Remove(f.tmp)
		}
		if f.placed {
			if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
				cause = errors.WithSecondaryError(cause, err)
			}
		}
		if f.backup != "" {
			if err := os.Rename(f.backup, f.path); err != nil {
				cause = errors.WithSecondaryError(cause, errors.Wrapf(err, "restore %s", f.path))
				continue
			}
			tx.log.Debugw("artifact restored", logger.FieldFile, f.path, logger.FieldBackup, f.backup)
		}
	}
	for i := len(tx.created) - 1; i >= 0; i-- {
		os.Remove(tx.created[i])
	}
	return cause
}

func checkName(name string) error {
	if name == "" {
		return errors.New("artifact has no name")
	}
	clean := filepath.Clean(name)
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return errors.WithHint(
			errors.Newf("artifact name %q escapes the output directory", name),
			"use a path relative to the output directory")
	}
	return nil
}

// checkOverlap rejects sets that name one path twice or place one artifact
// inside another.
func checkOverlap(arts []Artifact) error {
	for i := range arts {
		a := filepath.Clean(arts[i].Name)
		for j := i + 1; j < len(arts); j++ {
			b := filepath.Clean(arts[j].Name)
			switch {
			case a == b:
				return errors.Newf("artifact %q is listed twice", arts[i].Name)
			case strings.HasPrefix(b, a+string(filepath.Separator)), strings.HasPrefix(a, b+string(filepath.Separator)):
				return errors.Newf("artifacts %q and %q overlap", arts[i].Name, arts[j].Name)
			}
		}
	}
	return nil
}

// backup renames an existing file at path and returns the new name, or ""
// when there was nothing to preserve.
func (w *Writer) backup(path, stamp string) (string, error) {
	if _, err := os.Lstat(path); os.IsNotExist(err) {
		return "", nil
	} else if err != nil {
		return "", errors.Wrapf(err, "stat %s", path)
	}

	target := path + "." + stamp + ".bak"
	for n := 1; ; n++ {
		if _, err := os.Lstat(target); os.IsNotExist(err) {
			break
		}
		target = path + "." + stamp + "-" + strconv.Itoa(n) + ".bak"
	}
	if err := os.Rename(path, target); err != nil {
		return "", errors.Wrapf(err, "preserve %s", path)
	}
	return target, nil
}

// stage writes content to a synced temporary file beside path and
// returns its name.
func stage(path string, content []byte) (string, error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return "", errors.Wrap(err, "create temporary file")
	}
	name := tmp.Name()
	cleanup := func(err error) (string, error) {
		tmp.Close()
		os.Remove(name)
		return "", err
	}
	if _, err := tmp.Write(content); err != nil {
		return cleanup(errors.Wrap(err, "write temporary file"))
	}
	if err := tmp.Sync(); err != nil {
		return cleanup(errors.Wrap(err, "sync temporary file"))
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return "", errors.Wrap(err, "close temporary file")
	}
	if err := os.Chmod(name, am.DefaultFilePermissions); err != nil {
		os.Remove(name)
		return "", errors.Wrap(err, "chmod temporary file")
	}
	return name, nil
}

// Backups lists the preserved versions of path, sorted by name.
func Backups(path string) ([]string, error) {
	matches, err := filepath.Glob(path + ".*.bak")
	if err != nil {
		return nil, errors.Wrapf(err, "list backups of %s", path)
	}
	sort.Strings(matches)
	return matches, nil
}
