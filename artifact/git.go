package artifact

import (
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/teranos/exemplar/errors"
	"github.com/teranos/exemplar/logger"
)

// checkpoint stages and commits the written files when dir sits inside a
// git work tree. It returns "" without error when there is no repository.
func (w *Writer) checkpoint(dir string, written []string) (string, error) {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if errors.Is(err, git.ErrRepositoryNotExists) {
		w.log.Debugw("no git repository, skipping checkpoint", logger.FieldPath, dir)
		return "", nil
	}
	if err != nil {
		return "", errors.Wrapf(err, "open repository for %s", dir)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return "", errors.Wrap(err, "open worktree")
	}
	root, err := filepath.EvalSymlinks(wt.Filesystem.Root())
	if err != nil {
		return "", errors.Wrap(err, "resolve worktree root")
	}

	for _, path := range written {
		abs, err := filepath.Abs(path)
		if err != nil {
			return "", errors.Wrapf(err, "resolve %s", path)
		}
		if resolved, err := filepath.EvalSymlinks(abs); err == nil {
			abs = resolved
		}
		rel, err := filepath.Rel(root, abs)
		if err != nil || strings.HasPrefix(rel, "..") {
			return "", errors.Newf("%s is outside the work tree %s", path, root)
		}
		if _, err := wt.Add(filepath.ToSlash(rel)); err != nil {
			return "", errors.Wrapf(err, "stage %s", rel)
		}
	}

	msg := "exemplar: checkpoint " + filepath.Base(dir)
	hash, err := wt.Commit(msg, &git.CommitOptions{
		Author: &object.Signature{
			Name:  w.opts.AuthorName,
			Email: w.opts.AuthorEmail,
			When:  w.opts.Clock(),
		},
	})
	if err != nil {
		return "", errors.Wrap(err, "commit checkpoint")
	}
	w.log.Infow("checkpoint committed", "commit", hash.String(), logger.FieldCount, len(written))
	return hash.String(), nil
}
