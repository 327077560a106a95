package apply

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gitlab.com/tozd/go/errors"
)

// Options controls how a replacement file is put in place.
// BackupSuffix is used only when Backup is true; if empty, "~" is used.
type Options struct {
	Backup       bool
	BackupSuffix string
	// Force turns a failure to copy the original's owner or permissions
	// into a warning (Pending.AttrErr) instead of an error.
	Force bool
	// KeepTimes restores the original's access and modification times.
	KeepTimes bool
}

// ErrKeepTimes is wrapped by Commit when the replacement is in place but the
// original times could not be restored.
var ErrKeepTimes = errors.New("restoring file times")

// AttrError reports that the temporary file could not be given the
// original's owner or permissions.
type AttrError struct {
	Path string
	Err  error
}

func (e *AttrError) Error() string {
	return fmt.Sprintf("unable to set attributes of %s: %v", e.Path, e.Err)
}

func (e *AttrError) Unwrap() error { return e.Err }

// Pending is replacement content being written next to the file it will
// replace. Nothing is visible at the original path until Commit.
type Pending struct {
	path string
	info fs.FileInfo
	opts Options
	f    *os.File
	done bool

	// AttrErr is set when attributes could not be copied and Force allowed
	// the file to be processed anyway.
	AttrErr error
}

// Create starts a replacement for path, whose Lstat result is info:
//  1. create a temp file in the same dir
//  2. copy owner and permission bits of the original
//
// A failed attribute copy discards the temp file and returns an *AttrError
// unless opts.Force is set.
func Create(path string, info fs.FileInfo, opts Options) (*Pending, error) {
	if opts.BackupSuffix == "" {
		opts.BackupSuffix = "~"
	}
	tf, err := os.CreateTemp(filepath.Dir(path), ".tmp.rpl-*")
	if err != nil {
		return nil, errors.Errorf("cannot create temp file: %w", err)
	}
	p := &Pending{path: path, info: info, opts: opts, f: tf}

	aerr := chown(tf, info)
	if aerr == nil {
		aerr = tf.Chmod(info.Mode() & (fs.ModePerm | fs.ModeSetuid | fs.ModeSetgid | fs.ModeSticky))
	}
	if aerr != nil {
		aerr = &AttrError{Path: path, Err: aerr}
		if !opts.Force {
			return nil, errors.Join(aerr, p.Discard())
		}
		p.AttrErr = aerr
	}
	return p, nil
}

// Name returns the temporary file's path.
func (p *Pending) Name() string { return p.f.Name() }

func (p *Pending) Write(b []byte) (int, error) { return p.f.Write(b) }

// Discard closes and removes the temporary file. It is a no-op after Commit
// or a previous Discard.
func (p *Pending) Discard() error {
	if p.done {
		return nil
	}
	p.done = true
	cerr := p.f.Close()
	if err := os.Remove(p.f.Name()); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return errors.Errorf("removing temp file %s: %w", p.f.Name(), err)
	}
	if cerr != nil && !errors.Is(cerr, os.ErrClosed) {
		return errors.Errorf("closing temp file: %w", cerr)
	}
	return nil
}

// Commit puts the replacement in place:
//  1. fsync and close the temp file
//  2. optionally move the original to a unique backup name
//  3. atomic rename over the original
//  4. optionally restore the original times
//  5. fsync the parent directory (best-effort)
//
// On failure the temp file is removed and the original left in place, except
// for errors wrapping ErrKeepTimes, which happen after the rename.
func (p *Pending) Commit() (err error) {
	if p.done {
		return errors.New("apply: commit after discard")
	}
	defer func() {
		if err != nil {
			err = errors.Join(err, p.Discard())
		}
	}()

	if err := p.f.Sync(); err != nil {
		return errors.Errorf("fsync temp: %w", err)
	}
	if err := p.f.Close(); err != nil {
		return errors.Errorf("close temp: %w", err)
	}

	dir, base := filepath.Dir(p.path), filepath.Base(p.path)
	backup := ""
	if p.opts.Backup {
		backup, err = uniqueBackupPath(dir, base, p.opts.BackupSuffix)
		if err != nil {
			return err
		}
		if err := os.Rename(p.path, backup); err != nil {
			return errors.Errorf("renaming %s to %s: %w", p.path, backup, err)
		}
	}

	if err := os.Rename(p.f.Name(), p.path); err != nil {
		if backup != "" {
			_ = os.Rename(backup, p.path)
		}
		return errors.Errorf("could not replace %s: %w", p.path, err)
	}
	p.done = true

	if p.opts.KeepTimes {
		if err := os.Chtimes(p.path, accessTime(p.info), p.info.ModTime()); err != nil {
			return errors.Errorf("%w of %s: %v", ErrKeepTimes, p.path, err)
		}
	}

	_ = syncDir(dir)
	return nil
}

func uniqueBackupPath(dir, base, suffix string) (string, error) {
	cand := filepath.Join(dir, base+suffix)
	if _, err := os.Lstat(cand); errors.Is(err, fs.ErrNotExist) {
		return cand, nil
	}
	for i := 1; i < 1000; i++ {
		p := filepath.Join(dir, fmt.Sprintf("%s%s.%d", base, suffix, i))
		if _, err := os.Lstat(p); errors.Is(err, fs.ErrNotExist) {
			return p, nil
		}
	}
	return "", errors.Errorf("too many existing backups for %s", base)
}

func syncDir(dir string) error {
	df, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer func() { _ = df.Close() }()
	return df.Sync()
}
