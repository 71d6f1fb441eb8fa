package index

import (
	"bufio"
	"bytes"
	"io"
	"iter"
	"os"
	"path"

	"github.com/Masterminds/semver/v3"
	"github.com/go-git/go-billy/v5"
	"github.com/pkg/errors"

	"OpenCargoRegistry/models"
)

var ErrNotFound = errors.New("index: not found")

const maxLineLength = 16 << 20

// Tree is the working tree of the index: one JSON-Lines file per crate plus
// config.json. Every write goes to a temporary file that is renamed over the
// target, so readers see either the old or the new content, never a partial line.
// Tree does no locking of its own.
type Tree struct {
	fs billy.Filesystem
}

func NewTree(fs billy.Filesystem) *Tree {
	return &Tree{fs: fs}
}

// Records yields the records of a crate in file order.
// A crate without an index file yields nothing.
func (t *Tree) Records(name string) iter.Seq2[*models.CrateVersion, error] {
	p := Path(name)
	return func(yield func(*models.CrateVersion, error) bool) {
		f, err := t.fs.Open(p)
		if err != nil {
			if !os.IsNotExist(err) {
				yield(nil, errors.Wrapf(err, "opening %s", p))
			}
			return
		}
		defer f.Close()

		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLineLength)
		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}
			record, err := models.UnmarshalLine(line)
			if err != nil {
				yield(nil, errors.Wrapf(err, "decoding %s", p))
				return
			}
			if !yield(record, nil) {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			yield(nil, errors.Wrapf(err, "reading %s", p))
		}
	}
}

// Latest returns the record with the highest version.
func (t *Tree) Latest(name string) (*models.CrateVersion, error) {
	return t.best(name, nil)
}

// Match returns the record with the highest version satisfying req.
func (t *Tree) Match(name string, req *semver.Constraints) (*models.CrateVersion, error) {
	return t.best(name, req)
}

func (t *Tree) best(name string, req *semver.Constraints) (*models.CrateVersion, error) {
	var best *models.CrateVersion
	var bestVersion *semver.Version
	for record, err := range t.Records(name) {
		if err != nil {
			return nil, err
		}
		version, err := semver.NewVersion(record.Vers)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid version %q in index of %s", record.Vers, name)
		}
		if req != nil && !req.Check(version) {
			continue
		}
		if bestVersion == nil || version.GreaterThan(bestVersion) {
			best, bestVersion = record, version
		}
	}
	if best == nil {
		return nil, ErrNotFound
	}
	return best, nil
}

// Find returns the record of exactly this version. Partial versions such
// as `1.0` address no record.
func (t *Tree) Find(name string, version string) (*models.CrateVersion, error) {
	wanted, err := models.ParseVersion(version)
	if err != nil {
		return nil, ErrNotFound
	}
	for record, err := range t.Records(name) {
		if err != nil {
			return nil, err
		}
		if v, err := semver.NewVersion(record.Vers); err == nil && v.Equal(wanted) && v.Metadata() == wanted.Metadata() {
			return record, nil
		}
	}
	return nil, ErrNotFound
}

// Exists reports whether the crate has an index file.
func (t *Tree) Exists(name string) bool {
	_, err := t.fs.Stat(Path(name))
	return err == nil
}

// Append adds one line to the crate's index file, creating it if needed.
func (t *Tree) Append(name string, record *models.CrateVersion) error {
	line, err := record.MarshalLine()
	if err != nil {
		return errors.Wrap(err, "encoding record")
	}
	p := Path(name)
	current, err := t.read(p)
	if err != nil && !os.IsNotExist(errors.Cause(err)) {
		return err
	}
	if len(current) > 0 && current[len(current)-1] != '\n' {
		current = append(current, '\n')
	}
	return t.replace(p, append(append(current, line...), '\n'))
}

// Alter rewrites the yank flag of the record addressed by version.
// fn may change any field of the copy it gets but only Yanked is kept.
// The other lines are preserved byte for byte.
func (t *Tree) Alter(name string, version string, fn func(*models.CrateVersion)) (bool, error) {
	wanted, err := models.ParseVersion(version)
	if err != nil {
		return false, ErrNotFound
	}
	p := Path(name)
	data, err := t.read(p)
	if err != nil {
		if os.IsNotExist(errors.Cause(err)) {
			return false, ErrNotFound
		}
		return false, err
	}

	lines := bytes.SplitAfter(data, []byte("\n"))
	for i, raw := range lines {
		line := bytes.TrimSpace(raw)
		if len(line) == 0 {
			continue
		}
		record, err := models.UnmarshalLine(line)
		if err != nil {
			return false, errors.Wrapf(err, "decoding %s", p)
		}
		v, err := semver.NewVersion(record.Vers)
		if err != nil || !v.Equal(wanted) || v.Metadata() != wanted.Metadata() {
			continue
		}

		altered := *record
		fn(&altered)
		if altered.Yanked == record.Yanked {
			return false, nil
		}
		record.Yanked = altered.Yanked
		encoded, err := record.MarshalLine()
		if err != nil {
			return false, errors.Wrap(err, "encoding record")
		}
		lines[i] = append(encoded, '\n')
		return true, t.replace(p, bytes.Join(lines, nil))
	}
	return false, ErrNotFound
}

// ReadFile returns the content and file info of a file addressed by its
// slash separated path inside the tree.
func (t *Tree) ReadFile(p string) ([]byte, os.FileInfo, error) {
	info, err := t.fs.Stat(p)
	if err != nil {
		return nil, nil, err
	}
	if info.IsDir() {
		return nil, nil, &os.PathError{Op: "read", Path: p, Err: os.ErrNotExist}
	}
	data, err := t.read(p)
	if err != nil {
		return nil, nil, errors.Cause(err)
	}
	return data, info, nil
}

// HasConfig reports whether config.json exists.
func (t *Tree) HasConfig() bool {
	_, err := t.fs.Stat(ConfigFile)
	return err == nil
}

// WriteConfig writes config.json.
func (t *Tree) WriteConfig(cfg models.IndexConfig) error {
	data, err := cfg.Marshal()
	if err != nil {
		return errors.Wrap(err, "encoding config")
	}
	return t.replace(ConfigFile, data)
}

type snapshot struct {
	path    string
	data    []byte
	existed bool
}

func (t *Tree) snapshot(p string) (*snapshot, error) {
	data, err := t.read(p)
	if err != nil {
		if os.IsNotExist(errors.Cause(err)) {
			return &snapshot{path: p}, nil
		}
		return nil, err
	}
	return &snapshot{path: p, data: data, existed: true}, nil
}

func (t *Tree) restore(s *snapshot) error {
	if !s.existed {
		if err := t.fs.Remove(s.path); err != nil && !os.IsNotExist(err) {
			return errors.Wrapf(err, "removing %s", s.path)
		}
		return nil
	}
	return t.replace(s.path, s.data)
}

func (t *Tree) read(p string) ([]byte, error) {
	f, err := t.fs.Open(p)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", p)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", p)
	}
	return data, nil
}

// replace atomically swaps the content of p.
func (t *Tree) replace(p string, data []byte) (err error) {
	dir := path.Dir(p)
	if err := t.fs.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "creating %s", dir)
	}
	tmp, err := t.fs.TempFile(dir, ".tmp-"+path.Base(p)+"-")
	if err != nil {
		return errors.Wrapf(err, "creating temporary file for %s", p)
	}
	defer func() {
		if err != nil {
			_ = t.fs.Remove(tmp.Name())
		}
	}()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "writing %s", tmp.Name())
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "closing %s", tmp.Name())
	}
	if err := t.fs.Rename(tmp.Name(), p); err != nil {
		return errors.Wrapf(err, "renaming %s", tmp.Name())
	}
	return nil
}
