package rendering

import (
	"archive/tar"
	"bytes"
	"io"
	"path"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
)

// DefaultReadme is looked up when the manifest names no readme file.
const DefaultReadme = "README.md"

// MaxReadmeSize bounds the README read out of a tarball.
const MaxReadmeSize = 1 << 20

// ReadmePath returns the location of the readme inside a `.crate` tarball,
// `<name>-<version>/<file>`. Files escaping the package root are rejected.
func ReadmePath(name string, version string, readmeFile string) (string, bool) {
	if readmeFile == "" {
		readmeFile = DefaultReadme
	}
	cleaned := path.Clean("/" + strings.ReplaceAll(readmeFile, "\\", "/"))
	if cleaned == "/" {
		return "", false
	}
	return name + "-" + version + cleaned, true
}

// ExtractReadme returns the readme of a gzip compressed `.crate` tarball.
// found is false when the archive has no such file.
func ExtractReadme(tarball []byte, name string, version string, readmeFile string) (content string, found bool, err error) {
	want, ok := ReadmePath(name, version, readmeFile)
	if !ok {
		return "", false, nil
	}

	gz, err := gzip.NewReader(bytes.NewReader(tarball))
	if err != nil {
		return "", false, errors.Wrap(err, "opening crate archive")
	}
	defer gz.Close()

	archive := tar.NewReader(gz)
	for {
		header, err := archive.Next()
		if err == io.EOF {
			return "", false, nil
		}
		if err != nil {
			return "", false, errors.Wrap(err, "reading crate archive")
		}
		if header.Typeflag != tar.TypeReg || path.Clean(header.Name) != want {
			continue
		}
		data, err := io.ReadAll(io.LimitReader(archive, MaxReadmeSize+1))
		if err != nil {
			return "", false, errors.Wrapf(err, "reading %s", want)
		}
		if len(data) > MaxReadmeSize {
			return "", false, errors.Errorf("%s exceeds %d bytes", want, MaxReadmeSize)
		}
		return string(data), true, nil
	}
}
