package index

import (
	"path"
	"strings"

	"OpenCargoRegistry/models"
)

const ConfigFile = "config.json"

// Path returns the slash separated location of a crate's index file.
//
//	1 char   -> 1/<name>
//	2 chars  -> 2/<name>
//	3 chars  -> 3/<first char>/<name>
//	4+ chars -> <chars 0..2>/<chars 2..4>/<name>
func Path(name string) string {
	return layout(models.CanonicalName(name))
}

func layout(name string) string {
	switch len(name) {
	case 0:
		return ""
	case 1:
		return path.Join("1", name)
	case 2:
		return path.Join("2", name)
	case 3:
		return path.Join("3", name[:1], name)
	default:
		return path.Join(name[:2], name[2:4], name)
	}
}

// CleanPath validates a client supplied index path (as used by the sparse
// protocol) and returns it in canonical form. Paths escaping the tree or
// pointing into the git metadata are rejected.
func CleanPath(p string) (string, bool) {
	if p == "" || strings.Contains(p, "\\") {
		return "", false
	}
	cleaned := path.Clean("/" + p)[1:]
	if cleaned == "" || cleaned != strings.TrimPrefix(p, "/") {
		return "", false
	}
	for _, segment := range strings.Split(cleaned, "/") {
		if segment == ".." || strings.HasPrefix(segment, ".") {
			return "", false
		}
	}
	return cleaned, true
}

// ResolveRequestPath maps a sparse request path to the index file it denotes.
// Clients address files by the lowercased name as written in their manifest,
// which may differ from the canonical name in `-` versus `_`.
func ResolveRequestPath(p string) (string, bool) {
	cleaned, ok := CleanPath(p)
	if !ok {
		return "", false
	}
	if cleaned == ConfigFile {
		return cleaned, true
	}
	name := path.Base(cleaned)
	if models.ValidateName(name) != nil {
		return "", false
	}
	if cleaned != layout(strings.ToLower(name)) && cleaned != Path(name) {
		return "", false
	}
	return Path(name), true
}
