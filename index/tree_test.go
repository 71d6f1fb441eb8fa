package index

import (
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"

	"OpenCargoRegistry/models"
)

func record(name string, version string) *models.CrateVersion {
	return &models.CrateVersion{Name: name, Vers: version, Cksum: strings.Repeat("0", 64)}
}

func readFile(t *testing.T, tree *Tree, p string) string {
	t.Helper()
	data, _, err := tree.ReadFile(p)
	if err != nil {
		t.Fatalf("failed to read %s: %v", p, err)
	}
	return string(data)
}

func Test_Append_NewCrate_CreatesFileWithOneLine(t *testing.T) {
	tree := NewTree(memfs.New())
	if err := tree.Append("hello", record("hello", "0.1.0")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := `{"name":"hello","vers":"0.1.0","deps":[],"cksum":"` + strings.Repeat("0", 64) + `","features":{},"yanked":false}` + "\n"
	if content := readFile(t, tree, "he/ll/hello"); content != expected {
		t.Errorf("expected %q, got %q", expected, content)
	}
}

func Test_Append_EquivalentNames_ShareOneFile(t *testing.T) {
	tree := NewTree(memfs.New())
	_ = tree.Append("hello", record("hello", "0.1.0"))
	_ = tree.Append("Hello", record("Hello", "0.2.0"))

	var names []string
	for r, err := range tree.Records("HELLO") {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		names = append(names, r.Name+"@"+r.Vers)
	}
	if strings.Join(names, ",") != "hello@0.1.0,Hello@0.2.0" {
		t.Errorf("unexpected records %v", names)
	}
}

func Test_Append_FileWithoutTrailingNewline_StartsNewLine(t *testing.T) {
	fs := memfs.New()
	line, _ := record("abc", "0.1.0").MarshalLine()
	if err := util.WriteFile(fs, "3/a/abc", line, 0o644); err != nil {
		t.Fatalf("failed to seed file: %v", err)
	}
	tree := NewTree(fs)
	if err := tree.Append("abc", record("abc", "0.2.0")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if lines := strings.Count(readFile(t, tree, "3/a/abc"), "\n"); lines != 2 {
		t.Errorf("expected 2 lines, got %d", lines)
	}
}

func Test_Append_LeavesNoTemporaryFiles(t *testing.T) {
	fs := memfs.New()
	tree := NewTree(fs)
	_ = tree.Append("hello", record("hello", "0.1.0"))
	entries, err := fs.ReadDir("he/ll")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "hello" {
		t.Errorf("expected only the index file, got %v", entries)
	}
}

func Test_Latest_OutOfOrderVersions_ReturnsHighest(t *testing.T) {
	tree := NewTree(memfs.New())
	_ = tree.Append("hello", record("hello", "0.1.0"))
	_ = tree.Append("hello", record("hello", "0.10.0"))
	_ = tree.Append("hello", record("hello", "0.9.0"))
	latest, err := tree.Latest("hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if latest.Vers != "0.10.0" {
		t.Errorf("expected 0.10.0, got %s", latest.Vers)
	}
}

func Test_Latest_UnknownCrate_ReturnsErrNotFound(t *testing.T) {
	tree := NewTree(memfs.New())
	if _, err := tree.Latest("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func Test_Match_Requirement_ReturnsHighestMatching(t *testing.T) {
	tree := NewTree(memfs.New())
	for _, v := range []string{"1.0.0", "1.2.0", "1.3.1", "2.0.0"} {
		_ = tree.Append("hello", record("hello", v))
	}
	req, _ := models.ParseRequirement("1.2")
	match, err := tree.Match("hello", req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if match.Vers != "1.3.1" {
		t.Errorf("expected 1.3.1, got %s", match.Vers)
	}

	req, _ = models.ParseRequirement(">=3")
	if _, err := tree.Match("hello", req); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func Test_Find_ExactVersion_ReturnsRecord(t *testing.T) {
	tree := NewTree(memfs.New())
	_ = tree.Append("hello", record("hello", "0.1.0"))
	if r, err := tree.Find("hello", "0.1.0"); err != nil || r.Vers != "0.1.0" {
		t.Errorf("expected 0.1.0, got %v (%v)", r, err)
	}
	if _, err := tree.Find("hello", "0.1.1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func Test_Find_PartialVersion_ReturnsErrNotFound(t *testing.T) {
	tree := NewTree(memfs.New())
	_ = tree.Append("hello", record("hello", "1.0.0"))
	for _, version := range []string{"1.0", "1", "v1.0.0"} {
		if _, err := tree.Find("hello", version); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound for %s, got %v", version, err)
		}
	}
}

func Test_Alter_PartialVersion_LeavesFileUntouched(t *testing.T) {
	tree := NewTree(memfs.New())
	_ = tree.Append("hello", record("hello", "1.0.0"))
	before := readFile(t, tree, "he/ll/hello")
	if _, err := tree.Alter("hello", "1.0", func(r *models.CrateVersion) { r.Yanked = true }); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if after := readFile(t, tree, "he/ll/hello"); after != before {
		t.Errorf("expected the file to be unchanged, got %q", after)
	}
}

func Test_Alter_YankFlag_OnlyTargetLineChanges(t *testing.T) {
	tree := NewTree(memfs.New())
	_ = tree.Append("hello", record("hello", "0.1.0"))
	_ = tree.Append("hello", record("hello", "0.2.0"))
	before := strings.SplitAfter(readFile(t, tree, "he/ll/hello"), "\n")

	changed, err := tree.Alter("hello", "0.1.0", func(r *models.CrateVersion) {
		r.Yanked = true
		r.Cksum = "tampered"
	})
	if err != nil || !changed {
		t.Fatalf("expected change, got %v (%v)", changed, err)
	}

	after := strings.SplitAfter(readFile(t, tree, "he/ll/hello"), "\n")
	if after[0] != strings.Replace(before[0], `"yanked":false`, `"yanked":true`, 1) {
		t.Errorf("unexpected first line %q", after[0])
	}
	if after[1] != before[1] {
		t.Errorf("expected second line unchanged, got %q", after[1])
	}
}

func Test_Alter_AlreadyYanked_ReportsNoChange(t *testing.T) {
	tree := NewTree(memfs.New())
	r := record("hello", "0.1.0")
	r.Yanked = true
	_ = tree.Append("hello", r)
	changed, err := tree.Alter("hello", "0.1.0", func(r *models.CrateVersion) { r.Yanked = true })
	if err != nil || changed {
		t.Errorf("expected no change, got %v (%v)", changed, err)
	}
}

func Test_Alter_UnknownVersion_ReturnsErrNotFound(t *testing.T) {
	tree := NewTree(memfs.New())
	_ = tree.Append("hello", record("hello", "0.1.0"))
	if _, err := tree.Alter("hello", "9.9.9", func(r *models.CrateVersion) { r.Yanked = true }); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := tree.Alter("other", "0.1.0", func(r *models.CrateVersion) { r.Yanked = true }); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func Test_SnapshotRestore_NewFile_IsRemoved(t *testing.T) {
	tree := NewTree(memfs.New())
	s, err := tree.snapshot(Path("hello"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_ = tree.Append("hello", record("hello", "0.1.0"))
	if err := tree.restore(s); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tree.Exists("hello") {
		t.Errorf("expected file to be removed")
	}
}

func Test_ReadFile_Directory_ReturnsNotExist(t *testing.T) {
	tree := NewTree(memfs.New())
	_ = tree.Append("hello", record("hello", "0.1.0"))
	if _, _, err := tree.ReadFile("he/ll"); !os.IsNotExist(err) {
		t.Errorf("expected not exist, got %v", err)
	}
}

func Test_WriteConfig_WritesConfigJson(t *testing.T) {
	tree := NewTree(memfs.New())
	if tree.HasConfig() {
		t.Fatalf("expected no config")
	}
	if err := tree.WriteConfig(models.IndexConfig{DL: "http://r/api/v1/crates", API: "http://r"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !tree.HasConfig() || !strings.Contains(readFile(t, tree, ConfigFile), `"dl":"http://r/api/v1/crates"`) {
		t.Errorf("unexpected config")
	}
}
