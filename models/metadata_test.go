package models

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func Test_ToCrateVersion_RenamedDependency_UsesAliasAndPackage(t *testing.T) {
	var metadata PublishMetadata
	err := json.Unmarshal([]byte(`{
		"name": "app", "vers": "1.0.0",
		"deps": [{"name": "serde", "version_req": "^1", "features": [], "optional": false,
		          "default_features": true, "target": null, "kind": "normal",
		          "registry": null, "explicit_name_in_toml": "serde1"}],
		"features": {}
	}`), &metadata)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	record := metadata.ToCrateVersion("cafe")
	expected := []Dependency{{Name: "serde1", Req: "^1", Features: []string{}, DefaultFeatures: true, Kind: NormalDependency, Package: "serde"}}
	if diff := cmp.Diff(expected, record.Deps); diff != "" {
		t.Errorf("deps mismatch (-want +got):\n%s", diff)
	}
	if record.Cksum != "cafe" || record.Yanked {
		t.Errorf("unexpected record %+v", record)
	}
}

func Test_ToCrateVersion_MissingDefaultFeatures_DefaultsToTrue(t *testing.T) {
	metadata := PublishMetadata{Name: "a", Vers: "0.1.0", Deps: []PublishDependency{{Name: "b", VersionReq: "1"}}}
	record := metadata.ToCrateVersion("00")
	if !record.Deps[0].DefaultFeatures {
		t.Errorf("expected default_features to be true")
	}
	if record.Deps[0].Kind != NormalDependency {
		t.Errorf("expected normal kind, got %s", record.Deps[0].Kind)
	}
}

func Test_Validate_UnknownDependencyKind_ReturnsError(t *testing.T) {
	metadata := PublishMetadata{Deps: []PublishDependency{{Name: "b", VersionReq: "1", Kind: "weird"}}}
	if err := metadata.Validate(); err == nil {
		t.Errorf("expected error")
	}
}

func Test_UniqueKeywords_Duplicates_KeepsFirstOccurrenceCaseSensitive(t *testing.T) {
	metadata := PublishMetadata{Keywords: []string{"web", "Web", "web", "", "http"}}
	expected := []string{"web", "Web", "http"}
	if diff := cmp.Diff(expected, metadata.UniqueKeywords()); diff != "" {
		t.Errorf("keywords mismatch (-want +got):\n%s", diff)
	}
}

func Test_Badges_MapForm_DecodesSortedByType(t *testing.T) {
	var badges Badges
	if err := json.Unmarshal([]byte(`{"travis-ci":{"repository":"a/b"},"appveyor":{"repository":"a/b"}}`), &badges); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := Badges{
		{Type: "appveyor", Params: map[string]string{"repository": "a/b"}},
		{Type: "travis-ci", Params: map[string]string{"repository": "a/b"}},
	}
	if diff := cmp.Diff(expected, badges); diff != "" {
		t.Errorf("badges mismatch (-want +got):\n%s", diff)
	}
}

func Test_Badges_ListForm_DecodesAsIs(t *testing.T) {
	var badges Badges
	if err := json.Unmarshal([]byte(`[{"type":"maintenance","params":{"status":"experimental"}}]`), &badges); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(badges) != 1 || badges[0].Type != "maintenance" || badges[0].Params["status"] != "experimental" {
		t.Errorf("unexpected badges %+v", badges)
	}
}

func Test_IsKnownBadge_UnknownType_ReturnsFalse(t *testing.T) {
	if IsKnownBadge("my-ci") {
		t.Errorf("expected unknown badge")
	}
	if !IsKnownBadge("codecov") {
		t.Errorf("expected known badge")
	}
}

func Test_NewWarnings_Marshal_WritesEmptyArrays(t *testing.T) {
	data, err := json.Marshal(map[string]any{"warnings": NewWarnings()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := `{"warnings":{"invalid_categories":[],"invalid_badges":[],"other":[]}}`
	if string(data) != expected {
		t.Errorf("expected %s, got %s", expected, data)
	}
}
