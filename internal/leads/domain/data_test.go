package domain

import (
	"reflect"
	"testing"
)

func TestMergeDataNeverOverwritesScalars(t *testing.T) {
	existing := map[string]any{
		"nationality": "Indian",
		"visaCount":   float64(2),
	}
	incoming := map[string]any{
		"nationality": "Pakistani",
		"visaCount":   float64(5),
		"companyName": "Acme LLC",
	}

	got := MergeData(existing, incoming)

	if got["nationality"] != "Indian" {
		t.Errorf("nationality overwritten: got %v", got["nationality"])
	}
	if got["visaCount"] != float64(2) {
		t.Errorf("visaCount overwritten: got %v", got["visaCount"])
	}
	if got["companyName"] != "Acme LLC" {
		t.Errorf("new key not added: got %v", got["companyName"])
	}
}

func TestMergeDataFillsEmptySlots(t *testing.T) {
	existing := map[string]any{
		"nationality": "",
		"documents":   []any{},
	}
	incoming := map[string]any{
		"nationality": "Egyptian",
		"documents":   []any{"passport"},
	}

	got := MergeData(existing, incoming)

	if got["nationality"] != "Egyptian" {
		t.Errorf("empty string not filled: got %v", got["nationality"])
	}
	docs, _ := got["documents"].([]any)
	if len(docs) != 1 || docs[0] != "passport" {
		t.Errorf("empty list not filled: got %v", got["documents"])
	}
}

func TestMergeDataRecursesIntoObjects(t *testing.T) {
	existing := map[string]any{
		"goldenVisa": map[string]any{
			"category": "investor",
		},
	}
	incoming := map[string]any{
		"goldenVisa": map[string]any{
			"category": "talent",
			"timeline": "ready_now",
		},
	}

	got := MergeData(existing, incoming)

	sub, ok := got["goldenVisa"].(map[string]any)
	if !ok {
		t.Fatalf("goldenVisa is not an object: %T", got["goldenVisa"])
	}
	if sub["category"] != "investor" {
		t.Errorf("nested scalar overwritten: got %v", sub["category"])
	}
	if sub["timeline"] != "ready_now" {
		t.Errorf("nested new key not added: got %v", sub["timeline"])
	}
}

func TestMergeDataListsGrowWithoutDuplicates(t *testing.T) {
	existing := map[string]any{
		"mentions": []any{"visa", "family"},
	}
	incoming := map[string]any{
		"mentions": []any{"family", "emirates id"},
	}

	got := MergeData(existing, incoming)

	want := []any{"visa", "family", "emirates id"}
	if !reflect.DeepEqual(got["mentions"], want) {
		t.Errorf("list union mismatch: got %v want %v", got["mentions"], want)
	}
}

func TestMergeDataTypeConflictKeepsExisting(t *testing.T) {
	existing := map[string]any{"budget": "2M AED"}
	incoming := map[string]any{"budget": map[string]any{"amount": float64(2000000)}}

	got := MergeData(existing, incoming)

	if got["budget"] != "2M AED" {
		t.Errorf("type conflict replaced existing value: got %v", got["budget"])
	}
}

func TestMergeDataNilExisting(t *testing.T) {
	got := MergeData(nil, map[string]any{"a": "b"})
	if got["a"] != "b" {
		t.Errorf("merge into nil lost value: got %v", got)
	}
}

func TestNamespaceCreatesAndReuses(t *testing.T) {
	doc := map[string]any{}
	ns := Namespace(doc, "goldenVisa")
	ns["category"] = "investor"

	again := Namespace(doc, "goldenVisa")
	if again["category"] != "investor" {
		t.Errorf("namespace not persisted in document: %v", doc)
	}
}

func TestCanAdvanceStage(t *testing.T) {
	cases := []struct {
		from, to string
		want     bool
	}{
		{StageNew, StageQualifying, true},
		{StageQualifying, StageQualified, true},
		{StageQualified, StageWon, true},
		{StageQualified, StageQualifying, false},
		{StageWon, StageQualifying, false},
		{StageLost, StageNew, false},
		{StageNew, "bogus", false},
	}
	for _, tc := range cases {
		if got := CanAdvanceStage(tc.from, tc.to); got != tc.want {
			t.Errorf("CanAdvanceStage(%q, %q) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestTerminalStages(t *testing.T) {
	for _, s := range TerminalStages() {
		if !IsTerminalStage(s) {
			t.Errorf("TerminalStages returned non-terminal %q", s)
		}
	}
	if IsTerminalStage(StageQualifying) {
		t.Error("qualifying must not be terminal")
	}
}
