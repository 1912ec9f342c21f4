package flow

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/denisok6893-rgb/estatebot/internal/compose"
	"github.com/denisok6893-rgb/estatebot/internal/domain"
	"github.com/denisok6893-rgb/estatebot/internal/matching"
	"github.com/denisok6893-rgb/estatebot/internal/trgm"
)

type memStore struct {
	projects []domain.Project
	err      error
}

func (m *memStore) FindBySubstring(_ context.Context, q string) ([]domain.Project, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []domain.Project
	for _, p := range m.projects {
		if strings.Contains(strings.ToLower(p.NameIDBuildings), strings.ToLower(q)) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memStore) FindBySimilarity(_ context.Context, q string, threshold float64, limit int) ([]domain.Candidate, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []domain.Candidate
	for _, p := range m.projects {
		if s := trgm.Similarity(q, p.NameIDBuildings); s >= threshold {
			out = append(out, domain.Candidate{Project: p, Score: s})
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) FindByName(_ context.Context, name string) ([]domain.Project, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []domain.Project
	for _, p := range m.projects {
		if p.NameIDBuildings == name {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memStore) GetProject(_ context.Context, id int) (domain.Project, bool, error) {
	if m.err != nil {
		return domain.Project{}, false, m.err
	}
	for _, p := range m.projects {
		if p.ProjectID == id {
			return p, true, nil
		}
	}
	return domain.Project{}, false, nil
}

type fakeDocs map[string][]domain.Document

func (d fakeDocs) Find(_ context.Context, key string) ([]domain.Document, error) {
	return d[strings.ToLower(key)], nil
}

func day(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func newFlow(st *memStore, docs DocumentFinder) *Flow {
	res := matching.NewResolver(st, matching.DefaultConfig(), nil)
	comp := compose.New(compose.Options{Now: func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) }})
	return New(res, st, comp, docs, DefaultConfig(), nil)
}

func marinaStore() *memStore {
	return &memStore{projects: []domain.Project{
		{ProjectID: 11, NameIDBuildings: "Marina Gate 1", PercentCompleted: 100, ProjectStartDate: day(2020, 1, 1), ProjectEndDate: day(2022, 7, 1)},
		{ProjectID: 12, NameIDBuildings: "Creek Rise"},
		{ProjectID: 13, NameIDBuildings: "Dubai Marina Heights", PercentCompleted: 40},
	}}
}

func TestHandle_MarinaEndToEnd(t *testing.T) {
	t.Parallel()
	st := marinaStore()
	f := newFlow(st, nil)
	ctx := context.Background()

	list := f.Handle(ctx, Input{Kind: Text, Text: "Marina"})
	if list.Kind != KindChoices || list.Final() != AwaitingSelection {
		t.Fatalf("kind=%s final=%s want choices/awaiting_selection", list.Kind, list.Final())
	}
	if len(list.Choices) != 2 {
		t.Fatalf("choices=%d want=2", len(list.Choices))
	}
	if list.Choices[0].Label != "Marina Gate 1" || list.Choices[1].Label != "Dubai Marina Heights" {
		t.Fatalf("labels=%q,%q", list.Choices[0].Label, list.Choices[1].Label)
	}

	// the record changes between presenting and selecting; the reply must reflect it
	st.projects[0].ProjectStatus = "COMPLETED"

	got := f.Handle(ctx, Input{Kind: Selection, Token: list.Choices[0].Token})
	if got.Kind != KindRecord || got.Final() != Done {
		t.Fatalf("kind=%s final=%s want record/done", got.Kind, got.Final())
	}
	if got.Project == nil || got.Project.ProjectID != 11 {
		t.Fatalf("project=%v want id 11", got.Project)
	}
	if !strings.Contains(got.Text, "Status: COMPLETED") || !strings.Contains(got.Text, "Construction duration: 2.5 years") {
		t.Fatalf("text=\n%s", got.Text)
	}

	want, _ := compose.New(compose.Options{Now: func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) }}).Compose(st.projects[0])
	if got.Text != want.Text {
		t.Fatalf("selection rendered a different record")
	}
}

func TestHandle_UniqueMatchRendersDirectly(t *testing.T) {
	t.Parallel()
	f := newFlow(marinaStore(), nil)

	got := f.Handle(context.Background(), Input{Kind: Text, Text: "creek"})
	if got.Kind != KindRecord {
		t.Fatalf("kind=%s want=record", got.Kind)
	}
	wantTrail := []State{AwaitingQuery, Resolving, UniqueMatch, Done}
	if len(got.States) != len(wantTrail) {
		t.Fatalf("states=%v want=%v", got.States, wantTrail)
	}
	for i := range wantTrail {
		if got.States[i] != wantTrail[i] {
			t.Fatalf("states=%v want=%v", got.States, wantTrail)
		}
	}
}

func TestHandle_ThreeCandidatesUniqueTokens(t *testing.T) {
	t.Parallel()
	long := strings.Repeat("Паркова резиденция ", 5) // > 64 bytes, Cyrillic
	st := &memStore{projects: []domain.Project{
		{ProjectID: 1, NameIDBuildings: long + "A"},
		{ProjectID: 2, NameIDBuildings: long + "B"},
		{ProjectID: 3, NameIDBuildings: "Паркова резиденция"},
	}}
	f := newFlow(st, nil)

	got := f.Handle(context.Background(), Input{Kind: Text, Text: "резиденция"})
	if len(got.Choices) != 3 {
		t.Fatalf("choices=%d want=3", len(got.Choices))
	}
	seen := map[string]bool{}
	for _, c := range got.Choices {
		if seen[c.Token] {
			t.Fatalf("duplicate token %q", c.Token)
		}
		seen[c.Token] = true
		if len(c.Token) > 64 {
			t.Fatalf("token %q is %d bytes", c.Token, len(c.Token))
		}
		if !utf8.ValidString(c.Label) || utf8.RuneCountInString(c.Label) > 64 {
			t.Fatalf("label %q", c.Label)
		}
	}

	// an id token still leads back to the record
	sel := f.Handle(context.Background(), Input{Kind: Selection, Token: got.Choices[1].Token})
	if sel.Project == nil || sel.Project.ProjectID != 2 {
		t.Fatalf("project=%v want id 2", sel.Project)
	}
}

func TestHandle_DuplicateDisplayKeysGetDistinctTokens(t *testing.T) {
	t.Parallel()
	st := &memStore{projects: []domain.Project{
		{ProjectID: 1, NameIDBuildings: "Twin Tower"},
		{ProjectID: 2, NameIDBuildings: "Twin Tower"},
	}}
	got := newFlow(st, nil).Handle(context.Background(), Input{Kind: Text, Text: "twin"})
	if len(got.Choices) != 2 || got.Choices[0].Token == got.Choices[1].Token {
		t.Fatalf("choices=%+v", got.Choices)
	}
}

func TestHandle_InvalidSelections(t *testing.T) {
	t.Parallel()
	f := newFlow(marinaStore(), nil)

	for _, tok := range []string{
		"",
		"garbage",
		"q:k:Marina",
		"q:i:999",
		"q:i:-1",
		"x:k:Marina Gate 1",
		"q:z:Marina Gate 1",
	} {
		got := f.Handle(context.Background(), Input{Kind: Selection, Token: tok})
		if got.Kind != KindNegative || got.Final() != Done {
			t.Fatalf("token %q: kind=%s final=%s", tok, got.Kind, got.Final())
		}
	}
}

func TestHandle_NoMatchAndLookupFailedLookTheSame(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	none := newFlow(marinaStore(), nil).Handle(ctx, Input{Kind: Text, Text: "qwxz"})
	failed := newFlow(&memStore{err: errors.New("connection reset")}, nil).Handle(ctx, Input{Kind: Text, Text: "marina"})

	if none.Kind != KindNegative || failed.Kind != KindNegative {
		t.Fatalf("kinds=%s,%s want negative", none.Kind, failed.Kind)
	}
	if none.Final() != Done || failed.Final() != Done {
		t.Fatalf("finals=%s,%s", none.Final(), failed.Final())
	}
}

func TestHandle_MalformedRecordIsNegative(t *testing.T) {
	t.Parallel()
	st := &memStore{projects: []domain.Project{{ProjectID: 5, NameIDBuildings: "   "}}}
	got := newFlow(st, nil).Handle(context.Background(), Input{Kind: Selection, Token: "q:i:5"})
	if got.Kind != KindNegative {
		t.Fatalf("kind=%s want=negative", got.Kind)
	}
}

func TestHandle_FilesAction(t *testing.T) {
	t.Parallel()
	docs := fakeDocs{"creek rise": {{Key: "Creek Rise/brochure.pdf", Name: "brochure.pdf"}}}
	f := newFlow(marinaStore(), docs)
	ctx := context.Background()

	got := f.Handle(ctx, Input{Action: Files, Kind: Text, Text: "creek"})
	if got.Kind != KindDocuments || len(got.Documents) != 1 {
		t.Fatalf("kind=%s docs=%d", got.Kind, len(got.Documents))
	}

	list := f.Handle(ctx, Input{Action: Files, Kind: Text, Text: "marina"})
	if !strings.HasPrefix(list.Choices[0].Token, "f:") {
		t.Fatalf("token %q does not carry the files action", list.Choices[0].Token)
	}
	sel := f.Handle(ctx, Input{Kind: Selection, Token: list.Choices[0].Token})
	if sel.Action != Files || sel.Kind != KindNoDocuments {
		t.Fatalf("action=%s kind=%s", sel.Action, sel.Kind)
	}
}

func TestHandle_ExactListCappedAtRender(t *testing.T) {
	t.Parallel()
	st := &memStore{}
	for i := 1; i <= 15; i++ {
		st.projects = append(st.projects, domain.Project{ProjectID: i, NameIDBuildings: "Block " + string(rune('A'+i))})
	}
	got := newFlow(st, nil).Handle(context.Background(), Input{Kind: Text, Text: "block"})
	if len(got.Choices) != 10 || got.Total != 15 {
		t.Fatalf("choices=%d total=%d want 10/15", len(got.Choices), got.Total)
	}
}

func TestTruncateLabel(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in    string
		limit int
		want  string
	}{
		{"short", 64, "short"},
		{"abcdef", 4, "abc…"},
		{"жилой комплекс", 6, "жилой…"},
		{"abc", 1, "a"},
	}
	for _, tt := range tests {
		if got := truncateLabel(tt.in, tt.limit); got != tt.want {
			t.Fatalf("truncateLabel(%q,%d)=%q want=%q", tt.in, tt.limit, got, tt.want)
		}
	}
}
