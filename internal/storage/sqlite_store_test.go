package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/denisok6893-rgb/estatebot/internal/domain"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "estate.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	if err := s.EnsureSchema(); err != nil {
		t.Fatalf("schema: %v", err)
	}
	s.now = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }
	return s
}

func day(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func seed(t *testing.T, s *SQLiteStore, items ...domain.Project) {
	t.Helper()
	if _, err := s.UpsertProjects(context.Background(), items); err != nil {
		t.Fatalf("upsert: %v", err)
	}
}

func ids(ps []domain.Project) []int {
	out := make([]int, 0, len(ps))
	for _, p := range ps {
		out = append(out, p.ProjectID)
	}
	return out
}

func TestFindBySubstring_CaseInsensitiveInStoreOrder(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	// вставляем не по порядку: порядок выдачи задаёт project_id (он же rowid)
	seed(t, s,
		domain.Project{ProjectID: 30, NameIDBuildings: "Marina Gate 1"},
		domain.Project{ProjectID: 10, NameIDBuildings: "Palm Views"},
		domain.Project{ProjectID: 20, NameIDBuildings: "DUBAI MARINA Heights"},
	)

	got, err := s.FindBySubstring(ctx, "marina")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if g := ids(got); len(g) != 2 || g[0] != 20 || g[1] != 30 {
		t.Fatalf("ids=%v want=[20 30]", g)
	}
}

func TestFindBySubstring_FoldsNonASCII(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	seed(t, s,
		domain.Project{ProjectID: 1, NameIDBuildings: "CAFÉ TOWER"},
		domain.Project{ProjectID: 2, NameIDBuildings: "Марина Тауэр"},
		domain.Project{ProjectID: 3, NameIDBuildings: "Ясные Пруды Резиденс Башня Восточная"},
	)

	tests := []struct {
		q    string
		want int
	}{
		{"café", 1},
		{"Café Tow", 1},
		{"марина", 2},
		{"МАРИНА", 2},
		{"тауэр", 2},
		{"башня восточная", 3},
	}
	for _, tt := range tests {
		got, err := s.FindBySubstring(ctx, tt.q)
		if err != nil {
			t.Fatalf("%q: %v", tt.q, err)
		}
		if g := ids(got); len(g) != 1 || g[0] != tt.want {
			t.Errorf("%q: ids=%v want=[%d]", tt.q, g, tt.want)
		}
	}
}

func TestBuildingsByArea_FoldsNonASCII(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	seed(t, s, domain.Project{ProjectID: 1, NameIDBuildings: "Tower A", MasterProjectEN: "ДУБАЙ МАРИНА"})

	got, err := s.BuildingsByArea(context.Background(), "дубай марина")
	if err != nil {
		t.Fatalf("area: %v", err)
	}
	if len(got) != 1 || got[0].Name != "Tower A" {
		t.Fatalf("buildings=%+v", got)
	}
}

func TestFindBySubstring_EscapesWildcards(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	seed(t, s,
		domain.Project{ProjectID: 1, NameIDBuildings: "Tower 100% Sold"},
		domain.Project{ProjectID: 2, NameIDBuildings: "Tower 1000"},
		domain.Project{ProjectID: 3, NameIDBuildings: "Plot_7"},
		domain.Project{ProjectID: 4, NameIDBuildings: "Plot 7"},
	)

	got, err := s.FindBySubstring(context.Background(), "100%")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if g := ids(got); len(g) != 1 || g[0] != 1 {
		t.Fatalf("100%%: ids=%v want=[1]", g)
	}

	got, err = s.FindBySubstring(context.Background(), "plot_")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if g := ids(got); len(g) != 1 || g[0] != 3 {
		t.Fatalf("plot_: ids=%v want=[3]", g)
	}
}

func TestFindBySimilarity_ThresholdOrderAndCap(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	seed(t, s,
		domain.Project{ProjectID: 1, NameIDBuildings: "Azure Residence"},
		domain.Project{ProjectID: 2, NameIDBuildings: "Azure Residences"},
		domain.Project{ProjectID: 3, NameIDBuildings: "Azur"},
		domain.Project{ProjectID: 4, NameIDBuildings: "Creek Rise"},
	)

	got, err := s.FindBySimilarity(ctx, "azure residense", 0.35, 0)
	if err != nil {
		t.Fatalf("similarity: %v", err)
	}
	if len(got) == 0 {
		t.Fatalf("no candidates")
	}
	for i := 1; i < len(got); i++ {
		if got[i].Score > got[i-1].Score {
			t.Fatalf("not sorted desc at %d: %v > %v", i, got[i].Score, got[i-1].Score)
		}
	}
	for _, c := range got {
		if c.Score < 0.35 {
			t.Fatalf("candidate %d below threshold: %v", c.Project.ProjectID, c.Score)
		}
		if c.Project.ProjectID == 4 {
			t.Fatalf("unrelated project returned")
		}
	}

	capped, err := s.FindBySimilarity(ctx, "azure residense", 0.35, 1)
	if err != nil {
		t.Fatalf("similarity: %v", err)
	}
	if len(capped) != 1 || capped[0].Project.ProjectID != got[0].Project.ProjectID {
		t.Fatalf("capped=%v want first of %v", capped, got)
	}
}

func TestUpsertProjects_Summary(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	floors := 12
	a := domain.Project{ProjectID: 1, NameIDBuildings: "A", ProjectStartDate: day(2020, 1, 1), Floors: &floors}
	b := domain.Project{ProjectID: 2, NameIDBuildings: "B"}

	sum, err := s.UpsertProjects(ctx, []domain.Project{a, b})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if sum.Created != 2 || sum.Updated != 0 || sum.Unchanged != 0 {
		t.Fatalf("first import=%+v", sum)
	}

	b.ProjectStatus = "ACTIVE"
	sum, err = s.UpsertProjects(ctx, []domain.Project{a, b})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if sum.Created != 0 || sum.Updated != 1 || sum.Unchanged != 1 {
		t.Fatalf("second import=%+v", sum)
	}

	got, ok, err := s.GetProject(ctx, 1)
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if got.Floors == nil || *got.Floors != 12 {
		t.Fatalf("floors=%v want=12", got.Floors)
	}
	if got.ProjectEndDate != nil {
		t.Fatalf("end date=%v want nil", got.ProjectEndDate)
	}
	if !got.ProjectStartDate.Equal(*a.ProjectStartDate) {
		t.Fatalf("start=%v want=%v", got.ProjectStartDate, a.ProjectStartDate)
	}

	if _, err := s.UpsertProjects(ctx, []domain.Project{{ProjectID: 3}}); err == nil {
		t.Fatalf("expected error for empty display key")
	}
	if n, _ := s.CountProjects(ctx); n != 2 {
		t.Fatalf("count=%d want=2 after rejected import", n)
	}
}

func TestGetProject_NotFound(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	_, ok, err := s.GetProject(context.Background(), 42)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ok {
		t.Fatalf("expected not found")
	}
}

func TestFindByName_Exact(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	seed(t, s,
		domain.Project{ProjectID: 1, NameIDBuildings: "Marina Gate"},
		domain.Project{ProjectID: 2, NameIDBuildings: "Marina Gate 2"},
	)

	got, err := s.FindByName(context.Background(), "Marina Gate")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if g := ids(got); len(g) != 1 || g[0] != 1 {
		t.Fatalf("ids=%v want=[1]", g)
	}
}

func TestBuildingsByArea(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	seed(t, s,
		domain.Project{ProjectID: 1, NameIDBuildings: "Old Tower", MasterProjectEN: "Dubai Marina", ProjectEndDate: day(2015, 6, 1), PercentCompleted: 100},
		domain.Project{ProjectID: 2, NameIDBuildings: "New Tower", MasterProjectEN: "Dubai Marina", ProjectStatus: "ACTIVE", PercentCompleted: 40},
		domain.Project{ProjectID: 3, NameIDBuildings: "This Year", MasterProjectEN: "dubai marina", ProjectEndDate: day(2024, 1, 10), ProjectStatus: "FINISHED", PercentCompleted: 100},
		domain.Project{ProjectID: 4, NameIDBuildings: "Elsewhere", MasterProjectEN: "Business Bay"},
	)

	got, err := s.BuildingsByArea(context.Background(), " marina ")
	if err != nil {
		t.Fatalf("area: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("buildings=%d want=3", len(got))
	}
	want := []string{"9", "ACTIVE", "FINISHED"}
	for i, b := range got {
		if b.Age != want[i] {
			t.Fatalf("%s age=%q want=%q", b.Name, b.Age, want[i])
		}
	}
}

func TestProjectFiles_SaveAndReplace(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	if _, ok, err := s.ProjectFileByName(ctx, "brochure.pdf"); err != nil || ok {
		t.Fatalf("empty cache: ok=%v err=%v", ok, err)
	}
	if err := s.SaveProjectFile(ctx, domain.ProjectFile{ProjectID: 1, FileName: "Brochure.pdf", ChannelFileID: "old"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.SaveProjectFile(ctx, domain.ProjectFile{ProjectID: 1, FileName: "Brochure.pdf", ChannelFileID: "new"}); err != nil {
		t.Fatalf("save: %v", err)
	}

	f, ok, err := s.ProjectFileByName(ctx, "brochure.pdf")
	if err != nil || !ok {
		t.Fatalf("lookup: ok=%v err=%v", ok, err)
	}
	if f.ChannelFileID != "new" || f.FileType != "pdf" {
		t.Fatalf("file=%+v", f)
	}

	if err := s.SaveProjectFile(ctx, domain.ProjectFile{ProjectID: 2, FileName: "projects/Марина/ПЛАН.pdf", ChannelFileID: "x"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, ok, err := s.ProjectFileByName(ctx, "projects/марина/план.pdf"); err != nil || !ok {
		t.Fatalf("non-ascii lookup: ok=%v err=%v", ok, err)
	}
}

func TestUsersAndEvents(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	u, err := s.UpsertUser(ctx, 7, "alice")
	if err != nil {
		t.Fatalf("upsert user: %v", err)
	}
	if u.Language != "en" {
		t.Fatalf("language=%q want=en", u.Language)
	}
	if err := s.SetUserLanguage(ctx, 7, "ru"); err != nil {
		t.Fatalf("set language: %v", err)
	}
	u, err = s.UpsertUser(ctx, 7, "alice2")
	if err != nil {
		t.Fatalf("upsert user: %v", err)
	}
	if u.Language != "ru" || u.Username != "alice2" {
		t.Fatalf("user=%+v", u)
	}
	if err := s.SetUserLanguage(ctx, 99, "ru"); err == nil {
		t.Fatalf("expected error for unknown user")
	}

	e1, err := s.RecordEvent(ctx, 7, domain.EventMessage, "/start")
	if err != nil {
		t.Fatalf("event: %v", err)
	}
	e2, err := s.RecordEvent(ctx, 7, domain.EventCallback, "q:k:Marina Gate")
	if err != nil {
		t.Fatalf("event: %v", err)
	}
	if e1.ID == "" || e1.ID == e2.ID {
		t.Fatalf("event ids %q %q", e1.ID, e2.ID)
	}
	if _, err := s.RecordEvent(ctx, 7, "bogus", ""); err == nil {
		t.Fatalf("expected CHECK failure for unknown event type")
	}
	if n, _ := s.CountEvents(ctx, 7); n != 2 {
		t.Fatalf("events=%d want=2", n)
	}
}

func TestLoadProjectsFromFile_JSON(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "projects.json")
	body := `[
  {"project_id": 101, "project_name_id_buildings": "Marina Gate", "project_start_date": "2020-01-01",
   "project_end_date": "01.07.2022", "percent_completed": 100, "floors": 40, "webpage": "nan"},
  {"project_id": 102, "project_name_id_buildings": "Creek Rise", "no_of_units": null}
]`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := LoadProjectsFromFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("projects=%d want=2", len(got))
	}
	p := got[0]
	if p.ProjectEndDate == nil || !p.ProjectEndDate.Equal(*day(2022, 7, 1)) {
		t.Fatalf("end=%v", p.ProjectEndDate)
	}
	if p.Floors == nil || *p.Floors != 40 {
		t.Fatalf("floors=%v", p.Floors)
	}
	if p.Webpage != "" {
		t.Fatalf("webpage=%q want empty", p.Webpage)
	}
	if got[1].NoOfUnits != nil {
		t.Fatalf("units=%v want nil", got[1].NoOfUnits)
	}
}

func TestLoadProjectsFromFile_XLSX(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "projects.xlsx")
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	rows := [][]any{
		{"project_id", "project_name_id_buildings", "project_end_date", "percent_completed", "no_of_units"},
		{201, "Palm Views", "2021-12-31", 100, 350},
		{202, "Bay Square", "#N/A", 40},
	}
	for i, r := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(sheet, cell, &r); err != nil {
			t.Fatalf("row %d: %v", i, err)
		}
	}
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("save: %v", err)
	}
	_ = f.Close()

	got, err := LoadProjectsFromFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("projects=%d want=2", len(got))
	}
	if got[0].ProjectID != 201 || got[0].NameIDBuildings != "Palm Views" || got[0].PercentCompleted != 100 {
		t.Fatalf("first=%+v", got[0])
	}
	if got[0].ProjectEndDate == nil || !got[0].ProjectEndDate.Equal(*day(2021, 12, 31)) {
		t.Fatalf("end=%v", got[0].ProjectEndDate)
	}
	if got[0].NoOfUnits == nil || *got[0].NoOfUnits != 350 {
		t.Fatalf("units=%v", got[0].NoOfUnits)
	}
	if got[1].ProjectEndDate != nil || got[1].NoOfUnits != nil {
		t.Fatalf("second=%+v", got[1])
	}
}

func TestLoadProjectsFromFile_Rejects(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	cases := map[string]string{
		"no_key.json":   `[{"project_id": 1}]`,
		"bad_date.json": `[{"project_id": 1, "project_name_id_buildings": "X", "project_end_date": "someday"}]`,
		"bad_int.json":  `[{"project_id": "one", "project_name_id_buildings": "X"}]`,
		"over.json":     `[{"project_id": 1, "project_name_id_buildings": "X", "percent_completed": 101}]`,
		"negative.json": `[{"project_id": 1, "project_name_id_buildings": "X", "percent_completed": -5}]`,
	}
	for name, body := range cases {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
		if _, err := LoadProjectsFromFile(path); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
	if _, err := LoadProjectsFromFile(filepath.Join(dir, "projects.csv")); err == nil {
		t.Fatalf("csv: expected error")
	}
}
