package bots

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/denisok6893-rgb/estatebot/internal/domain"
	"github.com/denisok6893-rgb/estatebot/internal/flow"
	"github.com/denisok6893-rgb/estatebot/internal/report"
)

// Callback data of the menu buttons. Flow tokens never start with '_'.
const (
	cbMenu       = "_menu"
	cbQuery      = "_query"
	cbFiles      = "_files"
	cbKeyword    = "_keyword"
	cbArea       = "_area"
	cbAreaOwn    = "_area_own"
	cbAreaPrefix = "_area:"
	cbLanguage   = "_language"
	cbLangPrefix = "_lang_"
	cbAdmin      = "_admin"
	cbExport     = "_export"
	cbImport     = "_import"
)

// keywordLimit caps the documents sent for one keyword search.
const keywordLimit = 10

// Flow answers one project lookup or selection.
type Flow interface {
	Handle(ctx context.Context, in flow.Input) flow.Reply
}

// Users remembers who talked to the bot, in which language, and what they sent.
type Users interface {
	UpsertUser(ctx context.Context, id int64, username string) (domain.User, error)
	SetUserLanguage(ctx context.Context, id int64, lang string) error
	RecordEvent(ctx context.Context, userID int64, typ, content string) (domain.Event, error)
}

// Areas lists the buildings of an area for reports.
type Areas interface {
	BuildingsByArea(ctx context.Context, area string) ([]domain.Building, error)
}

// FileSearcher finds documents whose name contains a keyword.
type FileSearcher interface {
	SearchFiles(ctx context.Context, keyword string, limit int) ([]domain.Document, error)
}

// Admin is the data maintenance offered to admins.
type Admin interface {
	SetUserRole(ctx context.Context, id int64, username, role string) (domain.User, error)
	ExportTables(ctx context.Context) ([]domain.TableExport, error)
	ImportProjects(ctx context.Context, name string, data []byte) (domain.ImportSummary, error)
}

// Processor connects incoming bot messages to the project flow, reports, and user settings.
type Processor struct {
	flow     Flow
	users    Users
	areas    Areas
	searches []FileSearcher
	admin    Admin
	catalog  Catalog
	pending  *pending
	log      *slog.Logger
}

// NewProcessor creates a new message processor. users and areas may be nil.
func NewProcessor(fl Flow, users Users, areas Areas, catalog Catalog, log *slog.Logger) *Processor {
	if log == nil {
		log = slog.Default()
	}
	if len(catalog) == 0 {
		catalog = DefaultCatalog()
	}
	return &Processor{
		flow:    fl,
		users:   users,
		areas:   areas,
		catalog: catalog,
		pending: newPending(maxPending),
		log:     log.With(slog.String("component", "bots")),
	}
}

// WithFileSearch enables keyword document search over the given sources, queried in order.
func (p *Processor) WithFileSearch(sources ...FileSearcher) *Processor {
	p.searches = append(p.searches, sources...)
	return p
}

// WithAdmin enables the admin commands.
func (p *Processor) WithAdmin(a Admin) *Processor {
	p.admin = a
	return p
}

// HandleMessage processes an incoming message and returns a response.
//   - upload -> projects import, when an admin asked for it
//   - callback data -> menu button or a choice token from the flow
//   - "/command [arg]" -> menu, prompts, area report, language, admin tools
//   - anything else -> input for whatever the chat was last asked for (project info by default)
func (p *Processor) HandleMessage(ctx context.Context, msg IncomingMessage) (*OutgoingMessage, error) {
	u := p.remember(ctx, msg)
	s := p.catalog.For(u.Language)

	var out *OutgoingMessage
	switch {
	case msg.Upload != nil:
		out = p.handleUpload(ctx, msg, u, s)
	case msg.CallbackData != "":
		out = p.handleCallback(ctx, msg, u, s)
	case strings.HasPrefix(strings.TrimSpace(msg.Text), "/"):
		out = p.handleCommand(ctx, msg, u, s)
	default:
		out = p.handleText(ctx, msg, s)
	}
	out.ChatID = msg.ChatID
	return out, nil
}

// remember upserts the user and records the event. Failures are logged, never shown.
func (p *Processor) remember(ctx context.Context, msg IncomingMessage) domain.User {
	fallback := domain.User{ID: msg.UserID, Username: msg.UserName, Language: DefaultLanguage, Role: domain.RoleUser}
	if p.users == nil {
		return fallback
	}
	u, err := p.users.UpsertUser(ctx, msg.UserID, msg.UserName)
	if err != nil {
		p.log.Error("upsert user", slog.Int64("user_id", msg.UserID), slog.String("error", err.Error()))
		return fallback
	}
	typ, content := domain.EventMessage, msg.Text
	switch {
	case msg.CallbackData != "":
		typ, content = domain.EventCallback, msg.CallbackData
	case msg.Upload != nil:
		content = msg.Upload.Name
	}
	if _, err := p.users.RecordEvent(ctx, msg.UserID, typ, content); err != nil {
		p.log.Error("record event", slog.Int64("user_id", msg.UserID), slog.String("error", err.Error()))
	}
	return u
}

func (p *Processor) handleCommand(ctx context.Context, msg IncomingMessage, u domain.User, s Strings) *OutgoingMessage {
	cmd, arg, _ := strings.Cut(strings.TrimSpace(msg.Text), " ")
	cmd = strings.ToLower(strings.TrimPrefix(cmd, "/"))
	// "/menu@SomeBot" in group chats
	cmd, _, _ = strings.Cut(cmd, "@")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case "start", "menu":
		p.pending.take(msg.ChatID)
		return p.menu(s, u)
	case "query":
		return p.prompt(ctx, msg.ChatID, intentQuery, arg, s)
	case "files":
		return p.prompt(ctx, msg.ChatID, intentFiles, arg, s)
	case "search":
		return p.prompt(ctx, msg.ChatID, intentKeyword, arg, s)
	case "area":
		return p.prompt(ctx, msg.ChatID, intentArea, arg, s)
	case "language":
		if arg == "" {
			return p.languageMenu(s)
		}
		return p.setLanguage(ctx, u, arg, s)
	case "admin":
		return p.adminMenu(u, s)
	case "export":
		return p.export(ctx, u, s)
	case "import":
		return p.requestImport(msg.ChatID, u, s)
	case "grant":
		return p.grant(ctx, u, arg, s)
	default:
		return &OutgoingMessage{Text: s.UnknownCommand, Buttons: mainMenuButton(s)}
	}
}

// prompt answers right away when the command carried its argument, and otherwise asks
// for it and remembers what the next message is for.
func (p *Processor) prompt(ctx context.Context, chatID int64, in intent, arg string, s Strings) *OutgoingMessage {
	if arg != "" {
		p.pending.take(chatID)
		return p.dispatch(ctx, in, arg, s)
	}
	p.pending.set(chatID, in)
	switch in {
	case intentArea:
		return areaMenu(s)
	case intentKeyword:
		return &OutgoingMessage{Text: s.EnterKeyword}
	default:
		return &OutgoingMessage{Text: s.EnterProjectName}
	}
}

func (p *Processor) handleText(ctx context.Context, msg IncomingMessage, s Strings) *OutgoingMessage {
	in := p.pending.take(msg.ChatID)
	if in == intentImport {
		// still waiting for the file
		p.pending.set(msg.ChatID, intentImport)
		return &OutgoingMessage{Text: s.SendImportFile, Buttons: mainMenuButton(s)}
	}
	return p.dispatch(ctx, in, msg.Text, s)
}

func (p *Processor) dispatch(ctx context.Context, in intent, text string, s Strings) *OutgoingMessage {
	switch in {
	case intentArea:
		return p.areaReport(ctx, text, s)
	case intentKeyword:
		return p.keywordSearch(ctx, text, s)
	case intentFiles:
		return p.interact(ctx, flow.Input{Action: flow.Files, Kind: flow.Text, Text: text}, s)
	default:
		return p.interact(ctx, flow.Input{Action: flow.Info, Kind: flow.Text, Text: text}, s)
	}
}

func (p *Processor) handleCallback(ctx context.Context, msg IncomingMessage, u domain.User, s Strings) *OutgoingMessage {
	data := strings.TrimSpace(msg.CallbackData)
	switch {
	case data == cbMenu:
		p.pending.take(msg.ChatID)
		return p.menu(s, u)
	case data == cbQuery:
		return p.prompt(ctx, msg.ChatID, intentQuery, "", s)
	case data == cbFiles:
		return p.prompt(ctx, msg.ChatID, intentFiles, "", s)
	case data == cbKeyword:
		return p.prompt(ctx, msg.ChatID, intentKeyword, "", s)
	case data == cbArea:
		return p.prompt(ctx, msg.ChatID, intentArea, "", s)
	case data == cbAreaOwn:
		p.pending.set(msg.ChatID, intentArea)
		return &OutgoingMessage{Text: s.EnterArea}
	case strings.HasPrefix(data, cbAreaPrefix):
		name, ok := presetArea(strings.TrimPrefix(data, cbAreaPrefix))
		if !ok {
			return areaMenu(s)
		}
		p.pending.take(msg.ChatID)
		return p.areaReport(ctx, name, s)
	case data == cbLanguage:
		return p.languageMenu(s)
	case strings.HasPrefix(data, cbLangPrefix):
		return p.setLanguage(ctx, u, strings.TrimPrefix(data, cbLangPrefix), s)
	case data == cbAdmin:
		return p.adminMenu(u, s)
	case data == cbExport:
		return p.export(ctx, u, s)
	case data == cbImport:
		return p.requestImport(msg.ChatID, u, s)
	case flow.IsToken(data):
		return p.interact(ctx, flow.Input{Kind: flow.Selection, Token: data}, s)
	default:
		p.log.Info("unknown callback", slog.Int64("chat_id", msg.ChatID), slog.String("data", data))
		return &OutgoingMessage{Text: s.ResultNegative, Buttons: mainMenuButton(s)}
	}
}

func (p *Processor) interact(ctx context.Context, in flow.Input, s Strings) *OutgoingMessage {
	if p.flow == nil {
		return &OutgoingMessage{Text: s.SomethingWentWrong}
	}
	return renderReply(p.flow.Handle(ctx, in), s)
}

// renderReply turns a flow reply into a chat message.
func renderReply(r flow.Reply, s Strings) *OutgoingMessage {
	out := &OutgoingMessage{}
	if r.Project != nil {
		out.ProjectID = r.Project.ProjectID
	}
	switch r.Kind {
	case flow.KindRecord:
		out.Text = r.Text
		out.Buttons = mainMenuButton(s)
	case flow.KindChoices:
		out.Text = s.ResultSuggestions
		if r.Total > len(r.Choices) {
			out.Text += "\n" + fmt.Sprintf(s.MoreResults, len(r.Choices), r.Total)
		}
		for _, c := range r.Choices {
			out.Buttons = append(out.Buttons, []Button{{Text: c.Label, Data: c.Token}})
		}
		out.Buttons = append(out.Buttons, mainMenuButton(s)...)
	case flow.KindDocuments:
		out.Text = fmt.Sprintf(s.FilesFound, len(r.Documents))
		out.Documents = r.Documents
	case flow.KindNoDocuments:
		out.Text = s.NoFilesFound
		out.Buttons = append([][]Button{{{Text: s.MenuKeyword, Data: cbKeyword}}}, mainMenuButton(s)...)
	default:
		out.ProjectID = 0
		out.Text = s.ResultNegative
		out.Buttons = mainMenuButton(s)
	}
	return out
}

func (p *Processor) areaReport(ctx context.Context, area string, s Strings) *OutgoingMessage {
	area = strings.TrimSpace(area)
	if p.areas == nil || area == "" {
		return &OutgoingMessage{Text: fmt.Sprintf(s.AreaNotFound, area), Buttons: mainMenuButton(s)}
	}
	bs, err := p.areas.BuildingsByArea(ctx, area)
	if err != nil {
		p.log.Error("area buildings", slog.String("area", area), slog.String("error", err.Error()))
		return &OutgoingMessage{Text: s.SomethingWentWrong, Buttons: mainMenuButton(s)}
	}
	if len(bs) == 0 {
		return &OutgoingMessage{Text: fmt.Sprintf(s.AreaNotFound, area), Buttons: mainMenuButton(s)}
	}
	files, err := report.AreaWorkbooks(area, bs)
	if err != nil {
		p.log.Error("area workbooks", slog.String("area", area), slog.String("error", err.Error()))
		return &OutgoingMessage{Text: s.SomethingWentWrong, Buttons: mainMenuButton(s)}
	}
	ready, offPlan := report.SplitReady(bs)
	out := &OutgoingMessage{Text: fmt.Sprintf(s.AreaReport, area, len(ready), len(offPlan))}
	for _, f := range files {
		out.Attachments = append(out.Attachments, Attachment{Name: f.Name, Data: f.Data})
	}
	return out
}

func (p *Processor) menu(s Strings, u domain.User) *OutgoingMessage {
	out := &OutgoingMessage{
		Text: s.Start,
		Buttons: [][]Button{
			{{Text: s.MenuQuery, Data: cbQuery}},
			{{Text: s.MenuFiles, Data: cbFiles}},
			{{Text: s.MenuKeyword, Data: cbKeyword}},
			{{Text: s.MenuArea, Data: cbArea}},
			{{Text: s.MenuLanguage, Data: cbLanguage}},
		},
	}
	if u.IsAdmin() && p.admin != nil {
		out.Buttons = append(out.Buttons, []Button{{Text: s.MenuAdmin, Data: cbAdmin}})
	}
	return out
}

func (p *Processor) languageMenu(s Strings) *OutgoingMessage {
	out := &OutgoingMessage{Text: s.ChooseLanguage}
	for _, lang := range []string{"en", "ru"} {
		if t, ok := p.catalog[lang]; ok {
			out.Buttons = append(out.Buttons, []Button{{Text: t.LanguageName, Data: cbLangPrefix + lang}})
		}
	}
	return out
}

func (p *Processor) setLanguage(ctx context.Context, u domain.User, lang string, s Strings) *OutgoingMessage {
	lang = normLang(lang)
	if !p.catalog.Has(lang) {
		return p.languageMenu(s)
	}
	if p.users != nil {
		if err := p.users.SetUserLanguage(ctx, u.ID, lang); err != nil {
			p.log.Error("set language", slog.Int64("user_id", u.ID), slog.String("error", err.Error()))
			return &OutgoingMessage{Text: s.SomethingWentWrong}
		}
	}
	next := p.catalog.For(lang)
	out := p.menu(next, u)
	out.Text = next.LanguageSet
	return out
}

// keywordSearch collects documents from every source, dropping repeated keys.
func (p *Processor) keywordSearch(ctx context.Context, keyword string, s Strings) *OutgoingMessage {
	keyword = strings.TrimSpace(keyword)
	seen := make(map[string]bool)
	var found []domain.Document
	for _, src := range p.searches {
		if keyword == "" || len(found) >= keywordLimit {
			break
		}
		docs, err := src.SearchFiles(ctx, keyword, keywordLimit)
		if err != nil {
			p.log.Error("keyword search", slog.String("keyword", keyword), slog.String("error", err.Error()))
			continue
		}
		for _, d := range docs {
			if seen[d.Key] || len(found) >= keywordLimit {
				continue
			}
			seen[d.Key] = true
			found = append(found, d)
		}
	}
	if len(found) == 0 {
		return &OutgoingMessage{Text: s.ResultNegative, Buttons: mainMenuButton(s)}
	}
	return &OutgoingMessage{Text: fmt.Sprintf(s.FilesFound, len(found)), Documents: found}
}

func (p *Processor) adminMenu(u domain.User, s Strings) *OutgoingMessage {
	if !u.IsAdmin() || p.admin == nil {
		return &OutgoingMessage{Text: s.NoRights, Buttons: mainMenuButton(s)}
	}
	return &OutgoingMessage{
		Text: s.AdminMenu,
		Buttons: [][]Button{
			{{Text: s.AdminExport, Data: cbExport}, {Text: s.AdminImport, Data: cbImport}},
			{{Text: s.MainMenu, Data: cbMenu}},
		},
	}
}

func (p *Processor) export(ctx context.Context, u domain.User, s Strings) *OutgoingMessage {
	if !u.IsAdmin() || p.admin == nil {
		return &OutgoingMessage{Text: s.NoRights, Buttons: mainMenuButton(s)}
	}
	tables, err := p.admin.ExportTables(ctx)
	if err != nil {
		p.log.Error("export tables", slog.Int64("user_id", u.ID), slog.String("error", err.Error()))
		return &OutgoingMessage{Text: s.SomethingWentWrong, Buttons: mainMenuButton(s)}
	}
	out := &OutgoingMessage{Text: fmt.Sprintf(s.ExportDone, len(tables))}
	for _, t := range tables {
		out.Attachments = append(out.Attachments, Attachment{Name: t.Name + ".csv", Data: t.CSV})
	}
	p.log.Info("tables exported", slog.Int64("user_id", u.ID), slog.Int("tables", len(tables)))
	return out
}

func (p *Processor) requestImport(chatID int64, u domain.User, s Strings) *OutgoingMessage {
	if !u.IsAdmin() || p.admin == nil {
		return &OutgoingMessage{Text: s.NoRights, Buttons: mainMenuButton(s)}
	}
	p.pending.set(chatID, intentImport)
	return &OutgoingMessage{Text: s.SendImportFile}
}

func (p *Processor) handleUpload(ctx context.Context, msg IncomingMessage, u domain.User, s Strings) *OutgoingMessage {
	if !u.IsAdmin() || p.admin == nil {
		return &OutgoingMessage{Text: s.NoRights, Buttons: mainMenuButton(s)}
	}
	if p.pending.take(msg.ChatID) != intentImport {
		return &OutgoingMessage{Text: s.UploadNotExpected, Buttons: mainMenuButton(s)}
	}
	sum, err := p.admin.ImportProjects(ctx, msg.Upload.Name, msg.Upload.Data)
	if err != nil {
		p.log.Warn("import projects", slog.Int64("user_id", u.ID), slog.String("file", msg.Upload.Name), slog.String("error", err.Error()))
		return &OutgoingMessage{Text: fmt.Sprintf(s.ImportFailed, err), Buttons: mainMenuButton(s)}
	}
	p.log.Info("projects imported",
		slog.Int64("user_id", u.ID),
		slog.String("file", msg.Upload.Name),
		slog.Int("created", sum.Created),
		slog.Int("updated", sum.Updated),
		slog.Int("unchanged", sum.Unchanged),
	)
	return &OutgoingMessage{
		Text:    fmt.Sprintf(s.ImportDone, sum.Created, sum.Updated, sum.Unchanged),
		Buttons: mainMenuButton(s),
	}
}

// grant makes another user an admin: "/grant <user id> [username]".
func (p *Processor) grant(ctx context.Context, u domain.User, arg string, s Strings) *OutgoingMessage {
	if !u.IsAdmin() || p.admin == nil {
		return &OutgoingMessage{Text: s.NoRights, Buttons: mainMenuButton(s)}
	}
	idText, username, _ := strings.Cut(arg, " ")
	id, err := strconv.ParseInt(idText, 10, 64)
	if err != nil || id <= 0 {
		return &OutgoingMessage{Text: s.GrantUsage}
	}
	granted, err := p.admin.SetUserRole(ctx, id, strings.TrimPrefix(strings.TrimSpace(username), "@"), domain.RoleAdmin)
	if err != nil {
		p.log.Error("grant admin", slog.Int64("user_id", id), slog.String("error", err.Error()))
		return &OutgoingMessage{Text: s.SomethingWentWrong}
	}
	p.log.Info("admin granted", slog.Int64("by", u.ID), slog.Int64("user_id", id))
	return &OutgoingMessage{Text: fmt.Sprintf(s.AdminGranted, granted.ID, granted.Username), Buttons: mainMenuButton(s)}
}

func mainMenuButton(s Strings) [][]Button {
	return [][]Button{{{Text: s.MainMenu, Data: cbMenu}}}
}

type areaPreset struct {
	code  string
	label string
	name  string
}

// areaPresets are offered as buttons; name is matched against the master project.
var areaPresets = []areaPreset{
	{"al_furjan", "Al Furjan", "Al Furjan"},
	{"arjan", "Arjan", "Arjan"},
	{"beachfront", "Beachfront", "Beachfront"},
	{"bluewaters", "Bluewaters", "Bluewaters"},
	{"business_bay", "Business Bay", "Business Bay"},
	{"city_walk", "City Walk", "City Walk"},
	{"creek_harbour", "Creek Harbour", "Creek Harbour"},
	{"downtown", "Downtown", "Downtown"},
	{"dubai_hills", "Dubai Hills", "Dubai Hills"},
	{"dubai_islands", "Dubai Islands", "Dubai Islands"},
	{"dubai_marina", "Dubai Marina", "Dubai Marina"},
	{"dubai_maritime_city", "Dubai Maritime City", "Dubai Maritime City"},
	{"jlt", "JLT", "Jumeirah Lakes Towers"},
	{"jvc", "JVC", "Jumeirah Village Circle"},
	{"jvt", "JVT", "Jumeirah Village Triangle"},
	{"jbr", "JBR", "Jumeirah Beach Residence"},
	{"la_mer", "La Mer", "La Mer"},
	{"mina_rashid", "Mina Rashid", "Mina Rashid"},
	{"palm_jumeirah", "Palm Jumeirah", "Palm Jumeirah"},
	{"sobha_hartland", "Sobha Hartland", "Sobha Hartland"},
}

func presetArea(code string) (string, bool) {
	for _, a := range areaPresets {
		if a.code == code {
			return a.name, true
		}
	}
	return "", false
}

// areaMenu lists the preset areas two per row, then "enter own area" and the main menu.
func areaMenu(s Strings) *OutgoingMessage {
	out := &OutgoingMessage{Text: s.ChooseArea}
	for i := 0; i < len(areaPresets); i += 2 {
		row := []Button{{Text: areaPresets[i].label, Data: cbAreaPrefix + areaPresets[i].code}}
		if i+1 < len(areaPresets) {
			row = append(row, Button{Text: areaPresets[i+1].label, Data: cbAreaPrefix + areaPresets[i+1].code})
		}
		out.Buttons = append(out.Buttons, row)
	}
	out.Buttons = append(out.Buttons,
		[]Button{{Text: s.EnterOwnArea, Data: cbAreaOwn}},
		[]Button{{Text: s.MainMenu, Data: cbMenu}},
	)
	return out
}

// intent is what the next free-text message of a chat is for.
type intent int

const (
	intentQuery intent = iota
	intentFiles
	intentKeyword
	intentArea
	intentImport
)

const maxPending = 10000

// pending holds one intent per chat, dropping the oldest chat when full.
type pending struct {
	mu    sync.Mutex
	limit int
	m     map[int64]intent
	order []int64
}

func newPending(limit int) *pending {
	return &pending{limit: limit, m: make(map[int64]intent)}
}

func (p *pending) set(chatID int64, in intent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.m[chatID]; !ok {
		if len(p.order) >= p.limit {
			delete(p.m, p.order[0])
			p.order = p.order[1:]
		}
		p.order = append(p.order, chatID)
	}
	p.m[chatID] = in
}

// take returns and forgets the chat's intent; intentQuery when there is none.
func (p *pending) take(chatID int64) intent {
	p.mu.Lock()
	defer p.mu.Unlock()
	in, ok := p.m[chatID]
	if !ok {
		return intentQuery
	}
	delete(p.m, chatID)
	for i, id := range p.order {
		if id == chatID {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
	return in
}

func (p *pending) size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.m)
}
