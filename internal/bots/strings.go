package bots

import (
	"reflect"
	"strings"
)

// Strings is the user-facing text of one language.
type Strings struct {
	Start              string `koanf:"start" yaml:"start"`
	MainMenu           string `koanf:"main_menu" yaml:"main_menu"`
	MenuQuery          string `koanf:"menu_query" yaml:"menu_query"`
	MenuFiles          string `koanf:"menu_files" yaml:"menu_files"`
	MenuKeyword        string `koanf:"menu_keyword" yaml:"menu_keyword"`
	MenuArea           string `koanf:"menu_area" yaml:"menu_area"`
	MenuLanguage       string `koanf:"menu_language" yaml:"menu_language"`
	MenuAdmin          string `koanf:"menu_admin" yaml:"menu_admin"`
	EnterProjectName   string `koanf:"enter_project_name" yaml:"enter_project_name"`
	EnterKeyword       string `koanf:"enter_keyword" yaml:"enter_keyword"`
	ChooseArea         string `koanf:"choose_area" yaml:"choose_area"`
	EnterOwnArea       string `koanf:"enter_own_area" yaml:"enter_own_area"`
	EnterArea          string `koanf:"enter_area" yaml:"enter_area"`
	ResultSuggestions  string `koanf:"result_suggestions" yaml:"result_suggestions"`
	MoreResults        string `koanf:"more_results" yaml:"more_results"`
	ResultNegative     string `koanf:"result_negative" yaml:"result_negative"`
	FilesFound         string `koanf:"files_found" yaml:"files_found"`
	NoFilesFound       string `koanf:"no_files_found" yaml:"no_files_found"`
	AreaNotFound       string `koanf:"area_not_found" yaml:"area_not_found"`
	AreaReport         string `koanf:"area_report" yaml:"area_report"`
	ChooseLanguage     string `koanf:"choose_language" yaml:"choose_language"`
	LanguageSet        string `koanf:"language_set" yaml:"language_set"`
	LanguageName       string `koanf:"language_name" yaml:"language_name"`
	AdminMenu          string `koanf:"admin_menu" yaml:"admin_menu"`
	AdminExport        string `koanf:"admin_export" yaml:"admin_export"`
	AdminImport        string `koanf:"admin_import" yaml:"admin_import"`
	NoRights           string `koanf:"no_rights" yaml:"no_rights"`
	SendImportFile     string `koanf:"send_import_file" yaml:"send_import_file"`
	UploadNotExpected  string `koanf:"upload_not_expected" yaml:"upload_not_expected"`
	ImportDone         string `koanf:"import_done" yaml:"import_done"`
	ImportFailed       string `koanf:"import_failed" yaml:"import_failed"`
	ExportDone         string `koanf:"export_done" yaml:"export_done"`
	GrantUsage         string `koanf:"grant_usage" yaml:"grant_usage"`
	AdminGranted       string `koanf:"admin_granted" yaml:"admin_granted"`
	UnknownCommand     string `koanf:"unknown_command" yaml:"unknown_command"`
	SomethingWentWrong string `koanf:"something_went_wrong" yaml:"something_went_wrong"`
}

// Catalog maps a language code to its strings.
type Catalog map[string]Strings

const DefaultLanguage = "en"

func DefaultCatalog() Catalog {
	return Catalog{
		"en": {
			Start:              "Hi! I can look up real estate projects for you. Pick an option below.",
			MainMenu:           "Main menu",
			MenuQuery:          "Project info",
			MenuFiles:          "Project documents",
			MenuKeyword:        "Search documents by keyword",
			MenuArea:           "Area report",
			MenuLanguage:       "Language",
			MenuAdmin:          "Admin",
			EnterProjectName:   "Enter the project name:",
			EnterKeyword:       "Enter a word from the document name:",
			ChooseArea:         "Choose an area or enter your own:",
			EnterOwnArea:       "Enter own area",
			EnterArea:          "Enter the area name:",
			ResultSuggestions:  "Several projects match. Choose one:",
			MoreResults:        "Showing %d of %d matches. Type a longer name to narrow it down.",
			ResultNegative:     "Nothing found. Check the spelling or try another name.",
			FilesFound:         "Found %d document(s).",
			NoFilesFound:       "No documents are available for this project yet.",
			AreaNotFound:       "No buildings found in area %q.",
			AreaReport:         "Buildings in %s: %d ready, %d off-plan.",
			ChooseLanguage:     "Choose a language:",
			LanguageSet:        "Language set to English.",
			LanguageName:       "English",
			AdminMenu:          "Data maintenance:",
			AdminExport:        "Export tables",
			AdminImport:        "Import projects",
			NoRights:           "You do not have permission to do that.",
			SendImportFile:     "Send the projects file (.xlsx or .json).",
			UploadNotExpected:  "I was not expecting a file. Use /import first.",
			ImportDone:         "Import finished: %d created, %d updated, %d unchanged.",
			ImportFailed:       "Import failed: %v",
			ExportDone:         "Exported %d table(s).",
			GrantUsage:         "Usage: /grant <user id> [username]",
			AdminGranted:       "User %d (%s) is now an admin.",
			UnknownCommand:     "Unknown command. Use /menu to see what I can do.",
			SomethingWentWrong: "Something went wrong. Please try again later.",
		},
		"ru": {
			Start:              "Привет! Я помогу найти информацию о проектах недвижимости. Выберите действие.",
			MainMenu:           "Главное меню",
			MenuQuery:          "Информация о проекте",
			MenuFiles:          "Документы проекта",
			MenuKeyword:        "Поиск документов по слову",
			MenuArea:           "Отчёт по району",
			MenuLanguage:       "Язык",
			MenuAdmin:          "Администрирование",
			EnterProjectName:   "Введите название проекта:",
			EnterKeyword:       "Введите слово из названия документа:",
			ChooseArea:         "Выберите район или введите свой:",
			EnterOwnArea:       "Ввести свой район",
			EnterArea:          "Введите название района:",
			ResultSuggestions:  "Найдено несколько проектов. Выберите один:",
			MoreResults:        "Показано %d из %d. Уточните название.",
			ResultNegative:     "Ничего не найдено. Проверьте написание или попробуйте другое название.",
			FilesFound:         "Найдено документов: %d.",
			NoFilesFound:       "Для этого проекта пока нет документов.",
			AreaNotFound:       "В районе %q зданий не найдено.",
			AreaReport:         "Здания в %s: готовых %d, строящихся %d.",
			ChooseLanguage:     "Выберите язык:",
			LanguageSet:        "Язык изменён на русский.",
			LanguageName:       "Русский",
			AdminMenu:          "Управление данными:",
			AdminExport:        "Выгрузить таблицы",
			AdminImport:        "Загрузить проекты",
			NoRights:           "У вас нет прав на это действие.",
			SendImportFile:     "Отправьте файл проектов (.xlsx или .json).",
			UploadNotExpected:  "Я не ждал файл. Сначала выполните /import.",
			ImportDone:         "Импорт завершён: создано %d, обновлено %d, без изменений %d.",
			ImportFailed:       "Ошибка импорта: %v",
			ExportDone:         "Выгружено таблиц: %d.",
			GrantUsage:         "Использование: /grant <id пользователя> [имя]",
			AdminGranted:       "Пользователь %d (%s) теперь администратор.",
			UnknownCommand:     "Неизвестная команда. Откройте /menu.",
			SomethingWentWrong: "Что-то пошло не так. Попробуйте позже.",
		},
	}
}

// For returns the strings of lang, falling back to English.
func (c Catalog) For(lang string) Strings {
	if s, ok := c[normLang(lang)]; ok {
		return s
	}
	return c[DefaultLanguage]
}

func (c Catalog) Has(lang string) bool {
	_, ok := c[normLang(lang)]
	return ok
}

func normLang(lang string) string {
	return strings.ToLower(strings.TrimSpace(lang))
}

// WithDefaults fills every empty string of c from def, language by language. Languages
// missing from c are taken from def whole; unknown languages fall back to English text.
func (c Catalog) WithDefaults(def Catalog) Catalog {
	out := make(Catalog, len(def)+len(c))
	for lang, s := range def {
		out[lang] = s
	}
	for lang, s := range c {
		lang = normLang(lang)
		base, ok := def[lang]
		if !ok {
			base = def[DefaultLanguage]
		}
		out[lang] = fill(s, base)
	}
	return out
}

func fill(s, base Strings) Strings {
	dst := reflect.ValueOf(&s).Elem()
	src := reflect.ValueOf(base)
	for i := 0; i < dst.NumField(); i++ {
		if f := dst.Field(i); f.Kind() == reflect.String && f.String() == "" {
			f.SetString(src.Field(i).String())
		}
	}
	return s
}
