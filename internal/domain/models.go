package domain

import "time"

// Project is one real-estate development as imported from the land department dump.
// Nullable columns are pointers so that "absent" and "zero" stay distinct.
type Project struct {
	ProjectID             int        `json:"project_id"`
	ProjectName           string     `json:"project_name"`
	NameIDBuildings       string     `json:"project_name_id_buildings"`
	DeveloperID           *int       `json:"developer_id,omitempty"`
	DeveloperName         string     `json:"developer_name"`
	DeveloperNameEN       string     `json:"developer_name_en"`
	RegistrationDate      *time.Time `json:"registration_date,omitempty"`
	LicenseSourceEN       string     `json:"license_source_en"`
	LicenseNumber         string     `json:"license_number"`
	LicenseIssueDate      *time.Time `json:"license_issue_date,omitempty"`
	LicenseExpiryDate     *time.Time `json:"license_expiry_date,omitempty"`
	ChamberOfCommerceNo   string     `json:"chamber_of_commerce_no"`
	Webpage               string     `json:"webpage"`
	MasterDeveloperName   string     `json:"master_developer_name"`
	MasterDeveloperNameEN string     `json:"master_developer_name_en"`
	ProjectStartDate      *time.Time `json:"project_start_date,omitempty"`
	ProjectEndDate        *time.Time `json:"project_end_date,omitempty"`
	ProjectStatus         string     `json:"project_status"`
	PercentCompleted      int        `json:"percent_completed"`
	CompletionDate        *time.Time `json:"completion_date,omitempty"`
	CancellationDate      *time.Time `json:"cancellation_date,omitempty"`
	ProjectDescriptionEN  string     `json:"project_description_en"`
	AreaNameEN            string     `json:"area_name_en"`
	MasterProjectEN       string     `json:"master_project_en"`
	ZoningAuthorityEN     string     `json:"zoning_authority_en"`
	NoOfBuildings         *int       `json:"no_of_buildings,omitempty"`
	NoOfVillas            *int       `json:"no_of_villas,omitempty"`
	NoOfUnits             *int       `json:"no_of_units,omitempty"`
	IsFreeHold            string     `json:"is_free_hold"`
	IsLeaseHold           string     `json:"is_lease_hold"`
	IsRegistered          string     `json:"is_registered"`
	PropertyTypeEN        string     `json:"property_type_en"`
	PropertySubTypeEN     string     `json:"property_sub_type_en"`
	LandTypeEN            string     `json:"land_type_en"`
	Floors                *int       `json:"floors,omitempty"`
}

// Completed reports whether the project is finished (100%).
func (p Project) Completed() bool { return p.PercentCompleted == 100 }

// MatchMode tells which resolution stage produced a result.
type MatchMode string

const (
	ModeExact      MatchMode = "exact"
	ModeSimilarity MatchMode = "similarity"
)

// Candidate is a resolved project; Score is only meaningful in similarity mode.
type Candidate struct {
	Project Project `json:"project"`
	Score   float64 `json:"score"`
}

type SearchResult struct {
	Mode       MatchMode   `json:"mode"`
	Candidates []Candidate `json:"candidates"`
}

// Projects returns the candidate projects in result order.
func (r SearchResult) Projects() []Project {
	out := make([]Project, 0, len(r.Candidates))
	for _, c := range r.Candidates {
		out = append(out, c.Project)
	}
	return out
}

// ProjectFile caches the messaging channel's handle for a document that was already uploaded.
type ProjectFile struct {
	FileID        int    `json:"file_id"`
	ProjectID     int    `json:"project_id"`
	FileName      string `json:"file_name"`
	FileType      string `json:"file_type"`
	ChannelFileID string `json:"channel_file_id"`
}

// Building is one row of an area report.
type Building struct {
	Name             string     `json:"name"`
	EndDate          *time.Time `json:"end_date,omitempty"`
	PercentCompleted int        `json:"percent_completed"`
	// Age is either a whole number of years or the project status text.
	Age string `json:"age"`
}

// User roles. Admins may import and export data and grant the role to others.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

type User struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Language  string    `json:"language"`
	Role      string    `json:"role"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
}

func (u User) IsAdmin() bool { return u.Role == RoleAdmin }

// Event types, as accepted by the events table.
const (
	EventMessage  = "message"
	EventCallback = "callback"
)

type Event struct {
	ID        string    `json:"id"`
	UserID    int64     `json:"user_id"`
	Type      string    `json:"type"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ImportSummary counts what a bulk import did.
type ImportSummary struct {
	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
}

// Document is a file in the document store that belongs to a project folder.
// ProjectID is set when the owning project is known, as for keyword search hits.
type Document struct {
	Key       string `json:"key"`
	Name      string `json:"name"`
	Size      int64  `json:"size"`
	ProjectID int    `json:"project_id,omitempty"`
}

// TableExport is one table dumped as CSV.
type TableExport struct {
	Name string `json:"name"`
	CSV  []byte `json:"csv"`
}
