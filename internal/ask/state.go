package ask

import "time"

type Route string

const (
	RouteText2SQL       Route = "Text2SQL"
	RouteGeneralPurpose Route = "GeneralPurpose"
)

// CategoryClass tells the generator whether the question is about
// market tables, which suppresses the category filter.
type CategoryClass string

const (
	CategoryStandard CategoryClass = "standard"
	CategoryMarket   CategoryClass = "market"
)

// Query is the immutable input to one pipeline run.
type Query struct {
	RawText   string
	TenantID  string
	Category  string
	SessionID string
	Language  string
	Currency  string
}

type ExampleSQL struct {
	Question   string
	SQL        string
	Confidence float64
}

// ValidationRecord is the verdict of the last dry run.
type ValidationRecord struct {
	Valid   bool
	SQL     string
	Columns []string
	Error   string
}

// TableData is the {columns, data} shape the caller and the cache see.
type TableData struct {
	Columns []string `json:"columns"`
	Data    [][]any  `json:"data"`
}

// CacheEntry is the stored value for one stabilized question.
type CacheEntry struct {
	SQL        string     `json:"sql"`
	FixedQuery string     `json:"fixed_query,omitempty"`
	KFData     *TableData `json:"kf_data,omitempty"`
	KFSummary  string     `json:"kf_summary,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// HistoryMessage is one conversation turn, keyed by its author kind
// ("HumanMessage" or "AIMessage").
type HistoryMessage map[string]string

// State is the request-scoped pipeline state. Stages read some fields
// and fill in others; the executor owns the lifecycle.
type State struct {
	Query  Query
	Tenant TenantContext

	History       []HistoryMessage
	Stabilized    string
	Route         Route
	CategoryClass CategoryClass
	CacheHit      *CacheEntry

	Examples     []ExampleSQL
	AssembledDDL string

	GeneratedSQL   string
	Validation     ValidationRecord
	RecursionDepth int
	DryRunCount    int

	FinalSQL string
	Result   *TableData
	Summary  string
	Failed   bool

	Stages []string
}

// Response is what the caller receives. KFResponse is null on the
// terminal error branch and for open-world answers.
type Response struct {
	Route      Route      `json:"route"`
	SQL        string     `json:"sql,omitempty"`
	KFResponse *TableData `json:"kf_response"`
	Summary    string     `json:"summary,omitempty"`
	CacheHit   bool       `json:"cache_hit"`
	Stages     []string   `json:"stages"`
}

func (s *State) response() Response {
	resp := Response{
		Route:    s.Route,
		Stages:   s.Stages,
		CacheHit: s.CacheHit != nil,
	}
	if s.Failed {
		resp.Summary = s.Summary
		return resp
	}
	resp.SQL = s.FinalSQL
	resp.KFResponse = s.Result
	resp.Summary = s.Summary
	return resp
}
