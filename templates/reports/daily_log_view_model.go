package reports

// DailyLogView holds one day of activity, ready to print.
type DailyLogView struct {
	Day         string // 2006-01-02, for the document title
	DayLabel    string // 02/01/2006
	GeneratedAt string
	Total       int
	Counts      []ActionCount
	Entries     []LogEntry
}

// ActionCount is one row of the per-action summary.
type ActionCount struct {
	Action string
	Count  int
}

// LogEntry is one activity log line. Empty fields are shown as "-".
type LogEntry struct {
	Time        string
	Action      string
	Actor       string
	Target      string
	IP          string
	Description string
	// Metadata is pretty-printed JSON, empty when the entry has none
	Metadata string
}

// EmptyDayNotice replaces the summary on days without activity.
const EmptyDayNotice = "Aucune action enregistrée pour cette journée."
