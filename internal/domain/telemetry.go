// internal/domain/telemetry.go
//
// Telemetry records: page views, asset accesses, and error reports.
//
// Context
// -------
// These rows are the only thing the pipeline writes.  A PageView is
// created at most once per request and may be amended exactly once more
// by the client's follow-up callback.  An AssetAccess is a per-(user,
// asset) counter whose level escalates but never regresses within one
// access event.  An ErrorReport is write-once.
package domain

import "time"

// AccessLevel orders asset-access participation depth.
type AccessLevel int

const (
	LevelView AccessLevel = iota
	LevelParticipate
	LevelSubmit
)

var levelNames = [...]string{
	LevelView:        "view",
	LevelParticipate: "participate",
	LevelSubmit:      "submit",
}

func (l AccessLevel) String() string {
	if int(l) < 0 || int(l) >= len(levelNames) {
		return "view"
	}
	return levelNames[l]
}

// ParseAccessLevel maps the wire form; unknown strings default to view.
func ParseAccessLevel(s string) AccessLevel {
	for i, n := range levelNames {
		if n == s {
			return AccessLevel(i)
		}
	}
	return LevelView
}

// Participatory reports whether the level marks the page view as
// participated.
func (l AccessLevel) Participatory() bool {
	return l == LevelParticipate || l == LevelSubmit
}

// PageView is one persisted record of a human page load.
type PageView struct {
	ID              string // UUID, minted at creation so the correlation header can be set early
	UserID          uint64
	ContextKind     Kind
	ContextID       uint64
	AccountID       uint64
	URL             string
	Participated    bool
	RenderTime      time.Duration
	GeneratedByHand bool // explicit creation; suppresses follow-up merges
	Interaction     time.Duration
	Contributed     bool
	UserAgent       string
	Country         string // best-effort GeoIP hint; empty when unknown
	AssetAccessID   uint64
	CreatedAt       time.Time
}

// AssetAccess is the (user, asset code) usage counter.
type AssetAccess struct {
	ID         uint64
	UserID     uint64
	AssetCode  string
	Category   string
	Level      AccessLevel
	ViewCount  int
	LastAccess time.Time
}

// Escalate raises the level monotonically.  Lower levels are ignored so
// view-after-participate keeps participate.
func (a *AssetAccess) Escalate(l AccessLevel) {
	if l > a.Level {
		a.Level = l
	}
}

// ErrorReport captures one observed failure.  Write-once.
type ErrorReport struct {
	ID        string // UUID correlation id, echoed to API callers
	Category  string
	Message   string
	URL       string
	UserID    uint64
	AccountID uint64
	UserAgent string
	Method    string
	Format    string
	CreatedAt time.Time
}
