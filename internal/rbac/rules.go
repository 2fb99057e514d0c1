package rbac

const (
	PermApplicationView = "application:view"
	PermScoreWrite      = "score:write"
	PermHistoryView     = "review:history"
)

// Known is every permission the portal checks.
var Known = []string{PermApplicationView, PermScoreWrite, PermHistoryView}

// DefaultPolicy: managers follow progress but never score.
var DefaultPolicy = Policy{
	"evaluator": {
		PermApplicationView,
		PermScoreWrite,
		PermHistoryView,
	},
	"manager": {
		"application:*",
		PermHistoryView,
	},
	"admin": {"*"},
}
