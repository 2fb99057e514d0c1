package browse

var (
	idKeys       = []string{"application_id", "id", "startup_id", "user_id"}
	nameKeys     = []string{"startup_name", "companyname", "company_name", "companyName", "name", "namew", "startup"}
	locationKeys = []string{"location", "city", "cityc", "statec", "state"}
	stageKeys    = []string{"stage", "stagec"}
	statusKeys   = []string{"status", "progress_state"}
)

// Row is one application in the listing. ID is empty when the record has
// none, so the UI can disable the review action for it.
type Row struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Location string `json:"location"`
	Stage    string `json:"stage"`
	Status   string `json:"status"`
}

// Rows normalizes a listing payload. It never fails; unusable input yields
// no rows.
func Rows(raw []byte) []Row {
	recs := records(raw)
	out := make([]Row, 0, len(recs))
	for _, v := range recs {
		if !v.IsObject() {
			continue
		}
		r := newRecord(v)
		out = append(out, Row{
			ID:       r.pick(idKeys...),
			Name:     r.pickOr(Placeholder, nameKeys...),
			Location: r.pickOr(Placeholder, locationKeys...),
			Stage:    r.pickOr(Placeholder, stageKeys...),
			Status:   r.pickOr(Placeholder, statusKeys...),
		})
	}
	return out
}
