package browse

import (
	"strings"

	"github.com/tidwall/gjson"
)

type Field struct {
	Key   string `json:"key"`
	Label string `json:"label"`
	Value string `json:"value"`
	URL   string `json:"url,omitempty"`
}

type Section struct {
	Title  string  `json:"title"`
	Fields []Field `json:"fields"`
}

type Upload struct {
	Label string   `json:"label"`
	URLs  []string `json:"urls"`
}

type Document struct {
	Tag string `json:"tag,omitempty"`
	URL string `json:"url"`
}

// Detail is the view-model of one application. Found is false when the
// upstream record could not be loaded; every display field then holds the
// placeholder.
type Detail struct {
	Found         bool              `json:"found"`
	ID            string            `json:"id"`
	Name          string            `json:"name"`
	Subtitle      string            `json:"subtitle"`
	Summary       string            `json:"summary"`
	ChallengeName string            `json:"challenge_name"`
	Fields        map[string]string `json:"fields"`
	Sections      []Section         `json:"sections"`
	Uploads       []Upload          `json:"uploads"`
	Company       []Field           `json:"company"`
	Management    []Field           `json:"management"`
	Step3         []Field           `json:"step3"`
	Step4         []Field           `json:"step4"`
	Documents     []Document        `json:"documents"`
	CompanyImage  string            `json:"company_image,omitempty"`
	MemberImage   string            `json:"member_image,omitempty"`
}

type keyLabel struct{ key, label string }

var overviewKeys = []keyLabel{
	{"companyname", "Company"},
	{"cityc", "Location"},
	{"industryc", "Industry"},
	{"yearc", "Incorporation Year"},
	{"teamsize", "Team Size"},
	{"more", "Founders"},
	{"titlem", "Applicant Title"},
}

var contactKeys = []keyLabel{
	{"emailm", "Email"},
	{"websitem", "Website"},
	{"website", "Website (alt)"},
	{"phone", "Phone"},
}

var socialKeys = []keyLabel{
	{"linkedin_company", "LinkedIn (Company)"},
	{"twitterm", "Twitter / X"},
	{"facebook", "Facebook"},
	{"insta", "Instagram"},
	{"youtube", "YouTube"},
}

var answerKeys = []keyLabel{
	{"Describe the innovation in your proposed solution", "Innovation"},
	{"List the research deliverables with a short description for each.", "Research Deliverables"},
	{"Provide a proposed timeline / phases for executing your research/solution.", "Proposed Timeline"},
	{"What are the product-level advantages (performance, usability, accuracy, etc.)?", "Product-Level Advantages"},
	{"List the key challenges you anticipate and your mitigation plan to address them.", "Key Challenges & Mitigation"},
	{"Mention the key technologies (5–6 keywords) that will be used in your solution.", "Technologies"},
	{"Explain your research details – including approach, architecture, and feasibility.", "Approach / Architecture / Feasibility"},
	{"What are the commercial advantages (scalability, cost-effectiveness, adoption potential)?", "Commercial Advantages"},
	{"Provide details of your relevant past experience in biometrics, AI/ML, or related research.", "Relevant Past Experience"},
}

var uploadKeys = []keyLabel{
	{"Upload the research solution document (technical details).", "Technical Details"},
	{"Upload a solution benefits document (impact, value proposition).", "Benefits / Value Proposition"},
	{"Upload the research deliverables with a short description for each.", "Deliverables"},
	{"Upload the resumes of research team members.", "Team CVs"},
	{"Upload your challenge proposal document.", "Proposal"},
	{"path", "Company/Logo Image"},
	{"url", "Landing Image"},
}

// ParseDetail normalizes a single-application payload: {result:{...}},
// {results:[{...}]} or the object itself.
func ParseDetail(raw []byte) Detail {
	if !gjson.ValidBytes(raw) {
		return EmptyDetail("")
	}
	root := gjson.ParseBytes(raw)
	app := root
	switch {
	case root.Get("result").Exists():
		app = root.Get("result")
	case root.Get("results").IsArray():
		app = root.Get("results.0")
	}
	if !app.IsObject() {
		return EmptyDetail("")
	}
	return detailFrom(app)
}

// EmptyDetail is shown when the record could not be fetched.
func EmptyDetail(id string) Detail {
	return Detail{
		ID:            id,
		Name:          Placeholder,
		Subtitle:      Placeholder,
		Summary:       Placeholder,
		ChallengeName: Placeholder,
		Fields:        map[string]string{},
		Sections:      []Section{},
		Uploads:       []Upload{},
		Company:       []Field{},
		Management:    []Field{},
		Step3:         []Field{},
		Step4:         []Field{},
		Documents:     []Document{},
	}
}

func detailFrom(app gjson.Result) Detail {
	r := newRecord(app)
	d := EmptyDetail(r.pick(idKeys...))
	d.Found = true
	d.Name = r.pickOr(Placeholder, "companyname", "name", "startup_name")
	d.Summary = r.pickOr(Placeholder, "descriptionDetail", "summary", "more_info")
	d.ChallengeName = r.pickOr(Placeholder, "challenge_name", "challenge")

	var parts []string
	for _, s := range []string{r.pick("cityc", "city"), r.pick("industryc", "industry"), r.pick("yearc")} {
		if s != "" {
			parts = append(parts, s)
		}
	}
	if len(parts) > 0 {
		d.Subtitle = strings.Join(parts, " • ")
	}

	app.ForEach(func(k, v gjson.Result) bool {
		if s := text(v); s != "" || v.Type == gjson.String {
			d.Fields[k.String()] = s
		}
		return true
	})

	d.Sections = []Section{
		{Title: "Overview", Fields: fixedFields(r, overviewKeys, false)},
		{Title: "Contacts", Fields: fixedFields(r, contactKeys, false)},
		{Title: "Social", Fields: fixedFields(r, socialKeys, false)},
		{Title: "Answers", Fields: fixedFields(r, answerKeys, true)},
	}
	d.Uploads = uploads(r)

	d.Company, d.Management = splitProfile(app.Get("company_profile"))
	d.Step3 = freeForm(app.Get("sections.step3"))
	d.Step4 = freeForm(app.Get("sections.step4"))

	d.Documents, d.CompanyImage, d.MemberImage = documents(app.Get("documents"))
	return d
}

// fixedFields renders keys in order. Missing values show the placeholder
// unless skipEmpty drops them.
func fixedFields(r record, keys []keyLabel, skipEmpty bool) []Field {
	out := make([]Field, 0, len(keys))
	for _, kl := range keys {
		v := text(r[kl.key])
		if v == "" {
			if skipEmpty {
				continue
			}
			v = Placeholder
		}
		f := Field{Key: kl.key, Label: kl.label, Value: v}
		if isHTTPURL(v) {
			f.URL = v
		}
		out = append(out, f)
	}
	return out
}

func uploads(r record) []Upload {
	out := []Upload{}
	for _, kl := range uploadKeys {
		v, ok := r[kl.key]
		if !ok {
			continue
		}
		candidates := []gjson.Result{v}
		if v.IsArray() {
			candidates = v.Array()
		}
		var urls []string
		for _, c := range candidates {
			if c.Type == gjson.String && isHTTPURL(strings.TrimSpace(c.Str)) {
				urls = append(urls, strings.TrimSpace(c.Str))
			}
		}
		if len(urls) > 0 {
			out = append(out, Upload{Label: kl.label, URLs: urls})
		}
	}
	return out
}

// splitProfile separates company_profile into company and management
// fields; management keys end in "m". Blank and nested values are dropped.
func splitProfile(p gjson.Result) (company, management []Field) {
	company, management = []Field{}, []Field{}
	if !p.IsObject() {
		return
	}
	p.ForEach(func(k, v gjson.Result) bool {
		if v.IsObject() || v.IsArray() {
			return true
		}
		s := text(v)
		if s == "" {
			return true
		}
		key := k.String()
		f := Field{Key: key, Label: labelFor(key), Value: s}
		if strings.HasSuffix(key, "m") {
			management = append(management, f)
		} else {
			company = append(company, f)
		}
		return true
	})
	return
}

func freeForm(v gjson.Result) []Field {
	out := []Field{}
	if !v.IsObject() {
		return out
	}
	v.ForEach(func(k, val gjson.Result) bool {
		s := text(val)
		if s == "" {
			s = Placeholder
		}
		f := Field{Key: k.String(), Label: labelFor(k.String()), Value: s}
		if isHTTPURL(s) {
			f.URL = s
		}
		out = append(out, f)
		return true
	})
	return out
}

func documents(v gjson.Result) (docs []Document, companyImg, memberImg string) {
	docs = []Document{}
	if !v.IsArray() {
		return
	}
	var firstURL string
	for _, d := range v.Array() {
		u := strings.TrimSpace(d.Get("url").String())
		if u == "" {
			continue
		}
		tag := strings.TrimSpace(d.Get("tag").String())
		docs = append(docs, Document{Tag: tag, URL: u})
		if firstURL == "" {
			firstURL = u
		}
		if tag == "company" && companyImg == "" {
			companyImg = u
		}
		if tag == "member" && memberImg == "" {
			memberImg = u
		}
	}
	if companyImg == "" {
		companyImg = firstURL
	}
	if memberImg == "" {
		memberImg = firstURL
	}
	return
}
