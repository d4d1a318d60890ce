package models

// Unit kinds, as stored on sessions and in unit_quota
const (
	UnitIndividual = "individual"
	UnitJobSet     = "job_set"
)

// QuotaCounts holds a unit's per-group counters.
// Reserved counts sessions holding or having completed the unit;
// Completed counts finished annotations and never goes down.
type QuotaCounts struct {
	Reserved  map[string]int
	Completed map[string]int
}

// AllocationUnit is either an *IndividualArticle or a *JobSet.
// Consumers switch on the concrete type; the set is closed.
type AllocationUnit interface {
	UnitID() string
	UnitKind() string
	Quota() QuotaCounts
	ArticleViews() []ArticleView
	isAllocationUnit()
}

// Article is an imported text belonging to a form.
type Article struct {
	ID      string
	ShortID string
	Text    string
}

// View strips everything but the fields a participant may see.
func (a Article) View() ArticleView {
	return ArticleView{ID: a.ID, ShortID: a.ShortID, Text: a.Text}
}

type ArticleView struct {
	ID      string `json:"id"`
	ShortID string `json:"short_id"`
	Text    string `json:"text"`
}

// IndividualArticle is an article that is assigned on its own.
type IndividualArticle struct {
	Article
	Counts QuotaCounts
}

func (a *IndividualArticle) UnitID() string              { return a.ID }
func (a *IndividualArticle) UnitKind() string            { return UnitIndividual }
func (a *IndividualArticle) Quota() QuotaCounts          { return a.Counts }
func (a *IndividualArticle) ArticleViews() []ArticleView { return []ArticleView{a.View()} }
func (a *IndividualArticle) isAllocationUnit()           {}

// JobSet is a fixed bundle of articles that is always assigned whole.
type JobSet struct {
	ID       string
	ShortID  string
	Articles []Article
	Counts   QuotaCounts
}

func (j *JobSet) UnitID() string     { return j.ID }
func (j *JobSet) UnitKind() string   { return UnitJobSet }
func (j *JobSet) Quota() QuotaCounts { return j.Counts }
func (j *JobSet) isAllocationUnit()  {}

func (j *JobSet) ArticleViews() []ArticleView {
	views := make([]ArticleView, len(j.Articles))
	for i, a := range j.Articles {
		views[i] = a.View()
	}
	return views
}
