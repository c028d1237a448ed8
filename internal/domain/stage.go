package domain

// Topic is a data point the interviewer must collect during a stage
type Topic struct {
	Key      string   `json:"key"`
	Label    string   `json:"label"`
	Keywords []string `json:"keywords,omitempty"`
}

// StageDefinition describes one fixed stage of the onboarding conversation
type StageDefinition struct {
	Stage               int     `json:"stage"`
	Name                string  `json:"name"`
	Title               string  `json:"title"`
	Objective           string  `json:"objective"`
	RequiredTopics      []Topic `json:"requiredTopics"`
	CompletionThreshold float64 `json:"completionThreshold"`
}

// TopicKeys returns the required topic keys in catalog order
func (d StageDefinition) TopicKeys() []string {
	keys := make([]string, 0, len(d.RequiredTopics))
	for _, t := range d.RequiredTopics {
		keys = append(keys, t.Key)
	}
	return keys
}

// Requires reports whether key is one of the stage's required topics
func (d StageDefinition) Requires(key string) bool {
	for _, t := range d.RequiredTopics {
		if t.Key == key {
			return true
		}
	}
	return false
}

// Catalog is the ordered, immutable list of stages
type Catalog struct {
	stages []StageDefinition
	topics map[string]int
}

// NewCatalog builds a catalog from stage definitions numbered 1..N
func NewCatalog(stages []StageDefinition) *Catalog {
	c := &Catalog{
		stages: make([]StageDefinition, len(stages)),
		topics: make(map[string]int),
	}
	copy(c.stages, stages)
	for _, s := range c.stages {
		for _, t := range s.RequiredTopics {
			c.topics[t.Key] = s.Stage
		}
	}
	return c
}

// Len returns the number of stages (N)
func (c *Catalog) Len() int {
	return len(c.stages)
}

// Stage returns the definition of stage n (1-based)
func (c *Catalog) Stage(n int) (StageDefinition, bool) {
	if n < 1 || n > len(c.stages) {
		return StageDefinition{}, false
	}
	return c.stages[n-1], true
}

// Stages returns a copy of all stage definitions
func (c *Catalog) Stages() []StageDefinition {
	out := make([]StageDefinition, len(c.stages))
	copy(out, c.stages)
	return out
}

// IsFinal reports whether n is the last stage
func (c *Catalog) IsFinal(n int) bool {
	return n == len(c.stages)
}

// KnownTopic reports whether key belongs to any stage
func (c *Catalog) KnownTopic(key string) bool {
	_, ok := c.topics[key]
	return ok
}

var defaultStages = []StageDefinition{
	{
		Stage:     1,
		Name:      "welcome_intro",
		Title:     "Welcome & Introduction",
		Objective: "Understand the business idea and the founder behind it",
		RequiredTopics: []Topic{
			{Key: "business_concept", Label: "Business concept", Keywords: []string{"idea", "build", "product", "service", "app", "platform"}},
			{Key: "inspiration", Label: "Inspiration", Keywords: []string{"inspired", "noticed", "realized", "because", "frustrat"}},
			{Key: "current_stage", Label: "Current stage", Keywords: []string{"prototype", "launched", "early", "idea stage", "mvp", "revenue"}},
			{Key: "founder_background", Label: "Founder background", Keywords: []string{"experience", "worked", "background", "years", "career"}},
		},
		CompletionThreshold: 0.75,
	},
	{
		Stage:     2,
		Name:      "customer_discovery",
		Title:     "Customer Discovery",
		Objective: "Identify who the customers are and how to reach them",
		RequiredTopics: []Topic{
			{Key: "target_customers", Label: "Target customers", Keywords: []string{"customer", "users", "clients", "buyers"}},
			{Key: "customer_segments", Label: "Customer segments", Keywords: []string{"segment", "small business", "enterprise", "consumers", "niche"}},
			{Key: "early_adopters", Label: "Early adopters", Keywords: []string{"early adopter", "first customers", "pilot", "beta"}},
			{Key: "customer_access", Label: "Customer access", Keywords: []string{"reach", "channel", "network", "community", "outreach"}},
		},
		CompletionThreshold: 0.75,
	},
	{
		Stage:     3,
		Name:      "problem_definition",
		Title:     "Problem Definition",
		Objective: "Pin down the pain point and how it is solved today",
		RequiredTopics: []Topic{
			{Key: "problem_description", Label: "Problem description", Keywords: []string{"problem", "pain", "struggle", "difficult"}},
			{Key: "problem_frequency", Label: "Problem frequency", Keywords: []string{"daily", "weekly", "often", "every", "frequent"}},
			{Key: "problem_impact", Label: "Problem impact", Keywords: []string{"cost", "lose", "waste", "hours", "impact"}},
			{Key: "current_solutions", Label: "Current solutions", Keywords: []string{"currently", "today", "spreadsheet", "workaround", "manual"}},
		},
		CompletionThreshold: 0.75,
	},
	{
		Stage:     4,
		Name:      "solution_validation",
		Title:     "Solution Validation",
		Objective: "Describe the solution and the evidence that it works",
		RequiredTopics: []Topic{
			{Key: "solution_description", Label: "Solution description", Keywords: []string{"solution", "solve", "automate", "feature", "works by"}},
			{Key: "unique_value_prop", Label: "Unique value proposition", Keywords: []string{"unique", "better", "faster", "cheaper", "easier"}},
			{Key: "differentiation", Label: "Differentiation", Keywords: []string{"different", "unlike", "instead of", "only"}},
			{Key: "validation_evidence", Label: "Validation evidence", Keywords: []string{"interview", "feedback", "tested", "signed", "waitlist"}},
		},
		CompletionThreshold: 0.75,
	},
	{
		Stage:     5,
		Name:      "competitive_analysis",
		Title:     "Competitive Analysis",
		Objective: "Map alternatives and the founder's edge",
		RequiredTopics: []Topic{
			{Key: "competitors", Label: "Competitors", Keywords: []string{"competitor", "alternative", "rival", "incumbent"}},
			{Key: "competitive_advantage", Label: "Competitive advantage", Keywords: []string{"advantage", "edge", "moat", "proprietary"}},
			{Key: "market_position", Label: "Market position", Keywords: []string{"position", "premium", "low-cost", "market"}},
			{Key: "barriers_to_entry", Label: "Barriers to entry", Keywords: []string{"barrier", "copy", "defensib", "switching cost"}},
		},
		CompletionThreshold: 0.75,
	},
	{
		Stage:     6,
		Name:      "resources_constraints",
		Title:     "Resources & Constraints",
		Objective: "Capture budget, team and time available",
		RequiredTopics: []Topic{
			{Key: "budget_range", Label: "Budget range", Keywords: []string{"budget", "$", "funding", "savings", "invest"}},
			{Key: "team_capabilities", Label: "Team capabilities", Keywords: []string{"team", "co-founder", "developer", "skills", "hire"}},
			{Key: "available_channels", Label: "Available channels", Keywords: []string{"social", "seo", "ads", "partners", "email"}},
			{Key: "time_constraints", Label: "Time constraints", Keywords: []string{"hours", "part-time", "full-time", "deadline", "months"}},
		},
		CompletionThreshold: 0.75,
	},
	{
		Stage:     7,
		Name:      "goals_next_steps",
		Title:     "Goals & Next Steps",
		Objective: "Agree on goals, success criteria and metrics",
		RequiredTopics: []Topic{
			{Key: "business_stage", Label: "Business stage goal", Keywords: []string{"launch", "scale", "validate", "grow"}},
			{Key: "three_month_goals", Label: "Three month goals", Keywords: []string{"three months", "3 months", "quarter", "next month"}},
			{Key: "success_criteria", Label: "Success criteria", Keywords: []string{"success", "achieve", "milestone", "win"}},
			{Key: "key_metrics", Label: "Key metrics", Keywords: []string{"metric", "kpi", "mrr", "retention", "conversion"}},
		},
		CompletionThreshold: 0.75,
	},
}

// DefaultCatalog returns the seven-stage onboarding catalog
func DefaultCatalog() *Catalog {
	return NewCatalog(defaultStages)
}
