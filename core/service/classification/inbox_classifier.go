// Package classification implements the rule-based sender role and message
// importance classifier.
package classification

import (
	"math"
	"regexp"
	"strings"

	"inbox_worker/core/domain"
)

// =============================================================================
// Scoring weights
// =============================================================================

// Weights are the heuristic scoring constants, overridable via config.
type Weights struct {
	Keyword           float64 // per keyword hit in headers+body
	SenderOverride    float64 // per sender-substring override hit
	DomainHint        float64 // per sender-domain hint hit
	UrgencyBoost      float64 // added to High on explicit urgency tokens
	Divisor           float64 // confidence = best score / Divisor
	MaxConfidence     float64 // confidence ceiling
	DefaultConfidence float64 // confidence when nothing matched
}

// DefaultWeights returns the standard scoring constants.
func DefaultWeights() Weights {
	return Weights{
		Keyword:           2,
		SenderOverride:    6,
		DomainHint:        1,
		UrgencyBoost:      4,
		Divisor:           8,
		MaxConfidence:     0.95,
		DefaultConfidence: 0.4,
	}
}

// =============================================================================
// Keyword dictionaries
// =============================================================================

var roleKeywords = map[domain.Role][]string{
	domain.RoleStudent: {
		"student", "undergraduate", "undergrad", "graduate", "bachelor", "masters", "msc",
		"phd", "thesis", "dissertation", "coursework", "homework", "project submission",
		"semester", "enrolled", "transcript", "exam", "midterm", "final exam", "lecture note",
		"canvas", "moodle", "blackboard", "gpa", "credit hours", "enroll", "academic advisor",
		"student id", "attendance", "plagiarism", "assignment due", "extension request",
		"course registration", "group study",
	},
	domain.RoleFaculty: {
		"professor", "lecturer", "faculty", "instructor", "supervisor", "advisor",
		"department chair", "dean", "academic staff", "postdoc", "research fellow",
		"publication", "conference paper", "research grant", "peer review", "call for papers",
		"academic journal", "faculty meeting", "reviewer", "syllabus", "mentorship",
		"exam committee", "grading", "tenure", "faculty development",
	},
	domain.RoleAdmin: {
		"admin", "administration", "registrar", "record office", "billing", "tuition",
		"enrollment", "admission", "finance", "accounting", "human resources", "clearance",
		"department of finance", "office of registrar", "scholarship", "support office",
		"it support", "payroll", "official notice", "document verification",
		"university office", "certificates", "official transcript",
	},
	domain.RoleIndustry: {
		"company", "corporate", "recruiter", "recruitment", "hiring", "headhunter", "career",
		"internship", "job", "vacancy", "opening", "business", "partner", "collaboration",
		"industry", "enterprise", "sponsor", "startup", "ceo", "cto", "hr manager",
		"engineering team", "offer letter", "job description", "role requirement",
		"portfolio", "application process", "networking", "linkedin",
	},
	domain.RoleExternalAcademic: {
		"research collaboration", "external examiner", "academic partner", "joint research",
		"visiting scholar", "academic conference", "research paper", "workshop", "seminar",
		"symposium", "faculty exchange", "guest lecture", "academic invitation",
		"collaborative research", "journal editor", "scientific committee",
		"call for participation",
	},
	domain.RoleGovernmentOrg: {
		"government", "ministry", "ngo", "non-profit", "foundation", "agency", "council",
		"authority", "public sector", "federal", "provincial", "municipal", "secretariat",
		"tender", "procurement", "compliance", "regulation", "grant", "funding", "initiative",
	},
	domain.RoleGeneralExternal: {
		"dear sir", "dear madam", "to whom it may concern", "greetings", "inquiry",
		"feedback", "suggestion", "information request", "newsletter", "customer support",
		"best wishes", "appreciate",
	},
}

// senderOverrides match substrings of the sender address or display name.
// Sender identity is a stronger signal than body content, so these carry
// the largest weight.
var senderOverrides = map[domain.Role][]string{
	domain.RoleAdmin:           {"registrar", "admissions", "bursar", "hr@", "finance@", "admin@", "payroll"},
	domain.RoleFaculty:         {"prof.", "professor", "dr.", "faculty"},
	domain.RoleStudent:         {"student"},
	domain.RoleIndustry:        {"recruit", "talent", "careers@", "jobs@", "hiring"},
	domain.RoleGovernmentOrg:   {".gov", "ministry"},
	domain.RoleGeneralExternal: {"noreply", "no-reply", "info@", "contact@", "help@", "support@"},
}

// domainHints are weak signals from the sender's mail domain.
var domainHints = map[domain.Role][]string{
	domain.RoleStudent:          {"@student.", ".edu", ".campus"},
	domain.RoleFaculty:          {"@faculty.", "@university.", ".edu", ".ac."},
	domain.RoleAdmin:            {"@admin.", "@registrar.", "@office.", "@hr.", "@finance.", "@admissions."},
	domain.RoleIndustry:         {"@company.", "@recruit", "@business.", "@enterprise.", "@startup."},
	domain.RoleExternalAcademic: {".edu", ".ac.", ".research", "@journal."},
	domain.RoleGovernmentOrg:    {".gov", ".org", ".ngo", ".foundation"},
	domain.RoleGeneralExternal:  {"@gmail.", "@yahoo.", "@outlook.", "@hotmail."},
}

var importanceKeywords = map[domain.Importance][]string{
	domain.ImportanceHigh: {
		"urgent", "asap", "immediate", "critical", "emergency", "deadline",
		"time sensitive", "respond soon", "action required", "response needed",
		"final reminder", "within 24 hours", "by end of day", "meeting request",
		"schedule confirmation", "interview", "contract", "payment due",
		"approval needed", "review required", "final notice", "requires your attention",
		"submission deadline",
	},
	domain.ImportanceMedium: {
		"follow up", "reminder", "update", "notification", "proposal",
		"request", "invitation", "appointment", "discussion", "reschedule",
		"progress report", "clarification", "question", "status update",
		"coordination", "weekly report", "monthly report", "planning",
		"documentation", "meeting minutes",
	},
	domain.ImportanceLow: {
		"newsletter", "announcement", "promotion", "advertisement", "marketing",
		"survey", "automated message", "no reply", "auto response", "digest",
		"blog post", "weekly update", "event invite", "holiday greetings",
		"subscription", "unsubscribe", "course announcement", "workshop notice",
	},
}

// urgencyPattern boosts High on explicit urgency tokens regardless of the
// keyword tables.
var urgencyPattern = regexp.MustCompile(`(?i)\b(asap|urgent|deadline|today|immediately|within 24 hours)\b`)

// =============================================================================
// Classifier
// =============================================================================

// Classifier scores sender role and message importance from keyword rules.
// Pure and deterministic: no state, no I/O, never fails.
type Classifier struct {
	weights Weights
}

// New creates a classifier with the default weights.
func New() *Classifier {
	return NewWithWeights(DefaultWeights())
}

// NewWithWeights creates a classifier with custom scoring constants.
func NewWithWeights(w Weights) *Classifier {
	if w.Divisor == 0 {
		w.Divisor = DefaultWeights().Divisor
	}
	return &Classifier{weights: w}
}

// Classify scores one message. Absent inputs are treated as empty strings
// and yield the default classification.
func (c *Classifier) Classify(sender, subject, body string) domain.Classification {
	text := strings.ToLower("from: " + sender + "\nsubject: " + subject + "\nbody: " + body)
	senderLower := strings.ToLower(sender)

	role, roleConf := c.classifyRole(text, senderLower)
	importance, impConf := c.classifyImportance(text)

	return domain.Classification{
		Role:                 role,
		RoleConfidence:       round3(roleConf),
		Importance:           importance,
		ImportanceConfidence: round3(impConf),
	}
}

func (c *Classifier) classifyRole(text, sender string) (domain.Role, float64) {
	scores := make(map[domain.Role]float64, len(domain.RolePriority))

	for role, keywords := range roleKeywords {
		for _, kw := range keywords {
			if strings.Contains(text, kw) {
				scores[role] += c.weights.Keyword
			}
		}
	}
	for role, subs := range senderOverrides {
		for _, sub := range subs {
			if sender != "" && strings.Contains(sender, sub) {
				scores[role] += c.weights.SenderOverride
			}
		}
	}
	for role, hints := range domainHints {
		for _, hint := range hints {
			if sender != "" && strings.Contains(sender, hint) {
				scores[role] += c.weights.DomainHint
			}
		}
	}

	// Walk the priority order; only a strictly greater score displaces the
	// current best, so ties resolve to the earlier role.
	best := domain.RoleGeneralExternal
	var bestScore float64
	for _, role := range domain.RolePriority {
		if scores[role] > bestScore {
			best = role
			bestScore = scores[role]
		}
	}

	if bestScore == 0 {
		return domain.RoleGeneralExternal, c.weights.DefaultConfidence
	}
	return best, c.confidence(bestScore)
}

func (c *Classifier) classifyImportance(text string) (domain.Importance, float64) {
	scores := make(map[domain.Importance]float64, 3)

	for level, keywords := range importanceKeywords {
		for _, kw := range keywords {
			if strings.Contains(text, kw) {
				scores[level] += c.weights.Keyword
			}
		}
	}
	if urgencyPattern.MatchString(text) {
		scores[domain.ImportanceHigh] += c.weights.UrgencyBoost
	}

	// High wins ties over Medium, Medium over Low.
	order := []domain.Importance{domain.ImportanceHigh, domain.ImportanceMedium, domain.ImportanceLow}
	best := domain.ImportanceMedium
	var bestScore float64
	for _, level := range order {
		if scores[level] > bestScore {
			best = level
			bestScore = scores[level]
		}
	}

	if bestScore == 0 {
		return domain.ImportanceMedium, c.weights.DefaultConfidence
	}
	return best, c.confidence(bestScore)
}

// confidence maps a raw score into (0, MaxConfidence].
func (c *Classifier) confidence(score float64) float64 {
	conf := score / c.weights.Divisor
	if conf > c.weights.MaxConfidence {
		conf = c.weights.MaxConfidence
	}
	return conf
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
