package classification

import (
	"testing"

	"inbox_worker/core/domain"
)

func TestClassifyDefaults(t *testing.T) {
	c := New()

	cls := c.Classify("a@x.com", "hello", "hi")
	if cls.Role != domain.RoleGeneralExternal {
		t.Errorf("Role = %q, want General External", cls.Role)
	}
	if cls.RoleConfidence != 0.4 {
		t.Errorf("RoleConfidence = %v, want 0.4", cls.RoleConfidence)
	}
	if cls.Importance != domain.ImportanceMedium {
		t.Errorf("Importance = %q, want Medium", cls.Importance)
	}
	if cls.ImportanceConfidence != 0.4 {
		t.Errorf("ImportanceConfidence = %v, want 0.4", cls.ImportanceConfidence)
	}
}

func TestClassifyRole(t *testing.T) {
	c := New()

	tests := []struct {
		name     string
		sender   string
		subject  string
		body     string
		wantRole domain.Role
		wantConf float64
	}{
		{
			// "hr@" override (6) beats industry keyword+hint hits.
			name:     "sender override wins over body keywords",
			sender:   "hr@company.com",
			subject:  "greetings",
			body:     "hello",
			wantRole: domain.RoleAdmin,
			wantConf: 0.75,
		},
		{
			// Equal keyword scores resolve by priority order.
			name:     "tie resolves to earlier priority role",
			sender:   "",
			subject:  "",
			body:     "student and faculty",
			wantRole: domain.RoleFaculty,
			wantConf: 0.25,
		},
		{
			// Override (6) plus "job" keyword in sender text (2) caps out.
			name:     "industry recruiter address",
			sender:   "jobs@corp.com",
			subject:  "",
			body:     "dear sir, we have an inquiry",
			wantRole: domain.RoleIndustry,
			wantConf: 0.95,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cls := c.Classify(tt.sender, tt.subject, tt.body)
			if cls.Role != tt.wantRole {
				t.Errorf("Role = %q, want %q", cls.Role, tt.wantRole)
			}
			if cls.RoleConfidence != tt.wantConf {
				t.Errorf("RoleConfidence = %v, want %v", cls.RoleConfidence, tt.wantConf)
			}
		})
	}
}

func TestClassifyImportance(t *testing.T) {
	c := New()

	tests := []struct {
		name     string
		subject  string
		body     string
		wantImp  domain.Importance
		wantConf float64
	}{
		{
			// Three High keywords plus the urgency boost cap the score.
			name:     "urgent mail scores high with boost",
			subject:  "URGENT: need response",
			body:     "please respond asap before the deadline",
			wantImp:  domain.ImportanceHigh,
			wantConf: 0.95,
		},
		{
			name:     "plain question is medium",
			subject:  "quick question",
			body:     "about the room booking",
			wantImp:  domain.ImportanceMedium,
			wantConf: 0.25,
		},
		{
			name:     "bulk mail is low",
			subject:  "newsletter digest",
			body:     "click here to unsubscribe",
			wantImp:  domain.ImportanceLow,
			wantConf: 0.75,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cls := c.Classify("", tt.subject, tt.body)
			if cls.Importance != tt.wantImp {
				t.Errorf("Importance = %q, want %q", cls.Importance, tt.wantImp)
			}
			if cls.ImportanceConfidence != tt.wantConf {
				t.Errorf("ImportanceConfidence = %v, want %v", cls.ImportanceConfidence, tt.wantConf)
			}
		})
	}
}

func TestClassifyCustomWeights(t *testing.T) {
	// With sender overrides disabled, body keywords decide the role.
	weights := DefaultWeights()
	weights.SenderOverride = 0
	c := NewWithWeights(weights)

	cls := c.Classify("jobs@corp.com", "", "dear sir, we have an inquiry")
	if cls.Role != domain.RoleGeneralExternal {
		t.Errorf("Role = %q, want General External", cls.Role)
	}
	if cls.RoleConfidence != 0.5 {
		t.Errorf("RoleConfidence = %v, want 0.5", cls.RoleConfidence)
	}
}

func TestNewWithWeightsZeroDivisor(t *testing.T) {
	c := NewWithWeights(Weights{Keyword: 2, MaxConfidence: 0.95, DefaultConfidence: 0.4})

	// Divisor falls back to the default instead of dividing by zero.
	cls := c.Classify("", "", "student")
	if cls.Role != domain.RoleStudent {
		t.Errorf("Role = %q, want Student", cls.Role)
	}
	if cls.RoleConfidence != 0.25 {
		t.Errorf("RoleConfidence = %v, want 0.25", cls.RoleConfidence)
	}
}
