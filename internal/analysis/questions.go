package analysis

import "github.com/hirelens/hirelens/internal/domain"

// Static question bank used when live generation is unavailable.
var questionBank = map[domain.InterviewType][]domain.Question{
	domain.TypeTechnical: {
		{
			Question:  "Walk me through a recent technical problem you solved end to end.",
			Intent:    "Assess problem decomposition and ownership",
			FollowUps: []string{"What would you do differently today?"},
			KeyPoints: []string{"clear problem framing", "trade-off reasoning"},
		},
		{
			Question:  "How do you decide when a piece of code needs to be refactored?",
			Intent:    "Assess engineering judgment and maintainability awareness",
			KeyPoints: []string{"concrete signals", "cost/benefit reasoning"},
		},
		{
			Question:  "Describe a system you designed and the scaling limits you anticipated.",
			Intent:    "Assess architectural thinking",
			FollowUps: []string{"Which limit did you hit first in practice?"},
			KeyPoints: []string{"bottleneck identification", "capacity estimates"},
		},
	},
	domain.TypeHR: {
		{
			Question:  "What attracted you to this role and what do you want from your next position?",
			Intent:    "Assess career alignment and motivation",
			KeyPoints: []string{"specific reasons", "realistic expectations"},
		},
		{
			Question:  "Tell me about a time you received difficult feedback. How did you respond?",
			Intent:    "Assess coachability and self-awareness",
			KeyPoints: []string{"concrete example", "behavior change"},
		},
		{
			Question:  "How do you prioritize when everything feels urgent?",
			Intent:    "Assess working style under pressure",
			KeyPoints: []string{"prioritization framework", "communication with stakeholders"},
		},
	},
	domain.TypeBehavioral: {
		{
			Question:  "Describe a conflict with a teammate and how you resolved it.",
			Intent:    "Assess collaboration and conflict handling",
			KeyPoints: []string{"ownership of own part", "durable resolution"},
		},
		{
			Question:  "Tell me about a decision you made with incomplete information.",
			Intent:    "Assess decision-making process",
			FollowUps: []string{"How did you validate it afterwards?"},
			KeyPoints: []string{"risk assessment", "follow-through"},
		},
		{
			Question:  "Give an example of a time you led without formal authority.",
			Intent:    "Assess leadership qualities",
			KeyPoints: []string{"influence tactics", "outcome"},
		},
	},
}

// FallbackQuestions returns up to n questions from the static bank for the
// given interview type. Unknown types fall back to behavioral.
func FallbackQuestions(ivType domain.InterviewType, n int) []domain.Question {
	bank, ok := questionBank[ivType]
	if !ok {
		bank = questionBank[domain.TypeBehavioral]
	}
	if n > len(bank) {
		n = len(bank)
	}
	out := make([]domain.Question, n)
	copy(out, bank[:n])
	return out
}
