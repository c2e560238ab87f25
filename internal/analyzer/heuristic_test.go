package analyzer

import (
	"context"
	"math"
	"reflect"
	"testing"

	"github.com/solarmail/solarsync/pkg/models"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestHeuristicUrgentNegative(t *testing.T) {
	h := NewHeuristic()

	meta := h.Analyze(context.Background(), "URGENT: prod down", "critical issue")

	if meta.Priority != models.PriorityHigh {
		t.Errorf("priority = %q, want high", meta.Priority)
	}
	// "urgent" and "critical" both hit: 0.7 + 2*0.1
	if !almostEqual(meta.PriorityScore, 0.9) {
		t.Errorf("priority score = %v, want 0.9", meta.PriorityScore)
	}
	if meta.Sentiment != models.SentimentNegative {
		t.Errorf("sentiment = %q, want negative", meta.Sentiment)
	}
	// "urgent", "critical" and "issue" hit: 0.5 - 3*0.1
	if !almostEqual(meta.SentimentScore, 0.2) {
		t.Errorf("sentiment score = %v, want 0.2", meta.SentimentScore)
	}
	if meta.Model != DefaultHeuristicModelID {
		t.Errorf("model = %q, want %q", meta.Model, DefaultHeuristicModelID)
	}
}

func TestHeuristicPriority(t *testing.T) {
	tests := []struct {
		name      string
		subject   string
		body      string
		want      string
		wantScore float64
	}{
		{
			name:      "single high keyword",
			subject:   "deadline tomorrow",
			want:      models.PriorityHigh,
			wantScore: 0.8,
		},
		{
			name:      "high score capped at 1.0",
			subject:   "urgent critical asap emergency",
			body:      "deadline immediately",
			want:      models.PriorityHigh,
			wantScore: 1.0,
		},
		{
			name:      "medium keyword",
			subject:   "please review the draft",
			want:      models.PriorityMedium,
			wantScore: 0.5,
		},
		{
			name:      "no keywords",
			subject:   "lunch on friday?",
			want:      models.PriorityLow,
			wantScore: 0.3,
		},
	}

	h := NewHeuristic()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			meta := h.Analyze(context.Background(), tt.subject, tt.body)
			if meta.Priority != tt.want {
				t.Errorf("priority = %q, want %q", meta.Priority, tt.want)
			}
			if !almostEqual(meta.PriorityScore, tt.wantScore) {
				t.Errorf("score = %v, want %v", meta.PriorityScore, tt.wantScore)
			}
		})
	}
}

func TestHeuristicCategoryTieBreak(t *testing.T) {
	h := NewHeuristic()

	// Two Work hits ("meeting", "project") against one Docs hit ("invoice")
	meta := h.Analyze(context.Background(), "meeting about the project", "the invoice can wait")

	if meta.Category != "Work" {
		t.Errorf("category = %q, want Work", meta.Category)
	}
	if !almostEqual(meta.CategoryConfidence, 0.80) {
		t.Errorf("confidence = %v, want 0.80", meta.CategoryConfidence)
	}
}

func TestHeuristicCategoryNoHits(t *testing.T) {
	h := NewHeuristic()

	meta := h.Analyze(context.Background(), "zzz", "qqq")

	if meta.Category != models.CategoryGeneral {
		t.Errorf("category = %q, want General", meta.Category)
	}
	if !almostEqual(meta.CategoryConfidence, 0.5) {
		t.Errorf("confidence = %v, want 0.5", meta.CategoryConfidence)
	}
}

func TestHeuristicSentiment(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		want      string
		wantScore float64
	}{
		{"positive wins", "thanks, great work, excellent job", models.SentimentPositive, 0.8},
		{"tie is neutral", "thanks for reporting the problem", models.SentimentNeutral, 0.5},
		{"no hits is neutral", "see you at noon", models.SentimentNeutral, 0.5},
		{"negative floor at zero", "problem issue error failed wrong bad terrible", models.SentimentNegative, 0.0},
	}

	h := NewHeuristic()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			meta := h.Analyze(context.Background(), tt.text, "")
			if meta.Sentiment != tt.want {
				t.Errorf("sentiment = %q, want %q", meta.Sentiment, tt.want)
			}
			if !almostEqual(meta.SentimentScore, tt.wantScore) {
				t.Errorf("score = %v, want %v", meta.SentimentScore, tt.wantScore)
			}
		})
	}
}

func TestHeuristicEntities(t *testing.T) {
	h := NewHeuristic()

	body := "John Smith <john.smith@example.com> shared https://example.com/doc " +
		"due 2025-10-25 or 25.10.2025, cc bob@corp.io"
	meta := h.Analyze(context.Background(), "hello", body)

	wantEmails := []string{"john.smith@example.com", "bob@corp.io"}
	if !reflect.DeepEqual(meta.Entities.Emails, wantEmails) {
		t.Errorf("emails = %v, want %v", meta.Entities.Emails, wantEmails)
	}
	wantDates := []string{"2025-10-25", "25.10.2025"}
	if !reflect.DeepEqual(meta.Entities.Dates, wantDates) {
		t.Errorf("dates = %v, want %v", meta.Entities.Dates, wantDates)
	}
	if len(meta.Entities.URLs) != 1 || meta.Entities.URLs[0] != "https://example.com/doc" {
		t.Errorf("urls = %v, want the shared link", meta.Entities.URLs)
	}
	if len(meta.Entities.Persons) != 1 || meta.Entities.Persons[0] != "John Smith" {
		t.Errorf("persons = %v, want John Smith", meta.Entities.Persons)
	}
}

func TestHeuristicPersonStopwords(t *testing.T) {
	h := NewHeuristic()

	meta := h.Analyze(context.Background(), "", "Best Regards from Anna Petrova")

	if len(meta.Entities.Persons) != 1 || meta.Entities.Persons[0] != "Anna Petrova" {
		t.Errorf("persons = %v, want only Anna Petrova", meta.Entities.Persons)
	}
}

func TestHeuristicKeywordsAndTopics(t *testing.T) {
	h := NewHeuristic()

	meta := h.Analyze(context.Background(), "",
		"deploy deploy deploy sprint sprint code branch and the with from")

	// Ranked by frequency, ties by first occurrence; short tokens and
	// stopwords excluded
	want := []string{"deploy", "sprint", "code", "branch"}
	if !reflect.DeepEqual(meta.Keywords.Keywords, want) {
		t.Errorf("keywords = %v, want %v", meta.Keywords.Keywords, want)
	}
	// "deploy"/"code"/"branch" map to development, "sprint" to management
	wantTopics := []string{"development", "management"}
	if !reflect.DeepEqual(meta.Keywords.Topics, wantTopics) {
		t.Errorf("topics = %v, want %v", meta.Keywords.Topics, wantTopics)
	}
}

func TestHeuristicBatchOrder(t *testing.T) {
	h := NewHeuristic()

	results := h.AnalyzeBatch(context.Background(), []Input{
		{Subject: "urgent deadline"},
		{Subject: "lunch?"},
		{Subject: "please review"},
	})

	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	wantPriorities := []string{models.PriorityHigh, models.PriorityLow, models.PriorityMedium}
	for i, want := range wantPriorities {
		if results[i].Priority != want {
			t.Errorf("results[%d].Priority = %q, want %q", i, results[i].Priority, want)
		}
	}
}

func TestHeuristicInfo(t *testing.T) {
	info := NewHeuristic().Info()

	if !info.Ready || info.Kind != KindHeuristic {
		t.Errorf("info = %+v, want ready heuristic", info)
	}
	if !info.SentimentAvailable || !info.CategoryAvailable {
		t.Errorf("info = %+v, want both capabilities available", info)
	}
}
