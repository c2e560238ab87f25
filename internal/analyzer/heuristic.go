package analyzer

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/solarmail/solarsync/pkg/models"
)

// DefaultHeuristicModelID identifies the keyword-table analyzer.
const DefaultHeuristicModelID = "dashka-solar-mini"

// Keyword tables are bilingual (English/Russian) and drive the scoring
// formulas below. The score constants are deliberate product values; changing
// them changes classification behavior for every stored mailbox.
var priorityKeywords = map[string][]string{
	"high": {
		"urgent", "срочно", "важно", "critical", "asap",
		"deadline", "дедлайн", "emergency", "immediately",
		"требуется немедленно", "прошу срочно",
	},
	"medium": {
		"важный", "нужно", "требуется", "необходимо",
		"please review", "action required", "обратите внимание",
	},
}

type categoryTable struct {
	name     string
	keywords []string
}

// Declaration order breaks ties: the first table with the maximum hit count
// wins.
var categoryTables = []categoryTable{
	{"Work", []string{
		"meeting", "встреча", "project", "проект", "task", "задача",
		"deadline", "дедлайн", "report", "отчет", "presentation",
		"презентация", "conference", "конференция", "sprint",
		"review", "ревью", "merge", "deploy", "code", "код",
	}},
	{"Docs", []string{
		"invoice", "счет", "contract", "договор", "agreement",
		"document", "документ", "pdf", "file", "файл",
		"attachment", "вложение", "scan", "скан",
	}},
	{"Tasks", []string{
		"todo", "делать", "task", "задание", "action item",
		"assign", "назначено", "complete", "завершить",
		"issue", "тикет", "bug", "баг", "fix", "исправить",
	}},
	{"People", []string{
		"birthday", "день рождения", "congratulations", "поздравляем",
		"welcome", "добро пожаловать", "hello", "привет",
		"thanks", "спасибо", "thank you", "regards",
	}},
	{"News", []string{
		"newsletter", "новости", "update", "обновление",
		"announcement", "объявление", "release", "релиз",
		"version", "версия", "changelog",
	}},
	{"Spam", []string{
		"unsubscribe", "отписаться", "discount", "скидка",
		"offer", "предложение", "win", "выиграть", "prize",
		"click here", "нажмите здесь", "free", "бесплатно",
	}},
}

var sentimentKeywords = map[string][]string{
	"positive": {
		"thanks", "спасибо", "great", "отлично", "excellent",
		"прекрасно", "good", "хорошо", "perfect", "идеально",
		"love", "нравится", "amazing", "потрясающе", "wonderful",
		"appreciate", "ценю", "congratulations", "поздравляю",
	},
	"negative": {
		"problem", "проблема", "issue", "ошибка", "error",
		"failed", "провалено", "wrong", "неправильно", "bad",
		"плохо", "terrible", "ужасно", "disappointed", "разочарован",
		"complaint", "жалоба", "urgent", "срочно", "critical",
	},
}

var keywordStopWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "but": {}, "in": {},
	"on": {}, "at": {}, "to": {}, "for": {}, "of": {}, "with": {}, "by": {},
	"from": {}, "is": {}, "was": {}, "are": {}, "were": {}, "been": {},
	"в": {}, "и": {}, "на": {}, "с": {}, "по": {}, "для": {}, "от": {},
	"к": {}, "из": {}, "это": {}, "быть": {},
}

var personStopWords = map[string]struct{}{
	"Subject": {}, "From": {}, "To": {}, "Date": {},
	"Best Regards": {}, "Thank You": {},
}

type topicTable struct {
	name     string
	keywords []string
}

var topicTables = []topicTable{
	{"development", []string{"code", "develop", "git", "branch", "deploy", "test"}},
	{"разработка", []string{"код", "разработка", "git", "ветка", "деплой", "тест"}},
	{"management", []string{"project", "meeting", "deadline", "plan", "sprint"}},
	{"менеджмент", []string{"проект", "встреча", "дедлайн", "план", "спринт"}},
	{"finance", []string{"invoice", "payment", "budget", "cost", "price"}},
	{"финансы", []string{"счет", "оплата", "бюджет", "стоимость", "цена"}},
}

var (
	emailPattern  = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)
	datePatterns  = []*regexp.Regexp{
		regexp.MustCompile(`\d{4}-\d{2}-\d{2}`),     // 2025-10-25
		regexp.MustCompile(`\d{2}\.\d{2}\.\d{4}`),   // 25.10.2025
		regexp.MustCompile(`\d{1,2}/\d{1,2}/\d{4}`), // 10/25/2025
	}
	urlPattern    = regexp.MustCompile(`https?://[^\s<>"{}|\\^` + "`" + `\[\]]+`)
	personPattern = regexp.MustCompile(`[A-ZА-ЯЁ][a-zа-яё]+\s+[A-ZА-ЯЁ][a-zа-яё]+`)
	wordPattern   = regexp.MustCompile(`[\pL\pN_]+`)
)

const (
	maxEntitiesPerKind = 10
	maxPersons         = 5
	maxKeywords        = 10
	maxTopics          = 3
)

// Heuristic scores messages with fixed keyword-hit tables. It requires no
// external services and is always ready.
type Heuristic struct {
	modelID string
}

// NewHeuristic creates the keyword-table analyzer.
func NewHeuristic() *Heuristic {
	return &Heuristic{modelID: DefaultHeuristicModelID}
}

// Info implements Analyzer.
func (h *Heuristic) Info() Info {
	return Info{
		Ready:              true,
		Kind:               KindHeuristic,
		ModelID:            h.modelID,
		SentimentAvailable: true,
		CategoryAvailable:  true,
	}
}

// Analyze implements Analyzer.
func (h *Heuristic) Analyze(ctx context.Context, subject, body string) *models.EmailMeta {
	start := time.Now()
	fullText := strings.ToLower(subject + " " + body)

	priority, priorityScore := scorePriority(fullText)
	category, categoryConfidence := scoreCategory(fullText)
	sentiment, sentimentScore := scoreSentiment(fullText)

	return &models.EmailMeta{
		Sentiment:          sentiment,
		SentimentScore:     sentimentScore,
		Priority:           priority,
		PriorityScore:      priorityScore,
		Category:           category,
		CategoryConfidence: categoryConfidence,
		Entities:           extractEntities(subject + " " + body),
		Keywords:           extractKeywords(fullText),
		AnalyzedAt:         time.Now(),
		Model:              h.modelID,
		ProcessingTimeMs:   time.Since(start).Milliseconds(),
	}
}

// AnalyzeBatch implements Analyzer.
func (h *Heuristic) AnalyzeBatch(ctx context.Context, msgs []Input) []*models.EmailMeta {
	out := make([]*models.EmailMeta, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, h.Analyze(ctx, m.Subject, m.Body))
	}
	return out
}

func countHits(text string, keywords []string) int {
	hits := 0
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			hits++
		}
	}
	return hits
}

// scorePriority: any high keyword wins with score 0.7+0.1/hit capped at 1.0;
// any medium keyword scores 0.4+0.1/hit capped at 0.7; otherwise low at 0.3.
func scorePriority(text string) (string, float64) {
	highHits := countHits(text, priorityKeywords["high"])
	mediumHits := countHits(text, priorityKeywords["medium"])

	switch {
	case highHits > 0:
		return models.PriorityHigh, min(0.7+float64(highHits)*0.1, 1.0)
	case mediumHits > 0:
		return models.PriorityMedium, min(0.4+float64(mediumHits)*0.1, 0.7)
	default:
		return models.PriorityLow, 0.3
	}
}

// scoreCategory picks the table with the most hits; confidence is
// 0.5+0.15/hit capped at 1.0. No hits at all yields General at 0.5.
func scoreCategory(text string) (string, float64) {
	best := ""
	bestHits := 0
	for _, table := range categoryTables {
		hits := countHits(text, table.keywords)
		if hits > bestHits {
			best = table.name
			bestHits = hits
		}
	}
	if bestHits == 0 {
		return models.CategoryGeneral, 0.5
	}
	return best, min(0.5+float64(bestHits)*0.15, 1.0)
}

// scoreSentiment compares positive vs negative hit counts. A tie, including
// zero hits on both sides, is neutral at 0.5.
func scoreSentiment(text string) (string, float64) {
	positive := countHits(text, sentimentKeywords["positive"])
	negative := countHits(text, sentimentKeywords["negative"])

	switch {
	case positive > negative:
		return models.SentimentPositive, min(0.5+float64(positive)*0.1, 1.0)
	case negative > positive:
		return models.SentimentNegative, max(0.5-float64(negative)*0.1, 0.0)
	default:
		return models.SentimentNeutral, 0.5
	}
}

func dedupe(items []string, limit int) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
		if len(out) == limit {
			break
		}
	}
	return out
}

// extractEntities pulls email addresses, dates, URLs and person names out of
// the raw (not lowercased) text. Person names use a capitalized-bigram
// heuristic filtered through a small stopword list.
func extractEntities(text string) models.Entities {
	entities := models.Entities{
		Emails: dedupe(emailPattern.FindAllString(text, -1), maxEntitiesPerKind),
		URLs:   dedupe(urlPattern.FindAllString(text, -1), maxEntitiesPerKind),
	}

	var dates []string
	for _, p := range datePatterns {
		dates = append(dates, p.FindAllString(text, -1)...)
	}
	entities.Dates = dedupe(dates, maxEntitiesPerKind)

	var persons []string
	for _, name := range personPattern.FindAllString(text, -1) {
		if _, ok := personStopWords[name]; ok {
			continue
		}
		persons = append(persons, name)
	}
	entities.Persons = dedupe(persons, maxPersons)

	if entities.Emails == nil {
		entities.Emails = []string{}
	}
	if entities.Dates == nil {
		entities.Dates = []string{}
	}
	if entities.URLs == nil {
		entities.URLs = []string{}
	}
	if entities.Persons == nil {
		entities.Persons = []string{}
	}
	return entities
}

// extractKeywords returns the 10 most frequent tokens longer than 3 runes
// that are not stopwords, ties broken by first occurrence, plus up to 3
// topics inferred from a fixed taxonomy.
func extractKeywords(text string) models.Keywords {
	type wordStat struct {
		word  string
		count int
		first int
	}

	stats := make(map[string]*wordStat)
	order := 0
	for _, word := range wordPattern.FindAllString(strings.ToLower(text), -1) {
		if len([]rune(word)) <= 3 {
			continue
		}
		if _, ok := keywordStopWords[word]; ok {
			continue
		}
		if s, ok := stats[word]; ok {
			s.count++
		} else {
			stats[word] = &wordStat{word: word, count: 1, first: order}
		}
		order++
	}

	ranked := make([]*wordStat, 0, len(stats))
	for _, s := range stats {
		ranked = append(ranked, s)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].count != ranked[j].count {
			return ranked[i].count > ranked[j].count
		}
		return ranked[i].first < ranked[j].first
	})

	keywords := make([]string, 0, maxKeywords)
	for _, s := range ranked {
		keywords = append(keywords, s.word)
		if len(keywords) == maxKeywords {
			break
		}
	}

	return models.Keywords{Keywords: keywords, Topics: inferTopics(keywords)}
}

func inferTopics(keywords []string) []string {
	present := make(map[string]struct{}, len(keywords))
	for _, kw := range keywords {
		present[kw] = struct{}{}
	}

	topics := []string{}
	for _, table := range topicTables {
		for _, kw := range table.keywords {
			if _, ok := present[kw]; ok {
				topics = append(topics, table.name)
				break
			}
		}
		if len(topics) == maxTopics {
			break
		}
	}
	return topics
}
