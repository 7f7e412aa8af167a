// Package classify maps free-text messages to structured record drafts.
//
// Classification is keyword and regular-expression based. Rules are evaluated
// in the order of Rules and the first match wins, so a message never becomes
// more than one record.
package classify

import (
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/onelife/onelife/internal/record"
)

// Expense categories.
const (
	CategoryFood          = "Food & Dining"
	CategoryTransport     = "Transportation"
	CategoryShopping      = "Shopping"
	CategoryEntertainment = "Entertainment"
	CategoryBills         = "Bills & Utilities"
	CategoryOther         = "Other"
)

// Moods.
const (
	MoodHappy    = "Happy"
	MoodSad      = "Sad"
	MoodTired    = "Tired"
	MoodStressed = "Stressed"
	MoodCalm     = "Calm"
	MoodNeutral  = "Neutral"
)

// keywordClass is one entry of an ordered keyword lookup.
type keywordClass struct {
	Name    string
	Pattern *regexp.Regexp
}

var categoryTable = []keywordClass{
	{CategoryFood, regexp.MustCompile(`(food|lunch|dinner|breakfast|restaurant|cafe|coffee|eat)`)},
	{CategoryTransport, regexp.MustCompile(`(transport|uber|taxi|gas|fuel|parking)`)},
	{CategoryShopping, regexp.MustCompile(`(shopping|store|buy|purchase|amazon)`)},
	{CategoryEntertainment, regexp.MustCompile(`(entertainment|movie|game|netflix|spotify)`)},
	{CategoryBills, regexp.MustCompile(`(bill|utility|phone|internet|electricity)`)},
}

var moodTable = []keywordClass{
	{MoodHappy, regexp.MustCompile(`(happy|great|good|excited|amazing|wonderful)`)},
	{MoodSad, regexp.MustCompile(`(sad|down|depressed|upset|disappointed)`)},
	{MoodTired, regexp.MustCompile(`(tired|exhausted|sleepy|drained)`)},
	{MoodStressed, regexp.MustCompile(`(stressed|anxious|worried|nervous)`)},
	{MoodCalm, regexp.MustCompile(`(calm|peaceful|relaxed|content)`)},
}

// Categories lists every value DetectCategory can return.
var Categories = []string{CategoryFood, CategoryTransport, CategoryShopping, CategoryEntertainment, CategoryBills, CategoryOther}

// Moods lists every value DetectMood can return.
var Moods = []string{MoodHappy, MoodSad, MoodTired, MoodStressed, MoodCalm, MoodNeutral}

// DetectCategory returns the expense category for message, or CategoryOther.
func DetectCategory(message string) string {
	return lookup(categoryTable, message, CategoryOther)
}

// DetectMood returns the mood expressed by message, or MoodNeutral.
func DetectMood(message string) string {
	return lookup(moodTable, message, MoodNeutral)
}

func lookup(table []keywordClass, message, fallback string) string {
	lower := strings.ToLower(message)
	for _, c := range table {
		if c.Pattern.MatchString(lower) {
			return c.Name
		}
	}
	return fallback
}

var (
	expensePattern = regexp.MustCompile(`(spent|bought|paid|cost|expense).*\$?(\d+)`)
	todoPattern    = regexp.MustCompile(`(remind|todo|task|schedule|appointment).*(tomorrow|today|next week|monday|tuesday|wednesday|thursday|friday|saturday|sunday)`)
	moodPattern    = regexp.MustCompile(`(feel|mood|feeling|happy|sad|excited|tired|stressed)`)
	healthPattern  = regexp.MustCompile(`(walked|steps|exercise|workout|drank|water|slept|hours)`)

	dollarAmountPattern = regexp.MustCompile(`\$(\d+(?:\.\d+)?)`)
	bareAmountPattern   = regexp.MustCompile(`(\d+(?:\.\d+)?)`)
)

// Rule is one classification rule. Match receives the lower-cased message;
// Build receives the original message.
type Rule struct {
	Name  string
	Type  record.Type
	Match func(lower string) bool
	Build func(message string) record.Body
}

// Rules is the ordered classification table. Earlier rules take priority.
var Rules = []Rule{
	{
		Name:  "expense",
		Type:  record.TypeExpense,
		Match: expensePattern.MatchString,
		Build: func(message string) record.Body {
			e := record.Expense{Category: DetectCategory(message)}
			if amount, ok := ParseAmount(message); ok {
				e.Amount = record.NewAmount(amount)
			}
			return e
		},
	},
	{
		Name:  "todo",
		Type:  record.TypeTodo,
		Match: todoPattern.MatchString,
		Build: func(string) record.Body { return record.Todo{Completed: false} },
	},
	{
		Name:  "mood",
		Type:  record.TypeMood,
		Match: moodPattern.MatchString,
		Build: func(message string) record.Body { return record.Mood{Mood: DetectMood(message)} },
	},
	{
		Name:  "health",
		Type:  record.TypeHealth,
		Match: healthPattern.MatchString,
		Build: func(string) record.Body { return record.Health{} },
	},
}

// ParseAmount returns the first dollar-prefixed number in message, falling
// back to the first bare number. ok is false when message has no number.
func ParseAmount(message string) (decimal.Decimal, bool) {
	if m := dollarAmountPattern.FindStringSubmatch(message); m != nil {
		if d, err := decimal.NewFromString(m[1]); err == nil {
			return d, true
		}
	}
	if m := bareAmountPattern.FindStringSubmatch(message); m != nil {
		if d, err := decimal.NewFromString(m[1]); err == nil {
			return d, true
		}
	}
	return decimal.Zero, false
}

// Match returns the first rule matching message.
func Match(message string) (Rule, bool) {
	lower := strings.ToLower(message)
	for _, r := range Rules {
		if r.Match(lower) {
			return r, true
		}
	}
	return Rule{}, false
}

// Classify returns the draft record extracted from message, dated now.
// ok is false when no rule matches; that is a normal outcome, not an error.
func Classify(message string, now time.Time) (record.Draft, bool) {
	rule, ok := Match(message)
	if !ok {
		return record.Draft{}, false
	}
	return record.Draft{
		Date:        now,
		Description: message,
		Body:        rule.Build(message),
	}, true
}
