package classify

import (
	"fmt"

	"github.com/onelife/onelife/internal/record"
)

// Confirmation returns the acknowledgement shown after a record is saved.
func Confirmation(body record.Body) string {
	switch b := body.(type) {
	case record.Expense:
		amount := "?"
		if b.Amount.Valid {
			amount = b.Amount.Decimal.String()
		}
		return fmt.Sprintf("Expense recorded: $%s (%s)\n\nAdded to your monthly report.", amount, b.Category)
	case record.Todo:
		return "Task added to your calendar. I'll remind you when it's time."
	case record.Mood:
		return fmt.Sprintf("Mood logged: %s\n\nI've recorded this in your life journal.", b.Mood)
	case record.Health:
		return "Health data recorded. Keep tracking your progress!"
	case record.Note:
		return "Note saved."
	}
	return ""
}

// Fallback is the reply for a message that produced no record and no
// assistant response.
func Fallback(message string) string {
	return fmt.Sprintf("I understand: %q\n\nI can help you record expenses, schedule tasks, log moods, track health, and more. Just tell me what you did or what you need!", message)
}
