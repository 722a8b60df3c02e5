package training

import (
	"math"

	"github.com/gymstack/presenced/internal/message"
)

// Level labels derived from completion progress.
const (
	LevelBeginner     = "Beginner"
	LevelIntermediate = "Intermediate"
	LevelExpert       = "Expert"
)

// Record status values.
const (
	StatusCompleted  = "completed"
	StatusInProgress = "in_progress"
)

// Summarize derives a training level from a user's module records.
// Progress is the completed/total ratio rounded to the nearest integer
// percent. Zero records means progress 0 and Beginner.
func Summarize(records []Record) message.TrainingLevel {
	total := len(records)
	if total == 0 {
		return message.TrainingLevel{Level: LevelBeginner, Progress: 0}
	}

	completed := 0
	for _, r := range records {
		if r.Status == StatusCompleted {
			completed++
		}
	}

	progress := int(math.Round(float64(completed) / float64(total) * 100))

	level := LevelBeginner
	switch {
	case progress >= 80:
		level = LevelExpert
	case progress >= 50:
		level = LevelIntermediate
	}

	return message.TrainingLevel{Level: level, Progress: progress}
}
