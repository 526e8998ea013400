// Package grouping splits a message sequence into display runs.
package grouping

import (
	"time"

	"github.com/capitalize-ai/study-collab/internal/model"
)

// DefaultGap is the pause after which a sender's messages start a new run.
const DefaultGap = 300 * time.Second

// GroupForDisplay splits messages into runs. A run breaks when the sender
// changes or when the gap to the previous message exceeds gap. A gap <= 0
// selects DefaultGap. Order is preserved and the input is not modified.
func GroupForDisplay(messages []model.Message, gap time.Duration) [][]model.Message {
	if gap <= 0 {
		gap = DefaultGap
	}
	groups := make([][]model.Message, 0)
	for i, m := range messages {
		if i == 0 || startsRun(messages[i-1], m, gap) {
			groups = append(groups, []model.Message{m})
			continue
		}
		last := len(groups) - 1
		groups[last] = append(groups[last], m)
	}
	return groups
}

func startsRun(prev, cur model.Message, gap time.Duration) bool {
	if prev.SenderID != cur.SenderID {
		return true
	}
	d := cur.Timestamp.Sub(prev.Timestamp)
	if d < 0 {
		d = -d
	}
	return d > gap
}
