package publish

import (
	"context"
	"strings"
	"sync"

	"github.com/chihacknight/chn-ghost-buses/model"
)

// Subject prefix for comparison results.
const SubjectPrefix = "ghostbus.comparison"

// A route/day type comparison for one feed period, or for the
// combined history when Feed is nil.
type ComparisonMessage struct {
	Feed *FeedPeriod                `json:"feed,omitempty"`
	Rows []model.DayTypeComparison `json:"rows"`
}

type FeedPeriod struct {
	ScheduleVersion string `json:"scheduleVersion"`
	StartDate       string `json:"startDate"`
	EndDate         string `json:"endDate"`
}

func NewFeedPeriod(feed model.FeedDescriptor) *FeedPeriod {
	return &FeedPeriod{
		ScheduleVersion: feed.ScheduleVersion,
		StartDate:       feed.FeedStartDate,
		EndDate:         feed.FeedEndDate,
	}
}

// Subject the message is published on.
func (m ComparisonMessage) Subject() string {
	if m.Feed == nil {
		return SubjectPrefix + ".combined"
	}
	return SubjectPrefix + ".v" + subjectToken(m.Feed.ScheduleVersion)
}

type Publisher interface {
	PublishComparison(ctx context.Context, msg ComparisonMessage) error
	Close()
}

// Discards everything.
type Nop struct{}

func (Nop) PublishComparison(ctx context.Context, msg ComparisonMessage) error { return nil }
func (Nop) Close()                                                              {}

// Keeps published messages in memory.
type Memory struct {
	Messages []ComparisonMessage

	mutex sync.Mutex
}

func (m *Memory) PublishComparison(ctx context.Context, msg ComparisonMessage) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.Messages = append(m.Messages, msg)
	return nil
}

func (m *Memory) Close() {}

// Messages by subject.
func (m *Memory) BySubject() map[string]ComparisonMessage {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	bySubject := map[string]ComparisonMessage{}
	for _, msg := range m.Messages {
		bySubject[msg.Subject()] = msg
	}
	return bySubject
}

func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	// NATS token cannot contain spaces, '>', '*', or trailing '.'
	repl := strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_", "/", "_", "\t", "_")
	s = repl.Replace(s)
	if s == "" {
		s = "_"
	}
	return s
}
