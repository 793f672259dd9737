package repos

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/investblog/cloudflare-images-sync/internal/models"
)

// Log levels accepted by the ring buffer.
const (
	LevelDebug   = "debug"
	LevelInfo    = "info"
	LevelWarning = "warning"
	LevelError   = "error"
)

// LogContext carries the whitelisted context of a log entry.
type LogContext struct {
	PostID    int64
	MappingID string
	Extra     string
}

type logsDoc struct {
	Items []models.LogEntry `json:"items"`
}

// LogsRepo is a bounded log of sync activity. Its size follows the
// logs_max setting; the oldest entries are dropped first.
type LogsRepo struct {
	mu       sync.Mutex
	store    OptionStore
	settings *SettingsRepo
	now      func() time.Time
}

// NewLogsRepo creates a log repository sized by settings.
func NewLogsRepo(store OptionStore, settings *SettingsRepo) *LogsRepo {
	return &LogsRepo{store: store, settings: settings, now: time.Now}
}

// Push appends an entry. Unknown levels are stored as info.
func (r *LogsRepo) Push(level, msg string, ctx LogContext) error {
	switch level {
	case LevelDebug, LevelInfo, LevelWarning, LevelError:
	default:
		level = LevelInfo
	}

	entry := models.LogEntry{
		Time:      r.now().Unix(),
		Level:     level,
		Message:   sanitizeText(msg),
		PostID:    ctx.PostID,
		MappingID: ctx.MappingID,
		Extra:     sanitizeText(ctx.Extra),
	}

	limit := models.DefaultSettings().LogsMax
	if s, err := r.settings.Get(); err == nil {
		limit = s.LogsMax
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	doc, err := r.load()
	if err != nil {
		return err
	}

	doc.Items = append(doc.Items, entry)
	if len(doc.Items) > limit {
		doc.Items = doc.Items[len(doc.Items)-limit:]
	}

	if err := r.store.SetOption(OptionLogs, doc); err != nil {
		return fmt.Errorf("writing logs: %w", err)
	}

	return nil
}

// All returns entries oldest first.
func (r *LogsRepo) All() ([]models.LogEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, err := r.load()

	return doc.Items, err
}

// Count returns the number of stored entries.
func (r *LogsRepo) Count() (int, error) {
	items, err := r.All()
	return len(items), err
}

// Clear removes every entry.
func (r *LogsRepo) Clear() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.store.SetOption(OptionLogs, logsDoc{Items: []models.LogEntry{}})
}

func (r *LogsRepo) load() (logsDoc, error) {
	var doc logsDoc
	if _, err := r.store.GetOption(OptionLogs, &doc); err != nil {
		return doc, fmt.Errorf("reading logs: %w", err)
	}

	return doc, nil
}

// sanitizeText flattens a message to one trimmed line without control
// characters.
func sanitizeText(s string) string {
	s = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return ' '
		}

		return r
	}, s)

	return strings.Join(strings.Fields(s), " ")
}
