package client

import (
	"slices"
	"strconv"
	"sync"
	"time"

	"strangerchat/backend/internal/models"
)

const tempPrefix = "temp-"

// Entry is one line of the local transcript.
type Entry struct {
	ID        string
	SenderID  string
	Content   string
	CreatedAt time.Time
	// Pending entries are optimistic and carry a temporary id.
	Pending bool
	// System entries are local notices such as "chat ended".
	System bool
}

// Transcript is the locally displayed conversation. Entries are kept in
// (CreatedAt, ID) order and deduplicated by id.
type Transcript struct {
	mu       sync.Mutex
	entries  []Entry
	nextTemp int
	now      func() time.Time
}

func NewTranscript() *Transcript {
	return &Transcript{now: time.Now}
}

// AddPending shows content immediately and returns its temporary id.
func (t *Transcript) AddPending(senderID, content string) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextTemp++
	id := tempPrefix + strconv.Itoa(t.nextTemp)
	t.insert(Entry{ID: id, SenderID: senderID, Content: content, CreatedAt: t.now(), Pending: true})
	return id
}

// Confirm replaces the pending entry with the stored message. If the
// message already arrived through a push only the pending entry is dropped.
func (t *Transcript) Confirm(tempID string, msg *models.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.remove(tempID)
	if t.index(msg.ID) < 0 {
		t.insert(fromMessage(*msg))
	}
}

// Rollback removes a pending entry after a failed send.
func (t *Transcript) Rollback(tempID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.remove(tempID)
}

// Apply adds a pushed message unless its id is already present.
func (t *Transcript) Apply(msg models.Message) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.index(msg.ID) >= 0 {
		return false
	}
	t.insert(fromMessage(msg))
	return true
}

// Merge applies a history page.
func (t *Transcript) Merge(msgs []models.Message) int {
	added := 0
	for _, m := range msgs {
		if t.Apply(m) {
			added++
		}
	}
	return added
}

// AddSystem appends a local notice.
func (t *Transcript) AddSystem(text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextTemp++
	t.insert(Entry{ID: "system-" + strconv.Itoa(t.nextTemp), Content: text, CreatedAt: t.now(), System: true})
}

// Entries returns a copy in display order.
func (t *Transcript) Entries() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.entries)
}

func (t *Transcript) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Reset empties the transcript for a new session.
func (t *Transcript) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = nil
}

func (t *Transcript) index(id string) int {
	return slices.IndexFunc(t.entries, func(e Entry) bool { return e.ID == id })
}

func (t *Transcript) remove(id string) {
	if i := t.index(id); i >= 0 {
		t.entries = slices.Delete(t.entries, i, i+1)
	}
}

func (t *Transcript) insert(e Entry) {
	i, _ := slices.BinarySearchFunc(t.entries, e, compareEntries)
	t.entries = slices.Insert(t.entries, i, e)
}

func compareEntries(a, b Entry) int {
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}
	switch {
	case a.ID < b.ID:
		return -1
	case a.ID > b.ID:
		return 1
	}
	return 0
}

func fromMessage(m models.Message) Entry {
	return Entry{ID: m.ID, SenderID: m.SenderID, Content: m.Content, CreatedAt: m.CreatedAt}
}
