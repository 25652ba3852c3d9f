package notifications

import (
	"sync"
	"time"

	"github.com/safing/sdfw/base/utils"
)

// Type describes the severity/intent of a Notification.
type Type uint8

const (
	Info Type = iota
	Warning
	Prompt
	Error
)

// State describes the lifecycle of a Notification.
type State string

const (
	Active    State = "active"
	Responded State = "responded"
	Executed  State = "executed"
)

// ActionType describes what selecting an Action does.
type ActionType string

const (
	ActionTypeNone        ActionType = ""
	ActionTypeOpenSetting ActionType = "open-setting"
	ActionTypeWebhook     ActionType = "webhook"
)

// Action is a button a client may present to the user alongside a
// Notification. SelectedActionID on the Notification records which one
// (if any) was chosen.
type Action struct {
	ID   string
	Text string
	Type ActionType
}

// Notification is a single operator-facing event: a health check failure, a
// bind conflict, an invalid settings document. Notifications are held
// in-memory only; there is no persistence across restarts.
type Notification struct {
	GUID    string
	EventID string
	Type    Type
	Title   string
	Message string
	Created time.Time
	Expires time.Time

	State             State
	AvailableActions  []Action
	SelectedActionID  string

	lock sync.Mutex
}

// Respond records which action (if any) the user selected and marks the
// notification as responded.
func (n *Notification) Respond(actionID string) {
	n.lock.Lock()
	defer n.lock.Unlock()

	n.SelectedActionID = actionID
	n.State = Responded
}

var (
	storeLock sync.Mutex
	store     = make(map[string]*Notification)

	// Changed is broadcast whenever a notification is created, updated, or
	// deleted, so IPC clients can re-fetch the list.
	Changed = utils.NewBroadcastFlag()
)

// Get returns the notification with the given event ID, or nil.
func Get(eventID string) *Notification {
	storeLock.Lock()
	defer storeLock.Unlock()

	return store[eventID]
}

// All returns a snapshot of all currently held notifications.
func All() []*Notification {
	storeLock.Lock()
	defer storeLock.Unlock()

	all := make([]*Notification, 0, len(store))
	for _, n := range store {
		all = append(all, n)
	}
	return all
}

// Delete removes a notification by event ID.
func Delete(eventID string) {
	storeLock.Lock()
	_, existed := store[eventID]
	delete(store, eventID)
	storeLock.Unlock()

	if existed {
		Changed.NotifyAndReset()
	}
}

func notify(t Type, eventID, title, message string, actions ...Action) *Notification {
	n := &Notification{
		GUID:             utils.DerivedUUID(eventID).String(),
		EventID:          eventID,
		Type:             t,
		Title:            title,
		Message:          message,
		Created:          time.Now(),
		State:            Active,
		AvailableActions: actions,
	}

	storeLock.Lock()
	store[eventID] = n
	storeLock.Unlock()

	Changed.NotifyAndReset()
	return n
}

// NotifyInfo creates or replaces an informational notification.
func NotifyInfo(eventID, title, message string, actions ...Action) *Notification {
	return notify(Info, eventID, title, message, actions...)
}

// NotifyWarn creates or replaces a warning notification.
func NotifyWarn(eventID, title, message string, actions ...Action) *Notification {
	return notify(Warning, eventID, title, message, actions...)
}

// NotifyError creates or replaces an error notification.
func NotifyError(eventID, title, message string, actions ...Action) *Notification {
	return notify(Error, eventID, title, message, actions...)
}

// NotifyPrompt creates or replaces a prompt notification that expects a
// user response via Respond.
func NotifyPrompt(eventID, title, message string, actions ...Action) *Notification {
	return notify(Prompt, eventID, title, message, actions...)
}
