package db

// ------------------------------
// Event System
// ------------------------------
//
// The DB emits typed events after a write transaction commits: saved items
// created, updated or deleted by a sync page or a local action, tags saved,
// the store cleared on sign-out, and offline captures saved or cleared.
//
// Example usage:
//
//	db.RegisterEventListener(db.OnSavedItemCreatedEvent, func(event db.Event) error {
//	    ev := event.(db.SavedItemCreatedEvent)
//	    logger.Info("saved item created", "remote_id", ev.SavedItem.RemoteID)
//	    // Optionally queue an offline capture here
//	    return nil
//	})
//
// Event is the common interface for all database events.
type Event interface {
	Kind() EventKind
}

// EventKind represents all the kinds of events that can be emitted by the DB.
type EventKind int

const (
	// OnSavedItemCreatedEvent is emitted when a saved item is first stored.
	OnSavedItemCreatedEvent EventKind = iota
	// OnSavedItemUpdatedEvent is emitted when an existing saved item changes.
	OnSavedItemUpdatedEvent
	// OnSavedItemDeletedEvent is emitted when a saved item is removed, either
	// by a local action or by a server tombstone.
	OnSavedItemDeletedEvent
	// OnTagSavedEvent is emitted when a tag is created or its remote ID changes.
	OnTagSavedEvent
	// OnStoreClearedEvent is emitted after Clear.
	OnStoreClearedEvent
	// OnOfflineCaptureSavedEvent is emitted when a capture result is saved.
	OnOfflineCaptureSavedEvent
	// OnOfflineCaptureClearedEvent is emitted when a capture is cleared for recapture.
	OnOfflineCaptureClearedEvent
)

func (k EventKind) String() string {
	switch k {
	case OnSavedItemCreatedEvent:
		return "saved_item_created"
	case OnSavedItemUpdatedEvent:
		return "saved_item_updated"
	case OnSavedItemDeletedEvent:
		return "saved_item_deleted"
	case OnTagSavedEvent:
		return "tag_saved"
	case OnStoreClearedEvent:
		return "store_cleared"
	case OnOfflineCaptureSavedEvent:
		return "offline_capture_saved"
	case OnOfflineCaptureClearedEvent:
		return "offline_capture_cleared"
	default:
		return "unknown"
	}
}

type SavedItemCreatedEvent struct {
	SavedItem SavedItem
}

func (e SavedItemCreatedEvent) Kind() EventKind { return OnSavedItemCreatedEvent }

type SavedItemUpdatedEvent struct {
	SavedItem SavedItem
}

func (e SavedItemUpdatedEvent) Kind() EventKind { return OnSavedItemUpdatedEvent }

// SavedItemDeletedEvent carries the remote ID of the removed saved item.
type SavedItemDeletedEvent struct {
	RemoteID string
}

func (e SavedItemDeletedEvent) Kind() EventKind { return OnSavedItemDeletedEvent }

type TagSavedEvent struct {
	Tag     Tag
	Created bool
}

func (e TagSavedEvent) Kind() EventKind { return OnTagSavedEvent }

type StoreClearedEvent struct{}

func (e StoreClearedEvent) Kind() EventKind { return OnStoreClearedEvent }

type OfflineCaptureSavedEvent struct {
	SavedItemRemoteID string
	Status            string // "ok" or "error"
}

func (e OfflineCaptureSavedEvent) Kind() EventKind { return OnOfflineCaptureSavedEvent }

type OfflineCaptureClearedEvent struct {
	SavedItemRemoteID string
}

func (e OfflineCaptureClearedEvent) Kind() EventKind { return OnOfflineCaptureClearedEvent }

// EventListener is a callback that handles events of a specific kind.
type EventListener func(event Event) error

// RegisterEventListener adds a listener for a specific event kind.
// Listeners are called synchronously in registration order after the write commits.
func (db *DB) RegisterEventListener(eventKind EventKind, listener EventListener) {
	db.listenersMu.Lock()
	defer db.listenersMu.Unlock()
	if db.eventListeners == nil {
		db.eventListeners = make(map[EventKind][]EventListener)
	}
	db.eventListeners[eventKind] = append(db.eventListeners[eventKind], listener)
}

// emit dispatches an event to all registered listeners for that event kind.
func (db *DB) emit(event Event) {
	db.listenersMu.RLock()
	listeners := append([]EventListener(nil), db.eventListeners[event.Kind()]...)
	db.listenersMu.RUnlock()

	for _, listener := range listeners {
		if err := listener(event); err != nil {
			db.logger.Error("event listener failed", "event", event.Kind().String(), "error", err)
		}
	}
}
