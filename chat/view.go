package chat

import "burakai/utils"

// View is the read-only projection of manager state consumed by the
// presentation layer. Everything in it is a copy; mutating a View has no
// effect on the manager.
type View struct {
	User          User
	Settings      Settings
	ActiveID      string
	Conversations []Conversation
}

// Conversation returns the conversation with the given id, or nil.
func (v View) Conversation(id string) *Conversation {
	for i := range v.Conversations {
		if v.Conversations[i].ID == id {
			return &v.Conversations[i]
		}
	}
	return nil
}

// ActiveConversation returns the active conversation, or nil if none.
func (v View) ActiveConversation() *Conversation {
	if v.ActiveID == "" {
		return nil
	}
	return v.Conversation(v.ActiveID)
}

// Snapshot returns the current view model.
func (m *Manager) Snapshot() View {
	m.mu.Lock()
	defer m.mu.Unlock()
	return View{
		User:          m.user,
		Settings:      m.settings,
		ActiveID:      m.activeID,
		Conversations: m.conversationsLocked(),
	}
}

// OnChange registers an observer invoked with a fresh snapshot after every
// committed mutation. The returned function deregisters it deterministically.
func (m *Manager) OnChange(fn func(View)) func() {
	m.mu.Lock()
	id := m.nextObs
	m.nextObs++
	m.observers[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.observers, id)
		m.mu.Unlock()
	}
}

// notify delivers the current snapshot to all observers. Called outside the
// state lock. A panicking observer must not take the manager down with it.
func (m *Manager) notify() {
	m.mu.Lock()
	if len(m.observers) == 0 {
		m.mu.Unlock()
		return
	}
	fns := make([]func(View), 0, len(m.observers))
	for _, fn := range m.observers {
		fns = append(fns, fn)
	}
	m.mu.Unlock()

	view := m.Snapshot()
	for _, fn := range fns {
		func() {
			defer utils.RecoverFromPanic(m.logger, "observer notification")
			fn(view)
		}()
	}
}
