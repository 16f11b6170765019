package services

import "sync"

// ChatLocker serialises work per chat id. Locks for idle chats are released
// so the map does not grow with every chat ever seen.
type ChatLocker struct {
	mu    sync.Mutex
	locks map[int64]*chatLock
}

type chatLock struct {
	mu      sync.Mutex
	waiters int
}

// NewChatLocker creates a new chat locker
func NewChatLocker() *ChatLocker {
	return &ChatLocker{locks: make(map[int64]*chatLock)}
}

// Lock blocks until the chat is free and returns the matching unlock func
func (l *ChatLocker) Lock(chatID int64) func() {
	l.mu.Lock()
	lock, exists := l.locks[chatID]
	if !exists {
		lock = &chatLock{}
		l.locks[chatID] = lock
	}
	lock.waiters++
	l.mu.Unlock()

	lock.mu.Lock()

	return func() {
		lock.mu.Unlock()

		l.mu.Lock()
		lock.waiters--
		if lock.waiters == 0 {
			delete(l.locks, chatID)
		}
		l.mu.Unlock()
	}
}

// Active reports how many chats hold or wait for a lock
func (l *ChatLocker) Active() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.locks)
}
