package ledger

import "sync"

// AccountLocker serializes operations on the same account within a process.
// Entries are dropped once no goroutine holds or waits for them.
type AccountLocker struct {
	mutex sync.Mutex
	locks map[string]*accountLock
}

type accountLock struct {
	sync.Mutex
	holders int
}

// NewAccountLocker returns an empty locker.
func NewAccountLocker() *AccountLocker {
	return &AccountLocker{locks: make(map[string]*accountLock)}
}

// Lock blocks until accountID is free and returns the matching unlock func.
func (locker *AccountLocker) Lock(accountID AccountID) func() {
	key := accountID.String()

	locker.mutex.Lock()
	lock, ok := locker.locks[key]
	if !ok {
		lock = &accountLock{}
		locker.locks[key] = lock
	}
	lock.holders++
	locker.mutex.Unlock()

	lock.Lock()
	return func() {
		lock.Unlock()
		locker.mutex.Lock()
		lock.holders--
		if lock.holders == 0 {
			delete(locker.locks, key)
		}
		locker.mutex.Unlock()
	}
}

func (locker *AccountLocker) size() int {
	locker.mutex.Lock()
	defer locker.mutex.Unlock()
	return len(locker.locks)
}
