package locking

import "errors"

// ErrLocked is returned by Acquire when another holder already has the lock.
var ErrLocked = errors.New("locking: key is already locked")

// ErrLockLost is returned by Refresh when the lease's token no longer
// matches the stored value, meaning the TTL expired and another holder
// acquired the lock before this refresh ran.
var ErrLockLost = errors.New("locking: lease lost before refresh")
