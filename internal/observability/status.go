package observability

import (
	"sort"
	"sync"
	"time"
)

// ThreadStatus is the node a thread is executing right now.
type ThreadStatus struct {
	ThreadID string
	Node     string
	Since    time.Time
}

type systemStatus struct {
	mu            sync.RWMutex
	active        map[string]ThreadStatus
	LastHeartbeat time.Time
}

var globalStatus = &systemStatus{
	active:        make(map[string]ThreadStatus),
	LastHeartbeat: time.Now(),
}

// SetStatus records that threadID entered node.
func SetStatus(threadID, node string) {
	globalStatus.mu.Lock()
	defer globalStatus.mu.Unlock()
	globalStatus.active[threadID] = ThreadStatus{ThreadID: threadID, Node: node, Since: time.Now()}
}

// ClearStatus marks threadID idle.
func ClearStatus(threadID string) {
	globalStatus.mu.Lock()
	defer globalStatus.mu.Unlock()
	delete(globalStatus.active, threadID)
}

// ActiveThreads returns a copy of the running threads ordered by id.
func ActiveThreads() []ThreadStatus {
	globalStatus.mu.RLock()
	defer globalStatus.mu.RUnlock()
	out := make([]ThreadStatus, 0, len(globalStatus.active))
	for _, s := range globalStatus.active {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ThreadID < out[j].ThreadID })
	return out
}

// Heartbeat updates the last heartbeat time.
func Heartbeat() time.Time {
	globalStatus.mu.Lock()
	defer globalStatus.mu.Unlock()
	globalStatus.LastHeartbeat = time.Now()
	return globalStatus.LastHeartbeat
}
