package workflow

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// ExecutionStatus represents the status of a run.
type ExecutionStatus string

const (
	// StatusRunning indicates the run is in progress
	StatusRunning ExecutionStatus = "running"
	// StatusTerminated indicates the run reached the terminal sentinel
	StatusTerminated ExecutionStatus = "terminated"
	// StatusFailed indicates the run aborted with an error
	StatusFailed ExecutionStatus = "failed"
	// StatusCompleted marks a single step that finished and was committed
	StatusCompleted ExecutionStatus = "completed"
)

// ErrHistoryNotFound is returned by history stores for unknown run IDs.
var ErrHistoryNotFound = errors.New("execution history not found")

// NodeExecution records one step of a run.
type NodeExecution struct {
	Node      string          `json:"node"`
	Step      int             `json:"step"`
	StartTime time.Time       `json:"start_time"`
	EndTime   time.Time       `json:"end_time"`
	Duration  time.Duration   `json:"duration"`
	Status    ExecutionStatus `json:"status"`
	Target    string          `json:"target,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// ExecutionHistory is the audit record of a finished run. It is written once
// when the run ends and is never used to resume execution.
type ExecutionHistory struct {
	RunID      string           `json:"run_id"`
	Graph      string           `json:"graph"`
	StartTime  time.Time        `json:"start_time"`
	EndTime    time.Time        `json:"end_time"`
	Duration   time.Duration    `json:"duration"`
	Status     ExecutionStatus  `json:"status"`
	Reason     string           `json:"reason"`
	Steps      int              `json:"steps"`
	Nodes      []*NodeExecution `json:"nodes"`
	Error      string           `json:"error,omitempty"`
	ErrorCode  string           `json:"error_code,omitempty"`
	FinalState map[string]any   `json:"final_state,omitempty"`
}

// newExecutionHistory creates a running history record.
func newExecutionHistory(runID, graph string, start time.Time) *ExecutionHistory {
	return &ExecutionHistory{
		RunID:     runID,
		Graph:     graph,
		StartTime: start,
		Status:    StatusRunning,
		Nodes:     make([]*NodeExecution, 0),
	}
}

// recordNodeStart records the start of a step.
func (h *ExecutionHistory) recordNodeStart(node string, step int) *NodeExecution {
	n := &NodeExecution{
		Node:      node,
		Step:      step,
		StartTime: time.Now(),
		Status:    StatusRunning,
	}
	h.Nodes = append(h.Nodes, n)
	return n
}

// recordNodeEnd records the end of a step.
func (h *ExecutionHistory) recordNodeEnd(n *NodeExecution, target string, err error) {
	n.EndTime = time.Now()
	n.Duration = n.EndTime.Sub(n.StartTime)
	n.Target = target
	if err != nil {
		n.Status = StatusFailed
		n.Error = err.Error()
	} else {
		n.Status = StatusCompleted
	}
}

// NodeByStep returns the record for a step index, or nil.
func (h *ExecutionHistory) NodeByStep(step int) *NodeExecution {
	for _, n := range h.Nodes {
		if n.Step == step {
			return n
		}
	}
	return nil
}

// HistoryStore persists finished-run audit records.
type HistoryStore interface {
	Save(ctx context.Context, h *ExecutionHistory) error
	Get(ctx context.Context, runID string) (*ExecutionHistory, error)
	// ListByGraph returns the most recent runs of a graph, newest first.
	// limit <= 0 means no limit.
	ListByGraph(ctx context.Context, graph string, limit int) ([]*ExecutionHistory, error)
	// ListByStatus returns the most recent runs with a status, newest first.
	ListByStatus(ctx context.Context, status ExecutionStatus, limit int) ([]*ExecutionHistory, error)
}

// MemoryHistoryStore is an in-process HistoryStore.
type MemoryHistoryStore struct {
	histories map[string]*ExecutionHistory
	mu        sync.RWMutex
}

// NewMemoryHistoryStore creates a new in-memory history store.
func NewMemoryHistoryStore() *MemoryHistoryStore {
	return &MemoryHistoryStore{
		histories: make(map[string]*ExecutionHistory),
	}
}

// Save saves an execution history
func (s *MemoryHistoryStore) Save(_ context.Context, h *ExecutionHistory) error {
	if h == nil || h.RunID == "" {
		return fmt.Errorf("history record requires a run ID")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.histories[h.RunID] = h
	return nil
}

// Get retrieves an execution history by run ID
func (s *MemoryHistoryStore) Get(_ context.Context, runID string) (*ExecutionHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.histories[runID]
	if !ok {
		return nil, ErrHistoryNotFound
	}
	return h, nil
}

// ListByGraph returns runs of a graph, newest first
func (s *MemoryHistoryStore) ListByGraph(_ context.Context, graph string, limit int) ([]*ExecutionHistory, error) {
	return s.list(func(h *ExecutionHistory) bool { return h.Graph == graph }, limit), nil
}

// ListByStatus returns runs with a status, newest first
func (s *MemoryHistoryStore) ListByStatus(_ context.Context, status ExecutionStatus, limit int) ([]*ExecutionHistory, error) {
	return s.list(func(h *ExecutionHistory) bool { return h.Status == status }, limit), nil
}

func (s *MemoryHistoryStore) list(match func(*ExecutionHistory) bool, limit int) []*ExecutionHistory {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []*ExecutionHistory{}
	for _, h := range s.histories {
		if match(h) {
			result = append(result, h)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].StartTime.Equal(result[j].StartTime) {
			return result[i].StartTime.After(result[j].StartTime)
		}
		return result[i].RunID < result[j].RunID
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result
}
