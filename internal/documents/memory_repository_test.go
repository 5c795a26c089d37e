package documents

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// memoryRepository is an in-memory Repository honouring the same guards as the
// postgres implementation.
type memoryRepository struct {
	mu        sync.Mutex
	docs      map[uuid.UUID]Document
	workflows map[uuid.UUID]ApprovalWorkflow
	steps     map[uuid.UUID][]ApprovalStep

	failCreateSteps error
	failSetStatus   error
	applyCalls      int
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{
		docs:      make(map[uuid.UUID]Document),
		workflows: make(map[uuid.UUID]ApprovalWorkflow),
		steps:     make(map[uuid.UUID][]ApprovalStep),
	}
}

func (r *memoryRepository) addDocument(projectID uuid.UUID, status DocumentStatus) Document {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc := Document{ID: uuid.New(), ProjectID: projectID, Name: "Monitoring report", Status: status, UpdatedAt: time.Now()}
	r.docs[doc.ID] = doc
	return doc
}

func (r *memoryRepository) document(id uuid.UUID) Document {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.docs[id]
}

func (r *memoryRepository) workflowCount(documentID uuid.UUID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, wf := range r.workflows {
		if wf.DocumentID == documentID {
			n++
		}
	}
	return n
}

func (r *memoryRepository) GetDocumentByID(ctx context.Context, id uuid.UUID) (*Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[id]
	if !ok {
		return nil, nil
	}
	return &doc, nil
}

func (r *memoryRepository) SetDocumentStatus(ctx context.Context, id uuid.UUID, status DocumentStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failSetStatus != nil {
		return r.failSetStatus
	}
	doc := r.docs[id]
	doc.Status = status
	doc.UpdatedAt = time.Now()
	r.docs[id] = doc
	return nil
}

func (r *memoryRepository) RestoreDocumentStatus(ctx context.Context, id uuid.UUID, from, to DocumentStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[id]
	if !ok || doc.Status != from || r.activeLocked(id) != nil {
		return false, nil
	}
	doc.Status = to
	doc.UpdatedAt = time.Now()
	r.docs[id] = doc
	return true, nil
}

func (r *memoryRepository) HasActiveWorkflow(ctx context.Context, documentID uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.activeLocked(documentID) != nil, nil
}

func (r *memoryRepository) CreateWorkflow(ctx context.Context, workflow *ApprovalWorkflow) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if workflow.OverallStatus.IsActive() && r.activeLocked(workflow.DocumentID) != nil {
		return ErrActiveWorkflowExists
	}
	wf := *workflow
	wf.Steps = nil
	r.workflows[wf.ID] = wf
	return nil
}

func (r *memoryRepository) CreateSteps(ctx context.Context, steps []ApprovalStep) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failCreateSteps != nil {
		return r.failCreateSteps
	}
	for _, st := range steps {
		r.steps[st.WorkflowID] = append(r.steps[st.WorkflowID], st)
	}
	return nil
}

func (r *memoryRepository) DeleteWorkflow(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.workflows, id)
	delete(r.steps, id)
	return nil
}

func (r *memoryRepository) GetActiveWorkflow(ctx context.Context, documentID uuid.UUID) (*ApprovalWorkflow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.activeLocked(documentID), nil
}

func (r *memoryRepository) GetLatestWorkflow(ctx context.Context, documentID uuid.UUID) (*ApprovalWorkflow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *ApprovalWorkflow
	for id, wf := range r.workflows {
		if wf.DocumentID != documentID {
			continue
		}
		if latest == nil || wf.RequestedAt.After(latest.RequestedAt) {
			latest = r.loadLocked(id)
		}
	}
	return latest, nil
}

func (r *memoryRepository) ListActiveWorkflows(ctx context.Context, limit int) ([]ApprovalWorkflow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []ApprovalWorkflow
	for id, wf := range r.workflows {
		if len(out) == limit {
			break
		}
		if wf.OverallStatus.IsActive() {
			out = append(out, *r.loadLocked(id))
		}
	}
	return out, nil
}

func (r *memoryRepository) ApplyTransition(ctx context.Context, t Transition) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.applyCalls++

	wf, ok := r.workflows[t.Workflow.WorkflowID]
	if !ok {
		return false, guardLost(t, nil)
	}
	steps := r.steps[wf.ID]
	idx := -1
	for i := range steps {
		if steps[i].ID == t.Step.StepID {
			idx = i
		}
	}
	if idx < 0 {
		return false, guardLost(t, nil)
	}

	st := steps[idx]
	switch t.Step.Guard {
	case GuardUnviewed:
		if st.ViewedDocument {
			return false, guardLost(t, nil)
		}
	case GuardPending:
		if st.Status != StepPending {
			return false, guardLost(t, nil)
		}
	}
	if wf.OverallStatus != t.Workflow.FromStatus || wf.CurrentStep != t.Workflow.FromStep {
		return false, guardLost(t, nil)
	}

	updated := make([]ApprovalStep, len(steps))
	copy(updated, steps)
	applyStepUpdate(&updated[idx], t.Step)
	r.steps[wf.ID] = updated

	wf.OverallStatus = t.Workflow.OverallStatus
	wf.CurrentStep = t.Workflow.CurrentStep
	if t.Workflow.CompletedAt != nil {
		wf.CompletedAt = t.Workflow.CompletedAt
	}
	wf.UpdatedAt = t.At
	r.workflows[wf.ID] = wf

	doc := r.docs[t.Document.DocumentID]
	doc.Status = t.Document.Status
	doc.UpdatedAt = t.At
	r.docs[doc.ID] = doc
	return true, nil
}

func (r *memoryRepository) activeLocked(documentID uuid.UUID) *ApprovalWorkflow {
	for id, wf := range r.workflows {
		if wf.DocumentID == documentID && wf.OverallStatus.IsActive() {
			return r.loadLocked(id)
		}
	}
	return nil
}

func (r *memoryRepository) loadLocked(id uuid.UUID) *ApprovalWorkflow {
	wf := r.workflows[id]
	wf.Steps = make([]ApprovalStep, len(r.steps[id]))
	copy(wf.Steps, r.steps[id])
	return &wf
}

// staticMembers is a MembershipProvider over a fixed member list.
type staticMembers struct {
	members []Member
	err     error
}

func (s staticMembers) ProjectMembers(ctx context.Context, projectID uuid.UUID, userIDs []uuid.UUID) ([]Member, error) {
	if s.err != nil {
		return nil, s.err
	}
	want := make(map[uuid.UUID]bool, len(userIDs))
	for _, id := range userIDs {
		want[id] = true
	}
	var out []Member
	for _, m := range s.members {
		if want[m.UserID] {
			out = append(out, m)
		}
	}
	return out, nil
}

// recordingNotifier keeps every event it receives.
type recordingNotifier struct {
	mu     sync.Mutex
	events []ActivityEvent
	err    error
}

func (n *recordingNotifier) Log(ctx context.Context, documentID uuid.UUID, event ActivityEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return n.err
}

func (n *recordingNotifier) actions() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.events))
	for i, e := range n.events {
		out[i] = e.Action
	}
	return out
}
