package documents

import (
	"fmt"
	"sort"
)

// Projection is the workflow state implied by a set of steps.
type Projection struct {
	OverallStatus WorkflowStatus
	CurrentStep   int
}

// Project derives the overall status and current step of a workflow from its
// steps alone. It fails when the steps cannot belong to any reachable state:
// orders must be exactly 1..totalSteps, approved steps form a prefix, and
// nothing after the first non-approved step has been touched.
//
// A workflow stays pending until its first step is viewed. After that, or once
// any step is approved, it is under review until a step is rejected or the
// last step is approved.
func Project(totalSteps int, steps []ApprovalStep) (Projection, error) {
	if totalSteps < 1 {
		return Projection{}, fmt.Errorf("total steps is %d", totalSteps)
	}
	if len(steps) != totalSteps {
		return Projection{}, fmt.Errorf("expected %d steps, found %d", totalSteps, len(steps))
	}

	ordered := sortedSteps(steps)
	for i, st := range ordered {
		if st.Order != i+1 {
			return Projection{}, fmt.Errorf("step orders are not contiguous: position %d has order %d", i+1, st.Order)
		}
	}

	viewed := false
	for i, st := range ordered {
		if st.ViewedDocument {
			viewed = true
		}
		switch st.Status {
		case StepApproved:
			continue
		case StepRejected:
			if err := checkUntouched(ordered[i+1:]); err != nil {
				return Projection{}, err
			}
			return Projection{OverallStatus: WorkflowRejected, CurrentStep: st.Order}, nil
		case StepPending:
			if err := checkUntouched(ordered[i+1:]); err != nil {
				return Projection{}, err
			}
			status := WorkflowPending
			if viewed || i > 0 {
				status = WorkflowUnderReview
			}
			return Projection{OverallStatus: status, CurrentStep: st.Order}, nil
		default:
			return Projection{}, fmt.Errorf("step %d has unknown status %q", st.Order, st.Status)
		}
	}

	return Projection{OverallStatus: WorkflowApproved, CurrentStep: totalSteps}, nil
}

// Verify checks a loaded workflow (with steps) against its own projection and,
// when doc is not nil, the document status against the workflow. It returns a
// *DriftError describing every mismatch, or nil.
func Verify(wf *ApprovalWorkflow, doc *Document) error {
	var mismatches []string

	proj, err := Project(wf.TotalSteps, wf.Steps)
	if err != nil {
		return &DriftError{WorkflowID: wf.ID, Mismatches: []string{err.Error()}}
	}

	if proj.OverallStatus != wf.OverallStatus {
		mismatches = append(mismatches, fmt.Sprintf("overall status is %q, steps imply %q", wf.OverallStatus, proj.OverallStatus))
	}
	if proj.CurrentStep != wf.CurrentStep {
		mismatches = append(mismatches, fmt.Sprintf("current step is %d, steps imply %d", wf.CurrentStep, proj.CurrentStep))
	}
	if wf.OverallStatus.IsTerminal() != (wf.CompletedAt != nil) {
		mismatches = append(mismatches, fmt.Sprintf("completed_at set=%t with overall status %q", wf.CompletedAt != nil, wf.OverallStatus))
	}

	for _, st := range wf.Steps {
		if (st.Status == StepApproved) != (st.ApprovedAt != nil) {
			mismatches = append(mismatches, fmt.Sprintf("step %d approved_at set=%t with status %q", st.Order, st.ApprovedAt != nil, st.Status))
		}
		if (st.Status == StepRejected) != (st.RejectedAt != nil) {
			mismatches = append(mismatches, fmt.Sprintf("step %d rejected_at set=%t with status %q", st.Order, st.RejectedAt != nil, st.Status))
		}
	}

	if doc != nil && doc.Status != wf.OverallStatus.DocumentStatus() {
		mismatches = append(mismatches, fmt.Sprintf("document status is %q, workflow implies %q", doc.Status, wf.OverallStatus.DocumentStatus()))
	}

	if len(mismatches) > 0 {
		return &DriftError{WorkflowID: wf.ID, Mismatches: mismatches}
	}
	return nil
}

func checkUntouched(steps []ApprovalStep) error {
	for _, st := range steps {
		if st.Status != StepPending {
			return fmt.Errorf("step %d is %q after an unfinished step", st.Order, st.Status)
		}
		if st.ViewedDocument {
			return fmt.Errorf("step %d was viewed before its turn", st.Order)
		}
	}
	return nil
}

func sortedSteps(steps []ApprovalStep) []ApprovalStep {
	ordered := make([]ApprovalStep, len(steps))
	copy(ordered, steps)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Order < ordered[j].Order })
	return ordered
}
