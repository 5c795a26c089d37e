package documents

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DriftReport summarises one pass of the drift checker.
type DriftReport struct {
	Checked  int           `json:"checked"`
	Drifted  []*DriftError `json:"drifted"`
	Failures int           `json:"failures"`
}

// DriftChecker compares stored state of active workflows with the state their
// steps imply. It only reports; nothing is repaired.
type DriftChecker struct {
	repo      Repository
	logger    *zap.Logger
	batchSize int
}

func NewDriftChecker(repo Repository, logger *zap.Logger, batchSize int) *DriftChecker {
	if batchSize <= 0 {
		batchSize = 500
	}
	return &DriftChecker{repo: repo, logger: logger, batchSize: batchSize}
}

func (d *DriftChecker) Run(ctx context.Context) (DriftReport, error) {
	var report DriftReport

	active, err := d.repo.ListActiveWorkflows(ctx, d.batchSize)
	if err != nil {
		return report, storageError("list active workflows", err)
	}

	docs := make(map[uuid.UUID]*Document)
	for i := range active {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		wf := &active[i]
		report.Checked++

		doc, ok := docs[wf.DocumentID]
		if !ok {
			doc, err = d.repo.GetDocumentByID(ctx, wf.DocumentID)
			if err != nil {
				report.Failures++
				d.logger.Error("Failed to load document for drift check",
					zap.String("document_id", wf.DocumentID.String()),
					zap.Error(err))
				continue
			}
			docs[wf.DocumentID] = doc
		}

		var drift *DriftError
		if err := Verify(wf, doc); errors.As(err, &drift) {
			report.Drifted = append(report.Drifted, drift)
			d.logger.Warn("Approval workflow drift detected",
				zap.String("workflow_id", wf.ID.String()),
				zap.String("document_id", wf.DocumentID.String()),
				zap.Strings("mismatches", drift.Mismatches))
		}
	}

	d.logger.Info("Approval drift check completed",
		zap.Int("checked", report.Checked),
		zap.Int("drifted", len(report.Drifted)),
		zap.Int("failures", report.Failures))
	return report, nil
}
