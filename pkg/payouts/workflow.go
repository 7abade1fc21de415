package payouts

import (
	"context"
	"fmt"

	"github.com/bytedance/sonic"

	"github.com/zoff-tech/go-payouts/pkg/payout"
	"github.com/zoff-tech/go-payouts/pkg/scheduler"
)

// AttachAccountWorkflow runs attach-account tasks relayed by the process tracker.
type AttachAccountWorkflow struct {
	svc *Service
}

func NewAttachAccountWorkflow(svc *Service) *AttachAccountWorkflow {
	return &AttachAccountWorkflow{svc: svc}
}

func (w *AttachAccountWorkflow) Run(ctx context.Context, task *scheduler.Task) error {
	var td AttachAccountTrackingData
	if err := sonic.Unmarshal(task.TrackingData, &td); err != nil {
		return fmt.Errorf("decoding tracking data of task %s: %w", task.ID, err)
	}
	if td.PayoutID == "" || td.MerchantID == "" {
		return fmt.Errorf("task %s has incomplete tracking data", task.ID)
	}
	m := payout.MerchantAccount{MerchantID: td.MerchantID, StorageScheme: td.StorageScheme}
	return w.svc.ResumeVendorAccount(ctx, m, td.PayoutID)
}
