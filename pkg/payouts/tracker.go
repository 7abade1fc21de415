package payouts

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/bytedance/sonic"

	"github.com/zoff-tech/go-payouts/pkg/payout"
	"github.com/zoff-tech/go-payouts/pkg/scheduler"
)

const (
	// AttachAccountRunner is the runner name of the vendor account continuation.
	AttachAccountRunner = "ATTACH_PAYOUT_ACCOUNT_WORKFLOW"
	attachAccountTask   = "STRPE_ATTACH_EXTERNAL_ACCOUNT"
)

var attachAccountTags = []string{"PAYOUTS", "STRIPE", "ACCOUNT", "CREATE"}

// AttachAccountTrackingData is the payload of an attach-account task.
type AttachAccountTrackingData struct {
	PayoutID      string               `json:"payout_id"`
	AttemptID     string               `json:"payout_attempt_id"`
	MerchantID    string               `json:"merchant_id"`
	StorageScheme payout.StorageScheme `json:"storage_scheme"`
}

func attachAccountTaskID(attemptID, merchantID string) string {
	return fmt.Sprintf("%s_%s_%s_%s", AttachAccountRunner, attachAccountTask, attemptID, merchantID)
}

// scheduleAttachAccount inserts the process tracker entry that resumes the
// payout once the connector had time to onboard the vendor account.
func (s *Service) scheduleAttachAccount(ctx context.Context, m payout.MerchantAccount, d *PayoutData, at time.Time) error {
	tracking, err := sonic.Marshal(AttachAccountTrackingData{
		PayoutID:      d.Payout.PayoutID,
		AttemptID:     d.Attempt.PayoutAttemptID,
		MerchantID:    m.MerchantID,
		StorageScheme: m.StorageScheme,
	})
	if err != nil {
		return fmt.Errorf("encoding tracking data: %w", err)
	}

	now := s.now().UTC()
	task := &scheduler.Task{
		ID:           attachAccountTaskID(d.Attempt.PayoutAttemptID, m.MerchantID),
		Name:         attachAccountTask,
		Runner:       AttachAccountRunner,
		Tags:         attachAccountTags,
		TrackingData: tracking,
		ScheduleTime: at.UTC(),
		Status:       scheduler.StatusNew,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	err = s.tasks.Insert(ctx, task)
	if errors.Is(err, scheduler.ErrTaskExists) {
		log.Printf("Task %s already scheduled", task.ID)
		return nil
	}
	return err
}
