package services

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yoockh/civicvoice/internal/models"
)

// CallJournal fans call lifecycle facts out to the stores that are
// configured. Nil members are skipped.
type CallJournal struct {
	Calls         CallService
	Conversations ConversationService
	Archive       ArchiveService
	Logger        *logrus.Logger
}

func (j *CallJournal) CallStarted(ctx context.Context, callID, model, voice string, at time.Time) error {
	if j.Calls == nil {
		return nil
	}
	_, err := j.Calls.Start(ctx, callID, model, voice, at)
	return err
}

func (j *CallJournal) TurnsCompleted(ctx context.Context, callID string, turns []models.Turn) error {
	if j.Conversations == nil {
		return nil
	}
	_, err := j.Conversations.AppendTurns(ctx, callID, turns)
	return err
}

func (j *CallJournal) ComplaintExtracted(ctx context.Context, callID string, c models.Complaint) error {
	if j.Calls == nil {
		return nil
	}
	return j.Calls.AttachComplaint(ctx, callID, c.ID)
}

// CallEnded closes the journal entry and archives the call's turns. Both are
// attempted; the errors are joined.
func (j *CallJournal) CallEnded(ctx context.Context, callID, reason string, turns []models.Turn, at time.Time) error {
	var errs []error
	if j.Calls != nil {
		if err := j.Calls.End(ctx, callID, reason, len(turns), at); err != nil {
			errs = append(errs, err)
		}
	}
	if j.Archive != nil {
		path, err := j.Archive.Archive(ctx, callID, turns)
		if err != nil {
			errs = append(errs, err)
		} else if j.Logger != nil {
			j.Logger.WithFields(logrus.Fields{"call_id": callID, "object": path}).Info("transcript archived")
		}
	}
	return errors.Join(errs...)
}
