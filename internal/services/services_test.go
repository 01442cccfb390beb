package services

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/yoockh/civicvoice/internal/logger"
	"github.com/yoockh/civicvoice/internal/models"
	"github.com/yoockh/civicvoice/internal/utils"
	"gorm.io/gorm"
)

type fakeConvoRepo struct {
	rows    []models.ConversationLog
	nextSeq int
}

func (r *fakeConvoRepo) InsertBatch(_ context.Context, rows []models.ConversationLog) error {
	for _, n := range rows {
		for _, o := range r.rows {
			if o.CallID == n.CallID && o.Seq == n.Seq {
				return gorm.ErrDuplicatedKey
			}
		}
	}
	r.rows = append(r.rows, rows...)
	return nil
}

func (r *fakeConvoRepo) ListByCall(_ context.Context, callID string, _ int) ([]models.ConversationLog, error) {
	var out []models.ConversationLog
	for _, row := range r.rows {
		if row.CallID == callID {
			out = append(out, row)
		}
	}
	return out, nil
}

func (r *fakeConvoRepo) NextSeq(context.Context, string) (int, error) { return r.nextSeq, nil }

func (r *fakeConvoRepo) GetByID(context.Context, string) (*models.ConversationLog, error) {
	return nil, utils.ErrNotFound
}

func TestAppendTurns_StripsRecordIntoMetadata(t *testing.T) {
	repo := &fakeConvoRepo{nextSeq: 4}
	svc := NewConversationService(repo)
	now := time.Date(2025, 1, 10, 10, 0, 0, 0, time.UTC)

	rows, err := svc.AppendTurns(context.Background(), "call-1", []models.Turn{
		{Role: models.RoleCaller, Text: "yes that's all", Timestamp: now},
		{Role: models.RoleAgent, Text: "Your complaint number is SIG-1234.\n```json\n{\"id\":\"SIG-1234\"}\n```", Timestamp: now},
	})
	if err != nil {
		t.Fatalf("AppendTurns: %v", err)
	}
	if len(rows) != 2 || len(repo.rows) != 2 {
		t.Fatalf("rows=%d stored=%d", len(rows), len(repo.rows))
	}
	if rows[0].Seq != 4 || rows[1].Seq != 5 {
		t.Fatalf("seq=%d,%d", rows[0].Seq, rows[1].Seq)
	}
	if rows[0].Metadata != nil {
		t.Fatalf("caller row should carry no metadata")
	}
	agent := rows[1]
	if agent.Content != "Your complaint number is SIG-1234." {
		t.Fatalf("content=%q", agent.Content)
	}
	var md struct {
		Complaint models.Complaint `json:"complaint"`
		CloseCue  bool             `json:"close_cue"`
	}
	if err := json.Unmarshal(agent.Metadata, &md); err != nil {
		t.Fatalf("metadata: %v", err)
	}
	if md.Complaint.ID != "SIG-1234" || !md.CloseCue {
		t.Fatalf("metadata=%+v", md)
	}
}

func TestAppendTurns_MalformedRecordNoted(t *testing.T) {
	repo := &fakeConvoRepo{}
	rows, err := NewConversationService(repo).AppendTurns(context.Background(), "call-2", []models.Turn{
		{Role: models.RoleAgent, Text: "bye\n```json\n{oops\n```"},
	})
	if err != nil {
		t.Fatalf("AppendTurns: %v", err)
	}
	if !strings.Contains(string(rows[0].Metadata), "record_error") {
		t.Fatalf("metadata=%s", rows[0].Metadata)
	}
}

func TestAppendTurns_SequenceCollisionIsConflict(t *testing.T) {
	// NextSeq answers the same value twice, as two racing writers would see it
	repo := &fakeConvoRepo{nextSeq: 2}
	svc := NewConversationService(repo)
	ctx := context.Background()

	if _, err := svc.AppendTurns(ctx, "call-3", []models.Turn{{Role: models.RoleCaller, Text: "first"}}); err != nil {
		t.Fatal(err)
	}
	_, err := svc.AppendTurns(ctx, "call-3", []models.Turn{{Role: models.RoleCaller, Text: "second"}})
	if !utils.IsCode(err, utils.CodeConflict) {
		t.Fatalf("err=%v", err)
	}
	if len(repo.rows) != 1 {
		t.Fatalf("rows=%d", len(repo.rows))
	}
}

func TestAppendTurns_RequiresCallID(t *testing.T) {
	_, err := NewConversationService(&fakeConvoRepo{}).AppendTurns(context.Background(), "", []models.Turn{{Role: models.RoleCaller, Text: "x"}})
	if !utils.IsCode(err, utils.CodeInvalidArgument) {
		t.Fatalf("err=%v", err)
	}
}

type fakeUploader struct {
	name string
	body string
	err  error
}

func (u *fakeUploader) Upload(_ context.Context, objectName, _ string, r io.Reader) (string, error) {
	if u.err != nil {
		return "", u.err
	}
	b, _ := io.ReadAll(r)
	u.name, u.body = objectName, string(b)
	return "gs://bucket/" + objectName, nil
}

func TestArchive_UploadsTranscript(t *testing.T) {
	up := &fakeUploader{}
	svc := NewArchiveService(up, nil)

	path, err := svc.Archive(context.Background(), "call-9", []models.Turn{{Role: models.RoleCaller, Text: "hello"}})
	if err != nil {
		t.Fatalf("Archive: %v", err)
	}
	if path != "gs://bucket/transcripts/call-9.json" {
		t.Fatalf("path=%s", path)
	}
	var tr Transcript
	if err := json.Unmarshal([]byte(up.body), &tr); err != nil {
		t.Fatalf("body: %v", err)
	}
	if tr.CallID != "call-9" || len(tr.Turns) != 1 || tr.Turns[0].Text != "hello" {
		t.Fatalf("transcript=%+v", tr)
	}

	if _, err := svc.URL(context.Background(), "call-9"); !utils.IsCode(err, utils.CodeUnavailable) {
		t.Fatalf("URL without signer: %v", err)
	}
}

type fakeCalls struct {
	ended    []string
	attached []string
	endErr   error
}

func (f *fakeCalls) Start(_ context.Context, callID, model, voice string, at time.Time) (*models.Call, error) {
	return &models.Call{CallID: callID, Model: model, Voice: voice, CreatedAt: at}, nil
}
func (f *fakeCalls) Get(context.Context, string) (*models.Call, error) { return nil, nil }
func (f *fakeCalls) End(_ context.Context, callID, reason string, _ int, _ time.Time) error {
	f.ended = append(f.ended, callID+":"+reason)
	return f.endErr
}
func (f *fakeCalls) AttachComplaint(_ context.Context, callID, complaintID string) error {
	f.attached = append(f.attached, callID+":"+complaintID)
	return nil
}
func (f *fakeCalls) ListRecent(context.Context, int64) ([]models.Call, error) { return nil, nil }

func TestJournal_CallEndedAttemptsBoth(t *testing.T) {
	calls := &fakeCalls{endErr: errors.New("mongo down")}
	up := &fakeUploader{}
	j := &CallJournal{Calls: calls, Archive: NewArchiveService(up, nil), Logger: logger.Discard()}

	err := j.CallEnded(context.Background(), "call-3", "auto_end", nil, time.Now())
	if err == nil || !strings.Contains(err.Error(), "mongo down") {
		t.Fatalf("err=%v", err)
	}
	if len(calls.ended) != 1 || calls.ended[0] != "call-3:auto_end" {
		t.Fatalf("ended=%v", calls.ended)
	}
	if up.name != "transcripts/call-3.json" {
		t.Fatalf("archive not attempted")
	}
}

func TestJournal_NilMembersAreSkipped(t *testing.T) {
	j := &CallJournal{}
	ctx := context.Background()
	if err := j.CallStarted(ctx, "c", "m", "v", time.Now()); err != nil {
		t.Fatal(err)
	}
	if err := j.TurnsCompleted(ctx, "c", []models.Turn{{Role: models.RoleCaller, Text: "x"}}); err != nil {
		t.Fatal(err)
	}
	if err := j.ComplaintExtracted(ctx, "c", models.Complaint{ID: "SIG-1"}); err != nil {
		t.Fatal(err)
	}
	if err := j.CallEnded(ctx, "c", "user", nil, time.Now()); err != nil {
		t.Fatal(err)
	}
}

type fakeComplaintRepo struct {
	rows  map[string]*models.ComplaintDelivery
	order []string
	gets  int
	marks []string
}

func (r *fakeComplaintRepo) UpsertPending(_ context.Context, callID string, c models.Complaint) error {
	if r.rows == nil {
		r.rows = map[string]*models.ComplaintDelivery{}
	}
	key := callID + "/" + c.ID
	if _, ok := r.rows[key]; ok {
		return nil
	}
	r.rows[key] = &models.ComplaintDelivery{CallID: callID, Complaint: c, DeliveryStatus: models.DeliveryPending}
	r.order = append(r.order, key)
	return nil
}
func (r *fakeComplaintRepo) MarkAttempt(_ context.Context, callID, id, status, _ string) error {
	r.marks = append(r.marks, callID+"/"+id+":"+status)
	if row, ok := r.rows[callID+"/"+id]; ok {
		row.DeliveryStatus = status
	}
	return nil
}
func (r *fakeComplaintRepo) Get(_ context.Context, callID, id string) (*models.ComplaintDelivery, error) {
	r.gets++
	row, ok := r.rows[callID+"/"+id]
	if !ok {
		return nil, utils.ErrNotFound
	}
	cp := *row
	return &cp, nil
}
func (r *fakeComplaintRepo) ListByComplaintID(_ context.Context, id string, _ int64) ([]models.ComplaintDelivery, error) {
	var out []models.ComplaintDelivery
	for _, key := range r.order {
		if row := r.rows[key]; row.Complaint.ID == id {
			out = append(out, *row)
		}
	}
	return out, nil
}
func (r *fakeComplaintRepo) ListByStatus(context.Context, string, int64) ([]models.ComplaintDelivery, error) {
	return nil, nil
}

type memCache struct {
	data map[string][]byte
}

func (m *memCache) GetJSON(_ context.Context, key string, dst any) (bool, error) {
	b, ok := m.data[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(b, dst)
}
func (m *memCache) SetJSON(_ context.Context, key string, val any, _ time.Duration) error {
	b, err := json.Marshal(val)
	m.data[key] = b
	return err
}
func (m *memCache) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}
func (m *memCache) Claim(_ context.Context, key string, _ time.Duration) (bool, error) {
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = []byte("1")
	return true, nil
}

func TestComplaintService_CacheAside(t *testing.T) {
	repo := &fakeComplaintRepo{}
	mc := &memCache{data: map[string][]byte{}}
	svc := NewComplaintService(repo, mc, logger.Discard())
	ctx := context.Background()

	if err := svc.Pending(ctx, "call-1", models.Complaint{ID: "SIG-7"}); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		d, err := svc.Get(ctx, "call-1", "SIG-7")
		if err != nil || d.Complaint.ID != "SIG-7" {
			t.Fatalf("Get: %+v %v", d, err)
		}
	}
	if repo.gets != 1 {
		t.Fatalf("repo reads=%d, want 1", repo.gets)
	}

	if err := svc.MarkDelivered(ctx, "call-1", "SIG-7"); err != nil {
		t.Fatal(err)
	}
	if _, ok := mc.data["complaint:call-1:SIG-7"]; ok {
		t.Fatalf("cache not invalidated")
	}
	if len(repo.marks) != 1 || repo.marks[0] != "call-1/SIG-7:delivered" {
		t.Fatalf("marks=%v", repo.marks)
	}
}

func TestComplaintService_NotFound(t *testing.T) {
	svc := NewComplaintService(&fakeComplaintRepo{}, nil, logger.Discard())
	if _, err := svc.Get(context.Background(), "call-1", "SIG-0"); !utils.IsCode(err, utils.CodeNotFound) {
		t.Fatalf("err=%v", err)
	}
	if _, err := svc.ListByComplaintID(context.Background(), "SIG-0", 10); !utils.IsCode(err, utils.CodeNotFound) {
		t.Fatalf("err=%v", err)
	}
	if err := svc.Pending(context.Background(), "c", models.Complaint{}); !utils.IsCode(err, utils.CodeInvalidArgument) {
		t.Fatalf("err=%v", err)
	}
}

func TestComplaintService_SameNumberInTwoCalls(t *testing.T) {
	repo := &fakeComplaintRepo{}
	svc := NewComplaintService(repo, &memCache{data: map[string][]byte{}}, logger.Discard())
	ctx := context.Background()

	if err := svc.Pending(ctx, "call-A", models.Complaint{ID: "SIG-4821", Category: "Pipeline Burst"}); err != nil {
		t.Fatal(err)
	}
	if err := svc.Pending(ctx, "call-B", models.Complaint{ID: "SIG-4821", Category: "Open Manhole"}); err != nil {
		t.Fatal(err)
	}
	if err := svc.MarkFailed(ctx, "call-B", "SIG-4821", errors.New("sink answered 502")); err != nil {
		t.Fatal(err)
	}

	a, err := svc.Get(ctx, "call-A", "SIG-4821")
	if err != nil || a.Complaint.Category != "Pipeline Burst" || a.DeliveryStatus != models.DeliveryPending {
		t.Fatalf("call-A row: %+v %v", a, err)
	}
	b, err := svc.Get(ctx, "call-B", "SIG-4821")
	if err != nil || b.Complaint.Category != "Open Manhole" || b.DeliveryStatus != models.DeliveryFailed {
		t.Fatalf("call-B row: %+v %v", b, err)
	}

	rows, err := svc.ListByComplaintID(ctx, "SIG-4821", 10)
	if err != nil || len(rows) != 2 {
		t.Fatalf("rows=%d err=%v", len(rows), err)
	}
}
