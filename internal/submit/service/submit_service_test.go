package service

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"

	"conqueroj/internal/common/mq"
	"conqueroj/internal/common/storage"
	"conqueroj/internal/judge/model"
	pkgerrors "conqueroj/pkg/errors"
)

type fakeStore struct {
	problems map[string]bool
	created  []*model.Submission
}

func (f *fakeStore) ProblemExists(ctx context.Context, problemID string) (bool, error) {
	return f.problems[problemID], nil
}

func (f *fakeStore) CreateSubmission(ctx context.Context, sub *model.Submission) error {
	f.created = append(f.created, sub)
	return nil
}

func (f *fakeStore) GetSubmission(ctx context.Context, submissionID string) (*model.Submission, error) {
	for _, sub := range f.created {
		if sub.ID == submissionID {
			return sub, nil
		}
	}
	return nil, pkgerrors.Newf(pkgerrors.SubmissionNotFound, "submission %s not found", submissionID)
}

type fakeStorage struct {
	objects map[string]string
	putErr  error
}

func (f *fakeStorage) PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, contentType string) error {
	if f.putErr != nil {
		return f.putErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if f.objects == nil {
		f.objects = map[string]string{}
	}
	f.objects[key] = string(data)
	return nil
}

func (f *fakeStorage) GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	body, ok := f.objects[key]
	if !ok {
		return nil, pkgerrors.Newf(pkgerrors.StorageError, "object %s not found", key)
	}
	return io.NopCloser(strings.NewReader(body)), nil
}

func (f *fakeStorage) StatObject(ctx context.Context, bucket, key string) (storage.ObjectStat, error) {
	return storage.ObjectStat{}, nil
}

func (f *fakeStorage) EnsureBucket(ctx context.Context, bucket string) error {
	return nil
}

type fakeProducer struct {
	published []publishedMessage
	err       error
}

type publishedMessage struct {
	topic string
	msg   *mq.Message
}

func (f *fakeProducer) Publish(ctx context.Context, topic string, message *mq.Message) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, publishedMessage{topic, message})
	return nil
}

func newTestSubmitService(store *fakeStore, objects *fakeStorage, producer *fakeProducer) *SubmitService {
	return NewSubmitService(store, objects, producer, nil, Config{
		Topic:  "judge.submissions",
		Bucket: "submissions",
	})
}

func validInput() SubmitInput {
	return SubmitInput{
		UserID:     "user-1",
		ProblemID:  "prob-1",
		Language:   "Python",
		SourceCode: "print(3)",
	}
}

func TestSubmitHappyPath(t *testing.T) {
	store := &fakeStore{problems: map[string]bool{"prob-1": true}}
	objects := &fakeStorage{}
	producer := &fakeProducer{}

	svc := newTestSubmitService(store, objects, producer)
	result, err := svc.Submit(context.Background(), validInput())
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if result.Status != model.StatusPending {
		t.Fatalf("expected Pending, got %s", result.Status)
	}

	if len(store.created) != 1 {
		t.Fatalf("expected 1 row created, got %d", len(store.created))
	}
	sub := store.created[0]
	if sub.ID != result.SubmissionID {
		t.Fatalf("expected returned id to match row id")
	}
	if sub.Language != "python" {
		t.Fatalf("expected language normalized, got %s", sub.Language)
	}
	if got := objects.objects[sub.SourceKey]; got != "print(3)" {
		t.Fatalf("expected source stored under %s, got %q", sub.SourceKey, got)
	}

	if len(producer.published) != 1 {
		t.Fatalf("expected 1 publish, got %d", len(producer.published))
	}
	pub := producer.published[0]
	if pub.topic != "judge.submissions" {
		t.Fatalf("expected judge topic, got %s", pub.topic)
	}
	var payload model.JudgeMessage
	if err := json.Unmarshal(pub.msg.Body, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.SubmissionID != sub.ID {
		t.Fatalf("expected payload to carry submission id")
	}
}

func TestSubmitRejectsMissingFields(t *testing.T) {
	svc := newTestSubmitService(&fakeStore{}, &fakeStorage{}, &fakeProducer{})

	input := validInput()
	input.SourceCode = "   "
	if _, err := svc.Submit(context.Background(), input); !pkgerrors.Is(err, pkgerrors.ValidationFailed) {
		t.Fatalf("expected validation failure, got %v", err)
	}
}

func TestSubmitRejectsOversizedSource(t *testing.T) {
	store := &fakeStore{problems: map[string]bool{"prob-1": true}}
	svc := NewSubmitService(store, &fakeStorage{}, &fakeProducer{}, nil, Config{
		Topic:          "judge.submissions",
		Bucket:         "submissions",
		MaxSourceBytes: 8,
	})

	input := validInput()
	input.SourceCode = "print('way too long')"
	if _, err := svc.Submit(context.Background(), input); !pkgerrors.Is(err, pkgerrors.SubmissionTooLarge) {
		t.Fatalf("expected too-large rejection, got %v", err)
	}
}

func TestSubmitUnknownProblem(t *testing.T) {
	svc := newTestSubmitService(&fakeStore{problems: map[string]bool{}}, &fakeStorage{}, &fakeProducer{})

	if _, err := svc.Submit(context.Background(), validInput()); !pkgerrors.Is(err, pkgerrors.ProblemNotFound) {
		t.Fatalf("expected problem-not-found, got %v", err)
	}
}

func TestSubmitPublishFailureSurfacesQueueError(t *testing.T) {
	store := &fakeStore{problems: map[string]bool{"prob-1": true}}
	producer := &fakeProducer{err: pkgerrors.Newf(pkgerrors.QueueConnectError, "broker down")}

	svc := newTestSubmitService(store, &fakeStorage{}, producer)
	_, err := svc.Submit(context.Background(), validInput())
	if !pkgerrors.Is(err, pkgerrors.QueueError) {
		t.Fatalf("expected queue error, got %v", err)
	}
	// The row is still there: it can be re-enqueued without a resubmit.
	if len(store.created) != 1 {
		t.Fatalf("expected row kept on publish failure, got %d", len(store.created))
	}
}

func TestGetSourceRoundTrip(t *testing.T) {
	store := &fakeStore{problems: map[string]bool{"prob-1": true}}
	objects := &fakeStorage{}
	svc := newTestSubmitService(store, objects, &fakeProducer{})

	result, err := svc.Submit(context.Background(), validInput())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	source, err := svc.GetSource(context.Background(), result.SubmissionID)
	if err != nil {
		t.Fatalf("get source: %v", err)
	}
	if source != "print(3)" {
		t.Fatalf("expected original source back, got %q", source)
	}
}
