package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crestpointmarketing/eventra-app-sub000/internal/drafts"
	"github.com/crestpointmarketing/eventra-app-sub000/pkg/logging"
)

type fakeAssembler struct {
	err  error
	reqs []drafts.BatchRequest
}

func (f *fakeAssembler) AssembleBatch(_ context.Context, req drafts.BatchRequest) (*drafts.BatchResult, error) {
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return nil, f.err
	}
	items := make([]drafts.BatchItem, len(req.LeadIDs))
	for i, id := range req.LeadIDs {
		items[i] = drafts.BatchItem{LeadID: id, TemplateID: req.TemplateID, Status: 200, Draft: &drafts.Draft{LeadID: id}}
	}
	return &drafts.BatchResult{Items: items, Succeeded: len(items)}, nil
}

type fakeStore struct {
	err     error
	objects map[string][]byte
}

func (f *fakeStore) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	if f.objects == nil {
		f.objects = map[string][]byte{}
	}
	f.objects[aws.ToString(in.Key)] = body
	return &s3.PutObjectOutput{}, nil
}

func newTestHandler(a *fakeAssembler, s *fakeStore) *handler {
	return &handler{drafts: a, store: s, bucket: "drafts", logger: logging.New("error")}
}

func sqsRecord(id, body string) events.SQSMessage {
	return events.SQSMessage{MessageId: id, Body: body}
}

func TestHandleStoresBatchResult(t *testing.T) {
	a := &fakeAssembler{}
	s := &fakeStore{}
	h := newTestHandler(a, s)

	resp, err := h.handle(context.Background(), events.SQSEvent{Records: []events.SQSMessage{
		sqsRecord("m-1", `{"job_id":"job-1","lead_ids":["l1","l2"],"template_id":"auto"}`),
		sqsRecord("m-2", `{"lead_ids":["l3"],"template_id":"tpl-9"}`),
	}})
	require.NoError(t, err)
	assert.Empty(t, resp.BatchItemFailures)

	require.Contains(t, s.objects, "batches/job-1.json")
	require.Contains(t, s.objects, "batches/m-2.json")
	var res drafts.BatchResult
	require.NoError(t, json.Unmarshal(s.objects["batches/job-1.json"], &res))
	assert.Equal(t, 2, res.Succeeded)
	assert.Equal(t, "l2", res.Items[1].LeadID)
}

func TestHandleDropsInvalidJobs(t *testing.T) {
	a := &fakeAssembler{}
	h := newTestHandler(a, &fakeStore{})

	resp, err := h.handle(context.Background(), events.SQSEvent{Records: []events.SQSMessage{
		sqsRecord("m-1", `not json`),
		sqsRecord("m-2", `{"lead_ids":[],"template_id":"tpl"}`),
		sqsRecord("m-3", `{"lead_ids":["l1"],"template_id":"tpl","surprise":true}`),
	}})
	require.NoError(t, err)
	assert.Empty(t, resp.BatchItemFailures)
	assert.Empty(t, a.reqs)
}

func TestHandleReportsTransientFailures(t *testing.T) {
	a := &fakeAssembler{}
	s := &fakeStore{err: errors.New("slow down")}
	h := newTestHandler(a, s)

	resp, err := h.handle(context.Background(), events.SQSEvent{Records: []events.SQSMessage{
		sqsRecord("m-1", `{"lead_ids":["l1"],"template_id":"tpl"}`),
	}})
	require.NoError(t, err)
	require.Len(t, resp.BatchItemFailures, 1)
	assert.Equal(t, "m-1", resp.BatchItemFailures[0].ItemIdentifier)

	a.err = context.DeadlineExceeded
	s.err = nil
	resp, err = h.handle(context.Background(), events.SQSEvent{Records: []events.SQSMessage{
		sqsRecord("m-2", `{"lead_ids":["l1"],"template_id":"tpl"}`),
	}})
	require.NoError(t, err)
	require.Len(t, resp.BatchItemFailures, 1)
	assert.Equal(t, "m-2", resp.BatchItemFailures[0].ItemIdentifier)
}
