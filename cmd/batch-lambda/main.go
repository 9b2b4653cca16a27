package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/crestpointmarketing/eventra-app-sub000/cmd/mainconfig"
	"github.com/crestpointmarketing/eventra-app-sub000/internal/app/bootstrap"
	"github.com/crestpointmarketing/eventra-app-sub000/internal/apperr"
	appconfig "github.com/crestpointmarketing/eventra-app-sub000/internal/config"
	"github.com/crestpointmarketing/eventra-app-sub000/internal/drafts"
	"github.com/crestpointmarketing/eventra-app-sub000/internal/http/respond"
	"github.com/crestpointmarketing/eventra-app-sub000/pkg/logging"
)

// job is one SQS message body.
type job struct {
	JobID string `json:"job_id"`
	drafts.BatchRequest
}

type batchAssembler interface {
	AssembleBatch(ctx context.Context, req drafts.BatchRequest) (*drafts.BatchResult, error)
}

type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type handler struct {
	drafts batchAssembler
	store  objectPutter
	bucket string
	logger *logging.Logger
}

func main() {
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	ctx := context.Background()

	bucket := strings.TrimSpace(os.Getenv("DRAFTS_BUCKET"))
	if bucket == "" {
		logger.Error("DRAFTS_BUCKET is required")
		os.Exit(1)
	}

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}
	pool, sqlDB, err := bootstrap.BuildPostgres(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to connect postgres", "error", err)
		os.Exit(1)
	}
	guarded, closeLLM, err := bootstrap.BuildLLM(ctx, cfg, &awsCfg, nil, logger)
	if err != nil {
		logger.Error("failed to build language model client", "error", err)
		os.Exit(1)
	}
	defer closeLLM()

	engine, err := bootstrap.BuildEngine(ctx, cfg, bootstrap.Deps{
		Pool:  pool,
		SQLDB: sqlDB,
		Redis: bootstrap.BuildRedisClient(ctx, cfg, logger, true),
		AWS:   &awsCfg,
		LLM:   guarded,
	}, logger)
	if err != nil {
		logger.Error("failed to build engine", "error", err)
		os.Exit(1)
	}

	h := &handler{
		drafts: engine.Drafts,
		store:  s3.NewFromConfig(awsCfg),
		bucket: bucket,
		logger: logger.Component("batch-lambda"),
	}
	lambda.Start(h.handle)
}

// handle processes each record independently. Records that fail for a
// transient reason are reported back so SQS redelivers only those; a
// malformed record is logged and dropped.
func (h *handler) handle(ctx context.Context, evt events.SQSEvent) (events.SQSEventResponse, error) {
	var resp events.SQSEventResponse
	for _, record := range evt.Records {
		if err := h.process(ctx, record); err != nil {
			if errors.Is(err, apperr.ErrValidation) {
				h.logger.Warn("dropping invalid batch job", "message_id", record.MessageId, "error", err)
				continue
			}
			h.logger.Error("batch job failed", "message_id", record.MessageId, "error", err)
			resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{ItemIdentifier: record.MessageId})
		}
	}
	return resp, nil
}

func (h *handler) process(ctx context.Context, record events.SQSMessage) error {
	var j job
	dec := json.NewDecoder(strings.NewReader(record.Body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&j); err != nil {
		return apperr.Validation("batch: decode", apperr.Issue{Message: err.Error()})
	}
	if err := respond.Struct(j.BatchRequest); err != nil {
		return err
	}
	if j.JobID == "" {
		j.JobID = record.MessageId
	}

	res, err := h.drafts.AssembleBatch(ctx, j.BatchRequest)
	if err != nil {
		return err
	}
	body, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("batch: marshal result: %w", err)
	}
	key := resultKey(j.JobID)
	if _, err := h.store.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(h.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	}); err != nil {
		return fmt.Errorf("batch: put %s: %w", key, err)
	}
	h.logger.Info("batch job stored", "job_id", j.JobID, "key", key, "succeeded", res.Succeeded, "failed", res.Failed)
	return nil
}

func resultKey(jobID string) string {
	return "batches/" + jobID + ".json"
}
