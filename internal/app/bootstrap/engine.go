package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/crestpointmarketing/eventra-app-sub000/internal/activity"
	appconfig "github.com/crestpointmarketing/eventra-app-sub000/internal/config"
	"github.com/crestpointmarketing/eventra-app-sub000/internal/drafts"
	"github.com/crestpointmarketing/eventra-app-sub000/internal/leads"
	"github.com/crestpointmarketing/eventra-app-sub000/internal/llm"
	"github.com/crestpointmarketing/eventra-app-sub000/internal/observability/metrics"
	"github.com/crestpointmarketing/eventra-app-sub000/internal/recommend"
	"github.com/crestpointmarketing/eventra-app-sub000/internal/templates"
	"github.com/crestpointmarketing/eventra-app-sub000/pkg/logging"
)

const notifyTimeout = 5 * time.Second

// Deps are the optional infrastructure handles. Any nil field selects the
// in-process implementation for that concern.
type Deps struct {
	Pool    *pgxpool.Pool
	SQLDB   *sql.DB
	Redis   *redis.Client
	AWS     *aws.Config
	LLM     *llm.Guarded
	Metrics *metrics.EngineMetrics
}

// Engine is the wired service graph shared by the API and the batch lambda.
type Engine struct {
	Templates *templates.Service
	Leads     leads.Repository
	Signals   activity.SignalSource
	Notifier  *activity.Notifier
	Recommend *recommend.Service
	Drafts    *drafts.Service
	Seeded    int
}

// BuildEngine wires template store, lead source, activity timeline,
// recommendation and draft services, then ensures the system templates exist.
func BuildEngine(ctx context.Context, cfg *appconfig.Config, deps Deps, logger *logging.Logger) (*Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	var tmplRepo templates.Repository = templates.NewInMemoryRepository()
	if deps.Pool != nil {
		tmplRepo = templates.NewPostgresRepository(deps.Pool)
	}
	if deps.Redis != nil {
		tmplRepo = templates.NewCachedRepository(tmplRepo, deps.Redis, cfg.TemplateCacheTTL, logger)
	}
	tmplOpts := []templates.Option{templates.WithMetrics(deps.Metrics)}
	if deps.AWS != nil && cfg.TemplateSnapshotBucket != "" {
		tmplOpts = append(tmplOpts, templates.WithSnapshotter(
			templates.NewS3Snapshotter(s3.NewFromConfig(*deps.AWS), cfg.TemplateSnapshotBucket, logger),
		))
	}
	tmplSvc := templates.NewService(tmplRepo, logger, tmplOpts...)

	seeds, err := templates.LoadSeeds(cfg.SystemTemplatesPath)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: load system templates: %w", err)
	}
	seeded, err := tmplSvc.EnsureSystemTemplates(ctx, seeds)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: seed system templates: %w", err)
	}
	if seeded > 0 {
		logger.Info("system templates created", "count", seeded)
	}

	var leadRepo leads.Repository = leads.NewInMemoryRepository()
	if deps.SQLDB != nil {
		leadRepo = leads.NewPostgresRepository(deps.SQLDB)
	}

	var timeline activity.Timeline = activity.NewMemoryTimeline()
	if deps.AWS != nil && cfg.ActivityTable != "" {
		timeline = activity.NewDynamoTimeline(dynamodb.NewFromConfig(*deps.AWS), cfg.ActivityTable, logger)
	}
	recorders := activity.Fanout{timeline}
	if deps.AWS != nil && cfg.ActivityQueueURL != "" {
		recorders = append(recorders, activity.NewSQSPublisher(sqs.NewFromConfig(*deps.AWS), cfg.ActivityQueueURL))
	}
	notifier := activity.NewNotifier(recorders, notifyTimeout, logger)

	recOpts := []recommend.Option{recommend.WithMetrics(deps.Metrics)}
	if deps.LLM != nil && cfg.LLMScoringEnabled {
		recOpts = append(recOpts, recommend.WithScorer(recommend.NewLLMScorer(deps.LLM, cfg.BedrockModelID)))
	}
	recSvc := recommend.NewService(leadRepo, tmplSvc, timeline, recommend.Config{
		SendThreshold:       cfg.SendThreshold,
		WaitThreshold:       cfg.WaitThreshold,
		RecentContactWindow: cfg.RecentContactWindow,
		AIWeight:            cfg.AIScoreWeight,
	}, logger, recOpts...)

	draftOpts := []drafts.Option{
		drafts.WithRecommender(recSvc),
		drafts.WithNotifier(notifier),
		drafts.WithMetrics(deps.Metrics),
	}
	if deps.Redis != nil {
		draftOpts = append(draftOpts, drafts.WithSendGuard(drafts.NewRedisSendGuard(deps.Redis)))
	}
	if deps.LLM != nil {
		draftOpts = append(draftOpts, drafts.WithPolisher(drafts.NewPolisher(deps.LLM, cfg.BedrockModelID)))
	}
	draftSvc := drafts.NewService(tmplSvc, leadRepo, drafts.Config{
		Separator:        cfg.BlockSeparator,
		BatchConcurrency: cfg.BatchConcurrency,
		SendTTL:          cfg.SendIdempotencyTTL,
	}, logger, draftOpts...)

	return &Engine{
		Templates: tmplSvc,
		Leads:     leadRepo,
		Signals:   timeline,
		Notifier:  notifier,
		Recommend: recSvc,
		Drafts:    draftSvc,
		Seeded:    seeded,
	}, nil
}
