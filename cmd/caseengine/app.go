package main

import (
	"context"
	"fmt"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/gpnet/caseengine/internal/config"
	"github.com/gpnet/caseengine/internal/domain/allocation"
	"github.com/gpnet/caseengine/internal/domain/casefile"
	"github.com/gpnet/caseengine/internal/domain/compliance"
	"github.com/gpnet/caseengine/internal/domain/disclosure"
	"github.com/gpnet/caseengine/internal/domain/evidence"
	"github.com/gpnet/caseengine/internal/domain/organization"
	"github.com/gpnet/caseengine/internal/domain/risk"
	"github.com/gpnet/caseengine/internal/platform/auth"
	"github.com/gpnet/caseengine/internal/platform/db"
	"github.com/gpnet/caseengine/internal/platform/intake"
	"github.com/gpnet/caseengine/internal/platform/notification"
	"github.com/gpnet/caseengine/internal/platform/sweep"
)

const (
	sweepActor            = "system:sweep"
	notificationRetryTick = 5 * time.Minute
)

// app holds the wired services shared by the server and the one-shot sweep
// commands.
type app struct {
	cases        *casefile.Service
	caseRepo     casefile.Repository
	organization *organization.Service
	evidence     *evidence.Service
	evidenceRepo evidence.Repository
	risk         *risk.Service
	compliance   *compliance.Service
	allocation   *allocation.Service
	notifier     *notification.Manager

	s3 *s3.Client
}

func newApp(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool, logger zerolog.Logger) *app {
	tx := db.NewTxManager(pool)

	caseRepo := casefile.NewRepoPG(pool)
	evidenceRepo := evidence.NewRepoPG(pool)
	orgRepo := organization.NewRepoPG(pool)
	riskRepo := risk.NewRepoPG(pool)
	complianceRepo := compliance.NewRepoPG(pool)
	allocationRepo := allocation.NewRepoPG(pool)

	a := &app{evidenceRepo: evidenceRepo, caseRepo: caseRepo}
	a.s3, a.notifier = newDelivery(ctx, cfg, logger)

	a.cases = casefile.NewService(caseRepo)
	a.organization = organization.NewService(orgRepo)
	a.evidence = evidence.NewService(evidenceRepo)

	engine := risk.NewEngine(evidence.NewClassifier(logger), a.organization, logger)
	a.risk = risk.NewService(engine, riskRepo, caseRepo, evidenceRepo, tx, logger)
	a.risk.SetConcurrency(cfg.SweepConcurrency)
	a.evidence.OnRecord(a.risk.EvidenceArrived)

	a.allocation = allocation.NewService(allocationRepo, caseRepo, tx, weightsFrom(cfg.Allocation), a.notifier, logger)
	a.allocation.SetConcurrency(cfg.SweepConcurrency)

	a.compliance = compliance.NewService(complianceRepo, caseRepo, tx, a.notifier, a.allocation, logger)
	a.compliance.SetConcurrency(cfg.SweepConcurrency)
	a.cases.OnCreate(a.compliance.CaseCreated)

	return a
}

// newDelivery picks the notification transport. SQS is used when a queue is
// configured and reachable; otherwise notifications are only logged. The S3
// client is returned for document resolution and may be nil.
func newDelivery(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*s3.Client, *notification.Manager) {
	var (
		sender   notification.Sender = notification.NewLogSender(logger)
		s3Client *s3.Client
	)
	if cfg.NotifyQueueName != "" || cfg.DocumentBucket != "" {
		s3c, sqsc, err := newAWSClients(ctx)
		if err != nil {
			logger.Warn().Err(err).Msg("aws config unavailable, falling back to log delivery")
		} else {
			s3Client = s3c
			if cfg.NotifyQueueName != "" {
				sqsSender, err := notification.NewSQSSender(ctx, sqsc, cfg.NotifyQueueName, cfg.NotifyFrom)
				if err != nil {
					logger.Warn().Err(err).Str("queue", cfg.NotifyQueueName).Msg("notification queue unavailable, falling back to log delivery")
				} else {
					sender = sqsSender
				}
			}
		}
	}
	return s3Client, notification.NewManager(sender, notification.NewTemplateEngine(), logger)
}

func newAWSClients(ctx context.Context) (*s3.Client, *sqs.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("load aws config: %w", err)
	}

	s3Client := s3.New(s3.Options{
		Region:       cfg.Region,
		Credentials:  cfg.Credentials,
		HTTPClient:   cfg.HTTPClient,
		BaseEndpoint: cfg.BaseEndpoint,
		UsePathStyle: true,
	})
	sqsClient := sqs.New(sqs.Options{
		Region:       cfg.Region,
		Credentials:  cfg.Credentials,
		HTTPClient:   cfg.HTTPClient,
		BaseEndpoint: cfg.BaseEndpoint,
	})
	return s3Client, sqsClient, nil
}

func weightsFrom(c config.Allocation) allocation.Weights {
	return allocation.Weights{
		BaseScore: c.BaseScore,
		Priority: map[casefile.Priority]float64{
			casefile.PriorityUrgent: c.PriorityUrgent,
			casefile.PriorityHigh:   c.PriorityHigh,
			casefile.PriorityMedium: c.PriorityMedium,
			casefile.PriorityLow:    c.PriorityLow,
		},
		SpecializationBonus:   c.SpecializationBonus,
		CompanyBonus:          c.CompanyBonus,
		MaxCaseload:           c.MaxCaseload,
		BalanceWeight:         c.BalanceWeight,
		ResponseWeight:        c.ResponseWeight,
		ResponseCeilingDays:   c.ResponseCeilingDays,
		AvailabilityThreshold: c.AvailabilityThreshold,
		RebalanceSpread:       c.RebalanceSpread,
		RebalanceMaxMoves:     c.RebalanceMaxMoves,
	}
}

func (a *app) registerRoutes(api *echo.Group, logger zerolog.Logger) {
	casefile.NewHandler(a.cases).RegisterRoutes(api)
	organization.NewHandler(a.organization).RegisterRoutes(api)
	evidence.NewHandler(a.evidence).RegisterRoutes(api)
	risk.NewHandler(a.risk).RegisterRoutes(api)
	disclosure.NewHandler(a.risk, a.evidenceRepo, a.caseRepo, logger).RegisterRoutes(api)
	compliance.NewHandler(a.compliance).RegisterRoutes(api)
	allocation.NewHandler(a.allocation).RegisterRoutes(api)
	notification.NewHandler(a.notifier).RegisterRoutes(api)
}

// jobs returns the periodic sweeps keyed by the name used on the command line.
// Each service logs its own sweep summary.
func (a *app) jobs(cfg *config.Config) []sweep.Job {
	return []sweep.Job{
		{
			Name:     "overdue",
			Interval: cfg.OverdueSweepInterval,
			Run: func(ctx context.Context) error {
				_, err := a.compliance.SweepOverdue(ctx)
				return err
			},
		},
		{
			Name:     "rebalance",
			Interval: cfg.RebalanceInterval,
			Run: func(ctx context.Context) error {
				_, err := a.allocation.Rebalance(ctx)
				return err
			},
		},
		{
			Name:     "reassess",
			Interval: cfg.ReassessSweepInterval,
			Run: func(ctx context.Context) error {
				_, err := a.risk.ReassessDue(ctx)
				return err
			},
		},
		{
			Name:     "notification-retry",
			Interval: notificationRetryTick,
			Run: func(ctx context.Context) error {
				a.notifier.RetryFailed(ctx)
				return nil
			},
		},
	}
}

func findJob(jobs []sweep.Job, name string) (sweep.Job, bool) {
	for _, j := range jobs {
		if j.Name == name {
			return j, true
		}
	}
	return sweep.Job{}, false
}

// sweepContext carries the identity sweeps act under.
func sweepContext(ctx context.Context) context.Context {
	return auth.WithIdentity(ctx, sweepActor, "", []string{auth.RoleAdmin})
}

// newConsumer builds the evidence intake consumer. Document signals are
// resolved against S3 when a bucket and client are available.
func (a *app) newConsumer(cfg *config.Config, logger zerolog.Logger) *intake.Consumer {
	var docs intake.DocumentStore
	if cfg.DocumentBucket != "" && a.s3 != nil {
		docs = intake.NewS3DocumentStore(a.s3, cfg.DocumentBucket)
	}
	reader := intake.NewKafkaReader(cfg.KafkaBrokers, cfg.KafkaEvidenceTopic, cfg.KafkaGroupID)
	return intake.NewConsumer(reader, a.evidence, docs, logger)
}
