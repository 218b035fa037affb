package factory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"lostfound-api/internal/audit"
	"lostfound-api/internal/bucketing"
	"lostfound-api/internal/client"
	"lostfound-api/internal/config"
	"lostfound-api/internal/delivery"
	"lostfound-api/internal/hashing"
	"lostfound-api/internal/model"
	"lostfound-api/internal/otp"
	"lostfound-api/internal/repository/redis"
	"lostfound-api/internal/repository/scylla"
	"lostfound-api/internal/service"
	"lostfound-api/internal/util"
)

// Factory manages the lifecycle of all application dependencies
type Factory struct {
	config *config.Config

	// Clients
	redisClient      *client.RedisClient
	scyllaClient     *scylla.ScyllaClient
	kafkaProducer    *client.KafkaProducer
	clickhouseClient *client.ClickHouseClient

	// Managers
	hasher           *hashing.Hasher
	generator        *otp.Generator
	bucketingManager *bucketing.Manager
	sender           model.CodeSender
	recorder         *audit.Recorder

	// Repositories
	collegeRepository model.CollegeRepository
	guestRepository   model.GuestRepository
	cooldownCache     model.CooldownCache

	serviceFactory *service.ServiceFactory

	closeOnce sync.Once
	closed    chan struct{}
}

// NewFactory creates and initializes all application dependencies
func NewFactory() (*Factory, error) {
	cfg := config.LoadConfig()

	util.Init(cfg.Environment, cfg.Logging.Level, cfg.Logging.Format)

	factory := &Factory{
		config: cfg,
		closed: make(chan struct{}),
	}

	if err := factory.initializeClients(); err != nil {
		return nil, fmt.Errorf("failed to initialize clients: %w", err)
	}

	factory.initializeManagers()

	util.Info("Factory initialized successfully",
		util.String("environment", cfg.Environment),
		util.Bool("kafka_enabled", factory.kafkaProducer != nil),
		util.Bool("clickhouse_enabled", factory.clickhouseClient != nil),
	)

	return factory, nil
}

// initializeClients initializes external service clients concurrently.
// Required clients (Scylla, Redis) fail startup in production; optional
// sinks (Kafka, ClickHouse) degrade to warnings.
func (f *Factory) initializeClients() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var (
		mu         sync.Mutex
		initErrors []error
	)
	addError := func(err error) {
		mu.Lock()
		initErrors = append(initErrors, err)
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		redisClient, err := client.NewRedisClient(f.config)
		if err != nil {
			addError(fmt.Errorf("redis: %w", err))
			return nil
		}
		if err := redisClient.HealthCheck(gctx); err != nil {
			addError(fmt.Errorf("redis health check: %w", err))
			return nil
		}
		f.redisClient = redisClient
		return nil
	})

	g.Go(func() error {
		scyllaClient, err := scylla.NewScyllaClient(f.config)
		if err != nil {
			addError(fmt.Errorf("scylla: %w", err))
			return nil
		}
		if err := scyllaClient.HealthCheck(); err != nil {
			addError(fmt.Errorf("scylla health check: %w", err))
			return nil
		}
		f.scyllaClient = scyllaClient
		return nil
	})

	g.Go(func() error {
		if !f.config.Kafka.Enabled {
			return nil
		}
		producer, err := client.NewKafkaProducer(f.config)
		if err != nil {
			util.Warn("Kafka producer initialization failed - proceeding without Kafka", util.ErrorField(err))
			return nil
		}
		f.kafkaProducer = producer
		return nil
	})

	g.Go(func() error {
		if !f.config.Clickhouse.Enabled {
			return nil
		}
		clickhouseClient, err := client.NewClickHouseClient(f.config)
		if err != nil {
			util.Warn("ClickHouse initialization failed - proceeding without audit sink", util.ErrorField(err))
			return nil
		}
		f.clickhouseClient = clickhouseClient
		return nil
	})

	_ = g.Wait()

	if len(initErrors) > 0 {
		if f.config.IsProduction() {
			return fmt.Errorf("critical service initialization failed: %v", initErrors)
		}
		for _, err := range initErrors {
			util.Warn("Service initialization warning", util.ErrorField(err))
		}
	}

	return nil
}

// initializeManagers initializes hashing, code generation, bucketing,
// delivery, and the audit recorder
func (f *Factory) initializeManagers() {
	f.hasher = hashing.NewHasher(f.config)
	f.generator = otp.NewGenerator(f.config.OTP.Length)
	f.bucketingManager = bucketing.NewManager(f.config.Bucketing.IdentityBuckets)

	if f.config.Twilio.Enabled && f.config.Twilio.AccountSID != "" {
		f.sender = delivery.NewTwilioSender(f.config)
	} else {
		util.Warn("Twilio disabled, codes will not leave the process")
		f.sender = delivery.NewLogSender()
	}

	if f.clickhouseClient != nil || f.kafkaProducer != nil {
		f.recorder = audit.NewRecorder(f.clickhouseClient, f.kafkaProducer, f.config.Kafka.Topic)
	}

	util.Info("Managers initialized successfully",
		util.Bool("hashing_initialized", f.hasher != nil),
		util.Bool("bucketing_initialized", f.bucketingManager != nil),
		util.Bool("audit_enabled", f.recorder != nil),
	)
}

// ==============================
// Repository Initialization
// ==============================

func (f *Factory) CollegeRepository() model.CollegeRepository {
	if f.collegeRepository == nil {
		f.collegeRepository = scylla.NewCollegeRepository(f.scyllaClient, f.bucketingManager)
	}
	return f.collegeRepository
}

func (f *Factory) GuestRepository() model.GuestRepository {
	if f.guestRepository == nil {
		f.guestRepository = scylla.NewGuestRepository(f.scyllaClient, f.bucketingManager)
	}
	return f.guestRepository
}

func (f *Factory) CooldownCache() model.CooldownCache {
	if f.cooldownCache == nil && f.redisClient != nil {
		f.cooldownCache = redis.NewCooldownCache(f.redisClient)
	}
	return f.cooldownCache
}

// ==============================
// Service Factory
// ==============================

func (f *Factory) ServiceFactory() *service.ServiceFactory {
	if f.serviceFactory == nil {
		var recorder service.Recorder
		if f.recorder != nil {
			recorder = f.recorder
		}
		f.serviceFactory = service.NewServiceFactory(
			f.CollegeRepository(),
			f.GuestRepository(),
			f.CooldownCache(),
			f.sender,
			f.hasher,
			f.generator,
			recorder,
			f.config.OTP,
		)
	}
	return f.serviceFactory
}

// ==============================
// Health Checks
// ==============================

func (f *Factory) HealthCheck(ctx context.Context) map[string]error {
	healthErrors := make(map[string]error)

	if f.redisClient != nil {
		if err := f.redisClient.HealthCheck(ctx); err != nil {
			healthErrors["redis"] = err
		}
	} else {
		healthErrors["redis"] = fmt.Errorf("redis client not initialized")
	}

	if f.scyllaClient != nil {
		if err := f.scyllaClient.HealthCheck(); err != nil {
			healthErrors["scylla"] = err
		}
	} else {
		healthErrors["scylla"] = fmt.Errorf("scylla client not initialized")
	}

	if f.clickhouseClient != nil {
		if err := f.clickhouseClient.HealthCheck(ctx); err != nil {
			healthErrors["clickhouse"] = err
		}
	}

	if f.kafkaProducer != nil {
		if err := f.kafkaProducer.HealthCheck(ctx); err != nil {
			healthErrors["kafka"] = err
		}
	}

	return healthErrors
}

func (f *Factory) IsHealthy(ctx context.Context) bool {
	healthErrors := f.HealthCheck(ctx)
	delete(healthErrors, "kafka")
	delete(healthErrors, "clickhouse")
	return len(healthErrors) == 0
}

func (f *Factory) Close() error {
	f.closeOnce.Do(func() {
		close(f.closed)
		util.Info("Shutting down factory...")

		if f.recorder != nil {
			f.recorder.Close()
			util.Info("Audit recorder drained")
		}

		if f.clickhouseClient != nil {
			if err := f.clickhouseClient.Close(); err != nil {
				util.Error("Failed to close ClickHouse client", util.ErrorField(err))
			}
		}

		if f.kafkaProducer != nil {
			if err := f.kafkaProducer.Close(); err != nil {
				util.Error("Failed to close Kafka producer", util.ErrorField(err))
			}
		}

		if f.scyllaClient != nil {
			f.scyllaClient.Close()
		}

		if f.redisClient != nil {
			if err := f.redisClient.Close(); err != nil {
				util.Error("Failed to close Redis client", util.ErrorField(err))
			}
		}

		util.Sync()
		util.Info("Factory shutdown completed")
	})

	return nil
}

func (f *Factory) WaitForClose() {
	<-f.closed
}

func (f *Factory) Config() *config.Config {
	return f.config
}

func (f *Factory) ScyllaClient() *scylla.ScyllaClient {
	return f.scyllaClient
}

func (f *Factory) Hasher() *hashing.Hasher {
	return f.hasher
}

func (f *Factory) BucketingManager() *bucketing.Manager {
	return f.bucketingManager
}
