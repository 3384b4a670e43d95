package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/reelforge/reelforge-backend/internal/clients/gcs"
	"github.com/reelforge/reelforge-backend/internal/clients/imagegen"
	"github.com/reelforge/reelforge-backend/internal/clients/redis"
	"github.com/reelforge/reelforge-backend/internal/clients/videogen"
	"github.com/reelforge/reelforge-backend/internal/data/repos"
	"github.com/reelforge/reelforge-backend/internal/db"
	httpserver "github.com/reelforge/reelforge-backend/internal/http"
	"github.com/reelforge/reelforge-backend/internal/http/handlers"
	"github.com/reelforge/reelforge-backend/internal/jobs/pipeline/phase_chunks"
	"github.com/reelforge/reelforge-backend/internal/jobs/pipeline/phase_plan"
	"github.com/reelforge/reelforge-backend/internal/jobs/pipeline/phase_refine"
	"github.com/reelforge/reelforge-backend/internal/jobs/pipeline/phase_storyboard"
	"github.com/reelforge/reelforge-backend/internal/jobs/pipeline/phasekit"
	"github.com/reelforge/reelforge-backend/internal/jobs/pipeline/video_edit"
	"github.com/reelforge/reelforge-backend/internal/jobs/runtime"
	"github.com/reelforge/reelforge-backend/internal/jobs/worker"
	"github.com/reelforge/reelforge-backend/internal/modules/video"
	"github.com/reelforge/reelforge-backend/internal/pkg/logger"
	"github.com/reelforge/reelforge-backend/internal/services"
)

type Repos struct {
	Videos      repos.VideoRepo
	Checkpoints repos.CheckpointRepo
	Artifacts   repos.ArtifactRepo
	JobRuns     repos.JobRunRepo
}

type Services struct {
	Jobs      services.JobService
	Progress  services.ProgressService
	Media     services.MediaToolsService
	Music     services.MusicService
	Pipeline  services.PipelineService
	Edits     video.CheckpointEditService
	Editor    video.EditorService
	JobWorker *worker.Worker
}

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Cfg      Config
	Repos    Repos
	Services Services
	Server   *httpserver.Server
	redis    *goredis.Client
	cancel   context.CancelFunc
}

func New() (*App, error) {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	log.Info("Loading environment variables...")
	cfg := LoadConfig(log)

	pg, err := db.NewPostgresService(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init postgres: %w", err)
	}
	if err := pg.AutoMigrateAll(); err != nil {
		log.Sync()
		return nil, fmt.Errorf("postgres automigrate: %w", err)
	}
	theDB := pg.DB()

	rdb, err := redis.NewClient()
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init redis: %w", err)
	}
	channel, err := redis.NewProgressChannel(log, rdb)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init progress channel: %w", err)
	}

	bucket, err := gcs.NewBucketService(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init bucket: %w", err)
	}
	images, err := imagegen.NewClient(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init image client: %w", err)
	}
	gen, err := videogen.NewClient(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init video client: %w", err)
	}

	reposet := wireRepos(theDB, log)
	serviceset, err := wireServices(theDB, log, cfg, reposet, channel, bucket, images, gen)
	if err != nil {
		log.Sync()
		return nil, err
	}

	handlerset := wireHandlers(theDB, reposet, serviceset)
	server := httpserver.NewServer(handlerset)

	return &App{
		Log:      log,
		DB:       theDB,
		Cfg:      cfg,
		Repos:    reposet,
		Services: serviceset,
		Server:   server,
		redis:    rdb,
	}, nil
}

func wireRepos(theDB *gorm.DB, log *logger.Logger) Repos {
	return Repos{
		Videos:      repos.NewVideoRepo(theDB, log),
		Checkpoints: repos.NewCheckpointRepo(theDB, log),
		Artifacts:   repos.NewArtifactRepo(theDB, log),
		JobRuns:     repos.NewJobRunRepo(theDB, log),
	}
}

func wireServices(
	theDB *gorm.DB,
	log *logger.Logger,
	cfg Config,
	r Repos,
	channel redis.ProgressChannel,
	bucket gcs.BucketService,
	images imagegen.Client,
	gen videogen.Client,
) (Services, error) {
	jobs := services.NewJobService(log, r.JobRuns)
	progress := services.NewProgressService(log, channel, bucket)
	media := services.NewMediaToolsService(log)
	music := services.NewMusicService(log, bucket)
	pipeline := services.NewPipelineService(log, theDB, r.Videos, r.Checkpoints, r.Artifacts, jobs, progress)

	httpClient := &http.Client{Timeout: 5 * time.Minute}
	edits := video.NewCheckpointEditService(log, r.Videos, r.Checkpoints, r.Artifacts, jobs, bucket, images, gen, media, httpClient)
	editor := video.NewEditorService(log, r.Videos, r.Checkpoints, r.Artifacts, jobs, progress, bucket, media, gen, httpClient, cfg.StitchBudget)

	deps := phasekit.Deps{
		Log:          log,
		Videos:       r.Videos,
		Checkpoints:  r.Checkpoints,
		Artifacts:    r.Artifacts,
		Jobs:         jobs,
		Progress:     progress,
		Bucket:       bucket,
		Media:        media,
		Music:        music,
		Images:       images,
		Gen:          gen,
		HTTP:         httpClient,
		StitchBudget: cfg.StitchBudget,
	}

	registry := runtime.NewRegistry()
	for _, h := range []runtime.Handler{
		phase_plan.New(deps),
		phase_storyboard.New(deps),
		phase_chunks.New(deps),
		phase_refine.New(deps),
		video_edit.New(log, r.Videos, editor, progress),
	} {
		if err := registry.Register(h); err != nil {
			return Services{}, fmt.Errorf("register job handler: %w", err)
		}
	}
	jobWorker := worker.NewWorker(theDB, log, r.JobRuns, registry)

	return Services{
		Jobs:      jobs,
		Progress:  progress,
		Media:     media,
		Music:     music,
		Pipeline:  pipeline,
		Edits:     edits,
		Editor:    editor,
		JobWorker: jobWorker,
	}, nil
}

func wireHandlers(theDB *gorm.DB, r Repos, s Services) httpserver.RouterConfig {
	return httpserver.RouterConfig{
		VideoHandler:          handlers.NewVideoHandler(s.Pipeline),
		CheckpointEditHandler: handlers.NewCheckpointEditHandler(s.Edits),
		EditorHandler:         handlers.NewEditorHandler(s.Editor, s.Progress),
		JobHandler:            handlers.NewJobHandler(r.JobRuns),
		HealthHandler:         handlers.NewHealthHandler(theDB),
	}
}

func (a *App) Start() {
	if a == nil || a.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	if a.Services.JobWorker != nil {
		a.Services.JobWorker.Start(ctx)
	}
}

func (a *App) Run() error {
	if a == nil || a.Server == nil {
		return fmt.Errorf("app not initialized")
	}
	return a.Server.Run(":" + a.Cfg.Port)
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	if a.redis != nil {
		a.redis.Close()
		a.redis = nil
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
