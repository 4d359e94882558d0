package main

import (
	"log"

	infra "github.com/coursebox/progression/internal/infrastructure"
	"github.com/coursebox/progression/internal/infrastructure/driver"
	"github.com/coursebox/progression/internal/infrastructure/logging"
	"github.com/coursebox/progression/internal/infrastructure/uuid"
	ihttp "github.com/coursebox/progression/internal/interfaces/http"
	"github.com/coursebox/progression/internal/platform"
	"github.com/coursebox/progression/internal/progression"
	"github.com/coursebox/progression/internal/sequence"
	"go.uber.org/zap"
)

func main() {
	log.SetFlags(log.Lshortfile | log.Ldate | log.Ltime)
	option, err := infra.InitConfig()
	if err != nil {
		log.Fatal(err)
	}

	logger, err := logging.NewLogger(&logging.Config{
		FilePath: option.Logging.FilePath,
		Level:    option.Logging.Level,
		AppID:    option.AppID,
		Env:      option.Env,
	})
	if err != nil {
		log.Fatalf("Failed to create logger: %s\n", err)
	}
	logger = logger.With(
		zap.String("service.id", option.AppID),
	)
	defer logger.Sync()

	rdb := driver.NewRedisClient(option.KVStore.Host, option.KVStore.Port, option.KVStore.Password)

	client, err := platform.NewClient(&platform.ClientConfig{
		BaseURL: option.Upstream.BaseURL,
		Timeout: option.Upstream.Timeout,
	}, logger)
	if err != nil {
		log.Fatalf("Failed to create platform client: %s\n", err)
	}
	logger.Debug("Platform client ready", zap.String("url.full", option.Upstream.BaseURL))

	FlowIDGenerator := uuid.NewNanoIDGenerator(option.Security.IDLength)
	LessonRepo := platform.NewLessonAPI(client, rdb, option.Upstream.CacheTTL, logger)
	QuizRepo := platform.NewQuizAPI(client)
	Sequencer := sequence.NewSequencer(LessonRepo, logger)
	ProgressionUseCase := progression.NewProgressionUseCase(
		LessonRepo, QuizRepo, Sequencer, FlowIDGenerator, option.Sequence.Delay, logger)

	ihttp.Serve(rdb, option, LessonRepo, ProgressionUseCase, logger)
}
