package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/bioviz/bioviz/internal/ai"
	"github.com/bioviz/bioviz/internal/config"
	"github.com/bioviz/bioviz/internal/dataset"
	"github.com/bioviz/bioviz/internal/db"
	"github.com/bioviz/bioviz/internal/llm"
	"github.com/bioviz/bioviz/internal/sandbox"
	"github.com/bioviz/bioviz/internal/store/rabbitmq"
	"github.com/bioviz/bioviz/internal/store/redisstore"
)

type jobMsg struct {
	JobID string `json:"job_id"`
}

func workerConcurrency() int {
	v := os.Getenv("WORKER_CONCURRENCY")
	if v == "" {
		return 2
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 2
	}
	if n > 50 {
		return 50
	}
	return n
}

func main() {
	_ = godotenv.Load()

	cfg := config.Load()

	gdb := db.Connect(cfg.DBDSN)

	cache := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.CacheTTL)
	defer cache.Close()

	datasets, err := dataset.NewRegistry(gdb, cache, cfg.UploadDir, cfg.MaxUploadSize, cfg.AllowedExtensions)
	if err != nil {
		log.Fatalf("dataset registry: %v", err)
	}

	opts := ai.Options{MaxTokens: cfg.LLMMaxTokens, Temperature: cfg.LLMTemperature}
	reg := ai.NewRegistry()
	reg.Register("ollama", func(_ context.Context, model string) (ai.Provider, error) {
		return ai.NewOllamaProvider(cfg.LLMServerURL, model, opts), nil
	})
	reg.Register("llamacpp", func(_ context.Context, model string) (ai.Provider, error) {
		return ai.NewLlamaCppProvider(cfg.LLMServerURL, "", model, opts), nil
	})

	backend := strings.ToLower(cfg.LLMBackend)
	switch backend {
	case "", "ollama":
		backend = "ollama"
	case "llamacpp":
	default:
		log.Fatalf("unsupported LLM_BACKEND=%q", cfg.LLMBackend)
	}

	repo, err := llm.NewRepo(gdb)
	if err != nil {
		log.Fatalf("llm repo: %v", err)
	}

	svc := llm.NewService(
		datasets,
		reg,
		sandbox.NewRunner(cfg.SandboxTimeout, cfg.SandboxMaxSteps),
		repo,
		llm.NewBuilder(cfg.LLMContextWindow),
		backend,
		cfg.LLMModel,
		cfg.LLMTimeout,
		cfg.ChatContextWindow,
	)

	concurrency := workerConcurrency()

	consumer, err := rabbitmq.NewConsumer(cfg.RabbitURL, cfg.RabbitQueue, concurrency)
	if err != nil {
		log.Fatalf("rabbit consume: %v", err)
	}
	defer consumer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf("worker started, queue=%s concurrency=%d", cfg.RabbitQueue, concurrency)

	jobs := make(chan amqp.Delivery, concurrency*2)

	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			for d := range jobs {
				var m jobMsg
				if err := json.Unmarshal(d.Body, &m); err != nil || m.JobID == "" {
					log.Printf("worker=%d bad message: %v", workerID, err)
					_ = d.Nack(false, false)
					continue
				}

				start := time.Now()
				if err := svc.ProcessJob(ctx, m.JobID); err != nil {
					if ctx.Err() != nil {
						// shutdown mid-job: requeue so another worker retries it
						log.Printf("worker=%d job %s abandoned on shutdown, requeueing", workerID, m.JobID)
						_ = d.Nack(false, true)
						continue
					}
					log.Printf("worker=%d job %s failed cost=%s err=%v", workerID, m.JobID, time.Since(start), err)
					_ = d.Nack(false, false)
					continue
				}
				log.Printf("worker=%d job %s done cost=%s", workerID, m.JobID, time.Since(start))

				if err := d.Ack(false); err != nil {
					log.Printf("worker=%d ack failed job=%s err=%v", workerID, m.JobID, err)
				}
			}
		}(i)
	}

	for {
		select {
		case <-ctx.Done():
			log.Printf("worker shutting down")
			close(jobs)
			wg.Wait()
			return

		case d, open := <-consumer.Deliveries:
			if !open {
				log.Printf("delivery channel closed")
				time.Sleep(time.Second)
				continue
			}
			jobs <- d
		}
	}
}
