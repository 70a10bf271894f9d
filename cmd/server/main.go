package main

import (
	"log"

	"github.com/joho/godotenv"

	"github.com/bioviz/bioviz/internal/config"
	"github.com/bioviz/bioviz/internal/db"
	"github.com/bioviz/bioviz/internal/httpapi"
	"github.com/bioviz/bioviz/internal/llm"
	"github.com/bioviz/bioviz/internal/store/rabbitmq"
	"github.com/bioviz/bioviz/internal/store/redisstore"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()

	gdb := db.Connect(cfg.DBDSN)

	cache := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.CacheTTL)
	defer cache.Close()

	var rabbit llm.JobPublisher
	pub, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
	if err != nil {
		log.Printf("rabbitmq unavailable, async queries disabled: %v", err)
	} else {
		defer pub.Close()
		rabbit = pub
	}

	r, err := httpapi.NewRouter(gdb, cfg, cache, rabbit)
	if err != nil {
		log.Fatalf("router: %v", err)
	}

	log.Printf("server listening on %s", cfg.HTTPAddr)
	if err := r.Run(cfg.HTTPAddr); err != nil {
		log.Fatalf("server: %v", err)
	}
}
