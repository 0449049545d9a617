package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/AlfazAli25/NexusChat/internal/auth"
	"github.com/AlfazAli25/NexusChat/internal/config"
	"github.com/AlfazAli25/NexusChat/internal/events"
	"github.com/AlfazAli25/NexusChat/internal/gateway"
	"github.com/AlfazAli25/NexusChat/internal/kafka"
	"github.com/AlfazAli25/NexusChat/internal/logger"
	"github.com/AlfazAli25/NexusChat/internal/metrics"
	"github.com/AlfazAli25/NexusChat/internal/presence"
	"github.com/AlfazAli25/NexusChat/internal/registry"
	"github.com/AlfazAli25/NexusChat/internal/repository"
	"github.com/AlfazAli25/NexusChat/internal/rooms"
	"github.com/AlfazAli25/NexusChat/internal/storage"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "config file path")
	metricsAddr := flag.String("metrics", ":9091", "metrics listen address")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("config load: %v", err)
	}

	zl, err := logger.New(logger.Config{Development: cfg.App.Env != "production"})
	if err != nil {
		log.Fatalf("logger init: %v", err)
	}
	defer zl.Sync()

	var jv *auth.JWTValidator
	if cfg.JWT.Algorithm == "RS256" {
		jv, err = auth.NewJWTValidatorRS256(cfg.JWT.PublicKeyPath)
	} else {
		jv, err = auth.NewJWTValidatorHS256(cfg.JWT.HSSecret)
	}
	if err != nil {
		zl.Fatalf("jwt validator init: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.Mongo.URI))
	cancel()
	if err != nil {
		zl.Fatalf("mongo connect: %v", err)
	}
	db := mongoClient.Database(cfg.Mongo.Database)
	if err := repository.EnsureIndexes(context.Background(), db); err != nil {
		zl.Fatalf("mongo indexes: %v", err)
	}
	repo := repository.NewMongoRepo(db)

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	mirror := presence.NewRedisMirror(rdb, cfg.Redis.Prefix)

	reg := registry.New()
	rm := rooms.New()
	tracker := presence.NewTracker(repo, reg, mirror, zl)

	producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicMessageSent)
	defer producer.Close()

	var purger gateway.BlobPurger
	if cfg.S3.Bucket != "" {
		purger, err = storage.NewS3Purger(context.Background(), cfg.S3.Region, cfg.S3.Bucket, zl)
		if err != nil {
			zl.Fatalf("s3 init: %v", err)
		}
	}

	gw := gateway.New(repo, reg, rm, tracker, jv, producer, purger, zl, gateway.Options{
		TypingWindow:  cfg.TypingWindow,
		SendBuffer:    cfg.WS.SendBuffer,
		AutoJoinLimit: cfg.WS.AutoJoinLimit,
	})

	if cfg.NATS.URL != "" {
		sub, err := events.NewSubscriber(cfg.NATS.URL, zl)
		if err != nil {
			zl.Fatalf("nats connect: %v", err)
		}
		defer sub.Close()
		if err := sub.Start(cfg.NATS.Subject, gw); err != nil {
			zl.Fatalf("nats subscribe: %v", err)
		}
	}

	app := gateway.NewApp(gw, gateway.SocketOptions{
		PingInterval:  cfg.PingInterval,
		WriteDeadline: cfg.WriteDeadline,
		MaxMsgSize:    cfg.WS.MaxMessageSizeBytes,
	})

	go func() {
		if err := metrics.Serve(*metricsAddr); err != nil {
			zl.Warnf("metrics server: %v", err)
		}
	}()

	errs := make(chan error, 1)
	go func() {
		addr := ":" + strconv.Itoa(cfg.App.Port)
		zl.Infof("realtime gateway listening on %s", addr)
		errs <- app.Listen(addr)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case e := <-errs:
		zl.Fatalf("server error: %v", e)
	case s := <-sig:
		zl.Infof("signal received: %v", s)
	}

	if err := app.Shutdown(); err != nil {
		zl.Warnf("fiber shutdown: %v", err)
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = mongoClient.Disconnect(shutdownCtx)
	_ = rdb.Close()
	zl.Info("shut down")
}
