package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"tbroker/broker_server"
	"tbroker/broker_server/config"
	"tbroker/broker_server/core/admission"
	"tbroker/common/logger"
	"tbroker/common/redis"
)

func main() {
	configPath := flag.String("config", config.DefaultConfigPath(), "path of the JSON configuration file")
	verbose := flag.Bool("verbose", false, "log debug messages")
	redisAddr := flag.String("redis", "", "redis address of a block list shared between brokers, in-memory when empty")
	redisPass := flag.String("redis-password", "", "redis password")
	blocked := flag.String("block", "", "comma separated IPs refused for an hour from startup")
	flag.Parse()

	l := logger.New(os.Stdout, "[Broker]", *verbose)
	defer l.Sync()

	// a broken config file is reported by Load and replaced with defaults
	provider, _ := config.Load(*configPath, l)
	cfg := provider.Snapshot()
	l.Printf("configuration: %s", provider.String())

	var opts []broker_server.Option
	if *redisAddr != "" {
		client := redis.NewRedisClient(*redisAddr, *redisPass, 3)
		if err := client.Ping(); err != nil {
			l.Warnf("redis %s is unreachable (%s), using an in-memory block list", *redisAddr, err.Error())
			client.Close()
		} else {
			opts = append(opts, broker_server.WithBlockListStore(admission.NewRedisBlockListStore(client, "")))
		}
	}

	server := broker_server.NewServer(cfg, l, opts...)
	if err := server.Start(); err != nil {
		l.Errorf("unable to start server: %s", err.Error())
		l.Sync()
		os.Exit(1)
	}
	for _, ip := range strings.Split(*blocked, ",") {
		if ip = strings.TrimSpace(ip); ip == "" {
			continue
		}
		if err := server.Block(ip); err != nil {
			l.Warnf("unable to block %s: %s", ip, err.Error())
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	l.Printf("shutdown signal received")
	if err := server.Stop(); err != nil {
		l.Warnf("server stopped with error: %s", err.Error())
	}
}
