package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"chatline/pkg/config"
	"chatline/pkg/db"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	// Schema bootstrap. In production this belongs to a migration tool;
	// for development the service creates what it needs.
	sysSession, err := db.NewSession(cfg.Scylla.Hosts, "system")
	if err != nil {
		logger.Fatal("scylla system keyspace connect failed", zap.Error(err))
	}
	err = sysSession.Query(`CREATE KEYSPACE IF NOT EXISTS ` + cfg.Scylla.Keyspace +
		` WITH REPLICATION = { 'class' : 'SimpleStrategy', 'replication_factor' : 1 }`).Exec()
	if err != nil {
		logger.Fatal("keyspace create failed", zap.Error(err))
	}
	sysSession.Close()

	session, err := db.NewSession(cfg.Scylla.Hosts, cfg.Scylla.Keyspace)
	if err != nil {
		logger.Fatal("scylla connect failed", zap.Error(err))
	}
	defer session.Close()

	if err := createTables(session); err != nil {
		logger.Fatal("table create failed", zap.Error(err))
	}

	consumer := NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topic, "messaging-service-group", session, logger)
	defer consumer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("messaging consumer starting", zap.Strings("brokers", cfg.Kafka.Brokers))
	consumer.Consume(ctx)
}

func createTables(session *db.Session) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS messages (
			conversation_id text,
			id bigint,
			sender_id text,
			sender_name text,
			sender_email text,
			type text,
			content text,
			status text,
			edited boolean,
			reply_to text,
			created_at timestamp,
			updated_at timestamp,
			PRIMARY KEY (conversation_id, id)
		) WITH CLUSTERING ORDER BY (id ASC)`,
		`CREATE TABLE IF NOT EXISTS user_conversations (
			user_id text,
			other_user_id text,
			last_updated timestamp,
			PRIMARY KEY (user_id, other_user_id)
		)`,
		`CREATE TABLE IF NOT EXISTS conversation_counters (
			user_id text,
			other_user_id text,
			unread_count counter,
			PRIMARY KEY (user_id, other_user_id)
		)`,
	}
	for _, stmt := range stmts {
		if err := session.Query(stmt).Exec(); err != nil {
			return err
		}
	}
	return nil
}
