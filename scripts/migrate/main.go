package main

import (
	"flag"
	"log"
	"strings"

	"chatline/pkg/db"
)

// Creates (or with -drop, removes) the chat schema. The messaging service
// also creates tables on boot; this exists for standalone setup and reset.
func main() {
	hosts := flag.String("hosts", "localhost:9042", "comma-separated scylla hosts")
	keyspace := flag.String("keyspace", "chat", "keyspace")
	drop := flag.Bool("drop", false, "drop tables instead of creating them")
	flag.Parse()

	sysSession, err := db.NewSession(strings.Split(*hosts, ","), "system")
	if err != nil {
		log.Fatalf("Failed to connect to ScyllaDB: %v", err)
	}
	err = sysSession.Query(`CREATE KEYSPACE IF NOT EXISTS ` + *keyspace +
		` WITH REPLICATION = { 'class' : 'SimpleStrategy', 'replication_factor' : 1 }`).Exec()
	if err != nil {
		log.Fatalf("Failed to create keyspace: %v", err)
	}
	sysSession.Close()

	session, err := db.NewSession(strings.Split(*hosts, ","), *keyspace)
	if err != nil {
		log.Fatalf("Failed to connect to keyspace %s: %v", *keyspace, err)
	}
	defer session.Close()

	if *drop {
		for _, table := range []string{"messages", "user_conversations", "conversation_counters"} {
			log.Printf("Dropping table %s...", table)
			if err := session.Query("DROP TABLE IF EXISTS " + table).Exec(); err != nil {
				log.Fatalf("Failed to drop table %s: %v", table, err)
			}
		}
		log.Println("Tables dropped successfully.")
		return
	}

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
			log.Fatalf("Failed to create table: %v", err)
		}
	}
	log.Println("Tables created successfully.")
}
