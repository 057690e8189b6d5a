// Package main seeds a local Redis with sample bin telemetry so the read
// endpoints have data to serve. Intended for dev environments only.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"hauler/internal/bins"
)

func main() {
	var (
		url = flag.String("redis", "redis://localhost:6379/0", "redis URL")
		ttl = flag.Duration("ttl", 24*time.Hour, "snapshot TTL")
	)
	flag.Parse()

	opts, err := redis.ParseURL(*url)
	if err != nil {
		fail("parsing redis URL", err)
	}
	client := redis.NewClient(opts)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		fail("connecting to redis", err)
	}

	now := time.Now().UTC()
	seed := []bins.Bin{
		{ID: "7", Location: "Harbor Plaza", FillPercent: 35, Status: bins.StatusActive, LastCollectedAt: now.Add(-18 * time.Hour)},
		{ID: "12", Location: "Dockside Market", FillPercent: 81, Status: bins.StatusActive, LastCollectedAt: now.Add(-42 * time.Hour)},
		{ID: "23", Location: "Transit Mall North", FillPercent: 97, Status: bins.StatusFull, LastCollectedAt: now.Add(-51 * time.Hour)},
		{ID: "31", Location: "Greenway Depot", FillPercent: 12, Status: bins.StatusMaintenance, LastCollectedAt: now.Add(-3 * time.Hour)},
	}

	pipe := client.TxPipeline()
	for _, bin := range seed {
		raw, err := json.Marshal(bin)
		if err != nil {
			fail("encoding bin "+bin.ID, err)
		}
		pipe.Set(ctx, "bin:"+bin.ID, raw, *ttl)
		pipe.SAdd(ctx, "bins:index", bin.ID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		fail("seeding bins", err)
	}

	fmt.Printf("seeded %d bins\n", len(seed))
	os.Exit(0)
}

func fail(msg string, err error) {
	fmt.Fprintf(os.Stderr, "%s: %v\n", msg, err)
	os.Exit(1)
}
