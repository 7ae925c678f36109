package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/vietddude/rpcgate/internal/core/domain"
	redisclient "github.com/vietddude/rpcgate/internal/infra/redis"
)

func main() {
	_ = godotenv.Load()

	url := flag.String("redis", os.Getenv("REDIS_URL"), "Redis URL")
	prefix := flag.String("prefix", "rpcgate:", "key prefix")
	network := flag.String("network", "", "network to flush (empty flushes all)")
	flag.Parse()

	if *url == "" {
		fmt.Fprintln(os.Stderr, "redis URL is required (-redis or REDIS_URL)")
		os.Exit(1)
	}

	client, err := redisclient.NewClient(redisclient.Config{URL: *url, Prefix: *prefix})
	if err != nil {
		panic(err)
	}
	defer client.Close()

	networks := domain.Networks
	if *network != "" {
		networks = []domain.Network{domain.NormalizeNetwork(*network)}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for _, n := range networks {
		if err := client.Flush(ctx, n); err != nil {
			panic(err)
		}
		fmt.Printf("Flushed cached selection and blockhash for %s\n", n)
	}
}
