package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ledgerlink/pairsync/internal/cli"
)

func main() {

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cmd := cli.NewRootCommand()
	if err := cmd.ExecuteContext(ctx); err != nil {
		log.Printf("%v", err)
		os.Exit(1)
	}

}
