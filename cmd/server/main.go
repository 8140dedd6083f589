package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/dmitrijs2005/accountsync/internal/server"
	"github.com/dmitrijs2005/accountsync/internal/server/config"
)

func main() {

	ctx := context.Background()
	cfg := config.LoadConfig()

	// server token <subject> [flags] prints an API token and exits.
	if len(os.Args) > 1 && os.Args[1] == "token" {
		if len(os.Args) < 3 {
			log.Fatalf("usage: %s token <subject> [flags]", os.Args[0])
		}
		tok, err := server.IssueToken(cfg, os.Args[2])
		if err != nil {
			log.Fatalf("%v", err)
		}
		fmt.Println(tok)
		return
	}

	app, err := server.NewApp(ctx, cfg)

	if err != nil {
		log.Fatalf("%v", err)
		return
	}

	if err := app.Run(ctx); err != nil {
		log.Printf("%v", err)
	}

}
