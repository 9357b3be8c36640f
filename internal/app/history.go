package app

import (
	"context"
	"fmt"
	"log"

	"github.com/ndquang/portfolio-rtc/internal/api"
	"github.com/ndquang/portfolio-rtc/internal/storage"
	"github.com/ndquang/portfolio-rtc/internal/util"
)

// historyPrintLimit bounds how much transcript one invocation prints.
const historyPrintLimit = 500

// RunHistory refreshes the local chat-history cache from the backend and
// prints the transcript. Works offline from the cache alone.
func RunHistory(ctx context.Context, opt Options) error {
	cfg := opt.Cfg

	db, err := storage.Open(util.ResolvePath(opt.Dir, cfg.Chat.HistoryDB))
	if err != nil {
		return fmt.Errorf("open history cache: %w", err)
	}
	defer db.Close()

	apiClient := api.NewClient(cfg.Server.BaseURL)
	if history, err := apiClient.ChatHistory(ctx); err != nil {
		log.Printf("APP: backend unreachable, printing cached history: %v", err)
	} else if err := db.SaveMessages(history); err != nil {
		return fmt.Errorf("cache history: %w", err)
	}

	msgs, err := db.Recent(historyPrintLimit)
	if err != nil {
		return fmt.Errorf("read history: %w", err)
	}
	total, err := db.Count()
	if err != nil {
		return fmt.Errorf("count history: %w", err)
	}

	for _, msg := range msgs {
		if msg.Timestamp != "" {
			fmt.Printf("%s  ", msg.Timestamp)
		}
		printChat(msg)
	}
	fmt.Printf("── %d messages shown (%d cached in %s) ──\n", len(msgs), total, db.Path())
	return nil
}
