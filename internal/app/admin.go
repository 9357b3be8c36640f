package app

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/ndquang/portfolio-rtc/internal/api"
	"github.com/ndquang/portfolio-rtc/internal/call"
	"github.com/ndquang/portfolio-rtc/internal/chat"
	"github.com/ndquang/portfolio-rtc/internal/invite"
	"github.com/ndquang/portfolio-rtc/internal/signaling"
	"github.com/ndquang/portfolio-rtc/internal/storage"
	"github.com/ndquang/portfolio-rtc/internal/syncer"
	"github.com/ndquang/portfolio-rtc/internal/util"
)

// RunAdmin is the owner-facing mode: answer chat, accept call requests, and
// sync the local content directory to the backend. The admin channel always
// redials: the owner's side should survive backend restarts unattended.
func RunAdmin(ctx context.Context, opt Options) error {
	cfg := opt.Cfg
	apiClient := api.NewClient(cfg.Server.BaseURL)

	db, err := storage.Open(util.ResolvePath(opt.Dir, cfg.Chat.HistoryDB))
	if err != nil {
		return fmt.Errorf("open history cache: %w", err)
	}
	defer db.Close()

	var onConnect func()
	ch := signaling.New(cfg.Server.SocketURL, signaling.Options{
		ReconnectDelay: time.Duration(cfg.Server.ReconnectDelaySec) * time.Second,
		OnConnect: func() {
			if onConnect != nil {
				onConnect()
			}
		},
		OnError: func(err error) {
			log.Printf("APP: admin channel: %v", err)
		},
	})
	defer ch.Disconnect()

	chatClient := chat.New(ch, cfg.Admin.Name, cfg.Chat.BufferSize)
	defer chatClient.Close()

	if history, err := apiClient.ChatHistory(ctx); err != nil {
		log.Printf("APP: chat history unavailable: %v", err)
	} else {
		chatClient.LoadHistory(history)
		if err := db.SaveMessages(history); err != nil {
			log.Printf("APP: cache history: %v", err)
		}
	}

	if err := chatClient.Listen(); err != nil {
		return fmt.Errorf("attach chat: %w", err)
	}

	registry := invite.NewRegistry()
	cancelInvites, err := invite.Listen(ch, registry)
	if err != nil {
		return fmt.Errorf("attach call requests: %w", err)
	}
	defer cancelInvites()

	onConnect = func() {
		if err := chatClient.Join(); err != nil {
			log.Printf("APP: join failed: %v", err)
		}
	}
	if err := ch.Connect(ctx); err != nil {
		log.Printf("APP: connect failed, will retry: %v", err)
	}

	incoming := chatClient.Subscribe()
	defer chatClient.Unsubscribe(incoming)
	go func() {
		for msg := range incoming {
			printChat(msg)
			if err := db.Append(msg); err != nil {
				log.Printf("APP: cache message: %v", err)
			}
		}
	}()

	invites := registry.Subscribe()
	defer registry.Unsubscribe(invites)
	go func() {
		for evt := range invites {
			if evt.Type == "add" && evt.Request != nil {
				fmt.Printf("  ☎ %s is calling (room %s) — /accept %s\n",
					evt.Request.VisitorName, evt.RoomID, evt.RoomID)
			}
		}
	}()

	contentSync, err := syncer.New(apiClient, util.ResolvePath(opt.Dir, cfg.Admin.ContentDir))
	if err != nil {
		log.Printf("APP: content sync disabled: %v", err)
	} else {
		defer contentSync.Close()
		if err := contentSync.SyncAll(ctx); err != nil {
			log.Printf("APP: initial content sync: %v", err)
		}
	}

	var session *call.Session
	endCall := func() {
		if session != nil {
			session.End()
			session = nil
		}
	}
	defer endCall()

	fmt.Println("Type to chat. Commands: /calls /accept <room> /dismiss <room> /mute /camera /end /quit")
	lines := readLines(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			line = strings.TrimSpace(line)
			switch {
			case line == "":

			case line == "/quit":
				return nil

			case line == "/calls":
				pending := registry.Snapshot()
				if len(pending) == 0 {
					fmt.Println("No pending calls")
				}
				for _, req := range pending {
					fmt.Printf("  %s — %s (waiting %s)\n",
						req.RoomID, req.VisitorName, time.Since(req.ReceivedAt).Round(time.Second))
				}

			case strings.HasPrefix(line, "/accept "):
				roomID := strings.TrimSpace(strings.TrimPrefix(line, "/accept "))
				req, ok := registry.Get(roomID)
				if !ok {
					fmt.Printf("No pending call for %s\n", roomID)
					continue
				}
				if session != nil && session.State() != call.StateEnded {
					fmt.Println("Call already in progress — /end first")
					continue
				}
				endCall()
				registry.Remove(roomID)
				session = call.New(roomID, signaling.RoleAdmin, ch, newSessionOptions(cfg))
				if err := session.Start(ctx); err != nil {
					log.Printf("APP: accept %s failed: %v", roomID, err)
					endCall()
					continue
				}
				fmt.Printf("Accepted call from %s\n", req.VisitorName)
				if err := session.MediaErr(); err != nil {
					fmt.Println("(no camera/mic — receive-only call)")
				}
				watchSession(session)

			case strings.HasPrefix(line, "/dismiss "):
				roomID := strings.TrimSpace(strings.TrimPrefix(line, "/dismiss "))
				registry.Remove(roomID)

			case line == "/mute":
				if session == nil {
					fmt.Println("No active call")
					continue
				}
				fmt.Printf("  [call] muted=%v\n", session.ToggleMute())

			case line == "/camera":
				if session == nil {
					fmt.Println("No active call")
					continue
				}
				fmt.Printf("  [call] camera off=%v\n", session.ToggleCamera())

			case line == "/end":
				endCall()

			case strings.HasPrefix(line, "/"):
				fmt.Printf("Unknown command %s\n", line)

			default:
				if err := chatClient.Send(line); err != nil {
					fmt.Println("(offline — kept locally)")
				}
			}
		}
	}
}
