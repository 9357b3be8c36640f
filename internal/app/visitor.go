package app

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"strings"

	"github.com/ndquang/portfolio-rtc/internal/api"
	"github.com/ndquang/portfolio-rtc/internal/call"
	"github.com/ndquang/portfolio-rtc/internal/chat"
	"github.com/ndquang/portfolio-rtc/internal/invite"
	"github.com/ndquang/portfolio-rtc/internal/signaling"
)

// RunVisitor is the guest-facing mode: browse the portfolio, chat with the
// admin, and start a video call. Commands: /call, /end, /cv, /quit; anything
// else is sent as chat.
func RunVisitor(ctx context.Context, opt Options) error {
	cfg := opt.Cfg
	apiClient := api.NewClient(cfg.Server.BaseURL)

	if profile, err := apiClient.GetPortfolio(ctx); err != nil {
		log.Printf("APP: portfolio fetch failed: %v", err)
	} else {
		fmt.Printf("── %s — %s ──\n", profile.FullName, profile.JobTitle)
		fmt.Printf("   %d projects, %d skills · CV: %s\n",
			len(profile.Projects), len(profile.Skills), apiClient.ExportCVURL())
	}

	// The chat channel connects once: if the backend is down the visitor
	// still reads replayed history, and sent messages echo locally. The
	// call channel (opened on /call) is the one that redials.
	var onConnect func()
	chatCh := signaling.New(cfg.Server.SocketURL, signaling.Options{
		OnConnect: func() {
			if onConnect != nil {
				onConnect()
			}
		},
		OnError: func(err error) {
			log.Printf("APP: chat channel: %v", err)
		},
	})
	defer chatCh.Disconnect()

	guestName := cfg.Chat.GuestName
	if guestName == "" {
		guestName = fmt.Sprintf("Guest_%d", rand.Intn(1000))
	}
	chatClient := chat.New(chatCh, guestName, cfg.Chat.BufferSize)
	defer chatClient.Close()

	if history, err := apiClient.ChatHistory(ctx); err != nil {
		log.Printf("APP: chat history unavailable: %v", err)
	} else {
		chatClient.LoadHistory(history)
		for _, msg := range chatClient.Messages() {
			printChat(msg)
		}
	}

	if err := chatClient.Listen(); err != nil {
		return fmt.Errorf("attach chat: %w", err)
	}
	onConnect = func() {
		if err := chatClient.Join(); err != nil {
			log.Printf("APP: join failed: %v", err)
		}
	}
	if err := chatCh.Connect(ctx); err != nil {
		fmt.Println("(offline — messages will stay local)")
	}

	incoming := chatClient.Subscribe()
	defer chatClient.Unsubscribe(incoming)
	go func() {
		for msg := range incoming {
			printChat(msg)
		}
	}()

	var (
		callCh  *signaling.Channel
		session *call.Session
	)
	endCall := func() {
		if session != nil {
			session.End()
			session = nil
		}
		if callCh != nil {
			callCh.Disconnect()
			callCh = nil
		}
	}
	defer endCall()

	fmt.Println("Type to chat. Commands: /call /mute /camera /end /cv /quit")
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

			case line == "/cv":
				fmt.Printf("CV download: %s\n", apiClient.ExportCVURL())

			case line == "/call":
				if session != nil && session.State() != call.StateEnded {
					fmt.Println("Call already in progress — /end first")
					continue
				}
				endCall()
				callCh = newCallChannel(ctx, cfg, "call")
				caller := invite.NewCaller(callCh, chatClient.Name())
				caller.Echo = func(text string) {
					chatClient.AddSystem(text)
					fmt.Printf("  * %s\n", text)
				}
				roomID, err := caller.Start()
				if err != nil {
					log.Printf("APP: call request failed: %v", err)
					endCall()
					continue
				}
				session = call.New(roomID, signaling.RoleVisitor, callCh, newSessionOptions(cfg))
				if err := session.Start(ctx); err != nil {
					log.Printf("APP: call start failed: %v", err)
					endCall()
					continue
				}
				if err := session.MediaErr(); err != nil {
					fmt.Println("(no camera/mic — receive-only call)")
				}
				watchSession(session)

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
