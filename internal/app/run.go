// Package app wires the client pieces (REST, signaling, chat, calls, the
// admin content syncer) into the runnable visitor and admin modes.
package app

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ndquang/portfolio-rtc/internal/call"
	"github.com/ndquang/portfolio-rtc/internal/config"
	"github.com/ndquang/portfolio-rtc/internal/signaling"
)

// Options carries what main resolved before handing over.
type Options struct {
	Dir     string // working directory for config and data paths
	CfgPath string
	Cfg     config.Config
}

// readLines pumps stdin line by line until EOF or ctx cancellation.
func readLines(ctx context.Context) <-chan string {
	ch := make(chan string)
	go func() {
		defer close(ch)
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			select {
			case ch <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch
}

// printChat renders one chat message for the terminal.
func printChat(msg signaling.ChatMessage) {
	switch msg.Type {
	case signaling.MessageJoin:
		fmt.Printf("  * %s joined\n", msg.Sender)
	case signaling.MessageLeave:
		fmt.Printf("  * %s left\n", msg.Sender)
	default:
		fmt.Printf("  %s: %s\n", msg.Sender, msg.Content)
	}
}

// newCallChannel opens the signaling channel used for call traffic. Unlike
// the visitor's chat channel it always redials: losing signaling mid-call is
// worth retrying, a missed chat line is not.
func newCallChannel(ctx context.Context, cfg config.Config, label string) *signaling.Channel {
	ch := signaling.New(cfg.Server.SocketURL, signaling.Options{
		ReconnectDelay: time.Duration(cfg.Server.ReconnectDelaySec) * time.Second,
		OnError: func(err error) {
			log.Printf("APP: %s channel: %v", label, err)
		},
	})
	if err := ch.Connect(ctx); err != nil {
		// Redial is already scheduled; the session's offer retransmission
		// covers the gap.
		log.Printf("APP: %s channel connect failed, retrying: %v", label, err)
	}
	return ch
}

// watchSession reports the session lifecycle on the terminal.
func watchSession(sess *call.Session) {
	go func() {
		<-sess.Done()
		fmt.Printf("Call %s ended (%s)\n", sess.RoomID(), sess.Duration().Round(time.Second))
	}()
}

func newSessionOptions(cfg config.Config) call.Options {
	return call.Options{
		STUNServers: cfg.Call.STUNServers,
		OnState: func(st call.State) {
			fmt.Printf("  [call] %s\n", st)
		},
	}
}
