package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"time"

	"go.uber.org/zap"

	"chatline/pkg/chat"
	"chatline/pkg/model"
)

type loginResponse struct {
	Token string       `json:"token"`
	User  model.Sender `json:"user"`
}

func login(apiAddr, uid, name, email string) (*loginResponse, error) {
	reqBody, _ := json.Marshal(map[string]string{"uid": uid, "name": name, "email": email})
	resp, err := http.Post(apiAddr+"/login", "application/json", bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("login failed: %s", string(body))
	}

	var lr loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return nil, err
	}
	return &lr, nil
}

// toastNotifier prints send failures the way the web client shows a toast.
type toastNotifier struct{}

func (toastNotifier) Notify(msg string) {
	fmt.Printf("\r!! %s\n> ", msg)
}

// printer renders incoming events for the terminal. It is a second transport
// subscriber alongside the session; it only displays, never mutates state.
type printer struct {
	selfUID string
}

func (p *printer) OnNewMessage(msg model.Message, tempID string) {
	if msg.Sender.UID == p.selfUID {
		fmt.Printf("\r(you) %s [%s]\n> ", msg.Content, msg.ID)
		return
	}
	fmt.Printf("\r%s: %s\n> ", msg.Sender.Name, msg.Content)
}

func (p *printer) OnStatusUpdate(conversationID, messageID string, status model.Status) {
	fmt.Printf("\r-- message %s is now %s\n> ", messageID, status)
}

func (p *printer) OnSendError(tempID, errMsg string) {
	fmt.Printf("\r!! send failed: %s\n> ", errMsg)
}

func (p *printer) OnAck(model.AckEvent) {}

func main() {
	gatewayAddr := flag.String("addr", "localhost:8080", "gateway service address")
	apiAddr := flag.String("api", "http://localhost:8081", "api service address")
	uid := flag.String("user", "user1", "user id")
	name := flag.String("name", "", "display name")
	email := flag.String("email", "", "email address")
	conversation := flag.String("conversation", "general", "conversation id")
	dmUser := flag.String("dm", "", "user id to dm (overrides -conversation)")
	sendTimeout := flag.Duration("send-timeout", chat.DefaultSendTimeout, "client-side send timeout")
	flag.Parse()

	logger, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()

	conversationID := *conversation
	if *dmUser != "" {
		conversationID = model.DMConversationID(*uid, *dmUser)
	}

	// 1. Login to get token and identity.
	lr, err := login(*apiAddr, *uid, *name, *email)
	if err != nil {
		logger.Fatal("login failed", zap.Error(err))
	}
	identity := chat.NewIdentityCache()
	identity.Set(lr.User)

	// 2. Connect the realtime transport.
	u := url.URL{Scheme: "ws", Host: *gatewayAddr, Path: "/ws"}
	q := u.Query()
	q.Set("conversation", conversationID)
	u.RawQuery = q.Encode()

	ctx := context.Background()
	transport, err := chat.DialWS(ctx, u.String(), lr.Token, logger)
	if err != nil {
		logger.Fatal("gateway dial failed", zap.Error(err))
	}
	defer transport.Close()

	transport.OnEphemeral(func(env model.Envelope) {
		switch env.Type {
		case model.EventTyping:
			var ev model.TypingEvent
			if json.Unmarshal(env.Data, &ev) == nil && ev.UserID != lr.User.UID {
				fmt.Printf("\r%s is typing...\n> ", ev.UserID)
			}
		case model.EventPresence:
			var ev model.PresenceEvent
			if json.Unmarshal(env.Data, &ev) == nil && ev.UserID != lr.User.UID {
				fmt.Printf("\r-- %s %s\n> ", ev.UserID, ev.State)
			}
		}
	})

	// Display-only subscriber; the session has its own.
	sub := transport.Subscribe(&printer{selfUID: lr.User.UID})
	defer sub.Unsubscribe()

	// 3. Open the conversation session.
	session := chat.NewSession(chat.Options{
		Transport:  transport,
		Identity:   identity,
		Notifier:   toastNotifier{},
		APIBaseURL: *apiAddr,
		Token:      lr.Token,
		Logger:     logger,
	})
	session.SetSendTimeout(*sendTimeout)
	session.Open(ctx, conversationID)
	defer session.Close()

	// Give the history load a moment, then show the backlog.
	time.Sleep(500 * time.Millisecond)
	if err := session.LoadError(); err != nil {
		fmt.Printf("!! could not load history: %v\n", err)
	}
	for _, entry := range session.View() {
		marker := ""
		if entry.Pending {
			marker = " (sending)"
		}
		fmt.Printf("%s: %s%s\n", entry.Sender.Name, entry.Content, marker)
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	done := make(chan struct{})

	// 4. Read from stdin and send messages.
	go func() {
		defer close(done)
		scanner := bufio.NewScanner(os.Stdin)
		fmt.Print("> ")
		for scanner.Scan() {
			text := strings.TrimSpace(scanner.Text())
			if text == "" {
				fmt.Print("> ")
				continue
			}

			switch {
			case text == "/quit":
				return
			case text == "/typing":
				if err := session.Typing(ctx); err != nil {
					fmt.Printf("!! %v\n", err)
				}
			case text == "/refresh":
				if err := session.Refresh(ctx); err != nil {
					fmt.Printf("!! %v\n", err)
				}
			case text == "/view":
				for _, entry := range session.View() {
					marker := ""
					if entry.Pending {
						marker = " (sending)"
					}
					fmt.Printf("%s: %s [%s]%s\n", entry.Sender.Name, entry.Content, entry.Status, marker)
				}
			case strings.HasPrefix(text, "/read "):
				id := strings.TrimSpace(strings.TrimPrefix(text, "/read "))
				if err := session.MarkRead(ctx, id); err != nil {
					fmt.Printf("!! %v\n", err)
				}
			default:
				session.Composer().Set(text)
				if _, err := session.Send(ctx, session.Composer().Text()); err != nil {
					fmt.Printf("!! %v\n", err)
				}
			}
			fmt.Print("> ")
		}
	}()

	select {
	case <-done:
	case <-interrupt:
		fmt.Println("\ninterrupt")
	}
}
