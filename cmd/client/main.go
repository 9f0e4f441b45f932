package main

import (
	"bufio"
	"context"
	"log"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"laynote-sync-client/internal/config"
	"laynote-sync-client/internal/connection"
	"laynote-sync-client/internal/domain"
	"laynote-sync-client/internal/editor"
	"laynote-sync-client/internal/events"
	"laynote-sync-client/internal/identity"
	"laynote-sync-client/internal/rest"
	"laynote-sync-client/internal/status"
	"laynote-sync-client/internal/syncer"

	"github.com/google/uuid"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	var provider identity.Provider
	if cfg.Identity.UserID != 0 {
		provider = identity.Static(cfg.Identity.UserID)
	} else {
		provider = identity.NewTokenProvider(cfg.Identity.Token)
	}
	userID, err := provider.UserID()
	if err != nil {
		log.Fatalf("Failed to resolve user identity: %v", err)
	}

	wsURL, err := dialURL(cfg.Sync.URL, cfg.Identity.Token)
	if err != nil {
		log.Fatalf("Invalid sync URL: %v", err)
	}

	hub := events.NewHub()
	manager := connection.NewManager(wsURL, userID, hub, cfg.Sync.ConnectTimeout, cfg.Sync.WriteWait)

	hub.On(events.Error, func(payload any) {
		log.Printf("sync error: %v", payload)
	})

	ed := editor.NewMemoryEditor()
	engine := syncer.NewEngine(manager, hub, ed, cfg.Sync.DebounceInterval)
	defer engine.Close()

	statusAddr := net.JoinHostPort(cfg.Status.Host, cfg.Status.Port)
	statusSrv := status.NewServer(statusAddr, hub)
	go func() {
		log.Printf("Status endpoint listening on %s", statusAddr)
		if err := statusSrv.Start(); err != nil && err != http.ErrServerClosed {
			log.Printf("status server: %v", err)
		}
	}()

	api := rest.NewClient(cfg.API.BaseURL, cfg.API.Token)
	note, err := openNote(context.Background(), api)
	if err != nil {
		log.Fatalf("Failed to open a note: %v", err)
	}

	engine.SetOnNoteChanged(func(n domain.Note) {
		log.Printf("note %s updated: title %q, %d bytes of content", n.ID, n.Title, len(n.Content))
	})
	engine.Bind(*note)
	statusSrv.SetNote(note.ID)
	log.Printf("Editing note %s (%q) as user %d", note.ID, note.Title, userID)

	if err := manager.Connect(context.Background()); err != nil {
		log.Printf("Initial connect failed: %v - editing stays local, sends retry lazily", err)
	}

	go readInput(engine, ed)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := statusSrv.Shutdown(ctx); err != nil {
		log.Printf("status server shutdown: %v", err)
	}
	manager.Disconnect()

	log.Println("Client stopped")
}

// dialURL tags the connection with a device id so the server can exclude this
// client from its own broadcasts, and forwards the bearer token when present.
func dialURL(base, token string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("device_id", uuid.New().String())
	if token != "" {
		q.Set("token", token)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func openNote(ctx context.Context, api *rest.Client) (*domain.Note, error) {
	notes, err := api.ListNotes(ctx)
	if err != nil {
		return nil, err
	}
	if len(notes) > 0 {
		return &notes[0], nil
	}
	return api.CreateNote(ctx, &domain.CreateNoteRequest{Title: "Untitled", Content: "<p></p>"})
}

// readInput turns stdin lines into edits: plain lines append a paragraph,
// "/title X" renames the note, "/undo" reverts the latest local edit.
func readInput(engine *syncer.Engine, ed *editor.MemoryEditor) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "/title "):
			engine.TitleChanged(strings.TrimSpace(strings.TrimPrefix(line, "/title ")))
		case line == "/undo":
			content, ok := ed.Undo()
			if ok {
				engine.ContentChanged(content)
			}
		case line != "":
			content := ed.Content() + "<p>" + line + "</p>"
			ed.SetContent(content, true)
			engine.ContentChanged(content)
		}
	}
}
