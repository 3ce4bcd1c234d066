// Command ragchat-tui is a terminal chat client for a ragchat server.
package main

import (
	"flag"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"github.com/kailas-cloud/ragchat/internal/client"
	"github.com/kailas-cloud/ragchat/internal/tui"
	"github.com/kailas-cloud/ragchat/internal/version"
)

func main() {
	_ = godotenv.Load()

	defaultURL := os.Getenv("RAGCHAT_URL")
	if defaultURL == "" {
		defaultURL = "http://localhost:8000"
	}

	var (
		server  = flag.String("server", defaultURL, "ragchat server URL (env RAGCHAT_URL)")
		apiKey  = flag.String("api-key", os.Getenv("RAGCHAT_API_KEY"), "bearer token (env RAGCHAT_API_KEY)")
		showVer = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *showVer {
		fmt.Println(version.String("ragchat-tui"))
		return
	}

	c := client.New(*server, client.WithAPIKey(*apiKey))
	p := tea.NewProgram(tui.New(c, *server), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintln(os.Stderr, "ragchat-tui:", err)
		os.Exit(1)
	}
}
