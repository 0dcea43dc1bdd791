// ABOUTME: Terminal client for chatting with assist-gateway via the JSON API.
// ABOUTME: Provides readline-style input with password login and bearer-token auth.

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
	"syscall"

	"github.com/fatih/color"
	"golang.org/x/term"
)

// loginRequest is the JSON body sent to POST /api/login.
type loginRequest struct {
	Password string `json:"password"`
}

// loginResponse is the JSON response from POST /api/login.
type loginResponse struct {
	Token     string `json:"token"`
	ExpiresIn int64  `json:"expires_in"`
}

// chatRequest is the JSON body sent to POST /api/chat.
type chatRequest struct {
	Message string `json:"message"`
}

// messageEntry is one entry of the conversation log.
type messageEntry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatResponse is the JSON response from POST /api/chat and GET /api/history.
type chatResponse struct {
	Messages []messageEntry `json:"messages"`
}

// exportResponse is the JSON response from GET /api/export.
type exportResponse struct {
	Transcript string `json:"transcript"`
}

// documentsResponse is the JSON response from GET /api/documents.
type documentsResponse struct {
	Documents []string `json:"documents"`
}

// documentResponse is the JSON response from GET /api/documents?name=X.
type documentResponse struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// client talks to the gateway's JSON API with a bearer token.
type client struct {
	server string
	token  string
}

func main() {
	server := flag.String("server", "http://localhost:8080", "Gateway server URL")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, *server); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("\nGoodbye!")
}

func run(ctx context.Context, server string) error {
	fmt.Printf("assist-cli connected to %s\n", server)

	c := &client{server: server}
	if err := c.login(ctx); err != nil {
		return err
	}

	fmt.Println("Type a message and press Enter. /help for commands. Ctrl+C to quit.")
	fmt.Println()

	scanner := bufio.NewScanner(os.Stdin)
	userColor := color.New(color.FgGreen, color.Bold)
	assistantColor := color.New(color.FgCyan, color.Bold)

	for {
		userColor.Print("you> ")

		inputCh := make(chan string, 1)
		errCh := make(chan error, 1)

		go func() {
			if scanner.Scan() {
				inputCh <- scanner.Text()
			} else {
				if err := scanner.Err(); err != nil {
					errCh <- err
				} else {
					errCh <- io.EOF
				}
			}
		}()

		var input string
		select {
		case <-ctx.Done():
			return nil
		case err := <-errCh:
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("reading input: %w", err)
		case input = <-inputCh:
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		if input == "/quit" || input == "/exit" || input == "/q" {
			return nil
		}

		switch {
		case input == "/help":
			printHelp()
			fmt.Println()
			continue
		case input == "/history":
			if err := c.printHistory(ctx); err != nil {
				fmt.Printf("[error] %v\n", err)
			}
			fmt.Println()
			continue
		case input == "/export":
			if err := c.printExport(ctx); err != nil {
				fmt.Printf("[error] %v\n", err)
			}
			fmt.Println()
			continue
		case input == "/reset":
			if err := c.reset(ctx); err != nil {
				fmt.Printf("[error] %v\n", err)
				fmt.Println()
				continue
			}
			fmt.Println("Conversation cleared. Log in again to continue.")
			if err := c.login(ctx); err != nil {
				return err
			}
			fmt.Println()
			continue
		case input == "/docs":
			if err := c.listDocuments(ctx); err != nil {
				fmt.Printf("[error] %v\n", err)
			}
			fmt.Println()
			continue
		case strings.HasPrefix(input, "/docs "):
			name := strings.TrimSpace(strings.TrimPrefix(input, "/docs"))
			if err := c.printDocument(ctx, name); err != nil {
				fmt.Printf("[error] %v\n", err)
			}
			fmt.Println()
			continue
		}

		reply, err := c.chat(ctx, input)
		if err != nil {
			fmt.Printf("[error] %v\n", err)
			fmt.Println()
			continue
		}
		assistantColor.Print("assistant> ")
		fmt.Println(reply)
		fmt.Println()
	}
}

func printHelp() {
	fmt.Println("Commands:")
	fmt.Println("  /history       Show the conversation so far")
	fmt.Println("  /export        Print the plain-text transcript")
	fmt.Println("  /reset         Clear the conversation and log in again")
	fmt.Println("  /docs          List available documents")
	fmt.Println("  /docs <name>   Show a document summary")
	fmt.Println("  /help          Show this help")
	fmt.Println("  /quit          Exit")
}

// login prompts for the password and exchanges it for a bearer token.
// ASSIST_PASSWORD skips the prompt for scripted use.
func (c *client) login(ctx context.Context) error {
	password := os.Getenv("ASSIST_PASSWORD")
	if password == "" {
		fmt.Print("Password: ")
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			return fmt.Errorf("reading password: %w", err)
		}
		password = string(raw)
	}

	var resp loginResponse
	status, err := c.postJSON(ctx, "/api/login", loginRequest{Password: password}, &resp)
	if err != nil {
		return err
	}
	if status == http.StatusUnauthorized {
		return fmt.Errorf("incorrect password")
	}
	if status != http.StatusOK {
		return fmt.Errorf("login failed: status %d", status)
	}

	c.token = resp.Token
	return nil
}

// chat submits one turn and returns the latest assistant reply, or an empty
// string when the assistant produced none.
func (c *client) chat(ctx context.Context, message string) (string, error) {
	var resp chatResponse
	status, err := c.postJSON(ctx, "/api/chat", chatRequest{Message: message}, &resp)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", apiStatusError(status)
	}

	for i := len(resp.Messages) - 1; i >= 0; i-- {
		if resp.Messages[i].Role == "assistant" {
			return resp.Messages[i].Content, nil
		}
	}
	return "", nil
}

func (c *client) printHistory(ctx context.Context) error {
	var resp chatResponse
	status, err := c.getJSON(ctx, "/api/history", &resp)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return apiStatusError(status)
	}

	if len(resp.Messages) == 0 {
		fmt.Println("No messages yet")
		return nil
	}
	for _, msg := range resp.Messages {
		fmt.Printf("%s: %s\n", msg.Role, msg.Content)
	}
	return nil
}

func (c *client) printExport(ctx context.Context) error {
	var resp exportResponse
	status, err := c.getJSON(ctx, "/api/export", &resp)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return apiStatusError(status)
	}
	fmt.Println(resp.Transcript)
	return nil
}

func (c *client) reset(ctx context.Context) error {
	status, err := c.postJSON(ctx, "/api/reset", nil, nil)
	if err != nil {
		return err
	}
	if status != http.StatusNoContent {
		return apiStatusError(status)
	}
	return nil
}

func (c *client) listDocuments(ctx context.Context) error {
	var resp documentsResponse
	status, err := c.getJSON(ctx, "/api/documents", &resp)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return apiStatusError(status)
	}

	if len(resp.Documents) == 0 {
		fmt.Println("No documents available")
		return nil
	}
	fmt.Println("Documents:")
	for _, name := range resp.Documents {
		fmt.Printf("  %s\n", name)
	}
	return nil
}

func (c *client) printDocument(ctx context.Context, name string) error {
	var resp documentResponse
	status, err := c.getJSON(ctx, "/api/documents?name="+url.QueryEscape(name), &resp)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return apiStatusError(status)
	}
	fmt.Println(resp.Content)
	return nil
}

func apiStatusError(status int) error {
	switch status {
	case http.StatusUnauthorized:
		return fmt.Errorf("session expired, restart to log in again")
	case http.StatusConflict:
		return fmt.Errorf("a reply is still being generated, wait for it to finish")
	case http.StatusBadGateway:
		return fmt.Errorf("assistant service unavailable")
	case http.StatusGatewayTimeout:
		return fmt.Errorf("assistant took too long to reply")
	case http.StatusNotFound:
		return fmt.Errorf("not found")
	default:
		return fmt.Errorf("server returned status %d", status)
	}
}

func (c *client) postJSON(ctx context.Context, path string, body, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.server+path, reader)
	if err != nil {
		return 0, fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, out)
}

func (c *client) getJSON(ctx context.Context, path string, out any) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.server+path, nil)
	if err != nil {
		return 0, fmt.Errorf("creating request: %w", err)
	}
	return c.do(req, out)
}

func (c *client) do(req *http.Request, out any) (int, error) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("parsing response: %w", err)
		}
	}
	return resp.StatusCode, nil
}
