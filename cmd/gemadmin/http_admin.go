package main

import (
	"flag"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

func stateCmd(out io.Writer, args []string) error {
	fs := flag.NewFlagSet("state", flag.ContinueOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return adminRequest(out, http.MethodGet, *baseURL, "/admin/v1/state")
}

// reloadCmd asks a running server to re-read its gem config.
func reloadCmd(out io.Writer, args []string) error {
	fs := flag.NewFlagSet("reload", flag.ContinueOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return adminRequest(out, http.MethodPost, *baseURL, "/admin/v1/reload")
}

func adminRequest(out io.Writer, method, baseURL, path string) error {
	u := strings.TrimRight(strings.TrimSpace(baseURL), "/") + path
	req, err := http.NewRequest(method, u, nil)
	if err != nil {
		return err
	}
	cl := &http.Client{Timeout: 10 * time.Second}
	resp, err := cl.Do(req)
	if err != nil {
		return fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	fmt.Fprintln(out, strings.TrimSpace(string(b)))
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}
