// sonactl is a small client for a running sonad: check health, inspect
// metadata, generate speech into a WAV file, and list recent requests.
package main

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/sonalabs/sona-tts/internal/history"
	"github.com/sonalabs/sona-tts/internal/protocol"
)

var version = "0.3.0-dev"

const defaultAddr = "http://127.0.0.1:8080"

var httpClient = &http.Client{Timeout: 60 * time.Second}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "expected 'health', 'info', 'generate', 'history' or 'version'")
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "health":
		cmd := flag.NewFlagSet("health", flag.ExitOnError)
		addr := cmd.String("addr", defaultAddr, "Service address")
		cmd.Parse(os.Args[2:])
		err = runHealth(*addr)
	case "info":
		cmd := flag.NewFlagSet("info", flag.ExitOnError)
		addr := cmd.String("addr", defaultAddr, "Service address")
		cmd.Parse(os.Args[2:])
		err = runInfo(*addr)
	case "generate":
		cmd := flag.NewFlagSet("generate", flag.ExitOnError)
		addr := cmd.String("addr", defaultAddr, "Service address")
		text := cmd.String("text", "", "Text to speak (or pass as trailing arguments)")
		speaker := cmd.Int("speaker", 0, "Speaker identity")
		maxMS := cmd.Int("max-ms", 0, "Maximum audio length in milliseconds")
		contextJSON := cmd.String("context", "", "Conversation context as a JSON array")
		out := cmd.String("out", "out.wav", "Output WAV path")
		cmd.Parse(os.Args[2:])
		if *text == "" {
			*text = strings.Join(cmd.Args(), " ")
		}
		err = runGenerate(*addr, *text, *speaker, *maxMS, *contextJSON, *out)
	case "history":
		cmd := flag.NewFlagSet("history", flag.ExitOnError)
		addr := cmd.String("addr", defaultAddr, "Service address")
		limit := cmd.Int("limit", 20, "Number of records to list")
		cmd.Parse(os.Args[2:])
		err = runHistory(*addr, *limit)
	case "version":
		fmt.Println(version)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", os.Args[1])
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runHealth(addr string) error {
	var health protocol.HealthResponse
	if err := getJSON(addr+"/health", &health); err != nil {
		return err
	}
	fmt.Printf("status: %s\nmodel_loaded: %t\n", health.Status, health.ModelLoaded)
	return nil
}

func runInfo(addr string) error {
	var meta protocol.MetadataResponse
	if err := getJSON(addr+"/", &meta); err != nil {
		return err
	}
	fmt.Printf("service: %s\nversion: %s\ndevice: %s\n", meta.Service, meta.Version, meta.Device)
	if meta.Tier != "" {
		fmt.Printf("tier: %s\n", meta.Tier)
	}
	for name, route := range meta.Endpoints {
		fmt.Printf("endpoint %s: %s\n", name, route)
	}
	return nil
}

func runGenerate(addr, text string, speaker, maxMS int, contextJSON, out string) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("no text given")
	}

	req := protocol.GenerateRequest{
		Text:             text,
		Speaker:          speaker,
		MaxAudioLengthMS: maxMS,
	}
	if contextJSON != "" {
		if err := json.Unmarshal([]byte(contextJSON), &req.Context); err != nil {
			return fmt.Errorf("parse context: %w", err)
		}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return err
	}

	resp, err := httpClient.Post(addr+"/generate", "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("call %s: %w", addr, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("generate failed (%d): %s", resp.StatusCode, errorDetail(raw))
	}

	var result protocol.GenerateResponse
	if err := json.Unmarshal(raw, &result); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	wav, err := base64.StdEncoding.DecodeString(result.AudioBase64)
	if err != nil {
		return fmt.Errorf("decode audio payload: %w", err)
	}
	if err := os.WriteFile(out, wav, 0o644); err != nil {
		return err
	}
	fmt.Printf("wrote %s (%d ms at %d Hz)\n", out, result.DurationMS, result.SampleRate)
	return nil
}

func runHistory(addr string, limit int) error {
	var records []history.Record
	if err := getJSON(fmt.Sprintf("%s/history?limit=%d", addr, limit), &records); err != nil {
		return err
	}
	for _, rec := range records {
		fmt.Printf("%s  %-7s %-24s %5dms  %q\n",
			rec.CreatedAt.Format(time.RFC3339), rec.Source, rec.Outcome, rec.DurationMS, rec.TextPrefix)
	}
	return nil
}

func getJSON(url string, dst any) error {
	resp, err := httpClient.Get(url)
	if err != nil {
		return fmt.Errorf("call %s: %w", url, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("request failed (%d): %s", resp.StatusCode, errorDetail(raw))
	}
	return json.Unmarshal(raw, dst)
}

func errorDetail(raw []byte) string {
	var errResp protocol.ErrorResponse
	if err := json.Unmarshal(raw, &errResp); err == nil && errResp.Detail != "" {
		return errResp.Detail
	}
	return strings.TrimSpace(string(raw))
}
