package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/wolfman30/clinic-voice-agent/internal/calendar"
	"github.com/wolfman30/clinic-voice-agent/internal/dialogue"
	"github.com/wolfman30/clinic-voice-agent/internal/nlu"
	"github.com/wolfman30/clinic-voice-agent/internal/session"
	"github.com/wolfman30/clinic-voice-agent/internal/voice"
	"github.com/wolfman30/clinic-voice-agent/pkg/logging"
)

// turnClient runs one caller turn. Digits, when set, are keypad input.
type turnClient interface {
	Turn(ctx context.Context, callID, text, digits string) (voice.TurnResponse, error)
}

type chatOptions struct {
	url        string
	callID     string
	clinicPath string
	timeout    time.Duration
}

func newChatCmd(root *rootOptions) *cobra.Command {
	opts := &chatOptions{}
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Play the caller in an interactive scheduling call",
		Long: `Each line you type is one spoken turn. Prefix a line with # to send it as
keypad digits, e.g. "#8475550123". The call ends when the agent hangs up or
input ends.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, clinicName, err := opts.client(root.logger(cmd))
			if err != nil {
				return err
			}
			callID := opts.callID
			if callID == "" {
				callID = "SIM-" + uuid.NewString()[:8]
			}
			return runChat(cmd.Context(), client, callID, clinicName, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&opts.url, "url", "", "base URL of a running API; empty runs the agent in-process")
	cmd.Flags().StringVar(&opts.callID, "call-id", "", "call id to use (random by default)")
	cmd.Flags().StringVar(&opts.clinicPath, "clinic", "", "clinic directory JSON for the in-process agent")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 15*time.Second, "per-turn HTTP timeout")
	return cmd
}

func (o *chatOptions) client(logger *logging.Logger) (turnClient, string, error) {
	if o.url != "" {
		return &httpTurnClient{
			baseURL: strings.TrimRight(o.url, "/"),
			http:    &http.Client{Timeout: o.timeout},
		}, "", nil
	}
	clinic, err := calendar.LoadClinic(o.clinicPath)
	if err != nil {
		return nil, "", err
	}
	return newLocalTurnClient(clinic, logger), clinic.Name, nil
}

func runChat(ctx context.Context, client turnClient, callID, clinicName string, in io.Reader, out io.Writer) error {
	if clinicName == "" {
		clinicName = "our clinic"
	}
	fmt.Fprintf(out, "[call %s]\nagent> Hello! Thank you for calling %s. How can I help you today?\n", callID, clinicName)

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "you> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var text, digits string
		if strings.HasPrefix(line, "#") {
			digits = strings.TrimSpace(strings.TrimPrefix(line, "#"))
		} else {
			text = line
		}

		resp, err := client.Turn(ctx, callID, text, digits)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "agent> %s\n", resp.Response)
		if !resp.Active {
			fmt.Fprintln(out, "[call ended]")
			return nil
		}
		if resp.AwaitingSlot != "" {
			fmt.Fprintf(out, "[awaiting %s]\n", resp.AwaitingSlot)
		}
	}
}

// localTurnClient runs the agent in-process with keyword extraction and
// in-memory storage.
type localTurnClient struct {
	machine *dialogue.Machine
}

func newLocalTurnClient(clinic *calendar.Clinic, logger *logging.Logger) *localTurnClient {
	svc := calendar.NewService(clinic, calendar.NewMemoryRepository(), logger)
	return &localTurnClient{machine: dialogue.NewMachine(dialogue.Config{
		Store:        session.NewMemoryStore(logger),
		Extractor:    nlu.NewKeywordExtractor(),
		Availability: svc,
		Booker:       svc,
		Logger:       logger,
		Location:     clinic.Location(),
	})}
}

func (c *localTurnClient) Turn(ctx context.Context, callID, text, digits string) (voice.TurnResponse, error) {
	var reply string
	if digits != "" && c.machine.Active(ctx, callID) {
		reply = c.machine.HandleDigits(ctx, callID, digits)
	} else {
		if text == "" {
			text = digits
		}
		reply = c.machine.HandleTurn(ctx, callID, text)
	}
	awaiting, _ := c.machine.AwaitingSlot(ctx, callID)
	return voice.TurnResponse{
		CallID:       callID,
		Response:     reply,
		Active:       c.machine.Active(ctx, callID),
		AwaitingSlot: awaiting,
	}, nil
}

// httpTurnClient posts turns to POST /api/turns.
type httpTurnClient struct {
	baseURL string
	http    *http.Client
}

func (c *httpTurnClient) Turn(ctx context.Context, callID, text, digits string) (voice.TurnResponse, error) {
	body, err := json.Marshal(voice.TurnRequest{CallID: callID, Text: text, Digits: digits})
	if err != nil {
		return voice.TurnResponse{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/turns", bytes.NewReader(body))
	if err != nil {
		return voice.TurnResponse{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return voice.TurnResponse{}, fmt.Errorf("callsim: turn request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return voice.TurnResponse{}, fmt.Errorf("callsim: turn request returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	var out voice.TurnResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return voice.TurnResponse{}, fmt.Errorf("callsim: decode turn response: %w", err)
	}
	return out, nil
}
