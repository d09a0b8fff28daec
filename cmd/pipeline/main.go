package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	api "github.com/DanielWarg/copy-paste/api/v1alpha1"
	"github.com/DanielWarg/copy-paste/internal/client"
	"github.com/DanielWarg/copy-paste/internal/config"
	"github.com/DanielWarg/copy-paste/internal/pipeline"
	"github.com/DanielWarg/copy-paste/pkg/log"
)

func main() {
	command := newPipelineCommand()
	if err := command.Execute(); err != nil {
		os.Exit(1)
	}
}

type pipelineCmd struct {
	clientConfig *client.Config

	configFile string
	inputType  string
	value      string
	audioFile  string
	title      string
	production bool
}

func newPipelineCommand() *pipelineCmd {
	cfg, err := config.New()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error reading configuration: %v\n", err)
		os.Exit(1)
	}

	zap.ReplaceGlobals(log.InitFromLevel(cfg.Service.LogLevel))

	p := &pipelineCmd{
		clientConfig: &client.Config{
			Service:               client.Service{Server: cfg.Service.BaseURL},
			Mode:                  cfg.Service.Mode,
			RequestTimeoutSeconds: cfg.Service.RequestTimeoutSeconds,
		},
	}

	flag.StringVar(&p.configFile, "config", "", "Path to an optional client configuration file (overrides environment).")
	flag.StringVar(&p.inputType, "type", "text", "Input type: url, text or audio.")
	flag.StringVar(&p.value, "value", "", "The URL or pasted text to process.")
	flag.StringVar(&p.audioFile, "file", "", "Path to an audio file (audio input only).")
	flag.StringVar(&p.title, "title", "", "Optional record title (audio input only).")
	flag.BoolVar(&p.production, "production", false, "Production mode: privacy-gate failures are fatal, no fallback.")

	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage of %s:\n", os.Args[0])
		fmt.Println("Runs one editorial input through ingest, privacy scrub and draft generation.")
		flag.PrintDefaults()
	}

	flag.Parse()

	if p.configFile != "" {
		fileCfg, err := client.ParseConfigFile(p.configFile)
		if err != nil {
			zap.S().Fatalf("Error parsing config: %v", err)
		}
		p.clientConfig = fileCfg
	}
	if err := p.clientConfig.Validate(); err != nil {
		zap.S().Fatalf("Error validating config: %v", err)
	}

	return p
}

func (p *pipelineCmd) Execute() error {
	ctx := context.Background()

	backend := p.newBackend()

	if p.clientConfig.Mode == client.ModeLive {
		checker := client.NewHealthChecker(backend)
		state := checker.Check(ctx)
		if !state.Health {
			zap.S().Warn("backend unreachable, requests will likely fail")
		} else if !state.Ready {
			zap.S().Warn("backend is up but not ready")
		}
	}

	input, err := p.buildInput()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return err
	}

	orch := pipeline.New(backend)
	snap, err := orch.Submit(ctx, input)
	if err != nil {
		return printFailure(snap)
	}

	if snap.State == pipeline.StateAwaitingApproval {
		snap, err = p.approve(ctx, orch, snap)
		if err != nil {
			return printFailure(snap)
		}
	}

	printDraft(snap)
	return nil
}

func (p *pipelineCmd) newBackend() client.Backend {
	if p.clientConfig.Mode == client.ModeMock {
		return client.NewMock()
	}
	return client.New(p.clientConfig)
}

func (p *pipelineCmd) buildInput() (pipeline.Input, error) {
	input := pipeline.Input{
		Value:          p.value,
		Title:          p.title,
		ProductionMode: p.production,
	}
	switch p.inputType {
	case "url":
		input.Kind = api.InputTypeURL
	case "text":
		input.Kind = api.InputTypeText
	case "audio":
		input.Kind = api.InputTypeAudio
		if p.audioFile == "" {
			return input, errors.New("audio input requires -file")
		}
		data, err := os.ReadFile(p.audioFile)
		if err != nil {
			return input, fmt.Errorf("reading audio file: %w", err)
		}
		input.Audio = data
		input.Filename = p.audioFile
	default:
		return input, fmt.Errorf("unknown input type %q", p.inputType)
	}
	return input, nil
}

func (p *pipelineCmd) approve(ctx context.Context, orch *pipeline.Orchestrator, snap pipeline.Snapshot) (pipeline.Snapshot, error) {
	fmt.Println(snap.Progress)
	fmt.Print("Approval token (empty to abort): ")
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		orch.Reset()
		return snap, fmt.Errorf("reading approval token: %w", err)
	}
	token := strings.TrimSpace(line)
	if token == "" {
		orch.Reset()
		return snap, errors.New("aborted at approval gate")
	}
	return orch.Approve(ctx, token)
}

func printDraft(snap pipeline.Snapshot) {
	fmt.Println("--- Utkast ---")
	if snap.Draft == nil {
		return
	}
	fmt.Println(snap.Draft.Text)
	if len(snap.Draft.Citations) > 0 {
		fmt.Println("--- Källor ---")
		for _, c := range snap.Draft.Citations {
			fmt.Printf("  [%s] %.2f %s\n", c.SourceID, c.Confidence, c.Excerpt)
		}
	}
	if len(snap.Draft.PolicyViolations) > 0 {
		fmt.Println("--- Policyflaggor ---")
		for _, v := range snap.Draft.PolicyViolations {
			fmt.Printf("  %s\n", v)
		}
	}
}

func printFailure(snap pipeline.Snapshot) error {
	if snap.Err == nil {
		return errors.New("pipeline failed")
	}
	fmt.Fprintln(os.Stderr, snap.Err.Message)
	if snap.Err.RequestID != "" {
		fmt.Fprintf(os.Stderr, "Request ID: %s\n", snap.Err.RequestID)
	}
	return snap.Err
}
