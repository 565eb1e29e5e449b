// Copyright 2025 Gurubase, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command gururet runs one context retrieval against a guru's collections
// and prints the result as JSON.
//
// Usage:
//
//	gururet query --config config.yaml --guru anteon "How do I run a load test?"
//	gururet validate --config config.yaml
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/alecthomas/kong"

	gurubase "github.com/Gurubase/gurubase-sub000"
	"github.com/Gurubase/gurubase-sub000/config"
	"github.com/Gurubase/gurubase-sub000/embedder"
	"github.com/Gurubase/gurubase-sub000/llm"
	"github.com/Gurubase/gurubase-sub000/rerank"
	"github.com/Gurubase/gurubase-sub000/retrieval"
	"github.com/Gurubase/gurubase-sub000/vector"
)

// CLI defines the command-line interface.
type CLI struct {
	Version  VersionCmd  `cmd:"" help:"Show version information."`
	Query    QueryCmd    `cmd:"" help:"Run one retrieval and print the result as JSON."`
	Validate ValidateCmd `cmd:"" help:"Validate a configuration file."`

	Config   string `short:"c" help:"Path to config file." type:"path" default:"config.yaml"`
	LogLevel string `help:"Log level (debug, info, warn, error)." default:"info"`
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Println(gurubase.GetVersion())
	return nil
}

// ValidateCmd loads and validates the configuration file.
type ValidateCmd struct{}

func (c *ValidateCmd) Run(cli *CLI) error {
	if _, err := config.Load(cli.Config); err != nil {
		return err
	}
	fmt.Printf("%s is valid\n", cli.Config)
	return nil
}

// QueryCmd runs one retrieval.
type QueryCmd struct {
	Question string `arg:"" help:"The polished question."`

	Guru         string        `required:"" help:"Guru slug naming the knowledge domain."`
	UserQuestion string        `name:"user-question" help:"The user's raw phrasing (defaults to the question)."`
	Enhanced     string        `help:"Query-expanded question variant (defaults to the question)."`
	LLMEval      bool          `name:"llm-eval" help:"Use the lower evaluation rerank threshold."`
	Timeout      time.Duration `help:"Overall retrieval timeout." default:"2m"`
	Skips        bool          `help:"Include skipped candidates in the output."`
}

func (c *QueryCmd) Run(cli *CLI) error {
	cfg, err := config.Load(cli.Config)
	if err != nil {
		return err
	}
	cfg.ExpandEnv()

	provider, err := vector.NewProviderFromConfig(cfg.VectorStore)
	if err != nil {
		return fmt.Errorf("failed to create vector store: %w", err)
	}
	defer provider.Close()

	emb, err := embedder.NewFromConfig(cfg.Embedder, cfg.EmbeddingCacheSize)
	if err != nil {
		return fmt.Errorf("failed to create embedder: %w", err)
	}

	reranker, err := newReranker(cfg)
	if err != nil {
		return fmt.Errorf("failed to create reranker: %w", err)
	}

	judge, err := llm.NewOpenAIJudge(cfg.Judge)
	if err != nil {
		return fmt.Errorf("failed to create relevance judge: %w", err)
	}

	retriever, err := retrieval.New(cfg, provider, emb, reranker, judge, nil)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.Timeout)
	defer cancel()

	userQuestion := c.UserQuestion
	if userQuestion == "" {
		userQuestion = c.Question
	}
	enhanced := c.Enhanced
	if enhanced == "" {
		enhanced = c.Question
	}

	result, err := retriever.Retrieve(ctx, retrieval.Request{
		Question:         c.Question,
		UserQuestion:     userQuestion,
		EnhancedQuestion: enhanced,
		GuruSlug:         c.Guru,
		LLMEval:          c.LLMEval,
	})
	if err != nil {
		return err
	}

	return printResult(result, c.Skips)
}

// newReranker picks the reranker for the active profile: the remote
// cross-encoder on cloud, the identity reranker on selfhosted where no
// rerank service runs.
func newReranker(cfg *config.Config) (rerank.Reranker, error) {
	if cfg.SelfHosted() || cfg.Reranker.BaseURL == "" {
		return rerank.Noop{}, nil
	}
	return rerank.NewClient(rerank.ClientConfig{
		BaseURL: cfg.Reranker.BaseURL,
		APIKey:  cfg.Reranker.APIKey,
		Timeout: time.Duration(cfg.Reranker.Timeout) * time.Second,
	})
}

func printResult(result *retrieval.Result, withSkips bool) error {
	out := struct {
		*retrieval.Result
		OutOfContext bool             `json:"out_of_context"`
		Skips        []retrieval.Skip `json:"skips,omitempty"`
	}{
		Result:       result,
		OutOfContext: result.OutOfContext(),
	}
	if withSkips {
		out.Skips = result.Skips
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(out)
}

func main() {
	_ = config.LoadDotEnv()

	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("gururet"),
		kong.Description("Gurubase context retrieval and trust filtering."),
		kong.UsageOnError(),
	)

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLogLevel(cli.LogLevel),
	})))

	err := ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
