// Package strategies contains the built-in node strategies.
package strategies

import (
	"os"
	"time"

	"github.com/tcmartin/dagrunner/pkg/logging"
	"github.com/tcmartin/dagrunner/pkg/registry"
	"github.com/tcmartin/dagrunner/pkg/scripting"
	"github.com/tcmartin/dagrunner/pkg/utils"
)

// Built-in node types
const (
	TypeLog            = "log"
	TypeHTTP           = "http"
	TypeWait           = "wait"
	TypeJavaScript     = "javascript"
	TypeJSONParse      = "json-parse"
	TypePromptTemplate = "prompt-template"
	TypeMockLLM        = "mock-llm"
	TypeLLMGeneration  = "llm-generation"
	TypeLLMExtract     = "llm-extract"
	TypeExpression     = "expression"
)

// Dependencies are the collaborators shared by the built-in strategies.
// Zero fields are filled with defaults by RegisterDefaults.
type Dependencies struct {
	Logger      logging.Logger
	HTTPClient  *utils.HTTPClient
	Scripts     scripting.ScriptEngine
	Expressions *scripting.JSExpressionEvaluator

	// LLMBaseURL overrides the Gemini endpoint
	LLMBaseURL string

	// Getenv is the last source consulted for API keys
	Getenv func(string) string

	// MockDelay is the simulated latency of mock LLM calls
	MockDelay time.Duration
}

func (d Dependencies) withDefaults() Dependencies {
	if d.Logger == nil {
		d.Logger = logging.NewNopLogger()
	}
	if d.HTTPClient == nil {
		d.HTTPClient = utils.NewHTTPClient()
	}
	if d.Scripts == nil {
		d.Scripts = scripting.NewGojaEngine(d.Logger)
	}
	if d.Expressions == nil {
		d.Expressions = scripting.NewJSExpressionEvaluator()
	}
	if d.LLMBaseURL == "" {
		d.LLMBaseURL = utils.DefaultGeminiBaseURL
	}
	if d.Getenv == nil {
		d.Getenv = os.Getenv
	}
	if d.MockDelay == 0 {
		d.MockDelay = 500 * time.Millisecond
	}
	return d
}

// RegisterDefaults registers every built-in strategy on reg
func RegisterDefaults(reg registry.StrategyRegistry, deps Dependencies) {
	deps = deps.withDefaults()
	llm := &llmSupport{
		getenv:    deps.Getenv,
		baseURL:   deps.LLMBaseURL,
		mockDelay: deps.MockDelay,
		logger:    deps.Logger,
	}

	reg.Register(TypeLog, &LogStrategy{logger: deps.Logger})
	reg.Register(TypeHTTP, &HTTPStrategy{client: deps.HTTPClient, evaluator: deps.Expressions})
	reg.Register(TypeWait, &WaitStrategy{})
	reg.Register(TypeJavaScript, &JavaScriptStrategy{engine: deps.Scripts})
	reg.Register(TypeJSONParse, &JSONParseStrategy{})
	reg.Register(TypePromptTemplate, &PromptTemplateStrategy{})
	reg.Register(TypeMockLLM, &MockLLMStrategy{llm: llm})
	reg.Register(TypeLLMGeneration, &LLMGenerationStrategy{llm: llm})
	reg.Register(TypeLLMExtract, &LLMExtractStrategy{llm: llm})
	reg.Register(TypeExpression, &ExpressionStrategy{evaluator: deps.Expressions})
}
