package game

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/harun/fablebot/pkg/commandqueue"
	"github.com/harun/fablebot/pkg/llm"
	"github.com/harun/fablebot/pkg/render"
	"github.com/harun/fablebot/pkg/reply"
	"github.com/harun/fablebot/pkg/speech"
	"github.com/harun/fablebot/pkg/transcript"
)

// DefaultMaxDepth bounds generations per inbound event
const DefaultMaxDepth = 8

// DefaultFallback is sent to the player when a turn fails
const DefaultFallback = "The game master lost the thread for a moment. Please try again."

// ErrLoopBudgetExceeded is returned when a chain keeps asking for more generations
var ErrLoopBudgetExceeded = errors.New("turn chain exceeded its generation budget")

// DefaultSeed is the transcript a new game starts from
func DefaultSeed() []transcript.Message {
	return []transcript.Message{
		{Role: transcript.RoleSystem, Content: "The player has confirmed starting a new game. All previous progress is discarded."},
		{Role: transcript.RoleUser, Content: "Start a new game. Describe the setting and who I am."},
	}
}

// Replier delivers rendered turns and failure notices
type Replier interface {
	Deliver(ctx context.Context, d reply.Delivery) error
	SendFallback(ctx context.Context, sessionID, text string) error
}

// AudioSource fetches an inbound voice note to a local path
type AudioSource interface {
	Download(ctx context.Context, destPath string) error
}

// Inbound is a text message or command from a player
type Inbound struct {
	SessionID string
	MessageID int
	Text      string
}

// InboundVoice is a voice note from a player
type InboundVoice struct {
	SessionID string
	MessageID int
	Audio     AudioSource
}

// Config wires the engine's collaborators
type Config struct {
	Store       transcript.Persister
	Generator   llm.Generator
	Transcriber speech.Transcriber
	Renderer    *render.Renderer
	Replier     Replier
	Queue       *commandqueue.CommandQueue
	Dice        Roller

	// MaxDepth caps generations per chain; 0 means DefaultMaxDepth
	MaxDepth int
	// Seed replaces the transcript on a new game; nil means DefaultSeed
	Seed []transcript.Message
	// Fallback is sent on failure; empty disables it
	Fallback string
	// TempDir receives downloaded voice notes
	TempDir string
	Logger  zerolog.Logger
}

// Engine runs turn chains for all sessions
type Engine struct {
	store       transcript.Persister
	generator   llm.Generator
	transcriber speech.Transcriber
	renderer    *render.Renderer
	replier     Replier
	queue       *commandqueue.CommandQueue
	dice        Roller
	maxDepth    int
	seed        []transcript.Message
	fallback    string
	tempDir     string
	logger      zerolog.Logger
}

// New validates cfg and builds an Engine
func New(cfg Config) (*Engine, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.Generator == nil {
		return nil, fmt.Errorf("generator is required")
	}
	if cfg.Replier == nil {
		return nil, fmt.Errorf("replier is required")
	}
	if cfg.Queue == nil {
		return nil, fmt.Errorf("queue is required")
	}
	if cfg.Renderer == nil {
		cfg.Renderer = render.New()
	}
	if cfg.Dice == nil {
		cfg.Dice = NewRandomRoller()
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = DefaultMaxDepth
	}
	if len(cfg.Seed) == 0 {
		cfg.Seed = DefaultSeed()
	}
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}

	return &Engine{
		store:       cfg.Store,
		generator:   cfg.Generator,
		transcriber: cfg.Transcriber,
		renderer:    cfg.Renderer,
		replier:     cfg.Replier,
		queue:       cfg.Queue,
		dice:        cfg.Dice,
		maxDepth:    cfg.MaxDepth,
		seed:        cfg.Seed,
		fallback:    cfg.Fallback,
		tempDir:     cfg.TempDir,
		logger:      cfg.Logger.With().Str("component", "game").Logger(),
	}, nil
}
