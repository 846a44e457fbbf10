// Package chat orchestrates one conversation turn: safety checks,
// context assembly, generation, validation, and the post-turn state,
// memory, and session updates.
package chat

import (
	"context"
	"iter"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/easeaico/project-chara/internal/adjust"
	"github.com/easeaico/project-chara/internal/character"
	"github.com/easeaico/project-chara/internal/emotion"
	"github.com/easeaico/project-chara/internal/errs"
	"github.com/easeaico/project-chara/internal/llm"
	"github.com/easeaico/project-chara/internal/memory"
	"github.com/easeaico/project-chara/internal/prompt"
	"github.com/easeaico/project-chara/internal/relationship"
	"github.com/easeaico/project-chara/internal/security"
	"github.com/easeaico/project-chara/internal/session"
	"github.com/easeaico/project-chara/internal/state"
	"github.com/easeaico/project-chara/internal/types"
	"github.com/easeaico/project-chara/internal/validate"
)

// Generator produces completions. *llm.Connector implements it.
type Generator interface {
	Generate(ctx context.Context, messages []prompt.Message, providerName string, opts llm.Options) (*llm.Response, error)
	GenerateStream(ctx context.Context, messages []prompt.Message, providerName string, opts llm.Options) iter.Seq2[string, error]
}

// Request is one incoming chat turn. An empty SessionID starts a new
// session.
type Request struct {
	CharacterID string `json:"character_id"`
	SessionID   string `json:"session_id,omitempty"`
	ClientID    string `json:"client_id,omitempty"`
	Message     string `json:"message"`
	Provider    string `json:"provider,omitempty"`
}

// TurnMetadata carries the per-turn diagnostics returned to clients.
type TurnMetadata struct {
	EmotionDetected   emotion.State `json:"emotion_detected"`
	CharacterEmotion  emotion.State `json:"character_emotion"`
	ConfidenceScore   float64       `json:"confidence_score"`
	ValidationPassed  bool          `json:"validation_passed"`
	Regenerated       bool          `json:"regenerated,omitempty"`
	MemoriesExtracted int           `json:"memories_extracted"`
	Mood              string        `json:"mood,omitempty"`
	RelationshipLevel string        `json:"relationship_level,omitempty"`
	FamiliarityScore  float64       `json:"familiarity_score,omitempty"`
}

// Reply is the completed turn.
type Reply struct {
	SessionID    string       `json:"session_id"`
	MessageID    string       `json:"message_id"`
	Content      string       `json:"message"`
	Timestamp    time.Time    `json:"timestamp"`
	TokensUsed   int          `json:"tokens_used,omitempty"`
	Provider     string       `json:"provider,omitempty"`
	Model        string       `json:"model,omitempty"`
	ResponseTime float64      `json:"response_time,omitempty"`
	Metadata     TurnMetadata `json:"metadata"`
}

// Deps are the collaborators a Service orchestrates.
type Deps struct {
	Characters    *character.Loader
	Sessions      *session.Manager
	Emotions      *emotion.Manager
	States        *state.Manager
	Memories      *memory.Manager
	Relationships *relationship.Manager
	Prompts       *prompt.Builder
	Validator     *validate.Validator
	Generator     Generator
	Filter        *security.ContentFilter
	Limiter       *security.RateLimiter
}

// Service runs the conversation pipeline.
type Service struct {
	characters *character.Loader
	sessions   *session.Manager
	emotions   *emotion.Manager
	states     *state.Manager
	memories   *memory.Manager
	relations  *relationship.Manager
	adjuster   *adjust.Adjuster
	prompts    *prompt.Builder
	validator  *validate.Validator
	generator  Generator
	filter     *security.ContentFilter
	limiter    *security.RateLimiter

	level validate.Level
}

// NewService wires the pipeline. level selects validation strictness.
func NewService(deps Deps, level validate.Level) *Service {
	if level == "" {
		level = validate.LevelNormal
	}
	return &Service{
		characters: deps.Characters,
		sessions:   deps.Sessions,
		emotions:   deps.Emotions,
		states:     deps.States,
		memories:   deps.Memories,
		relations:  deps.Relationships,
		adjuster:   adjust.NewAdjuster(deps.Emotions, deps.States, deps.Relationships),
		prompts:    deps.Prompts,
		validator:  deps.Validator,
		generator:  deps.Generator,
		filter:     deps.Filter,
		limiter:    deps.Limiter,
		level:      level,
	}
}

// StartSession creates a session for the character and seeds it with a
// tone-matched greeting from the character.
func (s *Service) StartSession(ctx context.Context, characterID string, opts *session.CreateOptions) (*session.Session, error) {
	char, err := s.characters.Get(characterID)
	if err != nil {
		return nil, err
	}
	sess, err := s.sessions.Create(ctx, characterID, opts)
	if err != nil {
		return nil, err
	}
	return s.sessions.AddMessage(ctx, sess.ID, types.Message{
		ID:          newMessageID(),
		SessionID:   sess.ID,
		CharacterID: characterID,
		Role:        types.RoleAssistant,
		Content:     s.prompts.Greeting(char),
	})
}

// Send runs one full turn and returns the character's reply.
func (s *Service) Send(ctx context.Context, req Request) (*Reply, error) {
	turn, err := s.prepareTurn(ctx, req)
	if err != nil {
		return nil, err
	}

	opts := llm.Options{Temperature: turn.character.Temperature, MaxTokens: turn.character.MaxTokens}
	resp, err := s.generator.Generate(ctx, turn.messages, req.Provider, opts)
	if err != nil {
		return nil, err
	}
	content := s.prompts.ConsistencyCheck(resp.Content, turn.character)

	summary := s.validator.Validate(turn.character, req.Message, content,
		validate.Context{PreviousResponse: turn.previousResponse}, s.level)

	regenerated := false
	if summary.RequiresRegeneration {
		if retryContent, retrySummary, retryResp, ok := s.regenerate(ctx, turn, req, opts, summary); ok {
			content, summary, resp = retryContent, retrySummary, retryResp
			regenerated = true
		}
	}

	return s.finishTurn(ctx, turn, req.Message, content, resp, summary, regenerated)
}

// SendStream runs one turn, yielding response chunks as they arrive.
// Post-turn updates happen after the stream completes; streamed content
// is not regenerated.
func (s *Service) SendStream(ctx context.Context, req Request) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		turn, err := s.prepareTurn(ctx, req)
		if err != nil {
			yield("", err)
			return
		}

		opts := llm.Options{Temperature: turn.character.Temperature, MaxTokens: turn.character.MaxTokens}
		var full strings.Builder
		for chunk, err := range s.generator.GenerateStream(ctx, turn.messages, req.Provider, opts) {
			if err != nil {
				yield("", err)
				return
			}
			full.WriteString(chunk)
			if !yield(chunk, nil) {
				return
			}
		}

		content := full.String()
		summary := s.validator.Validate(turn.character, req.Message, content,
			validate.Context{PreviousResponse: turn.previousResponse}, s.level)
		if _, err := s.finishTurn(ctx, turn, req.Message, content, &llm.Response{Content: content}, summary, false); err != nil {
			yield("", err)
		}
	}
}

// turn carries the per-request context assembled before generation.
type turn struct {
	character        *types.Character
	sessionID        string
	userEmotion      emotion.State
	characterEmotion emotion.State
	previousResponse string
	messages         []prompt.Message
	systemContent    string
}

func (s *Service) prepareTurn(ctx context.Context, req Request) (*turn, error) {
	if req.CharacterID == "" {
		return nil, &errs.ValidationError{Field: "character_id", Reason: "角色ID不能为空"}
	}
	if strings.TrimSpace(req.Message) == "" {
		return nil, &errs.ValidationError{Field: "message", Reason: "消息内容不能为空"}
	}
	if err := s.filter.Check(req.Message); err != nil {
		return nil, err
	}
	if err := s.limiter.Allow(clientKey(req)); err != nil {
		return nil, err
	}

	char, err := s.characters.Get(req.CharacterID)
	if err != nil {
		return nil, err
	}

	sess, err := s.ensureSession(ctx, req)
	if err != nil {
		return nil, err
	}

	userEmotion := s.emotions.AnalyzeUserEmotion(req.Message)
	characterEmotion := s.emotions.CharacterReaction(char, userEmotion)
	s.emotions.RecordInteraction(sess.ID, userEmotion, characterEmotion)

	previous := lastAssistantContent(sess)
	history := toHistory(sess.ContextMessages(char.MaxContextLength))

	sess, err = s.sessions.AddMessage(ctx, sess.ID, types.Message{
		ID:        newMessageID(),
		SessionID: sess.ID,
		Role:      types.RoleUser,
		Content:   req.Message,
	})
	if err != nil {
		return nil, err
	}

	blocks, err := s.dynamicBlocks(ctx, char, sess.ID, req.Message, history, characterEmotion)
	if err != nil {
		return nil, err
	}

	messages, err := s.prompts.ContextMessages(char, sess.ContextMessages(char.MaxContextLength), blocks...)
	if err != nil {
		return nil, err
	}
	messages[0].Content = s.prompts.EnhanceSystemPrompt(messages[0].Content, sess.TotalMessages, userEmotion)

	return &turn{
		character:        char,
		sessionID:        sess.ID,
		userEmotion:      userEmotion,
		characterEmotion: characterEmotion,
		previousResponse: previous,
		messages:         messages,
		systemContent:    messages[0].Content,
	}, nil
}

// dynamicBlocks renders the per-turn prompt additions appended to the
// system prompt: state modifiers, relevant memories, context-aware
// adjustments, the emotional pattern, and the consistency hint.
func (s *Service) dynamicBlocks(
	ctx context.Context,
	char *types.Character,
	sessionID, userMessage string,
	history []adjust.HistoryMessage,
	characterEmotion emotion.State,
) ([]string, error) {
	modifiers, err := s.states.PromptModifiers(ctx, char.ID, sessionID)
	if err != nil {
		return nil, err
	}
	adjustments, err := s.adjuster.AdjustmentInstructions(ctx, char, sessionID, userMessage, history)
	if err != nil {
		return nil, err
	}
	return []string{
		modifiers,
		s.memories.SummaryForPrompt(ctx, char.ID, sessionID, userMessage),
		adjustments,
		s.prompts.EmotionalStatePrompt(char, characterEmotion),
		emotion.MoodInstruction(characterEmotion),
		s.emotions.ConsistencyModifier(sessionID, characterEmotion),
	}, nil
}

// regenerate retries the generation once with explicit response
// constraints, keeping the retry only when it validates no worse.
func (s *Service) regenerate(
	ctx context.Context,
	turn *turn,
	req Request,
	opts llm.Options,
	original validate.Summary,
) (string, validate.Summary, *llm.Response, bool) {
	slog.Info("response failed validation, regenerating",
		"character_id", turn.character.ID, "session_id", turn.sessionID,
		"score", original.OverallScore)

	retryMessages := make([]prompt.Message, len(turn.messages))
	copy(retryMessages, turn.messages)
	retryMessages[0].Content = turn.systemContent + "\n\n" + s.prompts.ResponseConstraints(turn.character)

	resp, err := s.generator.Generate(ctx, retryMessages, req.Provider, opts)
	if err != nil {
		slog.Warn("regeneration failed, keeping original response", "error", err)
		return "", validate.Summary{}, nil, false
	}

	content := s.prompts.ConsistencyCheck(resp.Content, turn.character)
	summary := s.validator.Validate(turn.character, req.Message, content,
		validate.Context{PreviousResponse: turn.previousResponse}, s.level)
	if summary.OverallScore < original.OverallScore {
		return "", validate.Summary{}, nil, false
	}
	return content, summary, resp, true
}

// finishTurn applies the post-generation updates and builds the reply.
// State and memory failures are logged, not surfaced; the generated
// reply is already committed.
func (s *Service) finishTurn(
	ctx context.Context,
	turn *turn,
	userMessage, content string,
	resp *llm.Response,
	summary validate.Summary,
	regenerated bool,
) (*Reply, error) {
	meta := TurnMetadata{
		EmotionDetected:  turn.userEmotion,
		CharacterEmotion: turn.characterEmotion,
		ConfidenceScore:  summary.OverallScore,
		ValidationPassed: summary.OverallPassed,
		Regenerated:      regenerated,
	}

	st, err := s.states.UpdateAfterInteraction(ctx, turn.character, turn.sessionID, userMessage, summary.OverallScore)
	if err != nil {
		slog.Warn("failed to update character state", "session_id", turn.sessionID, "error", err)
	} else {
		meta.Mood = string(st.Mood)
		meta.RelationshipLevel = string(st.RelationshipLevel)
		meta.FamiliarityScore = st.FamiliarityScore
	}

	extracted := s.memories.ExtractFromConversation(ctx, turn.character.ID, turn.sessionID, userMessage, content)
	meta.MemoriesExtracted = len(extracted)

	msg := types.Message{
		ID:           newMessageID(),
		SessionID:    turn.sessionID,
		CharacterID:  turn.character.ID,
		Role:         types.RoleAssistant,
		Content:      content,
		TokensUsed:   resp.TokensUsed,
		ResponseTime: resp.ResponseTime,
		ModelUsed:    resp.Model,
		Provider:     resp.Provider,
	}
	sess, err := s.sessions.AddMessage(ctx, turn.sessionID, msg)
	if err != nil {
		return nil, err
	}

	return &Reply{
		SessionID:    turn.sessionID,
		MessageID:    msg.ID,
		Content:      content,
		Timestamp:    sess.UpdatedAt,
		TokensUsed:   resp.TokensUsed,
		Provider:     resp.Provider,
		Model:        resp.Model,
		ResponseTime: resp.ResponseTime,
		Metadata:     meta,
	}, nil
}

func (s *Service) ensureSession(ctx context.Context, req Request) (*session.Session, error) {
	if req.SessionID == "" {
		return s.sessions.Create(ctx, req.CharacterID, nil)
	}
	return s.sessions.Get(ctx, req.SessionID)
}

func clientKey(req Request) string {
	if req.ClientID != "" {
		return req.ClientID
	}
	if req.SessionID != "" {
		return req.SessionID
	}
	return "anonymous"
}

func lastAssistantContent(sess *session.Session) string {
	for i := len(sess.Messages) - 1; i >= 0; i-- {
		if sess.Messages[i].Role == types.RoleAssistant {
			return sess.Messages[i].Content
		}
	}
	return ""
}

func toHistory(messages []prompt.Message) []adjust.HistoryMessage {
	history := make([]adjust.HistoryMessage, 0, len(messages))
	for _, msg := range messages {
		history = append(history, adjust.HistoryMessage{Role: msg.Role, Content: msg.Content})
	}
	return history
}

func newMessageID() string {
	return "msg_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}
