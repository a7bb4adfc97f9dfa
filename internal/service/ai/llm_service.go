package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	"github.com/zhouzirui/roboadvisor/client/internal/analysis/topic"
	"github.com/zhouzirui/roboadvisor/client/internal/config"
	"github.com/zhouzirui/roboadvisor/client/internal/model/chat"
)

const historyLimit = 10

// Service answers investment questions through an Ark chat model.
type Service struct {
	chain  compose.Runnable[map[string]any, *schema.Message]
	system string
	logger *zap.Logger
}

// NewService builds the prompt chain on top of the configured chat model.
func NewService(ctx context.Context, cfg config.AIConfig, logger *zap.Logger) (*Service, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}
	return NewServiceWithModel(ctx, chatModel, cfg.SystemNotes, logger)
}

// NewServiceWithModel wires an existing chat model into the prompt chain.
func NewServiceWithModel(ctx context.Context, chatModel model.ChatModel, notes string, logger *zap.Logger) (*Service, error) {
	if chatModel == nil {
		return nil, fmt.Errorf("chat model is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &Service{
		chain:  runnable,
		system: buildSystemPrompt(notes),
		logger: logger,
	}, nil
}

// Reply generates an answer for question given the prior turns of the session.
func (s *Service) Reply(ctx context.Context, history []chat.Message, question string) (string, error) {
	decision := topic.Classify(question)
	input := map[string]any{
		"system":  s.system + topicHint(decision),
		"history": buildHistoryMessages(history),
		"query":   question,
	}

	response, err := s.chain.Invoke(ctx, input)
	if err != nil {
		return "", fmt.Errorf("failed to run AI chain: %w", err)
	}

	answer := strings.TrimSpace(response.Content)
	if answer == "" {
		return "", fmt.Errorf("empty answer from model")
	}

	s.logger.Info("generated answer",
		zap.String("category", string(decision.Category)),
		zap.Int("history", len(history)),
		zap.Int("length", len(answer)),
	)
	return answer, nil
}

func buildHistoryMessages(messages []chat.Message) []*schema.Message {
	history := make([]*schema.Message, 0, min(len(messages), historyLimit))
	for _, msg := range messages {
		if msg.Pending {
			continue
		}
		switch msg.Sender {
		case chat.SenderUser:
			history = append(history, schema.UserMessage(msg.Content))
		case chat.SenderAI:
			history = append(history, schema.AssistantMessage(msg.Content, nil))
		}
	}

	if len(history) > historyLimit {
		history = history[len(history)-historyLimit:]
	}
	if len(history) == 0 {
		return nil
	}
	return history
}
