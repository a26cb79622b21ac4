// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	openai "github.com/sashabaranov/go-openai"
)

const openaiSystemPrompt = `You are a language identification service.
Given a text, respond with a JSON object of the form
{"languages":[{"code":"en","percentage":93.5}, ...]} where "code" is a
lowercase ISO 639-1 code ("und" if undetermined) and the percentages over
all entries sum to 100. Respond with JSON only.`

// DefaultOpenAIModel is used when no model is configured.
const DefaultOpenAIModel = openai.GPT4oMini

// OpenAIOracle classifies text through an OpenAI-compatible chat
// endpoint in JSON mode. It is the remote alternative to LinguaOracle
// for deployments that already run a model server.
type OpenAIOracle struct {
	client *openai.Client
	model  string
}

// NewOpenAIOracle builds an oracle against api.openai.com.
func NewOpenAIOracle(apiKey, model string) *OpenAIOracle {
	return NewOpenAIOracleWithConfig(openai.DefaultConfig(apiKey), model)
}

// NewOpenAIOracleWithConfig builds an oracle with a custom client
// config, which is how tests and self-hosted endpoints override the
// base URL.
func NewOpenAIOracleWithConfig(config openai.ClientConfig, model string) *OpenAIOracle {
	if model == "" {
		model = DefaultOpenAIModel
	}
	return &OpenAIOracle{
		client: openai.NewClientWithConfig(config),
		model:  model,
	}
}

// Classify implements Oracle.
func (o *OpenAIOracle) Classify(ctx context.Context, text string) (*Result, error) {
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: openaiSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOracleUnavailable, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: empty completion", ErrOracleUnavailable)
	}

	var parsed struct {
		Languages []LanguageScore `json:"languages"`
	}
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &parsed); err != nil {
		return nil, fmt.Errorf("%w: malformed completion: %w", ErrOracleUnavailable, err)
	}
	if len(parsed.Languages) == 0 {
		return &Result{
			Reliable:  false,
			Languages: []LanguageScore{{Code: UnknownLanguageCode, Percentage: 100}},
		}, nil
	}

	sort.SliceStable(parsed.Languages, func(i, j int) bool {
		return parsed.Languages[i].Percentage > parsed.Languages[j].Percentage
	})
	return &Result{Reliable: true, Languages: parsed.Languages}, nil
}
