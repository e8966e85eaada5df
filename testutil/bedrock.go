package testutil

import (
	"context"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

// FakeConverse answers every Converse call with Reply unless Output or Err is set.
type FakeConverse struct {
	mu     sync.Mutex
	Reply  string
	Output *bedrockruntime.ConverseOutput
	Err    error
	Inputs []*bedrockruntime.ConverseInput
}

func NewFakeConverse(reply string) *FakeConverse {
	return &FakeConverse{Reply: reply}
}

func (f *FakeConverse) Converse(_ context.Context, in *bedrockruntime.ConverseInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Inputs = append(f.Inputs, in)
	if f.Err != nil {
		return nil, f.Err
	}
	if f.Output != nil {
		return f.Output, nil
	}
	return &bedrockruntime.ConverseOutput{
		Output: &brtypes.ConverseOutputMemberMessage{Value: brtypes.Message{
			Role:    brtypes.ConversationRoleAssistant,
			Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: f.Reply}},
		}},
	}, nil
}
