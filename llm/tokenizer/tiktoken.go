package tokenizer

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/BaSui01/stategraph/types"
)

type encodingInfo struct {
	encoding  string
	maxTokens int
}

// modelEncodings 模型名称到 tiktoken 编码和上下文大小的映射
var modelEncodings = map[string]encodingInfo{
	"gpt-4o":        {encoding: "o200k_base", maxTokens: 128000},
	"gpt-4o-mini":   {encoding: "o200k_base", maxTokens: 128000},
	"gpt-4.1":       {encoding: "o200k_base", maxTokens: 1047576},
	"gpt-4-turbo":   {encoding: "cl100k_base", maxTokens: 128000},
	"gpt-4":         {encoding: "cl100k_base", maxTokens: 8192},
	"gpt-3.5-turbo": {encoding: "cl100k_base", maxTokens: 16385},
}

// TiktokenTokenizer counts tokens with tiktoken for OpenAI-family models.
type TiktokenTokenizer struct {
	model     string
	encoding  string
	maxTokens int

	once    sync.Once
	enc     *tiktoken.Tiktoken
	initErr error
}

// NewTiktokenTokenizer creates a tokenizer for model. Unknown models use
// cl100k_base with an 8k context. The encoding is loaded on first use.
func NewTiktokenTokenizer(model string) *TiktokenTokenizer {
	info, ok := lookupEncoding(model)
	if !ok {
		info = encodingInfo{encoding: "cl100k_base", maxTokens: 8192}
	}
	return newTiktoken(model, info)
}

func newTiktoken(model string, info encodingInfo) *TiktokenTokenizer {
	return &TiktokenTokenizer{model: model, encoding: info.encoding, maxTokens: info.maxTokens}
}

// init 延迟加载编码（首次使用时可能需要下载 BPE 数据）
func (t *TiktokenTokenizer) init() error {
	t.once.Do(func() {
		enc, err := tiktoken.GetEncoding(t.encoding)
		if err != nil {
			t.initErr = fmt.Errorf("init tiktoken encoding %s: %w", t.encoding, err)
			return
		}
		t.enc = enc
	})
	return t.initErr
}

func (t *TiktokenTokenizer) CountTokens(text string) (int, error) {
	if err := t.init(); err != nil {
		return 0, err
	}
	return len(t.enc.Encode(text, nil, nil)), nil
}

func (t *TiktokenTokenizer) CountMessages(messages []types.Message) (int, error) {
	if err := t.init(); err != nil {
		return 0, err
	}

	total := 0
	for _, msg := range messages {
		// 每条消息的开销: <|start|>role\n content<|end|>\n
		total += 4
		total += len(t.enc.Encode(string(msg.Role), nil, nil))
		total += len(t.enc.Encode(msg.Content, nil, nil))
		if msg.Name != "" {
			total += len(t.enc.Encode(msg.Name, nil, nil))
		}
		for _, tc := range msg.ToolCalls {
			total += len(t.enc.Encode(tc.Name, nil, nil))
			total += len(t.enc.Encode(string(tc.Arguments), nil, nil))
		}
	}
	total += 3
	return total, nil
}

// Encode converts text to token IDs.
func (t *TiktokenTokenizer) Encode(text string) ([]int, error) {
	if err := t.init(); err != nil {
		return nil, err
	}
	return t.enc.Encode(text, nil, nil), nil
}

func (t *TiktokenTokenizer) MaxTokens() int {
	return t.maxTokens
}

func (t *TiktokenTokenizer) Name() string {
	return fmt.Sprintf("tiktoken[%s]", t.encoding)
}
