// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"

	"insight-qa-go/pkg/llm"
)

// Generator 是文本生成能力，问答、出题与面试分析都只依赖这一个方法。
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Embedder 把问题转换为向量，必须与导入时使用同一个模型。
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

var _ Generator = llm.Client(nil)
