package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"insight-qa-go/internal/apperr"
	"insight-qa-go/internal/model"
	"insight-qa-go/internal/repository"
	"insight-qa-go/pkg/llm"
	"insight-qa-go/pkg/log"
	"insight-qa-go/pkg/piston"
)

// codingLanguages 是练习可选的语言，顺序即返回给客户端的顺序。
var codingLanguages = []string{
	"python", "javascript", "java", "cpp", "c", "csharp", "go",
	"typescript", "kotlin", "rust", "ruby", "php", "swift",
}

const hiddenMask = "(hidden)"

// RuntimeLister 列出执行服务上安装的运行时，Piston 客户端实现了它。
type RuntimeLister interface {
	Runtimes(ctx context.Context) (map[string][]string, error)
}

// LanguageAvailability 描述各语言能否在执行服务上运行。
type LanguageAvailability struct {
	Available    map[string]bool     `json:"available"`
	PistonStatus bool                `json:"piston_status"`
	Runtimes     map[string][]string `json:"runtimes,omitempty"`
	Message      string              `json:"message"`
}

// GenerateExerciseRequest 是出题参数。
type GenerateExerciseRequest struct {
	Topic      string `json:"topic"`
	Difficulty string `json:"difficulty"`
	Language   string `json:"language"`
}

// ValidationResult 是代码评审结果，模型输出无法解析时只有 Raw。
type ValidationResult struct {
	Validation *model.CodingValidation `json:"validation,omitempty"`
	Raw        string                  `json:"raw,omitempty"`
}

// HintResult 是提示结果，模型输出无法解析时只有 Raw。
type HintResult struct {
	Attempt int      `json:"attempt"`
	Hints   []string `json:"hints,omitempty"`
	Raw     string   `json:"raw,omitempty"`
}

// SolutionResult 是参考解答，模型输出无法解析时只有 Raw。
type SolutionResult struct {
	Solution *model.CodingSolution `json:"solution,omitempty"`
	Raw      string                `json:"raw,omitempty"`
}

// CodingService 定义了编程练习的业务接口。
type CodingService interface {
	Languages(ctx context.Context) LanguageAvailability
	Generate(ctx context.Context, sessionID string, req GenerateExerciseRequest) (map[string]any, error)
	Validate(ctx context.Context, sessionID, code, language string) (*ValidationResult, error)
	Hint(ctx context.Context, sessionID string) (*HintResult, error)
	Run(ctx context.Context, sessionID, code, language string) (*model.CodingRunResult, error)
	Solution(ctx context.Context, sessionID string) (*SolutionResult, error)
}

type codingService struct {
	gen         Generator
	executor    piston.Executor
	repo        repository.CodingRepository
	historySize int
	numHints    int
}

// NewCodingService 创建一个新的 CodingService 实例。
func NewCodingService(gen Generator, executor piston.Executor, repo repository.CodingRepository, historySize, numHints int) CodingService {
	if historySize <= 0 {
		historySize = 10
	}
	if numHints <= 0 {
		numHints = 3
	}
	return &codingService{gen: gen, executor: executor, repo: repo, historySize: historySize, numHints: numHints}
}

func (s *codingService) Languages(ctx context.Context) LanguageAvailability {
	status := s.executor.Available(ctx)
	out := LanguageAvailability{
		Available:    make(map[string]bool, len(codingLanguages)),
		PistonStatus: status,
		Message:      "All languages run remotely via the Piston API.",
	}
	for _, lang := range codingLanguages {
		out.Available[lang] = status && piston.Supported(lang)
	}
	if !status {
		out.Message = "Piston API is unreachable, code execution is unavailable."
		return out
	}
	if lister, ok := s.executor.(RuntimeLister); ok {
		runtimes, err := lister.Runtimes(ctx)
		if err != nil {
			log.Warnf("[CodingService] 获取运行时列表失败: %v", err)
		} else {
			out.Runtimes = runtimes
		}
	}
	return out
}

// Generate 生成一道新题目并替换会话中的当前题目，返回隐藏用例被移除后的视图。
func (s *codingService) Generate(ctx context.Context, sessionID string, req GenerateExerciseRequest) (map[string]any, error) {
	topic := strings.TrimSpace(req.Topic)
	if topic == "" {
		return nil, apperr.Validation("Please provide a topic", nil)
	}
	difficulty := strings.ToLower(strings.TrimSpace(req.Difficulty))
	if difficulty == "" {
		difficulty = "beginner"
	}
	language := strings.ToLower(strings.TrimSpace(req.Language))
	if language == "" {
		language = "python"
	}
	if !piston.Supported(language) {
		return nil, apperr.Validation(fmt.Sprintf("Unsupported language: %s", language), nil)
	}

	log.Infof("[CodingService] 步骤1: 读取历史题目, SessionID: %s, Topic: %s, Difficulty: %s", sessionID, topic, difficulty)
	previous, err := s.repo.PreviousExercises(ctx, sessionID)
	if err != nil {
		log.Warnf("[CodingService] 读取历史题目失败, 按无历史处理: %v", err)
		previous = nil
	}

	prompt := render(codingExercisePrompt,
		"topic", topic,
		"difficulty", difficulty,
		"language", language,
		"previous_context", previousContext(previous, topic, difficulty),
		"language_upper", strings.ToUpper(language),
		"output_note", outputNote(language),
		"example_code", exampleCode(language),
		"example_output", "expected_result",
	)

	log.Infof("[CodingService] 步骤2: 调用 LLM 生成题目")
	raw, err := s.gen.Generate(ctx, prompt)
	if err != nil {
		return nil, apperr.External("exercise generation failed", err)
	}
	var exercise model.CodingExercise
	if err := llm.DecodeJSON(raw, &exercise); err != nil || strings.TrimSpace(exercise.Title) == "" {
		if err == nil {
			err = errors.New("exercise title missing")
		}
		log.Warnf("[CodingService] 题目 JSON 解析失败: %v", err)
		return nil, apperr.External("Failed to generate structured exercise. Please try again.", err)
	}
	exercise.Topic = topic
	exercise.Difficulty = difficulty
	exercise.Language = language
	exercise.CreatedAt = time.Now()

	log.Infof("[CodingService] 步骤3: 保存题目, Title: %s, Visible: %d, Hidden: %d",
		exercise.Title, len(exercise.VisibleTestCases), len(exercise.HiddenTestCases))
	if err := s.repo.SaveExercise(ctx, sessionID, &exercise); err != nil {
		return nil, apperr.External("failed to save exercise", err)
	}
	prev := model.PreviousExercise{Topic: topic, Difficulty: difficulty, Language: language, Title: exercise.Title}
	if err := s.repo.AppendPreviousExercise(ctx, sessionID, prev, s.historySize); err != nil {
		log.Warnf("[CodingService] 记录历史题目失败: %v", err)
	}
	return exercise.PublicView(), nil
}

// previousContext 列出同一主题和难度下已出过的题目，要求模型避开。
func previousContext(previous []model.PreviousExercise, topic, difficulty string) string {
	var titles []string
	for _, p := range previous {
		if strings.EqualFold(p.Topic, topic) && p.Difficulty == difficulty && p.Title != "" {
			titles = append(titles, "- "+p.Title)
		}
	}
	if len(titles) == 0 {
		return ""
	}
	return "\n\nIMPORTANT: You have previously generated these exercises for this topic and difficulty:\n" +
		strings.Join(titles, "\n") +
		"\n\nYou MUST create a COMPLETELY DIFFERENT exercise. Use different:\n" +
		"- Problem statement and scenario\n" +
		"- Function names\n" +
		"- Input/output requirements\n" +
		"- Edge cases and examples\n" +
		"DO NOT repeat any of the above exercises.\n"
}

func (s *codingService) Validate(ctx context.Context, sessionID, code, language string) (*ValidationResult, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, apperr.Validation("Please provide your code", nil)
	}
	exercise, err := s.activeExercise(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if language == "" {
		language = exercise.Language
	}

	prompt := render(codingValidationPrompt,
		"title", exercise.Title,
		"language", language,
		"user_code", code,
		"test_results", "Validation in progress...",
	)
	raw, err := s.gen.Generate(ctx, prompt)
	if err != nil {
		return nil, apperr.External("code validation failed", err)
	}
	var v model.CodingValidation
	if err := llm.DecodeJSON(raw, &v); err != nil {
		log.Warnf("[CodingService] 评审 JSON 解析失败, 返回原文: %v", err)
		return &ValidationResult{Raw: strings.TrimSpace(raw)}, nil
	}
	return &ValidationResult{Validation: &v}, nil
}

func (s *codingService) Hint(ctx context.Context, sessionID string) (*HintResult, error) {
	exercise, err := s.activeExercise(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	attempt, err := s.repo.IncrHintAttempt(ctx, sessionID)
	if err != nil {
		log.Warnf("[CodingService] 更新提示次数失败: %v", err)
		attempt = 1
	}

	prompt := render(codingHintPrompt,
		"title", exercise.Title,
		"description", exercise.Description,
		"language", exercise.Language,
		"attempt", strconv.Itoa(attempt),
		"num_hints", strconv.Itoa(s.numHints),
	)
	raw, err := s.gen.Generate(ctx, prompt)
	if err != nil {
		return nil, apperr.External("hint generation failed", err)
	}
	var parsed struct {
		Hints []string `json:"hints"`
	}
	if err := llm.DecodeJSON(raw, &parsed); err != nil || len(parsed.Hints) == 0 {
		return &HintResult{Attempt: attempt, Raw: strings.TrimSpace(raw)}, nil
	}
	return &HintResult{Attempt: attempt, Hints: parsed.Hints}, nil
}

func (s *codingService) Solution(ctx context.Context, sessionID string) (*SolutionResult, error) {
	exercise, err := s.activeExercise(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	prompt := render(codingSolutionPrompt,
		"title", exercise.Title,
		"description", exercise.Description,
		"language", exercise.Language,
	)
	raw, err := s.gen.Generate(ctx, prompt)
	if err != nil {
		return nil, apperr.External("solution generation failed", err)
	}
	var sol model.CodingSolution
	if err := llm.DecodeJSON(raw, &sol); err != nil {
		log.Warnf("[CodingService] 解答 JSON 解析失败, 返回原文: %v", err)
		return &SolutionResult{Raw: strings.TrimSpace(raw)}, nil
	}
	return &SolutionResult{Solution: &sol}, nil
}

// Run 把用户代码与每个用例拼接后在 Piston 上执行，隐藏用例的细节会被遮蔽。
func (s *codingService) Run(ctx context.Context, sessionID, code, language string) (*model.CodingRunResult, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, apperr.Validation("Please provide code to run", nil)
	}
	exercise, err := s.activeExercise(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	language = strings.ToLower(strings.TrimSpace(language))
	if language == "" {
		language = exercise.Language
	}
	if !piston.Supported(language) {
		return nil, apperr.Validation(fmt.Sprintf("Real execution not supported for %s", language), nil)
	}

	tests := append(append([]model.CodingTestCase{}, exercise.VisibleTestCases...), exercise.HiddenTestCases...)
	visible := len(exercise.VisibleTestCases)
	log.Infof("[CodingService] 运行代码, SessionID: %s, Language: %s, Visible: %d, Hidden: %d",
		sessionID, language, visible, len(exercise.HiddenTestCases))

	result := &model.CodingRunResult{Total: len(tests), Results: make([]model.TestCaseResult, 0, len(tests))}
	for i, tc := range tests {
		testCode := stripFences(unescapeTestCode(tc.Code))
		expected := unescapeTestCode(strings.TrimSpace(string(tc.ExpectedOutput)))

		exec := s.executor.Execute(ctx, combineCode(language, code, testCode), language)
		passed := exec.Success && exec.Output == expected
		if passed {
			result.Passed++
		}

		r := model.TestCaseResult{
			TestNum:  i + 1,
			Visible:  i < visible,
			Passed:   passed,
			Actual:   exec.Output,
			Expected: expected,
			Code:     testCode,
		}
		if !exec.Success {
			r.Error = exec.Error
		}
		if !r.Visible {
			// 报错信息可能回显测试代码
			r.Actual, r.Expected, r.Code = hiddenMask, hiddenMask, hiddenMask
			if r.Error != "" {
				r.Error = hiddenMask
			}
		}
		result.Results = append(result.Results, r)
	}
	result.AllPassed = result.Passed == result.Total
	log.Infof("[CodingService] 运行完成, Passed: %d/%d", result.Passed, result.Total)
	return result, nil
}

func (s *codingService) activeExercise(ctx context.Context, sessionID string) (*model.CodingExercise, error) {
	exercise, err := s.repo.GetExercise(ctx, sessionID)
	if err != nil {
		return nil, apperr.External("failed to load exercise", err)
	}
	if exercise == nil {
		return nil, apperr.NotFound("No active exercise. Generate an exercise first.")
	}
	return exercise, nil
}

// unescapeTestCode 还原模型在 JSON 字符串里多转义了一层的字符。
func unescapeTestCode(s string) string {
	s = strings.ReplaceAll(s, `\n`, "\n")
	s = strings.ReplaceAll(s, `\t`, "\t")
	s = strings.ReplaceAll(s, `\"`, `"`)
	return strings.ReplaceAll(s, `\\`, `\`)
}

// stripFences 去掉包裹测试代码的 markdown 代码块。
func stripFences(code string) string {
	code = strings.TrimSpace(code)
	if !strings.HasPrefix(code, "```") {
		return code
	}
	lines := strings.Split(code, "\n")[1:]
	if n := len(lines); n > 0 && strings.TrimSpace(lines[n-1]) == "```" {
		lines = lines[:n-1]
	}
	return strings.Join(lines, "\n")
}

// combineCode 把用户代码与测试代码拼成一个可执行文件。
// Java 的 import 与 C# 的 using 必须位于文件开头，合并去重后前置。
func combineCode(language, userCode, testCode string) string {
	switch language {
	case "csharp":
		return hoistAndJoin("using ", userCode, testCode)
	case "java":
		return hoistAndJoin("import ", userCode, testCode)
	case "python", "ruby":
		return userCode + "\n\n# Test execution\n" + testCode
	default:
		return userCode + "\n\n// Test execution\n" + testCode
	}
}

func hoistAndJoin(prefix, userCode, testCode string) string {
	var heads []string
	seen := make(map[string]bool)
	split := func(code string) []string {
		var rest []string
		for _, line := range strings.Split(code, "\n") {
			if !strings.HasPrefix(strings.TrimSpace(line), prefix) {
				rest = append(rest, line)
				continue
			}
			if !seen[line] {
				seen[line] = true
				heads = append(heads, line)
			}
		}
		return rest
	}
	userRest := split(userCode)
	testRest := split(testCode)
	return strings.Join(heads, "\n") + "\n\n" + strings.Join(userRest, "\n") + "\n\n// Test execution\n" + strings.Join(testRest, "\n")
}
