package model

import "time"

// CodingExample 是题目描述中的示例。
type CodingExample struct {
	Input       FlexText `json:"input"`
	Output      FlexText `json:"output"`
	Explanation FlexText `json:"explanation,omitempty"`
}

// CodingTestCase 是一段可执行的测试代码及其期望输出。
// 模型偶尔会把期望输出写成数字或数组，用 FlexText 兜底。
type CodingTestCase struct {
	Code           string   `json:"code"`
	ExpectedOutput FlexText `json:"expected_output"`
}

// CodingExercise 是由模型生成的一道编程练习。
type CodingExercise struct {
	Topic            string           `json:"topic"`
	Difficulty       string           `json:"difficulty"`
	Language         string           `json:"language"`
	Title            string           `json:"title"`
	Description      string           `json:"description"`
	InputFormat      string           `json:"input_format"`
	OutputFormat     string           `json:"output_format"`
	Constraints      []string         `json:"constraints"`
	Examples         []CodingExample  `json:"examples"`
	VisibleTestCases []CodingTestCase `json:"visible_test_cases"`
	HiddenTestCases  []CodingTestCase `json:"hidden_test_cases"`
	Hints            []string         `json:"hints"`
	StarterCode      string           `json:"starter_code"`
	CreatedAt        time.Time        `json:"created_at"`
}

// PublicView 返回可以下发给客户端的题目，隐藏用例只保留数量。
func (e *CodingExercise) PublicView() map[string]any {
	return map[string]any{
		"title":              e.Title,
		"topic":              e.Topic,
		"difficulty":         e.Difficulty,
		"language":           e.Language,
		"description":        e.Description,
		"input_format":       e.InputFormat,
		"output_format":      e.OutputFormat,
		"constraints":        e.Constraints,
		"examples":           e.Examples,
		"hints":              e.Hints,
		"starter_code":       e.StarterCode,
		"visible_test_cases": e.VisibleTestCases,
		"hidden_test_count":  len(e.HiddenTestCases),
	}
}

// PreviousExercise 记录已生成过的题目，用于避免重复出题。
type PreviousExercise struct {
	Topic      string `json:"topic"`
	Difficulty string `json:"difficulty"`
	Language   string `json:"language"`
	Title      string `json:"title"`
}

// TestCaseResult 是单个测试用例的执行结果。隐藏用例的细节会被遮蔽。
type TestCaseResult struct {
	TestNum  int    `json:"test_num"`
	Visible  bool   `json:"visible"`
	Passed   bool   `json:"passed"`
	Actual   string `json:"actual"`
	Expected string `json:"expected"`
	Error    string `json:"error,omitempty"`
	Code     string `json:"code"`
}

// CodingRunResult 汇总一次提交的全部用例结果。
type CodingRunResult struct {
	Passed    int              `json:"passed"`
	Total     int              `json:"total"`
	AllPassed bool             `json:"all_passed"`
	Results   []TestCaseResult `json:"results"`
}

// CodingValidation 是模型对提交代码的评审。
type CodingValidation struct {
	ValidationStatus string   `json:"validation_status"`
	Feedback         string   `json:"feedback"`
	Suggestions      []string `json:"suggestions"`
	Score            int      `json:"score"`
}

// CodingSolution 是模型生成的参考解答。
type CodingSolution struct {
	SolutionCode string   `json:"solution_code"`
	Explanation  string   `json:"explanation"`
	Complexity   string   `json:"complexity"`
	Alternatives []string `json:"alternatives"`
}
