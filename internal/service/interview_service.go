package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"insight-qa-go/internal/apperr"
	"insight-qa-go/internal/config"
	"insight-qa-go/internal/model"
	"insight-qa-go/internal/repository"
	"insight-qa-go/pkg/llm"
	"insight-qa-go/pkg/log"

	"github.com/google/uuid"
)

// 这些占位文本表示没有可用的转写。
var transcriptPlaceholders = map[string]bool{
	"No transcription available": true,
	"No answer provided":         true,
	"No transcript available":    true,
}

const insufficientReason = "Insufficient transcript data"

// GenerateInterviewRequest 是生成面试题的参数。
type GenerateInterviewRequest struct {
	Role           string `json:"role"`
	InterviewType  string `json:"interview_type"`
	AdditionalInfo string `json:"additional_info"`
}

// AnalyzeInterviewRequest 是分析面试的参数，题目或回答为空时使用会话中保存的面试。
type AnalyzeInterviewRequest struct {
	Role          string                    `json:"role"`
	InterviewType string                    `json:"interview_type"`
	Questions     []model.InterviewQuestion `json:"questions"`
	Answers       []model.InterviewAnswer   `json:"answers"`
}

// InterviewService 定义了模拟面试的业务接口。
type InterviewService interface {
	Generate(ctx context.Context, sessionID string, req GenerateInterviewRequest) (*model.Interview, error)
	Answer(ctx context.Context, sessionID string, answer model.InterviewAnswer) error
	Analyze(ctx context.Context, sessionID string, req AnalyzeInterviewRequest) (*model.InterviewReport, error)
}

type interviewService struct {
	gen  Generator
	repo repository.InterviewRepository
	cfg  config.InterviewConfig
}

// NewInterviewService 创建一个新的 InterviewService 实例。
func NewInterviewService(gen Generator, repo repository.InterviewRepository, cfg config.InterviewConfig) InterviewService {
	if cfg.NumQuestions <= 0 {
		cfg.NumQuestions = 5
	}
	if cfg.TimeLimitSeconds <= 0 {
		cfg.TimeLimitSeconds = 180
	}
	if cfg.MinAnswerLength <= 0 {
		cfg.MinAnswerLength = 10
	}
	return &interviewService{gen: gen, repo: repo, cfg: cfg}
}

// Generate 生成一组新面试题，替换会话中已有的面试与回答。
func (s *interviewService) Generate(ctx context.Context, sessionID string, req GenerateInterviewRequest) (*model.Interview, error) {
	role := strings.TrimSpace(req.Role)
	if role == "" {
		role = "General Position"
	}
	interviewType := strings.TrimSpace(req.InterviewType)
	if interviewType == "" {
		interviewType = "Technical Interview"
	}

	additional := ""
	if info := strings.TrimSpace(req.AdditionalInfo); info != "" {
		additional = "Additional context: " + info
	}
	seed := time.Now().UnixMilli() % 1000
	additional += fmt.Sprintf("\n\nIMPORTANT: Generate fresh questions (variation seed: %d). Avoid repeating common interview questions verbatim.", seed)

	prompt := render(interviewQuestionPrompt,
		"interview_type", interviewType,
		"role", role,
		"additional_info_text", additional,
		"num_questions", strconv.Itoa(s.cfg.NumQuestions),
		"time_limit", strconv.Itoa(s.cfg.TimeLimitSeconds),
	)
	log.Infof("[InterviewService] 步骤1: 生成面试题, SessionID: %s, Role: %s, Type: %s", sessionID, role, interviewType)
	raw, err := s.gen.Generate(ctx, prompt)
	if err != nil {
		return nil, apperr.External("interview generation failed", err)
	}
	var parsed struct {
		Questions []model.InterviewQuestion `json:"questions"`
	}
	if err := llm.DecodeJSON(raw, &parsed); err != nil {
		return nil, apperr.External("Failed to parse interview questions.", err)
	}

	questions := make([]model.InterviewQuestion, 0, len(parsed.Questions))
	for _, q := range parsed.Questions {
		if strings.TrimSpace(q.Question) == "" {
			continue
		}
		questions = append(questions, q)
	}
	if len(questions) == 0 {
		return nil, apperr.External("No valid interview questions generated.", nil)
	}
	if len(questions) > s.cfg.NumQuestions {
		questions = questions[:s.cfg.NumQuestions]
	}
	for i := range questions {
		if questions[i].ID <= 0 {
			questions[i].ID = i + 1
		}
		if questions[i].TimeLimit <= 0 {
			questions[i].TimeLimit = s.cfg.TimeLimitSeconds
		}
	}

	interview := &model.Interview{
		ID:             uuid.NewString(),
		Role:           role,
		InterviewType:  interviewType,
		AdditionalInfo: strings.TrimSpace(req.AdditionalInfo),
		Questions:      questions,
		Answers:        []model.InterviewAnswer{},
		CreatedAt:      time.Now(),
	}
	log.Infof("[InterviewService] 步骤2: 保存面试, InterviewID: %s, Questions: %d", interview.ID, len(questions))
	if err := s.repo.SaveInterview(ctx, sessionID, interview); err != nil {
		return nil, apperr.External("failed to save interview", err)
	}
	return interview, nil
}

// Answer 记录一道题的回答，重复作答会覆盖之前的回答。
func (s *interviewService) Answer(ctx context.Context, sessionID string, answer model.InterviewAnswer) error {
	if answer.QuestionID <= 0 {
		return apperr.Validation("question_id is required", nil)
	}
	interview, err := s.activeInterview(ctx, sessionID)
	if err != nil {
		return err
	}

	replaced := false
	for i := range interview.Answers {
		if interview.Answers[i].QuestionID == answer.QuestionID {
			interview.Answers[i] = answer
			replaced = true
			break
		}
	}
	if !replaced {
		interview.Answers = append(interview.Answers, answer)
	}
	if err := s.repo.SaveInterview(ctx, sessionID, interview); err != nil {
		return apperr.External("failed to save answer", err)
	}
	log.Infof("[InterviewService] 回答已记录, SessionID: %s, QuestionID: %d, Length: %d",
		sessionID, answer.QuestionID, len(strings.TrimSpace(answer.AnswerText)))
	return nil
}

// Analyze 生成 BARS 面试报告，并按实际作答情况修正模型给出的评分。
func (s *interviewService) Analyze(ctx context.Context, sessionID string, req AnalyzeInterviewRequest) (*model.InterviewReport, error) {
	interviewID := ""
	if len(req.Questions) == 0 || len(req.Answers) == 0 {
		interview, err := s.activeInterview(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		interviewID = interview.ID
		req.Questions = interview.Questions
		req.Answers = interview.Answers
		if req.Role == "" {
			req.Role = interview.Role
		}
		if req.InterviewType == "" {
			req.InterviewType = interview.InterviewType
		}
	}
	if req.Role == "" || len(req.Questions) == 0 || len(req.Answers) == 0 {
		return nil, apperr.Validation(fmt.Sprintf("Missing interview data: role=%t, questions=%d, answers=%d",
			req.Role != "", len(req.Questions), len(req.Answers)), nil)
	}

	answered := make(map[int]bool)
	empty := 0
	for _, a := range req.Answers {
		if s.validTranscript(a.AnswerText) {
			answered[a.QuestionID] = true
		} else {
			empty++
		}
	}
	log.Infof("[InterviewService] 步骤1: 作答统计, SessionID: %s, Answered: %d/%d, Empty: %d",
		sessionID, len(answered), len(req.Questions), empty)

	var report *model.InterviewReport
	if empty == len(req.Answers) {
		log.Warnf("[InterviewService] 全部回答为空, 返回 INSUFFICIENT_DATA 报告")
		report = insufficientReport(req.Questions)
	} else {
		prompt := render(interviewAnalysisPrompt,
			"interview_type", req.InterviewType,
			"role", req.Role,
			"qa_pairs", qaPairs(req.Questions, req.Answers),
		)
		log.Infof("[InterviewService] 步骤2: 调用 LLM 分析面试")
		raw, err := s.gen.Generate(ctx, prompt)
		if err != nil {
			return nil, apperr.External("interview analysis failed", err)
		}
		var parsed model.InterviewReport
		if err := llm.DecodeJSON(raw, &parsed); err != nil {
			return nil, apperr.External("Failed to parse feedback.", err)
		}
		report = &parsed
		enforceScoringRules(report, len(answered), len(req.Questions))
	}
	addCompleteness(report, len(answered), len(req.Questions))
	normalizeRatings(report)
	log.Infof("[InterviewService] 步骤3: 最终评级, Overall: %s, Technical: %s, DataQuality: %s",
		report.OverallRating, report.TechnicalRating, report.DataQuality)

	s.saveReport(sessionID, interviewID, req, report)
	return report, nil
}

func (s *interviewService) activeInterview(ctx context.Context, sessionID string) (*model.Interview, error) {
	interview, err := s.repo.GetInterview(ctx, sessionID)
	if err != nil {
		return nil, apperr.External("failed to load interview", err)
	}
	if interview == nil {
		return nil, apperr.NotFound("No active interview session.")
	}
	return interview, nil
}

func (s *interviewService) validTranscript(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" || transcriptPlaceholders[text] {
		return false
	}
	return len(text) >= s.cfg.MinAnswerLength
}

// saveReport 持久化报告，失败只记录日志。
func (s *interviewService) saveReport(sessionID, interviewID string, req AnalyzeInterviewRequest, report *model.InterviewReport) {
	data, err := json.Marshal(report)
	if err != nil {
		log.Errorf("[InterviewService] 序列化报告失败: %v", err)
		return
	}
	if interviewID == "" {
		interviewID = uuid.NewString()
	}
	record := &model.InterviewReportRecord{
		InterviewID:    interviewID,
		SessionID:      sessionID,
		Role:           req.Role,
		InterviewType:  req.InterviewType,
		OverallRating:  report.OverallRating,
		OverallScore:   float64(report.OverallScore),
		DataQuality:    report.DataQuality,
		Recommendation: report.Recommendation,
		CompletionRate: report.CompletionRate,
		ReportJSON:     string(data),
	}
	if err := s.repo.SaveReport(record); err != nil {
		log.Warnf("[InterviewService] 保存面试报告失败, SessionID: %s, Error: %v", sessionID, err)
	}
}

// qaPairs 把题目与回答拼成分析提示词中的问答段落。
func qaPairs(questions []model.InterviewQuestion, answers []model.InterviewAnswer) string {
	text := make(map[int]string, len(questions))
	for _, q := range questions {
		text[q.ID] = q.Question
	}
	var b strings.Builder
	for _, a := range answers {
		question, ok := text[a.QuestionID]
		if !ok {
			question = "N/A"
		}
		answer := a.AnswerText
		if answer == "" {
			answer = "No answer provided"
		}
		fmt.Fprintf(&b, "\nQuestion %d: %s\nCandidate's Answer: %s\nDuration: %s seconds\n",
			a.QuestionID, question, answer, strconv.FormatFloat(a.Duration, 'f', -1, 64))
	}
	return b.String()
}

// insufficientReport 是没有任何有效转写时返回的固定报告，不调用模型。
func insufficientReport(questions []model.InterviewQuestion) *model.InterviewReport {
	feedback := make([]model.QuestionFeedback, 0, len(questions))
	for i, q := range questions {
		feedback = append(feedback, model.QuestionFeedback{
			QuestionID:          i + 1,
			QuestionText:        q.Question,
			Rating:              model.RatingNA,
			Feedback:            "No transcript available for assessment",
			ObservableBehaviors: model.RatingNA,
			DevelopmentAreas:    model.RatingNA,
		})
	}
	return &model.InterviewReport{
		OverallRating:            model.RatingNA,
		DataQuality:              model.DataQualityInsufficient,
		Strengths:                []string{"Unable to assess - insufficient transcript data"},
		Improvements:             []string{"Ensure microphone works and you speak clearly during recording"},
		CommunicationRating:      model.RatingNA,
		CommunicationReason:      insufficientReason,
		TechnicalRating:          model.RatingNA,
		TechnicalReason:          insufficientReason,
		AnalyticalRating:         model.RatingNA,
		AnalyticalReason:         insufficientReason,
		RoleFitRating:            model.RatingNA,
		RoleFitReason:            insufficientReason,
		BehavioralPresenceRating: model.RatingNA,
		BehavioralReason:         insufficientReason,
		QuestionFeedback:         feedback,
		Recommendation:           model.RecommendationIncomplete,
		Summary:                  "Interview assessment incomplete due to missing transcript data. Please ensure proper audio capture and speech recognition functionality.",
		NextSteps:                "Retry interview with verified microphone and audio settings",
	}
}

// enforceScoringRules 按实际作答数覆盖模型评分：
// 作答不足一半时整体记为 N/A，只答了一题时技术类维度不可评估。
func enforceScoringRules(r *model.InterviewReport, answered, total int) {
	if float64(answered) < float64(total)*0.5 {
		r.OverallRating, r.OverallScore = model.RatingNA, 0
		r.DataQuality = model.DataQualityInsufficient
		r.Recommendation = model.RecommendationIncomplete
		if answered <= 1 {
			r.TechnicalRating, r.TechnicalScore = model.RatingNA, 0
			r.TechnicalReason = "No technical questions answered"
			r.AnalyticalRating, r.AnalyticalScore = model.RatingNA, 0
			r.AnalyticalReason = "No analytical questions answered"
			r.BehavioralPresenceRating, r.BehavioralPresenceScore = model.RatingNA, 0
		}
	}
	if answered == 1 && r.TechnicalScore > 0 {
		r.TechnicalRating, r.TechnicalScore = model.RatingNA, 0
		r.TechnicalReason = "Technical questions not answered"
	}
}

// addCompleteness 写入作答统计，模型没有给出数据完整度时按完成率推断。
func addCompleteness(r *model.InterviewReport, answered, total int) {
	rate := 0.0
	if total > 0 {
		rate = float64(answered) / float64(total)
	}
	r.QuestionsAnswered = answered
	r.QuestionsTotal = total
	r.CompletionRate = math.Round(rate*1000) / 10
	if r.DataQuality != "" {
		return
	}
	switch {
	case rate >= 0.9:
		r.DataQuality = model.DataQualityComplete
	case rate >= 0.5:
		r.DataQuality = model.DataQualityPartial
	default:
		r.DataQuality = model.DataQualityInsufficient
	}
}

var ratingScores = map[string]model.Score{
	model.RatingExceptional:    95,
	model.RatingStrong:         80,
	model.RatingSatisfactory:   65,
	model.RatingDeveloping:     45,
	model.RatingUnsatisfactory: 25,
	model.RatingNA:             0,
}

func ratingFromScore(score model.Score) string {
	switch {
	case score >= 90:
		return model.RatingExceptional
	case score >= 75:
		return model.RatingStrong
	case score >= 60:
		return model.RatingSatisfactory
	case score >= 40:
		return model.RatingDeveloping
	case score > 0:
		return model.RatingUnsatisfactory
	default:
		return model.RatingNA
	}
}

// normalizeRatings 统一评级写法，未知评级由分数推出，缺失的分数由评级推出。
func normalizeRatings(r *model.InterviewReport) {
	dims := []struct {
		rating *string
		score  *model.Score
	}{
		{&r.OverallRating, &r.OverallScore},
		{&r.CommunicationRating, &r.CommunicationScore},
		{&r.TechnicalRating, &r.TechnicalScore},
		{&r.AnalyticalRating, &r.AnalyticalScore},
		{&r.RoleFitRating, &r.RoleFitScore},
		{&r.BehavioralPresenceRating, &r.BehavioralPresenceScore},
	}
	for _, d := range dims {
		rating := strings.ToUpper(strings.TrimSpace(*d.rating))
		if _, ok := ratingScores[rating]; !ok {
			rating = ratingFromScore(*d.score)
		}
		*d.rating = rating
		if *d.score == 0 {
			*d.score = ratingScores[rating]
		}
	}
	for i := range r.QuestionFeedback {
		rating := strings.ToUpper(strings.TrimSpace(r.QuestionFeedback[i].Rating))
		if _, ok := ratingScores[rating]; !ok {
			rating = model.RatingNA
		}
		r.QuestionFeedback[i].Rating = rating
	}
}
