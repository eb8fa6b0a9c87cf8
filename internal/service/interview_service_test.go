package service

import (
	"context"
	"encoding/json"
	"testing"

	"insight-qa-go/internal/apperr"
	"insight-qa-go/internal/config"
	"insight-qa-go/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testInterviewCfg = config.InterviewConfig{NumQuestions: 5, TimeLimitSeconds: 180, MinAnswerLength: 10}

func fiveQuestions() []model.InterviewQuestion {
	qs := make([]model.InterviewQuestion, 5)
	for i := range qs {
		qs[i] = model.InterviewQuestion{ID: i + 1, Question: "Question text", TimeLimit: 180}
	}
	return qs
}

const strongReportJSON = `{
	"overall_rating": "STRONG", "overall_score": 82,
	"communication_rating": "STRONG", "communication_score": 80,
	"technical_rating": "STRONG", "technical_score": 78,
	"analytical_rating": "SATISFACTORY", "analytical_score": 65,
	"role_fit_rating": "strong", "role_fit_score": 0,
	"behavioral_presence_rating": "GREAT", "behavioral_presence_score": 92,
	"strengths": ["clear"], "improvements": ["depth"],
	"question_feedback": [{"question_id": 1, "rating": "STRONG", "feedback": "good"}],
	"recommendation": "HIRE", "summary": "Solid.", "next_steps": ["Practice"]
}`

func TestGenerateInterviewStoresQuestions(t *testing.T) {
	repo := &fakeInterviewRepo{interview: &model.Interview{ID: "old", Answers: []model.InterviewAnswer{{QuestionID: 1}}}}
	gen := &fakeGenerator{responses: []string{`{"questions": [
		{"id": 1, "question": "Tell me about yourself"},
		{"question": "Explain goroutines", "time_limit": 120},
		{"id": 3, "question": ""}
	]}`}}
	svc := NewInterviewService(gen, repo, testInterviewCfg)

	iv, err := svc.Generate(context.Background(), "s1", GenerateInterviewRequest{Role: "Go Engineer", AdditionalInfo: "backend"})
	require.NoError(t, err)
	require.Len(t, iv.Questions, 2)
	assert.Equal(t, 180, iv.Questions[0].TimeLimit)
	assert.Equal(t, 2, iv.Questions[1].ID)
	assert.Equal(t, 120, iv.Questions[1].TimeLimit)
	assert.Equal(t, "Technical Interview", iv.InterviewType)
	assert.NotEqual(t, "old", iv.ID)
	assert.Empty(t, repo.interview.Answers)

	prompt := gen.prompts[0]
	assert.Contains(t, prompt, "Additional context: backend")
	assert.Contains(t, prompt, "variation seed:")
	assert.Contains(t, prompt, "role: Go Engineer")
}

func TestGenerateInterviewWithoutQuestionsFails(t *testing.T) {
	svc := NewInterviewService(&fakeGenerator{responses: []string{`{"questions": []}`}}, &fakeInterviewRepo{}, testInterviewCfg)
	_, err := svc.Generate(context.Background(), "s1", GenerateInterviewRequest{})
	assert.True(t, apperr.Is(err, apperr.KindExternal))
}

func TestAnswerRequiresInterviewAndReplaces(t *testing.T) {
	repo := &fakeInterviewRepo{}
	svc := NewInterviewService(&fakeGenerator{}, repo, testInterviewCfg)

	err := svc.Answer(context.Background(), "s1", model.InterviewAnswer{QuestionID: 1, AnswerText: "hello"})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	repo.interview = &model.Interview{ID: "iv", Questions: fiveQuestions()}
	require.NoError(t, svc.Answer(context.Background(), "s1", model.InterviewAnswer{QuestionID: 1, AnswerText: "first"}))
	require.NoError(t, svc.Answer(context.Background(), "s1", model.InterviewAnswer{QuestionID: 2, AnswerText: "second"}))
	require.NoError(t, svc.Answer(context.Background(), "s1", model.InterviewAnswer{QuestionID: 1, AnswerText: "again"}))

	require.Len(t, repo.interview.Answers, 2)
	assert.Equal(t, "again", repo.interview.Answers[0].AnswerText)
}

func TestAnalyzeAllEmptyReturnsCannedReportWithoutLLM(t *testing.T) {
	gen := &fakeGenerator{}
	repo := &fakeInterviewRepo{}
	svc := NewInterviewService(gen, repo, testInterviewCfg)

	report, err := svc.Analyze(context.Background(), "s1", AnalyzeInterviewRequest{
		Role:      "Go Engineer",
		Questions: fiveQuestions(),
		Answers: []model.InterviewAnswer{
			{QuestionID: 1, AnswerText: "No transcription available"},
			{QuestionID: 2, AnswerText: "short"},
			{QuestionID: 3, AnswerText: ""},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, gen.calls())
	assert.Equal(t, model.RatingNA, report.OverallRating)
	assert.Equal(t, model.DataQualityInsufficient, report.DataQuality)
	assert.Equal(t, model.RecommendationIncomplete, report.Recommendation)
	assert.Equal(t, model.FlexText("Insufficient transcript data"), report.TechnicalReason)
	require.Len(t, report.QuestionFeedback, 5)
	assert.Equal(t, 0, report.QuestionsAnswered)
	assert.Equal(t, 5, report.QuestionsTotal)
	assert.Equal(t, 0.0, report.CompletionRate)
	require.Len(t, repo.reports, 1)
}

func TestAnalyzeFewAnswersOverridesScores(t *testing.T) {
	gen := &fakeGenerator{responses: []string{strongReportJSON}}
	svc := NewInterviewService(gen, &fakeInterviewRepo{}, testInterviewCfg)

	report, err := svc.Analyze(context.Background(), "s1", AnalyzeInterviewRequest{
		Role:          "Go Engineer",
		InterviewType: "Technical Interview",
		Questions:     fiveQuestions(),
		Answers: []model.InterviewAnswer{
			{QuestionID: 1, AnswerText: "I have five years of Go experience.", Duration: 42.5},
			{QuestionID: 2, AnswerText: "No answer provided"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, model.RatingNA, report.OverallRating)
	assert.Equal(t, model.Score(0), report.OverallScore)
	assert.Equal(t, model.DataQualityInsufficient, report.DataQuality)
	assert.Equal(t, model.RecommendationIncomplete, report.Recommendation)
	assert.Equal(t, model.RatingNA, report.TechnicalRating)
	assert.Equal(t, model.FlexText("No technical questions answered"), report.TechnicalReason)
	assert.Equal(t, model.RatingNA, report.AnalyticalRating)
	assert.Equal(t, model.RatingNA, report.BehavioralPresenceRating)
	// 沟通维度不受影响
	assert.Equal(t, model.RatingStrong, report.CommunicationRating)
	assert.Equal(t, 1, report.QuestionsAnswered)
	assert.Equal(t, 20.0, report.CompletionRate)

	prompt := gen.prompts[0]
	assert.Contains(t, prompt, "Question 1: Question text\nCandidate's Answer: I have five years of Go experience.\nDuration: 42.5 seconds")
}

func TestAnalyzeCompleteInterviewNormalizesRatings(t *testing.T) {
	gen := &fakeGenerator{responses: []string{strongReportJSON}}
	repo := &fakeInterviewRepo{}
	svc := NewInterviewService(gen, repo, testInterviewCfg)

	answers := make([]model.InterviewAnswer, 5)
	for i := range answers {
		answers[i] = model.InterviewAnswer{QuestionID: i + 1, AnswerText: "A detailed and thoughtful answer."}
	}
	report, err := svc.Analyze(context.Background(), "s1", AnalyzeInterviewRequest{
		Role: "Go Engineer", Questions: fiveQuestions(), Answers: answers,
	})
	require.NoError(t, err)
	assert.Equal(t, model.RatingStrong, report.OverallRating)
	assert.Equal(t, model.DataQualityComplete, report.DataQuality)
	assert.Equal(t, 100.0, report.CompletionRate)
	assert.Equal(t, model.RatingStrong, report.RoleFitRating)
	assert.Equal(t, model.Score(80), report.RoleFitScore)
	assert.Equal(t, model.RatingExceptional, report.BehavioralPresenceRating)

	require.Len(t, repo.reports, 1)
	rec := repo.reports[0]
	assert.Equal(t, "s1", rec.SessionID)
	assert.Equal(t, 82.0, rec.OverallScore)
	var stored model.InterviewReport
	require.NoError(t, json.Unmarshal([]byte(rec.ReportJSON), &stored))
	assert.Equal(t, model.RatingStrong, stored.OverallRating)
}

func TestAnalyzeUsesStoredInterview(t *testing.T) {
	repo := &fakeInterviewRepo{interview: &model.Interview{
		ID:            "iv-1",
		Role:          "SRE",
		InterviewType: "Behavioral",
		Questions:     fiveQuestions()[:2],
		Answers: []model.InterviewAnswer{
			{QuestionID: 1, AnswerText: "I keep systems reliable every day."},
			{QuestionID: 2, AnswerText: "We use error budgets and SLOs."},
		},
	}}
	gen := &fakeGenerator{responses: []string{strongReportJSON}}
	svc := NewInterviewService(gen, repo, testInterviewCfg)

	report, err := svc.Analyze(context.Background(), "s1", AnalyzeInterviewRequest{})
	require.NoError(t, err)
	assert.Equal(t, 2, report.QuestionsAnswered)
	assert.Equal(t, "iv-1", repo.reports[0].InterviewID)
	assert.Contains(t, gen.prompts[0], "role: SRE")

	_, err = NewInterviewService(gen, &fakeInterviewRepo{}, testInterviewCfg).Analyze(context.Background(), "s1", AnalyzeInterviewRequest{})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestRatingFromScore(t *testing.T) {
	assert.Equal(t, model.RatingExceptional, ratingFromScore(90))
	assert.Equal(t, model.RatingStrong, ratingFromScore(75))
	assert.Equal(t, model.RatingSatisfactory, ratingFromScore(60))
	assert.Equal(t, model.RatingDeveloping, ratingFromScore(40))
	assert.Equal(t, model.RatingUnsatisfactory, ratingFromScore(1))
	assert.Equal(t, model.RatingNA, ratingFromScore(0))
}
