package model

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// BARS 评级
const (
	RatingExceptional    = "EXCEPTIONAL"
	RatingStrong         = "STRONG"
	RatingSatisfactory   = "SATISFACTORY"
	RatingDeveloping     = "DEVELOPING"
	RatingUnsatisfactory = "UNSATISFACTORY"
	RatingNA             = "N/A"
)

// 数据完整度与建议
const (
	DataQualityComplete      = "COMPLETE"
	DataQualityPartial       = "PARTIAL"
	DataQualityInsufficient  = "INSUFFICIENT_DATA"
	RecommendationIncomplete = "INCOMPLETE_DATA"
)

// InterviewQuestion 是一道面试题。
type InterviewQuestion struct {
	ID        int    `json:"id"`
	Question  string `json:"question"`
	TimeLimit int    `json:"time_limit"`
}

// InterviewAnswer 是候选人对一道题的转写回答。
type InterviewAnswer struct {
	QuestionID int     `json:"question_id"`
	AnswerText string  `json:"answer_text"`
	Duration   float64 `json:"duration"`
}

// Interview 是一场进行中的模拟面试。
type Interview struct {
	ID             string              `json:"id"`
	Role           string              `json:"role"`
	InterviewType  string              `json:"interview_type"`
	AdditionalInfo string              `json:"additional_info,omitempty"`
	Questions      []InterviewQuestion `json:"questions"`
	Answers        []InterviewAnswer   `json:"answers"`
	CreatedAt      time.Time           `json:"created_at"`
}

// Score 接受数字或数字字符串，无法解析时记为 0。
type Score float64

func (s *Score) UnmarshalJSON(data []byte) error {
	var f float64
	if err := json.Unmarshal(data, &f); err == nil {
		*s = Score(f)
		return nil
	}
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		*s = 0
		return nil
	}
	f, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(str), "%"), 64)
	if err != nil {
		f = 0
	}
	*s = Score(f)
	return nil
}

// FlexText 接受字符串或字符串数组，数组以换行连接。
type FlexText string

func (t *FlexText) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		*t = FlexText(str)
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*t = FlexText(strings.Join(list, "\n"))
		return nil
	}
	*t = FlexText(strings.Trim(string(data), `"`))
	return nil
}

// QuestionFeedback 是逐题评价。
type QuestionFeedback struct {
	QuestionID          int      `json:"question_id"`
	QuestionText        string   `json:"question_text"`
	Rating              string   `json:"rating"`
	Feedback            FlexText `json:"feedback"`
	ObservableBehaviors FlexText `json:"observable_behaviors"`
	DevelopmentAreas    FlexText `json:"development_areas"`
}

// InterviewReport 是基于 BARS 的面试分析报告。
type InterviewReport struct {
	OverallRating     string  `json:"overall_rating"`
	OverallScore      Score   `json:"overall_score"`
	DataQuality       string  `json:"data_quality"`
	QuestionsAnswered int     `json:"questions_answered"`
	QuestionsTotal    int     `json:"questions_total"`
	CompletionRate    float64 `json:"completion_rate"`

	Strengths    []string `json:"strengths"`
	Improvements []string `json:"improvements"`

	CommunicationRating string   `json:"communication_rating"`
	CommunicationScore  Score    `json:"communication_score"`
	CommunicationReason FlexText `json:"communication_reason"`

	TechnicalRating string   `json:"technical_rating"`
	TechnicalScore  Score    `json:"technical_score"`
	TechnicalReason FlexText `json:"technical_reason"`

	AnalyticalRating string   `json:"analytical_rating"`
	AnalyticalScore  Score    `json:"analytical_score"`
	AnalyticalReason FlexText `json:"analytical_reason"`

	RoleFitRating string   `json:"role_fit_rating"`
	RoleFitScore  Score    `json:"role_fit_score"`
	RoleFitReason FlexText `json:"role_fit_reason"`

	BehavioralPresenceRating string   `json:"behavioral_presence_rating"`
	BehavioralPresenceScore  Score    `json:"behavioral_presence_score"`
	BehavioralReason         FlexText `json:"behavioral_reason"`

	QuestionFeedback []QuestionFeedback `json:"question_feedback"`
	Recommendation   string             `json:"recommendation"`
	Summary          FlexText           `json:"summary"`
	NextSteps        FlexText           `json:"next_steps"`
}

// InterviewReportRecord 定义了 interview_reports 表的 ORM 模型。
type InterviewReportRecord struct {
	ID             uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	InterviewID    string    `gorm:"type:varchar(36);index;not null" json:"interviewId"`
	SessionID      string    `gorm:"type:varchar(36);index;not null" json:"sessionId"`
	Role           string    `gorm:"type:varchar(255)" json:"role"`
	InterviewType  string    `gorm:"type:varchar(100)" json:"interviewType"`
	OverallRating  string    `gorm:"type:varchar(32)" json:"overallRating"`
	OverallScore   float64   `json:"overallScore"`
	DataQuality    string    `gorm:"type:varchar(32)" json:"dataQuality"`
	Recommendation string    `gorm:"type:varchar(32)" json:"recommendation"`
	CompletionRate float64   `json:"completionRate"`
	ReportJSON     string    `gorm:"type:longtext" json:"-"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (InterviewReportRecord) TableName() string {
	return "interview_reports"
}
