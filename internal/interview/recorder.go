// Package interview 实现模拟面试的录制状态机。
//
// 浏览器负责采集音视频与语音识别，服务端只维护录制流程：
//
//	Idle --start--> Recording --stop--> Processing --submit--> Ready
//	Ready --start--> Recording
//	任意状态 --reset--> Idle
package interview

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"insight-qa-go/internal/model"
	"insight-qa-go/pkg/log"
)

// State 是录制状态。
type State string

const (
	StateIdle       State = "idle"
	StateRecording  State = "recording"
	StateProcessing State = "processing"
	StateReady      State = "ready"
)

// NoTranscription 是没有任何转写内容时提交的占位回答。
const NoTranscription = "No transcription available"

// ErrInvalidTransition 表示当前状态不允许该操作。
var ErrInvalidTransition = errors.New("invalid recorder transition")

// SubmitFunc 提交一道题的回答。
type SubmitFunc func(ctx context.Context, answer model.InterviewAnswer) error

// Recorder 是单个连接上的录制状态机，可并发调用。
type Recorder struct {
	mu         sync.Mutex
	state      State
	questionID int
	startedAt  time.Time
	transcript []string
	submit     SubmitFunc
	now        func() time.Time
}

// NewRecorder 创建一个处于 Idle 状态的 Recorder。
func NewRecorder(submit SubmitFunc) *Recorder {
	return &Recorder{state: StateIdle, submit: submit, now: time.Now}
}

// State 返回当前状态。
func (r *Recorder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// QuestionID 返回正在录制或最近一次录制的题号。
func (r *Recorder) QuestionID() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.questionID
}

// Start 开始录制一道题，只能在 Idle 或 Ready 状态下调用。
func (r *Recorder) Start(questionID int) error {
	if questionID <= 0 {
		return fmt.Errorf("%w: question_id is required", ErrInvalidTransition)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateIdle && r.state != StateReady {
		return fmt.Errorf("%w: cannot start while %s", ErrInvalidTransition, r.state)
	}
	r.state = StateRecording
	r.questionID = questionID
	r.startedAt = r.now()
	r.transcript = r.transcript[:0]
	return nil
}

// AppendTranscript 追加一段识别结果，只能在 Recording 状态下调用。
func (r *Recorder) AppendTranscript(text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateRecording {
		return fmt.Errorf("%w: cannot append transcript while %s", ErrInvalidTransition, r.state)
	}
	if text = strings.TrimSpace(text); text != "" {
		r.transcript = append(r.transcript, text)
	}
	return nil
}

// Stop 结束录制并提交回答。转写为空时提交占位文本。
// 提交失败时回到 Recording，已识别的内容保留，可以再次 Stop。
func (r *Recorder) Stop(ctx context.Context) (model.InterviewAnswer, error) {
	r.mu.Lock()
	if r.state != StateRecording {
		state := r.state
		r.mu.Unlock()
		return model.InterviewAnswer{}, fmt.Errorf("%w: cannot stop while %s", ErrInvalidTransition, state)
	}
	r.state = StateProcessing
	text := strings.Join(r.transcript, " ")
	if text == "" {
		text = NoTranscription
	}
	answer := model.InterviewAnswer{
		QuestionID: r.questionID,
		AnswerText: text,
		Duration:   math.Round(r.now().Sub(r.startedAt).Seconds()*10) / 10,
	}
	r.mu.Unlock()

	err := r.submit(ctx, answer)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateProcessing {
		// 提交期间被 reset
		return answer, err
	}
	if err != nil {
		log.Warnf("[Recorder] 提交回答失败, QuestionID: %d, Error: %v", answer.QuestionID, err)
		r.state = StateRecording
		return model.InterviewAnswer{}, err
	}
	r.state = StateReady
	r.transcript = r.transcript[:0]
	return answer, nil
}

// Reset 放弃当前录制并回到 Idle。
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = StateIdle
	r.questionID = 0
	r.transcript = r.transcript[:0]
}
