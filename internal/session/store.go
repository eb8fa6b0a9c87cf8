// Package session 提供进程内、按会话隔离的产物存储。
//
// 每个会话对每种问答类型最多持有一个活动产物。槽位状态按
// Empty -> Ingesting -> Ready 流转，同一槽位的导入串行执行，
// 查询只会看到完整构建的产物。被替换或清除的产物在最后一个
// 读者归还后才释放底层资源。
package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"insight-qa-go/internal/model"
	"insight-qa-go/pkg/log"

	"github.com/patrickmn/go-cache"
)

var (
	// ErrNoArtifact 表示槽位中没有可查询的产物。
	ErrNoArtifact = errors.New("no active artifact")
	// ErrIngesting 表示槽位正在导入，暂不接受查询。
	ErrIngesting = errors.New("ingestion in progress")
	// ErrCleared 表示导入期间槽位或会话被清除，构建结果已丢弃。
	ErrCleared = errors.New("session cleared during ingestion")
)

// BuildFunc 构建一个新的产物。返回错误时槽位保持原状。
type BuildFunc func(ctx context.Context) (model.Artifact, error)

// ReleaseFunc 归还 Acquire 取得的产物引用，可重复调用。
type ReleaseFunc func()

// lease 记录产物的在用引用数。
type lease struct {
	mu       sync.Mutex
	artifact model.Artifact
	refs     int
	retired  bool
}

func (l *lease) acquire() ReleaseFunc {
	l.mu.Lock()
	l.refs++
	l.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			l.refs--
			free := l.retired && l.refs == 0
			l.mu.Unlock()
			if free {
				l.close()
			}
		})
	}
}

// retire 将产物移出槽位，无人使用时立即释放。
func (l *lease) retire() {
	l.mu.Lock()
	free := !l.retired && l.refs == 0
	l.retired = true
	l.mu.Unlock()
	if free {
		l.close()
	}
}

func (l *lease) close() {
	if err := l.artifact.Release(); err != nil {
		log.Warnf("[SessionStore] 释放产物失败, Modality: %s, Error: %v", l.artifact.Modality(), err)
	}
}

type slot struct {
	ingest sync.Mutex
	state  model.SlotState
	active *lease
	// gen 在每次清除时递增，用于识别导入期间发生的清除
	gen uint64
}

func (sl *slot) artifact() model.Artifact {
	if sl.active == nil {
		return nil
	}
	return sl.active.artifact
}

// drop 退役当前产物并将槽位置为 Empty。
func (sl *slot) drop() {
	if sl.active != nil {
		sl.active.retire()
		sl.active = nil
	}
	sl.state = model.SlotEmpty
	sl.gen++
}

type entry struct {
	id         string
	mu         sync.RWMutex
	createdAt  time.Time
	lastAccess time.Time
	slots      map[model.Modality]*slot
}

// Store 是会话存储。过期的会话会被自动回收，回收时释放其全部产物与索引目录。
type Store struct {
	cache     *cache.Cache
	indexRoot string
	mu        sync.Mutex
}

// NewStore 创建会话存储。ttl 为会话空闲过期时间，indexRoot 为空时不使用磁盘目录。
func NewStore(ttl, cleanupInterval time.Duration, indexRoot string) *Store {
	s := &Store{
		cache:     cache.New(ttl, cleanupInterval),
		indexRoot: indexRoot,
	}
	s.cache.OnEvicted(func(id string, v interface{}) {
		e, ok := v.(*entry)
		if !ok {
			return
		}
		s.releaseEntry(e)
		log.Infof("[SessionStore] 会话已回收, SessionID: %s", id)
	})
	return s
}

// IndexDir 返回会话的索引目录。未配置根目录时返回空字符串。
func (s *Store) IndexDir(sessionID string) string {
	if s.indexRoot == "" {
		return ""
	}
	return filepath.Join(s.indexRoot, sessionID)
}

// lookup 返回已存在的会话并刷新其过期时间。
func (s *Store) lookup(sessionID string) (*entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.cache.Get(sessionID)
	if !ok {
		return nil, false
	}
	e := v.(*entry)
	s.cache.Set(sessionID, e, cache.DefaultExpiration)
	return e, true
}

// obtain 返回会话，不存在时创建。
func (s *Store) obtain(sessionID string) *entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.cache.Get(sessionID); ok {
		e := v.(*entry)
		s.cache.Set(sessionID, e, cache.DefaultExpiration)
		return e
	}
	// 已过期但尚未被清理的会话需先触发回收，否则会被覆盖而泄漏资源
	s.cache.DeleteExpired()
	now := time.Now()
	e := &entry{
		id:         sessionID,
		createdAt:  now,
		lastAccess: now,
		slots:      make(map[model.Modality]*slot, len(model.Modalities)),
	}
	for _, m := range model.Modalities {
		e.slots[m] = &slot{state: model.SlotEmpty}
	}
	s.cache.Set(sessionID, e, cache.DefaultExpiration)
	return e
}

// Acquire 返回槽位中的活动产物并持有一个引用。
// 调用方用完后必须调用返回的 ReleaseFunc，在此之前产物不会被释放。
func (s *Store) Acquire(sessionID string, m model.Modality) (model.Artifact, ReleaseFunc, error) {
	e, ok := s.lookup(sessionID)
	if !ok {
		return nil, nil, ErrNoArtifact
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastAccess = time.Now()
	sl := e.slots[m]
	if sl == nil {
		return nil, nil, ErrNoArtifact
	}
	switch {
	case sl.active != nil:
		// 重新导入期间继续使用旧产物
		return sl.active.artifact, sl.active.acquire(), nil
	case sl.state == model.SlotIngesting:
		return nil, nil, ErrIngesting
	}
	return nil, nil, ErrNoArtifact
}

// Get 返回槽位中的活动产物，不持有引用。
func (s *Store) Get(sessionID string, m model.Modality) (model.Artifact, error) {
	a, release, err := s.Acquire(sessionID, m)
	if err != nil {
		return nil, err
	}
	release()
	return a, nil
}

// State 返回槽位状态，不存在的会话视为 Empty。
func (s *Store) State(sessionID string, m model.Modality) model.SlotState {
	e, ok := s.lookup(sessionID)
	if !ok {
		return model.SlotEmpty
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	if sl := e.slots[m]; sl != nil {
		return sl.state
	}
	return model.SlotEmpty
}

// Set 原子地替换槽位中的产物。
func (s *Store) Set(sessionID string, m model.Modality, artifact model.Artifact) {
	e := s.obtain(sessionID)
	e.mu.Lock()
	defer e.mu.Unlock()
	s.commit(e, m, artifact)
}

func (s *Store) commit(e *entry, m model.Modality, artifact model.Artifact) {
	sl := e.slots[m]
	if sl.artifact() != artifact {
		// 旧产物在最后一个读者归还后释放
		if sl.active != nil {
			sl.active.retire()
		}
		sl.active = &lease{artifact: artifact}
	}
	sl.state = model.SlotReady
	e.lastAccess = time.Now()
}

// Ingest 在槽位上串行执行 build，成功后替换活动产物。
// 导入期间槽位处于 Ingesting 状态，失败后恢复为导入前的状态。
// 导入期间槽位或整个会话被清除时丢弃构建结果并返回 ErrCleared。
func (s *Store) Ingest(ctx context.Context, sessionID string, m model.Modality, build BuildFunc) (model.Artifact, error) {
	e := s.obtain(sessionID)
	sl := e.slots[m]
	sl.ingest.Lock()
	defer sl.ingest.Unlock()

	e.mu.Lock()
	prev := sl.state
	gen := sl.gen
	sl.state = model.SlotIngesting
	e.mu.Unlock()

	artifact, err := build(ctx)

	e.mu.Lock()
	defer e.mu.Unlock()
	// 整个会话被清除或回收时 releaseEntry 同样会递增 gen
	cleared := sl.gen != gen
	if err != nil {
		if !cleared {
			sl.state = prev
		}
		return nil, err
	}
	if cleared {
		if rerr := artifact.Release(); rerr != nil {
			log.Warnf("[SessionStore] 释放被丢弃的产物失败, SessionID: %s, Modality: %s, Error: %v", sessionID, m, rerr)
		}
		log.Infof("[SessionStore] 导入期间会话已被清除，丢弃构建结果, SessionID: %s, Modality: %s", sessionID, m)
		return nil, ErrCleared
	}
	s.commit(e, m, artifact)
	return artifact, nil
}

// Clear 清除会话产物。未指定类型时清除全部产物并删除会话索引目录。重复调用是安全的。
func (s *Store) Clear(sessionID string, modalities ...model.Modality) {
	if len(modalities) == 0 {
		s.mu.Lock()
		_, ok := s.cache.Get(sessionID)
		if ok {
			// OnEvicted 负责释放产物与目录
			s.cache.Delete(sessionID)
		}
		s.mu.Unlock()
		if !ok {
			s.removeDir(sessionID)
		}
		return
	}

	e, ok := s.lookup(sessionID)
	if !ok {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, m := range modalities {
		if sl := e.slots[m]; sl != nil {
			// 进行中的导入会发现 gen 变化并丢弃结果
			sl.drop()
		}
	}
}

// Status 返回会话快照。
func (s *Store) Status(sessionID string) model.SessionStatus {
	status := model.SessionStatus{SessionID: sessionID}
	e, ok := s.lookup(sessionID)
	if !ok {
		for _, m := range model.Modalities {
			status.Slots = append(status.Slots, model.SlotStatus{Modality: m, State: model.SlotEmpty})
		}
		return status
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	status.CreatedAt = model.LocalTime(e.createdAt)
	status.LastAccess = model.LocalTime(e.lastAccess)
	for _, m := range model.Modalities {
		sl := e.slots[m]
		st := model.SlotStatus{Modality: m, State: sl.state}
		if sl.state == model.SlotReady {
			st.Sources = sourcesOf(sl.artifact())
		}
		status.Slots = append(status.Slots, st)
	}
	return status
}

// Count 返回当前存活的会话数。
func (s *Store) Count() int {
	return s.cache.ItemCount()
}

// Close 释放所有会话，用于停机。
func (s *Store) Close() {
	for id := range s.cache.Items() {
		s.cache.Delete(id)
	}
}

func (s *Store) releaseEntry(e *entry) {
	e.mu.Lock()
	for _, sl := range e.slots {
		sl.drop()
	}
	e.mu.Unlock()
	s.removeDir(e.id)
}

func (s *Store) removeDir(sessionID string) {
	dir := s.IndexDir(sessionID)
	if dir == "" {
		return
	}
	if err := os.RemoveAll(dir); err != nil {
		log.Warnf("[SessionStore] 删除索引目录失败, Dir: %s, Error: %v", dir, err)
	}
}

func sourcesOf(a model.Artifact) []string {
	switch v := a.(type) {
	case *model.TabularArtifact:
		return v.SourceFiles
	case *model.IndexedArtifact:
		if v.Metadata.VideoID != "" {
			return []string{v.Metadata.VideoID}
		}
		return []string{v.Metadata.Filename}
	}
	return nil
}
