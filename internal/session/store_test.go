package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"insight-qa-go/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeArtifact struct {
	modality model.Modality
	name     string
	released atomic.Int32
}

func (f *fakeArtifact) Modality() model.Modality { return f.modality }
func (f *fakeArtifact) Release() error {
	f.released.Add(1)
	return nil
}

func newFake(m model.Modality, name string) *fakeArtifact {
	return &fakeArtifact{modality: m, name: name}
}

func TestGetOnUnknownSessionIsEmpty(t *testing.T) {
	s := NewStore(time.Minute, time.Minute, "")

	_, err := s.Get("nobody", model.ModalityDataset)
	assert.ErrorIs(t, err, ErrNoArtifact)
	assert.Equal(t, model.SlotEmpty, s.State("nobody", model.ModalityDocument))
}

func TestSetReplacesAndReleasesPrevious(t *testing.T) {
	s := NewStore(time.Minute, time.Minute, "")
	first := newFake(model.ModalityDocument, "first")
	second := newFake(model.ModalityDocument, "second")

	s.Set("sid", model.ModalityDocument, first)
	s.Set("sid", model.ModalityDocument, second)

	got, err := s.Get("sid", model.ModalityDocument)
	require.NoError(t, err)
	assert.Same(t, second, got)
	assert.Equal(t, int32(1), first.released.Load())
	assert.Equal(t, int32(0), second.released.Load())
}

func TestClearThenGetIsEmptyForEveryModality(t *testing.T) {
	s := NewStore(time.Minute, time.Minute, "")
	for _, m := range model.Modalities {
		s.Set("sid", m, newFake(m, string(m)))
	}

	s.Clear("sid")

	for _, m := range model.Modalities {
		_, err := s.Get("sid", m)
		assert.ErrorIs(t, err, ErrNoArtifact, "modality %s", m)
		assert.Equal(t, model.SlotEmpty, s.State("sid", m))
	}
	// 幂等
	s.Clear("sid")
}

func TestClearSingleModalityKeepsOthers(t *testing.T) {
	s := NewStore(time.Minute, time.Minute, "")
	ds := newFake(model.ModalityDataset, "ds")
	doc := newFake(model.ModalityDocument, "doc")
	s.Set("sid", model.ModalityDataset, ds)
	s.Set("sid", model.ModalityDocument, doc)

	s.Clear("sid", model.ModalityDataset)

	_, err := s.Get("sid", model.ModalityDataset)
	assert.ErrorIs(t, err, ErrNoArtifact)
	assert.Equal(t, int32(1), ds.released.Load())

	got, err := s.Get("sid", model.ModalityDocument)
	require.NoError(t, err)
	assert.Same(t, doc, got)
}

func TestClearRemovesIndexDirectory(t *testing.T) {
	root := t.TempDir()
	s := NewStore(time.Minute, time.Minute, root)
	dir := s.IndexDir("sid")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "document-x.bleve"), 0o755))
	s.Set("sid", model.ModalityDocument, newFake(model.ModalityDocument, "doc"))

	s.Clear("sid")

	_, err := os.Stat(dir)
	assert.True(t, os.IsNotExist(err))
}

func TestSessionsAreIsolated(t *testing.T) {
	s := NewStore(time.Minute, time.Minute, "")
	s.Set("a", model.ModalityVideo, newFake(model.ModalityVideo, "a"))

	_, err := s.Get("b", model.ModalityVideo)
	assert.ErrorIs(t, err, ErrNoArtifact)
}

func TestIngestFailureLeavesEmptySlotEmpty(t *testing.T) {
	s := NewStore(time.Minute, time.Minute, "")
	boom := errors.New("no text")

	_, err := s.Ingest(context.Background(), "sid", model.ModalityDocument, func(ctx context.Context) (model.Artifact, error) {
		return nil, boom
	})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, model.SlotEmpty, s.State("sid", model.ModalityDocument))
}

func TestIngestFailureKeepsPreviousReadyArtifact(t *testing.T) {
	s := NewStore(time.Minute, time.Minute, "")
	old := newFake(model.ModalityDocument, "old")
	s.Set("sid", model.ModalityDocument, old)

	_, err := s.Ingest(context.Background(), "sid", model.ModalityDocument, func(ctx context.Context) (model.Artifact, error) {
		return nil, errors.New("embedding failed")
	})
	require.Error(t, err)

	got, err := s.Get("sid", model.ModalityDocument)
	require.NoError(t, err)
	assert.Same(t, old, got)
	assert.Equal(t, int32(0), old.released.Load())
}

func TestQueriesRejectedWhileIngesting(t *testing.T) {
	s := NewStore(time.Minute, time.Minute, "")
	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})

	go func() {
		defer close(done)
		_, _ = s.Ingest(context.Background(), "sid", model.ModalityDataset, func(ctx context.Context) (model.Artifact, error) {
			close(started)
			<-release
			return newFake(model.ModalityDataset, "ds"), nil
		})
	}()

	<-started
	_, err := s.Get("sid", model.ModalityDataset)
	assert.ErrorIs(t, err, ErrIngesting)
	assert.Equal(t, model.SlotIngesting, s.State("sid", model.ModalityDataset))

	// 其他类型不受影响
	_, err = s.Get("sid", model.ModalityDocument)
	assert.ErrorIs(t, err, ErrNoArtifact)

	close(release)
	<-done
	assert.Equal(t, model.SlotReady, s.State("sid", model.ModalityDataset))
}

func TestReingestKeepsServingPreviousArtifact(t *testing.T) {
	s := NewStore(time.Minute, time.Minute, "")
	old := newFake(model.ModalityDataset, "old")
	s.Set("sid", model.ModalityDataset, old)

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = s.Ingest(context.Background(), "sid", model.ModalityDataset, func(ctx context.Context) (model.Artifact, error) {
			close(started)
			<-release
			return newFake(model.ModalityDataset, "new"), nil
		})
	}()

	<-started
	got, err := s.Get("sid", model.ModalityDataset)
	require.NoError(t, err)
	assert.Same(t, old, got)
	assert.Equal(t, model.SlotIngesting, s.State("sid", model.ModalityDataset))

	close(release)
	<-done
	got, err = s.Get("sid", model.ModalityDataset)
	require.NoError(t, err)
	assert.NotSame(t, old, got)
	assert.Equal(t, int32(1), old.released.Load())
}

// blockedIngest 启动一个在 release 关闭前阻塞的导入，返回其结果通道。
func blockedIngest(s *Store, m model.Modality, result model.Artifact, buildErr error) (started, release chan struct{}, done chan error) {
	started = make(chan struct{})
	release = make(chan struct{})
	done = make(chan error, 1)
	go func() {
		_, err := s.Ingest(context.Background(), "sid", m, func(ctx context.Context) (model.Artifact, error) {
			close(started)
			<-release
			if buildErr != nil {
				return nil, buildErr
			}
			return result, nil
		})
		done <- err
	}()
	return started, release, done
}

func TestClearDuringFailedReingestLeavesSlotEmpty(t *testing.T) {
	s := NewStore(time.Minute, time.Minute, "")
	old := newFake(model.ModalityDataset, "old")
	s.Set("sid", model.ModalityDataset, old)

	started, release, done := blockedIngest(s, model.ModalityDataset, nil, errors.New("parse failed"))
	<-started

	s.Clear("sid", model.ModalityDataset)
	_, err := s.Get("sid", model.ModalityDataset)
	assert.ErrorIs(t, err, ErrNoArtifact)
	assert.Equal(t, int32(1), old.released.Load())

	close(release)
	require.Error(t, <-done)
	assert.Equal(t, model.SlotEmpty, s.State("sid", model.ModalityDataset))
	_, err = s.Get("sid", model.ModalityDataset)
	assert.ErrorIs(t, err, ErrNoArtifact)
	assert.Equal(t, int32(1), old.released.Load())
}

func TestClearDuringReingestDiscardsNewArtifact(t *testing.T) {
	s := NewStore(time.Minute, time.Minute, "")
	s.Set("sid", model.ModalityDocument, newFake(model.ModalityDocument, "old"))
	fresh := newFake(model.ModalityDocument, "new")

	started, release, done := blockedIngest(s, model.ModalityDocument, fresh, nil)
	<-started
	s.Clear("sid", model.ModalityDocument)
	close(release)

	assert.ErrorIs(t, <-done, ErrCleared)
	assert.Equal(t, int32(1), fresh.released.Load())
	assert.Equal(t, model.SlotEmpty, s.State("sid", model.ModalityDocument))
}

func TestFullClearDuringIngestDiscardsResult(t *testing.T) {
	s := NewStore(time.Minute, time.Minute, "")
	fresh := newFake(model.ModalityVideo, "v")

	started, release, done := blockedIngest(s, model.ModalityVideo, fresh, nil)
	<-started
	s.Clear("sid")
	close(release)

	assert.ErrorIs(t, <-done, ErrCleared)
	assert.Equal(t, int32(1), fresh.released.Load())
	assert.Equal(t, 0, s.Count())
	_, err := s.Get("sid", model.ModalityVideo)
	assert.ErrorIs(t, err, ErrNoArtifact)
}

func TestAcquiredArtifactOutlivesReplacement(t *testing.T) {
	s := NewStore(time.Minute, time.Minute, "")
	first := newFake(model.ModalityDataset, "first")
	s.Set("sid", model.ModalityDataset, first)

	held, done, err := s.Acquire("sid", model.ModalityDataset)
	require.NoError(t, err)
	assert.Same(t, first, held)

	s.Set("sid", model.ModalityDataset, newFake(model.ModalityDataset, "second"))
	assert.Equal(t, int32(0), first.released.Load())

	got, err := s.Get("sid", model.ModalityDataset)
	require.NoError(t, err)
	assert.NotSame(t, first, got)

	done()
	assert.Equal(t, int32(1), first.released.Load())
	// 重复归还不会再次释放
	done()
	assert.Equal(t, int32(1), first.released.Load())
}

func TestAcquiredArtifactOutlivesClear(t *testing.T) {
	s := NewStore(time.Minute, time.Minute, "")
	doc := newFake(model.ModalityDocument, "doc")
	s.Set("sid", model.ModalityDocument, doc)

	_, done, err := s.Acquire("sid", model.ModalityDocument)
	require.NoError(t, err)

	s.Clear("sid")
	assert.Equal(t, int32(0), doc.released.Load())
	_, err = s.Get("sid", model.ModalityDocument)
	assert.ErrorIs(t, err, ErrNoArtifact)

	done()
	assert.Equal(t, int32(1), doc.released.Load())
}

func TestIngestIsSerializedPerSlot(t *testing.T) {
	s := NewStore(time.Minute, time.Minute, "")
	var active, maxActive atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Ingest(context.Background(), "sid", model.ModalityVideo, func(ctx context.Context) (model.Artifact, error) {
				n := active.Add(1)
				for {
					cur := maxActive.Load()
					if n <= cur || maxActive.CompareAndSwap(cur, n) {
						break
					}
				}
				time.Sleep(2 * time.Millisecond)
				active.Add(-1)
				return newFake(model.ModalityVideo, "v"), nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxActive.Load())
	assert.Equal(t, model.SlotReady, s.State("sid", model.ModalityVideo))
}

func TestExpiredSessionReleasesArtifacts(t *testing.T) {
	s := NewStore(20*time.Millisecond, time.Hour, "")
	a := newFake(model.ModalityDataset, "ds")
	s.Set("sid", model.ModalityDataset, a)

	time.Sleep(40 * time.Millisecond)
	// 触发回收
	s.Set("other", model.ModalityDataset, newFake(model.ModalityDataset, "x"))

	assert.Equal(t, int32(1), a.released.Load())
	_, err := s.Get("sid", model.ModalityDataset)
	assert.ErrorIs(t, err, ErrNoArtifact)
}

func TestStatusReportsSlots(t *testing.T) {
	s := NewStore(time.Minute, time.Minute, "")
	s.Set("sid", model.ModalityDataset, &model.TabularArtifact{SourceFiles: []string{"sales.csv"}})

	st := s.Status("sid")
	require.Len(t, st.Slots, 3)
	assert.Equal(t, model.SlotReady, st.Slots[0].State)
	assert.Equal(t, []string{"sales.csv"}, st.Slots[0].Sources)
	assert.Equal(t, model.SlotEmpty, st.Slots[1].State)
}
