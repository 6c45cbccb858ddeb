package extraction

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dreschagin/dashboard-extractor/internal/application/port"
	"github.com/dreschagin/dashboard-extractor/internal/domain/entity"
	"github.com/dreschagin/dashboard-extractor/internal/domain/valueobject"
)

// fakeSession - управляемая из теста вкладка браузера.
type fakeSession struct {
	mu sync.Mutex

	navigateErr error
	reloadErrs  []error
	readySeq    []bool
	contents    []string
	captureErrs []error
	images      [][]byte

	navigated   []string
	reloads     int
	waits       int
	predicates  []string
	captures    int
	closed      bool
	contentReqs int
}

func (f *fakeSession) Navigate(_ context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.navigated = append(f.navigated, url)
	return f.navigateErr
}

func (f *fakeSession) Reload(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reloads++
	if len(f.reloadErrs) == 0 {
		return nil
	}
	err := f.reloadErrs[0]
	f.reloadErrs = f.reloadErrs[1:]
	return err
}

func (f *fakeSession) WaitFor(ctx context.Context, predicate string) error {
	f.mu.Lock()
	f.waits++
	f.predicates = append(f.predicates, predicate)
	ready := true
	if len(f.readySeq) > 0 {
		ready = f.readySeq[0]
		f.readySeq = f.readySeq[1:]
	}
	f.mu.Unlock()

	if ready {
		return nil
	}
	<-ctx.Done()
	return ctx.Err()
}

func (f *fakeSession) Content(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.contentReqs++
	if len(f.contents) == 0 {
		return "", errors.New("no content scripted")
	}
	html := f.contents[0]
	if len(f.contents) > 1 {
		f.contents = f.contents[1:]
	}
	return html, nil
}

func (f *fakeSession) CaptureSnapshot(context.Context) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.captures++
	if len(f.captureErrs) > 0 {
		err := f.captureErrs[0]
		f.captureErrs = f.captureErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	if len(f.images) == 0 {
		return []byte("png"), nil
	}
	img := f.images[0]
	f.images = f.images[1:]
	return img, nil
}

func (f *fakeSession) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeSession) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type fakeLauncher struct {
	session *fakeSession
	err     error
	opened  []port.SessionCookie
}

func (l *fakeLauncher) Open(_ context.Context, cookie port.SessionCookie) (port.PageSession, error) {
	l.opened = append(l.opened, cookie)
	if l.err != nil {
		return nil, l.err
	}
	return l.session, nil
}

type analyzerReply struct {
	record *entity.MetricRecord
	err    error
}

// stubAnalyzer отдает заранее заданные ответы по очереди; последний повторяется.
type stubAnalyzer struct {
	mu      sync.Mutex
	replies []analyzerReply
	calls   int
	images  [][]byte
}

func (s *stubAnalyzer) Analyze(_ context.Context, image []byte) (*entity.MetricRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.images = append(s.images, image)
	if len(s.replies) == 0 {
		return nil, errors.New("no reply scripted")
	}
	r := s.replies[0]
	if len(s.replies) > 1 {
		s.replies = s.replies[1:]
	}
	return r.record, r.err
}

type memArtifactStore struct {
	mu    sync.Mutex
	slots map[valueobject.ArtifactKind][]byte
	saves map[valueobject.ArtifactKind]int
}

func newMemArtifactStore() *memArtifactStore {
	return &memArtifactStore{
		slots: make(map[valueobject.ArtifactKind][]byte),
		saves: make(map[valueobject.ArtifactKind]int),
	}
}

func (m *memArtifactStore) Save(_ context.Context, kind valueobject.ArtifactKind, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.slots[kind] = append([]byte(nil), data...)
	m.saves[kind]++
	return nil
}

func (m *memArtifactStore) Load(_ context.Context, kind valueobject.ArtifactKind) (*port.Artifact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.slots[kind]
	if !ok {
		return nil, port.ErrArtifactNotFound
	}
	return &port.Artifact{Kind: kind, ContentType: "image/png", Data: data, ModifiedAt: time.Now()}, nil
}

func (m *memArtifactStore) get(kind valueobject.ArtifactKind) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return string(m.slots[kind])
}

func (m *memArtifactStore) count(kind valueobject.ArtifactKind) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves[kind]
}

func gmvRecord(value string) *entity.MetricRecord {
	return &entity.MetricRecord{
		UpdateTime:     "2026-03-01 10:00",
		ComparisonDate: "2026-02-28",
		Metrics: []entity.MetricEntry{
			{Name: "GMV", Value: value, Comparison: "+5%", Status: "ok"},
		},
	}
}
