package usecases_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/samirrijal/placefinder/internal/core/domain"
	"github.com/samirrijal/placefinder/internal/pkg/token"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// --- Mock PlaceRepository ---

type mockPlaceRepo struct {
	createFn  func(ctx context.Context, p *domain.Place) error
	getByIDFn func(ctx context.Context, id string) (*domain.Place, error)
	listAllFn func(ctx context.Context) ([]domain.Place, error)

	listCalls int
}

func (m *mockPlaceRepo) Create(ctx context.Context, p *domain.Place) error {
	if m.createFn != nil {
		return m.createFn(ctx, p)
	}
	return nil
}

func (m *mockPlaceRepo) GetByID(ctx context.Context, id string) (*domain.Place, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, domain.ErrNotFound
}

func (m *mockPlaceRepo) ListAll(ctx context.Context) ([]domain.Place, error) {
	m.listCalls++
	if m.listAllFn != nil {
		return m.listAllFn(ctx)
	}
	return nil, nil
}

// --- In-memory UserRepository ---

type memUserRepo struct {
	mu    sync.Mutex
	users map[string]domain.User
	err   error
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{users: make(map[string]domain.User)}
}

func (m *memUserRepo) Create(ctx context.Context, u *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if _, ok := m.users[u.Username]; ok {
		return domain.ErrConflict
	}
	m.users[u.Username] = *u
	return nil
}

func (m *memUserRepo) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	u, ok := m.users[username]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &u, nil
}

func (m *memUserRepo) SetRole(ctx context.Context, username string, role domain.Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[username]
	if !ok {
		return domain.ErrNotFound
	}
	u.Role = role
	m.users[username] = u
	return nil
}

// --- Fake ImageStore ---

type fakeImageStore struct {
	saved   map[string][]byte
	deleted []string
	saveErr error
}

func newFakeImageStore() *fakeImageStore {
	return &fakeImageStore{saved: make(map[string][]byte)}
}

func (f *fakeImageStore) Save(ctx context.Context, filename string, r io.Reader) (domain.ImageRef, error) {
	if f.saveErr != nil {
		return domain.ImageRef{}, f.saveErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return domain.ImageRef{}, err
	}
	key := "k-" + filename
	f.saved[key] = data
	return domain.ImageRef{Key: key, URL: "/uploads/" + key}, nil
}

func (f *fakeImageStore) Delete(ctx context.Context, ref domain.ImageRef) error {
	if _, ok := f.saved[ref.Key]; !ok {
		return errors.New("no such image")
	}
	delete(f.saved, ref.Key)
	f.deleted = append(f.deleted, ref.Key)
	return nil
}

// --- Map cache ---

type mapCache struct {
	data map[string][]byte
}

func newMapCache() *mapCache { return &mapCache{data: make(map[string][]byte)} }

func (c *mapCache) Get(ctx context.Context, key string) ([]byte, error) {
	v, ok := c.data[key]
	if !ok {
		return nil, errors.New("valkey nil message")
	}
	return v, nil
}

func (c *mapCache) Set(ctx context.Context, key string, value []byte, ttlSeconds int) error {
	c.data[key] = value
	return nil
}

func (c *mapCache) Delete(ctx context.Context, key string) error {
	delete(c.data, key)
	return nil
}

// --- Recording publisher ---

type recordingPublisher struct {
	registered []domain.Place
	detections []domain.DetectionEvent
	err        error
}

func (p *recordingPublisher) PublishPlaceRegistered(ctx context.Context, place *domain.Place) error {
	p.registered = append(p.registered, *place)
	return p.err
}

func (p *recordingPublisher) PublishDetection(ctx context.Context, e *domain.DetectionEvent) error {
	p.detections = append(p.detections, *e)
	return p.err
}

// stalledPublisher blocks every publish until ctx is done, like a JetStream
// publish waiting on an ack from an unreachable server.
type stalledPublisher struct {
	deadlines chan time.Duration
}

func (p *stalledPublisher) PublishPlaceRegistered(ctx context.Context, place *domain.Place) error {
	<-ctx.Done()
	return ctx.Err()
}

func (p *stalledPublisher) PublishDetection(ctx context.Context, e *domain.DetectionEvent) error {
	if dl, ok := ctx.Deadline(); ok {
		p.deadlines <- time.Until(dl)
	} else {
		p.deadlines <- -1
	}
	<-ctx.Done()
	return ctx.Err()
}

func newTokens() *token.Manager {
	m, err := token.NewManager(testSecret, time.Hour)
	if err != nil {
		panic(err)
	}
	return m
}
