package service

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/dkopylov/modvault/internal/domain/model"
	"github.com/dkopylov/modvault/internal/repository"
)

// countingCommunityRepo — фейковый репозиторий, считающий обращения к БД.
type countingCommunityRepo struct {
	communities map[string]*model.Community
	getCalls    int
}

func (r *countingCommunityRepo) Create(_ context.Context, c *model.Community) error {
	r.communities[c.Identifier] = c
	return nil
}

func (r *countingCommunityRepo) GetByIdentifier(_ context.Context, identifier string) (*model.Community, error) {
	r.getCalls++
	c, ok := r.communities[identifier]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return c, nil
}

func (r *countingCommunityRepo) List(_ context.Context, _, _ int) ([]*model.Community, error) {
	var result []*model.Community
	for _, c := range r.communities {
		if c.IsListed {
			result = append(result, c)
		}
	}
	return result, nil
}

func TestCommunityServiceCaching(t *testing.T) {
	repo := &countingCommunityRepo{communities: map[string]*model.Community{
		"riskofrain2": {ID: "c1", Identifier: "riskofrain2", Name: "Risk of Rain 2", IsListed: true},
	}}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	svc := NewCommunityService(repo, 16, time.Minute, logger)
	ctx := context.Background()

	// Первый запрос — промах, чтение из репозитория
	c, err := svc.Get(ctx, "riskofrain2")
	if err != nil {
		t.Fatalf("Get() ошибка: %v", err)
	}
	if c.Name != "Risk of Rain 2" {
		t.Errorf("Name = %q, ожидалось %q", c.Name, "Risk of Rain 2")
	}
	if repo.getCalls != 1 {
		t.Errorf("обращений к репозиторию = %d, ожидалось 1", repo.getCalls)
	}

	// Повторные запросы идут из кэша
	for i := 0; i < 5; i++ {
		if _, err := svc.Get(ctx, "riskofrain2"); err != nil {
			t.Fatalf("Get(повтор) ошибка: %v", err)
		}
	}
	if repo.getCalls != 1 {
		t.Errorf("обращений к репозиторию после повторов = %d, ожидалось 1", repo.getCalls)
	}

	// Промах по несуществующему идентификатору не кэшируется
	if _, err := svc.Get(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(несуществующий) = %v, ожидался ErrNotFound", err)
	}
	if _, err := svc.Get(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(несуществующий, повтор) = %v, ожидался ErrNotFound", err)
	}
	if repo.getCalls != 3 {
		t.Errorf("обращений к репозиторию = %d, ожидалось 3", repo.getCalls)
	}
}
