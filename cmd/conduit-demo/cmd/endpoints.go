package cmd

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Togather-Foundation/conduit/audit"
	"github.com/Togather-Foundation/conduit/config"
	"github.com/Togather-Foundation/conduit/endpoint"
	"github.com/Togather-Foundation/conduit/events"
	"github.com/Togather-Foundation/conduit/registry"
	"github.com/Togather-Foundation/conduit/schema"
)

// User is the demo resource.
type User struct {
	ID        string    `json:"id" validate:"required"`
	Name      string    `json:"name" validate:"required"`
	Email     string    `json:"email" validate:"required,email"`
	CreatedAt time.Time `json:"created_at"`
}

type createUserInput struct {
	Name  string `json:"name" validate:"required,min=1,max=200"`
	Email string `json:"email" validate:"required,email"`
}

type userParams struct {
	ID string `json:"id" validate:"required"`
}

type healthOutput struct {
	Status string `json:"status" validate:"required"`
}

// userStore keeps demo users in process memory.
type userStore struct {
	mu    sync.RWMutex
	users map[string]User
}

func newUserStore() *userStore {
	return &userStore{users: make(map[string]User)}
}

func (s *userStore) Create(name, email string) User {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := User{
		ID:        uuid.NewString(),
		Name:      name,
		Email:     email,
		CreatedAt: time.Now().UTC(),
	}
	s.users[u.ID] = u
	return u
}

func (s *userStore) Get(id string) (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	return u, ok
}

func userStoreService() *registry.Descriptor {
	return registry.NewService("user-store", func(ctx context.Context, env *config.Env) (any, error) {
		return newUserStore(), nil
	})
}

func memoryAuditService() *registry.Descriptor {
	return registry.NewService("audit-storage", func(ctx context.Context, env *config.Env) (any, error) {
		return audit.NewMemoryStorage(), nil
	})
}

func healthEndpoint() *endpoint.Definition {
	return endpoint.New().
		Get("/health").
		Output(schema.Struct[healthOutput]()).
		Handle(func(ctx context.Context, r *endpoint.Request) (any, error) {
			return healthOutput{Status: "ok"}, nil
		})
}

func createUserEndpoint(store, auditor, publisher *registry.Descriptor) *endpoint.Definition {
	return endpoint.New().
		Post("/users").
		Body(schema.Struct[createUserInput]()).
		Output(schema.Struct[User]()).
		Services(store).
		Auditor(auditor).
		Audit(audit.Mapping{
			Type:     "user.created",
			Table:    "users",
			Payload:  func(output any) any { return output },
			EntityID: func(output any) string { return output.(User).ID },
		}).
		Publisher(publisher).
		Event(events.Mapping{
			Type:    "user.created",
			Payload: func(output any) any { return output },
		}).
		Status(201).
		Handle(func(ctx context.Context, r *endpoint.Request) (any, error) {
			in := r.Body.(createUserInput)
			users, err := registry.Get[*userStore](r.Services, "user-store")
			if err != nil {
				return nil, err
			}
			return users.Create(in.Name, in.Email), nil
		})
}

func getUserEndpoint(store *registry.Descriptor) *endpoint.Definition {
	return endpoint.New().
		Get("/users/:id").
		Params(schema.Struct[userParams]()).
		Output(schema.Struct[User]()).
		Services(store).
		Handle(func(ctx context.Context, r *endpoint.Request) (any, error) {
			params := r.Params.(userParams)
			users, err := registry.Get[*userStore](r.Services, "user-store")
			if err != nil {
				return nil, err
			}
			u, ok := users.Get(params.ID)
			if !ok {
				return nil, endpoint.NotFound("user not found")
			}
			return u, nil
		})
}
