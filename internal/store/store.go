package store

import (
	"context"
	"errors"
	"sort"
	"sync"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"fanctl-backend/internal/model"
)

var (
	// ErrNotFound is returned when a keyed lookup or conditional update matches nothing.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a write would violate a uniqueness rule.
	ErrDuplicate = errors.New("record already exists")
	// ErrCapacityExceeded is matched by every *CapacityError.
	ErrCapacityExceeded = errors.New("exceeds fan model totalDevices limit")
)

// Store defines the interface for all database operations.
type Store interface {
	// Floors and layouts
	CreateFloor(ctx context.Context, floor *model.Floor) error
	ListFloors(ctx context.Context) ([]model.Floor, error)
	GetFloor(ctx context.Context, floorID string) (*model.Floor, error)
	FloorExists(ctx context.Context, floorID string) (bool, error)
	UpdateFloor(ctx context.Context, floorID string, patch FloorPatch) (*FloorUpdate, error)
	UpsertLayoutMeta(ctx context.Context, floorID string, meta datatypes.JSON) (*model.Layout, bool, error)
	DeleteFloor(ctx context.Context, floorID string) (*FloorDeletion, error)

	// Fan models
	FindFanModelByEndpoint(ctx context.Context, ipAddress string, port int) (*model.FanModel, error)
	CreateFanModel(ctx context.Context, fanModel *model.FanModel) error
	ListFanModels(ctx context.Context) ([]model.FanModel, error)
	GetFanModel(ctx context.Context, fanModelID string) (*model.FanModel, error)
	GetFanModels(ctx context.Context, fanModelIDs []string) (map[string]model.FanModel, error)

	// Fans
	ExistingFans(ctx context.Context, keys []FanKey) (map[FanKey]bool, error)
	InsertFans(ctx context.Context, fans []model.Fan) error
	FanNameTaken(ctx context.Context, floorID, name string) (bool, error)
	ListFans(ctx context.Context, filter FanFilter) ([]model.Fan, error)
	GetFan(ctx context.Context, floorID, fanID string) (*model.Fan, error)
	SetFanSpeed(ctx context.Context, floorID, fanID string, rpm int) (*SpeedChange, error)

	// Roles
	ListRoles(ctx context.Context) ([]model.Role, error)
	GetRole(ctx context.Context, roleID string) (*model.Role, error)
	CreateRole(ctx context.Context, role *model.Role) error
	UpdateRole(ctx context.Context, roleID string, patch RolePatch) (*model.Role, error)
	DeleteRole(ctx context.Context, roleID string) (*model.Role, error)

	// Push subscriptions
	SaveSubscription(ctx context.Context, sub *model.PushSubscription, floorIDs []string) error
	GetSubscription(ctx context.Context, endpoint string) (*model.PushSubscription, error)
	DeleteSubscription(ctx context.Context, endpoint string) error
	SubscriptionsForFloor(ctx context.Context, floorID string) ([]model.PushSubscription, error)
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db         *gorm.DB
	modelLocks *keyedMutex
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db, modelLocks: newKeyedMutex()}
}

// translate maps gorm errors onto the store's sentinel errors.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicate
	}
	return err
}

// keyedMutex hands out one mutex per key. It serializes the capacity
// check-then-insert for a fan model within this process.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*sync.Mutex)}
}

// lock acquires the mutexes for keys in sorted order and returns the release func.
func (k *keyedMutex) lock(keys []string) func() {
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)

	held := make([]*sync.Mutex, 0, len(sorted))
	for i, key := range sorted {
		if i > 0 && key == sorted[i-1] {
			continue
		}
		k.mu.Lock()
		m, ok := k.locks[key]
		if !ok {
			m = &sync.Mutex{}
			k.locks[key] = m
		}
		k.mu.Unlock()

		m.Lock()
		held = append(held, m)
	}

	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}
}
