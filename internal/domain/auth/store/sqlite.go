package store

import (
	"context"
	stderrors "errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"chemviz-client-go/internal/domain/auth/model"
	"chemviz-client-go/internal/platform/errors"
	"chemviz-client-go/internal/platform/storage"
)

type sqliteStore struct {
	db        *gorm.DB
	namespace string
}

// NewSQLite builds a SQLite-backed session store. The schema is created by
// the storage migrations.
func NewSQLite(db *gorm.DB, cfg Config) (Store, error) {
	if db == nil {
		return nil, errors.New(errors.KindStorage, "store.sqlite", "sqlite store requires database handle")
	}
	return &sqliteStore{
		db:        db,
		namespace: namespaceOf(cfg),
	}, nil
}

func (s *sqliteStore) Load(ctx context.Context) (model.Credentials, error) {
	var row storage.SessionCredential
	err := s.db.WithContext(ctx).Where("namespace = ?", s.namespace).First(&row).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return model.Credentials{}, nil
	}
	if err != nil {
		return model.Credentials{}, errors.Wrap(errors.KindStorage, "store.sqlite.load", "failed to load credentials", err)
	}
	return model.Credentials{
		AccessToken:  row.AccessToken,
		RefreshToken: row.RefreshToken,
		UpdatedAt:    row.UpdatedAt,
	}, nil
}

func (s *sqliteStore) Save(ctx context.Context, creds model.Credentials) error {
	now := time.Now()
	row := storage.SessionCredential{
		Namespace:    s.namespace,
		AccessToken:  creds.AccessToken,
		RefreshToken: creds.RefreshToken,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "namespace"}},
		DoUpdates: clause.AssignmentColumns([]string{"access_token", "refresh_token", "updated_at"}),
	}).Create(&row).Error
	return errors.Wrap(errors.KindStorage, "store.sqlite.save", "failed to save credentials", err)
}

func (s *sqliteStore) SaveAccessToken(ctx context.Context, access string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&storage.SessionCredential{}).
			Where("namespace = ?", s.namespace).
			Updates(map[string]any{"access_token": access, "updated_at": time.Now()})
		if res.Error != nil {
			return errors.Wrap(errors.KindStorage, "store.sqlite.save_access", "failed to update access token", res.Error)
		}
		if res.RowsAffected > 0 {
			return nil
		}
		now := time.Now()
		err := tx.Create(&storage.SessionCredential{
			Namespace:   s.namespace,
			AccessToken: access,
			CreatedAt:   now,
			UpdatedAt:   now,
		}).Error
		return errors.Wrap(errors.KindStorage, "store.sqlite.save_access", "failed to insert access token", err)
	})
}

func (s *sqliteStore) Clear(ctx context.Context) error {
	err := s.db.WithContext(ctx).Where("namespace = ?", s.namespace).Delete(&storage.SessionCredential{}).Error
	return errors.Wrap(errors.KindStorage, "store.sqlite.clear", "failed to clear credentials", err)
}

func (s *sqliteStore) Stats(ctx context.Context) (map[string]any, error) {
	var total int64
	if err := s.db.WithContext(ctx).Model(&storage.SessionCredential{}).Count(&total).Error; err != nil {
		return nil, errors.Wrap(errors.KindStorage, "store.sqlite.stats", "failed to count sessions", err)
	}
	creds, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"type":          "sqlite",
		"namespace":     s.namespace,
		"namespaces":    total,
		"authenticated": creds.AccessToken != "",
	}, nil
}

func (s *sqliteStore) Close(context.Context) error {
	return nil
}
