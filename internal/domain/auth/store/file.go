package store

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bytedance/sonic"

	"chemviz-client-go/internal/domain/auth/model"
	"chemviz-client-go/internal/platform/errors"
)

// fileDocument is the on-disk layout: one credential pair per namespace.
type fileDocument struct {
	Sessions map[string]model.Credentials `json:"sessions"`
}

type fileStore struct {
	path      string
	namespace string
	mutex     sync.Mutex
}

// NewFile builds a store persisted as a JSON file readable only by the
// current user.
func NewFile(cfg Config) (Store, error) {
	if cfg.File == nil || cfg.File.Path == "" {
		return nil, errors.New(errors.KindConfig, "store.file", "session file path required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.File.Path), 0o700); err != nil {
		return nil, errors.Wrap(errors.KindStorage, "store.file", "create session directory", err)
	}
	return &fileStore{path: cfg.File.Path, namespace: namespaceOf(cfg)}, nil
}

func (s *fileStore) read() (fileDocument, error) {
	doc := fileDocument{Sessions: map[string]model.Credentials{}}
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return doc, nil
	}
	if err != nil {
		return doc, errors.Wrap(errors.KindStorage, "store.file.read", "read session file", err)
	}
	if len(data) == 0 {
		return doc, nil
	}
	if err := sonic.Unmarshal(data, &doc); err != nil {
		return doc, errors.Wrap(errors.KindStorage, "store.file.decode", "decode session file", err)
	}
	if doc.Sessions == nil {
		doc.Sessions = map[string]model.Credentials{}
	}
	return doc, nil
}

// write replaces the file atomically through a temp file in the same dir.
func (s *fileStore) write(doc fileDocument) error {
	data, err := sonic.Marshal(doc)
	if err != nil {
		return errors.Wrap(errors.KindStorage, "store.file.encode", "encode session file", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".session-*.tmp")
	if err != nil {
		return errors.Wrap(errors.KindStorage, "store.file.write", "create temp file", err)
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return errors.Wrap(errors.KindStorage, "store.file.write", "chmod temp file", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrap(errors.KindStorage, "store.file.write", "write temp file", err)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(errors.KindStorage, "store.file.write", "close temp file", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return errors.Wrap(errors.KindStorage, "store.file.write", "replace session file", err)
	}
	return nil
}

func (s *fileStore) update(fn func(*model.Credentials)) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	doc, err := s.read()
	if err != nil {
		return err
	}
	creds := doc.Sessions[s.namespace]
	fn(&creds)
	if creds.Empty() {
		delete(doc.Sessions, s.namespace)
	} else {
		creds.UpdatedAt = time.Now()
		doc.Sessions[s.namespace] = creds
	}
	return s.write(doc)
}

func (s *fileStore) Load(_ context.Context) (model.Credentials, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	doc, err := s.read()
	if err != nil {
		return model.Credentials{}, err
	}
	return doc.Sessions[s.namespace], nil
}

func (s *fileStore) Save(_ context.Context, creds model.Credentials) error {
	return s.update(func(c *model.Credentials) { *c = creds })
}

func (s *fileStore) SaveAccessToken(_ context.Context, access string) error {
	return s.update(func(c *model.Credentials) { c.AccessToken = access })
}

func (s *fileStore) Clear(_ context.Context) error {
	return s.update(func(c *model.Credentials) { *c = model.Credentials{} })
}

func (s *fileStore) Stats(_ context.Context) (map[string]any, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	doc, err := s.read()
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"type":          "file",
		"path":          s.path,
		"namespace":     s.namespace,
		"namespaces":    len(doc.Sessions),
		"authenticated": doc.Sessions[s.namespace].AccessToken != "",
	}, nil
}

func (s *fileStore) Close(context.Context) error {
	return nil
}
