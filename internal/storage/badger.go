// Package storage persists collaboration snapshots in BadgerDB.
//
// Key layout:
//
//	user:{id}                          -> model.User
//	conv:{id}                          -> model.ConversationRecord without messages
//	msg:{conv}:{unix nanos, 19 digits}:{id} -> model.Message
//
// Message keys sort by timestamp within a conversation, so a prefix scan
// returns them in append order.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	"github.com/capitalize-ai/study-collab/internal/model"
	"github.com/capitalize-ai/study-collab/pkg/logger"
)

const (
	userPrefix = "user:"
	convPrefix = "conv:"
	msgPrefix  = "msg:"
)

// Repository stores snapshots in a Badger database.
type Repository struct {
	db     *badger.DB
	logger *logger.Logger
}

// Open opens (or creates) the database at path.
func Open(path string, log *logger.Logger) (*Repository, error) {
	return open(badger.DefaultOptions(path), log)
}

// OpenInMemory opens a database that lives only as long as the process.
func OpenInMemory(log *logger.Logger) (*Repository, error) {
	return open(badger.DefaultOptions("").WithInMemory(true), log)
}

func open(opts badger.Options, log *logger.Logger) (*Repository, error) {
	if log == nil {
		log = logger.NewNop()
	}
	opts = opts.WithLogger(badgerLogger{log.Named("badger").Sugar()})
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}
	return &Repository{db: db, logger: log}, nil
}

// Close closes the database.
func (r *Repository) Close() error {
	return r.db.Close()
}

// Ping fails once the database has been closed.
func (r *Repository) Ping(ctx context.Context) error {
	if r.db.IsClosed() {
		return badger.ErrDBClosed
	}
	return ctx.Err()
}

func userKey(id string) []byte {
	return []byte(userPrefix + id)
}

func convKey(id string) []byte {
	return []byte(convPrefix + id)
}

func msgKey(m model.Message) []byte {
	return []byte(fmt.Sprintf("%s%s:%019d:%s", msgPrefix, m.ConversationID, m.Timestamp.UnixNano(), m.ID))
}

// Save writes snap and removes keys that are no longer part of it.
func (r *Repository) Save(ctx context.Context, snap model.Snapshot) error {
	keep := make(map[string]struct{})
	wb := r.db.NewWriteBatch()
	defer wb.Cancel()

	set := func(key []byte, v any) error {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to marshal %s: %w", key, err)
		}
		keep[string(key)] = struct{}{}
		return wb.Set(key, data)
	}

	for _, u := range snap.Users {
		if err := set(userKey(u.ID), u); err != nil {
			return err
		}
	}
	for _, c := range snap.Conversations {
		if err := ctx.Err(); err != nil {
			return err
		}
		header := c
		header.Messages = nil
		if err := set(convKey(c.ID), header); err != nil {
			return err
		}
		for _, m := range c.Messages {
			m.ConversationID = c.ID
			if err := set(msgKey(m), m); err != nil {
				return err
			}
		}
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("failed to flush snapshot: %w", err)
	}

	stale, err := r.staleKeys(keep)
	if err != nil {
		return err
	}
	if len(stale) == 0 {
		return nil
	}
	del := r.db.NewWriteBatch()
	defer del.Cancel()
	for _, k := range stale {
		if err := del.Delete(k); err != nil {
			return fmt.Errorf("failed to delete %s: %w", k, err)
		}
	}
	if err := del.Flush(); err != nil {
		return fmt.Errorf("failed to flush deletes: %w", err)
	}
	r.logger.Debug("removed stale snapshot keys", zap.Int("count", len(stale)))
	return nil
}

func (r *Repository) staleKeys(keep map[string]struct{}) ([][]byte, error) {
	var stale [][]byte
	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			k := it.Item().KeyCopy(nil)
			if _, ok := keep[string(k)]; !ok {
				stale = append(stale, k)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan keys: %w", err)
	}
	return stale, nil
}

// Load reads the stored snapshot. An empty database yields an empty snapshot.
func (r *Repository) Load(ctx context.Context) (model.Snapshot, error) {
	var snap model.Snapshot
	err := r.db.View(func(txn *badger.Txn) error {
		users, err := scan[model.User](txn, userPrefix)
		if err != nil {
			return err
		}
		convs, err := scan[model.ConversationRecord](txn, convPrefix)
		if err != nil {
			return err
		}
		msgs, err := scan[model.Message](txn, msgPrefix)
		if err != nil {
			return err
		}

		index := make(map[string]int, len(convs))
		for i := range convs {
			index[convs[i].ID] = i
		}
		for _, m := range msgs {
			i, ok := index[m.ConversationID]
			if !ok {
				r.logger.Warn("orphan message in store",
					zap.String("message_id", m.ID),
					zap.String("conversation_id", m.ConversationID),
				)
				continue
			}
			convs[i].Messages = append(convs[i].Messages, m)
		}

		snap.Users = users
		snap.Conversations = convs
		return ctx.Err()
	})
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("failed to load snapshot: %w", err)
	}
	return snap, nil
}

func scan[T any](txn *badger.Txn, prefix string) ([]T, error) {
	var out []T
	p := []byte(prefix)

	opts := badger.DefaultIteratorOptions
	opts.Prefix = p
	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Seek(p); it.ValidForPrefix(p); it.Next() {
		item := it.Item()
		err := item.Value(func(v []byte) error {
			var rec T
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("failed to unmarshal %s: %w", item.Key(), err)
			}
			out = append(out, rec)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// badgerLogger routes badger's printf-style logging through zap.
type badgerLogger struct {
	s *zap.SugaredLogger
}

func (l badgerLogger) Errorf(format string, args ...any) {
	l.s.Errorf(strings.TrimRight(format, "\n"), args...)
}

func (l badgerLogger) Warningf(format string, args ...any) {
	l.s.Warnf(strings.TrimRight(format, "\n"), args...)
}

func (l badgerLogger) Infof(format string, args ...any) {
	l.s.Debugf(strings.TrimRight(format, "\n"), args...)
}

func (l badgerLogger) Debugf(format string, args ...any) {
	l.s.Debugf(strings.TrimRight(format, "\n"), args...)
}
