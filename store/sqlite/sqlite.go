// Package sqlite provides a durable core.ConversationStore backed by SQLite
// via gorm and the pure-Go glebarez driver. Conversations are flat records
// with the participant set and speaking order serialized as JSON columns;
// messages live in their own table ordered by an auto-incrementing sequence
// so transcript order survives equal timestamps.
package sqlite

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/hupe1980/parley/core"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type conversationRecord struct {
	ID            string `gorm:"primaryKey"`
	Topic         string
	UserName      string
	Status        string
	Cursor        int
	Participants  string // JSON array of participant ids
	SpeakingOrder string // JSON array, permutation of Participants
	Created       time.Time
	Updated       time.Time
}

func (conversationRecord) TableName() string { return "conversations" }

type messageRecord struct {
	Seq            uint64 `gorm:"primaryKey;autoIncrement"`
	ID             string `gorm:"uniqueIndex"`
	ConversationID string `gorm:"index"`
	Sender         string
	Text           string
	IsUser         bool
	CreatedAt      time.Time
}

func (messageRecord) TableName() string { return "messages" }

// Store is a gorm-backed ConversationStore.
type Store struct {
	db *gorm.DB
}

var _ core.ConversationStore = (*Store)(nil)

// Open opens (or creates) the database at path and migrates the schema.
// Use ":memory:" for an ephemeral database in tests.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	return NewStore(db)
}

// NewStore wraps an existing gorm handle and migrates the schema.
func NewStore(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&conversationRecord{}, &messageRecord{}); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Create persists a new conversation snapshot.
func (s *Store) Create(c *core.Conversation) error {
	snap := c.Snapshot()
	rec, err := toRecord(snap)
	if err != nil {
		return err
	}
	return s.db.Create(rec).Error
}

// Get returns the conversation with its transcript or
// core.ErrConversationNotFound.
func (s *Store) Get(id string) (*core.Conversation, error) {
	var rec conversationRecord
	if err := s.db.First(&rec, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", core.ErrConversationNotFound, id)
		}
		return nil, err
	}

	var msgs []messageRecord
	if err := s.db.Order("seq").Find(&msgs, "conversation_id = ?", id).Error; err != nil {
		return nil, err
	}

	snap, err := fromRecord(rec)
	if err != nil {
		return nil, err
	}
	for _, m := range msgs {
		snap.Transcript = append(snap.Transcript, core.Message{
			ID:             m.ID,
			ConversationID: m.ConversationID,
			Sender:         m.Sender,
			Text:           m.Text,
			IsUser:         m.IsUser,
			CreatedAt:      m.CreatedAt,
		})
	}
	return core.FromSnapshot(snap), nil
}

// AppendMessage records a committed transcript message. Re-appending an id
// that already exists is ignored, keeping appends idempotent. The insert uses
// ON CONFLICT DO NOTHING so the contract holds regardless of how the gorm
// handle was configured.
func (s *Store) AppendMessage(id string, m core.Message) error {
	if err := s.exists(id); err != nil {
		return err
	}
	return s.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&messageRecord{
		ID:             m.ID,
		ConversationID: id,
		Sender:         m.Sender,
		Text:           m.Text,
		IsUser:         m.IsUser,
		CreatedAt:      m.CreatedAt,
	}).Error
}

// UpdateStatus records a lifecycle transition.
func (s *Store) UpdateStatus(id string, status core.Status) error {
	return s.update(id, map[string]any{"status": status.String()})
}

// UpdateCursor records an advanced speaking-order cursor.
func (s *Store) UpdateCursor(id string, cursor int) error {
	return s.update(id, map[string]any{"cursor": cursor})
}

// AddParticipant appends a participant to both the stored participant set
// and the speaking order tail.
func (s *Store) AddParticipant(id string, participantID string) error {
	var rec conversationRecord
	if err := s.db.First(&rec, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: %s", core.ErrConversationNotFound, id)
		}
		return err
	}

	snap, err := fromRecord(rec)
	if err != nil {
		return err
	}
	for _, p := range snap.Participants {
		if p == participantID {
			return nil
		}
	}
	snap.Participants = append(snap.Participants, participantID)
	snap.SpeakingOrder = append(snap.SpeakingOrder, participantID)

	participants, _ := json.Marshal(snap.Participants)
	order, _ := json.Marshal(snap.SpeakingOrder)
	return s.update(id, map[string]any{
		"participants":   string(participants),
		"speaking_order": string(order),
	})
}

func (s *Store) update(id string, fields map[string]any) error {
	fields["updated"] = time.Now().UTC()
	res := s.db.Model(&conversationRecord{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", core.ErrConversationNotFound, id)
	}
	return nil
}

func (s *Store) exists(id string) error {
	var count int64
	if err := s.db.Model(&conversationRecord{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return fmt.Errorf("%w: %s", core.ErrConversationNotFound, id)
	}
	return nil
}

func toRecord(snap core.Snapshot) (*conversationRecord, error) {
	participants, err := json.Marshal(snap.Participants)
	if err != nil {
		return nil, err
	}
	order, err := json.Marshal(snap.SpeakingOrder)
	if err != nil {
		return nil, err
	}
	return &conversationRecord{
		ID:            snap.ID,
		Topic:         snap.Topic,
		UserName:      snap.UserName,
		Status:        snap.Status.String(),
		Cursor:        snap.Cursor,
		Participants:  string(participants),
		SpeakingOrder: string(order),
		Created:       snap.Created,
		Updated:       snap.Updated,
	}, nil
}

func fromRecord(rec conversationRecord) (core.Snapshot, error) {
	snap := core.Snapshot{
		ID:       rec.ID,
		Topic:    rec.Topic,
		UserName: rec.UserName,
		Status:   core.Status(rec.Status),
		Cursor:   rec.Cursor,
		Created:  rec.Created,
		Updated:  rec.Updated,
	}
	if err := json.Unmarshal([]byte(rec.Participants), &snap.Participants); err != nil {
		return core.Snapshot{}, fmt.Errorf("decode participants for %s: %w", rec.ID, err)
	}
	if err := json.Unmarshal([]byte(rec.SpeakingOrder), &snap.SpeakingOrder); err != nil {
		return core.Snapshot{}, fmt.Errorf("decode speaking order for %s: %w", rec.ID, err)
	}
	return snap, nil
}
