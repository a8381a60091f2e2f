package gate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"ms-registration/internal/logger"
	"ms-registration/internal/utils"
)

const (
	challengePrefix = "gate:challenge:"
	passPrefix      = "gate:pass:"
)

var ErrChallengeNotFound = errors.New("challenge not found or expired")

type Options struct {
	Tolerance  int
	TrackWidth int
	PieceSize  int
	TTL        time.Duration
}

// Challenge is what the client needs to draw the puzzle. The slot position
// stays in Redis.
type Challenge struct {
	ID         string    `json:"challenge_id"`
	TrackWidth int       `json:"track_width"`
	PieceSize  int       `json:"piece_size"`
	SlotY      int       `json:"slot_y"`
	ExpiresAt  time.Time `json:"expires_at"`
}

type storedChallenge struct {
	SlotX int `json:"slot_x"`
	SlotY int `json:"slot_y"`
}

// Store keeps challenges and single-use passes in Redis with a TTL.
type Store struct {
	rdb  *redis.Client
	opts Options
	log  *logger.Logger
	now  func() time.Time
}

func NewStore(rdb *redis.Client, opts Options, log *logger.Logger) *Store {
	if opts.TTL <= 0 {
		opts.TTL = 2 * time.Minute
	}
	if opts.PieceSize <= 0 {
		opts.PieceSize = 48
	}
	if opts.TrackWidth < 3*opts.PieceSize {
		opts.TrackWidth = 3 * opts.PieceSize
	}
	return &Store{
		rdb:  rdb,
		opts: opts,
		log:  log,
		now:  time.Now,
	}
}

// Present creates a challenge with the slot somewhere away from both track edges.
func (s *Store) Present(ctx context.Context) (*Challenge, error) {
	m := NewMachine(s.opts.Tolerance)
	slotX, err := utils.RandomInt(s.opts.PieceSize, s.opts.TrackWidth-s.opts.PieceSize)
	if err != nil {
		return nil, err
	}
	slotY, err := utils.RandomInt(0, s.opts.PieceSize)
	if err != nil {
		return nil, err
	}
	if err := m.Present(slotX); err != nil {
		return nil, err
	}
	stored := storedChallenge{SlotX: slotX, SlotY: slotY}
	body, err := json.Marshal(stored)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	if err := s.rdb.Set(ctx, challengePrefix+id, body, s.opts.TTL).Err(); err != nil {
		return nil, fmt.Errorf("store challenge: %w", err)
	}
	s.log.Debug("GATE", fmt.Sprintf("Presented challenge %s", id))

	return &Challenge{
		ID:         id,
		TrackWidth: s.opts.TrackWidth,
		PieceSize:  s.opts.PieceSize,
		SlotY:      stored.SlotY,
		ExpiresAt:  s.now().Add(s.opts.TTL),
	}, nil
}

// Attempt consumes the challenge whatever the outcome. On success it returns
// a pass that can be redeemed once.
func (s *Store) Attempt(ctx context.Context, challengeID string, x int) (string, error) {
	m, err := s.load(ctx, challengeID)
	if err != nil {
		return "", err
	}
	if err := m.Attempt(x); err != nil {
		s.log.LogSecurity("GATE", fmt.Sprintf("Challenge %s failed at x=%d", challengeID, x))
		return "", err
	}

	pass := uuid.NewString()
	if err := s.rdb.Set(ctx, passPrefix+pass, challengeID, s.opts.TTL).Err(); err != nil {
		return "", fmt.Errorf("store pass: %w", err)
	}
	return pass, nil
}

// Dismiss drops a presented challenge. Dismissing an unknown one is not an error.
func (s *Store) Dismiss(ctx context.Context, challengeID string) error {
	m, err := s.load(ctx, challengeID)
	if errors.Is(err, ErrChallengeNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := m.Dismiss(); err != nil {
		return err
	}
	s.log.Debug("GATE", fmt.Sprintf("Dismissed challenge %s", challengeID))
	return nil
}

// load takes a challenge out of Redis and rebuilds its presented machine.
func (s *Store) load(ctx context.Context, challengeID string) (*Machine, error) {
	body, err := s.rdb.GetDel(ctx, challengePrefix+challengeID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrChallengeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load challenge: %w", err)
	}
	var stored storedChallenge
	if err := json.Unmarshal(body, &stored); err != nil {
		return nil, fmt.Errorf("decode challenge: %w", err)
	}

	m := NewMachine(s.opts.Tolerance)
	if err := m.Present(stored.SlotX); err != nil {
		return nil, err
	}
	return m, nil
}

// Redeem spends a pass. A missing, expired or already used pass fails.
func (s *Store) Redeem(ctx context.Context, pass string) error {
	if pass == "" {
		return ErrVerificationFailed
	}
	err := s.rdb.GetDel(ctx, passPrefix+pass).Err()
	if errors.Is(err, redis.Nil) {
		return ErrVerificationFailed
	}
	if err != nil {
		return fmt.Errorf("redeem pass: %w", err)
	}
	return nil
}

// Connect opens a Redis client and pings it.
func Connect(ctx context.Context, addr, password string, db int, log *logger.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
		PoolSize: 10,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Error("GATE", fmt.Sprintf("Failed to connect to Redis at %s: %v", addr, err))
		_ = client.Close()
		return nil, err
	}

	log.Info("GATE", fmt.Sprintf("Connected to Redis at %s", addr))
	return client, nil
}
