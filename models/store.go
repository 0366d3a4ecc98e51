package models

import (
	"context"
	"time"

	"emperror.dev/errors"
	"github.com/cenkalti/backoff"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	collTickets   = "tickets"
	collBlacklist = "blacklist"
	collConfigs   = "configs"
)

var (
	// ErrNotFound is returned when no record matches the query.
	ErrNotFound = errors.Sentinel("models: record not found")

	// ErrOpenTicketExists is returned when inserting a ticket for an
	// owner that already has an open one, enforced by the open-ticket
	// index as a single atomic operation.
	ErrOpenTicketExists = errors.Sentinel("models: owner already has an open ticket")

	// ErrDuplicate is returned when a unique key insert conflicts.
	ErrDuplicate = errors.Sentinel("models: record already exists")

	// ErrStaleTicket is returned when a conditional ticket transition
	// matched nothing, the ticket changed between read and write.
	ErrStaleTicket = errors.Sentinel("models: ticket changed, transition not applied")
)

// Store persists tickets, blacklist entries and guild configs. It is
// the single source of truth, no ticket state is cached in memory.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

// Connect dials mongo, retrying the initial ping with exponential
// backoff, and ensures the indexes the store depends on.
func Connect(ctx context.Context, uri, dbName string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri).SetMaxPoolSize(5))
	if err != nil {
		return nil, errors.WithStackIf(err)
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5), ctx)
	err = backoff.Retry(func() error {
		pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		pingErr := client.Ping(pingCtx, nil)
		if pingErr != nil {
			logrus.WithError(pingErr).Warn("mongo not reachable yet, retrying")
		}
		return pingErr
	}, policy)
	if err != nil {
		return nil, errors.WithMessage(err, "connecting to mongo")
	}

	s := &Store{
		client: client,
		db:     client.Database(dbName),
	}

	if err := s.ensureIndexes(ctx); err != nil {
		return nil, errors.WithMessage(err, "creating indexes")
	}

	return s, nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	_, err := s.db.Collection(collTickets).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "ticket_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "guild_id", Value: 1}, {Key: "owner_id", Value: 1}},
		},
		{
			// at most one open ticket per owner, open tickets carry an
			// explicit null closed_at
			Keys: bson.D{{Key: "owner_id", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetName("open_ticket_per_owner").
				SetPartialFilterExpression(bson.D{{Key: "closed_at", Value: bson.D{{Key: "$type", Value: "null"}}}}),
		},
	})
	if err != nil {
		return err
	}

	_, err = s.db.Collection(collBlacklist).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "user_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return err
	}

	_, err = s.db.Collection(collConfigs).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "guild_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}

// InsertTicket persists a newly created ticket. The open-ticket index
// rejects the insert when the owner already has one open; ticket_id is
// a freshly created channel id so a key conflict always means that.
func (s *Store) InsertTicket(ctx context.Context, t *Ticket) error {
	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now
	if t.AddedUsers == nil {
		t.AddedUsers = []string{}
	}

	_, err := s.db.Collection(collTickets).InsertOne(ctx, t)
	if mongo.IsDuplicateKeyError(err) {
		return ErrOpenTicketExists
	}

	return errors.WithStackIf(err)
}

// OpenTicketByChannel resolves the open ticket hosted by the given
// channel, ErrNotFound when the channel hosts none.
func (s *Store) OpenTicketByChannel(ctx context.Context, channelID string) (*Ticket, error) {
	return s.findTicket(ctx, bson.M{"ticket_id": channelID, "closed_at": nil})
}

// OpenTicketByOwner resolves a user's open ticket regardless of guild.
func (s *Store) OpenTicketByOwner(ctx context.Context, ownerID string) (*Ticket, error) {
	return s.findTicket(ctx, bson.M{"owner_id": ownerID, "closed_at": nil})
}

func (s *Store) findTicket(ctx context.Context, filter bson.M) (*Ticket, error) {
	var t Ticket
	err := s.db.Collection(collTickets).FindOne(ctx, filter).Decode(&t)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.WithStackIf(err)
	}

	return &t, nil
}

// ClaimTicket assigns the ticket to staffID if it is still open and
// unclaimed, as a single conditional write.
func (s *Store) ClaimTicket(ctx context.Context, channelID, staffID string, now time.Time) (*Ticket, error) {
	return s.transitionTicket(ctx,
		bson.M{"ticket_id": channelID, "closed_at": nil, "claimed_by": ""},
		bson.M{"$set": bson.M{
			"claimed_by": staffID,
			"claimed_at": now,
			"updated_at": now,
		}})
}

// UnclaimTicket releases the claim if staffID still holds it.
func (s *Store) UnclaimTicket(ctx context.Context, channelID, staffID string, now time.Time) (*Ticket, error) {
	return s.transitionTicket(ctx,
		bson.M{"ticket_id": channelID, "closed_at": nil, "claimed_by": staffID},
		bson.M{"$set": bson.M{
			"claimed_by": "",
			"claimed_at": nil,
			"updated_at": now,
		}})
}

// CloseTicket marks the ticket closed if it is still open and either
// unclaimed or claimed by the actor. The transition is terminal.
func (s *Store) CloseTicket(ctx context.Context, channelID, actorID string, now time.Time) (*Ticket, error) {
	return s.transitionTicket(ctx,
		bson.M{
			"ticket_id": channelID,
			"closed_at": nil,
			"$or":       bson.A{bson.M{"claimed_by": ""}, bson.M{"claimed_by": actorID}},
		},
		bson.M{"$set": bson.M{
			"closed_at":  now,
			"closed_by":  actorID,
			"updated_at": now,
		}})
}

// AddParticipant grants userID secondary membership on the open ticket
// in the channel. $addToSet keeps the membership a set.
func (s *Store) AddParticipant(ctx context.Context, channelID, userID string) error {
	_, err := s.transitionTicket(ctx,
		bson.M{"ticket_id": channelID, "closed_at": nil},
		bson.M{
			"$addToSet": bson.M{"added_users": userID},
			"$set":      bson.M{"updated_at": time.Now().UTC()},
		})
	return err
}

// RemoveParticipant revokes userID's secondary membership.
func (s *Store) RemoveParticipant(ctx context.Context, channelID, userID string) error {
	_, err := s.transitionTicket(ctx,
		bson.M{"ticket_id": channelID, "closed_at": nil},
		bson.M{
			"$pull": bson.M{"added_users": userID},
			"$set":  bson.M{"updated_at": time.Now().UTC()},
		})
	return err
}

func (s *Store) transitionTicket(ctx context.Context, filter, update bson.M) (*Ticket, error) {
	var t Ticket
	err := s.db.Collection(collTickets).FindOneAndUpdate(ctx, filter, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&t)
	if err == mongo.ErrNoDocuments {
		return nil, ErrStaleTicket
	}
	if err != nil {
		return nil, errors.WithStackIf(err)
	}

	return &t, nil
}

// FindBlacklistEntry looks up the blacklist record for a user.
func (s *Store) FindBlacklistEntry(ctx context.Context, userID string) (*BlacklistEntry, error) {
	var e BlacklistEntry
	err := s.db.Collection(collBlacklist).FindOne(ctx, bson.M{"user_id": userID}).Decode(&e)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.WithStackIf(err)
	}

	return &e, nil
}

// AddBlacklistEntry persists a new blacklist record, ErrDuplicate when
// the user is already listed.
func (s *Store) AddBlacklistEntry(ctx context.Context, e *BlacklistEntry) error {
	if e.BlacklistedAt.IsZero() {
		e.BlacklistedAt = time.Now().UTC()
	}

	_, err := s.db.Collection(collBlacklist).InsertOne(ctx, e)
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicate
	}

	return errors.WithStackIf(err)
}

// RemoveBlacklistEntry deletes the record, ErrNotFound when the user
// was not listed.
func (s *Store) RemoveBlacklistEntry(ctx context.Context, userID string) error {
	res, err := s.db.Collection(collBlacklist).DeleteOne(ctx, bson.M{"user_id": userID})
	if err != nil {
		return errors.WithStackIf(err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}

	return nil
}

// GuildConfig resolves the active ticket setup for a guild.
func (s *Store) GuildConfig(ctx context.Context, guildID string) (*GuildConfig, error) {
	var c GuildConfig
	err := s.db.Collection(collConfigs).FindOne(ctx, bson.M{"guild_id": guildID}).Decode(&c)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.WithStackIf(err)
	}

	return &c, nil
}

// UpsertGuildConfig replaces the guild's config, creating it on first
// setup.
func (s *Store) UpsertGuildConfig(ctx context.Context, conf *GuildConfig) error {
	if conf.CreatedAt.IsZero() {
		conf.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.Collection(collConfigs).ReplaceOne(ctx,
		bson.M{"guild_id": conf.GuildID}, conf, options.Replace().SetUpsert(true))
	return errors.WithStackIf(err)
}
