package repository

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/AlfazAli25/NexusChat/internal/apperr"
	"github.com/AlfazAli25/NexusChat/internal/models"
)

type mongoRepo struct {
	chats    *mongo.Collection
	messages *mongo.Collection
	users    *mongo.Collection
}

func NewMongoRepo(db *mongo.Database) Repository {
	return &mongoRepo{
		chats:    db.Collection("chats"),
		messages: db.Collection("messages"),
		users:    db.Collection("users"),
	}
}

// EnsureIndexes creates the unique pair-key index that makes private-chat
// find-or-create converge under concurrency.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection("chats").Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "pair_key", Value: 1}},
		Options: options.Index().
			SetUnique(true).
			SetPartialFilterExpression(bson.M{"type": models.ChatPrivate}),
	})
	return err
}

// PairKey is the order-independent key for a private chat between two users.
func PairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + ":" + b
}

func objectID(hex string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(hex)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("%w: bad id %q", apperr.ErrValidation, hex)
	}
	return oid, nil
}

func wrapMongo(err error) error {
	if err == nil {
		return nil
	}
	if err == mongo.ErrNoDocuments {
		return apperr.ErrNotFound
	}
	return fmt.Errorf("%w: %v", apperr.ErrPersistence, err)
}

func (r *mongoRepo) FindOrCreatePrivateChat(ctx context.Context, userA, userB string) (*models.Chat, error) {
	now := time.Now().UTC()
	key := PairKey(userA, userB)
	participants := []string{userA, userB}
	sort.Strings(participants)

	res := r.chats.FindOneAndUpdate(ctx,
		bson.M{"pair_key": key, "type": models.ChatPrivate},
		bson.M{"$setOnInsert": bson.M{
			"type":         models.ChatPrivate,
			"participants": participants,
			"pair_key":     key,
			"created_at":   now,
			"updated_at":   now,
		}},
		options.FindOneAndUpdate().
			SetUpsert(true).
			SetReturnDocument(options.After),
	)
	var chat models.Chat
	if err := res.Decode(&chat); err != nil {
		return nil, wrapMongo(err)
	}
	return &chat, nil
}

func (r *mongoRepo) GetChat(ctx context.Context, chatID string) (*models.Chat, error) {
	oid, err := objectID(chatID)
	if err != nil {
		return nil, err
	}
	var chat models.Chat
	if err := r.chats.FindOne(ctx, bson.M{"_id": oid}).Decode(&chat); err != nil {
		return nil, wrapMongo(err)
	}
	return &chat, nil
}

func (r *mongoRepo) ChatIDsForUser(ctx context.Context, userID string, limit int64) ([]string, error) {
	cur, err := r.chats.Find(ctx,
		bson.M{"participants": userID},
		options.Find().
			SetProjection(bson.M{"_id": 1}).
			SetLimit(limit),
	)
	if err != nil {
		return nil, wrapMongo(err)
	}
	defer cur.Close(ctx)

	var ids []string
	for cur.Next(ctx) {
		var doc struct {
			ID primitive.ObjectID `bson:"_id"`
		}
		if err := cur.Decode(&doc); err != nil {
			return nil, wrapMongo(err)
		}
		ids = append(ids, doc.ID.Hex())
	}
	return ids, wrapMongo(cur.Err())
}

func (r *mongoRepo) InsertMessage(ctx context.Context, m *models.Message) (*models.Message, error) {
	m.CreatedAt = time.Now().UTC()
	res, err := r.messages.InsertOne(ctx, m)
	if err != nil {
		return nil, wrapMongo(err)
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		m.ID = oid.Hex()
	}
	return m, nil
}

func (r *mongoRepo) GetMessage(ctx context.Context, messageID string) (*models.Message, error) {
	oid, err := objectID(messageID)
	if err != nil {
		return nil, err
	}
	var m models.Message
	if err := r.messages.FindOne(ctx, bson.M{"_id": oid}).Decode(&m); err != nil {
		return nil, wrapMongo(err)
	}
	return &m, nil
}

func (r *mongoRepo) EditMessage(ctx context.Context, messageID, content string) (*models.Message, error) {
	oid, err := objectID(messageID)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	res := r.messages.FindOneAndUpdate(ctx,
		bson.M{"_id": oid, "is_deleted": false},
		bson.M{"$set": bson.M{
			"content":   content,
			"is_edited": true,
			"edited_at": now,
		}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	)
	var m models.Message
	if err := res.Decode(&m); err != nil {
		return nil, wrapMongo(err)
	}
	return &m, nil
}

func (r *mongoRepo) SoftDeleteMessage(ctx context.Context, messageID string) ([]string, error) {
	oid, err := objectID(messageID)
	if err != nil {
		return nil, err
	}
	// grab attachments before tombstoning so the caller can purge blobs
	res := r.messages.FindOneAndUpdate(ctx,
		bson.M{"_id": oid},
		bson.M{"$set": bson.M{
			"content":     models.DeletedPlaceholder,
			"is_deleted":  true,
			"attachments": []string{},
		}},
		options.FindOneAndUpdate().SetReturnDocument(options.Before),
	)
	var before models.Message
	if err := res.Decode(&before); err != nil {
		return nil, wrapMongo(err)
	}
	return before.Attachments, nil
}

func (r *mongoRepo) ToggleReaction(ctx context.Context, messageID, userID, emoji string) (*models.Message, error) {
	oid, err := objectID(messageID)
	if err != nil {
		return nil, err
	}
	var m models.Message
	if err := r.messages.FindOne(ctx, bson.M{"_id": oid}).Decode(&m); err != nil {
		return nil, wrapMongo(err)
	}
	pair := bson.M{"user_id": userID, "emoji": emoji}
	var update bson.M
	if m.HasReaction(userID, emoji) {
		update = bson.M{"$pull": bson.M{"reactions": pair}}
	} else {
		update = bson.M{"$addToSet": bson.M{"reactions": pair}}
	}
	res := r.messages.FindOneAndUpdate(ctx, bson.M{"_id": oid}, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After))
	var out models.Message
	if err := res.Decode(&out); err != nil {
		return nil, wrapMongo(err)
	}
	return &out, nil
}

func (r *mongoRepo) MarkMessagesRead(ctx context.Context, chatID, readerID string, messageIDs []string) ([]*models.Message, error) {
	chat, err := r.GetChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	out := make([]*models.Message, 0, len(messageIDs))
	for _, id := range messageIDs {
		oid, err := objectID(id)
		if err != nil {
			return nil, err
		}
		// add the receipt unless the reader already has one
		_, err = r.messages.UpdateOne(ctx,
			bson.M{"_id": oid, "chat_id": chatID, "read_by.user_id": bson.M{"$ne": readerID}},
			bson.M{"$push": bson.M{"read_by": bson.M{"user_id": readerID, "read_at": now}}},
		)
		if err != nil {
			return nil, wrapMongo(err)
		}
		var m models.Message
		if err := r.messages.FindOne(ctx, bson.M{"_id": oid}).Decode(&m); err != nil {
			return nil, wrapMongo(err)
		}
		if m.Status != models.StatusSeen && SeenByAllOthers(&m, chat.Participants) {
			_, err = r.messages.UpdateOne(ctx, bson.M{"_id": oid},
				bson.M{"$set": bson.M{"status": models.StatusSeen}})
			if err != nil {
				return nil, wrapMongo(err)
			}
			m.Status = models.StatusSeen
		}
		out = append(out, &m)
	}
	return out, nil
}

func (r *mongoRepo) UpdateChatLastMessage(ctx context.Context, chatID string, m *models.Message) error {
	oid, err := objectID(chatID)
	if err != nil {
		return err
	}
	_, err = r.chats.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{"$set": bson.M{
		"last_message": m,
		"updated_at":   time.Now().UTC(),
	}})
	return wrapMongo(err)
}

func (r *mongoRepo) LeaveGroup(ctx context.Context, chatID, userID string) (*models.Chat, bool, error) {
	chat, err := r.GetChat(ctx, chatID)
	if err != nil {
		return nil, false, err
	}
	participants, admins, deleted := NextGroupState(chat.Participants, chat.Admins, userID)
	oid, _ := objectID(chatID)
	if deleted {
		if _, err := r.chats.DeleteOne(ctx, bson.M{"_id": oid}); err != nil {
			return nil, false, wrapMongo(err)
		}
		if _, err := r.messages.DeleteMany(ctx, bson.M{"chat_id": chatID}); err != nil {
			return nil, false, wrapMongo(err)
		}
		return nil, true, nil
	}
	res := r.chats.FindOneAndUpdate(ctx,
		bson.M{"_id": oid},
		bson.M{
			"$set":  bson.M{"participants": participants, "admins": admins, "updated_at": time.Now().UTC()},
			"$pull": bson.M{"settings": bson.M{"user_id": userID}},
		},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	)
	var out models.Chat
	if err := res.Decode(&out); err != nil {
		return nil, false, wrapMongo(err)
	}
	return &out, false, nil
}

func (r *mongoRepo) Friends(ctx context.Context, userID string) ([]string, error) {
	var doc struct {
		Friends []string `bson:"friends"`
	}
	err := r.users.FindOne(ctx, bson.M{"_id": userID},
		options.FindOne().SetProjection(bson.M{"friends": 1})).Decode(&doc)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, wrapMongo(err)
	}
	return doc.Friends, nil
}
